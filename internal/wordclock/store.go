package wordclock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

// ErrSettingsNotFound is returned when no settings have been stored yet
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsStore persists the settings document of a display
type SettingsStore interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// RedisSettingsStore keeps the settings document under config:wordclock:{display}
type RedisSettingsStore struct {
	redis   redis.Client
	display string
}

// NewRedisSettingsStore creates a Redis-backed store for one display
func NewRedisSettingsStore(client redis.Client, display string) *RedisSettingsStore {
	return &RedisSettingsStore{redis: client, display: display}
}

// Load reads and validates the stored document
func (s *RedisSettingsStore) Load(ctx context.Context) (*Settings, error) {
	raw, err := s.redis.Get(ctx, redis.DisplaySettingsKey(s.display))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return DecodeSettings([]byte(raw))
}

// Save writes the document without expiry
func (s *RedisSettingsStore) Save(ctx context.Context, settings *Settings) error {
	data, err := EncodeSettings(settings, nil, nil)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, redis.DisplaySettingsKey(s.display), string(data), 0)
}

// FileSettingsStore keeps the document in a local file. Files ending in
// .yaml or .yml hold the same fields as the JSON document, in YAML.
type FileSettingsStore struct {
	path string
}

// NewFileSettingsStore creates a store backed by path
func NewFileSettingsStore(path string) *FileSettingsStore {
	return &FileSettingsStore{path: path}
}

func (s *FileSettingsStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and validates the settings file
func (s *FileSettingsStore) Load(ctx context.Context) (*Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if s.isYAML() {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert settings YAML: %w", err)
		}
	}
	return DecodeSettings(data)
}

// Save writes the settings file, replacing it atomically
func (s *FileSettingsStore) Save(ctx context.Context, settings *Settings) error {
	data, err := EncodeSettings(settings, nil, nil)
	if err != nil {
		return err
	}

	if s.isYAML() {
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to convert settings: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("failed to encode settings YAML: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
