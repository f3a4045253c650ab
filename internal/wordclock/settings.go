package wordclock

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Parameter names a brightness reading as a source plus a parameter on it,
// written "source:parameter" in settings documents.
type Parameter struct {
	Source string
	Name   string
}

// String renders the parameter in its "source:parameter" form
func (p Parameter) String() string {
	if p.Source == "" && p.Name == "" {
		return ""
	}
	return p.Source + ":" + p.Name
}

// IsZero reports whether no parameter is selected
func (p Parameter) IsZero() bool {
	return p.Source == "" || p.Name == ""
}

// ParseParameter splits a "source:parameter" string. An empty string yields
// the zero Parameter.
func ParseParameter(s string) (Parameter, error) {
	if s == "" {
		return Parameter{}, nil
	}
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Parameter{}, fmt.Errorf("brightness parameter %q must be source:parameter", s)
	}
	return Parameter{Source: s[:i], Name: s[i+1:]}, nil
}

// maxTaskPeriodMs caps the tick interval at one day
const maxTaskPeriodMs = int(24 * time.Hour / time.Millisecond)

// Settings is the runtime configuration of one display. A Settings value is
// never mutated once applied; updates replace it.
type Settings struct {
	Name                string
	Controller          string
	BrightnessMin       float64
	SensorMin           float64
	SensorMax           float64
	Smoothing           int
	Color               Color
	AutoBrightness      bool
	BrightnessParameter Parameter
	TaskPeriodMs        int
}

// DefaultSettings returns the factory settings for a display
func DefaultSettings(name string) *Settings {
	return &Settings{
		Name:          name,
		BrightnessMin: 0.1,
		SensorMin:     0.5,
		SensorMax:     30000,
		Smoothing:     5,
		Color:         Color{127, 127, 127},
		TaskPeriodMs:  1000,
	}
}

// Validate checks every field a render depends on
func (s *Settings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("Name is required")
	}
	if len(s.Color) != 3 && len(s.Color) != 4 {
		return fmt.Errorf("color must have 3 or 4 channels, got %d", len(s.Color))
	}
	if s.TaskPeriodMs <= 0 {
		return fmt.Errorf("TaskPeriod must be positive, got %d", s.TaskPeriodMs)
	}
	if s.TaskPeriodMs > maxTaskPeriodMs {
		return fmt.Errorf("TaskPeriod must be at most %d ms, got %d", maxTaskPeriodMs, s.TaskPeriodMs)
	}
	if err := s.Brightness().Validate(); err != nil {
		return err
	}
	return nil
}

// Brightness returns the brightness calibration part of the settings
func (s *Settings) Brightness() BrightnessConfig {
	return BrightnessConfig{
		SensorMin:     s.SensorMin,
		SensorMax:     s.SensorMax,
		BrightnessMin: s.BrightnessMin,
		Window:        s.Smoothing,
	}
}

// Period is the interval between periodic triggers
func (s *Settings) Period() time.Duration {
	return time.Duration(s.TaskPeriodMs) * time.Millisecond
}

// AutoBrightnessActive reports whether a brightness reading should be taken
func (s *Settings) AutoBrightnessActive() bool {
	return s.AutoBrightness && !s.BrightnessParameter.IsZero()
}

// selection is a dropdown-style field: the current value plus the choices
type selection struct {
	Current string   `json:"current"`
	Options []string `json:"options,omitempty"`
}

// settingsDocument is the external JSON form of Settings
type settingsDocument struct {
	Name                string    `json:"Name"`
	Controller          selection `json:"NeoPixel_Controller"`
	BrightnessParameter selection `json:"Brightness_Parameter"`
	AutoBrightness      bool      `json:"AutoBrightness"`
	BrightnessMin       *float64  `json:"brightnessMin"`
	SensorMax           *float64  `json:"sensorMax"`
	SensorMin           *float64  `json:"sensorMin"`
	SensorSmoothing     *int      `json:"sensorSmoothing"`
	Color               string    `json:"color"`
	TaskPeriod          *int      `json:"TaskPeriod"`
}

// DecodeSettings parses and validates a settings document. Numeric fields
// left out of the document are a configuration error.
func DecodeSettings(data []byte) (*Settings, error) {
	var doc settingsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	missing := []string{}
	if doc.BrightnessMin == nil {
		missing = append(missing, "brightnessMin")
	}
	if doc.SensorMin == nil {
		missing = append(missing, "sensorMin")
	}
	if doc.SensorMax == nil {
		missing = append(missing, "sensorMax")
	}
	if doc.SensorSmoothing == nil {
		missing = append(missing, "sensorSmoothing")
	}
	if doc.TaskPeriod == nil {
		missing = append(missing, "TaskPeriod")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("settings missing required fields: %s", strings.Join(missing, ", "))
	}

	color, err := ParseColor(doc.Color)
	if err != nil {
		return nil, err
	}
	param, err := ParseParameter(doc.BrightnessParameter.Current)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Name:                doc.Name,
		Controller:          doc.Controller.Current,
		BrightnessMin:       *doc.BrightnessMin,
		SensorMin:           *doc.SensorMin,
		SensorMax:           *doc.SensorMax,
		Smoothing:           *doc.SensorSmoothing,
		Color:               color,
		AutoBrightness:      doc.AutoBrightness,
		BrightnessParameter: param,
		TaskPeriodMs:        *doc.TaskPeriod,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// EncodeSettings renders settings as their external JSON document. The
// option lists are filled from the given choices when provided.
func EncodeSettings(s *Settings, controllers, parameters []string) ([]byte, error) {
	doc := settingsDocument{
		Name:                s.Name,
		Controller:          selection{Current: s.Controller, Options: controllers},
		BrightnessParameter: selection{Current: s.BrightnessParameter.String(), Options: parameters},
		AutoBrightness:      s.AutoBrightness,
		BrightnessMin:       &s.BrightnessMin,
		SensorMax:           &s.SensorMax,
		SensorMin:           &s.SensorMin,
		SensorSmoothing:     &s.Smoothing,
		Color:               s.Color.String(),
		TaskPeriod:          &s.TaskPeriodMs,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}
