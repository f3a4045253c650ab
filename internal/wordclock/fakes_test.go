package wordclock

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-wordclock/pkg/mqtt"
	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeMQTT records publishes and lets tests deliver messages to subscribers
type fakeMQTT struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	publishDelay time.Duration
	handlers     map[string]mqtt.MessageHandler
	messages     []publishedMessage
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.publishDelay > 0 {
		time.Sleep(f.publishDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil && strings.HasPrefix(topic, "automation/command/pixels/") {
		return f.publishErr
	}
	f.messages = append(f.messages, publishedMessage{topic: topic, qos: qos, retained: retained, payload: payload})
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) setPublishErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

func (f *fakeMQTT) published(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMQTT) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(&fakeMessage{topic: topic, payload: payload})
	return true
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}

// fakeRedis holds strings and sorted sets in memory
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	zsets   map[string][]redis.ZMember
	setErr  error
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		zsets:   make(map[string][]redis.ZMember),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.strings[key] = value.(string)
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.zsets {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeRedis) ZRevRangeByScoreWithScores(ctx context.Context, key string, max, min float64, offset, count int64) ([]redis.ZMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redis.ZMember
	members := f.zsets[key]
	for i := len(members) - 1; i >= 0; i-- {
		if members[i].Score <= max && members[i].Score >= min {
			out = append(out, members[i])
		}
	}
	if int64(len(out)) > offset+count {
		out = out[offset : offset+count]
	}
	return out, nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeRedis) Close() error                   { return nil }

// zadd appends a member; tests add in ascending score order
func (f *fakeRedis) zadd(key string, score float64, member string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zsets[key] = append(f.zsets[key], redis.ZMember{Score: score, Member: member})
}

// recordingSink keeps every frame it is given
type recordingSink struct {
	mu      sync.Mutex
	err     error
	frames  [][]Color
	targets []string
	closed  bool
}

func (s *recordingSink) Dispatch(ctx context.Context, target string, frame []Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	s.targets = append(s.targets, target)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) last() []Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// staticSource returns a fixed reading, or ErrSourceUnavailable when unset
type staticSource struct {
	mu    sync.Mutex
	value *float64
	reads int
}

func (s *staticSource) set(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = &v
}

func (s *staticSource) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
}

func (s *staticSource) Read(ctx context.Context, p Parameter) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.value == nil {
		return 0, ErrSourceUnavailable
	}
	return *s.value, nil
}

func (s *staticSource) Parameters(ctx context.Context) ([]string, error) {
	return []string{"hall:illuminance"}, nil
}

// recordingJournal keeps events in memory
type recordingJournal struct {
	mu     sync.Mutex
	events []RenderEvent
}

func (j *recordingJournal) Record(ev RenderEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
}

func (j *recordingJournal) Close() error { return nil }

var errDispatch = errors.New("controller unreachable")
