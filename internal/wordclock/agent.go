package wordclock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-wordclock/pkg/config"
	"github.com/saaga0h/jeeves-wordclock/pkg/health"
	"github.com/saaga0h/jeeves-wordclock/pkg/mqtt"
	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

// ErrInvalidAction is returned for actions the display does not support
var ErrInvalidAction = errors.New("Invalid action")

// ActionUpdate forces a render of the current time. Devices may also send
// its numeric form, 0.
const ActionUpdate = "update"

// ActionRequest is an action addressed to the display
type ActionRequest struct {
	Action    json.RawMessage `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
}

// ActionResponse answers an ActionRequest or a settings update
type ActionResponse struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Response  string `json:"Response,omitempty"`
}

// RenderContext is published after every successful render
type RenderContext struct {
	State      string    `json:"state"`
	Display    string    `json:"display"`
	Controller string    `json:"controller"`
	Hour       int       `json:"hour"`
	Minute     int       `json:"minute"`
	Bucket     int       `json:"bucket"`
	Brightness float64   `json:"brightness"`
	Forced     bool      `json:"forced"`
	Timestamp  time.Time `json:"timestamp"`
}

// Agent binds one word clock display to MQTT. Periodic ticks, actions and
// settings updates all run under runMu, so a trigger never overlaps another.
type Agent struct {
	mqtt    mqtt.Client
	redis   redis.Client
	cfg     *config.Config
	logger  *slog.Logger
	store   SettingsStore
	source  BrightnessSource
	clock   TimeSource
	sink    Sink
	journal Journal

	scheduler *Scheduler

	runMu    sync.Mutex
	settings atomic.Pointer[Settings]
	synced   atomic.Bool

	statusMu sync.RWMutex
	status   health.DisplayStatus

	// Periodic trigger loop
	periodChan chan time.Duration
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewAgent creates a word clock agent. journal may be nil.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, sink Sink, journal Journal, layout *Layout, cfg *config.Config, logger *slog.Logger) *Agent {
	var store SettingsStore
	if cfg.SettingsStore == "file" {
		store = NewFileSettingsStore(cfg.SettingsFile)
	} else {
		store = NewRedisSettingsStore(redisClient, cfg.DisplayName)
	}

	source := NewSourceRouter(NewRedisSensorSource(redisClient, cfg.MaxSampleAge(), logger))
	source.Handle(DaylightSourceName, NewDaylightSource(cfg.Latitude, cfg.Longitude))

	if journal == nil {
		journal = NopJournal{}
	}

	clock := NewSystemClock(cfg.Location())

	return &Agent{
		mqtt:       mqttClient,
		redis:      redisClient,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		source:     source,
		clock:      clock,
		sink:       sink,
		journal:    journal,
		scheduler:  NewScheduler(cfg.DisplayName, layout, cfg.LEDCount, clock, source, sink, journal, cfg.DispatchTimeout(), logger),
		status:     health.DisplayStatus{Display: cfg.DisplayName},
		periodChan: make(chan time.Duration, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start activates the display and blocks until ctx is cancelled. The
// display is never activated when the clock fails to synchronize.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting word clock agent",
		"service_name", a.cfg.ServiceName,
		"display", a.cfg.DisplayName,
		"led_count", a.cfg.LEDCount,
		"output_sink", a.cfg.OutputSink,
		"settings_store", a.cfg.SettingsStore)

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	if err := WaitForSync(ctx, a.clock, a.cfg.SyncTimeout(), a.cfg.SyncPollInterval(), a.logger); err != nil {
		a.logger.Error("Unable to synchronize time, display not activated", "display", a.cfg.DisplayName, "error", err)
		return fmt.Errorf("display %s not activated: %w", a.cfg.DisplayName, err)
	}
	a.synced.Store(true)

	settings, err := a.loadSettings(ctx)
	if err != nil {
		return err
	}

	a.runMu.Lock()
	a.applySettings(settings)
	a.runMu.Unlock()

	commandTopic := mqtt.CommandTopic(a.cfg.DisplayName)
	if err := a.mqtt.Subscribe(commandTopic, 1, a.handleActionMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", commandTopic, err)
	}
	a.logger.Info("Subscribed to display actions", "topic", commandTopic)

	settingsTopic := mqtt.ConfigSetTopic(a.cfg.DisplayName)
	if err := a.mqtt.Subscribe(settingsTopic, 1, a.handleSettingsMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", settingsTopic, err)
	}
	a.logger.Info("Subscribed to display settings", "topic", settingsTopic)

	a.publishSettings(ctx, settings)

	a.runMu.Lock()
	if _, err := a.trigger(ctx, true); err != nil {
		a.logger.Error("Initial display update failed", "display", a.cfg.DisplayName, "error", err)
	}
	a.runMu.Unlock()

	a.startTickLoop(ctx, settings.Period())

	a.logger.Info("Word clock agent started and ready", "display", a.cfg.DisplayName)

	<-ctx.Done()
	a.logger.Info("Word clock agent stopping")

	return nil
}

// Stop halts the periodic trigger and releases every client
func (a *Agent) Stop() error {
	a.logger.Info("Stopping word clock agent")

	a.stopOnce.Do(func() { close(a.stopChan) })

	// wait for a trigger in flight
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if err := a.sink.Close(); err != nil {
		a.logger.Error("Error closing output sink", "error", err)
	}

	if err := a.journal.Close(); err != nil {
		a.logger.Error("Error closing render journal", "error", err)
	}

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Word clock agent stopped")
	return nil
}

// Settings returns the active settings snapshot, nil before Start
func (a *Agent) Settings() *Settings {
	return a.settings.Load()
}

// DisplayStatus reports the render state for health checks
func (a *Agent) DisplayStatus() health.DisplayStatus {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	status := a.status
	status.Synchronized = a.synced.Load()
	return status
}

// Update forces a render of the current time
func (a *Agent) Update(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.settings.Load() == nil || a.stopped() {
		return fmt.Errorf("display %s not activated", a.cfg.DisplayName)
	}
	_, err := a.trigger(ctx, true)
	return err
}

// UpdateSettings validates, persists and applies a settings document. An
// invalid document leaves the previous settings active.
func (a *Agent) UpdateSettings(ctx context.Context, data []byte) error {
	settings, err := DecodeSettings(data)
	if err != nil {
		return err
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	if err := a.store.Save(ctx, settings); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}

	previous := a.settings.Load()
	a.applySettings(settings)
	if previous == nil || previous.TaskPeriodMs != settings.TaskPeriodMs {
		a.setPeriod(settings.Period())
	}

	a.logger.Info("Display settings updated",
		"display", a.cfg.DisplayName,
		"controller", settings.Controller,
		"auto_brightness", settings.AutoBrightness,
		"parameter", settings.BrightnessParameter.String(),
		"period_ms", settings.TaskPeriodMs)

	if _, err := a.trigger(ctx, true); err != nil {
		a.logger.Error("Display update after settings change failed", "display", a.cfg.DisplayName, "error", err)
	}

	a.publishSettings(ctx, settings)
	return nil
}

// loadSettings returns the stored settings. When nothing is stored the
// defaults are persisted; an unreadable document falls back to defaults
// without overwriting it.
func (a *Agent) loadSettings(ctx context.Context) (*Settings, error) {
	settings, err := a.store.Load(ctx)
	switch {
	case err == nil:
		a.logger.Info("Loaded display settings", "display", a.cfg.DisplayName, "controller", settings.Controller)
		return settings, nil

	case errors.Is(err, ErrSettingsNotFound):
		settings = DefaultSettings(a.cfg.DisplayName)
		if err := a.store.Save(ctx, settings); err != nil {
			return nil, fmt.Errorf("failed to persist default settings: %w", err)
		}
		a.logger.Info("No stored settings, persisted defaults", "display", a.cfg.DisplayName)
		return settings, nil

	default:
		a.logger.Warn("Stored settings unusable, running with defaults", "display", a.cfg.DisplayName, "error", err)
		return DefaultSettings(a.cfg.DisplayName), nil
	}
}

// applySettings swaps the settings snapshot. Caller holds runMu.
func (a *Agent) applySettings(settings *Settings) {
	a.settings.Store(settings)
	a.scheduler.Configure(settings)
}

// trigger runs the scheduler against the current snapshot. Caller holds runMu.
func (a *Agent) trigger(ctx context.Context, force bool) (TriggerResult, error) {
	settings := a.settings.Load()
	result, err := a.scheduler.Trigger(ctx, settings, force)
	if err != nil || !result.Rendered {
		return result, err
	}

	state := a.scheduler.State()
	a.publishContext(settings, result, state.LastRender)

	a.statusMu.Lock()
	a.status.Controller = settings.Controller
	a.status.LastRender = &state.LastRender
	a.status.Bucket = &state.LastBucket
	a.status.Brightness = state.LastBrightness
	a.statusMu.Unlock()

	return result, nil
}

// startTickLoop runs periodic triggers until Stop or ctx cancellation
func (a *Agent) startTickLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)

	go func() {
		defer ticker.Stop()
		a.logger.Info("Starting periodic display loop", "period", period)
		for {
			select {
			case <-ticker.C:
				a.tick(ctx)
			case p := <-a.periodChan:
				ticker.Reset(p)
				a.logger.Info("Display update period changed", "period", p)
			case <-a.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// setPeriod hands a new period to the tick loop, replacing any pending one.
// Caller holds runMu, so there is a single sender.
func (a *Agent) setPeriod(p time.Duration) {
	select {
	case <-a.periodChan:
	default:
	}
	a.periodChan <- p
}

func (a *Agent) stopped() bool {
	select {
	case <-a.stopChan:
		return true
	default:
		return false
	}
}

func (a *Agent) tick(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.stopped() {
		return
	}

	if _, err := a.trigger(ctx, false); err != nil {
		a.logger.Error("Display update failed", "display", a.cfg.DisplayName, "error", err)
	}
}

// handleActionMessage handles automation/command/wordclock/{display}
func (a *Agent) handleActionMessage(msg mqtt.Message) {
	if display, ok := mqtt.DisplayFromTopic(msg.Topic()); !ok || display != a.cfg.DisplayName {
		a.logger.Warn("Action for another display ignored", "topic", msg.Topic())
		return
	}

	var req ActionRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		a.logger.Warn("Failed to parse action request", "error", err)
		a.respond(ActionResponse{RequestID: uuid.NewString(), Response: "Invalid request"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	action, err := ParseAction(req.Action)
	if err != nil {
		a.logger.Warn("Rejected action", "display", a.cfg.DisplayName, "action", string(req.Action), "request_id", req.RequestID)
		a.respond(ActionResponse{RequestID: req.RequestID, Response: ErrInvalidAction.Error()})
		return
	}

	a.logger.Info("Action received", "display", a.cfg.DisplayName, "action", action, "request_id", req.RequestID)

	if err := a.Update(context.Background()); err != nil {
		a.logger.Error("Update action failed", "display", a.cfg.DisplayName, "request_id", req.RequestID, "error", err)
		a.respond(ActionResponse{RequestID: req.RequestID, Response: "Could not update display"})
		return
	}
	a.respond(ActionResponse{RequestID: req.RequestID, Success: true})
}

// ParseAction accepts the update action by name or by its numeric id
func ParseAction(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		if name == ActionUpdate {
			return ActionUpdate, nil
		}
		return "", fmt.Errorf("%q: %w", name, ErrInvalidAction)
	}

	var id int
	if err := json.Unmarshal(raw, &id); err == nil && id == 0 {
		return ActionUpdate, nil
	}
	return "", fmt.Errorf("%s: %w", string(raw), ErrInvalidAction)
}

// handleSettingsMessage handles automation/config/wordclock/{display}/set
func (a *Agent) handleSettingsMessage(msg mqtt.Message) {
	if err := a.UpdateSettings(context.Background(), msg.Payload()); err != nil {
		a.logger.Warn("Rejected settings update, keeping previous settings", "display", a.cfg.DisplayName, "error", err)
		a.respond(ActionResponse{RequestID: uuid.NewString(), Response: err.Error()})
		return
	}
	a.respond(ActionResponse{RequestID: uuid.NewString(), Success: true})
}

func (a *Agent) respond(resp ActionResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error("Failed to marshal action response", "error", err)
		return
	}
	topic := mqtt.ResponseTopic(a.cfg.DisplayName)
	if err := a.mqtt.Publish(topic, 1, false, payload); err != nil {
		a.logger.Error("Failed to publish action response", "topic", topic, "error", err)
	}
}

// publishSettings republishes the active settings, retained, with the
// brightness parameters currently available as options
func (a *Agent) publishSettings(ctx context.Context, settings *Settings) {
	parameters, err := a.source.Parameters(ctx)
	if err != nil {
		a.logger.Warn("Failed to list brightness parameters", "error", err)
	}

	var controllers []string
	if settings.Controller != "" {
		controllers = []string{settings.Controller}
	}

	payload, err := EncodeSettings(settings, controllers, parameters)
	if err != nil {
		a.logger.Error("Failed to encode settings", "error", err)
		return
	}

	topic := mqtt.ConfigTopic(a.cfg.DisplayName)
	if err := a.mqtt.Publish(topic, 1, true, payload); err != nil {
		a.logger.Error("Failed to publish settings", "topic", topic, "error", err)
	}
}

func (a *Agent) publishContext(settings *Settings, result TriggerResult, renderedAt time.Time) {
	msg := RenderContext{
		State:      "online",
		Display:    a.cfg.DisplayName,
		Controller: settings.Controller,
		Hour:       result.Hour,
		Minute:     result.Minute,
		Bucket:     result.Bucket,
		Brightness: result.Brightness,
		Forced:     result.Forced,
		Timestamp:  renderedAt.UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("Failed to marshal render context", "error", err)
		return
	}

	topic := mqtt.ContextTopic(a.cfg.DisplayName)
	if err := a.mqtt.Publish(topic, 0, true, payload); err != nil {
		a.logger.Error("Failed to publish render context", "topic", topic, "error", err)
		return
	}
	a.logger.Debug("Published render context", "topic", topic, "bucket", result.Bucket)
}
