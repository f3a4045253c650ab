package wordclock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RenderState is what the scheduler remembers about the last frame it
// dispatched. It only advances after a successful dispatch.
type RenderState struct {
	// LastBucket is -1 until the first frame has been shown
	LastBucket     int
	LastBrightness float64
	LastRender     time.Time
}

// TriggerResult describes the outcome of one trigger
type TriggerResult struct {
	Rendered   bool
	Forced     bool
	Hour       int
	Minute     int
	Bucket     int
	Brightness float64
}

// Scheduler decides on each trigger whether the display needs a new frame
// and dispatches it. Triggers must not run concurrently; the agent
// serializes them.
type Scheduler struct {
	display         string
	layout          *Layout
	pixels          int
	clock           TimeSource
	source          BrightnessSource
	sink            Sink
	journal         Journal
	brightness      *BrightnessController
	dispatchTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time

	state RenderState
	// bypassReason is the brightness bypass condition last logged, "" when readings flow
	bypassReason string
}

// NewScheduler creates a scheduler for one display of pixels LEDs
func NewScheduler(display string, layout *Layout, pixels int, clock TimeSource, source BrightnessSource, sink Sink, journal Journal, dispatchTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Scheduler{
		display:         display,
		layout:          layout,
		pixels:          pixels,
		clock:           clock,
		source:          source,
		sink:            sink,
		journal:         journal,
		brightness:      NewBrightnessController(BrightnessConfig{}),
		dispatchTimeout: dispatchTimeout,
		logger:          logger,
		now:             time.Now,
		state:           RenderState{LastBucket: -1},
	}
}

// Configure applies the brightness calibration of new settings. The rolling
// buffer is resized before this returns.
func (s *Scheduler) Configure(settings *Settings) {
	s.brightness.Configure(settings.Brightness())
}

// State returns a copy of the render state
func (s *Scheduler) State() RenderState {
	return s.state
}

// Trigger runs one update against a single settings snapshot. force skips
// the bucket/brightness gate. An error means the dispatch failed and the
// render state was left untouched.
func (s *Scheduler) Trigger(ctx context.Context, settings *Settings, force bool) (TriggerResult, error) {
	if settings.Controller == "" {
		s.logger.Debug("No pixel controller assigned, skipping update", "display", s.display)
		return TriggerResult{}, nil
	}

	factor := s.brightnessFactor(ctx, settings)
	if factor != s.state.LastBrightness {
		force = true
	}

	hour, minute := s.clock.Now()
	bucket := Bucket(minute)
	result := TriggerResult{
		Forced:     force,
		Hour:       hour,
		Minute:     minute,
		Bucket:     bucket,
		Brightness: factor,
	}

	if !force && bucket == s.state.LastBucket {
		return result, nil
	}

	frame := Render(MapTime(s.layout, hour, minute), settings.Color, factor, s.pixels)

	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	err := s.sink.Dispatch(dctx, settings.Controller, frame)
	cancel()

	renderedAt := s.now()
	s.journal.Record(RenderEvent{
		Display:    s.display,
		RenderedAt: renderedAt,
		Hour:       hour,
		Minute:     minute,
		Bucket:     bucket,
		Brightness: factor,
		Forced:     force,
		Err:        err,
	})

	if err != nil {
		return result, fmt.Errorf("failed to dispatch frame to %s: %w", settings.Controller, err)
	}

	s.state = RenderState{
		LastBucket:     bucket,
		LastBrightness: factor,
		LastRender:     renderedAt,
	}
	result.Rendered = true

	s.logger.Info("Display updating",
		"display", s.display,
		"controller", settings.Controller,
		"hour", hour,
		"bucket", bucket,
		"brightness", factor,
		"forced", force)

	return result, nil
}

// brightnessFactor reads and smooths a fresh sample, or returns full
// brightness when automatic brightness is off or has nothing to read
func (s *Scheduler) brightnessFactor(ctx context.Context, settings *Settings) float64 {
	if !settings.AutoBrightnessActive() {
		reason := "auto brightness disabled"
		if settings.AutoBrightness {
			reason = "no brightness parameter selected"
		}
		s.bypass(reason, nil)
		return 1
	}

	rctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	raw, err := s.source.Read(rctx, settings.BrightnessParameter)
	cancel()
	if err != nil {
		reason := "brightness source error"
		if errors.Is(err, ErrSourceUnavailable) {
			reason = "brightness parameter unavailable"
		}
		s.bypass(reason, err)
		return 1
	}

	if s.bypassReason != "" {
		s.logger.Info("Brightness readings resumed",
			"display", s.display,
			"parameter", settings.BrightnessParameter.String())
		s.bypassReason = ""
	}

	return s.brightness.Update(raw)
}

func (s *Scheduler) bypass(reason string, err error) {
	if reason == s.bypassReason {
		s.logger.Debug("Brightness sensor not found/not enabled, using full brightness",
			"display", s.display, "reason", reason)
		return
	}
	s.bypassReason = reason

	if err == nil {
		s.logger.Info("Brightness sensor not found/not enabled, using full brightness",
			"display", s.display, "reason", reason)
		return
	}
	s.logger.Warn("Brightness sensor not found/not enabled, using full brightness",
		"display", s.display, "reason", reason, "error", err)
}
