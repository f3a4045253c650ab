package wordclock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-wordclock/pkg/mqtt"
)

// Sink delivers a rendered frame to the pixels
type Sink interface {
	// Dispatch sends one frame addressed to target and reports whether it was accepted
	Dispatch(ctx context.Context, target string, frame []Color) error
	Close() error
}

// framePayload is the setcolor command a pixel controller accepts
type framePayload struct {
	Action    string  `json:"action"`
	RGBValues [][]int `json:"RGB_Values"`
}

// EncodeFrame renders a frame as the pixel controller's setcolor command
func EncodeFrame(frame []Color) ([]byte, error) {
	payload := framePayload{
		Action:    "setcolor",
		RGBValues: make([][]int, len(frame)),
	}
	for i, px := range frame {
		payload.RGBValues[i] = px.Ints()
	}
	return json.Marshal(payload)
}

// MQTTSink publishes frames to automation/command/pixels/{target}
type MQTTSink struct {
	mqtt   mqtt.Client
	logger *slog.Logger
}

// NewMQTTSink creates a sink publishing through the given client
func NewMQTTSink(client mqtt.Client, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{mqtt: client, logger: logger}
}

// Dispatch publishes the frame at QoS 1 so a broker acknowledgement means success
func (s *MQTTSink) Dispatch(ctx context.Context, target string, frame []Color) error {
	payload, err := EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	topic := mqtt.PixelCommandTopic(target)
	done := make(chan error, 1)
	go func() {
		done <- s.mqtt.Publish(topic, 1, false, payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		s.logger.Debug("Display frame published", "topic", topic, "pixels", len(frame))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch to %s: %w", topic, ctx.Err())
	}
}

// Close is a no-op; the MQTT client is owned by the agent
func (s *MQTTSink) Close() error {
	return nil
}
