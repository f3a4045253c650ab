package wordclock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	opc "github.com/kellydunn/go-opc"

	"github.com/saaga0h/jeeves-wordclock/pkg/config"
)

// OPCSink sends frames to an Open Pixel Control server such as fcserver
// driving a fadecandy board. OPC carries RGB only, so the white channel of an
// RGBW frame is added onto each colour channel.
type OPCSink struct {
	server  string
	channel uint8
	logger  *slog.Logger

	mu     sync.Mutex
	client *opc.Client
}

// NewOPCSink creates a sink for server ("host:port") on the given channel.
// The connection is opened lazily and re-opened after a failed send.
func NewOPCSink(server string, channel uint8, logger *slog.Logger) *OPCSink {
	return &OPCSink{server: server, channel: channel, logger: logger}
}

// OPCMessage builds the set-pixel-colours message for a frame
func OPCMessage(channel uint8, frame []Color) *opc.Message {
	m := opc.NewMessage(channel)
	m.SetLength(uint16(len(frame) * 3))
	for i, px := range frame {
		r, g, b := foldWhite(px)
		m.SetPixelColor(i, r, g, b)
	}
	return m
}

func foldWhite(px Color) (uint8, uint8, uint8) {
	if len(px) < 3 {
		return 0, 0, 0
	}
	if len(px) == 3 {
		return px[0], px[1], px[2]
	}
	add := func(c, w uint8) uint8 {
		if s := int(c) + int(w); s < 255 {
			return uint8(s)
		}
		return 255
	}
	return add(px[0], px[3]), add(px[1], px[3]), add(px[2], px[3])
}

// Dispatch sends the frame; target is only logged since OPC addresses by channel
func (s *OPCSink) Dispatch(ctx context.Context, target string, frame []Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame) > config.MaxOPCPixels {
		return fmt.Errorf("frame of %d pixels exceeds the OPC limit of %d", len(frame), config.MaxOPCPixels)
	}

	if s.client == nil {
		c := opc.NewClient()
		if err := c.Connect("tcp", s.server); err != nil {
			return fmt.Errorf("failed to connect to OPC server %s: %w", s.server, err)
		}
		s.client = c
		s.logger.Info("Connected to OPC server", "server", s.server, "channel", s.channel)
	}

	if err := s.client.Send(OPCMessage(s.channel, frame)); err != nil {
		s.client = nil
		return fmt.Errorf("failed to send OPC frame to %s: %w", s.server, err)
	}

	s.logger.Debug("Display frame sent", "server", s.server, "target", target, "pixels", len(frame))
	return nil
}

// Close forgets the connection
func (s *OPCSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	return nil
}
