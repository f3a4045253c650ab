package wordclock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// nrzSPIFrequency clocks three SPI bits per LED bit, giving the 800kHz
// data rate WS2812 and SK6812 chips expect
const nrzSPIFrequency = 2400 * physic.KiloHertz

// nrzLatchBytes of low line (280µs at 2.4MHz) latch the frame into the LEDs
const nrzLatchBytes = 84

// SPISink drives a WS2812/SK6812 strip wired to an SPI MOSI pin
type SPISink struct {
	withWhite bool
	logger    *slog.Logger

	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

// NewSPISink opens the named SPI port ("" selects the first one). colorMode
// is "grb" for RGB chips or "grbw" for RGBW chips.
func NewSPISink(portName, colorMode string, logger *slog.Logger) (*SPISink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", portName, err)
	}

	conn, err := port.Connect(nrzSPIFrequency, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI port %q: %w", portName, err)
	}

	logger.Info("Opened SPI LED output", "port", port.String(), "color_mode", colorMode)

	return &SPISink{
		withWhite: colorMode == "grbw",
		logger:    logger,
		port:      port,
		conn:      conn,
	}, nil
}

// expandNRZ encodes one byte as 24 SPI bits, each LED bit becoming 1x0
func expandNRZ(b byte) uint32 {
	out := uint32(0x924924)
	for bit := 0; bit < 8; bit++ {
		if b&(0x80>>bit) != 0 {
			out |= 1 << (22 - 3*bit)
		}
	}
	return out
}

// EncodeNRZ rasterizes a frame into the SPI byte stream for the strip, in
// GRB or GRBW channel order, followed by the latch gap.
func EncodeNRZ(frame []Color, withWhite bool) []byte {
	channels := 3
	if withWhite {
		channels = 4
	}
	out := make([]byte, 0, len(frame)*channels*3+nrzLatchBytes)

	for _, px := range frame {
		var grbw [4]uint8
		if withWhite {
			if len(px) >= 3 {
				grbw[0], grbw[1], grbw[2] = px[1], px[0], px[2]
			}
			if len(px) == 4 {
				grbw[3] = px[3]
			}
		} else {
			r, g, b := foldWhite(px)
			grbw[0], grbw[1], grbw[2] = g, r, b
		}

		for _, c := range grbw[:channels] {
			e := expandNRZ(c)
			out = append(out, byte(e>>16), byte(e>>8), byte(e))
		}
	}

	return append(out, make([]byte, nrzLatchBytes)...)
}

// Dispatch writes the frame; target is only logged since the strip is local
func (s *SPISink) Dispatch(ctx context.Context, target string, frame []Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conn == nil {
		return fmt.Errorf("SPI output is closed")
	}

	if err := s.conn.Tx(EncodeNRZ(frame, s.withWhite), nil); err != nil {
		return fmt.Errorf("failed to write SPI frame: %w", err)
	}

	s.logger.Debug("Display frame written", "target", target, "pixels", len(frame))
	return nil
}

// Close releases the SPI port
func (s *SPISink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port, s.conn = nil, nil
	return err
}
