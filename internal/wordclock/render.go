package wordclock

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an RGB or RGBW pixel value
type Color []uint8

// Scale multiplies every channel by factor, rounding to the nearest level
func (c Color) Scale(factor float64) Color {
	out := make(Color, len(c))
	for i, v := range c {
		out[i] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)*factor))))
	}
	return out
}

// String renders the colour as the comma separated form used in settings
func (c Color) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

// Ints returns the channels as ints, the form JSON payloads carry
func (c Color) Ints() []int {
	out := make([]int, len(c))
	for i, v := range c {
		out[i] = int(v)
	}
	return out
}

// ParseColor accepts "r,g,b", "r,g,b,w" or a "#rrggbb" hex string
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		r, g, b := c.RGB255()
		return Color{r, g, b}, nil
	}

	fields := strings.Split(s, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return nil, fmt.Errorf("color %q must have 3 or 4 channels", s)
	}
	out := make(Color, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("color channel %q must be an integer in 0..255", f)
		}
		out[i] = uint8(v)
	}
	return out, nil
}

// Render builds a pixelCount long frame: every pixel off, pixels inside the
// active ranges set to base scaled by factor. Indices outside the frame are
// ignored. Output depends only on the arguments.
func Render(active []Range, base Color, factor float64, pixelCount int) []Color {
	frame := make([]Color, pixelCount)
	for i := range frame {
		frame[i] = make(Color, len(base))
	}

	lit := base.Scale(factor)
	for _, r := range active {
		for i := max(r.Low, 0); i <= r.High && i < pixelCount; i++ {
			copy(frame[i], lit)
		}
	}
	return frame
}
