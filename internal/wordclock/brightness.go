package wordclock

import (
	"fmt"
	"math"
)

// BrightnessConfig calibrates how raw sensor samples become brightness factors
type BrightnessConfig struct {
	SensorMin     float64
	SensorMax     float64
	BrightnessMin float64
	// Window is the rolling average length; 0 or 1 disables smoothing
	Window int
}

// Validate checks the calibration bounds
func (c BrightnessConfig) Validate() error {
	if !isFinite(c.SensorMin) || !isFinite(c.SensorMax) {
		return fmt.Errorf("sensor bounds must be finite, got [%g, %g]", c.SensorMin, c.SensorMax)
	}
	if c.SensorMin >= c.SensorMax {
		return fmt.Errorf("sensorMin (%g) must be below sensorMax (%g)", c.SensorMin, c.SensorMax)
	}
	if !isFinite(c.SensorMax - c.SensorMin) {
		return fmt.Errorf("sensor range [%g, %g] is too wide", c.SensorMin, c.SensorMax)
	}
	if math.IsNaN(c.BrightnessMin) || c.BrightnessMin < 0 || c.BrightnessMin > 1 {
		return fmt.Errorf("brightnessMin must be within [0,1], got %g", c.BrightnessMin)
	}
	if c.Window < 0 {
		return fmt.Errorf("smoothing window must not be negative, got %d", c.Window)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BrightnessController turns raw sensor samples into a smoothed brightness
// factor within [BrightnessMin, 1]. It is not safe for concurrent use; the
// scheduler owns it.
type BrightnessController struct {
	cfg BrightnessConfig
	// readings holds at most cfg.Window samples, oldest first
	readings []float64
}

// NewBrightnessController creates a controller for a validated config
func NewBrightnessController(cfg BrightnessConfig) *BrightnessController {
	return &BrightnessController{cfg: cfg}
}

// Configure replaces the calibration. The rolling buffer is truncated to the
// newest samples that fit the new window, and retained samples are raised to
// the new floor so the average never drops below it.
func (b *BrightnessController) Configure(cfg BrightnessConfig) {
	b.cfg = cfg

	if cfg.Window <= 1 {
		b.readings = b.readings[:0]
		return
	}
	if excess := len(b.readings) - cfg.Window; excess > 0 {
		b.readings = append(b.readings[:0], b.readings[excess:]...)
	}
	for i, r := range b.readings {
		if r < cfg.BrightnessMin {
			b.readings[i] = cfg.BrightnessMin
		}
	}
}

// Normalize maps a raw sample to [BrightnessMin, 1] rounded to two decimals,
// without touching the rolling buffer.
func (b *BrightnessController) Normalize(raw float64) float64 {
	c := b.cfg
	if math.IsNaN(raw) {
		raw = c.SensorMin
	}
	clamped := math.Max(c.SensorMin, math.Min(raw, c.SensorMax))
	v := math.Round(((clamped-c.SensorMin)/(c.SensorMax-c.SensorMin))*100) / 100
	if math.IsNaN(v) || v < c.BrightnessMin {
		v = c.BrightnessMin
	}
	return math.Min(v, 1)
}

// Update feeds one raw sample and returns the brightness factor to apply
func (b *BrightnessController) Update(raw float64) float64 {
	v := b.Normalize(raw)
	if b.cfg.Window <= 1 {
		return v
	}

	if len(b.readings) >= b.cfg.Window {
		b.readings = append(b.readings[:0], b.readings[len(b.readings)-b.cfg.Window+1:]...)
	}
	b.readings = append(b.readings, v)

	var sum float64
	for _, r := range b.readings {
		sum += r
	}
	mean := sum / float64(len(b.readings))

	// keep float error from leaking outside the floor/ceiling
	if math.IsNaN(mean) {
		return b.cfg.BrightnessMin
	}
	return math.Max(b.cfg.BrightnessMin, math.Min(mean, 1))
}

// Samples returns how many samples the rolling buffer holds
func (b *BrightnessController) Samples() int {
	return len(b.readings)
}
