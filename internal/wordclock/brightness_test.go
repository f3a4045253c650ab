package wordclock

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrightnessConfig(window int) BrightnessConfig {
	return BrightnessConfig{SensorMin: 0, SensorMax: 100, BrightnessMin: 0.1, Window: window}
}

func TestBrightnessConfig_Validate(t *testing.T) {
	require.NoError(t, testBrightnessConfig(5).Validate())

	bad := []BrightnessConfig{
		{SensorMin: 10, SensorMax: 10, BrightnessMin: 0.1},
		{SensorMin: 20, SensorMax: 10, BrightnessMin: 0.1},
		{SensorMin: 0, SensorMax: 10, BrightnessMin: -0.1},
		{SensorMin: 0, SensorMax: 10, BrightnessMin: 1.5},
		{SensorMin: 0, SensorMax: 10, BrightnessMin: 0.1, Window: -1},
		{SensorMin: math.NaN(), SensorMax: 10, BrightnessMin: 0.1},
		{SensorMin: 0, SensorMax: math.Inf(1), BrightnessMin: 0.1},
		{SensorMin: math.Inf(-1), SensorMax: 10, BrightnessMin: 0.1},
		{SensorMin: -math.MaxFloat64, SensorMax: math.MaxFloat64, BrightnessMin: 0.1},
	}
	for _, cfg := range bad {
		assert.Error(t, cfg.Validate(), "%+v", cfg)
	}
}

func TestBrightnessController_Normalize(t *testing.T) {
	b := NewBrightnessController(testBrightnessConfig(0))

	assert.InDelta(t, 0.5, b.Normalize(50), 1e-9)
	assert.InDelta(t, 0.33, b.Normalize(33.3), 1e-9, "two decimal rounding")
	assert.InDelta(t, 0.13, b.Normalize(12.5), 1e-9, "half rounds away from zero")
	assert.InDelta(t, 1.0, b.Normalize(5000), 1e-9, "clamped to sensorMax")
	assert.InDelta(t, 0.1, b.Normalize(-50), 1e-9, "clamped then floored")
	assert.InDelta(t, 0.1, b.Normalize(4), 1e-9, "floored to brightnessMin")
}

func TestBrightnessController_NoSmoothing(t *testing.T) {
	for _, window := range []int{0, 1} {
		b := NewBrightnessController(testBrightnessConfig(window))

		assert.InDelta(t, 0.8, b.Update(80), 1e-9)
		assert.InDelta(t, 0.2, b.Update(20), 1e-9)
		assert.Equal(t, 0, b.Samples(), "window %d keeps no state", window)
	}
}

func TestBrightnessController_RollingAverage(t *testing.T) {
	b := NewBrightnessController(testBrightnessConfig(3))

	assert.InDelta(t, 0.3, b.Update(30), 1e-9)
	assert.InDelta(t, 0.45, b.Update(60), 1e-9)
	assert.InDelta(t, 0.5, b.Update(60), 1e-9)
	// oldest (0.3) evicted
	assert.InDelta(t, 2.2/3, b.Update(100), 1e-9)
	assert.Equal(t, 3, b.Samples())
}

func TestBrightnessController_SteadyState(t *testing.T) {
	cfg := BrightnessConfig{SensorMin: 0.5, SensorMax: 30000, BrightnessMin: 0.1, Window: 5}
	b := NewBrightnessController(cfg)
	single := NewBrightnessController(BrightnessConfig{SensorMin: 0.5, SensorMax: 30000, BrightnessMin: 0.1})

	// prime with a different level so the steady state has to be earned
	for i := 0; i < 5; i++ {
		b.Update(30000)
	}

	var got float64
	for i := 0; i < cfg.Window; i++ {
		got = b.Update(12345)
	}
	assert.InDelta(t, single.Update(12345), got, 1e-9)
}

func TestBrightnessController_OutputBounds(t *testing.T) {
	b := NewBrightnessController(BrightnessConfig{SensorMin: 0.5, SensorMax: 30000, BrightnessMin: 0.25, Window: 4})

	inputs := []float64{-1e9, 0, 0.5, 1, 7500, 29999, 30000, 1e12, math.Inf(1), math.Inf(-1), math.NaN()}
	for _, in := range inputs {
		got := b.Update(in)
		assert.GreaterOrEqual(t, got, 0.25, "input %g", in)
		assert.LessOrEqual(t, got, 1.0, "input %g", in)
	}

	// unvalidated range whose span overflows still stays in bounds
	wide := NewBrightnessController(BrightnessConfig{SensorMin: -math.MaxFloat64, SensorMax: math.MaxFloat64, BrightnessMin: 0.1, Window: 3})
	for _, in := range []float64{math.MaxFloat64, -math.MaxFloat64, 0, math.NaN()} {
		got := wide.Update(in)
		assert.False(t, math.IsNaN(got), "input %g", in)
		assert.GreaterOrEqual(t, got, 0.1, "input %g", in)
		assert.LessOrEqual(t, got, 1.0, "input %g", in)
	}
}

func TestBrightnessController_ConfigureShrinksWindow(t *testing.T) {
	b := NewBrightnessController(testBrightnessConfig(5))
	for _, s := range []float64{10, 20, 30, 40, 50} {
		b.Update(s)
	}
	require.Equal(t, 5, b.Samples())

	b.Configure(testBrightnessConfig(2))
	assert.Equal(t, 2, b.Samples(), "truncated synchronously")

	// newest samples (0.4, 0.5) were retained; 0.4 drops out now
	assert.InDelta(t, 0.75, b.Update(100), 1e-9)

	b.Configure(testBrightnessConfig(0))
	assert.Equal(t, 0, b.Samples())
}

func TestBrightnessController_ConfigureGrowsWindow(t *testing.T) {
	b := NewBrightnessController(testBrightnessConfig(2))
	b.Update(20)
	b.Update(40)

	b.Configure(testBrightnessConfig(4))
	assert.Equal(t, 2, b.Samples(), "shorter buffer after a resize is expected")
	assert.InDelta(t, 0.4, b.Update(60), 1e-9)
}

func TestBrightnessController_ConfigureRaisesFloor(t *testing.T) {
	b := NewBrightnessController(testBrightnessConfig(3))
	b.Update(0)
	b.Update(0)

	cfg := testBrightnessConfig(3)
	cfg.BrightnessMin = 0.6
	b.Configure(cfg)

	assert.GreaterOrEqual(t, b.Update(0), 0.6)
}
