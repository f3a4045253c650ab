package wordclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	clock   *flagClock
	source  *staticSource
	sink    *recordingSink
	journal *recordingJournal
	sched   *Scheduler
}

func newSchedulerFixture(hour, minute int) *schedulerFixture {
	f := &schedulerFixture{
		clock:   &flagClock{hour: hour, minute: minute},
		source:  &staticSource{},
		sink:    &recordingSink{},
		journal: &recordingJournal{},
	}
	f.clock.synced.Store(true)
	l := DefaultLayout()
	f.sched = NewScheduler("hall", l, l.Pixels(), f.clock, f.source, f.sink, f.journal, time.Second, testLogger())
	return f
}

func testSettings() *Settings {
	s := DefaultSettings("hall")
	s.Controller = "strip1"
	return s
}

func autoSettings(window int) *Settings {
	s := testSettings()
	s.AutoBrightness = true
	s.BrightnessParameter = Parameter{Source: "hall", Name: "illuminance"}
	s.SensorMin = 0
	s.SensorMax = 100
	s.Smoothing = window
	return s
}

func TestScheduler_FirstTriggerRenders(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := testSettings()
	f.sched.Configure(settings)

	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)

	assert.True(t, res.Rendered)
	assert.Equal(t, 15, res.Bucket)
	assert.Equal(t, 1, f.sink.count())
	assert.Equal(t, "strip1", f.sink.targets[0])
	assert.Len(t, f.sink.last(), 70)

	state := f.sched.State()
	assert.Equal(t, 15, state.LastBucket)
	assert.Equal(t, 1.0, state.LastBrightness)
}

func TestScheduler_UnchangedTicksDoNotDispatch(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := testSettings()
	f.sched.Configure(settings)

	_, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)

	// same bucket, same brightness
	f.clock.setMinute(17)
	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.False(t, res.Rendered)

	res, err = f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.False(t, res.Rendered)

	assert.Equal(t, 1, f.sink.count())
}

func TestScheduler_ForceAlwaysDispatches(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := testSettings()
	f.sched.Configure(settings)

	for i := 0; i < 3; i++ {
		res, err := f.sched.Trigger(context.Background(), settings, true)
		require.NoError(t, err)
		assert.True(t, res.Rendered)
	}
	assert.Equal(t, 3, f.sink.count())
}

func TestScheduler_BucketChangeDispatches(t *testing.T) {
	f := newSchedulerFixture(3, 19)
	settings := testSettings()
	f.sched.Configure(settings)

	_, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)

	f.clock.setMinute(20)
	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.True(t, res.Rendered)
	assert.False(t, res.Forced)
	assert.Equal(t, 2, f.sink.count())
}

func TestScheduler_BrightnessChangeForcesRender(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := autoSettings(0)
	f.sched.Configure(settings)

	f.source.set(50)
	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	require.True(t, res.Rendered)
	assert.InDelta(t, 0.5, res.Brightness, 1e-9)
	assert.Equal(t, Color{64, 64, 64}, f.sink.last()[quarterPixel(t)])

	// same reading, same bucket
	res, err = f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.False(t, res.Rendered)

	f.source.set(80)
	res, err = f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.True(t, res.Rendered)
	assert.True(t, res.Forced)
	assert.Equal(t, 2, f.sink.count())
}

// quarterPixel is the first pixel of the fifteen-minute word on the default face
func quarterPixel(t *testing.T) int {
	t.Helper()
	return DefaultLayout().Minutes(15).Low
}

func TestScheduler_UnavailableSourceUsesFullBrightness(t *testing.T) {
	f := newSchedulerFixture(3, 0)
	settings := autoSettings(0)
	f.sched.Configure(settings)

	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.True(t, res.Rendered)
	assert.Equal(t, 1.0, res.Brightness)
	assert.Equal(t, 1, f.source.reads)

	oclock := DefaultLayout().Word(WordOClock)
	assert.Equal(t, Color{127, 127, 127}, f.sink.last()[oclock.Low])
}

func TestScheduler_DisabledBrightnessSkipsSource(t *testing.T) {
	f := newSchedulerFixture(3, 0)
	settings := testSettings()
	f.sched.Configure(settings)
	f.source.set(10)

	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Brightness)
	assert.Equal(t, 0, f.source.reads)
}

func TestScheduler_NoParameterSkipsSource(t *testing.T) {
	f := newSchedulerFixture(3, 0)
	settings := autoSettings(0)
	settings.BrightnessParameter = Parameter{}
	f.sched.Configure(settings)
	f.source.set(10)

	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Brightness)
	assert.Equal(t, 0, f.source.reads)
}

func TestScheduler_DispatchFailureKeepsState(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := testSettings()
	f.sched.Configure(settings)

	_, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	before := f.sched.State()

	f.clock.setMinute(25)
	f.sink.setErr(errDispatch)
	res, err := f.sched.Trigger(context.Background(), settings, false)
	assert.ErrorIs(t, err, errDispatch)
	assert.False(t, res.Rendered)
	assert.Equal(t, before, f.sched.State())

	// next trigger retries with the same inputs
	f.sink.setErr(nil)
	res, err = f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.True(t, res.Rendered)
	assert.Equal(t, 25, f.sched.State().LastBucket)

	require.Len(t, f.journal.events, 3)
	assert.ErrorIs(t, f.journal.events[1].Err, errDispatch)
	assert.NoError(t, f.journal.events[2].Err)
}

func TestScheduler_NoControllerIsNoop(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := DefaultSettings("hall")
	f.sched.Configure(settings)

	res, err := f.sched.Trigger(context.Background(), settings, true)
	require.NoError(t, err)
	assert.False(t, res.Rendered)
	assert.Equal(t, 0, f.sink.count())
}

func TestScheduler_SmoothingSteadyState(t *testing.T) {
	f := newSchedulerFixture(3, 15)
	settings := autoSettings(3)
	f.sched.Configure(settings)

	f.source.set(40)
	var res TriggerResult
	for i := 0; i < 3; i++ {
		var err error
		res, err = f.sched.Trigger(context.Background(), settings, false)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.4, res.Brightness, 1e-9)

	// steady state: no more renders
	res, err := f.sched.Trigger(context.Background(), settings, false)
	require.NoError(t, err)
	assert.False(t, res.Rendered)
}

func TestScheduler_HourWrapRendersNextHour(t *testing.T) {
	f := newSchedulerFixture(12, 50)
	settings := testSettings()
	f.sched.Configure(settings)

	_, err := f.sched.Trigger(context.Background(), settings, true)
	require.NoError(t, err)

	l := DefaultLayout()
	frame := f.sink.last()
	assert.Equal(t, Color{127, 127, 127}, frame[l.Hour(1).Low])
	assert.Equal(t, Color{0, 0, 0}, frame[l.Hour(12).Low])
	assert.Equal(t, Color{127, 127, 127}, frame[l.Word(WordTo).Low])
}
