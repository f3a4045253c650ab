package wordclock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

// ErrSourceUnavailable means the requested parameter has no current reading
var ErrSourceUnavailable = errors.New("brightness parameter unavailable")

// BrightnessSource returns the current raw reading for a parameter
type BrightnessSource interface {
	Read(ctx context.Context, p Parameter) (float64, error)
	// Parameters lists the parameters the source can currently serve
	Parameters(ctx context.Context) ([]string, error)
}

// RedisSensorSource reads the newest sample of a sensor from the
// environmental sorted sets the collector maintains. Parameter.Source is the
// location, Parameter.Name the JSON field inside each sample.
type RedisSensorSource struct {
	redis  redis.Client
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// sensorScanLimit bounds how many recent samples are inspected for a field
const sensorScanLimit = 20

// NewRedisSensorSource creates a source ignoring samples older than maxAge
func NewRedisSensorSource(client redis.Client, maxAge time.Duration, logger *slog.Logger) *RedisSensorSource {
	return &RedisSensorSource{
		redis:  client,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Read returns the newest value of the parameter field
func (s *RedisSensorSource) Read(ctx context.Context, p Parameter) (float64, error) {
	key := redis.EnvironmentalSensorKey(p.Source)
	now := s.now()
	maxScore := float64(now.UnixMilli())
	minScore := float64(now.Add(-s.maxAge).UnixMilli())

	members, err := s.redis.ZRevRangeByScoreWithScores(ctx, key, maxScore, minScore, 0, sensorScanLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}

	for _, m := range members {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(m.Member), &data); err != nil {
			s.logger.Warn("Failed to parse sensor sample", "key", key, "error", err)
			continue
		}
		// samples without this field carry other measurements (e.g. temperature)
		if v, ok := data[p.Name].(float64); ok {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%s on %s: %w", p.Name, p.Source, ErrSourceUnavailable)
}

// Parameters lists "{location}:illuminance" for every environmental sensor
func (s *RedisSensorSource) Parameters(ctx context.Context) ([]string, error) {
	prefix := redis.EnvironmentalSensorKey("")
	keys, err := s.redis.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	params := make([]string, 0, len(keys))
	for _, key := range keys {
		params = append(params, strings.TrimPrefix(key, prefix)+":illuminance")
	}
	sort.Strings(params)
	return params, nil
}

// DaylightSourceName is the source id served by DaylightSource
const DaylightSourceName = "daylight"

// DaylightSource derives a reading from the sun position for clocks without
// a light sensor. Parameter "lux" gives a theoretical outdoor illuminance,
// "altitude" the sun altitude in degrees.
type DaylightSource struct {
	lat, lon float64
	now      func() time.Time
}

// NewDaylightSource creates a source for the given coordinates
func NewDaylightSource(lat, lon float64) *DaylightSource {
	return &DaylightSource{lat: lat, lon: lon, now: time.Now}
}

// Read computes the requested daylight value for the current time
func (d *DaylightSource) Read(ctx context.Context, p Parameter) (float64, error) {
	position := suncalc.GetPosition(d.now(), d.lat, d.lon)
	altitudeDegrees := position.Altitude * (180.0 / math.Pi)

	switch p.Name {
	case "lux":
		// At sun altitude of 90° (overhead) the theoretical max is ~120,000 lux
		if altitudeDegrees <= 0 {
			return 0, nil
		}
		return 120000.0 * math.Sin(position.Altitude), nil
	case "altitude":
		return altitudeDegrees, nil
	default:
		return 0, fmt.Errorf("daylight parameter %q: %w", p.Name, ErrSourceUnavailable)
	}
}

// Parameters lists the daylight parameters
func (d *DaylightSource) Parameters(ctx context.Context) ([]string, error) {
	return []string{DaylightSourceName + ":altitude", DaylightSourceName + ":lux"}, nil
}

// SourceRouter picks a source by Parameter.Source, using the fallback for
// any source id without a dedicated entry.
type SourceRouter struct {
	sources  map[string]BrightnessSource
	fallback BrightnessSource
}

// NewSourceRouter creates a router; fallback may be nil
func NewSourceRouter(fallback BrightnessSource) *SourceRouter {
	return &SourceRouter{sources: make(map[string]BrightnessSource), fallback: fallback}
}

// Handle registers a dedicated source id
func (r *SourceRouter) Handle(source string, s BrightnessSource) {
	r.sources[source] = s
}

// Read dispatches to the source owning p
func (r *SourceRouter) Read(ctx context.Context, p Parameter) (float64, error) {
	if s, ok := r.sources[p.Source]; ok {
		return s.Read(ctx, p)
	}
	if r.fallback == nil {
		return 0, fmt.Errorf("no source %q: %w", p.Source, ErrSourceUnavailable)
	}
	return r.fallback.Read(ctx, p)
}

// Parameters merges the parameters of every source
func (r *SourceRouter) Parameters(ctx context.Context) ([]string, error) {
	var all []string
	if r.fallback != nil {
		params, err := r.fallback.Parameters(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, params...)
	}
	for _, s := range r.sources {
		params, err := s.Parameters(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, params...)
	}
	sort.Strings(all)
	return all, nil
}
