// Package simulate generates synthetic (lat, lon, B_true, B_noisy)
// trajectories against a loaded magnetic-anomaly map, for exercising the
// filter and the tool/CLI surfaces without real sensor hardware.
package simulate

import (
	"fmt"
	"math"
	"math/rand"

	"qmagnav-engine/geo"
	"qmagnav-engine/mapping"
)

// ConfigError signals an invalid simulation request.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("simulate: %s: %s", e.Op, e.Msg) }
func (e *ConfigError) Kind() string  { return "ConfigError" }

// PathType selects the shape a simulated trajectory takes between Start
// and End. A small closed tag set, dispatched by value.
type PathType string

const (
	Straight PathType = "straight"
	Curved   PathType = "curved"
	Random   PathType = "random"
)

// Config parameterizes one simulation run. Seed is explicit: the same
// Config always produces the same sequence, which is what makes this
// usable in tests.
type Config struct {
	Start, End    geo.LatLon
	SpeedMPS      float64
	SampleRateHz  float64
	NoiseStddevNT float64
	Path          PathType
	Seed          int64
}

// Sample is one point along a simulated trajectory.
type Sample struct {
	T             float64
	Lat, Lon      float64
	BTrue, BNoisy float64
}

// Run generates a trajectory from cfg.Start to cfg.End, sampling the
// magnetic field against m at each step. Missing map coverage yields
// NaN for that sample's field rather than aborting the run.
func Run(cfg Config, m *mapping.MagneticMap) ([]Sample, error) {
	if cfg.SpeedMPS <= 0 {
		return nil, &ConfigError{Op: "Run", Msg: "speed must be > 0"}
	}
	if cfg.SampleRateHz <= 0 {
		return nil, &ConfigError{Op: "Run", Msg: "sample rate must be > 0"}
	}
	if cfg.NoiseStddevNT < 0 {
		return nil, &ConfigError{Op: "Run", Msg: "noise stddev must be >= 0"}
	}

	distance := geo.DistanceM(cfg.Start, cfg.End)
	dt := 1.0 / cfg.SampleRateHz
	duration := distance / cfg.SpeedMPS

	n := int(math.Ceil(duration/dt)) + 1
	if n < 1 {
		n = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		frac := 1.0
		if duration > 0 {
			frac = t / duration
			if frac > 1 {
				frac = 1
			}
		}

		lat, lon := pathPoint(cfg.Path, cfg.Start, cfg.End, frac, rng)

		bTrue := math.NaN()
		if m != nil {
			if v, err := m.Interpolate(lat, lon, mapping.Bilinear); err == nil {
				bTrue = v
			}
		}
		bNoisy := bTrue
		if !math.IsNaN(bTrue) {
			bNoisy = bTrue + rng.NormFloat64()*cfg.NoiseStddevNT
		}

		samples = append(samples, Sample{T: t, Lat: lat, Lon: lon, BTrue: bTrue, BNoisy: bNoisy})
	}
	return samples, nil
}

// pathPoint interpolates between start and end at fraction frac
// (0 at start, 1 at end) along the requested path shape.
func pathPoint(path PathType, start, end geo.LatLon, frac float64, rng *rand.Rand) (lat, lon float64) {
	baseLat := start.Lat + frac*(end.Lat-start.Lat)
	baseLon := start.Lon + frac*(end.Lon-start.Lon)

	switch path {
	case Curved:
		// Perpendicular sinusoidal offset, zero at both endpoints.
		dLat := end.Lat - start.Lat
		dLon := end.Lon - start.Lon
		norm := math.Hypot(dLat, dLon)
		if norm < 1e-12 {
			return baseLat, baseLon
		}
		perpLat, perpLon := -dLon/norm, dLat/norm
		amplitude := 0.1 * norm
		offset := amplitude * math.Sin(math.Pi*frac)
		return baseLat + perpLat*offset, baseLon + perpLon*offset
	case Random:
		// Brownian-bridge-style jitter: zero variance at the endpoints,
		// maximal at the midpoint, deterministic given rng's seed.
		dLat := end.Lat - start.Lat
		dLon := end.Lon - start.Lon
		norm := math.Hypot(dLat, dLon)
		envelope := 0.05 * norm * math.Sin(math.Pi*frac)
		return baseLat + envelope*rng.NormFloat64(), baseLon + envelope*rng.NormFloat64()
	default: // Straight
		return baseLat, baseLon
	}
}
