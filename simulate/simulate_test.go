package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmagnav-engine/geo"
	"qmagnav-engine/mapping"
)

type planeSource struct{ header mapping.MapHeader }

func newPlaneSource() *planeSource {
	return &planeSource{header: mapping.MapHeader{
		NRows: 21, NCols: 21,
		Lat0: 0, Lon0: 0,
		DLat: 0.1, DLon: 0.1,
		NodataSentinel: -9999,
	}}
}

func (s *planeSource) Header() mapping.MapHeader { return s.header }

func (s *planeSource) ReadTile(row0, col0, nrows, ncols int) ([]float32, error) {
	out := make([]float32, nrows*ncols)
	for i := 0; i < nrows; i++ {
		lat := s.header.Lat0 + float64(row0+i)*s.header.DLat
		for j := 0; j < ncols; j++ {
			lon := s.header.Lon0 + float64(col0+j)*s.header.DLon
			out[i*ncols+j] = float32(1000 + 500*lat + 300*lon)
		}
	}
	return out, nil
}

func (s *planeSource) Close() error { return nil }

func baseConfig() Config {
	return Config{
		Start:         geo.LatLon{Lat: 0.2, Lon: 0.2},
		End:           geo.LatLon{Lat: 1.5, Lon: 1.5},
		SpeedMPS:      10,
		SampleRateHz:  1,
		NoiseStddevNT: 0,
		Path:          Straight,
		Seed:          42,
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.SpeedMPS = 0
	_, err := Run(cfg, nil)
	require.Error(t, err)
}

func TestRunStraightEndpoints(t *testing.T) {
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	cfg := baseConfig()
	samples, err := Run(cfg, m)
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.InDelta(t, cfg.Start.Lat, samples[0].Lat, 1e-9)
	assert.InDelta(t, cfg.Start.Lon, samples[0].Lon, 1e-9)
	last := samples[len(samples)-1]
	assert.InDelta(t, cfg.End.Lat, last.Lat, 1e-9)
	assert.InDelta(t, cfg.End.Lon, last.Lon, 1e-9)
}

func TestRunDeterministicForSameSeed(t *testing.T) {
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	cfg := baseConfig()
	cfg.Path = Random
	cfg.NoiseStddevNT = 5

	a, err := Run(cfg, m)
	require.NoError(t, err)
	b, err := Run(cfg, m)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRunCurvedDeviatesFromStraightMidway(t *testing.T) {
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	straightCfg := baseConfig()
	curvedCfg := baseConfig()
	curvedCfg.Path = Curved

	straight, err := Run(straightCfg, m)
	require.NoError(t, err)
	curved, err := Run(curvedCfg, m)
	require.NoError(t, err)

	mid := len(straight) / 2
	assert.NotEqual(t, straight[mid].Lat, curved[mid].Lat)
}

func TestRunBTrueMatchesPlaneField(t *testing.T) {
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	cfg := baseConfig()
	samples, err := Run(cfg, m)
	require.NoError(t, err)
	for _, s := range samples {
		want := 1000 + 500*s.Lat + 300*s.Lon
		assert.InDelta(t, want, s.BTrue, 1e-6)
		assert.Equal(t, s.BTrue, s.BNoisy) // zero noise stddev
	}
}
