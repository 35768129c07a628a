package ekf

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmagnav-engine/mapping"
)

// planeSource is a mapping.RasterSource over a linear field
// B(lat,lon) = 1000 + 500*lat + 300*lon, which bilinear interpolation
// reproduces exactly regardless of grid resolution.
type planeSource struct {
	header mapping.MapHeader
}

func newPlaneSource() *planeSource {
	return &planeSource{header: mapping.MapHeader{
		NRows: 11, NCols: 11,
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

func TestResetExact(t *testing.T) {
	k := New(DefaultConfig(), 10, 20)
	require.NoError(t, k.Reset(1, 2))
	st := k.State()
	assert.Equal(t, State{Lat: 1, Lon: 2, VLat: 0, VLon: 0}, st)
	diag := k.CovarianceDiag()
	assert.Equal(t, defaultPositionVar0, diag[0])
	assert.Equal(t, defaultVelocityVar0, diag[2])
}

func TestPredictZeroIsNoOp(t *testing.T) {
	k := New(DefaultConfig(), 1, 2)
	before := k.State()
	beforeDiag := k.CovarianceDiag()
	require.NoError(t, k.Predict(0))
	assert.Equal(t, before, k.State())
	assert.Equal(t, beforeDiag, k.CovarianceDiag())
}

func TestPredictRejectsNegativeDt(t *testing.T) {
	k := New(DefaultConfig(), 0, 0)
	err := k.Predict(-1)
	require.Error(t, err)
	var de *DomainError
	require.ErrorAs(t, err, &de)
}

func TestUpdateOutOfMapReportsZeroQuality(t *testing.T) {
	k := New(DefaultConfig(), -5, -5) // well outside the plane grid
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	require.NoError(t, k.Predict(1))
	postPredict := k.State()

	res, err := k.Update(1400, m)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Quality)
	assert.False(t, res.Applied)
	assert.Equal(t, postPredict, k.State())
}

func TestUpdateRejectsNonFiniteObservation(t *testing.T) {
	k := New(DefaultConfig(), 0, 0)
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	_, err := k.Update(math.NaN(), m)
	require.Error(t, err)
}

func TestPUpdateStaysSymmetricAndNonNegative(t *testing.T) {
	k := New(DefaultConfig(), 0.5, 0.5)
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	require.NoError(t, k.Predict(1))
	_, err := k.Update(1400, m)
	require.NoError(t, err)

	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			assert.InDelta(t, k.p[i][j], k.p[j][i], 1e-12)
		}
		assert.GreaterOrEqual(t, k.p[i][i], 0.0)
	}
}

func TestConvergesOnStaticPoint(t *testing.T) {
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	cfg := DefaultConfig()
	cfg.MeasurementVar = 1.0
	k := New(cfg, 0.4, 0.4)

	rng := rand.New(rand.NewSource(1))
	trueB := 1000 + 500*0.5 + 300*0.5 // == 1400

	for i := 0; i < 200; i++ {
		require.NoError(t, k.Predict(1))
		obs := trueB + rng.NormFloat64()*1.0
		_, err := k.Update(obs, m)
		require.NoError(t, err)
	}

	st := k.State()
	assert.InDelta(t, 0.5, st.Lat, 0.01)
	assert.InDelta(t, 0.5, st.Lon, 0.01)
}
