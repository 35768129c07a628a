// Package ekf implements the constant-velocity extended Kalman filter
// that fuses magnetic-anomaly observations into a geodetic position
// estimate. The state and covariance are kept as plain [][]float64 —
// mirroring the fixed-size hand-rolled matrix style the fusion engine
// already used for its own EKF — rather than a general linear-algebra
// library, since the state is always exactly 4-dimensional.
package ekf

import (
	"fmt"
	"math"

	"qmagnav-engine/mapping"
)

// DomainError signals a physically invalid input to the filter: a
// negative time step, non-finite state, or a covariance that would
// become non-finite.
type DomainError struct {
	Op  string
	Msg string
}

func (e *DomainError) Error() string { return fmt.Sprintf("ekf: %s: %s", e.Op, e.Msg) }
func (e *DomainError) Kind() string  { return "DomainError" }

func newDomainError(op, format string, args ...interface{}) error {
	return &DomainError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

const stateDim = 4

// Config holds the filter's tunable physical parameters, all with
// documented units.
type Config struct {
	// PositionJitterVar is qp, the position process-noise density in
	// deg^2/s.
	PositionJitterVar float64
	// VelocityWalkVar is qv, the velocity random-walk process-noise
	// density in deg^2/s^3.
	VelocityWalkVar float64
	// MeasurementVar is R, the magnetic observation variance in nT^2.
	MeasurementVar float64
	// FiniteDiffStepDeg is the central finite-difference step used to
	// build the measurement Jacobian, in degrees.
	FiniteDiffStepDeg float64
	// MinInnovationVariance is the floor S must clear for an update to
	// be applied; below it the update is skipped and quality is 0.
	MinInnovationVariance float64
}

// DefaultConfig returns the filter's documented default tuning.
func DefaultConfig() Config {
	return Config{
		PositionJitterVar:     1e-10,
		VelocityWalkVar:       1e-12,
		MeasurementVar:        1.0,
		FiniteDiffStepDeg:     1e-5,
		MinInnovationVariance: 1e-12,
	}
}

// State is a snapshot of the filter's estimate: latitude, longitude
// (degrees) and their rates (degrees/second).
type State struct {
	Lat, Lon, VLat, VLon float64
}

// NavEKF is a constant-velocity extended Kalman filter over geodetic
// position and velocity, observed through a magnetic-anomaly map.
type NavEKF struct {
	cfg Config
	x   []float64   // [lat, lon, vlat, vlon]
	p   [][]float64 // 4x4, symmetric positive semi-definite
}

// New constructs a filter initialized at (lat0, lon0) with zero
// velocity and the default startup covariance (defaultPositionVar0 and
// defaultVelocityVar0 below); cfg does not set the initial covariance.
func New(cfg Config, lat0, lon0 float64) *NavEKF {
	k := &NavEKF{cfg: cfg}
	k.reset(lat0, lon0)
	return k
}

const (
	defaultPositionVar0 = 1e-4 // (deg)^2
	defaultVelocityVar0 = 1e-6 // (deg/s)^2
)

func (k *NavEKF) reset(lat0, lon0 float64) {
	k.x = []float64{lat0, lon0, 0, 0}
	k.p = zeroMat(stateDim, stateDim)
	k.p[0][0] = defaultPositionVar0
	k.p[1][1] = defaultPositionVar0
	k.p[2][2] = defaultVelocityVar0
	k.p[3][3] = defaultVelocityVar0
}

// Reset re-initializes the filter at (lat0, lon0) with zero velocity
// and the default startup covariance.
func (k *NavEKF) Reset(lat0, lon0 float64) error {
	if !allFinite(lat0, lon0) {
		return newDomainError("Reset", "non-finite reset position (%v, %v)", lat0, lon0)
	}
	k.reset(lat0, lon0)
	return nil
}

// State returns the filter's current estimate.
func (k *NavEKF) State() State {
	return State{Lat: k.x[0], Lon: k.x[1], VLat: k.x[2], VLon: k.x[3]}
}

// CovarianceDiag returns the diagonal of P, in the same order as State's
// fields.
func (k *NavEKF) CovarianceDiag() [4]float64 {
	return [4]float64{k.p[0][0], k.p[1][1], k.p[2][2], k.p[3][3]}
}

// Predict advances the state by dt seconds under the constant-velocity
// model. dt == 0 is a no-op; dt < 0 fails with DomainError.
func (k *NavEKF) Predict(dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		return newDomainError("Predict", "non-finite dt %v", dt)
	}
	if dt < 0 {
		return newDomainError("Predict", "negative dt %v", dt)
	}
	if dt == 0 {
		return nil
	}

	f := identity(stateDim)
	f[0][2] = dt
	f[1][3] = dt

	q := zeroMat(stateDim, stateDim)
	q[0][0] = k.cfg.PositionJitterVar * dt
	q[1][1] = k.cfg.PositionJitterVar * dt
	q[2][2] = k.cfg.VelocityWalkVar * dt
	q[3][3] = k.cfg.VelocityWalkVar * dt

	k.x = matVec(f, k.x)
	k.p = matAdd(matMul(f, matMul(k.p, transpose(f))), q)
	return nil
}

// UpdateResult reports the outcome of a single Update call.
type UpdateResult struct {
	// Quality is in [0, 1]; 0 means the update was skipped.
	Quality float64
	// Applied is false when the map lookup failed or the innovation
	// covariance was too small to trust — the state was left at its
	// post-predict value.
	Applied bool
}

// Update assimilates a scalar magnetic-anomaly observation zObs (nT)
// against m, correcting position (and, through cross-covariance,
// velocity). A map miss or ill-conditioned innovation degrades
// gracefully: the update is skipped and UpdateResult.Quality is 0,
// rather than failing the call.
func (k *NavEKF) Update(zObs float64, m *mapping.MagneticMap) (UpdateResult, error) {
	if math.IsNaN(zObs) || math.IsInf(zObs, 0) {
		return UpdateResult{}, newDomainError("Update", "non-finite observation %v", zObs)
	}

	h, hLat, hLon, ok := k.measurementJacobian(m)
	if !ok {
		return UpdateResult{Quality: 0, Applied: false}, nil
	}

	y := zObs - h
	hRow := []float64{hLat, hLon, 0, 0}

	// S = H P H^T + R
	phT := matVec(k.p, hRow)
	s := dot(hRow, phT) + k.cfg.MeasurementVar
	if s < k.cfg.MinInnovationVariance {
		return UpdateResult{Quality: 0, Applied: false}, nil
	}

	// K = P H^T / S
	gain := make([]float64, stateDim)
	for i := range gain {
		gain[i] = phT[i] / s
	}

	// Joseph form: P = (I-KH) P (I-KH)^T + K R K^T
	ikh := identity(stateDim)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			ikh[i][j] -= gain[i] * hRow[j]
		}
	}
	term1 := matMul(ikh, matMul(k.p, transpose(ikh)))
	term2 := outerScaled(gain, gain, k.cfg.MeasurementVar)
	newP := symmetrize(matAdd(term1, term2))
	for i := range newP {
		if !allFinite(newP[i]...) {
			return UpdateResult{}, newDomainError("Update", "non-finite covariance after update")
		}
	}
	clampDiagNonNegative(newP)

	for i := range k.x {
		k.x[i] += gain[i] * y
	}
	k.p = newP

	quality := math.Exp(-(y * y) / (2 * s))
	return UpdateResult{Quality: quality, Applied: true}, nil
}

// measurementJacobian evaluates h(x) = map.Interpolate(lat, lon) and its
// partials w.r.t. lat and lon by central finite difference. ok is false
// if the centre or either finite-difference offset falls outside the
// map or lands on nodata.
func (k *NavEKF) measurementJacobian(m *mapping.MagneticMap) (h, hLat, hLon float64, ok bool) {
	step := k.cfg.FiniteDiffStepDeg
	lat, lon := k.x[0], k.x[1]

	center, err := m.Interpolate(lat, lon, mapping.Bilinear)
	if err != nil || math.IsNaN(center) {
		return 0, 0, 0, false
	}

	latPlus, err1 := m.Interpolate(lat+step, lon, mapping.Bilinear)
	latMinus, err2 := m.Interpolate(lat-step, lon, mapping.Bilinear)
	if err1 != nil || err2 != nil || math.IsNaN(latPlus) || math.IsNaN(latMinus) {
		return 0, 0, 0, false
	}

	lonPlus, err3 := m.Interpolate(lat, lon+step, mapping.Bilinear)
	lonMinus, err4 := m.Interpolate(lat, lon-step, mapping.Bilinear)
	if err3 != nil || err4 != nil || math.IsNaN(lonPlus) || math.IsNaN(lonMinus) {
		return 0, 0, 0, false
	}

	hLat = (latPlus - latMinus) / (2 * step)
	hLon = (lonPlus - lonMinus) / (2 * step)
	return center, hLat, hLon, true
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
