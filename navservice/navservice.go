// Package navservice holds the singleton {NavEKF, MagneticMap,
// Conditioner} triple that backs both the HTTP and tool-call transports,
// serializing filter mutation behind one mutex while leaving map reads
// unsynchronized (the map is read-only, internally-cached state).
package navservice

import (
	"fmt"
	"sync"

	"qmagnav-engine/calib"
	"qmagnav-engine/ekf"
	"qmagnav-engine/mapping"
	"qmagnav-engine/simulate"
)

// ConfigError signals a construction-time mistake building the service.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("navservice: %s: %s", e.Op, e.Msg) }
func (e *ConfigError) Kind() string  { return "ConfigError" }

// Estimate is the result of Observe: the filter's post-update position
// estimate and its quality.
type Estimate struct {
	Lat, Lon float64
	Quality  float64
}

// Service is the process-lifetime navigation object: one filter mutex
// guarding NavEKF mutation, a read-only map, and a sensor conditioner.
// It is not a package-level global — callers construct one and pass it
// by handle to whichever transport (HTTP or tool server) is active.
type Service struct {
	mu          sync.Mutex
	filter      *ekf.NavEKF
	conditioner *calib.Conditioner
	nav         *mapping.MagneticMap
}

// New constructs a navigation service. m may be nil to represent "no map
// loaded"; map-dependent operations then fail with ConfigError so the
// HTTP layer can surface 503.
func New(filter *ekf.NavEKF, conditioner *calib.Conditioner, m *mapping.MagneticMap) (*Service, error) {
	if filter == nil {
		return nil, &ConfigError{Op: "New", Msg: "filter must not be nil"}
	}
	if conditioner == nil {
		conditioner = mustIdentityConditioner()
	}
	return &Service{filter: filter, conditioner: conditioner, nav: m}, nil
}

func mustIdentityConditioner() *calib.Conditioner {
	c, err := calib.NewConditioner(calib.Identity(), 1)
	if err != nil {
		panic(err)
	}
	return c
}

// HasMap reports whether a magnetic-anomaly map is loaded.
func (s *Service) HasMap() bool { return s.nav != nil }

// Observe conditions raw, predicts the filter forward by dt, updates
// against the loaded map using the conditioned scalar field magnitude,
// and returns the resulting position estimate. The whole
// condition-predict-update sequence executes under the filter mutex.
func (s *Service) Observe(raw calib.Vector3, dt float64) (Estimate, error) {
	if s.nav == nil {
		return Estimate{}, &ConfigError{Op: "Observe", Msg: "no map loaded"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	smoothed := s.conditioner.Push(raw)
	zObs := calib.Magnitude(smoothed)

	if err := s.filter.Predict(dt); err != nil {
		return Estimate{}, err
	}
	res, err := s.filter.Update(zObs, s.nav)
	if err != nil {
		return Estimate{}, err
	}

	st := s.filter.State()
	return Estimate{Lat: st.Lat, Lon: st.Lon, Quality: res.Quality}, nil
}

// State returns the filter's full current state. It takes the filter
// mutex, so it is serialized against concurrent Observe/Reset calls.
func (s *Service) State() ekf.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.State()
}

// CovarianceDiag returns the filter's current covariance diagonal.
func (s *Service) CovarianceDiag() [4]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.CovarianceDiag()
}

// QueryField resolves the anomaly value at (lat, lon) directly against
// the map, taking no filter lock — safe to call concurrently with
// Observe/Reset and with other QueryField calls.
func (s *Service) QueryField(lat, lon float64, method mapping.Method) (float64, error) {
	if s.nav == nil {
		return 0, &ConfigError{Op: "QueryField", Msg: "no map loaded"}
	}
	return s.nav.Interpolate(lat, lon, method)
}

// Simulate generates a synthetic trajectory against the loaded map. It
// takes no filter lock: the map is read-only shared state.
func (s *Service) Simulate(cfg simulate.Config) ([]simulate.Sample, error) {
	if s.nav == nil {
		return nil, &ConfigError{Op: "Simulate", Msg: "no map loaded"}
	}
	return simulate.Run(cfg, s.nav)
}

// Reset re-initializes the filter at (lat, lon) under the filter mutex.
func (s *Service) Reset(lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Reset(lat, lon)
}
