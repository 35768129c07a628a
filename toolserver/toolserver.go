// Package toolserver exposes the navigation service as a set of
// callable tools over a newline-delimited JSON stdio protocol, mirroring
// the shape of the original QMagNavServer's dispatch-by-name handling
// without depending on any particular AI-assistant SDK (none appears
// anywhere in the retrieved corpus).
package toolserver

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"qmagnav-engine/calib"
	"qmagnav-engine/geo"
	"qmagnav-engine/mapping"
	"qmagnav-engine/navservice"
	"qmagnav-engine/simulate"
)

// Kinder mirrors httpapi's error-kind accessor so this transport can map
// a typed error to a structured tool error without inspecting strings.
type Kinder interface {
	Kind() string
}

// call is one line of tool-server input.
type call struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolError is the structured error payload returned to the caller.
type toolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  *toolError  `json:"error,omitempty"`
}

// Handler is one named tool's implementation: decode arguments, do the
// work, return a JSON-serializable result or an error.
type Handler func(raw json.RawMessage) (interface{}, error)

// Server dispatches newline-delimited tool calls from an io.Reader to
// registered handlers and writes one JSON response per line to an
// io.Writer.
type Server struct {
	handlers map[string]Handler
	log      *logrus.Logger
}

// New builds a tool server exposing the four navigation tools:
// query_magnetic_field, estimate_position, calibrate_sensor and
// simulate_trajectory, backed by svc.
func New(svc *navservice.Service, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{handlers: make(map[string]Handler), log: log}
	s.handlers["query_magnetic_field"] = queryMagneticFieldHandler(svc)
	s.handlers["estimate_position"] = estimatePositionHandler(svc)
	s.handlers["calibrate_sensor"] = calibrateSensorHandler()
	s.handlers["simulate_trajectory"] = simulateTrajectoryHandler(svc)
	return s
}

// Serve reads one JSON call object per line from r and writes one JSON
// response object per line to w, until r is exhausted, a read error
// occurs, or a response cannot be encoded or written to w.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.dispatch(line)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(line []byte) response {
	var c call
	if err := json.Unmarshal(line, &c); err != nil {
		return response{Error: &toolError{Kind: "ProtocolError", Message: err.Error()}}
	}

	handler, ok := s.handlers[c.Tool]
	if !ok {
		return response{Error: &toolError{Kind: "ProtocolError", Message: "unknown tool: " + c.Tool}}
	}

	result, err := handler(c.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", c.Tool).Warn("tool call failed")
		return response{Error: toToolError(err)}
	}
	return response{Result: result}
}

func toToolError(err error) *toolError {
	var k Kinder
	if errors.As(err, &k) {
		return &toolError{Kind: k.Kind(), Message: err.Error()}
	}
	return &toolError{Kind: "InternalError", Message: err.Error()}
}

// --- query_magnetic_field ---

type queryMagneticFieldArgs struct {
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	InterpolationMethod string  `json:"interpolation_method"`
}

type queryMagneticFieldResult struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Method string  `json:"method"`
}

func queryMagneticFieldHandler(svc *navservice.Service) Handler {
	return func(raw json.RawMessage) (interface{}, error) {
		var args queryMagneticFieldArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		method := mapping.Bilinear
		if args.InterpolationMethod == string(mapping.Bicubic) {
			method = mapping.Bicubic
		}
		v, err := svc.QueryField(args.Latitude, args.Longitude, method)
		if err != nil {
			return nil, err
		}
		return queryMagneticFieldResult{Value: v, Unit: "nT", Method: string(method)}, nil
	}
}

// --- estimate_position ---

type estimatePositionArgs struct {
	MagneticField    float64  `json:"magnetic_field"`
	InitialLatitude  *float64 `json:"initial_latitude"`
	InitialLongitude *float64 `json:"initial_longitude"`
	Dt               *float64 `json:"dt"`
	Reset            bool     `json:"reset"`
}

type estimatePositionResult struct {
	Lat            float64    `json:"lat"`
	Lon            float64    `json:"lon"`
	VLat           float64    `json:"vlat"`
	VLon           float64    `json:"vlon"`
	Quality        float64    `json:"quality"`
	CovarianceDiag [4]float64 `json:"covariance_diag"`
}

func estimatePositionHandler(svc *navservice.Service) Handler {
	return func(raw json.RawMessage) (interface{}, error) {
		var args estimatePositionArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}

		if args.Reset {
			lat, lon := 0.0, 0.0
			if args.InitialLatitude != nil {
				lat = *args.InitialLatitude
			}
			if args.InitialLongitude != nil {
				lon = *args.InitialLongitude
			}
			if err := svc.Reset(lat, lon); err != nil {
				return nil, err
			}
		}

		dt := 1.0
		if args.Dt != nil {
			dt = *args.Dt
		}

		est, err := svc.Observe(calib.Vector3{X: args.MagneticField}, dt)
		if err != nil {
			return nil, err
		}
		st := svc.State()
		return estimatePositionResult{
			Lat: st.Lat, Lon: st.Lon, VLat: st.VLat, VLon: st.VLon,
			Quality:        est.Quality,
			CovarianceDiag: svc.CovarianceDiag(),
		}, nil
	}
}

// --- calibrate_sensor ---

type calibrateSensorArgs struct {
	Samples [][3]float64 `json:"samples"`
	Method  string       `json:"method"`
}

type calibrateSensorResult struct {
	Offset [3]float64    `json:"offset"`
	Scale  [3][3]float64 `json:"scale"`
}

func calibrateSensorHandler() Handler {
	return func(raw json.RawMessage) (interface{}, error) {
		var args calibrateSensorArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		method := calib.FitSimple
		if args.Method == string(calib.FitEllipsoid) {
			method = calib.FitEllipsoid
		}

		samples := make([]calib.Vector3, len(args.Samples))
		for i, s := range args.Samples {
			samples[i] = calib.Vector3{X: s[0], Y: s[1], Z: s[2]}
		}

		params, err := calib.FitParams(samples, method)
		if err != nil {
			return nil, err
		}

		var scale [3][3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				scale[i][j] = params.Scale.At(i, j)
			}
		}
		return calibrateSensorResult{
			Offset: [3]float64{params.Offset.X, params.Offset.Y, params.Offset.Z},
			Scale:  scale,
		}, nil
	}
}

// --- simulate_trajectory ---

type simulateTrajectoryArgs struct {
	StartLat     float64 `json:"start_lat"`
	StartLon     float64 `json:"start_lon"`
	EndLat       float64 `json:"end_lat"`
	EndLon       float64 `json:"end_lon"`
	SpeedMPS     float64 `json:"speed"`
	SampleRateHz float64 `json:"sample_rate"`
	NoiseLevel   float64 `json:"noise_level"`
	PathType     string  `json:"path_type"`
	Seed         int64   `json:"seed"`
}

func simulateTrajectoryHandler(svc *navservice.Service) Handler {
	return func(raw json.RawMessage) (interface{}, error) {
		var args simulateTrajectoryArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		cfg := simulate.Config{
			Start:         geo.LatLon{Lat: args.StartLat, Lon: args.StartLon},
			End:           geo.LatLon{Lat: args.EndLat, Lon: args.EndLon},
			SpeedMPS:      args.SpeedMPS,
			SampleRateHz:  args.SampleRateHz,
			NoiseStddevNT: args.NoiseLevel,
			Path:          simulate.PathType(args.PathType),
			Seed:          args.Seed,
		}
		return svc.Simulate(cfg)
	}
}
