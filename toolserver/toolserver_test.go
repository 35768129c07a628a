package toolserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmagnav-engine/calib"
	"qmagnav-engine/ekf"
	"qmagnav-engine/mapping"
	"qmagnav-engine/navservice"
)

type planeSource struct{ header mapping.MapHeader }

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

func newTestService(t *testing.T) *navservice.Service {
	t.Helper()
	m := mapping.NewMagneticMap(newPlaneSource(), 256, 16)
	filter := ekf.New(ekf.DefaultConfig(), 0.4, 0.4)
	cond, err := calib.NewConditioner(calib.Identity(), 1)
	require.NoError(t, err)
	svc, err := navservice.New(filter, cond, m)
	require.NoError(t, err)
	return svc
}

func runOneCall(t *testing.T, srv *Server, line string) response {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, srv.Serve(strings.NewReader(line+"\n"), &out))
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	require.True(t, scanner.Scan())
	var resp response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestQueryMagneticFieldTool(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"query_magnetic_field","arguments":{"latitude":0.5,"longitude":0.5}}`)
	require.Nil(t, resp.Error)
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var out queryMagneticFieldResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.InDelta(t, 1400.0, out.Value, 1e-6)
	assert.Equal(t, "nT", out.Unit)
}

func TestQueryMagneticFieldOutOfMap(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"query_magnetic_field","arguments":{"latitude":50,"longitude":50}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "OutOfMapError", resp.Error.Kind)
}

func TestUnknownTool(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"nonexistent","arguments":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ProtocolError", resp.Error.Kind)
}

func TestCalibrateSensorSimple(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"calibrate_sensor","arguments":{"samples":[[0,0,0],[10,10,10]],"method":"simple"}}`)
	require.Nil(t, resp.Error)
	b, _ := json.Marshal(resp.Result)
	var out calibrateSensorResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, [3]float64{5, 5, 5}, out.Offset)
}

func TestEstimatePositionTool(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"estimate_position","arguments":{"magnetic_field":1400,"dt":1.0}}`)
	require.Nil(t, resp.Error)
	b, _ := json.Marshal(resp.Result)
	var out estimatePositionResult
	require.NoError(t, json.Unmarshal(b, &out))
	assert.GreaterOrEqual(t, out.Quality, 0.0)
}

func TestSimulateTrajectoryTool(t *testing.T) {
	srv := New(newTestService(t), nil)
	resp := runOneCall(t, srv, `{"tool":"simulate_trajectory","arguments":{"start_lat":0.2,"start_lon":0.2,"end_lat":0.8,"end_lon":0.8,"speed":10,"sample_rate":1,"noise_level":0,"path_type":"straight","seed":1}}`)
	require.Nil(t, resp.Error)
}
