// Package httpapi exposes the navigation service over a small HTTP
// surface: a health check and a position-domain estimate endpoint. The
// mux-based layout follows the teacher's own web/server.go, swapping the
// WebSocket hub for JSON handlers and github.com/sirupsen/logrus for the
// teacher's plain log package.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"qmagnav-engine/geo"
	"qmagnav-engine/navservice"
)

// Kinder is implemented by every typed error in this module; the HTTP
// layer uses it to map an error to a status code without inspecting
// error strings.
type Kinder interface {
	Kind() string
}

// Server wires a navservice.Service to net/http.
type Server struct {
	svc *navservice.Service
	log *logrus.Logger
}

// NewServer constructs an HTTP server around svc. log may be nil, in
// which case logrus.StandardLogger() is used.
func NewServer(svc *navservice.Service, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{svc: svc, log: log}
}

// Handler builds the request mux: GET /healthz, POST /estimate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/estimate", s.handleEstimate)
	return mux
}

// ListenAndServe starts the HTTP server on addr, blocking until it
// exits or fails.
func (s *Server) ListenAndServe(addr string) error {
	s.log.WithField("addr", addr).Info("http server listening")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type estimateRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type estimateResponse struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Quality float64 `json:"quality"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleEstimate treats the request body strictly as a position-domain
// observation: {lat, lon}. This is a deliberately different shape from
// the tool surface's estimate_position, which takes a magnetic scalar —
// the two are never silently interchanged.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	if !s.svc.HasMap() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "map not loaded"})
		return
	}

	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return
	}
	if _, err := geo.NewLatLon(req.Lat, req.Lon); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.svc.Reset(req.Lat, req.Lon); err != nil {
		s.log.WithError(err).Error("estimate: reset failed")
		writeStatusForError(w, err)
		return
	}
	st := s.svc.State()
	writeJSON(w, http.StatusOK, estimateResponse{Lat: st.Lat, Lon: st.Lon, Quality: 1.0})
}

func writeStatusForError(w http.ResponseWriter, err error) {
	var k Kinder
	if errors.As(err, &k) {
		switch k.Kind() {
		case "DomainError":
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		case "ConfigError":
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
