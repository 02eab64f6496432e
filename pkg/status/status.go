// Package status serves the latest measurement over HTTP, together with
// the meter controls and the Prometheus endpoint.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Snapshotter returns the latest snapshot.
type Snapshotter interface {
	Snapshot() meter.Snapshot
}

// Controller applies the meter controls exposed over HTTP.
type Controller interface {
	SetPhaseCount(n int) error
	ResetEnergy() error
}

// Latest holds the most recent snapshot received from a source.
type Latest struct {
	mu sync.RWMutex
	s  meter.Snapshot
}

// Set replaces the held snapshot.
func (l *Latest) Set(s meter.Snapshot) {
	l.mu.Lock()
	l.s = s
	l.mu.Unlock()
}

// Snapshot returns the held snapshot.
func (l *Latest) Snapshot() meter.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.s
}

// Health is the body of GET /api/health.
type Health struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	LastSeen string `json:"last_seen,omitempty"`
	Uptime   string `json:"uptime"`
}

// PhaseRequest is the body of PUT /api/phases.
type PhaseRequest struct {
	PhaseCount int `json:"phase_count"`
}

// Server serves the status API.
type Server struct {
	httpServer *http.Server
	source     Snapshotter
	control    Controller
	log        logrus.FieldLogger
	started    time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a Server. control may be nil, which disables the write
// endpoints. A snapshot older than staleAfter reports the service degraded.
func New(addr string, source Snapshotter, control Controller, staleAfter time.Duration, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		source:     source,
		control:    control,
		log:        log,
		started:    time.Now(),
		staleAfter: staleAfter,
		now:        time.Now,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/phases", s.handlePhases).Methods(http.MethodPut)
	router.HandleFunc("/api/energy/reset", s.handleResetEnergy).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler())
	router.Use(s.loggingMiddleware)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	if snap.Time.IsZero() {
		s.respondError(w, "no measurement yet", http.StatusServiceUnavailable)
		return
	}
	s.respondJSON(w, snap, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	now := s.now()

	h := Health{
		Status: "ok",
		State:  snap.State.String(),
		Uptime: now.Sub(s.started).Truncate(time.Second).String(),
	}

	code := http.StatusOK
	switch {
	case snap.Time.IsZero():
		h.Status = "starting"
		code = http.StatusServiceUnavailable
	case s.staleAfter > 0 && now.Sub(snap.Time) > s.staleAfter:
		h.Status = "stale"
		code = http.StatusServiceUnavailable
	case snap.State != power.Connected:
		h.Status = "degraded"
	}
	if !snap.Time.IsZero() {
		h.LastSeen = snap.Time.UTC().Format(time.RFC3339)
	}

	s.respondJSON(w, h, code)
}

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		s.respondError(w, "controls disabled", http.StatusForbidden)
		return
	}

	var req PhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PhaseCount != 1 && req.PhaseCount != 3 {
		s.respondError(w, "phase_count must be 1 or 3", http.StatusBadRequest)
		return
	}

	if err := s.control.SetPhaseCount(req.PhaseCount); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, meter.ErrInvalidPhaseCount) {
			status = http.StatusBadRequest
		}
		s.respondError(w, err.Error(), status)
		return
	}

	s.log.WithField("phase_count", req.PhaseCount).Info("Phase count changed over HTTP")
	s.respondJSON(w, req, http.StatusOK)
}

func (s *Server) handleResetEnergy(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		s.respondError(w, "controls disabled", http.StatusForbidden)
		return
	}

	if err := s.control.ResetEnergy(); err != nil {
		s.respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Info("Energy counters reset over HTTP")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	s.respondJSON(w, map[string]string{"error": message}, status)
}
