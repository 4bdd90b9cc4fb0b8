// Package server provides the HTTP server for health checks, reports and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// Pinger is implemented by trace sources that can check their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP endpoints for health checks and monitoring.
type Server struct {
	cfg     *config.ServerConfig
	pinger  Pinger
	metrics http.Handler
	server  *http.Server
	mu      sync.Mutex
	started time.Time

	reportMu sync.RWMutex
	report   *model.Report
	lastRun  time.Time
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string        `json:"status"`
	Uptime    string        `json:"uptime,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	Source    *SourceHealth `json:"source,omitempty"`
}

// SourceHealth represents trace source connectivity status.
type SourceHealth struct {
	Connected bool   `json:"connected"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

// New creates a new Server. pinger and metrics may be nil.
func New(cfg *config.ServerConfig, pinger Pinger, metrics http.Handler) *Server {
	return &Server{
		cfg:     cfg,
		pinger:  pinger,
		metrics: metrics,
		started: time.Now(),
	}
}

// Handler returns the routes served by the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/livez", s.handleLive)
	mux.HandleFunc("/report", s.handleReport)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.started = time.Now()

	go func() {
		log.Infof("Health server listening on :%d", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("Health server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// SetReport publishes the latest successful report.
func (s *Server) SetReport(r *model.Report) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.report = r
	s.lastRun = time.Now()
}

func (s *Server) latest() (*model.Report, time.Time) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.report, s.lastRun
}

// handleHealth handles /healthz endpoint (combined check).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if _, lastRun := s.latest(); !lastRun.IsZero() {
		response.LastRun = &lastRun
	}

	// Perform deep check if enabled
	if s.cfg.DeepCheck && s.pinger != nil {
		sourceHealth := s.checkSource(r.Context())
		response.Source = sourceHealth
		if !sourceHealth.Connected {
			response.Status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if response.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, response)
}

// handleReady handles /readyz endpoint. The service is ready once a run has succeeded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report, lastRun := s.latest()
	if report == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: time.Now(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		LastRun:   &lastRun,
	})
}

// handleLive handles /livez endpoint (liveness probe).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	// Simple liveness check - if we can respond, we're alive
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReport handles /report, returning the latest report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, _ := s.latest()
	if report == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// checkSource tests trace source connectivity.
func (s *Server) checkSource(ctx context.Context) *SourceHealth {
	health := &SourceHealth{}

	start := time.Now()
	err := s.pinger.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		health.Connected = false
		health.Error = err.Error()
	} else {
		health.Connected = true
		health.Latency = latency.String()
	}

	return health
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Error encoding response: %v", err)
	}
}
