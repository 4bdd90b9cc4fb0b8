package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	cfg := &config.ServerConfig{
		Port:      8080,
		DeepCheck: false, // Disable deep check for tests without a database source
	}

	srv := New(cfg, nil, nil)

	t.Run("GET /livez", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/livez", nil)
		w := httptest.NewRecorder()

		srv.handleLive(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Status code = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var health HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if health.Status != "alive" {
			t.Errorf("Status = %s, want alive", health.Status)
		}

		if health.Uptime == "" {
			t.Error("Uptime should not be empty")
		}
	})

	t.Run("GET /healthz without deep check", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()

		srv.handleHealth(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Status code = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var health HealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if health.Status != "ok" {
			t.Errorf("Status = %s, want ok", health.Status)
		}

		// Source should not be checked when deep check is disabled
		if health.Source != nil {
			t.Error("Source should be nil when deep check is disabled")
		}
	})

	t.Run("GET /readyz before first run", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/readyz", nil)
		w := httptest.NewRecorder()

		srv.handleReady(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("GET /report before first run", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/report", nil)
		w := httptest.NewRecorder()

		srv.handleReport(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Status code = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestReadyAndReportAfterRun(t *testing.T) {
	srv := New(&config.ServerConfig{Port: 8080}, nil, nil)
	srv.SetReport(&model.Report{ReqID: "keyloc-1", TargetTableID: 7, Metadata: model.Metadata{SampleCount: 5}})

	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want %d", w.Code, http.StatusOK)
	}
	var health HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Status != "ready" || health.LastRun == nil {
		t.Errorf("readiness = %+v, want ready with last run", health)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/report", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/report status = %d, want %d", w.Code, http.StatusOK)
	}
	var report model.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.ReqID != "keyloc-1" || report.Metadata.SampleCount != 5 {
		t.Errorf("report = %+v", report)
	}
}

func TestHealthDeepCheck(t *testing.T) {
	cfg := &config.ServerConfig{Port: 8080, DeepCheck: true}

	tests := []struct {
		name       string
		pinger     Pinger
		wantStatus int
		wantHealth string
	}{
		{name: "source reachable", pinger: stubPinger{}, wantStatus: http.StatusOK, wantHealth: "ok"},
		{name: "source down", pinger: stubPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantHealth: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(cfg, tt.pinger, nil)
			w := httptest.NewRecorder()
			srv.handleHealth(w, httptest.NewRequest("GET", "/healthz", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var health HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if health.Status != tt.wantHealth {
				t.Errorf("Status = %s, want %s", health.Status, tt.wantHealth)
			}
			if health.Source == nil {
				t.Error("Source should be reported when deep check is enabled")
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("keyloc_runs_total 1\n"))
	})

	w := httptest.NewRecorder()
	New(&config.ServerConfig{}, nil, metrics).Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "keyloc_runs_total 1\n" {
		t.Errorf("/metrics = %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	New(&config.ServerConfig{}, nil, nil).Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler = %d, want 404", w.Code)
	}
}

func TestHealthResponse_JSON(t *testing.T) {
	cfg := &config.ServerConfig{
		Port:      8080,
		DeepCheck: false,
	}

	srv := New(cfg, nil, nil)

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()

	srv.handleLive(w, req)

	resp := w.Result()

	// Check content type
	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", contentType)
	}

	// Verify it's valid JSON
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}

	// Timestamp should be set
	if health.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}
