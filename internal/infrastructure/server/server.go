// Package server exposes liveness, component status and Prometheus metrics on the ops port
package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"basket_swap/internal/core"
	"basket_swap/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunReporter supplies the current run for the health payload
type RunReporter interface {
	Snapshot() core.RunSnapshot
}

type runSummary struct {
	ID     string         `json:"id"`
	Status core.RunStatus `json:"status"`
	AllOK  bool           `json:"all_ok"`
}

type gauges struct {
	RunActive         bool               `json:"run_active"`
	PortfolioValueUSD map[string]float64 `json:"portfolio_value_usd"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Time       time.Time         `json:"time"`
	Metrics    gauges            `json:"metrics"`
	Run        *runSummary       `json:"run,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthServer serves /health, /status and /metrics. Static labels such as the engine type
// are set with UpdateStatus and merged with the live component checks on /status.
type HealthServer struct {
	port   string
	logger core.ILogger
	hm     core.IHealthMonitor
	runs   RunReporter
	srv    *http.Server

	mu     sync.RWMutex
	labels map[string]string
}

func NewHealthServer(port string, logger core.ILogger, hm core.IHealthMonitor, runs RunReporter) *HealthServer {
	return &HealthServer{
		port:   port,
		logger: logger.WithField("component", "health_server"),
		hm:     hm,
		runs:   runs,
		labels: make(map[string]string),
	}
}

// Handler returns the ops routes
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start listens in the background; failures are logged
func (s *HealthServer) Start() {
	s.srv = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting health server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Health server failed", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *HealthServer) UpdateStatus(key, value string) {
	s.mu.Lock()
	s.labels[key] = value
	s.mu.Unlock()
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := telemetry.GetGlobalMetrics()
	resp := healthResponse{
		Status: "ok",
		Time:   time.Now(),
		Metrics: gauges{
			RunActive:         m.GetRunActive(),
			PortfolioValueUSD: m.GetPortfolioValues(),
		},
	}
	if s.runs != nil {
		snap := s.runs.Snapshot()
		resp.Run = &runSummary{ID: snap.ID, Status: snap.Status, AllOK: snap.AllOK}
	}

	code := http.StatusOK
	if s.hm != nil {
		resp.Components = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (s *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := maps.Clone(s.labels)
	s.mu.RUnlock()

	if s.hm != nil {
		maps.Copy(status, s.hm.GetStatus())
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
