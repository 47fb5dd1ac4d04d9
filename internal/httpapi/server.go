// Package httpapi exposes the process's health, readiness, and Prometheus
// metrics endpoints, per spec §6.5. It carries no domain logic of its own —
// it only asks its collaborators for their current state.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// UpstreamStatus reports whether the upstream BGP feed connection is up.
type UpstreamStatus interface {
	IsConnected() bool
}

// RuleStore reports whether the filter rule set has been loaded.
type RuleStore interface {
	Total() int
}

// DBChecker abstracts the optional audit database health check.
type DBChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	srv       *http.Server
	upstream  UpstreamStatus
	rules     RuleStore
	dbChecker DBChecker
	logger    *zap.Logger
}

// NewServer builds the health/ready/metrics HTTP server. dbChecker may be
// nil when no audit DB is configured — readyz then simply omits the
// postgres check rather than failing on it, since an unconfigured sink
// isn't a degraded one.
func NewServer(addr string, upstream UpstreamStatus, rules RuleStore, dbChecker DBChecker, logger *zap.Logger) *Server {
	s := &Server{
		upstream:  upstream,
		rules:     rules,
		dbChecker: dbChecker,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.upstream != nil && s.upstream.IsConnected() {
		checks["upstream"] = "ok"
	} else {
		checks["upstream"] = "disconnected"
		allOK = false
	}

	if s.rules != nil && s.rules.Total() > 0 {
		checks["rules"] = "ok"
	} else {
		checks["rules"] = "not_loaded"
		allOK = false
	}

	if s.dbChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbChecker.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
