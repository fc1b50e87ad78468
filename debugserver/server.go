// Package debugserver exposes a connection's Prometheus metrics and a
// JSON debug snapshot over HTTP, adapted from the teacher's
// internal/api.Server: same gorilla/mux + promhttp.Handler wiring,
// narrowed from a multi-tenant REST/dashboard surface to the two routes
// that make sense for a single connection (no dashboard_html — see
// DESIGN.md for that deletion).
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hexdbio/pgconn"
	"github.com/hexdbio/pgconn/metrics"
)

// Server serves /metrics and /debug/conn for one pgconn.Client.
type Server struct {
	client     *pgconn.Client
	met        *metrics.Collector
	log        *slog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// New builds a Server over client. met may be nil, in which case /metrics
// serves an empty registry.
func New(client *pgconn.Client, met *metrics.Collector, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{client: client, met: met, log: log, startTime: time.Now()}
}

// Start begins serving on bindAddr:port in the background.
func (s *Server) Start(bindAddr string, port int) error {
	r := mux.NewRouter()
	r.HandleFunc("/debug/conn", s.connHandler).Methods("GET")
	if s.met != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("%s:%d", bindAddr, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("debug server listening", "addr", addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("debug server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// connHandler reports a JSON snapshot of connection state: whether it is
// closed and its last error, type cache size, uptime, Go version and
// goroutine count, and live ParameterStatus values relevant to debugging
// (server_version, TimeZone, etc). No in-flight request count is reported.
func (s *Server) connHandler(w http.ResponseWriter, r *http.Request) {
	closed := s.client.Closed()
	status := http.StatusOK
	if closed {
		status = http.StatusServiceUnavailable
	}

	var lastErr string
	if err := s.client.Err(); err != nil {
		lastErr = err.Error()
	}

	params := map[string]string{}
	for _, key := range []string{"server_version", "server_encoding", "client_encoding", "TimeZone", "application_name"} {
		if v, ok := s.client.Param(key); ok {
			params[key] = v
		}
	}

	writeJSON(w, status, map[string]any{
		"closed":          closed,
		"last_error":      lastErr,
		"type_cache_size": s.client.TypeCacheSize(),
		"uptime_seconds":  int(time.Since(s.startTime).Seconds()),
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"params":          params,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
