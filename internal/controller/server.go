// Package controller wires the HTTP API of the forgeplane controller.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"forgeplane/internal/controller/handlers"
	"forgeplane/internal/controller/middleware"
	"forgeplane/internal/store"
)

// Server is the controller's HTTP front end.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the route table and wraps it with the middleware
// chain. metricsHandler may be nil when metrics are disabled.
func NewServer(port int, h *handlers.Handlers, cs store.CustomerStore, unitSecret string, metricsHandler http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	authed := middleware.Auth(cs)
	limited := middleware.RateLimit()
	unitAuth := middleware.RequireUnitAuth(unitSecret)

	mux.HandleFunc("POST /customers", h.CreateCustomer)

	mux.Handle("POST /jobs", authed(limited(http.HandlerFunc(h.SubmitJob))))
	mux.Handle("GET /jobs", authed(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /jobs/{id}", authed(http.HandlerFunc(h.GetJob)))
	mux.Handle("POST /jobs/{id}/cancel", authed(http.HandlerFunc(h.CancelJob)))
	mux.Handle("GET /estimate", authed(http.HandlerFunc(h.GetEstimate)))

	mux.Handle("GET /units", unitAuth(http.HandlerFunc(h.ListUnits)))
	mux.Handle("POST /units", unitAuth(http.HandlerFunc(h.RegisterUnit)))
	mux.Handle("POST /units/{id}/restore", unitAuth(http.HandlerFunc(h.RestoreUnit)))

	mux.Handle("GET /internal/units/{id}/assignment", unitAuth(http.HandlerFunc(h.UnitAssignment)))
	mux.Handle("PUT /internal/units/{id}/heartbeat", unitAuth(http.HandlerFunc(h.UnitHeartbeat)))
	mux.Handle("POST /internal/units/{id}/progress", unitAuth(http.HandlerFunc(h.UnitProgress)))
	mux.Handle("POST /internal/units/{id}/failed", unitAuth(http.HandlerFunc(h.UnitFailed)))
	mux.Handle("POST /internal/units/{id}/stop-ack", unitAuth(http.HandlerFunc(h.UnitStopAck)))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("controller listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
