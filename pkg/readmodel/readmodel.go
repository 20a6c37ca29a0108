// Package readmodel implements the dashboard's read-model HTTP server: a
// pure, side-effect-free view over the data every other agent already
// writes to the bus. It never publishes an event and never mutates
// container or remediation state; it only aggregates and serves it.
package readmodel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

// Config is the subset of internal/config.Config the read model needs.
type Config struct {
	Port      string
	MaxEvents int
}

// Server serves the dashboard's JSON read model over HTTP.
type Server struct {
	bus       bus.Bus
	clock     clock.Clock
	log       logr.Logger
	maxEvents int
	cache     *ttlCache

	httpServer *http.Server
}

// New builds a Server. b must be non-nil; clk defaults to the real wall
// clock when nil.
func New(b bus.Bus, clk clock.Clock, cfg Config) *Server {
	if clk == nil {
		clk = clock.New()
	}

	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	log := zapr.NewLogger(zl).WithName("readmodel")

	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	s := &Server{
		bus:       b,
		clock:     clk,
		log:       log,
		maxEvents: maxEvents,
		cache:     newTTLCache(clk),
	}
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("read model listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("read model shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleAllEvents)
		r.Get("/events/{type}", s.handleEventsByType)
		r.Get("/containers/active", s.handleActiveContainers)
		r.Get("/containers/{id}", s.handleContainerStats)
		r.Get("/remediation/stats", s.handleRemediationStats)
		r.Get("/false-alarms/count", s.handleFalseAlarmCount)
		r.Get("/metrics/summary", s.handleMetricsSummary)
	})

	return r
}
