package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	wcotel "github.com/wirechat/wirechat/internal/adapter/otel"
	"github.com/wirechat/wirechat/internal/config"
)

// NewRouter assembles the HTTP surface: the health endpoint and the
// WebSocket chat endpoint.
func NewRouter(h *Handler, health http.HandlerFunc, serviceName string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(wcotel.HTTPMiddleware(serviceName))

	// No timeout on /ws: sessions are long-lived.
	r.With(chimw.Timeout(10 * time.Second)).Get("/health", health)
	r.Get("/ws", h.ServeWS)
	return r
}

// HealthHandler reports service health: backing store and queue kinds,
// queue connectivity and the publish circuit state.
func HealthHandler(svc *Service, storeKind, queueKind string) http.HandlerFunc {
	type healthStatus struct {
		Status         string `json:"status"`
		Store          string `json:"store"`
		Queue          string `json:"queue"`
		QueueConnected bool   `json:"queue_connected"`
		Breaker        string `json:"breaker"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:         "ok",
			Store:          storeKind,
			Queue:          queueKind,
			QueueConnected: svc.QueueConnected(),
			Breaker:        svc.BreakerState().String(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// Server runs the HTTP listener with graceful shutdown.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// New creates a Server on the configured port.
func New(cfg config.Server, handler http.Handler, log *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("starting server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
