// Package api exposes the engine over HTTP: a JSON REST surface, a websocket event stream
// and the Prometheus scrape endpoint.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/metrics"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"go.uber.org/zap"
)

// SessionService is the engine surface served by the API.
type SessionService interface {
	CreateSession(ctx context.Context, cfg types.SessionConfig) (*types.Session, error)
	UpdateConfig(ctx context.Context, id string, cfg types.SessionConfig) (*types.Session, error)
	Start(ctx context.Context, id string) (*types.Session, error)
	Pause(ctx context.Context, id string) (*types.Session, error)
	Resume(ctx context.Context, id string) (*types.Session, error)
	Delete(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, filter aggregate.Filter) []aggregate.SessionSummary
	Events(ctx context.Context, id string) ([]types.Event, error)
	Portfolio(ctx context.Context) aggregate.Portfolio
	Subscribe() (<-chan types.Event, func())
}

// Server serves the API.
type Server struct {
	service  SessionService
	metrics  *metrics.Metrics
	logger   *logger.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
}

// NewServer builds the router.
func NewServer(service SessionService, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		service: service,
		metrics: m,
		logger:  log,
		//nolint:exhaustruct
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		router: mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleUpdateSession).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/start", s.handleTransition(service.Start)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/pause", s.handleTransition(service.Pause)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/resume", s.handleTransition(service.Resume)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	api.HandleFunc("/schema/session", s.handleSessionSchema).Methods(http.MethodGet)

	s.router.HandleFunc("/ws/events", s.handleStream)
	s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	//nolint:exhaustruct
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
