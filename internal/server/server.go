package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mtbar/concerts/internal/auth"
	"github.com/mtbar/concerts/internal/config"
	"github.com/mtbar/concerts/internal/metrics"
	"github.com/mtbar/concerts/pkg/models"
)

// EventStore is the read side of the event catalog
type EventStore interface {
	ListEvents(ctx context.Context) ([]*models.Event, error)
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
}

// DigestSource renders the current digest
type DigestSource interface {
	Text(ctx context.Context) (string, error)
}

// Server serves the healthcheck, metrics and the admin API
type Server struct {
	config    *config.Config
	events    EventStore
	digest    DigestSource
	publisher message.Publisher
	jwt       *auth.JWTManager
	metrics   *metrics.Collector
	logger    *slog.Logger
	server    *http.Server
}

// New creates new HTTP server instance. Without a JWT secret the admin API answers 503.
func New(
	cfg *config.Config,
	events EventStore,
	digest DigestSource,
	publisher message.Publisher,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Server {
	s := &Server{
		config:    cfg,
		events:    events,
		digest:    digest,
		publisher: publisher,
		metrics:   collector,
		logger:    logger.WithGroup("server"),
	}
	if cfg.JWTSecret != "" {
		s.jwt = auth.NewJWTManager(cfg.JWTSecret)
	}
	return s
}

// Handler builds the routed handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthcheck", s.healthcheckHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/events", s.listEventsHandler)
	mux.HandleFunc("GET /api/events/{id}", s.getEventHandler)
	mux.HandleFunc("GET /api/digest", s.digestHandler)
	mux.HandleFunc("POST /api/digest/broadcast", s.broadcastDigestHandler)

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.InstrumentHandler(h)
	}
	h = authMiddleware(s.jwt, s.logger)(h)
	h = loggingMiddleware(s.logger)(h)
	return h
}

// Start starts the HTTP server and shuts it down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.GetAddress(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.InfoContext(ctx, "Starting HTTP server", slog.Int("port", s.config.App.HTTP.Port))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", slog.Any("error", err))
			return err
		}

		s.logger.Info("HTTP server stopped")
		return nil
	}
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return fmt.Sprintf(":%d", s.config.App.HTTP.Port)
}

func (s *Server) healthcheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
