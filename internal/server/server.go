package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Davincible/llm-bridge/internal/config"
	"github.com/Davincible/llm-bridge/internal/converters"
	"github.com/Davincible/llm-bridge/internal/handlers"
	"github.com/Davincible/llm-bridge/internal/middleware"
	"github.com/Davincible/llm-bridge/internal/models"
	"github.com/Davincible/llm-bridge/internal/providers"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	config   *config.Manager
	registry *providers.Registry
	factory  *converters.Factory
	logger   *slog.Logger
	server   *http.Server
}

func New(configManager *config.Manager, logger *slog.Logger) *Server {
	registry := providers.NewRegistry(logger)
	registry.Initialize()

	return &Server{
		config:   configManager,
		registry: registry,
		factory:  converters.NewDefaultFactory(logger),
		logger:   logger,
	}
}

// Start serves until SIGINT or SIGTERM and then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Address(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	s.logger.Info("Starting server", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")

	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler returns the routed handler with every middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	proxyHandler := handlers.NewProxyHandler(s.config, s.registry, s.factory, s.logger)
	healthHandler := handlers.NewHealthHandler(s.registry, s.factory, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)
	api := middlewareSet.DefaultChain()

	r.Method(http.MethodGet, "/health", middlewareSet.HealthChain().Handler(healthHandler))
	r.Method(http.MethodGet, "/metrics", middlewareSet.PublicChain().Handler(promhttp.Handler()))

	r.Method(http.MethodPost, "/v1/chat/completions", api.Handler(http.HandlerFunc(proxyHandler.ChatCompletions)))
	r.Method(http.MethodPost, "/v1/messages", api.Handler(http.HandlerFunc(proxyHandler.Messages)))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path), "not_found_error")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), "invalid_request_error")
	})

	return r
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorPayload(message, errType))
}
