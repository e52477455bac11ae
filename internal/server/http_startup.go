package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aceinterview/internal/backend"
	"aceinterview/internal/observability"
	"aceinterview/internal/session"
)

// Start starts the HTTP server with all configured components
func (s *Server) Start() error {
	om, err := s.initializeObservability()
	if err != nil {
		return err
	}
	defer s.shutdownObservability(om)

	s.initializeBackend(om)

	if err := s.initializeSessions(); err != nil {
		return err
	}

	httpServer, err := s.setupHTTPServer(om)
	if err != nil {
		return err
	}

	s.displayServerInfo()

	return s.startWithGracefulShutdown(httpServer)
}

// initializeObservability sets up observability components
func (s *Server) initializeObservability() (*observability.ObservabilityManager, error) {
	obsConfig := observability.GetObservabilityConfig(s.AppConfig, s.Version)

	om, err := observability.NewObservabilityManager(obsConfig, s.AppConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	return om, nil
}

// shutdownObservability handles observability cleanup
func (s *Server) shutdownObservability(om *observability.ObservabilityManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := om.Shutdown(ctx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown observability")
	}
}

// initializeBackend creates the HTTP backend client unless one was injected
func (s *Server) initializeBackend(om *observability.ObservabilityManager) {
	if s.Backend != nil {
		return
	}
	s.Backend = backend.NewClient(s.AppConfig, s.Logger, backend.WithObserver(om))
	s.Logger.Info("Backend client initialized", "base_url", s.AppConfig.Backend.BaseURL)
}

// initializeSessions opens the session store and the registry on top of it
func (s *Server) initializeSessions() error {
	if s.store == nil {
		store, err := session.NewStore(s.AppConfig.Session)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		s.store = store
	}

	s.Sessions = session.NewManager(
		s.Backend,
		s.store,
		s.AppConfig.Interview,
		s.AppConfig.Server.SessionIdleTimeout,
		s.Logger,
	)

	s.Logger.Info("Session registry initialized",
		"store", s.AppConfig.Session.Store,
		"idle_timeout", s.AppConfig.Server.SessionIdleTimeout)
	return nil
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer(om *observability.ObservabilityManager) (*http.Server, error) {
	router := s.setupRoutes(om)
	handler := om.HTTPMiddleware()(router)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}, nil
}

// startWithGracefulShutdown starts the HTTP server and handles graceful shutdown
func (s *Server) startWithGracefulShutdown(server *http.Server) error {
	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.Logger.Info("Starting HTTP server", "address", server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		s.releaseResources()
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-quit:
		s.Logger.Info("Received shutdown signal, starting graceful shutdown",
			"signal", sig.String())

		return s.performGracefulShutdown(server)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Logger.Info("Shutting down HTTP server...")
	err := server.Shutdown(shutdownCtx)
	if err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		err = server.Close()
	}

	s.releaseResources()

	if err == nil {
		s.Logger.Info("Server shutdown completed successfully")
	}
	return err
}

// releaseResources stops background routines and closes the store and backend
func (s *Server) releaseResources() {
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}

	if s.Sessions != nil {
		s.Sessions.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close session store")
		}
	}

	if s.Backend != nil {
		if err := s.Backend.Close(); err != nil {
			s.Logger.LogError(err, "Failed to close backend client")
		}
	}
}
