package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spendsync/internal/shared/logger"
)

// StartServer creates the HTTP server and starts it in the background.
func StartServer(handler http.Handler, addr string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Get().Infow("HTTP server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Fatalw("HTTP server error", "error", err)
		}
	}()

	return srv
}

// GracefulShutdown stops accepting requests, then lets in-flight refresh jobs
// finish before returning.
func GracefulShutdown(srv *http.Server, deps *Dependencies, timeout time.Duration) {
	log := logger.Get()
	log.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("Error shutting down HTTP server", "error", err)
	}

	deps.RefreshService.Shutdown()
	deps.RefreshQueue.Shutdown(timeout)

	log.Info("Server stopped")
}
