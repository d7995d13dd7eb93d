// Package server constructs and starts the relay's HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var (
	hubOnce sync.Once
	hub     *Hub
)

// GetHub returns the process-wide hub, creating it on first use with
// slog.Default() and the configuration in effect at that moment.
func GetHub() *Hub {
	hubOnce.Do(func() {
		hub = NewHub(slog.Default())
	})
	return hub
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartHub starts the process-wide hub in a separate goroutine.
// This should be called before starting the HTTP server.
func StartHub() {
	go GetHub().Run()
	slog.Info("hub started and ready to manage websocket connections")
}

// StartServer starts the HTTP server and blocks until it exits. A server
// stopped through Shutdown returns nil.
func StartServer(server *http.Server) error {
	slog.Info("server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServerContext gracefully shuts down the HTTP server without
// interrupting active requests. Hijacked websocket connections are left to
// the hub. It waits for active requests to finish or for ctx to expire.
func ShutdownServerContext(ctx context.Context, server *http.Server) error {
	slog.Info("shutting down HTTP server")

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return err
	}

	slog.Info("HTTP server shutdown completed")
	return nil
}
