// Package server exposes the webhook ingress: one route per provider
// subscription, plus health. The response written back to the provider is
// whatever the dispatcher produced, byte for byte.
package server

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP listener lifecycle.
type Server struct {
	srv *http.Server
}

// New creates a server on the given port.
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
