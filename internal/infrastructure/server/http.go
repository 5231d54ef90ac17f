package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"go-realtime-gateway/internal/infrastructure/config"
)

// Server is a component with a blocking Start and a graceful Stop.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	handler http.Handler
	cfg     config.ServerConfig

	mu  sync.Mutex
	srv *http.Server
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg config.ServerConfig) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		cfg:     cfg,
	}
}

// Start listens until Stop is called. There is no write timeout: event
// streams stay open indefinitely and the hub bounds every frame write itself.
func (h *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.cfg.Addr,
		Handler:           h.handler,
		ReadHeaderTimeout: h.cfg.ReadHeaderTimeout,
		IdleTimeout:       h.cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h.mu.Lock()
	h.srv = srv
	h.mu.Unlock()

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
