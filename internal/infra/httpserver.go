package infra

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server. Listen binds the port up front so startup
// fails fast; Serve then blocks until Shutdown.
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer applies the configured timeouts and routes the server's own
// error log through logger.
func NewHTTPServer(cfg *Config, handler http.Handler, logger Logger) *HTTPServer {
	errLog := logger.With().Str("component", "http").Logger()
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ErrorLog:          log.New(errLog, "", 0),
	}}
}

// Listen binds the configured address.
func (s *HTTPServer) Listen() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr reports the bound address once Listen succeeded, else the configured one.
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Serve accepts connections on the bound listener, binding first if needed.
// A graceful shutdown is not reported as an error.
func (s *HTTPServer) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
