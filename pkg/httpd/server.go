// Package httpd wraps http.Server with listener bring-up and context
// driven graceful shutdown.
package httpd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	addr     string
	handler  http.Handler
	listener net.Listener
	logger   *zap.Logger
	srv      *http.Server
	done     chan error
}

func New(addr string, handler http.Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  zap.NewNop(),
	}
}

func (s *Server) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

// Addr returns the listening address, which is only valid after Start
// and useful when the configured address requested an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.  When ctx is
// canceled the server drains in-flight requests before Wait returns.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler: s.handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.done = make(chan error, 1)
	s.logger.Info("Listening", zap.String("addr", s.Addr()))
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(sctx); err != nil {
			s.logger.Warn("Shutdown", zap.Error(err))
			s.srv.Close()
		}
	}()
	return nil
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() error {
	err := <-s.done
	if err != nil {
		s.logger.Error("Serve", zap.Error(err))
	}
	return err
}
