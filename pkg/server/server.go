// Package server runs the gateway HTTP API with its middleware chain,
// optional TLS and graceful shutdown.
//
// The caller owns routing: it builds a mux (admission, audit, metrics and
// health routes) and hands it to New. Run blocks until the context is done,
// then drains connections for up to ShutdownTimeout. With Config.Tracer set
// each request gets a server span joined to the caller's W3C trace context.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"erynoa/eclvm/pkg/server/middleware"
	"erynoa/eclvm/pkg/telemetry/tracing"
)

// Config configures the HTTP server.
type Config struct {
	// ListenAddress is host:port.
	ListenAddress string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds each request context. Zero disables it.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds the graceful drain. Default: 10s
	ShutdownTimeout time.Duration

	MaxHeaderBytes int

	// TLSCertFile and TLSKeyFile enable TLS 1.3 when both are set.
	TLSCertFile string
	TLSKeyFile  string

	CORS middleware.CORSConfig

	// Tracer starts a server span per request when set.
	Tracer trace.Tracer
}

// TLSEnabled reports whether both certificate files are set.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Server serves one handler behind the middleware chain.
type Server struct {
	config     Config
	handler    http.Handler
	logger     *slog.Logger
	httpServer *http.Server

	mu       sync.Mutex
	running  bool
	listener net.Listener
}

// New wraps handler in the middleware chain. A nil logger uses
// slog.Default.
func New(cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger = logger.With("component", "server")
	mws := []middleware.Middleware{
		middleware.Timeout(cfg.RequestTimeout),
		middleware.CORS(cfg.CORS),
		middleware.RequestID,
		middleware.Logging(logger),
	}
	if cfg.Tracer != nil {
		mws = append(mws, tracing.HTTPMiddleware(cfg.Tracer))
	}
	mws = append(mws, middleware.Recovery(logger))
	return &Server{
		config:  cfg,
		logger:  logger,
		handler: middleware.Chain(handler, mws...),
	}
}

// Handler returns the wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound address once Run is listening, or "".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	var tlsConfig *tls.Config
	if s.config.TLSEnabled() {
		var err error
		if tlsConfig, err = s.configureTLS(); err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}
	s.running = true
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		MaxHeaderBytes:    s.config.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	srv := s.httpServer
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.listener = nil
		s.mu.Unlock()
	}()

	s.logger.Info("server listening",
		"address", ln.Addr().String(),
		"tls_enabled", tlsConfig != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server", "timeout", s.config.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// IsRunning reports whether Run is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) configureTLS() (*tls.Config, error) {
	for _, f := range []string{s.config.TLSCertFile, s.config.TLSKeyFile} {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("TLS file %s: %w", f, err)
		}
	}
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}, nil
}
