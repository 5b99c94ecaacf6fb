// Package server exposes the ATT&CK language service to editors over LSP
// (stdio, TCP or WebSocket) and serves a small JSON lookup API next to the
// WebSocket endpoint.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
	"github.com/teranos/attackls/lsp"
	"github.com/teranos/attackls/server/clientlog"
	"github.com/teranos/attackls/version"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// MaxConnections caps concurrent WebSocket LSP sessions
	MaxConnections = 64

	shutdownTimeout = 5 * time.Second
)

// Server runs the language server on the configured transport
type Server struct {
	service *lsp.Service
	logger  *zap.SugaredLogger
	debug   bool           // glsp RPC message tracing
	logs    *clientlog.Hub // nil = no log forwarding to clients
	metrics *metrics

	mu      sync.RWMutex
	config  am.ServerConfig
	limiter *rate.Limiter // nil = unlimited

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	httpServer  *http.Server
	connections map[*websocket.Conn]string // open WebSocket sessions → connection id
	connMu      sync.Mutex
	served      atomic.Int64
	stopOnce    sync.Once
	stopErr     error
}

// New creates a server for service. Call Shutdown to release it.
func New(service *lsp.Service, cfg am.ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		service:     service,
		logger:      logger.ComponentLogger("server"),
		metrics:     newMetrics(),
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[*websocket.Conn]string),
	}
	s.UpdateConfig(cfg)
	return s
}

// SetDebug enables glsp's JSON-RPC message tracing for new sessions
func (s *Server) SetDebug(enabled bool) {
	s.debug = enabled
}

// ForwardLogs makes sessions started after the call receive server logs as window/logMessage
func (s *Server) ForwardLogs(hub *clientlog.Hub) {
	s.logs = hub
}

func (s *Server) newHandler(transport string) *GLSPHandler {
	h := NewGLSPHandler(s.ctx, s.service, transport)
	h.metrics = s.metrics
	if s.logs != nil {
		h.ForwardLogs(s.logs)
	}
	return h
}

// Service returns the language service behind every session
func (s *Server) Service() *lsp.Service {
	return s.service
}

// UpdateConfig applies the settings that may change while running:
// allowed origins and the lookup API rate limit.
func (s *Server) UpdateConfig(cfg am.ServerConfig) {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	s.mu.Lock()
	s.config = cfg
	s.limiter = limiter
	s.mu.Unlock()

	s.logger.Debugw("Server config applied",
		logger.FieldTransport, cfg.Transport,
		"allowed_origins", cfg.AllowedOrigins,
		"rate_limit", cfg.RateLimit,
	)
}

func (s *Server) serverConfig() am.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Server) rateLimiter() *rate.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiter
}

// Serve runs the configured transport until it ends or ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	cfg := s.serverConfig()

	s.logger.Infow("Starting language server",
		logger.FieldTransport, cfg.Transport,
		logger.FieldAddress, cfg.Address,
		"version", version.Get().ServerVersion(),
	)

	switch cfg.Transport {
	case am.TransportStdio:
		return s.runBlocking(ctx, s.RunStdio)
	case am.TransportTCP:
		return s.runBlocking(ctx, func() error { return s.RunTCP(cfg.Address) })
	case am.TransportWebSocket:
		return s.ListenAndServe(ctx, cfg.Address)
	default:
		return errors.NewInvalidConfigError("use one of: stdio, tcp, websocket", "unsupported transport %q", cfg.Transport)
	}
}

// runBlocking runs a transport that cannot be interrupted, returning early when ctx ends
func (s *Server) runBlocking(ctx context.Context, run func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- run()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.cancel()
		return nil
	}
}

// RunStdio serves a single session over stdin/stdout
func (s *Server) RunStdio() error {
	h := s.newHandler(am.TransportStdio)
	defer h.Close()
	defer s.metrics.session(am.TransportStdio)()

	err := newGLSPServer(h, s.debug).RunStdio()
	s.logger.Infow("Stdio session ended", logger.FieldConnection, h.ID())
	return err
}

// RunTCP accepts sessions on address.
// glsp dispatches every TCP connection to the same handler, so they share one document cache.
func (s *Server) RunTCP(address string) error {
	h := s.newHandler(am.TransportTCP)
	defer h.Close()

	s.logger.Infow("Listening for LSP over TCP", logger.FieldAddress, address)
	if err := newGLSPServer(h, s.debug).RunTCP(address); err != nil {
		return errors.Wrapf(err, "tcp transport on %s", address)
	}
	return nil
}

// ListenAndServe serves LSP over WebSocket at /lsp and the lookup API on address
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", address),
			"choose another server.address",
		)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves the HTTP surface on an existing listener
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("Shutdown incomplete", logger.FieldError, err)
		}
	}()

	s.logger.Infow("Server ready",
		logger.FieldAddress, listener.Addr().String(),
		"lsp", "ws://"+listener.Addr().String()+"/lsp",
	)

	err := s.httpServer.Serve(listener)
	s.cancel()
	s.wg.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown stops accepting sessions, closes open WebSockets and cancels in-flight lookups
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.shutdown(ctx)
	})
	return s.stopErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// hijacked connections are not tracked by http.Server
	s.connMu.Lock()
	for conn, id := range s.connections {
		_ = conn.Close()
		s.logger.Debugw("Closed WebSocket session", logger.FieldConnection, id)
	}
	s.connMu.Unlock()

	s.logger.Infow("Server stopped", "sessions_served", s.served.Load())
	return err
}

func (s *Server) trackConnection(conn *websocket.Conn, id string) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if len(s.connections) >= MaxConnections {
		return false
	}
	s.connections[conn] = id
	s.served.Add(1)
	return true
}

func (s *Server) untrackConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()
}
