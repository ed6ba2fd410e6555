// Package ops serves a small HTTP endpoint for operators: liveness, the
// lifecycle state, extension listings and the audit trail.
//
// The server is optional (ops.enabled) and binds to loopback by default.
// It follows the same lifecycle pattern as other components:
//
//	srv, err := ops.New(deps)
//	srv.Start(ctx)
//	defer srv.Stop(ctx)
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/extension"
	"github.com/ninomaruszewski/roycemorebot/internal/lifecycle"
)

// shutdownTimeout bounds Stop when the caller's context has no deadline.
const shutdownTimeout = 5 * time.Second

// Logger defines the logging interface used by the Server.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateSource reports the lifecycle state. *lifecycle.Manager satisfies it.
type StateSource interface {
	State() lifecycle.State
}

// Extensions lists and reloads extensions. *extension.Registry satisfies it.
type Extensions interface {
	List() ([]extension.Info, error)
	Reload(ctx context.Context, name string) error
}

// AuditLister reads the audit trail. *audit.SQLiteRepository satisfies it.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Check is a named health probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Deps holds the dependencies of the ops server.
type Deps struct {
	Listen     string
	Version    string
	State      StateSource
	Extensions Extensions
	Checks     []Check
}

// Server is the ops HTTP server.
type Server struct {
	listen     string
	version    string
	state      StateSource
	extensions Extensions
	checks     []Check
	logger     Logger

	mu       sync.RWMutex
	auditLog AuditLister
	server   *http.Server
	addr     net.Addr
}

// New creates an ops server. It does not listen until Start.
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Listen == "" {
		return nil, errors.New("ops: listen address is required")
	}
	if deps.State == nil || deps.Extensions == nil {
		return nil, errors.New("ops: state and extensions are required")
	}
	return &Server{
		listen:     deps.Listen,
		version:    deps.Version,
		state:      deps.State,
		extensions: deps.Extensions,
		checks:     deps.Checks,
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetAuditLog sets the audit source. It becomes available once storage is open.
func (s *Server) SetAuditLog(a AuditLister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = a
}

func (s *Server) audit() AuditLister {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auditLog
}

// Start binds the listen address and serves in the background.
// Binding happens before Start returns, so a taken port is reported here.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("ops: listening on %s: %w", s.listen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()

	s.logger.Info("ops server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop gracefully shuts the server down. Safe to call without Start.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	s.logger.Info("ops server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops: shutting down: %w", err)
	}
	return nil
}
