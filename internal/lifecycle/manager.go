package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/platform"
)

// DefaultGracePeriod bounds how long Shutdown waits for in-flight commands.
const DefaultGracePeriod = 2 * time.Second

// Storage is the persistent store opened at startup.
// *database.DB satisfies it.
type Storage interface {
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// StorageOpener opens the store. It is called once, from Startup.
type StorageOpener func(ctx context.Context) (Storage, error)

// Extensions loads every discoverable extension.
// *extension.Registry satisfies it.
type Extensions interface {
	LoadAll(ctx context.Context) ([]string, error)
}

// Dispatcher receives platform events and gates command execution.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	platform.EventHandler
	Open(ctx context.Context)
	Close()
	Wait(ctx context.Context) error
	Abort()
}

// Service is an optional component started once the bot is Connected and
// stopped, in reverse order, during Shutdown.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives state transitions.
// *influxdb.Client satisfies it.
type Metrics interface {
	WriteLifecycleEvent(state string)
}

// Auditor records startup and shutdown.
// *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID, userID string, details map[string]any)
}

// Options configures a Manager.
type Options struct {
	OpenStorage StorageOpener
	Extensions  Extensions
	Platform    platform.Platform
	Dispatcher  Dispatcher

	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration
}

type namedService struct {
	name string
	svc  Service
}

// Manager is the bot's lifecycle state machine.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Startup and the teardown half of Shutdown never overlap.
type Manager struct {
	opts Options

	// phase serializes Startup against the teardown in Shutdown.
	phase sync.Mutex

	// gate makes opening the dispatcher atomic with entering ShuttingDown.
	// Ready callbacks run under it and must use RequestShutdown, not Shutdown.
	gate sync.Mutex

	mu            sync.RWMutex
	state         State
	storage       Storage
	services      []namedService
	started       []namedService
	cancelStartup context.CancelFunc
	reason        string

	requested   chan struct{}
	requestOnce sync.Once
	done        chan struct{}

	logger  Logger
	metrics Metrics
	auditor Auditor
}

// New creates a Manager in the Initializing state.
//
// Returns:
//   - *Manager: Ready for Startup
//   - error: ErrInvalidOptions if a dependency is nil
func New(opts Options) (*Manager, error) {
	switch {
	case opts.OpenStorage == nil:
		return nil, fmt.Errorf("%w: storage opener is required", ErrInvalidOptions)
	case opts.Extensions == nil:
		return nil, fmt.Errorf("%w: extensions are required", ErrInvalidOptions)
	case opts.Platform == nil:
		return nil, fmt.Errorf("%w: platform is required", ErrInvalidOptions)
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("%w: dispatcher is required", ErrInvalidOptions)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}

	return &Manager{
		opts:      opts,
		state:     StateInitializing,
		requested: make(chan struct{}),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics sets the optional lifecycle metrics sink.
func (m *Manager) SetMetrics(metrics Metrics) {
	m.metrics = metrics
}

// SetAuditor sets the optional auditor.
func (m *Manager) SetAuditor(a Auditor) {
	m.auditor = a
}

// AddService registers a service to start once Connected.
// Must be called before Startup.
func (m *Manager) AddService(name string, svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, namedService{name: name, svc: svc})
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Storage returns the open store, or nil before StorageReady.
func (m *Manager) Storage() Storage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage
}

// Startup runs Initializing through Connected.
//
// Storage failures are fatal. Individual extension failures are logged by
// the registry and skipped. A platform connection failure is fatal and not
// retried. On any error the caller should still call Shutdown to release
// what was opened.
//
// Parameters:
//   - ctx: Cancels startup; Shutdown also cancels it
//
// Returns:
//   - error: ErrAlreadyStarted, ErrShuttingDown, or the failing step's error
func (m *Manager) Startup(ctx context.Context) error {
	m.phase.Lock()
	defer m.phase.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	switch {
	case m.state.terminating():
		m.mu.Unlock()
		return ErrShuttingDown
	case m.state != StateInitializing:
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.cancelStartup = cancel
	m.mu.Unlock()

	m.logger.Info("starting up")

	store, err := m.opts.OpenStorage(ctx)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	m.mu.Lock()
	m.storage = store
	m.mu.Unlock()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("storage health check: %w", err)
	}
	if err := m.advance(StateInitializing, StateStorageReady); err != nil {
		return err
	}

	loaded, err := m.opts.Extensions.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading extensions: %w", err)
	}
	m.logger.Info("extensions loaded", "count", len(loaded), "extensions", loaded)
	if err := m.advance(StateStorageReady, StateExtensionsReady); err != nil {
		return err
	}

	// advance above fails once ShuttingDown, so no connection is attempted
	// after shutdown began. A shutdown racing the call below cancels ctx.
	if err := m.opts.Platform.Connect(ctx, m.opts.Dispatcher); err != nil {
		return fmt.Errorf("connecting to platform: %w", err)
	}
	if err := m.advance(StateExtensionsReady, StateConnected); err != nil {
		return err
	}
	if err := m.openDispatcher(ctx); err != nil {
		return err
	}

	m.mu.RLock()
	services := m.services
	m.mu.RUnlock()
	for _, s := range services {
		if m.State().terminating() {
			return ErrShuttingDown
		}
		if err := s.svc.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", s.name, err)
		}
		m.mu.Lock()
		m.started = append(m.started, s)
		m.mu.Unlock()
		m.logger.Info("service started", "service", s.name)
	}

	if m.State().terminating() {
		return ErrShuttingDown
	}
	m.record(ctx, audit.ActionStartup, map[string]any{"extensions": loaded})
	return nil
}

// openDispatcher opens the dispatcher gate unless shutdown already began.
func (m *Manager) openDispatcher(ctx context.Context) error {
	m.gate.Lock()
	defer m.gate.Unlock()

	if m.State() != StateConnected {
		return ErrShuttingDown
	}
	m.opts.Dispatcher.Open(ctx)
	return nil
}

// RequestShutdown asks the owner of the Manager to shut down. The first
// reason wins; later calls are no-ops.
func (m *Manager) RequestShutdown(reason string) {
	m.requestOnce.Do(func() {
		m.mu.Lock()
		m.reason = reason
		m.mu.Unlock()
		m.logger.Info("shutdown requested", "reason", reason)
		close(m.requested)
	})
}

// ShutdownRequested is closed by the first RequestShutdown.
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.requested
}

// Reason returns the reason passed to RequestShutdown.
func (m *Manager) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Done is closed once the manager is Stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown moves to ShuttingDown, tears everything down and ends Stopped.
//
// Order: close the dispatcher gate, close the platform, close storage, wait
// for in-flight commands up to the grace period (then abort them), stop
// services. Storage close is attempted even if the platform close fails.
//
// Shutdown is idempotent: later calls wait for the first to finish.
//
// Returns:
//   - error: Every teardown failure, joined
func (m *Manager) Shutdown(ctx context.Context) error {
	m.gate.Lock()
	m.mu.Lock()
	if m.state.terminating() {
		m.mu.Unlock()
		m.gate.Unlock()
		select {
		case <-m.done:
		case <-ctx.Done():
		}
		return nil
	}
	from := m.state
	m.state = StateShuttingDown
	cancelStartup := m.cancelStartup
	m.mu.Unlock()
	m.gate.Unlock()

	m.transitioned(from, StateShuttingDown)
	if cancelStartup != nil {
		cancelStartup()
	}

	m.phase.Lock()
	defer m.phase.Unlock()

	var errs []error

	m.opts.Dispatcher.Close()

	if err := m.opts.Platform.Close(); err != nil {
		m.logger.Error("error closing platform", "error", err)
		errs = append(errs, fmt.Errorf("closing platform: %w", err))
	}

	m.mu.RLock()
	store := m.storage
	m.mu.RUnlock()
	if store != nil {
		// Written before close so the row lands in the store being closed.
		m.record(ctx, audit.ActionShutdown, map[string]any{"from": from.String(), "reason": m.Reason()})
		m.logger.Info("closing storage")
		if err := store.Close(); err != nil {
			m.logger.Error("error closing storage", "error", err)
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}

	graceCtx, cancel := context.WithTimeout(ctx, m.opts.GracePeriod)
	if err := m.opts.Dispatcher.Wait(graceCtx); err != nil {
		m.logger.Warn("in-flight commands did not finish within grace period, aborting",
			"grace", m.opts.GracePeriod)
		m.opts.Dispatcher.Abort()
	}
	cancel()

	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	for i := len(started) - 1; i >= 0; i-- {
		s := started[i]
		if err := s.svc.Stop(ctx); err != nil {
			m.logger.Error("error stopping service", "service", s.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", s.name, err))
		}
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()
	m.transitioned(StateShuttingDown, StateStopped)
	close(m.done)

	return errors.Join(errs...)
}

// advance moves from one state to the next, failing if shutdown began.
func (m *Manager) advance(from, to State) error {
	m.mu.Lock()
	if m.state != from {
		current := m.state
		m.mu.Unlock()
		if current.terminating() {
			return ErrShuttingDown
		}
		return fmt.Errorf("lifecycle: unexpected state %s, want %s", current, from)
	}
	m.state = to
	m.mu.Unlock()

	m.transitioned(from, to)
	return nil
}

func (m *Manager) transitioned(from, to State) {
	m.logger.Info("lifecycle state changed", "from", from.String(), "to", to.String())
	if m.metrics != nil {
		m.metrics.WriteLifecycleEvent(to.String())
	}
}

func (m *Manager) record(ctx context.Context, action string, details map[string]any) {
	if m.auditor != nil {
		m.auditor.Record(ctx, action, audit.EntityLifecycle, "", "", details)
	}
}
