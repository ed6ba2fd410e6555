package extension

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync"

	"github.com/ninomaruszewski/roycemorebot/internal/audit"
	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
)

// State is the load state of an extension.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
)

// Outcomes logged for every operation.
const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Logger defines the logging interface used by the Registry.
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

// Registrar receives the commands of loaded extensions.
// *dispatch.Dispatcher satisfies it.
type Registrar interface {
	Register(owner string, cmds []dispatch.Command) error
	Unregister(owner string) []string
}

// Auditor records registry operations.
// *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID, userID string, details map[string]any)
}

// loaded is the registry's record of a loaded extension.
type loaded struct {
	ext      Extension
	manifest Manifest
	commands []string
}

// Registry loads and unloads extensions.
//
// Operations on the same name are serialized by a per-name mutex, so a
// reload cannot interleave with a concurrent unload of that extension.
// Operations on different names run concurrently.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	catalog   *Catalog
	registrar Registrar

	// fsys and dir locate manifests. A nil fsys means every catalog entry
	// is discoverable and loads with empty settings.
	fsys fs.FS
	dir  string

	mu     sync.RWMutex
	loaded map[string]*loaded
	locks  map[string]*sync.Mutex

	logger  Logger
	auditor Auditor
}

// NewRegistry creates a registry over catalog whose commands go to registrar.
func NewRegistry(catalog *Catalog, registrar Registrar) *Registry {
	return &Registry{
		catalog:   catalog,
		registrar: registrar,
		loaded:    make(map[string]*loaded),
		locks:     make(map[string]*sync.Mutex),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetAuditor sets the optional auditor.
func (r *Registry) SetAuditor(a Auditor) {
	r.auditor = a
}

// SetSource points discovery and manifest lookup at dir within fsys.
func (r *Registry) SetSource(fsys fs.FS, dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fsys, r.dir = fsys, dir
}

func (r *Registry) source() (fs.FS, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fsys, r.dir
}

// Discover lists the extensions available to load.
func (r *Registry) Discover() ([]string, error) {
	fsys, dir := r.source()
	if fsys == nil {
		return r.catalog.Names(), nil
	}
	return Discover(fsys, dir)
}

// LoadAll discovers and loads every extension. A failing extension is
// logged and skipped.
//
// Returns:
//   - []string: Names that loaded
//   - error: Only if discovery itself fails
func (r *Registry) LoadAll(ctx context.Context) ([]string, error) {
	names, err := r.Discover()
	if err != nil {
		return nil, err
	}

	var ok []string
	for _, name := range names {
		if err := r.Load(ctx, name); err != nil {
			r.logger.Error("skipping extension", "extension", name, "error", err)
			continue
		}
		ok = append(ok, name)
	}
	return ok, nil
}

// Load transitions an extension from Unloaded to Loaded.
//
// Returns:
//   - error: *Error wrapping ErrExtensionAlreadyLoaded, ErrInvalidName or
//     ErrExtensionLoad (not found, factory, start or registration failure).
//     On failure the extension stays Unloaded.
func (r *Registry) Load(ctx context.Context, name string) error {
	qualified, err := Qualify(name)
	if err != nil {
		return &Error{Op: audit.ActionLoad, Name: name, Err: err}
	}

	unlock := r.lock(qualified)
	defer unlock()

	err = r.load(ctx, qualified)
	r.report(ctx, audit.ActionLoad, qualified, err)
	return wrap(audit.ActionLoad, qualified, err)
}

// Unload transitions an extension from Loaded to Unloaded.
//
// Returns:
//   - error: *Error wrapping ErrExtensionNotLoaded or ErrInvalidName
func (r *Registry) Unload(ctx context.Context, name string) error {
	qualified, err := Qualify(name)
	if err != nil {
		return &Error{Op: audit.ActionUnload, Name: name, Err: err}
	}

	unlock := r.lock(qualified)
	defer unlock()

	err = r.unload(ctx, qualified)
	r.report(ctx, audit.ActionUnload, qualified, err)
	return wrap(audit.ActionUnload, qualified, err)
}

// Reload unloads then loads an extension under one lock.
//
// Reloading an unloaded extension fails with ErrExtensionNotLoaded and
// loads nothing. If the load step fails the extension is left Unloaded and
// the load error is returned.
func (r *Registry) Reload(ctx context.Context, name string) error {
	qualified, err := Qualify(name)
	if err != nil {
		return &Error{Op: audit.ActionReload, Name: name, Err: err}
	}

	unlock := r.lock(qualified)
	defer unlock()

	err = r.unload(ctx, qualified)
	if err == nil {
		err = r.load(ctx, qualified)
	}
	r.report(ctx, audit.ActionReload, qualified, err)
	return wrap(audit.ActionReload, qualified, err)
}

// State returns the state of an extension. Unknown names are Unloaded.
func (r *Registry) State(name string) State {
	qualified, err := Qualify(name)
	if err != nil {
		return StateUnloaded
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.loaded[qualified]; ok {
		return StateLoaded
	}
	return StateUnloaded
}

// Loaded returns the names of loaded extensions in sorted order.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.loaded))
}

// Info describes one extension for listings.
type Info struct {
	Name        string   `json:"name"`
	State       State    `json:"state"`
	Description string   `json:"description,omitempty"`
	Commands    []string `json:"commands,omitempty"`
}

// List describes every discoverable or loaded extension, sorted by name.
func (r *Registry) List() ([]Info, error) {
	names, err := r.Discover()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for n := range r.loaded {
		seen[n] = true
	}

	infos := make([]Info, 0, len(seen))
	for _, n := range slices.Sorted(maps.Keys(seen)) {
		info := Info{Name: n, State: StateUnloaded}
		if l, ok := r.loaded[n]; ok {
			info.State = StateLoaded
			info.Description = l.manifest.Description
			info.Commands = slices.Clone(l.commands)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// lock acquires the mutex for a qualified name and returns its release.
func (r *Registry) lock(qualified string) func() {
	r.mu.Lock()
	m, ok := r.locks[qualified]
	if !ok {
		m = &sync.Mutex{}
		r.locks[qualified] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// load must be called with the name's lock held.
func (r *Registry) load(ctx context.Context, qualified string) error {
	r.mu.RLock()
	_, isLoaded := r.loaded[qualified]
	r.mu.RUnlock()
	if isLoaded {
		return ErrExtensionAlreadyLoaded
	}

	factory, ok := r.catalog.Factory(qualified)
	if !ok {
		return fmt.Errorf("%w: %w: %s is not compiled in", ErrExtensionLoad, ErrExtensionNotFound, qualified)
	}

	manifest := Manifest{Name: qualified}
	if fsys, dir := r.source(); fsys != nil {
		m, err := ReadManifest(fsys, dir, qualified)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExtensionLoad, err)
		}
		manifest = m
	}

	ext, err := factory(ctx, manifest)
	if err != nil {
		return fmt.Errorf("%w: initializing: %w", ErrExtensionLoad, err)
	}
	if ext == nil {
		return fmt.Errorf("%w: factory returned no extension", ErrExtensionLoad)
	}

	if s, ok := ext.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("%w: starting: %w", ErrExtensionLoad, err)
		}
	}

	cmds := ext.Commands()
	if err := r.registrar.Register(qualified, cmds); err != nil {
		r.stop(ctx, qualified, ext)
		return fmt.Errorf("%w: registering commands: %w", ErrExtensionLoad, err)
	}

	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}

	r.mu.Lock()
	r.loaded[qualified] = &loaded{ext: ext, manifest: manifest, commands: names}
	r.mu.Unlock()

	return nil
}

// unload must be called with the name's lock held.
func (r *Registry) unload(ctx context.Context, qualified string) error {
	r.mu.Lock()
	l, ok := r.loaded[qualified]
	if ok {
		delete(r.loaded, qualified)
	}
	r.mu.Unlock()
	if !ok {
		return ErrExtensionNotLoaded
	}

	removed := r.registrar.Unregister(qualified)
	r.logger.Debug("commands unregistered", "extension", qualified, "commands", removed)
	r.stop(ctx, qualified, l.ext)
	return nil
}

// stop runs the extension's Stop hook. A failing hook does not keep the
// extension loaded; the error is logged.
func (r *Registry) stop(ctx context.Context, qualified string, ext Extension) {
	s, ok := ext.(Stopper)
	if !ok {
		return
	}
	if err := s.Stop(ctx); err != nil {
		r.logger.Warn("extension stop failed", "extension", qualified, "error", err)
	}
}

// report writes the log line and audit record every operation produces.
func (r *Registry) report(ctx context.Context, action, qualified string, err error) {
	outcome := outcomeOK
	details := map[string]any{"outcome": outcome}
	if err != nil {
		outcome = outcomeFailed
		details = map[string]any{"outcome": outcome, "error": err.Error()}
		r.logger.Warn("extension "+action+" failed", "extension", qualified, "action", action, "outcome", outcome, "error", err)
	} else {
		r.logger.Info("extension "+action+"ed", "extension", qualified, "action", action, "outcome", outcome)
	}

	if r.auditor != nil {
		r.auditor.Record(ctx, action, audit.EntityExtension, qualified, "", details)
	}
}

func wrap(op, qualified string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Name: qualified, Err: err}
}
