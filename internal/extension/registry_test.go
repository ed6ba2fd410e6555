package extension

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
	"github.com/ninomaruszewski/roycemorebot/internal/infrastructure/config"
)

type testExtension struct {
	commands []dispatch.Command
	stopped  atomic.Bool
	startErr error
}

func (e *testExtension) Commands() []dispatch.Command { return e.commands }

func (e *testExtension) Start(context.Context) error { return e.startErr }

func (e *testExtension) Stop(context.Context) error {
	e.stopped.Store(true)
	return nil
}

func noop(context.Context, *dispatch.Request) error { return nil }

type auditEntry struct {
	action, entityID string
	outcome          any
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAuditor) Record(_ context.Context, action, _, entityID, _ string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action, entityID, details["outcome"]})
}

// fixture wires a registry to a real dispatcher.
type fixture struct {
	registry   *Registry
	dispatcher *dispatch.Dispatcher
	catalog    *Catalog
	auditor    *fakeAuditor
	builds     atomic.Int32
	last       atomic.Pointer[testExtension]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:    NewCatalog(),
		dispatcher: dispatch.New("!", nil, config.EmojiConfig{}),
		auditor:    &fakeAuditor{},
	}
	f.registry = NewRegistry(f.catalog, f.dispatcher)
	f.registry.SetAuditor(f.auditor)

	if err := f.catalog.Add("status", func(context.Context, Manifest) (Extension, error) {
		f.builds.Add(1)
		ext := &testExtension{commands: []dispatch.Command{
			{Name: "ping", Handler: noop},
			{Name: "restart", Handler: noop},
		}}
		f.last.Store(ext)
		return ext, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := f.catalog.Add("exts.broken", func(context.Context, Manifest) (Extension, error) {
		return nil, errors.New("missing dependency")
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return f
}

func TestQualify(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"status", "exts.status", false},
		{"exts.status", "exts.status", false},
		{" status ", "exts.status", false},
		{"", "", true},
		{"exts.", "", true},
		{"../status", "", true},
		{"roycemorebot.exts.status", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Qualify(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Qualify(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Qualify(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("error = %v, want ErrInvalidName", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.registry.Load(ctx, "status"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.registry.State("exts.status") != StateLoaded {
		t.Errorf("State() = %v, want loaded", f.registry.State("exts.status"))
	}
	if _, owner, ok := f.dispatcher.Lookup("ping"); !ok || owner != "exts.status" {
		t.Errorf("ping not registered to exts.status (owner %q)", owner)
	}

	err := f.registry.Load(ctx, "exts.status")
	if !errors.Is(err, ErrExtensionAlreadyLoaded) {
		t.Errorf("second Load() error = %v, want ErrExtensionAlreadyLoaded", err)
	}
	if f.builds.Load() != 1 {
		t.Errorf("factory called %d times, want 1", f.builds.Load())
	}
	if n := len(f.dispatcher.Commands()); n != 2 {
		t.Errorf("dispatcher has %d commands, want 2 (no double registration)", n)
	}

	var extErr *Error
	if !errors.As(err, &extErr) || extErr.Op != "load" || extErr.Name != "exts.status" {
		t.Errorf("error = %#v, want *Error{Op: load, Name: exts.status}", err)
	}
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		wantErr []error
	}{
		{"not compiled in", "nope", []error{ErrExtensionLoad, ErrExtensionNotFound}},
		{"factory error", "broken", []error{ErrExtensionLoad}},
		{"invalid name", "", []error{ErrInvalidName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.registry.Load(context.Background(), tt.ext)
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("Load() error = %v, want %v", err, want)
				}
			}
			if len(f.registry.Loaded()) != 0 {
				t.Errorf("Loaded() = %v, want none", f.registry.Loaded())
			}
		})
	}
}

func TestLoad_StartFailureStaysUnloaded(t *testing.T) {
	f := newFixture(t)
	if err := f.catalog.Add("flaky", func(context.Context, Manifest) (Extension, error) {
		return &testExtension{startErr: errors.New("no token"), commands: []dispatch.Command{{Name: "x", Handler: noop}}}, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := f.registry.Load(context.Background(), "flaky"); !errors.Is(err, ErrExtensionLoad) {
		t.Errorf("Load() error = %v, want ErrExtensionLoad", err)
	}
	if _, _, ok := f.dispatcher.Lookup("x"); ok {
		t.Error("commands registered despite start failure")
	}
}

func TestLoad_RegistrationConflictStopsExtension(t *testing.T) {
	f := newFixture(t)
	var clash *testExtension
	if err := f.catalog.Add("clash", func(context.Context, Manifest) (Extension, error) {
		clash = &testExtension{commands: []dispatch.Command{
			{Name: "unique", Handler: noop},
			{Name: "ping", Handler: noop},
		}}
		return clash, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	ctx := context.Background()

	if err := f.registry.Load(ctx, "status"); err != nil {
		t.Fatalf("Load(status) error = %v", err)
	}
	err := f.registry.Load(ctx, "clash")
	if !errors.Is(err, ErrExtensionLoad) || !errors.Is(err, dispatch.ErrCommandConflict) {
		t.Errorf("Load(clash) error = %v, want ErrExtensionLoad wrapping ErrCommandConflict", err)
	}
	if !clash.stopped.Load() {
		t.Error("extension not stopped after failed registration")
	}
	if _, _, ok := f.dispatcher.Lookup("unique"); ok {
		t.Error("partial registration visible")
	}
	if f.registry.State("clash") != StateUnloaded {
		t.Error("clash should remain unloaded")
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.registry.Unload(ctx, "status"); !errors.Is(err, ErrExtensionNotLoaded) {
		t.Errorf("Unload() of unloaded error = %v, want ErrExtensionNotLoaded", err)
	}

	if err := f.registry.Load(ctx, "status"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ext := f.last.Load()
	if err := f.registry.Unload(ctx, "status"); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if f.registry.State("status") != StateUnloaded {
		t.Error("State() after Unload should be unloaded")
	}
	if _, _, ok := f.dispatcher.Lookup("ping"); ok {
		t.Error("ping still registered after unload")
	}
	if !ext.stopped.Load() {
		t.Error("Stop hook not called")
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unloaded extension fails without loading", func(t *testing.T) {
		err := f.registry.Reload(ctx, "status")
		if !errors.Is(err, ErrExtensionNotLoaded) {
			t.Errorf("Reload() error = %v, want ErrExtensionNotLoaded", err)
		}
		if f.builds.Load() != 0 || f.registry.State("status") != StateUnloaded {
			t.Error("Reload() of unloaded extension performed a load")
		}
	})

	t.Run("loaded extension is rebuilt", func(t *testing.T) {
		if err := f.registry.Load(ctx, "status"); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		first := f.last.Load()
		if err := f.registry.Reload(ctx, "exts.status"); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if f.last.Load() == first || !first.stopped.Load() {
			t.Error("Reload() did not replace the instance")
		}
		if _, _, ok := f.dispatcher.Lookup("restart"); !ok {
			t.Error("commands missing after reload")
		}
	})

	t.Run("failed load leaves extension unloaded", func(t *testing.T) {
		fail := atomic.Bool{}
		if err := f.catalog.Add("toggle", func(context.Context, Manifest) (Extension, error) {
			if fail.Load() {
				return nil, errors.New("broken on disk")
			}
			return &testExtension{commands: []dispatch.Command{{Name: "toggle", Handler: noop}}}, nil
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if err := f.registry.Load(ctx, "toggle"); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		fail.Store(true)
		err := f.registry.Reload(ctx, "toggle")
		if !errors.Is(err, ErrExtensionLoad) {
			t.Errorf("Reload() error = %v, want ErrExtensionLoad", err)
		}
		if f.registry.State("toggle") != StateUnloaded {
			t.Error("extension should be unloaded after failed reload")
		}
		if _, _, ok := f.dispatcher.Lookup("toggle"); ok {
			t.Error("stale command left registered")
		}
	})
}

func TestOperationsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.registry.Load(ctx, "status")
	_ = f.registry.Reload(ctx, "status")
	_ = f.registry.Unload(ctx, "status")
	_ = f.registry.Unload(ctx, "status")

	want := []auditEntry{
		{"load", "exts.status", "ok"},
		{"reload", "exts.status", "ok"},
		{"unload", "exts.status", "ok"},
		{"unload", "exts.status", "failed"},
	}
	if len(f.auditor.entries) != len(want) {
		t.Fatalf("audit entries = %+v, want %+v", f.auditor.entries, want)
	}
	for i := range want {
		if f.auditor.entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, f.auditor.entries[i], want[i])
		}
	}
}

func TestLoadAll(t *testing.T) {
	f := newFixture(t)

	loaded, err := f.registry.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(loaded) != 1 || loaded[0] != "exts.status" {
		t.Errorf("LoadAll() = %v, want [exts.status] (broken skipped)", loaded)
	}

	infos, err := f.registry.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "exts.broken" || infos[0].State != StateUnloaded ||
		infos[1].State != StateLoaded || len(infos[1].Commands) != 2 {
		t.Errorf("List() = %+v", infos)
	}
}

func TestManifestSource(t *testing.T) {
	f := newFixture(t)
	var got Manifest
	if err := f.catalog.Add("configured", func(_ context.Context, m Manifest) (Extension, error) {
		got = m
		return &testExtension{}, nil
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	f.registry.SetSource(fstest.MapFS{
		"extensions/configured.json": {Data: []byte(`{
			// manifest comments are allowed
			"description": "Configured",
			"settings": {"precision": 2},
		}`)},
		"extensions/status.json": {Data: []byte(``)},
	}, "extensions")

	loaded, err := f.registry.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("LoadAll() = %v, want configured and status", loaded)
	}

	var settings struct{ Precision int }
	if err := got.DecodeSettings(&settings); err != nil || settings.Precision != 2 {
		t.Errorf("settings = %+v (%v), want precision 2", settings, err)
	}
	if got.Description != "Configured" || got.Name != "exts.configured" {
		t.Errorf("manifest = %+v", got)
	}

	// Compiled in but without a manifest: not loadable from this source.
	if err := f.registry.Load(context.Background(), "broken"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("Load(broken) error = %v, want ErrExtensionNotFound", err)
	}
}

func TestConcurrentOperationsOnOneName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.registry.Load(ctx, "status"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_ = f.registry.Reload(ctx, "status")
			case 1:
				_ = f.registry.Unload(ctx, "status")
			default:
				_ = f.registry.Load(ctx, "status")
			}
		}()
	}
	wg.Wait()

	// Registry state and command table must agree.
	_, _, registered := f.dispatcher.Lookup("ping")
	if loaded := f.registry.State("status") == StateLoaded; loaded != registered {
		t.Errorf("state loaded=%v but ping registered=%v", loaded, registered)
	}
	if n := len(f.dispatcher.Commands()); n != 0 && n != 2 {
		t.Errorf("dispatcher has %d commands, want 0 or 2", n)
	}
}
