package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ninomaruszewski/roycemorebot/internal/dispatch"
)

// Namespace is the qualifier every extension name carries.
const Namespace = "exts"

// Extension is a loaded unit of command handlers.
type Extension interface {
	// Commands returns the commands registered while the extension is loaded.
	Commands() []dispatch.Command
}

// Starter is implemented by extensions that need work done after
// construction and before their commands are registered.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by extensions that hold resources to release on unload.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Manifest is the discovery record of one extension.
type Manifest struct {
	// Name is the qualified name, e.g. "exts.status".
	Name string `json:"-"`

	Description string `json:"description,omitempty"`

	// Settings is passed to the factory untouched.
	Settings json.RawMessage `json:"settings,omitempty"`
}

// DecodeSettings unmarshals the manifest settings into v.
// Missing settings leave v unchanged.
func (m Manifest) DecodeSettings(v any) error {
	if len(m.Settings) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Settings, v); err != nil {
		return fmt.Errorf("decoding settings of %s: %w", m.Name, err)
	}
	return nil
}

// Factory builds an extension instance. It is called on every load.
type Factory func(ctx context.Context, m Manifest) (Extension, error)

// Catalog maps qualified names to factories of compiled-in extensions.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers a factory. name may be short ("status") or qualified
// ("exts.status"). Adding a name twice replaces the factory.
func (c *Catalog) Add(name string, f Factory) error {
	qualified, err := Qualify(name)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: nil factory for %s", ErrInvalidName, qualified)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[qualified] = f
	return nil
}

// Factory returns the factory for a qualified name.
func (c *Catalog) Factory(qualified string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[qualified]
	return f, ok
}

// Names returns the qualified names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.factories))
}

// Qualify turns "status" or "exts.status" into "exts.status".
func Qualify(name string) (string, error) {
	name = strings.TrimSpace(name)
	short, _ := strings.CutPrefix(name, Namespace+".")
	if short == "" || strings.ContainsAny(short, "./\\ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return Namespace + "." + short, nil
}

// Short returns the name without the namespace qualifier.
func Short(qualified string) string {
	short, _ := strings.CutPrefix(qualified, Namespace+".")
	return short
}
