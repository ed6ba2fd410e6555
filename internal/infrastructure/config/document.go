package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvMarker is stored in place of a value to request resolution from the
// environment variable named after the upper-cased key.
const EnvMarker = "!ENV"

// Default document locations, checked in this order.
const (
	DefaultOverridePath = "config.json"
	DefaultPath         = "config-default.json"
)

// Document is an immutable configuration tree loaded from a single file.
//
// A document has top-level sections. Each section maps keys to scalar values
// or to one level of subsections, which in turn map keys to scalar values.
//
// Thread Safety:
//   - Document is never mutated after Load and is safe for concurrent use.
type Document struct {
	source   string
	sections map[string]map[string]any
	env      func(string) (string, bool)
}

// Path identifies a value in a Document.
// Subsection is optional; an empty Subsection addresses a key directly in the section.
type Path struct {
	Section    string
	Subsection string
	Key        string
}

// Key returns a Path for a key directly inside a section.
func Key(section, key string) Path {
	return Path{Section: section, Key: key}
}

// SubKey returns a Path for a key inside a subsection.
func SubKey(section, subsection, key string) Path {
	return Path{Section: section, Subsection: subsection, Key: key}
}

// String returns the dotted form of the path, e.g. "guild.staff_roles.admin_role".
func (p Path) String() string {
	if p.Subsection == "" {
		return p.Section + "." + strings.ToLower(p.Key)
	}
	return p.Section + "." + p.Subsection + "." + strings.ToLower(p.Key)
}

// Load reads overridePath if it exists, otherwise defaultPath, and parses it
// into an immutable Document.
//
// The two files are never merged: when the override exists, values that are
// only present in the default document are not visible.
//
// Files ending in .yaml or .yml are parsed as YAML. Everything else is parsed
// as JSON, with comments and trailing commas tolerated.
//
// Parameters:
//   - overridePath: Operator-provided document (may be empty)
//   - defaultPath: Document shipped with the bot
//
// Returns:
//   - *Document: Loaded document
//   - error: Wraps ErrConfigLoad if neither file exists or parsing fails
func Load(overridePath, defaultPath string) (*Document, error) {
	path := defaultPath
	if overridePath != "" {
		_, err := os.Stat(overridePath)
		switch {
		case err == nil:
			path = overridePath
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, overridePath, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}

	doc, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}
	doc.source = path

	return doc, nil
}

// Parse builds a Document from raw bytes. ext selects the decoder
// (".yaml" or ".yml" for YAML, anything else for JSON).
func Parse(data []byte, ext string) (*Document, error) {
	var tree map[string]any

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		// Snowflake IDs exceed float64 precision.
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("parsing json: trailing data after document")
		}
	}

	if tree == nil {
		return nil, errors.New("document is empty")
	}

	sections := make(map[string]map[string]any, len(tree))
	for name, raw := range tree {
		section, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section %q is not an object", name)
		}
		built, err := buildSection(name, section)
		if err != nil {
			return nil, err
		}
		sections[name] = built
	}

	return &Document{
		sections: sections,
		env:      os.LookupEnv,
	}, nil
}

// buildSection copies a section, checking it holds scalars or one level of subsections.
func buildSection(name string, section map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(section))
	for key, raw := range section {
		sub, isMap := raw.(map[string]any)
		if !isMap {
			if !isScalar(raw) {
				return nil, fmt.Errorf("%s.%s: value must be a scalar or an object", name, key)
			}
			if err := putKey(out, key, raw); err != nil {
				return nil, fmt.Errorf("%s.%w", name, err)
			}
			continue
		}

		copied := make(map[string]any, len(sub))
		for subKey, subRaw := range sub {
			if !isScalar(subRaw) {
				return nil, fmt.Errorf("%s.%s.%s: value must be a scalar", name, key, subKey)
			}
			if err := putKey(copied, subKey, subRaw); err != nil {
				return nil, fmt.Errorf("%s.%s.%w", name, key, err)
			}
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%s.%s: defined twice", name, key)
		}
		out[key] = copied
	}
	return out, nil
}

// putKey stores a leaf under its lower-cased name, the form lookup uses.
func putKey(m map[string]any, key string, v any) error {
	lower := strings.ToLower(key)
	if _, dup := m[lower]; dup {
		return fmt.Errorf("%s: defined twice", lower)
	}
	m[lower] = v
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number, int, int64, uint64, float64:
		return true
	default:
		return false
	}
}

// Source returns the path of the file the document was loaded from.
func (d *Document) Source() string {
	return d.source
}

// Sections returns the top-level section names in sorted order.
func (d *Document) Sections() []string {
	return slices.Sorted(maps.Keys(d.sections))
}

// Resolve looks up the value at p.
//
// If the stored value equals EnvMarker, the environment variable named after
// the upper-cased key is returned instead.
//
// Returns:
//   - Value: The stored or environment-provided value
//   - error: *ResolveError wrapping ErrMissingConfigKey or ErrMissingEnvironmentVariable
func (d *Document) Resolve(p Path) (Value, error) {
	raw, ok := d.lookup(p)
	if !ok {
		return Value{}, &ResolveError{Path: p, Err: ErrMissingConfigKey}
	}

	if s, isString := raw.(string); isString && s == EnvMarker {
		name := strings.ToUpper(p.Key)
		v, set := d.env(name)
		if !set {
			return Value{}, &ResolveError{Path: p, Env: name, Err: ErrMissingEnvironmentVariable}
		}
		return Value{path: p, raw: v}, nil
	}

	if sub, isMap := raw.(map[string]any); isMap {
		return Value{path: p, raw: maps.Clone(sub)}, nil
	}

	return Value{path: p, raw: raw}, nil
}

// Optional is Resolve for keys that have a default.
// A missing key reports found=false without error; a missing environment
// variable behind "!ENV" is still an error.
func (d *Document) Optional(p Path) (v Value, found bool, err error) {
	v, err = d.Resolve(p)
	if errors.Is(err, ErrMissingConfigKey) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

func (d *Document) lookup(p Path) (any, bool) {
	section, ok := d.sections[p.Section]
	if !ok {
		return nil, false
	}

	container := section
	if p.Subsection != "" {
		sub, isMap := section[p.Subsection].(map[string]any)
		if !isMap {
			return nil, false
		}
		container = sub
	}

	raw, ok := container[strings.ToLower(p.Key)]
	return raw, ok
}
