package extension

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// manifestExt is the file extension of manifest units.
const manifestExt = ".json"

// privatePrefix marks files discovery skips.
const privatePrefix = "_"

// Discover lists the extensions with a manifest in dir.
//
// Directories, files without the .json extension and names starting with
// "_" are skipped. The result is sorted, so rerunning discovery over an
// unchanged directory yields the same sequence.
//
// Parameters:
//   - fsys: Filesystem holding the manifests (os.DirFS in production, fstest.MapFS in tests)
//   - dir: Directory within fsys
//
// Returns:
//   - []string: Qualified names, e.g. ["exts.admin", "exts.status"]
//   - error: If dir cannot be read
func Discover(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading extensions directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || strings.HasPrefix(file, privatePrefix) || path.Ext(file) != manifestExt {
			continue
		}
		qualified, err := Qualify(strings.TrimSuffix(file, manifestExt))
		if err != nil {
			continue
		}
		names = append(names, qualified)
	}

	sort.Strings(names)
	return names, nil
}

// ReadManifest loads the manifest of a qualified name from dir.
//
// Returns:
//   - Manifest: Parsed manifest with Name set
//   - error: Wraps ErrExtensionNotFound if the file does not exist
func ReadManifest(fsys fs.FS, dir, qualified string) (Manifest, error) {
	file := path.Join(dir, Short(qualified)+manifestExt)

	data, err := fs.ReadFile(fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		return Manifest{}, fmt.Errorf("%w: no manifest %s", ErrExtensionNotFound, file)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest %s: %w", file, err)
	}

	m := Manifest{Name: qualified}
	data = bytes.TrimSpace(jsonc.ToJSON(data))
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", file, err)
	}
	m.Name = qualified
	return m, nil
}
