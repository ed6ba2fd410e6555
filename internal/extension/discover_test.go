package extension

import (
	"errors"
	"io/fs"
	"slices"
	"testing"
	"testing/fstest"
)

func TestDiscover(t *testing.T) {
	fsys := fstest.MapFS{
		"exts/status.json":       {Data: []byte(`{}`)},
		"exts/admin.json":        {Data: []byte(`{}`)},
		"exts/_private.json":     {Data: []byte(`{}`)},
		"exts/README.md":         {Data: []byte(`docs`)},
		"exts/clubs.json.bak":    {Data: []byte(`{}`)},
		"exts/nested/inner.json": {Data: []byte(`{}`)},
		"exts/bad.name.json":     {Data: []byte(`{}`)},
		"elsewhere/ignored.json": {Data: []byte(`{}`)},
	}

	first, err := Discover(fsys, "exts")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{"exts.admin", "exts.status"}
	if !slices.Equal(first, want) {
		t.Errorf("Discover() = %v, want %v", first, want)
	}

	second, err := Discover(fsys, "exts")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if !slices.Equal(first, second) {
		t.Errorf("Discover() not repeatable: %v then %v", first, second)
	}
}

func TestDiscover_MissingDirectory(t *testing.T) {
	_, err := Discover(fstest.MapFS{}, "missing")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Discover() error = %v, want fs.ErrNotExist", err)
	}
}

func TestReadManifest(t *testing.T) {
	fsys := fstest.MapFS{
		"exts/status.json": {Data: []byte("{\"description\": \"Status\", /* inline */ \"settings\": {\"a\": 1}}")},
		"exts/broken.json": {Data: []byte(`{"settings": [`)},
	}

	m, err := ReadManifest(fsys, "exts", "exts.status")
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if m.Name != "exts.status" || m.Description != "Status" || string(m.Settings) != `{"a": 1}` {
		t.Errorf("ReadManifest() = %+v", m)
	}

	if _, err := ReadManifest(fsys, "exts", "exts.none"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("missing manifest error = %v, want ErrExtensionNotFound", err)
	}
	if _, err := ReadManifest(fsys, "exts", "exts.broken"); err == nil || errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("broken manifest error = %v, want parse error", err)
	}
}

func TestManifest_DecodeSettings(t *testing.T) {
	var v struct{ Precision int }
	v.Precision = 3

	if err := (Manifest{}).DecodeSettings(&v); err != nil || v.Precision != 3 {
		t.Errorf("empty settings changed value: %+v, %v", v, err)
	}
	if err := (Manifest{Settings: []byte(`{"precision":"x"}`)}).DecodeSettings(&v); err == nil {
		t.Error("DecodeSettings() with wrong type should fail")
	}
}
