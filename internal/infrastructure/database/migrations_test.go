package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
)

func withMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, "."
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_members.up.sql":   {Data: []byte("CREATE TABLE test_members (id INTEGER PRIMARY KEY);")},
		"20260101_000000_members.down.sql": {Data: []byte("DROP TABLE test_members;")},
		"20260102_000000_clubs.up.sql":     {Data: []byte("CREATE TABLE test_clubs (id INTEGER PRIMARY KEY);")},
		"README.md":                        {Data: []byte("not a migration")},
	}
}

func TestMigrate(t *testing.T) {
	withMigrations(t, testMigrations())

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_members", "test_clubs"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureStopsAtBrokenMigration(t *testing.T) {
	fsys := testMigrations()
	fsys["20260103_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}
	withMigrations(t, fsys)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2 and 1", len(applied), len(pending))
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	withMigrations(t, nil)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260118_120000_initial_schema.up.sql", "20260118_120000", "initial_schema", true, true},
		{"20260118_120000_initial_schema.down.sql", "20260118_120000", "initial_schema", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true, true},
		{"20260118_120000_initial.sql", "", "", false, false},
		{"readme.md", "", "", false, false},
		{"nounderscore.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || isUp != tt.wantUp {
				t.Errorf("parse(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, isUp, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
