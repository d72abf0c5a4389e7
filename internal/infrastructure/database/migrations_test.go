package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20260101_000000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"sql/20260101_000000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"sql/20260102_000000_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"sql/README.md":                        {Data: []byte("not a migration")},
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx, testMigrations(), "sql")
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 2 || versions[0] != "20260101_000000" {
		t.Errorf("AppliedVersions() = %v", versions)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Migrate(ctx, testMigrations(), "sql"); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	n, err := db.Migrate(ctx, testMigrations(), "sql")
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied %d, want 0", n)
	}
}

func TestMigrate_FailureRollsBackOnlyThatMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_good.up.sql": {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260102_000000_bad.up.sql":  {Data: []byte("CREATE TABLE broken (;")},
	}

	n, err := db.Migrate(ctx, fsys, ".")
	if err == nil {
		t.Fatal("Migrate() expected error for invalid SQL")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failing, want 1", n)
	}

	versions, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("expected only the good migration recorded, got %v", versions)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		ok      bool
	}{
		{"20260301_120000_link_events.up.sql", "20260301_120000", "link_events", true},
		{"20260301_120000.up.sql", "20260301_120000", "20260301_120000", true},
		{"20260301_120000_link_events.down.sql", "", "", false},
		{"20260301_120000_link_events.sql", "", "", false},
		{"2026_120000_x.up.sql", "", "", false},
		{"embed.go", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.file)
			if ok != tt.ok || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.file, version, name, ok, tt.version, tt.name, tt.ok)
			}
		})
	}
}
