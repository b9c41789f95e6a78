package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/20260101_000000_users.up.sql":   {Data: []byte("CREATE TABLE test_users (id TEXT PRIMARY KEY);")},
		"sql/20260101_000000_users.down.sql": {Data: []byte("DROP TABLE test_users;")},
		"sql/20260102_000000_items.up.sql":   {Data: []byte("CREATE TABLE test_items (id TEXT PRIMARY KEY);")},
		"sql/20260103_000000_orphan.down.sql": {Data: []byte("DROP TABLE nothing;")},
		"sql/README.md":                      {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrateFS(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.MigrateFS(ctx, fsys, "sql"); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}
	for _, table := range []string{"test_users", "test_items"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	// Running again should be idempotent
	if err := db.MigrateFS(ctx, fsys, "sql"); err != nil {
		t.Fatalf("second MigrateFS() error = %v", err)
	}

	applied, pending, err := db.migrationStatus(ctx, fsys, "sql")
	if err != nil {
		t.Fatalf("migrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
}

func TestMigrateDownFS(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.MigrateFS(ctx, fsys, "sql"); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}

	// Latest migration (items) has no down file.
	if err := db.MigrateDownFS(ctx, fsys, "sql"); err == nil {
		t.Error("MigrateDownFS() error = nil, want missing down SQL error")
	}

	delete(fsys, "sql/20260102_000000_items.up.sql")
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260102_000000'"); err != nil {
		t.Fatalf("removing record: %v", err)
	}

	if err := db.MigrateDownFS(ctx, fsys, "sql"); err != nil {
		t.Fatalf("MigrateDownFS() error = %v", err)
	}
	if tableExists(t, db, "test_users") {
		t.Error("test_users still exists after rollback")
	}
}

func TestMigrate_Registered(t *testing.T) {
	origFS, origDir := registeredMigrations()
	t.Cleanup(func() { RegisterMigrations(origFS, origDir) })

	RegisterMigrations(testMigrations(), "sql")

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := db.MigrateFS(context.Background(), nil, "."); err != nil {
		t.Errorf("MigrateFS(nil) error = %v", err)
	}
	if err := db.MigrateFS(context.Background(), fstest.MapFS{}, "missing"); err != nil {
		t.Errorf("MigrateFS(missing dir) error = %v", err)
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
		{"20260118_120000_x.sql", "", "", false, false},
		{"20260118.up.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
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
			if version != tt.wantVersion || isUp != tt.wantUp {
				t.Errorf("got (%q, up=%v), want (%q, up=%v)", version, isUp, tt.wantVersion, tt.wantUp)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
		})
	}
}
