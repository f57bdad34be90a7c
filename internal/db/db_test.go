package db

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestDB opens an initialised file-backed database that is closed when
// the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	res, err := db.Execute(ctx, "SELECT * FROM pragma_journal_mode")
	if err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if got := res.Rows[0][0]; got != "wal" {
		t.Errorf("Expected journal_mode wal, got %v", got)
	}

	res, err = db.Execute(ctx, "SELECT * FROM pragma_foreign_keys")
	if err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if got := asInt64(res.Rows[0][0]); got != 1 {
		t.Errorf("Expected foreign_keys enabled (1), got %d", got)
	}

	if db.Dialect() != DialectSQLite {
		t.Errorf("Expected sqlite dialect, got %s", db.Dialect())
	}
	if n := db.PoolStats().Max; n != 10 {
		t.Errorf("Expected pool max 10, got %d", n)
	}
}

func TestOpenMemoryUsesSingleConnection(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if n := db.PoolStats().Max; n != 1 {
		t.Errorf("Expected pool max 1 for :memory:, got %d", n)
	}
}

func TestMigrate(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE test (
		id INTEGER PRIMARY KEY,
		name TEXT
	);
	`
	ctx := context.Background()
	if err := db.Migrate(ctx, schema); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	if _, err := db.Execute(ctx, "INSERT INTO test (name) VALUES (?)", "foo"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	res, err := db.Execute(ctx, "SELECT name FROM test WHERE id = 1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if name := res.Rows[0][0]; name != "foo" {
		t.Errorf("Expected foo, got %v", name)
	}
}

func TestInit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"CONTACTS", "TASKS"} {
		if _, err := db.Execute(ctx, "SELECT 1 FROM "+table+" LIMIT 1"); err != nil {
			t.Fatalf("%s table does not exist or query failed: %v", table, err)
		}
	}

	// Init is idempotent.
	if err := db.Init(ctx); err != nil {
		t.Fatalf("Second init failed: %v", err)
	}
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := Connect(context.Background(), "oracle", "x", DefaultOptions())
	if err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM T WHERE A = ? AND B = ?", "SELECT * FROM T WHERE A = $1 AND B = $2"},
		{"SELECT '?' FROM T WHERE A = ?", "SELECT '?' FROM T WHERE A = $1"},
		{`SELECT "a?" FROM T`, `SELECT "a?" FROM T`},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := rebind(tt.in); got != tt.want {
			t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOnChangeHook(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	calls := 0
	db.SetOnChange(func(ctx context.Context) { calls++ })

	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected 1 change notification, got %d", calls)
	}

	// Reads never notify.
	if _, err := db.Execute(ctx, "SELECT * FROM TASKS"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected reads not to notify, got %d calls", calls)
	}

	db.DisableOnChange()
	if _, err := db.Execute(ctx, "UPDATE TASKS SET NOTES = 'x'"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("Expected disabled hook not to fire, got %d calls", calls)
	}

	db.EnableOnChange()
	if _, err := db.Execute(ctx, "UPDATE TASKS SET NOTES = 'y'"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("Expected 2 change notifications, got %d", calls)
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]Dialect{
		"":           DialectSQLite,
		"SQLite3":    DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
		"pgx":        DialectPostgres,
		"oracle":     "",
	}
	for in, want := range tests {
		if got := DialectFor(in); got != want {
			t.Errorf("DialectFor(%q) = %q, want %q", in, got, want)
		}
	}
}
