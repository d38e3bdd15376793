package db

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var testMigrationsFS = fstest.MapFS{
	"migrations/001_first.sql": {Data: []byte(`-- +up
CREATE TABLE test_table1 (id INTEGER PRIMARY KEY, name TEXT DEFAULT 'a;b');
CREATE INDEX idx_test_table1_name ON test_table1(name);
-- +down
DROP TABLE test_table1;
`)},
	"migrations/002_second.sql": {Data: []byte(`-- +up
ALTER TABLE test_table1 ADD COLUMN test_field TEXT;
CREATE TABLE test_table2 (id INTEGER PRIMARY KEY);
`)},
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func TestRunMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := RunMigrationsForFS(ctx, db, testMigrationsFS); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	versions, err := MigrationStatus(ctx, db)
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	if len(versions) != 2 || versions[0] != "001" || versions[1] != "002" {
		t.Errorf("Expected migrations [001 002], got %v", versions)
	}

	for _, table := range []string{"test_table1", "test_table2"} {
		ok, err := tableExists(ctx, db, table)
		if err != nil {
			t.Fatalf("Failed to check for table %s: %v", table, err)
		}
		if !ok {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := RunMigrationsForFS(ctx, db, testMigrationsFS); err != nil {
			t.Fatalf("Failed to run migrations (pass %d): %v", i+1, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = '001'").Scan(&count); err != nil {
		t.Fatalf("Failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 migration record, got %d", count)
	}
}

func TestMigrationStatusBeforeMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	versions, err := MigrationStatus(context.Background(), db)
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Expected no migrations, got %v", versions)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Simple statements",
			input:    "CREATE TABLE t1 (id INT);\nCREATE TABLE t2 (id INT);",
			expected: []string{"CREATE TABLE t1 (id INT)", "CREATE TABLE t2 (id INT)"},
		},
		{
			name:     "Semicolon inside string",
			input:    `INSERT INTO t1 VALUES ('test;value'); CREATE TABLE t2 (id INT);`,
			expected: []string{`INSERT INTO t1 VALUES ('test;value')`, "CREATE TABLE t2 (id INT)"},
		},
		{
			name:     "Line comment",
			input:    "-- a; comment\nCREATE TABLE t1 (id INT);",
			expected: []string{"-- a; comment\nCREATE TABLE t1 (id INT)"},
		},
		{
			name:     "Block comment",
			input:    "/* one; two */\nCREATE TABLE t1 (id INT);",
			expected: []string{"/* one; two */\nCREATE TABLE t1 (id INT)"},
		},
		{
			name:     "Empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "Only comment",
			input:    "  \n-- comment\n  ",
			expected: []string{"-- comment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitSQLStatements(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %d statements, got %d: %q", len(tt.expected), len(result), result)
			}
			for i, stmt := range result {
				if stmt != tt.expected[i] {
					t.Errorf("Statement %d mismatch:\nExpected: %q\nGot:      %q", i, tt.expected[i], stmt)
				}
			}
		})
	}
}

func TestParseUpSection(t *testing.T) {
	migration := `-- Initial migration
-- +up
CREATE TABLE users (id INT PRIMARY KEY);

-- +down
DROP TABLE users;
`
	expected := "CREATE TABLE users (id INT PRIMARY KEY);\n"
	if got := parseUpSection(migration); got != expected {
		t.Errorf("Up section mismatch:\nExpected: %q\nGot:      %q", expected, got)
	}
}
