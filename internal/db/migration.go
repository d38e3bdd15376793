package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/newhook/necropolis/internal/logging"
	nsignal "github.com/newhook/necropolis/internal/signal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is a single versioned schema change.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
}

// RunMigrations applies all pending embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return RunMigrationsForFS(ctx, db, migrationsFS)
}

// RunMigrationsForFS applies all pending migrations found in fsys.
func RunMigrationsForFS(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := readMigrationsFromFS(fsys)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		// Interrupts are held until the migration transaction finishes.
		nsignal.BlockSignals()
		logging.Info("applying migration", "version", m.Version, "name", m.Name)
		err := applyMigration(ctx, db, m)
		nsignal.UnblockSignals()
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

// MigrationStatus returns the applied migration versions in order.
func MigrationStatus(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func createMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func getAppliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func readMigrationsFromFS(fsys fs.FS) ([]Migration, error) {
	var migrations []Migration
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		// 001_initial.sql -> version 001, name initial
		filename := path.Base(p)
		parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid migration filename: %s", filename)
		}

		migrations = append(migrations, Migration{
			Version: parts[0],
			Name:    parts[1],
			UpSQL:   parseUpSection(string(content)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseUpSection returns the lines between "-- +up" and "-- +down".
func parseUpSection(content string) string {
	var upLines []string
	inUp := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- +up") {
			inUp = true
			continue
		}
		if strings.HasPrefix(trimmed, "-- +down") {
			break
		}
		if inUp {
			upLines = append(upLines, line)
		}
	}
	return strings.Join(upLines, "\n")
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitSQLStatements(m.UpSQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// splitSQLStatements splits on semicolons that are outside of quotes and
// comments. Empty statements are dropped.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var quote rune
	inLineComment := false
	inBlockComment := false

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			}
		case inBlockComment:
			if c == '*' && next == '/' {
				current.WriteRune(c)
				c = next
				i++
				inBlockComment = false
			}
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '-' && next == '-':
			inLineComment = true
		case c == '/' && next == '*':
			inBlockComment = true
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			flush()
			continue
		}
		current.WriteRune(c)
	}
	flush()
	return statements
}
