package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// applyMigrations brings the database up to the latest embedded schema
// version. Each pending script runs in its own transaction and is
// recorded in schema_migrations, so reruns are no-ops.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&applied); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	scripts, err := loadMigrationScripts()
	if err != nil {
		return err
	}

	for _, sc := range scripts {
		if sc.version <= applied {
			continue
		}
		if err := applyOne(ctx, db, sc); err != nil {
			return err
		}
	}
	return nil
}

type migrationScript struct {
	version int
	name    string
	body    string
}

// loadMigrationScripts reads the embedded migrations directory. Files
// are named NNN_description.sql; the numeric prefix is the version.
func loadMigrationScripts() ([]migrationScript, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	scripts := make([]migrationScript, 0, len(entries))
	for _, entry := range entries {
		base := strings.TrimSuffix(entry.Name(), ".sql")
		prefix, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %q: missing version prefix", entry.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version prefix: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(migrationFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}
		scripts = append(scripts, migrationScript{version: version, name: name, body: string(body)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })
	return scripts, nil
}

func applyOne(ctx context.Context, db *sql.DB, sc migrationScript) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", sc.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(sc.body) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", sc.version, sc.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
		sc.version, sc.name,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", sc.version, err)
	}
	return tx.Commit()
}

// sqlStatements splits a script on semicolons, dropping fragments that
// hold nothing but whitespace or -- comments.
func sqlStatements(script string) []string {
	var out []string
	for _, fragment := range strings.Split(script, ";") {
		if hasSQL(fragment) {
			out = append(out, strings.TrimSpace(fragment))
		}
	}
	return out
}

func hasSQL(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
