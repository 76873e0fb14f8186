package db

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/solatis/wafscope/migrations"
)

// MigrationStatus describes one embedded migration and whether the
// database has applied it.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

type migration struct {
	id       string
	checksum string
	sql      string
}

// MigrateUp applies every pending migration for the connection's driver,
// each in its own transaction. Applied migrations whose embedded file has
// changed abort the run before anything is executed.
func MigrateUp(db *sqlx.DB) error {
	pending, err := pendingMigrations(db)
	if err != nil {
		return err
	}

	for _, m := range pending {
		started := time.Now()
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("migration %s: begin: %w", m.id, err)
		}
		if err := execScript(tx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.id, err)
		}
		elapsed := time.Since(started)
		if err := recordMigration(tx, m, elapsed); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: record: %w", m.id, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %s: commit: %w", m.id, err)
		}
		slog.Info("applied migration", "id", m.id, "driver", db.DriverName(), "duration", elapsed)
	}
	return nil
}

// MigrateStatus lists every embedded migration in order, applied or not.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	embedded, applied, err := loadState(db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(embedded))
	for _, m := range embedded {
		if s, ok := applied[m.id]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.id, Checksum: m.checksum})
	}
	return statuses, nil
}

// RequireMigrated fails when any embedded migration has not been applied.
// The server refuses to start against a stale schema.
func RequireMigrated(db *sqlx.DB) error {
	pending, err := pendingMigrations(db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.id
	}
	return fmt.Errorf("pending migrations %s - run 'wafscope migrate up' first", strings.Join(ids, ", "))
}

// pendingMigrations verifies the checksums of applied migrations and
// returns the rest in filename order.
func pendingMigrations(db *sqlx.DB) ([]migration, error) {
	embedded, applied, err := loadState(db)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(embedded))
	var pending []migration
	for _, m := range embedded {
		known[m.id] = true
		s, ok := applied[m.id]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if s.Checksum != m.checksum {
			return nil, fmt.Errorf("checksum mismatch for migration %s: embedded %s, applied %s", m.id, m.checksum, s.Checksum)
		}
	}
	for id := range applied {
		if !known[id] {
			return nil, fmt.Errorf("migration %s is applied but not embedded in this binary", id)
		}
	}
	return pending, nil
}

// loadState reads the embedded migrations and the applied rows, creating
// the tracking table on first use.
func loadState(db *sqlx.DB) ([]migration, map[string]MigrationStatus, error) {
	fsys, dir, err := embeddedFS(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	embedded, err := readMigrations(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	if _, err := db.Exec(trackingTableDDL(db.DriverName())); err != nil {
		return nil, nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := db.Queryx("SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var s MigrationStatus
		var appliedAt any
		if err := rows.Scan(&s.ID, &s.Checksum, &appliedAt, &s.ExecutionMs); err != nil {
			return nil, nil, err
		}
		s.Applied = true
		s.AppliedAt = parseAppliedAt(appliedAt)
		applied[s.ID] = s
	}
	return embedded, applied, rows.Err()
}

// parseAppliedAt normalizes applied_at, stored as RFC3339 text on SQLite
// and as a native timestamp on PostgreSQL.
func parseAppliedAt(v any) *time.Time {
	var t time.Time
	switch v := v.(type) {
	case time.Time:
		t = v
	case string:
		t, _ = time.Parse(time.RFC3339, v)
	case []byte:
		t, _ = time.Parse(time.RFC3339, string(v))
	}
	if t.IsZero() {
		return nil
	}
	return &t
}

// embeddedFS selects the migration set for a sqlx driver name.
func embeddedFS(driver string) (embed.FS, string, error) {
	switch driver {
	case "sqlite3":
		return embeddedmigrations.SqliteMigrations, "sqlite", nil
	case "postgres":
		return embeddedmigrations.PostgresMigrations, "postgres", nil
	default:
		return embed.FS{}, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func readMigrations(fsys embed.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fsys.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			id:       e.Name(),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

// trackingTableDDL must stay in step with the migrations table in
// 001_initial_schema.sql for each driver.
func trackingTableDDL(driver string) string {
	if driver == "sqlite3" {
		return `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL,
			CHECK (applied_at LIKE '____-__-__T__:__:__Z')
		)`
	}
	return `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
		execution_ms INTEGER NOT NULL
	)`
}

// execScript runs a migration one statement at a time; lib/pq rejects
// several statements in a single Exec.
func execScript(tx *sqlx.Tx, script string) error {
	for _, stmt := range strings.Split(stripComments(script), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

// stripComments drops whole-line "--" comments so a leading header
// comment does not swallow the statement that follows it.
func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func recordMigration(tx *sqlx.Tx, m migration, elapsed time.Duration) error {
	now := time.Now().UTC()
	var appliedAt any = now
	if tx.DriverName() == "sqlite3" {
		appliedAt = now.Format(time.RFC3339)
	}
	_, err := tx.Exec(
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		m.id, m.checksum, appliedAt, elapsed.Milliseconds(),
	)
	return err
}
