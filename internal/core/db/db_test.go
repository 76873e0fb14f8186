package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/wafscope/internal/types"
)

// openTestDB opens a migrated SQLite database in a temp dir.
func openTestDB(t *testing.T) (*sqlx.DB, *Queries) {
	t.Helper()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "wafscope.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	queries, err := LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	return database, queries
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	if _, err := Open("mysql://localhost/db"); err == nil {
		t.Error("expected error for mysql scheme")
	}
}

func TestDataSource(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{"sqlite://rules.db", "sqlite3", "rules.db", false},
		{"sqlite://data/rules.db", "sqlite3", "data/rules.db", false},
		{"sqlite:///var/lib/wafscope.db", "sqlite3", "/var/lib/wafscope.db", false},
		{"postgres://u:p@db:5432/ws?sslmode=disable", "postgres", "postgres://u:p@db:5432/ws?sslmode=disable", false},
		{"postgresql://db/ws", "postgres", "postgresql://db/ws", false},
		{"mysql://db/ws", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := dataSource(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dataSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if driver != tt.wantDriver || dsn != tt.wantDSN {
				t.Errorf("dataSource() = %v, %v, want %v, %v", driver, dsn, tt.wantDriver, tt.wantDSN)
			}
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database, _ := openTestDB(t)

	if err := MigrateUp(database); err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}
	if err := RequireMigrated(database); err != nil {
		t.Errorf("RequireMigrated() error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(database)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %s Applied = %v AppliedAt = %v, want applied with time", s.ID, s.Applied, s.AppliedAt)
		}
	}
}

func TestRequireMigrated_Pending(t *testing.T) {
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer database.Close()

	if err := RequireMigrated(database); err == nil {
		t.Error("RequireMigrated() error = nil, want pending migrations")
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	database, _ := openTestDB(t)

	if _, err := database.Exec("UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := MigrateUp(database); err == nil {
		t.Error("MigrateUp() error = nil, want checksum mismatch")
	}
}

func TestMigrateUp_UnknownApplied(t *testing.T) {
	database, _ := openTestDB(t)

	_, err := database.Exec(
		"INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES ('999_future.sql', 'x', '2026-01-01T00:00:00Z', 0)",
	)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := RequireMigrated(database); err == nil {
		t.Error("RequireMigrated() error = nil, want unknown migration error")
	}
}

func TestStripComments(t *testing.T) {
	got := stripComments("-- header\nCREATE TABLE t (x INTEGER);\n  -- trailing\n")
	if got != "CREATE TABLE t (x INTEGER);\n" {
		t.Errorf("stripComments() = %q", got)
	}
}

func TestRuleSets(t *testing.T) {
	ctx := context.Background()
	_, q := openTestDB(t)

	rec := &RuleSetRecord{
		ID:          types.NewRuleSetID(),
		WorkspaceID: "ws-1",
		Name:        "main",
		Document:    `[{"Name":"r","Priority":1}]`,
		RuleCount:   1,
	}
	if err := q.InsertRuleSet(ctx, rec); err != nil {
		t.Fatalf("InsertRuleSet() error = %v", err)
	}

	got, err := q.GetRuleSet(ctx, "ws-1", rec.ID)
	if err != nil {
		t.Fatalf("GetRuleSet() error = %v", err)
	}
	if got.Name != "main" || got.Document != rec.Document || got.RuleCount != 1 {
		t.Errorf("GetRuleSet() = %+v, want %+v", got, rec)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	if _, err := q.GetRuleSet(ctx, "ws-2", rec.ID); !errors.Is(err, types.ErrRuleSetNotFound) {
		t.Errorf("GetRuleSet(other workspace) error = %v, want ErrRuleSetNotFound", err)
	}

	list, err := q.ListRuleSets(ctx, "ws-1")
	if err != nil {
		t.Fatalf("ListRuleSets() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Errorf("ListRuleSets() = %+v, want one entry %s", list, rec.ID)
	}

	if err := q.DeleteRuleSet(ctx, "ws-1", rec.ID); err != nil {
		t.Fatalf("DeleteRuleSet() error = %v", err)
	}
	if err := q.DeleteRuleSet(ctx, "ws-1", rec.ID); !errors.Is(err, types.ErrRuleSetNotFound) {
		t.Errorf("second DeleteRuleSet() error = %v, want ErrRuleSetNotFound", err)
	}
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	_, q := openTestDB(t)

	hash := []byte{1, 2, 3, 4}
	id, err := q.InsertAPIKey(ctx, "ws-1", "laptop", hash)
	if err != nil {
		t.Fatalf("InsertAPIKey() error = %v", err)
	}

	var rec APIKeyRecord
	if err := q.Get(ctx, "get-api-key-by-hash", &rec, hash); err != nil {
		t.Fatalf("Get(get-api-key-by-hash) error = %v", err)
	}
	if rec.APIKeyID != id || rec.WorkspaceID != "ws-1" {
		t.Errorf("record = %+v, want id %s workspace ws-1", rec, id)
	}
	if rec.RevokedAt.Valid || rec.LastUsedAt.Valid {
		t.Errorf("fresh key has RevokedAt/LastUsedAt set: %+v", rec)
	}

	if err := q.RevokeAPIKey(ctx, id); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}
	if err := q.Get(ctx, "get-api-key-by-hash", &rec, hash); err != nil {
		t.Fatalf("Get(get-api-key-by-hash) error = %v", err)
	}
	if !rec.RevokedAt.Valid {
		t.Error("RevokedAt not set after RevokeAPIKey")
	}
}

func TestQueries_UnknownName(t *testing.T) {
	_, q := openTestDB(t)
	if _, err := q.Exec(context.Background(), "no-such-query"); err == nil {
		t.Error("Exec(no-such-query) error = nil, want query not found")
	}
}
