package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/wafscope/internal/types"
)

// RuleSetRecord is a stored rule-set document. Document keeps the source
// bytes (normalized to JSON) so a rule set decodes identically on reload.
type RuleSetRecord struct {
	ID           types.RuleSetID `db:"rule_set_id"`
	WorkspaceID  string          `db:"workspace_id"`
	Name         string          `db:"name"`
	Document     string          `db:"document"`
	RuleCount    int             `db:"rule_count"`
	SkippedCount int             `db:"skipped_count"`
	CreatedAt    time.Time       `db:"created_at"`
}

// RuleSetSummary is a listing row without the document body.
type RuleSetSummary struct {
	ID           types.RuleSetID `db:"rule_set_id"`
	WorkspaceID  string          `db:"workspace_id"`
	Name         string          `db:"name"`
	RuleCount    int             `db:"rule_count"`
	SkippedCount int             `db:"skipped_count"`
	CreatedAt    time.Time       `db:"created_at"`
}

// InsertRuleSet stores rec. CreatedAt defaults to now (UTC).
func (q *Queries) InsertRuleSet(ctx context.Context, rec *RuleSetRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, "insert-rule-set",
		string(rec.ID), rec.WorkspaceID, rec.Name, rec.Document,
		rec.RuleCount, rec.SkippedCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetRuleSet loads a rule set owned by workspaceID.
// A rule set owned by another workspace is reported as not found.
func (q *Queries) GetRuleSet(ctx context.Context, workspaceID string, id types.RuleSetID) (*RuleSetRecord, error) {
	var rec RuleSetRecord
	err := q.Get(ctx, "get-rule-set", &rec, workspaceID, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

// ListRuleSets returns the workspace's rule sets, newest first.
func (q *Queries) ListRuleSets(ctx context.Context, workspaceID string) ([]RuleSetSummary, error) {
	var list []RuleSetSummary
	if err := q.Select(ctx, "list-rule-sets", &list, workspaceID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return list, nil
}

// DeleteRuleSet removes a rule set. Deleting an unknown id is not found.
func (q *Queries) DeleteRuleSet(ctx context.Context, workspaceID string, id types.RuleSetID) error {
	res, err := q.Exec(ctx, "delete-rule-set", workspaceID, string(id))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrRuleSetNotFound
	}
	return nil
}
