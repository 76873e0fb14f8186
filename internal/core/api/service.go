// Package api implements the wafscope debugger service: stored rule sets,
// their dependency graphs, whole-set evaluation and stepwise sessions.
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solatis/wafscope/internal/core/auth"
	"github.com/solatis/wafscope/internal/core/config"
	"github.com/solatis/wafscope/internal/core/db"
	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/types"
)

/*
 * The service is a thin orchestration layer: documents are decoded by
 * ruleset, graphs and evaluation come from rules, persistence from db.
 *
 * Rule sets are immutable once stored (a changed document is a new id), so
 * their compiled form is cached by id without invalidation beyond delete.
 * Sessions are in-memory only; they expire after SessionTTL of inactivity
 * or when MaxSessions is exceeded, least recently used first.
 */

// compiledCacheSize bounds the decoded rule sets kept in memory.
const compiledCacheSize = 64

// RuleSetStore is the persistence the service needs.
// Implemented by *db.Queries.
type RuleSetStore interface {
	InsertRuleSet(ctx context.Context, rec *db.RuleSetRecord) error
	GetRuleSet(ctx context.Context, workspaceID string, id types.RuleSetID) (*db.RuleSetRecord, error)
	ListRuleSets(ctx context.Context, workspaceID string) ([]db.RuleSetSummary, error)
	DeleteRuleSet(ctx context.Context, workspaceID string, id types.RuleSetID) error
}

// DebuggerService implements the debugger API operations.
type DebuggerService struct {
	store    RuleSetStore
	engine   *rules.Engine
	cfg      *config.DebuggerAPIConfig
	compiled *lru.Cache[types.RuleSetID, *loadedRuleSet]
	sessions *sessionStore
	evalLog  *evaluationLog
}

// NewDebuggerService creates service instance with dependencies.
// Auto-creates the evaluations directory if not exists.
func NewDebuggerService(store RuleSetStore, engine *rules.Engine, cfg *config.DebuggerAPIConfig) (*DebuggerService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}

	evalDir := filepath.Join(cfg.DataDir, "evaluations")
	if err := os.MkdirAll(evalDir, 0755); err != nil {
		return nil, err
	}

	compiled, err := lru.New[types.RuleSetID, *loadedRuleSet](compiledCacheSize)
	if err != nil {
		return nil, err
	}

	return &DebuggerService{
		store:    store,
		engine:   engine,
		cfg:      cfg,
		compiled: compiled,
		sessions: newSessionStore(cfg.MaxSessions, cfg.SessionTTL),
		evalLog:  newEvaluationLog(evalDir),
	}, nil
}

// SessionCount reports the live sessions held in memory.
func (s *DebuggerService) SessionCount() int {
	return s.sessions.len()
}

// workspace returns the authenticated workspace or an Internal error.
func workspace(ctx context.Context) (string, error) {
	id := auth.WorkspaceIDFromContext(ctx)
	if id == "" {
		return "", errMissingWorkspace
	}
	return id, nil
}
