package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/solatis/wafscope/internal/core/db"
	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/ruleset"
	"github.com/solatis/wafscope/internal/types"
)

// PutRuleSetRequest uploads a rule-set document. Exactly one of Document
// (any JSON rule-set shape) or YAML (the same shapes as YAML text) is set.
type PutRuleSetRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document,omitempty"`
	YAML     string          `json:"yaml,omitempty"`
}

// PutRuleSetResponse returns the new id and the graph of the stored set.
type PutRuleSetResponse struct {
	RuleSetID types.RuleSetID `json:"ruleSetId"`
	Name      string          `json:"name"`
	RuleCount int             `json:"ruleCount"`
	Graph     *rules.Graph    `json:"graph"`
}

// RuleSetRef names a stored rule set.
type RuleSetRef struct {
	RuleSetID string `json:"ruleSetId"`
}

// GraphResponse is the dependency graph of a stored rule set.
type GraphResponse struct {
	RuleSetID types.RuleSetID `json:"ruleSetId"`
	Graph     *rules.Graph    `json:"graph"`
}

// RuleSetInfo is one entry of ListRuleSets.
type RuleSetInfo struct {
	RuleSetID    types.RuleSetID `json:"ruleSetId"`
	Name         string          `json:"name"`
	RuleCount    int             `json:"ruleCount"`
	SkippedCount int             `json:"skippedCount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ListRuleSetsRequest is empty; the workspace comes from the API key.
type ListRuleSetsRequest struct{}

// ListRuleSetsResponse lists the workspace's rule sets, newest first.
type ListRuleSetsResponse struct {
	RuleSets []RuleSetInfo `json:"ruleSets"`
}

// DeleteRuleSetResponse confirms a deletion.
type DeleteRuleSetResponse struct {
	Deleted bool `json:"deleted"`
}

// loadedRuleSet is the decoded form of a stored document.
type loadedRuleSet struct {
	workspaceID string
	set         *rules.RuleSet
	skipped     []types.InputWarning
}

// PutRuleSet decodes, validates and stores a rule-set document.
// Per-rule problems become graph warnings; only a document that is not a
// list of rules, or one over the rule limit, is rejected.
func (s *DebuggerService) PutRuleSet(ctx context.Context, req *PutRuleSetRequest) (*PutRuleSetResponse, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch {
	case len(req.Document) > 0 && req.YAML != "":
		return nil, invalidArgument("set either document or yaml, not both")
	case len(req.Document) > 0:
		data = req.Document
	case req.YAML != "":
		if data, err = ruleset.ToJSON([]byte(req.YAML), ruleset.FormatYAML); err != nil {
			return nil, toStatus(err)
		}
	default:
		return nil, invalidArgument("document required")
	}

	decoded, err := ruleset.Decode(data)
	if err != nil {
		return nil, toStatus(err)
	}
	if len(decoded.Rules) > s.cfg.MaxRules {
		return nil, invalidArgument("rule set has %d rules, maximum is %d", len(decoded.Rules), s.cfg.MaxRules)
	}
	set, err := rules.Compile(decoded.Rules)
	if err != nil {
		return nil, toStatus(err)
	}

	rec := &db.RuleSetRecord{
		ID:           types.NewRuleSetID(),
		WorkspaceID:  ws,
		Name:         req.Name,
		Document:     string(data),
		RuleCount:    len(decoded.Rules),
		SkippedCount: len(decoded.Skipped),
	}
	if err := s.store.InsertRuleSet(ctx, rec); err != nil {
		return nil, toStatus(err)
	}

	loaded := &loadedRuleSet{workspaceID: ws, set: set, skipped: decoded.Skipped}
	s.compiled.Add(rec.ID, loaded)

	return &PutRuleSetResponse{
		RuleSetID: rec.ID,
		Name:      rec.Name,
		RuleCount: rec.RuleCount,
		Graph:     loaded.graph(),
	}, nil
}

// GetGraph returns the dependency graph of a stored rule set.
func (s *DebuggerService) GetGraph(ctx context.Context, req *RuleSetRef) (*GraphResponse, error) {
	loaded, id, err := s.loadRuleSet(ctx, req.RuleSetID)
	if err != nil {
		return nil, err
	}
	return &GraphResponse{RuleSetID: id, Graph: loaded.graph()}, nil
}

// ListRuleSets lists the caller's rule sets.
func (s *DebuggerService) ListRuleSets(ctx context.Context, _ *ListRuleSetsRequest) (*ListRuleSetsResponse, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListRuleSets(ctx, ws)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &ListRuleSetsResponse{RuleSets: make([]RuleSetInfo, 0, len(list))}
	for _, r := range list {
		resp.RuleSets = append(resp.RuleSets, RuleSetInfo{
			RuleSetID:    r.ID,
			Name:         r.Name,
			RuleCount:    r.RuleCount,
			SkippedCount: r.SkippedCount,
			CreatedAt:    r.CreatedAt,
		})
	}
	return resp, nil
}

// DeleteRuleSet removes a stored rule set. Live sessions over it keep
// their own copy and run to completion.
func (s *DebuggerService) DeleteRuleSet(ctx context.Context, req *RuleSetRef) (*DeleteRuleSetResponse, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, err
	}
	id, err := types.ParseRuleSetID(req.RuleSetID)
	if err != nil {
		return nil, invalidArgument("invalid rule_set_id %q", req.RuleSetID)
	}
	if err := s.store.DeleteRuleSet(ctx, ws, id); err != nil {
		return nil, toStatus(err)
	}
	s.compiled.Remove(id)
	return &DeleteRuleSetResponse{Deleted: true}, nil
}

// loadRuleSet resolves a rule set for the caller's workspace, decoding the
// stored document on a cache miss.
func (s *DebuggerService) loadRuleSet(ctx context.Context, rawID string) (*loadedRuleSet, types.RuleSetID, error) {
	ws, err := workspace(ctx)
	if err != nil {
		return nil, "", err
	}
	id, err := types.ParseRuleSetID(rawID)
	if err != nil {
		return nil, "", invalidArgument("invalid rule_set_id %q", rawID)
	}

	if loaded, ok := s.compiled.Get(id); ok {
		if loaded.workspaceID != ws {
			return nil, "", toStatus(types.ErrRuleSetNotFound)
		}
		return loaded, id, nil
	}

	rec, err := s.store.GetRuleSet(ctx, ws, id)
	if err != nil {
		return nil, "", toStatus(err)
	}
	decoded, err := ruleset.Decode([]byte(rec.Document))
	if err != nil {
		return nil, "", toStatus(err)
	}
	set, err := rules.Compile(decoded.Rules)
	if err != nil {
		return nil, "", toStatus(err)
	}

	loaded := &loadedRuleSet{workspaceID: ws, set: set, skipped: decoded.Skipped}
	s.compiled.Add(id, loaded)
	return loaded, id, nil
}

func (l *loadedRuleSet) graph() *rules.Graph {
	g := l.set.Graph()
	g.InputWarnings = l.skipped
	return g
}
