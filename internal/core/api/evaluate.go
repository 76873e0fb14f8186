package api

import (
	"context"
	"time"

	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/types"
)

// EvaluateRequest offers a request to every rule of a stored set.
type EvaluateRequest struct {
	RuleSetID      string        `json:"ruleSetId"`
	Request        types.Request `json:"request"`
	HaltOnTerminal bool          `json:"haltOnTerminal,omitempty"`
}

// EvaluateResponse carries the evaluation report.
type EvaluateResponse struct {
	RuleSetID types.RuleSetID `json:"ruleSetId"`
	Report    *rules.Report   `json:"report"`
}

// Evaluate runs the whole rule set against a request in priority order.
// Every report is appended to the daily evaluation log (best-effort).
func (s *DebuggerService) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	loaded, id, err := s.loadRuleSet(ctx, req.RuleSetID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	httpReq := req.Request.Normalize()
	report := s.engine.EvaluateSet(&httpReq, loaded.set, rules.EvaluateOptions{HaltOnTerminal: req.HaltOnTerminal})

	s.evalLog.append(evaluationRecord{
		Time:        time.Now().UTC(),
		WorkspaceID: loaded.workspaceID,
		RuleSetID:   id,
		Request:     httpReq,
		Report:      report,
	})

	return &EvaluateResponse{RuleSetID: id, Report: report}, nil
}
