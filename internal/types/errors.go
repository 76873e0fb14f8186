package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for wafscope operations.
var (
	// ErrAtEnd indicates StepForward was called after the last rule was evaluated.
	ErrAtEnd = errors.New("session is at the end of the rule set")

	// ErrAtStart indicates StepBackward was called with only the first step recorded.
	ErrAtStart = errors.New("session is at the first rule")

	// ErrSessionNotStarted indicates a step on a session that has not been started.
	ErrSessionNotStarted = errors.New("session has not been started")

	// ErrNoRules indicates a session was started over an empty rule set.
	ErrNoRules = errors.New("rule set contains no rules")

	// ErrTooManyRules indicates a rule set exceeds MaxRules.
	ErrTooManyRules = errors.New("rule set exceeds maximum rule count")

	// ErrStatementTooDeep indicates statement nesting exceeds MaxStatementDepth.
	ErrStatementTooDeep = errors.New("statement nesting exceeds maximum depth")

	// ErrUnsupportedField indicates a field selector the evaluator cannot extract.
	ErrUnsupportedField = errors.New("unsupported field selector")

	// ErrUnsupportedStatement indicates a statement kind the evaluator cannot decide.
	ErrUnsupportedStatement = errors.New("unsupported statement")

	// ErrUnsupportedTransform indicates an unknown text transformation type.
	ErrUnsupportedTransform = errors.New("unsupported text transformation")

	// ErrInvalidPattern indicates a regex pattern failed to compile or timed out.
	ErrInvalidPattern = errors.New("invalid regex pattern")

	// ErrRuleSetNotFound indicates an unknown rule-set identifier.
	ErrRuleSetNotFound = errors.New("rule set not found")

	// ErrSessionNotFound indicates an unknown or expired session identifier.
	ErrSessionNotFound = errors.New("session not found")
)

// InputShapeError reports a rule-set document that is not a list of
// rule-shaped records. Index is -1 when the document itself is not a list,
// otherwise the position of the offending record.
type InputShapeError struct {
	Index  int
	Reason string
}

func (e *InputShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("rule set input is not a list of rules: %s", e.Reason)
	}
	return fmt.Sprintf("rule set entry %d is not rule-shaped: %s", e.Index, e.Reason)
}
