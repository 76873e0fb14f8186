// internal/rules/session.go
package rules

import (
	"github.com/solatis/wafscope/internal/types"
)

/*
 * Step-through evaluation session.
 *
 * A Session walks one request through a rule set one rule at a time, the way
 * a debugger steps through statements. It owns a priority-sorted copy of the
 * rules, so callers may reuse or mutate their slice afterwards.
 *
 * State machine:
 *   Empty --Start--> Running --StepForward/StepBackward--> Running
 *   Running --Reset--> Empty;  Running --Start--> Running (restart)
 *
 * Boundaries are errors, never no-ops: ErrAtEnd past the last rule,
 * ErrAtStart before the first, ErrSessionNotStarted when stepping an Empty
 * session, ErrNoRules when starting over an empty rule set.
 *
 * Why replay on StepBackward: history is truncated and the remaining entries'
 * side effects are reapplied to a blank label set and projection. State after
 * a step back is therefore identical to a fresh walk of the same prefix, with
 * no inverse operations to keep in sync with apply.
 *
 * A Session is not safe for concurrent use; the API layer serializes access
 * per session.
 */

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	SessionEmpty SessionState = iota
	SessionRunning
)

func (s SessionState) String() string {
	switch s {
	case SessionEmpty:
		return "empty"
	case SessionRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Step records one rule offered to the request.
type Step struct {
	RuleIndex int         `json:"ruleIndex"`
	Result    MatchResult `json:"matchResult"`
}

// Provenance tags a label or header with the rule that added it.
type Provenance struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	AddedByRule string `json:"addedByRule"`
	Priority    int    `json:"priority"`
}

// ActionRecord is an action taken by a matched rule.
type ActionRecord struct {
	Action   types.ActionKind `json:"action"`
	Rule     string           `json:"rule"`
	Priority int              `json:"priority"`
}

// Projection is the request as seen after the steps taken so far.
type Projection struct {
	Request      types.Request  `json:"request"`
	AddedLabels  []Provenance   `json:"addedLabels"`
	AddedHeaders []Provenance   `json:"addedHeaders"`
	ActionsTaken []ActionRecord `json:"actionsTaken"`
}

func newProjection(req types.Request) Projection {
	return Projection{
		Request:      req.Clone(),
		AddedLabels:  make([]Provenance, 0),
		AddedHeaders: make([]Provenance, 0),
		ActionsTaken: make([]ActionRecord, 0),
	}
}

func (p Projection) clone() Projection {
	out := Projection{
		Request:      p.Request.Clone(),
		AddedLabels:  append(make([]Provenance, 0, len(p.AddedLabels)), p.AddedLabels...),
		AddedHeaders: append(make([]Provenance, 0, len(p.AddedHeaders)), p.AddedHeaders...),
		ActionsTaken: append(make([]ActionRecord, 0, len(p.ActionsTaken)), p.ActionsTaken...),
	}
	return out
}

// Session steps a request through a rule set.
type Session struct {
	engine *Engine
	set    *RuleSet

	state      SessionState
	request    types.Request
	history    []Step
	labels     LabelSet
	projection Projection
}

// NewSession creates an Empty session over rules.
func NewSession(engine *Engine, rules []types.Rule) (*Session, error) {
	set, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	return NewSessionFromSet(engine, set), nil
}

// NewSessionFromSet creates an Empty session over a compiled rule set.
// The set is shared read-only.
func NewSessionFromSet(engine *Engine, set *RuleSet) *Session {
	s := &Session{engine: engine, set: set}
	s.clear()
	return s
}

// Start evaluates the first rule against req. Restarts a Running session.
func (s *Session) Start(req types.Request) (Step, error) {
	if s.set.Len() == 0 {
		return Step{}, types.ErrNoRules
	}
	s.clear()
	s.state = SessionRunning
	s.request = req.Clone()
	s.projection = newProjection(req)

	step := s.evaluate(0)
	s.engine.tracer.SessionEvent("start", len(s.history))
	return step, nil
}

// StepForward evaluates the next rule against the current labels.
func (s *Session) StepForward() (Step, error) {
	if s.state != SessionRunning {
		return Step{}, types.ErrSessionNotStarted
	}
	if len(s.history) >= s.set.Len() {
		return Step{}, types.ErrAtEnd
	}

	step := s.evaluate(len(s.history))
	s.engine.tracer.SessionEvent("step forward", len(s.history))
	return step, nil
}

// StepBackward drops the last step and rebuilds state by replay.
func (s *Session) StepBackward() error {
	if s.state != SessionRunning {
		return types.ErrSessionNotStarted
	}
	if len(s.history) <= 1 {
		return types.ErrAtStart
	}

	s.history = s.history[:len(s.history)-1]
	s.replay()
	s.engine.tracer.SessionEvent("step backward", len(s.history))
	return nil
}

// Reset returns the session to Empty.
func (s *Session) Reset() {
	s.clear()
	s.engine.tracer.SessionEvent("reset", 0)
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// RuleCount returns the number of rules in the session.
func (s *Session) RuleCount() int {
	return s.set.Len()
}

// Position returns the number of rules evaluated so far.
func (s *Session) Position() int {
	return len(s.history)
}

// Rule returns the rule at sorted position i.
func (s *Session) Rule(i int) *types.Rule {
	return s.set.Rule(i)
}

// History returns a copy of the steps taken.
func (s *Session) History() []Step {
	return append(make([]Step, 0, len(s.history)), s.history...)
}

// ActiveLabels returns the labels attached so far, sorted.
func (s *Session) ActiveLabels() []string {
	return s.labels.Sorted()
}

// Projection returns a copy of the request projection.
func (s *Session) Projection() Projection {
	return s.projection.clone()
}

func (s *Session) clear() {
	s.state = SessionEmpty
	s.request = types.Request{}
	s.history = nil
	s.labels = NewLabelSet()
	s.projection = newProjection(types.Request{})
}

func (s *Session) evaluate(i int) Step {
	result := s.engine.MatchRule(&s.request, s.set.Rule(i), s.labels)
	s.engine.tracer.RuleEvaluated(i, result)

	step := Step{RuleIndex: i, Result: result}
	s.history = append(s.history, step)
	if result.Matched {
		s.apply(result)
	}
	return step
}

// replay rebuilds labels and projection from history.
func (s *Session) replay() {
	s.labels = NewLabelSet()
	s.projection = newProjection(s.request)
	for _, step := range s.history {
		if step.Result.Matched {
			s.apply(step.Result)
		}
	}
}

func (s *Session) apply(result MatchResult) {
	effects := result.SideEffects
	if effects == nil {
		return
	}
	for _, l := range effects.LabelsToAdd {
		s.labels.Add(l)
		s.projection.AddedLabels = append(s.projection.AddedLabels, Provenance{
			Name:        l,
			AddedByRule: result.RuleName,
			Priority:    result.Priority,
		})
	}
	for _, h := range effects.HeadersToAdd {
		s.projection.AddedHeaders = append(s.projection.AddedHeaders, Provenance{
			Name:        h.Name,
			Value:       h.Value,
			AddedByRule: result.RuleName,
			Priority:    result.Priority,
		})
	}
	if effects.ActionTaken != "" {
		s.projection.ActionsTaken = append(s.projection.ActionsTaken, ActionRecord{
			Action:   effects.ActionTaken,
			Rule:     result.RuleName,
			Priority: result.Priority,
		})
	}
}
