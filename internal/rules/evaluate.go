// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Request evaluation.
 *
 * Evaluates a statement tree against a request and the labels attached so
 * far. Results are three-valued: matched, definitively not matched, or
 * inconclusive (the evaluator could not decide). Inconclusive always reports
 * Matched=false so callers that only look at Matched fail closed.
 *
 * Evaluation flow per rule:
 *   1. Walk the statement tree, recording a MatchDetail per node
 *   2. Leaves: extract field -> transform -> compare (byte/regex), or test
 *      the label set (label match)
 *   3. Combine children with three-valued logic
 *   4. On match, derive side effects from the rule's labels and action
 *
 * Inconclusive sources: unknown field selector, unsupported statement,
 * unknown positional constraint or transformation, invalid regex or regex
 * timeout, nesting beyond MaxStatementDepth.
 *
 * Combination rules (I = inconclusive):
 *   - And: false if any conclusive child is false; else I if any child is I;
 *     else true. An empty And is false.
 *   - Or: true if any conclusive child is true; else I if any child is I;
 *     else false.
 *   - Not: I if the child is I (never flips an undecided child to true);
 *     else negation.
 *   - RateBased: delegates to the scope-down; without one the request is
 *     eligible (the rate threshold itself is never checked).
 *
 * No short-circuit: And/Or evaluate every child so the detail tree is
 * complete for the debugger.
 *
 * Diagnostic semantics: EvaluateAll offers every rule to the request unless
 * HaltOnTerminal is set. Labels accumulate in priority order so label
 * dependencies resolve the way they would in production.
 */

// Statement kind names used in MatchDetail.
const (
	KindByteMatch  = "ByteMatch"
	KindRegexMatch = "RegexMatch"
	KindLabelMatch = "LabelMatch"
	KindAnd        = "And"
	KindOr         = "Or"
	KindNot        = "Not"
	KindRateBased  = "RateBased"
)

// MatchDetail describes the evaluation of one statement node.
type MatchDetail struct {
	Statement    string           `json:"statement"`
	Matched      bool             `json:"matched"`
	Inconclusive bool             `json:"inconclusive,omitempty"`
	Field        string           `json:"field,omitempty"`
	Value        string           `json:"value,omitempty"`
	Constraint   types.Constraint `json:"constraint,omitempty"`
	SearchString string           `json:"searchString,omitempty"`
	Pattern      string           `json:"pattern,omitempty"`
	LabelKey     string           `json:"labelKey,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Children     []MatchDetail    `json:"children,omitempty"`
}

// Outcome is the result of evaluating a statement.
type Outcome struct {
	Matched      bool
	Inconclusive bool
	Detail       MatchDetail
}

// SideEffects are applied to the request when a rule matches.
type SideEffects struct {
	LabelsToAdd  []string         `json:"labelsToAdd"`
	HeadersToAdd []types.Header   `json:"headersToAdd"`
	ActionTaken  types.ActionKind `json:"actionTaken"`
}

// MatchResult is the result of offering one rule to a request.
type MatchResult struct {
	RuleName     string       `json:"ruleName"`
	Priority     int          `json:"priority"`
	Matched      bool         `json:"matched"`
	Inconclusive bool         `json:"inconclusive,omitempty"`
	Detail       MatchDetail  `json:"matchDetail"`
	SideEffects  *SideEffects `json:"sideEffects,omitempty"`
}

// Evaluate evaluates stmt against req with the given labels attached.
// Total: never fails, undecidable statements yield Inconclusive.
func (e *Engine) Evaluate(req *types.Request, stmt types.Statement, labels LabelSet) Outcome {
	d := e.eval(req, stmt, labels, 1)
	return Outcome{Matched: d.Matched, Inconclusive: d.Inconclusive, Detail: d}
}

// Matches reports whether stmt definitively matches req.
func (e *Engine) Matches(req *types.Request, stmt types.Statement, labels LabelSet) bool {
	return e.Evaluate(req, stmt, labels).Matched
}

// MatchRule offers rule to req and computes side effects on match.
func (e *Engine) MatchRule(req *types.Request, rule *types.Rule, labels LabelSet) MatchResult {
	out := e.Evaluate(req, rule.Statement, labels)
	result := MatchResult{
		RuleName:     rule.Name,
		Priority:     rule.Priority,
		Matched:      out.Matched,
		Inconclusive: out.Inconclusive,
		Detail:       out.Detail,
	}
	if out.Matched {
		result.SideEffects = sideEffects(rule)
	}
	return result
}

func sideEffects(rule *types.Rule) *SideEffects {
	effects := &SideEffects{
		LabelsToAdd:  append([]string{}, rule.RuleLabels...),
		HeadersToAdd: []types.Header{},
		ActionTaken:  rule.ActionKind(),
	}
	if rule.Action != nil && rule.Action.Kind == types.ActionCount {
		effects.HeadersToAdd = append(effects.HeadersToAdd, rule.Action.InsertHeaders...)
	}
	return effects
}

func inconclusive(kind string, err error) MatchDetail {
	return MatchDetail{Statement: kind, Inconclusive: true, Reason: err.Error()}
}

func (e *Engine) eval(req *types.Request, stmt types.Statement, labels LabelSet, depth int) MatchDetail {
	if depth > types.MaxStatementDepth {
		return inconclusive("", fmt.Errorf("%w of %d", types.ErrStatementTooDeep, types.MaxStatementDepth))
	}
	if stmt == nil {
		return inconclusive("", fmt.Errorf("%w: missing statement", types.ErrUnsupportedStatement))
	}

	switch s := stmt.(type) {
	case *types.ByteMatch:
		return e.evalByteMatch(req, s)

	case *types.RegexMatch:
		return e.evalRegexMatch(req, s)

	case *types.LabelMatch:
		return MatchDetail{Statement: KindLabelMatch, LabelKey: s.Key, Matched: labels.Has(s.Key)}

	case *types.And:
		d := MatchDetail{Statement: KindAnd, Children: e.evalChildren(req, s.Children, labels, depth)}
		anyFalse, anyUnknown := false, false
		for _, c := range d.Children {
			switch {
			case c.Inconclusive:
				anyUnknown = true
			case !c.Matched:
				anyFalse = true
			}
		}
		switch {
		case len(d.Children) == 0 || anyFalse:
		case anyUnknown:
			d.Inconclusive = true
		default:
			d.Matched = true
		}
		return d

	case *types.Or:
		d := MatchDetail{Statement: KindOr, Children: e.evalChildren(req, s.Children, labels, depth)}
		for _, c := range d.Children {
			if c.Matched {
				d.Matched = true
			}
			if c.Inconclusive {
				d.Inconclusive = true
			}
		}
		if d.Matched {
			d.Inconclusive = false
		}
		return d

	case *types.Not:
		child := e.eval(req, s.Child, labels, depth+1)
		d := MatchDetail{Statement: KindNot, Children: []MatchDetail{child}}
		if child.Inconclusive {
			d.Inconclusive = true
		} else {
			d.Matched = !child.Matched
		}
		return d

	case *types.RateBased:
		if s.ScopeDown == nil {
			return MatchDetail{Statement: KindRateBased, Matched: true, Reason: "no scope-down statement; rate limit not evaluated"}
		}
		child := e.eval(req, s.ScopeDown, labels, depth+1)
		return MatchDetail{
			Statement:    KindRateBased,
			Matched:      child.Matched,
			Inconclusive: child.Inconclusive,
			Reason:       "rate limit not evaluated",
			Children:     []MatchDetail{child},
		}

	case *types.Unsupported:
		return inconclusive(s.Kind, fmt.Errorf("%w: %s", types.ErrUnsupportedStatement, s.Kind))

	default:
		return inconclusive(fmt.Sprintf("%T", stmt), types.ErrUnsupportedStatement)
	}
}

func (e *Engine) evalChildren(req *types.Request, children []types.Statement, labels LabelSet, depth int) []MatchDetail {
	out := make([]MatchDetail, 0, len(children))
	for _, child := range children {
		out = append(out, e.eval(req, child, labels, depth+1))
	}
	return out
}

func (e *Engine) evalByteMatch(req *types.Request, s *types.ByteMatch) MatchDetail {
	d := MatchDetail{
		Statement:    KindByteMatch,
		Field:        string(s.Field.Kind),
		Constraint:   s.Constraint,
		SearchString: s.SearchString,
	}
	return e.matchField(req, s.Field, s.Transformations, d, func(value string) (bool, error) {
		return compareConstraint(s.Constraint, value, s.SearchString)
	})
}

func (e *Engine) evalRegexMatch(req *types.Request, s *types.RegexMatch) MatchDetail {
	d := MatchDetail{
		Statement: KindRegexMatch,
		Field:     string(s.Field.Kind),
		Pattern:   s.Pattern,
	}
	return e.matchField(req, s.Field, s.Transformations, d, func(value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		return e.regexes.match(s.Pattern, value)
	})
}

// matchField extracts field, transforms each candidate and applies cmp
// until one matches. Any error makes the node inconclusive.
func (e *Engine) matchField(req *types.Request, field types.FieldToMatch, transforms []types.TextTransformation, d MatchDetail, cmp func(string) (bool, error)) MatchDetail {
	values, err := extractField(req, field)
	if err != nil {
		return markInconclusive(d, err)
	}
	if len(values) == 0 {
		d.Reason = "field not present in request"
		return d
	}

	for _, fv := range values {
		value, err := applyTransforms(fv.Value, transforms)
		if err != nil {
			return markInconclusive(d, err)
		}
		ok, err := cmp(value)
		if err != nil {
			return markInconclusive(d, err)
		}
		if ok {
			d.Matched = true
			d.Field = fv.Label
			d.Value = value
			return d
		}
	}
	return d
}

func markInconclusive(d MatchDetail, err error) MatchDetail {
	d.Matched = false
	d.Inconclusive = true
	d.Reason = err.Error()
	return d
}

// EvaluateOptions controls EvaluateAll.
type EvaluateOptions struct {
	// HaltOnTerminal stops after the first matched rule with a terminal
	// action, as production enforcement would.
	HaltOnTerminal bool
}

// MatchedRule pairs a matched rule with its result.
type MatchedRule struct {
	Index  int         `json:"index"`
	Rule   *types.Rule `json:"-"`
	Result MatchResult `json:"result"`
}

// Report is the result of EvaluateAll.
type Report struct {
	MatchedRules    []MatchedRule `json:"matchedRules"`
	LabelsGenerated []string      `json:"labelsGenerated"`
	Inconclusive    []int         `json:"inconclusive,omitempty"`
	Evaluated       int           `json:"evaluated"`
	HaltedBy        *int          `json:"haltedBy,omitempty"`
}

// EvaluateAll offers every rule, in priority order, to req.
func (e *Engine) EvaluateAll(req *types.Request, rules []types.Rule, opts EvaluateOptions) (*Report, error) {
	set, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	return e.EvaluateSet(req, set, opts), nil
}

// EvaluateSet is EvaluateAll over an already compiled rule set.
func (e *Engine) EvaluateSet(req *types.Request, set *RuleSet, opts EvaluateOptions) *Report {
	labels := NewLabelSet()
	report := &Report{MatchedRules: make([]MatchedRule, 0)}

	for _, cr := range set.Rules {
		result := e.MatchRule(req, cr.Rule, labels)
		e.tracer.RuleEvaluated(cr.Index, result)
		report.Evaluated++

		if result.Inconclusive {
			report.Inconclusive = append(report.Inconclusive, cr.Index)
		}
		if !result.Matched {
			continue
		}

		report.MatchedRules = append(report.MatchedRules, MatchedRule{Index: cr.Index, Rule: cr.Rule, Result: result})
		for _, l := range result.SideEffects.LabelsToAdd {
			labels.Add(l)
		}
		if opts.HaltOnTerminal && result.SideEffects.ActionTaken.Terminal() {
			idx := cr.Index
			report.HaltedBy = &idx
			break
		}
	}

	report.LabelsGenerated = labels.Sorted()
	return report
}
