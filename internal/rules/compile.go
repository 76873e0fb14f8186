// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Rule-set compilation.
 *
 * Compiles a caller-supplied []types.Rule into a RuleSet: a private copy in
 * ascending priority order with capacity estimates and tie annotations. Both
 * the graph builder and the evaluator work from a RuleSet so "sorted index"
 * means the same thing everywhere (RuleNode.ID == session rule index).
 *
 * Compilation workflow:
 *   1. Enforce MaxRules
 *   2. Copy the input (callers may reuse their slice)
 *   3. Stable sort by priority (ties keep input order)
 *   4. Annotate ties and compute per-rule capacity
 *
 * Why stable sort: duplicate priorities are an operator error but must still
 * produce deterministic ids, warnings and evaluation order across runs.
 */

// CompiledRule is a rule positioned in evaluation order.
type CompiledRule struct {
	Index      int // position after priority sort
	InputIndex int // position in the caller's list
	Rule       *types.Rule
	Capacity   int

	// TiedWith is the Index of the earliest rule sharing this priority,
	// or -1 when the priority is unique (or this rule is that earliest one).
	TiedWith int
}

// RuleSet is an immutable, priority-ordered rule list.
type RuleSet struct {
	Rules []CompiledRule
}

// Compile validates size limits and orders rules for evaluation.
func Compile(rules []types.Rule) (*RuleSet, error) {
	if len(rules) > types.MaxRules {
		return nil, fmt.Errorf("%w: %d rules (max %d)", types.ErrTooManyRules, len(rules), types.MaxRules)
	}

	owned := make([]types.Rule, len(rules))
	copy(owned, rules)

	order := make([]int, len(owned))
	for i := range order {
		order[i] = i
	}
	// Stable sort: equal priorities keep input order (deterministic ids)
	sort.SliceStable(order, func(i, j int) bool {
		return owned[order[i]].Priority < owned[order[j]].Priority
	})

	set := &RuleSet{Rules: make([]CompiledRule, 0, len(owned))}
	firstAt := make(map[int]int, len(owned))
	for idx, in := range order {
		rule := &owned[in]
		tied := -1
		if first, ok := firstAt[rule.Priority]; ok {
			tied = first
		} else {
			firstAt[rule.Priority] = idx
		}
		set.Rules = append(set.Rules, CompiledRule{
			Index:      idx,
			InputIndex: in,
			Rule:       rule,
			Capacity:   CalculateCapacity(rule.Statement),
			TiedWith:   tied,
		})
	}

	return set, nil
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	return len(s.Rules)
}

// Rule returns the rule at sorted position i.
func (s *RuleSet) Rule(i int) *types.Rule {
	return s.Rules[i].Rule
}

// lowerPriorityPrefix returns the compiled rules strictly below position i's
// priority. Ties with i are excluded so every dependency points to an
// earlier priority.
func (s *RuleSet) lowerPriorityPrefix(i int) []CompiledRule {
	end := i
	if first := s.Rules[i].TiedWith; first >= 0 {
		end = first
	}
	return s.Rules[:end]
}
