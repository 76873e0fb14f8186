// internal/rules/graph.go
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/solatis/wafscope/internal/ruleset"
	"github.com/solatis/wafscope/internal/types"
)

/*
 * Label dependency graph construction.
 *
 * Builds the rule dependency DAG consumed by the visualizer: one node per
 * rule, one link per (dependent, provider) pair where the dependent's
 * statement matches a label the provider attaches.
 *
 * Build workflow:
 *   1. Compile: stable priority sort, tie annotation, capacity
 *   2. Per rule in sorted order: validate, then resolve each referenced label
 *      against the lower-priority prefix only
 *   3. Levels: level = 0 without providers, else 1 + max(provider level)
 *   4. Collect per-rule warnings into GlobalWarnings
 *
 * Why prefix-only resolution: the resolver never sees the current rule, its
 * equal-priority peers or any later rule, so every link points to a strictly
 * lower priority and the link set is acyclic by construction. Later rules are
 * consulted only to choose between the two "not defined" warnings.
 *
 * Why a forward level pass: providers always precede dependents in sorted
 * order, so one pass in that order is the memoized recursion unrolled. No
 * recursion means no depth limit to enforce.
 *
 * Problems with individual rules never abort the build; they become warnings
 * on that rule's node.
 */

// RuleNode is the graph view of one rule.
type RuleNode struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	Priority        int              `json:"priority"`
	Action          types.ActionKind `json:"action"`
	GeneratedLabels []string         `json:"generatedLabels"`
	DependsOn       []int            `json:"dependsOn"`
	Level           int              `json:"level"`
	Capacity        int              `json:"capacity"`
	Warnings        []string         `json:"warnings"`
}

// DependencyLink points from a dependent rule to the rule providing its label.
type DependencyLink struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// RuleWarnings aggregates the warnings of one rule.
type RuleWarnings struct {
	RuleID   int      `json:"ruleId"`
	RuleName string   `json:"ruleName"`
	Warnings []string `json:"warnings"`
}

// Graph is the dependency graph of a rule set.
type Graph struct {
	Nodes          []RuleNode           `json:"nodes"`
	Links          []DependencyLink     `json:"links"`
	GlobalWarnings []RuleWarnings       `json:"globalWarnings"`
	InputWarnings  []types.InputWarning `json:"inputWarnings,omitempty"`
}

// BuildGraph builds the label dependency graph for rules.
// Fails only when the rule set exceeds MaxRules.
func BuildGraph(rules []types.Rule) (*Graph, error) {
	set, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	return buildGraph(set), nil
}

// BuildGraphJSON decodes a rule-set document and builds its graph.
// Returns *types.InputShapeError when the document is not a list of rules.
func BuildGraphJSON(data []byte) (*Graph, error) {
	decoded, err := ruleset.Decode(data)
	if err != nil {
		return nil, err
	}
	graph, err := BuildGraph(decoded.Rules)
	if err != nil {
		return nil, err
	}
	graph.InputWarnings = decoded.Skipped
	return graph, nil
}

// Graph builds the dependency graph of an already compiled rule set.
func (s *RuleSet) Graph() *Graph {
	return buildGraph(s)
}

func buildGraph(set *RuleSet) *Graph {
	validate := validator.New()

	// Every label produced anywhere, for the "not defined" distinction only
	defined := make(map[string]bool)
	for _, cr := range set.Rules {
		for _, label := range cr.Rule.RuleLabels {
			defined[label] = true
		}
	}

	nodes := make([]RuleNode, len(set.Rules))
	links := make([]DependencyLink, 0)

	for i, cr := range set.Rules {
		rule := cr.Rule
		node := newRuleNode(cr)
		node.Warnings = append(node.Warnings, validateRule(validate, rule)...)

		if cr.TiedWith >= 0 {
			node.Warnings = append(node.Warnings, fmt.Sprintf("priority %d is shared with rule '%s'", rule.Priority, set.Rules[cr.TiedWith].Rule.Name))
		}
		if StatementDepth(rule.Statement) > types.MaxStatementDepth {
			node.Warnings = append(node.Warnings, fmt.Sprintf("statement nesting exceeds maximum depth of %d", types.MaxStatementDepth))
		}

		visible := nodes[:len(set.lowerPriorityPrefix(i))]
		linked := make(map[int]bool)

		for _, key := range ExtractLabelKeys(rule.Statement) {
			providers := resolveLabel(visible, key)
			if len(providers) == 0 {
				if defined[key] {
					node.Warnings = append(node.Warnings, fmt.Sprintf("label '%s' is not defined in any rule with lower priority", key))
				} else {
					node.Warnings = append(node.Warnings, fmt.Sprintf("label '%s' is not defined in any rule", key))
				}
				continue
			}

			for _, p := range providers {
				provider := &nodes[p]
				if !linked[p] {
					linked[p] = true
					node.DependsOn = append(node.DependsOn, p)
					links = append(links, DependencyLink{From: node.ID, To: p})
				}
				if provider.Action.Terminal() {
					msg := terminalLabelWarning(key, provider.Action)
					node.Warnings = append(node.Warnings, msg)
					// Provider carries it once per label, however many rules read it
					if !containsString(provider.Warnings, msg) {
						provider.Warnings = append(provider.Warnings, msg)
					}
				}
			}
		}

		nodes[i] = node
	}

	computeLevels(nodes)

	return &Graph{
		Nodes:          nodes,
		Links:          links,
		GlobalWarnings: collectWarnings(nodes),
	}
}

func newRuleNode(cr CompiledRule) RuleNode {
	labels := make([]string, len(cr.Rule.RuleLabels))
	copy(labels, cr.Rule.RuleLabels)
	return RuleNode{
		ID:              cr.Index,
		Name:            cr.Rule.Name,
		Priority:        cr.Rule.Priority,
		Action:          cr.Rule.ActionKind(),
		GeneratedLabels: labels,
		DependsOn:       make([]int, 0),
		Capacity:        cr.Capacity,
		Warnings:        make([]string, 0),
	}
}

// resolveLabel returns the ids of visible nodes that generate key.
// visible must hold only rules with a lower priority than the dependent.
func resolveLabel(visible []RuleNode, key string) []int {
	var ids []int
	for _, n := range visible {
		if containsString(n.GeneratedLabels, key) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// computeLevels assigns topological levels. Requires DependsOn entries to
// reference earlier nodes only, which prefix resolution guarantees.
func computeLevels(nodes []RuleNode) {
	for i := range nodes {
		level := 0
		for _, p := range nodes[i].DependsOn {
			if l := nodes[p].Level + 1; l > level {
				level = l
			}
		}
		nodes[i].Level = level
	}
}

// validateRule reports missing required fields and a name/metric mismatch.
func validateRule(validate *validator.Validate, rule *types.Rule) []string {
	var warnings []string
	missing := make(map[string]bool)

	err := validate.Struct(rule)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.StructNamespace(), "Rule.")
			if field == "Action.Kind" {
				field = "Action"
			}
			missing[field] = true
		}
	}
	for _, field := range rule.MissingFields {
		missing[field] = true
	}

	for _, field := range []string{"Name", "Priority", "Statement", "Action"} {
		if missing[field] {
			warnings = append(warnings, fmt.Sprintf("missing required field: %s", field))
		}
	}

	if rule.Name != rule.MetricName {
		warnings = append(warnings, fmt.Sprintf("name '%s' does not match metric name '%s'", rule.Name, rule.MetricName))
	}
	return warnings
}

func terminalLabelWarning(key string, action types.ActionKind) string {
	return fmt.Sprintf("label '%s' is created in a terminal rule (%s) - this may affect rule evaluation", key, action)
}

func collectWarnings(nodes []RuleNode) []RuleWarnings {
	out := make([]RuleWarnings, 0)
	for _, n := range nodes {
		if len(n.Warnings) == 0 {
			continue
		}
		out = append(out, RuleWarnings{RuleID: n.ID, RuleName: n.Name, Warnings: n.Warnings})
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
