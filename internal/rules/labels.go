// internal/rules/labels.go
package rules

import (
	"sort"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Label reference extraction.
 *
 * Walks a statement tree and returns every LabelMatch key in child order.
 * Duplicates are preserved: each occurrence is an independent dependency the
 * graph builder resolves (and warns about) on its own.
 *
 * Traversal:
 *   - LabelMatch: emit key
 *   - And/Or: concatenate children in order
 *   - Not: recurse into child
 *   - RateBased: recurse into scope-down when present
 *   - anything else: no keys
 *
 * Depth: nodes below MaxStatementDepth are not visited. StatementDepth lets
 * callers detect that case and report it instead of silently truncating.
 */

// ExtractLabelKeys returns the label keys referenced anywhere in stmt.
// Total: never fails, unknown shapes contribute nothing.
func ExtractLabelKeys(stmt types.Statement) []string {
	var keys []string
	collectLabelKeys(stmt, 1, &keys)
	return keys
}

func collectLabelKeys(stmt types.Statement, depth int, keys *[]string) {
	if stmt == nil || depth > types.MaxStatementDepth {
		return
	}
	switch s := stmt.(type) {
	case *types.LabelMatch:
		*keys = append(*keys, s.Key)
	case *types.And:
		for _, child := range s.Children {
			collectLabelKeys(child, depth+1, keys)
		}
	case *types.Or:
		for _, child := range s.Children {
			collectLabelKeys(child, depth+1, keys)
		}
	case *types.Not:
		collectLabelKeys(s.Child, depth+1, keys)
	case *types.RateBased:
		collectLabelKeys(s.ScopeDown, depth+1, keys)
	}
}

// StatementDepth returns the nesting depth of stmt (a leaf is 1).
// Stops counting once MaxStatementDepth+1 is reached.
func StatementDepth(stmt types.Statement) int {
	return statementDepth(stmt, 1)
}

func statementDepth(stmt types.Statement, depth int) int {
	if stmt == nil {
		return depth - 1
	}
	if depth > types.MaxStatementDepth {
		return depth
	}
	deepest := depth
	visit := func(child types.Statement) {
		if d := statementDepth(child, depth+1); d > deepest {
			deepest = d
		}
	}
	switch s := stmt.(type) {
	case *types.And:
		for _, child := range s.Children {
			visit(child)
		}
	case *types.Or:
		for _, child := range s.Children {
			visit(child)
		}
	case *types.Not:
		visit(s.Child)
	case *types.RateBased:
		if s.ScopeDown != nil {
			visit(s.ScopeDown)
		}
	}
	return deepest
}

// LabelSet is the set of labels attached to a request so far.
type LabelSet map[string]struct{}

// NewLabelSet returns a set holding labels.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

// Has reports whether label is in the set. A nil set is empty.
func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Add inserts label.
func (s LabelSet) Add(label string) {
	s[label] = struct{}{}
}

// Sorted returns the labels in lexical order.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
