// internal/rules/cost.go
package rules

import "github.com/solatis/wafscope/internal/types"

/*
 * Capacity model for rule statements.
 *
 * Estimates the capacity units a statement consumes in a web ACL so the
 * graph can flag expensive rules next to their dependencies. Values follow
 * the published per-statement costs; they are an estimate, not a billing
 * figure.
 *
 * Cost formula: base cost per leaf + CostPerTransform for every
 * transformation other than NONE. Logical statements cost the sum of their
 * children; rate-based adds its own base to the scope-down.
 *
 * Depth: nodes below MaxStatementDepth are not counted.
 */

// Canonical capacity constants.
const (
	CapacityByteMatch  = 1
	CapacityRegexMatch = 3
	CapacityLabelMatch = 1
	CapacityRateBased  = 2

	// Added per text transformation (NONE is free)
	CostPerTransform = 10
)

// CalculateCapacity computes the capacity estimate for stmt.
func CalculateCapacity(stmt types.Statement) int {
	return capacity(stmt, 1)
}

func capacity(stmt types.Statement, depth int) int {
	if stmt == nil || depth > types.MaxStatementDepth {
		return 0
	}
	switch s := stmt.(type) {
	case *types.ByteMatch:
		return CapacityByteMatch + transformCost(s.Transformations)
	case *types.RegexMatch:
		return CapacityRegexMatch + transformCost(s.Transformations)
	case *types.LabelMatch:
		return CapacityLabelMatch
	case *types.And:
		return sumCapacity(s.Children, depth)
	case *types.Or:
		return sumCapacity(s.Children, depth)
	case *types.Not:
		return capacity(s.Child, depth+1)
	case *types.RateBased:
		return CapacityRateBased + capacity(s.ScopeDown, depth+1)
	default:
		return 0
	}
}

func sumCapacity(children []types.Statement, depth int) int {
	total := 0
	for _, child := range children {
		total += capacity(child, depth+1)
	}
	return total
}

// transformCost returns CostPerTransform for each non-NONE transformation.
func transformCost(transforms []types.TextTransformation) int {
	cost := 0
	for _, t := range transforms {
		if t.Type != types.TransformNone {
			cost += CostPerTransform
		}
	}
	return cost
}
