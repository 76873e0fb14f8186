// internal/rules/operators.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Positional constraint comparison for byte matches.
 *
 * Implements the four constraints over already-transformed values:
 *   - EXACTLY:     value == search
 *   - STARTS_WITH: prefix test
 *   - ENDS_WITH:   suffix test
 *   - CONTAINS:    substring test
 *
 * Empty value or empty search string never matches (a WAF byte match needs
 * at least one byte to compare). An unknown constraint is an error so the
 * caller can report the match as inconclusive instead of silently false.
 *
 * Why function-based: four constraints with one-line bodies read better as
 * a switch than as four interface implementations.
 */

// compareConstraint applies constraint c to value and search.
func compareConstraint(c types.Constraint, value, search string) (bool, error) {
	switch c {
	case types.ConstraintExactly, types.ConstraintStartsWith, types.ConstraintEndsWith, types.ConstraintContains:
	default:
		return false, fmt.Errorf("%w: positional constraint %q", types.ErrUnsupportedStatement, c)
	}

	if value == "" || search == "" {
		return false, nil
	}

	switch c {
	case types.ConstraintExactly:
		return value == search, nil
	case types.ConstraintStartsWith:
		return strings.HasPrefix(value, search), nil
	case types.ConstraintEndsWith:
		return strings.HasSuffix(value, search), nil
	default:
		return strings.Contains(value, search), nil
	}
}
