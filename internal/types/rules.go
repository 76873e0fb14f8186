// internal/types/rules.go
package types

/*
 * Domain types for rule analysis and evaluation.
 *
 * Provides Rule, Action and the Statement sum type used by internal/rules for
 * dependency graph construction and request evaluation. These types are
 * wire-format agnostic - document-to-types conversion happens in
 * internal/ruleset.
 *
 * Key types:
 *   - Rule: named condition + action, evaluated in ascending priority
 *   - Statement: closed union of condition nodes (sealed by isStatement)
 *   - Action: terminal (Block/Allow/Captcha/Challenge) or Count
 *   - FieldToMatch: selects the request component a match inspects
 *
 * Closed union: only this package can implement Statement. Consumers switch
 * on the concrete type and treat the default branch as the degraded path.
 */

// Statement is a boolean condition tree node.
type Statement interface {
	isStatement()
}

// Constraint is the positional constraint of a ByteMatch.
type Constraint string

const (
	ConstraintExactly    Constraint = "EXACTLY"
	ConstraintStartsWith Constraint = "STARTS_WITH"
	ConstraintEndsWith   Constraint = "ENDS_WITH"
	ConstraintContains   Constraint = "CONTAINS"
)

// FieldKind selects a part of the request.
type FieldKind string

const (
	FieldUnspecified         FieldKind = ""
	FieldURIPath             FieldKind = "UriPath"
	FieldSingleQueryArgument FieldKind = "SingleQueryArgument"
	FieldAllQueryArguments   FieldKind = "AllQueryArguments"
	FieldSingleHeader        FieldKind = "SingleHeader"
	FieldJA3Fingerprint      FieldKind = "JA3Fingerprint"
	FieldMethod              FieldKind = "Method"
	FieldQueryString         FieldKind = "QueryString"
	FieldBody                FieldKind = "Body"
)

// FieldToMatch names the request component and, for named selectors,
// the query argument or header name.
type FieldToMatch struct {
	Kind FieldKind `json:"kind"`
	Name string    `json:"name,omitempty"`
}

// TransformType is a text transformation applied before matching.
type TransformType string

const (
	TransformNone               TransformType = "NONE"
	TransformLowercase          TransformType = "LOWERCASE"
	TransformUppercase          TransformType = "UPPERCASE"
	TransformURLDecode          TransformType = "URL_DECODE"
	TransformCompressWhiteSpace TransformType = "COMPRESS_WHITE_SPACE"
	TransformHTMLEntityDecode   TransformType = "HTML_ENTITY_DECODE"
	TransformBase64Decode       TransformType = "BASE64_DECODE"
	TransformCmdLine            TransformType = "CMD_LINE"
)

// TextTransformation is applied in ascending Priority order.
type TextTransformation struct {
	Priority int           `json:"priority"`
	Type     TransformType `json:"type"`
}

// ByteMatch compares a request field against a literal string.
type ByteMatch struct {
	Field           FieldToMatch
	SearchString    string
	Constraint      Constraint
	Transformations []TextTransformation
}

// RegexMatch tests a request field against an unanchored pattern.
type RegexMatch struct {
	Field           FieldToMatch
	Pattern         string
	Transformations []TextTransformation
}

// LabelMatch is true when Key was added by an earlier matching rule.
type LabelMatch struct {
	Key string
}

// And is true when every child is true.
type And struct {
	Children []Statement
}

// Or is true when at least one child is true.
type Or struct {
	Children []Statement
}

// Not negates its child.
type Not struct {
	Child Statement
}

// RateBased carries the scope-down condition of a rate-based rule.
// Limit and AggregateKeyType are informational; thresholds are never checked.
type RateBased struct {
	ScopeDown        Statement
	Limit            int64
	AggregateKeyType string
}

// Unsupported stands in for a statement kind the model does not cover.
// Extraction yields no labels; evaluation is inconclusive.
type Unsupported struct {
	Kind string
}

func (*ByteMatch) isStatement()   {}
func (*RegexMatch) isStatement()  {}
func (*LabelMatch) isStatement()  {}
func (*And) isStatement()         {}
func (*Or) isStatement()          {}
func (*Not) isStatement()         {}
func (*RateBased) isStatement()   {}
func (*Unsupported) isStatement() {}

// ActionKind names a rule action.
type ActionKind string

const (
	ActionBlock     ActionKind = "Block"
	ActionAllow     ActionKind = "Allow"
	ActionCount     ActionKind = "Count"
	ActionCaptcha   ActionKind = "Captcha"
	ActionChallenge ActionKind = "Challenge"
)

// Terminal reports whether the action stops evaluation in production semantics.
func (k ActionKind) Terminal() bool {
	switch k {
	case ActionBlock, ActionAllow, ActionCaptcha, ActionChallenge:
		return true
	default:
		return false
	}
}

// Header is a name/value pair inserted by a Count action.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is the outcome a rule applies when its statement matches.
// InsertHeaders is only meaningful for ActionCount.
type Action struct {
	Kind          ActionKind `validate:"required"`
	InsertHeaders []Header
}

// Rule is a complete rule definition.
type Rule struct {
	Name       string    `validate:"required"`
	Priority   int       // ascending = earlier evaluation
	Statement  Statement `validate:"required"`
	Action     *Action   `validate:"required"`
	RuleLabels []string  // labels attached to the request on match
	MetricName string    // expected to equal Name

	// MissingFields lists required fields absent from the source document.
	// Set by the decoder; Priority cannot be detected from a zero int.
	MissingFields []string
}

// ActionKind returns the rule's action kind, or "" when Action is nil.
func (r *Rule) ActionKind() ActionKind {
	if r.Action == nil {
		return ""
	}
	return r.Action.Kind
}
