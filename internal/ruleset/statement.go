// internal/ruleset/statement.go
package ruleset

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/solatis/wafscope/internal/types"
)

// decodeStatement converts a statement object. The first key of the object
// names the statement kind; unknown kinds decode to *types.Unsupported.
// An empty object decodes to nil (reported as a missing Statement).
func decodeStatement(r gjson.Result, depth int) (types.Statement, error) {
	if depth > types.MaxStatementDepth {
		return nil, fmt.Errorf("%w of %d", types.ErrStatementTooDeep, types.MaxStatementDepth)
	}
	if !r.IsObject() {
		return nil, fmt.Errorf("statement must be an object, got %s", describe(r))
	}

	kind, body, ok := firstMember(r)
	if !ok {
		return nil, nil
	}

	switch kind {
	case "ByteMatchStatement":
		transforms, err := decodeTransforms(body.Get("TextTransformations"))
		if err != nil {
			return nil, err
		}
		return &types.ByteMatch{
			Field:           decodeField(body.Get("FieldToMatch")),
			SearchString:    body.Get("SearchString").String(),
			Constraint:      types.Constraint(body.Get("PositionalConstraint").String()),
			Transformations: transforms,
		}, nil

	case "RegexMatchStatement":
		transforms, err := decodeTransforms(body.Get("TextTransformations"))
		if err != nil {
			return nil, err
		}
		return &types.RegexMatch{
			Field:           decodeField(body.Get("FieldToMatch")),
			Pattern:         body.Get("RegexString").String(),
			Transformations: transforms,
		}, nil

	case "LabelMatchStatement":
		return &types.LabelMatch{Key: body.Get("Key").String()}, nil

	case "AndStatement":
		children, err := decodeChildren(body.Get("Statements"), depth)
		if err != nil {
			return nil, fmt.Errorf("AndStatement: %w", err)
		}
		return &types.And{Children: children}, nil

	case "OrStatement":
		children, err := decodeChildren(body.Get("Statements"), depth)
		if err != nil {
			return nil, fmt.Errorf("OrStatement: %w", err)
		}
		return &types.Or{Children: children}, nil

	case "NotStatement":
		child, err := decodeStatement(body.Get("Statement"), depth+1)
		if err != nil {
			return nil, fmt.Errorf("NotStatement: %w", err)
		}
		if child == nil {
			child = emptyStatement()
		}
		return &types.Not{Child: child}, nil

	case "RateBasedStatement":
		rb := &types.RateBased{
			Limit:            body.Get("Limit").Int(),
			AggregateKeyType: body.Get("AggregateKeyType").String(),
		}
		if scope := body.Get("ScopeDownStatement"); scope.Exists() && scope.Type != gjson.Null {
			stmt, err := decodeStatement(scope, depth+1)
			if err != nil {
				return nil, fmt.Errorf("RateBasedStatement: %w", err)
			}
			rb.ScopeDown = stmt
		}
		return rb, nil

	default:
		return &types.Unsupported{Kind: kind}, nil
	}
}

// emptyStatement stands in for an empty nested statement object so it
// evaluates as inconclusive instead of vanishing from its parent.
func emptyStatement() types.Statement {
	return &types.Unsupported{Kind: "EmptyStatement"}
}

func decodeChildren(r gjson.Result, depth int) ([]types.Statement, error) {
	if !r.IsArray() {
		return nil, fmt.Errorf("Statements must be a list, got %s", describe(r))
	}
	items := r.Array()
	children := make([]types.Statement, 0, len(items))
	for _, item := range items {
		child, err := decodeStatement(item, depth+1)
		if err != nil {
			return nil, err
		}
		if child == nil {
			child = emptyStatement()
		}
		children = append(children, child)
	}
	return children, nil
}

// decodeField converts FieldToMatch. Unknown selectors keep their name as
// the kind so evaluation can report them as inconclusive.
func decodeField(r gjson.Result) types.FieldToMatch {
	kind, body, ok := firstMember(r)
	if !ok {
		return types.FieldToMatch{Kind: types.FieldUnspecified}
	}
	field := types.FieldToMatch{Kind: types.FieldKind(kind)}
	switch field.Kind {
	case types.FieldSingleQueryArgument, types.FieldSingleHeader:
		field.Name = body.Get("Name").String()
	}
	return field
}

// decodeTransforms converts TextTransformations and orders them by priority.
func decodeTransforms(r gjson.Result) ([]types.TextTransformation, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	if !r.IsArray() {
		return nil, fmt.Errorf("TextTransformations must be a list, got %s", describe(r))
	}
	var out []types.TextTransformation
	for _, t := range r.Array() {
		out = append(out, types.TextTransformation{
			Priority: int(t.Get("Priority").Int()),
			Type:     types.TransformType(t.Get("Type").String()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}

// actionKeys maps document action names to kinds, in precedence order.
var actionKeys = []struct {
	key  string
	kind types.ActionKind
}{
	{"Block", types.ActionBlock},
	{"Allow", types.ActionAllow},
	{"Count", types.ActionCount},
	{"CAPTCHA", types.ActionCaptcha},
	{"Captcha", types.ActionCaptcha},
	{"Challenge", types.ActionChallenge},
}

// decodeAction converts an Action object. An empty object decodes to nil.
func decodeAction(r gjson.Result) (*types.Action, error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("action must be an object, got %s", describe(r))
	}
	for _, ak := range actionKeys {
		body := r.Get(ak.key)
		if !body.Exists() {
			continue
		}
		action := &types.Action{Kind: ak.kind}
		if ak.kind == types.ActionCount {
			for _, h := range body.Get("CustomRequestHandling.InsertHeaders").Array() {
				action.InsertHeaders = append(action.InsertHeaders, types.Header{
					Name:  h.Get("Name").String(),
					Value: h.Get("Value").String(),
				})
			}
		}
		return action, nil
	}

	kind, _, ok := firstMember(r)
	if !ok {
		return nil, nil
	}
	return &types.Action{Kind: types.ActionKind(kind)}, nil
}

// firstMember returns the first key/value of an object in document order.
func firstMember(r gjson.Result) (string, gjson.Result, bool) {
	if !r.IsObject() {
		return "", gjson.Result{}, false
	}
	var (
		key   string
		value gjson.Result
		found bool
	)
	r.ForEach(func(k, v gjson.Result) bool {
		key, value, found = k.String(), v, true
		return false
	})
	return key, value, found
}
