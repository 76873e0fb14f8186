// Package ruleset decodes WAF rule-set documents into internal/types.
//
// Accepted document shapes: a bare JSON array of rules, or an object holding
// the array under Rules, WebACL.Rules, RuleGroup.Rules or LibRules (console
// exports and bundled rule libraries). Anything else is an InputShapeError.
//
// Failure tiers: a document that is not a list is fatal; an entry that is not
// an object is skipped with an InputWarning; an object whose fields have the
// wrong JSON types is fatal and names its index; absent required fields are
// reported through Rule.MissingFields and become graph warnings downstream.
package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/solatis/wafscope/internal/types"
)

// rulePaths are tried in order when the document root is an object.
var rulePaths = []string{"Rules", "WebACL.Rules", "RuleGroup.Rules", "LibRules"}

// Decoded is the result of decoding a rule-set document.
type Decoded struct {
	Rules   []types.Rule
	Skipped []types.InputWarning
}

// ruleRecord mirrors the fields of a WAF rule needed by the model.
type ruleRecord struct {
	Name             *string           `json:"Name" validate:"required"`
	Priority         *int              `json:"Priority" validate:"required"`
	Statement        json.RawMessage   `json:"Statement" validate:"required"`
	Action           json.RawMessage   `json:"Action" validate:"required"`
	RuleLabels       []labelRecord     `json:"RuleLabels"`
	VisibilityConfig *visibilityRecord `json:"VisibilityConfig"`
}

type labelRecord struct {
	Name string `json:"Name"`
}

type visibilityRecord struct {
	MetricName string `json:"MetricName"`
}

// Decode parses a rule-set document.
func Decode(data []byte) (*Decoded, error) {
	if !gjson.ValidBytes(data) {
		return nil, &types.InputShapeError{Index: -1, Reason: "document is not valid JSON"}
	}

	list, err := locateRules(gjson.ParseBytes(data))
	if err != nil {
		return nil, err
	}

	entries := list.Array()
	if len(entries) > types.MaxRules {
		return nil, fmt.Errorf("%w: %d rules (max %d)", types.ErrTooManyRules, len(entries), types.MaxRules)
	}

	validate := validator.New()
	out := &Decoded{Rules: make([]types.Rule, 0, len(entries))}

	for i, entry := range entries {
		if !entry.IsObject() {
			out.Skipped = append(out.Skipped, types.InputWarning{
				Index:   i,
				Message: fmt.Sprintf("entry %d is not an object (%s), skipped", i, describe(entry)),
			})
			continue
		}

		rule, err := decodeRule(validate, entry)
		if err != nil {
			if errors.Is(err, types.ErrStatementTooDeep) {
				out.Skipped = append(out.Skipped, types.InputWarning{
					Index:   i,
					Message: fmt.Sprintf("entry %d: %v, skipped", i, err),
				})
				continue
			}
			return nil, &types.InputShapeError{Index: i, Reason: err.Error()}
		}
		out.Rules = append(out.Rules, rule)
	}

	return out, nil
}

// locateRules finds the rule array in a parsed document.
func locateRules(root gjson.Result) (gjson.Result, error) {
	if root.IsArray() {
		return root, nil
	}
	if root.IsObject() {
		for _, path := range rulePaths {
			if r := root.Get(path); r.IsArray() {
				return r, nil
			}
		}
		return gjson.Result{}, &types.InputShapeError{Index: -1, Reason: "object has no Rules list"}
	}
	return gjson.Result{}, &types.InputShapeError{Index: -1, Reason: fmt.Sprintf("expected a list, got %s", describe(root))}
}

// decodeRule converts one rule object.
func decodeRule(validate *validator.Validate, entry gjson.Result) (types.Rule, error) {
	var rec ruleRecord
	if err := json.Unmarshal([]byte(entry.Raw), &rec); err != nil {
		return types.Rule{}, err
	}
	rec.Statement = dropNull(rec.Statement)
	rec.Action = dropNull(rec.Action)

	var rule types.Rule
	if err := validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return types.Rule{}, err
		}
		for _, fe := range verrs {
			rule.MissingFields = append(rule.MissingFields, fe.Field())
		}
	}

	if rec.Name != nil {
		rule.Name = *rec.Name
	}
	if rec.Priority != nil {
		rule.Priority = *rec.Priority
	}
	if rec.VisibilityConfig != nil {
		rule.MetricName = rec.VisibilityConfig.MetricName
	}
	for _, l := range rec.RuleLabels {
		if l.Name != "" {
			rule.RuleLabels = append(rule.RuleLabels, l.Name)
		}
	}

	if len(rec.Statement) > 0 {
		stmt, err := decodeStatement(gjson.ParseBytes(rec.Statement), 1)
		if err != nil {
			return types.Rule{}, fmt.Errorf("Statement: %w", err)
		}
		rule.Statement = stmt
	}
	if len(rec.Action) > 0 {
		action, err := decodeAction(gjson.ParseBytes(rec.Action))
		if err != nil {
			return types.Rule{}, fmt.Errorf("Action: %w", err)
		}
		rule.Action = action
	}

	return rule, nil
}

func dropNull(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// describe names the JSON type of r for messages.
func describe(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	case r.Type == gjson.String:
		return "string"
	case r.Type == gjson.Number:
		return "number"
	case r.Type == gjson.True, r.Type == gjson.False:
		return "boolean"
	default:
		return "null"
	}
}
