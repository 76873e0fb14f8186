// internal/rules/compile_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/solatis/wafscope/internal/types"
)

// labelRule builds a rule with a matching metric name so tests only see
// the warnings they set up.
func labelRule(name string, priority int, stmt types.Statement, action types.ActionKind, labels ...string) types.Rule {
	return types.Rule{
		Name:       name,
		Priority:   priority,
		Statement:  stmt,
		Action:     &types.Action{Kind: action},
		RuleLabels: labels,
		MetricName: name,
	}
}

// always matches any request (rate-based without scope-down).
func always() types.Statement {
	return &types.RateBased{Limit: 100}
}

func TestCompile_SortsByPriority(t *testing.T) {
	rules := []types.Rule{
		labelRule("c", 30, always(), types.ActionCount),
		labelRule("a", 10, always(), types.ActionCount),
		labelRule("b", 20, always(), types.ActionCount),
	}

	set, err := Compile(rules)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	want := []string{"a", "b", "c"}
	for i, name := range want {
		if got := set.Rule(i).Name; got != name {
			t.Errorf("Rule(%d).Name = %v, want %v", i, got, name)
		}
		if set.Rules[i].Index != i {
			t.Errorf("Rules[%d].Index = %v, want %v", i, set.Rules[i].Index, i)
		}
	}
	if set.Rules[0].InputIndex != 1 {
		t.Errorf("Rules[0].InputIndex = %v, want 1", set.Rules[0].InputIndex)
	}
}

func TestCompile_StableTies(t *testing.T) {
	rules := []types.Rule{
		labelRule("first", 5, always(), types.ActionCount),
		labelRule("low", 1, always(), types.ActionCount),
		labelRule("second", 5, always(), types.ActionCount),
	}

	set, err := Compile(rules)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	if set.Rule(1).Name != "first" || set.Rule(2).Name != "second" {
		t.Fatalf("tie order = [%s %s], want [first second]", set.Rule(1).Name, set.Rule(2).Name)
	}
	if set.Rules[1].TiedWith != -1 {
		t.Errorf("Rules[1].TiedWith = %v, want -1", set.Rules[1].TiedWith)
	}
	if set.Rules[2].TiedWith != 1 {
		t.Errorf("Rules[2].TiedWith = %v, want 1", set.Rules[2].TiedWith)
	}
	if got := len(set.lowerPriorityPrefix(2)); got != 1 {
		t.Errorf("len(lowerPriorityPrefix(2)) = %v, want 1", got)
	}
}

func TestCompile_CopiesInput(t *testing.T) {
	rules := []types.Rule{labelRule("a", 1, always(), types.ActionCount)}

	set, err := Compile(rules)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	rules[0].Name = "mutated"
	if set.Rule(0).Name != "a" {
		t.Errorf("Rule(0).Name = %v, want a", set.Rule(0).Name)
	}
}

func TestCompile_TooManyRules(t *testing.T) {
	rules := make([]types.Rule, types.MaxRules+1)

	_, err := Compile(rules)
	if !errors.Is(err, types.ErrTooManyRules) {
		t.Errorf("Compile() error = %v, want ErrTooManyRules", err)
	}
}

func TestCalculateCapacity(t *testing.T) {
	lower := []types.TextTransformation{{Priority: 0, Type: types.TransformLowercase}}
	none := []types.TextTransformation{{Priority: 0, Type: types.TransformNone}}

	tests := []struct {
		name string
		stmt types.Statement
		want int
	}{
		{"nil", nil, 0},
		{"byte match", &types.ByteMatch{}, 1},
		{"byte match NONE transform", &types.ByteMatch{Transformations: none}, 1},
		{"byte match with transform", &types.ByteMatch{Transformations: lower}, 11},
		{"regex", &types.RegexMatch{}, 3},
		{"regex with transform", &types.RegexMatch{Transformations: lower}, 13},
		{"label", &types.LabelMatch{Key: "x"}, 1},
		{"and sums", &types.And{Children: []types.Statement{&types.LabelMatch{}, &types.RegexMatch{}}}, 4},
		{"or sums", &types.Or{Children: []types.Statement{&types.ByteMatch{}, &types.ByteMatch{}}}, 2},
		{"not", &types.Not{Child: &types.RegexMatch{}}, 3},
		{"rate based", &types.RateBased{}, 2},
		{"rate based scope-down", &types.RateBased{ScopeDown: &types.LabelMatch{}}, 3},
		{"unsupported", &types.Unsupported{Kind: "GeoMatchStatement"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCapacity(tt.stmt); got != tt.want {
				t.Errorf("CalculateCapacity() = %v, want %v", got, tt.want)
			}
		})
	}
}
