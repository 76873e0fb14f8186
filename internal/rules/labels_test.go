package rules

import (
	"reflect"
	"testing"

	"github.com/solatis/wafscope/internal/types"
)

func TestExtractLabelKeys(t *testing.T) {
	tests := []struct {
		name string
		stmt types.Statement
		want []string
	}{
		{"nil", nil, nil},
		{"label", &types.LabelMatch{Key: "a"}, []string{"a"}},
		{"byte match", &types.ByteMatch{SearchString: "x"}, nil},
		{
			"and in child order",
			&types.And{Children: []types.Statement{
				&types.LabelMatch{Key: "b"},
				&types.ByteMatch{},
				&types.LabelMatch{Key: "a"},
			}},
			[]string{"b", "a"},
		},
		{
			"duplicates preserved",
			&types.Or{Children: []types.Statement{
				&types.LabelMatch{Key: "a"},
				&types.LabelMatch{Key: "a"},
			}},
			[]string{"a", "a"},
		},
		{"not", &types.Not{Child: &types.LabelMatch{Key: "n"}}, []string{"n"}},
		{"rate based scope-down", &types.RateBased{ScopeDown: &types.LabelMatch{Key: "r"}}, []string{"r"}},
		{"rate based without scope-down", &types.RateBased{}, nil},
		{"unsupported", &types.Unsupported{Kind: "GeoMatchStatement"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLabelKeys(tt.stmt)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLabelKeys() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractLabelKeys_StopsAtMaxDepth(t *testing.T) {
	var stmt types.Statement = &types.LabelMatch{Key: "deep"}
	for i := 0; i < types.MaxStatementDepth; i++ {
		stmt = &types.Not{Child: stmt}
	}

	if got := ExtractLabelKeys(stmt); len(got) != 0 {
		t.Errorf("ExtractLabelKeys() = %v, want none below max depth", got)
	}
	if got := StatementDepth(stmt); got <= types.MaxStatementDepth {
		t.Errorf("StatementDepth() = %v, want > %v", got, types.MaxStatementDepth)
	}
}

func TestStatementDepth(t *testing.T) {
	tests := []struct {
		name string
		stmt types.Statement
		want int
	}{
		{"nil", nil, 0},
		{"leaf", &types.LabelMatch{}, 1},
		{"not", &types.Not{Child: &types.LabelMatch{}}, 2},
		{
			"deepest branch",
			&types.And{Children: []types.Statement{
				&types.LabelMatch{},
				&types.Or{Children: []types.Statement{&types.Not{Child: &types.ByteMatch{}}}},
			}},
			4,
		},
		{"rate based without scope-down", &types.RateBased{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatementDepth(tt.stmt); got != tt.want {
				t.Errorf("StatementDepth() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabelSet(t *testing.T) {
	set := NewLabelSet("b")
	set.Add("a")
	set.Add("b")

	if !set.Has("a") || !set.Has("b") {
		t.Errorf("Has() = false for added label")
	}
	if set.Has("c") {
		t.Errorf("Has(c) = true, want false")
	}
	if got := set.Sorted(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Sorted() = %v, want [a b]", got)
	}

	var empty LabelSet
	if empty.Has("a") {
		t.Errorf("nil LabelSet Has(a) = true, want false")
	}
}
