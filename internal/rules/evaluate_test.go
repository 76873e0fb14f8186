// internal/rules/evaluate_test.go
package rules

import (
	"reflect"
	"strings"
	"testing"

	"github.com/solatis/wafscope/internal/ruleset"
	"github.com/solatis/wafscope/internal/types"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v, want nil", err)
	}
	return e
}

func testRequest() *types.Request {
	req := types.NewRequest("GET", "/admin/login", "user=Alice&debug=1", map[string]string{
		"User-Agent": "curl/8.0",
		"ja3":        "771,4865-4866,0-23",
	})
	return &req
}

func byteMatch(kind types.FieldKind, name, search string, c types.Constraint) *types.ByteMatch {
	return &types.ByteMatch{
		Field:        types.FieldToMatch{Kind: kind, Name: name},
		SearchString: search,
		Constraint:   c,
	}
}

func TestEvaluate_ByteMatch(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	tests := []struct {
		name string
		stmt *types.ByteMatch
		want bool
	}{
		{"uri exactly", byteMatch(types.FieldURIPath, "", "/admin/login", types.ConstraintExactly), true},
		{"uri exactly excludes query", byteMatch(types.FieldURIPath, "", "/admin/login?x", types.ConstraintExactly), false},
		{"uri starts with", byteMatch(types.FieldURIPath, "", "/admin", types.ConstraintStartsWith), true},
		{"uri ends with", byteMatch(types.FieldURIPath, "", "login", types.ConstraintEndsWith), true},
		{"uri contains", byteMatch(types.FieldURIPath, "", "min/lo", types.ConstraintContains), true},
		{"uri contains miss", byteMatch(types.FieldURIPath, "", "wp-admin", types.ConstraintContains), false},
		{"single arg", byteMatch(types.FieldSingleQueryArgument, "user", "Alice", types.ConstraintExactly), true},
		{"single arg name case-insensitive", byteMatch(types.FieldSingleQueryArgument, "USER", "Alice", types.ConstraintExactly), true},
		{"single arg absent", byteMatch(types.FieldSingleQueryArgument, "missing", "Alice", types.ConstraintExactly), false},
		{"all args any value", byteMatch(types.FieldAllQueryArguments, "", "1", types.ConstraintExactly), true},
		{"header", byteMatch(types.FieldSingleHeader, "user-agent", "curl/", types.ConstraintStartsWith), true},
		{"header name case-insensitive", byteMatch(types.FieldSingleHeader, "USER-AGENT", "curl/", types.ConstraintStartsWith), true},
		{"ja3 header fallback", byteMatch(types.FieldJA3Fingerprint, "", "771,", types.ConstraintStartsWith), true},
		{"method", byteMatch(types.FieldMethod, "", "GET", types.ConstraintExactly), true},
		{"query string", byteMatch(types.FieldQueryString, "", "debug=1", types.ConstraintContains), true},
		{"empty search never matches", byteMatch(types.FieldURIPath, "", "", types.ConstraintContains), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Evaluate(req, tt.stmt, nil)
			if out.Matched != tt.want {
				t.Errorf("Matched = %v, want %v (detail %+v)", out.Matched, tt.want, out.Detail)
			}
			if out.Inconclusive {
				t.Errorf("Inconclusive = true, want false: %s", out.Detail.Reason)
			}
		})
	}
}

func TestEvaluate_JA3PrefersRequestField(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()
	req.JA3Fingerprint = "abc123"

	stmt := byteMatch(types.FieldJA3Fingerprint, "", "abc123", types.ConstraintExactly)
	if !e.Matches(req, stmt, nil) {
		t.Errorf("Matches() = false, want true for JA3Fingerprint field")
	}
}

func TestEvaluate_QueryFromURI(t *testing.T) {
	e := newTestEngine(t)
	req := types.NewRequest("GET", "/search?q=select+1", "", nil)

	stmt := byteMatch(types.FieldSingleQueryArgument, "q", "select 1", types.ConstraintExactly)
	if !e.Matches(&req, stmt, nil) {
		t.Errorf("Matches() = false, want true for query taken from URI")
	}
}

func TestEvaluate_Transformations(t *testing.T) {
	e := newTestEngine(t)
	req := types.NewRequest("GET", "/Path%20With%20SPACES", "", nil)

	stmt := &types.ByteMatch{
		Field:        types.FieldToMatch{Kind: types.FieldURIPath},
		SearchString: "/path with spaces",
		Constraint:   types.ConstraintExactly,
		Transformations: []types.TextTransformation{
			{Priority: 0, Type: types.TransformURLDecode},
			{Priority: 1, Type: types.TransformLowercase},
		},
	}

	out := e.Evaluate(&req, stmt, nil)
	if !out.Matched {
		t.Errorf("Matched = false, want true (detail %+v)", out.Detail)
	}
	if out.Detail.Value != "/path with spaces" {
		t.Errorf("Detail.Value = %q, want transformed value", out.Detail.Value)
	}
}

func TestEvaluate_RegexMatch(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	tests := []struct {
		name             string
		pattern          string
		want             bool
		wantInconclusive bool
	}{
		{"unanchored", "min/l", true, false},
		{"anchored miss", "^login", false, false},
		{"lookahead", `^/admin(?=/login)`, true, false},
		{"invalid pattern", "(unclosed", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := &types.RegexMatch{Field: types.FieldToMatch{Kind: types.FieldURIPath}, Pattern: tt.pattern}
			out := e.Evaluate(req, stmt, nil)
			if out.Matched != tt.want {
				t.Errorf("Matched = %v, want %v", out.Matched, tt.want)
			}
			if out.Inconclusive != tt.wantInconclusive {
				t.Errorf("Inconclusive = %v, want %v (%s)", out.Inconclusive, tt.wantInconclusive, out.Detail.Reason)
			}
		})
	}
}

func TestEvaluate_LabelMatch(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()
	stmt := &types.LabelMatch{Key: "bot:verified"}

	if e.Matches(req, stmt, nil) {
		t.Errorf("Matches() with no labels = true, want false")
	}
	if !e.Matches(req, stmt, NewLabelSet("bot:verified")) {
		t.Errorf("Matches() with label = false, want true")
	}
}

func TestEvaluate_Inconclusive(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	tests := []struct {
		name   string
		stmt   types.Statement
		reason string
	}{
		{"unknown field", byteMatch("Cookies", "", "x", types.ConstraintContains), "unsupported field selector"},
		{"missing field", byteMatch(types.FieldUnspecified, "", "x", types.ConstraintContains), "unsupported field selector"},
		{"unknown constraint", byteMatch(types.FieldURIPath, "", "x", "CONTAINS_WORD"), "unsupported statement"},
		{"unsupported statement", &types.Unsupported{Kind: "GeoMatchStatement"}, "GeoMatchStatement"},
		{"nil statement", nil, "missing statement"},
		{
			"unknown transform",
			&types.ByteMatch{
				Field:           types.FieldToMatch{Kind: types.FieldURIPath},
				SearchString:    "x",
				Constraint:      types.ConstraintContains,
				Transformations: []types.TextTransformation{{Type: "JS_DECODE"}},
			},
			"unsupported text transformation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Evaluate(req, tt.stmt, nil)
			if out.Matched {
				t.Errorf("Matched = true, want false")
			}
			if !out.Inconclusive {
				t.Errorf("Inconclusive = false, want true")
			}
			if !strings.Contains(out.Detail.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", out.Detail.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluate_Logic(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	yes := byteMatch(types.FieldMethod, "", "GET", types.ConstraintExactly)
	no := byteMatch(types.FieldMethod, "", "POST", types.ConstraintExactly)
	unknown := &types.Unsupported{Kind: "GeoMatchStatement"}

	tests := []struct {
		name             string
		stmt             types.Statement
		want             bool
		wantInconclusive bool
	}{
		{"and all true", &types.And{Children: []types.Statement{yes, yes}}, true, false},
		{"and one false", &types.And{Children: []types.Statement{yes, no}}, false, false},
		{"and empty", &types.And{}, false, false},
		{"and false beats unknown", &types.And{Children: []types.Statement{no, unknown}}, false, false},
		{"and true with unknown", &types.And{Children: []types.Statement{yes, unknown}}, false, true},
		{"or one true", &types.Or{Children: []types.Statement{no, yes}}, true, false},
		{"or none true", &types.Or{Children: []types.Statement{no, no}}, false, false},
		{"or true beats unknown", &types.Or{Children: []types.Statement{unknown, yes}}, true, false},
		{"or false with unknown", &types.Or{Children: []types.Statement{no, unknown}}, false, true},
		{"not false", &types.Not{Child: no}, true, false},
		{"not true", &types.Not{Child: yes}, false, false},
		{"not unknown fails closed", &types.Not{Child: unknown}, false, true},
		{"rate based without scope-down", &types.RateBased{Limit: 10}, true, false},
		{"rate based delegates", &types.RateBased{ScopeDown: no}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Evaluate(req, tt.stmt, nil)
			if out.Matched != tt.want {
				t.Errorf("Matched = %v, want %v", out.Matched, tt.want)
			}
			if out.Inconclusive != tt.wantInconclusive {
				t.Errorf("Inconclusive = %v, want %v", out.Inconclusive, tt.wantInconclusive)
			}
		})
	}
}

func TestEvaluate_EmptyNestedStatement(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	tests := []struct {
		name             string
		statement        string
		want             bool
		wantInconclusive bool
	}{
		{"and of empty", `{"AndStatement": {"Statements": [{}]}}`, false, true},
		{"or of empty and miss", `{"OrStatement": {"Statements": [{}, {"LabelMatchStatement": {"Key": "x"}}]}}`, false, true},
		{"or of empty and hit", `{"OrStatement": {"Statements": [{}, {"ByteMatchStatement": {"SearchString": "GET", "FieldToMatch": {"Method": {}}, "PositionalConstraint": "EXACTLY"}}]}}`, true, false},
		{"not of empty", `{"NotStatement": {"Statement": {}}}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `[{"Name": "r", "Priority": 1, "Statement": ` + tt.statement + `, "Action": {"Block": {}}}]`
			decoded, err := ruleset.Decode([]byte(doc))
			if err != nil {
				t.Fatalf("Decode() error = %v, want nil", err)
			}
			out := e.Evaluate(req, decoded.Rules[0].Statement, nil)
			if out.Matched != tt.want {
				t.Errorf("Matched = %v, want %v", out.Matched, tt.want)
			}
			if out.Inconclusive != tt.wantInconclusive {
				t.Errorf("Inconclusive = %v, want %v", out.Inconclusive, tt.wantInconclusive)
			}
		})
	}
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	no := byteMatch(types.FieldMethod, "", "POST", types.ConstraintExactly)
	stmt := &types.And{Children: []types.Statement{no, &types.LabelMatch{Key: "a"}, no}}

	out := e.Evaluate(req, stmt, nil)
	if len(out.Detail.Children) != 3 {
		t.Errorf("len(Detail.Children) = %v, want 3", len(out.Detail.Children))
	}
}

func TestEvaluate_DepthLimit(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	var stmt types.Statement = &types.LabelMatch{Key: "x"}
	for i := 0; i < types.MaxStatementDepth+10; i++ {
		stmt = &types.Not{Child: stmt}
	}

	out := e.Evaluate(req, stmt, NewLabelSet("x"))
	if out.Matched || !out.Inconclusive {
		t.Errorf("Evaluate() = {Matched:%v Inconclusive:%v}, want inconclusive non-match", out.Matched, out.Inconclusive)
	}
}

func TestMatchRule_SideEffects(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	count := types.Rule{
		Name:       "tag",
		Priority:   3,
		Statement:  always(),
		RuleLabels: []string{"a", "b"},
		Action: &types.Action{
			Kind:          types.ActionCount,
			InsertHeaders: []types.Header{{Name: "x-waf", Value: "tagged"}},
		},
	}

	result := e.MatchRule(req, &count, nil)
	if !result.Matched {
		t.Fatalf("Matched = false, want true")
	}
	want := &SideEffects{
		LabelsToAdd:  []string{"a", "b"},
		HeadersToAdd: []types.Header{{Name: "x-waf", Value: "tagged"}},
		ActionTaken:  types.ActionCount,
	}
	if !reflect.DeepEqual(result.SideEffects, want) {
		t.Errorf("SideEffects = %+v, want %+v", result.SideEffects, want)
	}
	if result.RuleName != "tag" || result.Priority != 3 {
		t.Errorf("RuleName/Priority = %v/%v, want tag/3", result.RuleName, result.Priority)
	}
}

func TestMatchRule_HeadersOnlyForCount(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	block := types.Rule{
		Name:      "block",
		Statement: always(),
		Action: &types.Action{
			Kind:          types.ActionBlock,
			InsertHeaders: []types.Header{{Name: "x-ignored", Value: "1"}},
		},
	}

	result := e.MatchRule(req, &block, nil)
	if len(result.SideEffects.HeadersToAdd) != 0 {
		t.Errorf("HeadersToAdd = %v, want none for Block", result.SideEffects.HeadersToAdd)
	}
}

func TestMatchRule_NoMatchNoSideEffects(t *testing.T) {
	e := newTestEngine(t)
	req := testRequest()

	rule := labelRule("r", 1, &types.LabelMatch{Key: "absent"}, types.ActionCount, "x")
	if result := e.MatchRule(req, &rule, nil); result.SideEffects != nil {
		t.Errorf("SideEffects = %+v, want nil", result.SideEffects)
	}
}

func TestEvaluateAll_LabelDependency(t *testing.T) {
	e := newTestEngine(t)
	a := labelRule("A", 1, always(), types.ActionCount, "bot:verified")
	b := labelRule("B", 2, &types.LabelMatch{Key: "bot:verified"}, types.ActionBlock)

	report, err := e.EvaluateAll(testRequest(), []types.Rule{b, a}, EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v, want nil", err)
	}

	if len(report.MatchedRules) != 2 {
		t.Fatalf("len(MatchedRules) = %v, want 2", len(report.MatchedRules))
	}
	if report.MatchedRules[0].Rule.Name != "A" || report.MatchedRules[1].Rule.Name != "B" {
		t.Errorf("MatchedRules order = [%s %s], want [A B]", report.MatchedRules[0].Rule.Name, report.MatchedRules[1].Rule.Name)
	}
	if !reflect.DeepEqual(report.LabelsGenerated, []string{"bot:verified"}) {
		t.Errorf("LabelsGenerated = %v, want [bot:verified]", report.LabelsGenerated)
	}
	if report.Evaluated != 2 || report.HaltedBy != nil {
		t.Errorf("Evaluated/HaltedBy = %v/%v, want 2/nil", report.Evaluated, report.HaltedBy)
	}
}

func TestEvaluateAll_HaltOnTerminal(t *testing.T) {
	e := newTestEngine(t)
	rules := []types.Rule{
		labelRule("count", 1, always(), types.ActionCount),
		labelRule("block", 2, always(), types.ActionBlock),
		labelRule("after", 3, always(), types.ActionCount),
	}

	diag, err := e.EvaluateAll(testRequest(), rules, EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v, want nil", err)
	}
	if len(diag.MatchedRules) != 3 {
		t.Errorf("diagnostic len(MatchedRules) = %v, want 3", len(diag.MatchedRules))
	}

	halted, err := e.EvaluateAll(testRequest(), rules, EvaluateOptions{HaltOnTerminal: true})
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v, want nil", err)
	}
	if len(halted.MatchedRules) != 2 {
		t.Errorf("halted len(MatchedRules) = %v, want 2", len(halted.MatchedRules))
	}
	if halted.HaltedBy == nil || *halted.HaltedBy != 1 {
		t.Errorf("HaltedBy = %v, want 1", halted.HaltedBy)
	}
	if halted.Evaluated != 2 {
		t.Errorf("Evaluated = %v, want 2", halted.Evaluated)
	}
}

func TestEvaluateAll_ReportsInconclusive(t *testing.T) {
	e := newTestEngine(t)
	rules := []types.Rule{
		labelRule("geo", 1, &types.Unsupported{Kind: "GeoMatchStatement"}, types.ActionBlock),
	}

	report, err := e.EvaluateAll(testRequest(), rules, EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v, want nil", err)
	}
	if !reflect.DeepEqual(report.Inconclusive, []int{0}) {
		t.Errorf("Inconclusive = %v, want [0]", report.Inconclusive)
	}
	if len(report.MatchedRules) != 0 {
		t.Errorf("MatchedRules = %v, want none", report.MatchedRules)
	}
}

type recordingTracer struct {
	rules  []int
	events []string
}

func (r *recordingTracer) RuleEvaluated(index int, _ MatchResult) {
	r.rules = append(r.rules, index)
}

func (r *recordingTracer) SessionEvent(event string, _ int) {
	r.events = append(r.events, event)
}

func TestEvaluateAll_Tracer(t *testing.T) {
	tracer := &recordingTracer{}
	e := newTestEngine(t, WithTracer(tracer))
	rules := []types.Rule{
		labelRule("b", 2, always(), types.ActionCount),
		labelRule("a", 1, always(), types.ActionCount),
	}

	if _, err := e.EvaluateAll(testRequest(), rules, EvaluateOptions{}); err != nil {
		t.Fatalf("EvaluateAll() error = %v, want nil", err)
	}
	if !reflect.DeepEqual(tracer.rules, []int{0, 1}) {
		t.Errorf("traced rules = %v, want [0 1]", tracer.rules)
	}
}
