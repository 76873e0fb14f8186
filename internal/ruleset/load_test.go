package ruleset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solatis/wafscope/internal/types"
)

const yamlRules = `
Rules:
  - Name: tag
    Priority: 1
    Statement:
      ByteMatchStatement:
        SearchString: /admin
        FieldToMatch:
          UriPath: {}
        PositionalConstraint: STARTS_WITH
    Action:
      Count: {}
    RuleLabels:
      - Name: admin
    VisibilityConfig:
      MetricName: tag
`

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"rules.json", FormatJSON},
		{"rules.yaml", FormatYAML},
		{"RULES.YML", FormatYAML},
		{"rules", FormatJSON},
	}

	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDecodeDocument_YAML(t *testing.T) {
	decoded, err := DecodeDocument([]byte(yamlRules), FormatYAML)
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v, want nil", err)
	}
	if len(decoded.Rules) != 1 {
		t.Fatalf("len(Rules) = %v, want 1", len(decoded.Rules))
	}
	bm, ok := decoded.Rules[0].Statement.(*types.ByteMatch)
	if !ok {
		t.Fatalf("Statement = %T, want *types.ByteMatch", decoded.Rules[0].Statement)
	}
	if bm.Field.Kind != types.FieldURIPath || bm.Constraint != types.ConstraintStartsWith {
		t.Errorf("ByteMatch = %+v, want UriPath STARTS_WITH", bm)
	}
}

func TestDecodeDocument_InvalidYAML(t *testing.T) {
	_, err := DecodeDocument([]byte("Rules: [unclosed"), FormatYAML)

	var shapeErr *types.InputShapeError
	if !errors.As(err, &shapeErr) {
		t.Errorf("DecodeDocument() error = %v, want InputShapeError", err)
	}
}

func TestLoadRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.yaml")
	content := "method: GET\nuri: /admin\nqueryString: a=1\nheaders:\n  User-Agent: curl/8\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	req, err := LoadRequest(path)
	if err != nil {
		t.Fatalf("LoadRequest() error = %v, want nil", err)
	}
	if req.Method != "GET" || req.URI != "/admin" || req.QueryString != "a=1" {
		t.Errorf("LoadRequest() = %+v, want GET /admin a=1", req)
	}
	if v, ok := req.Header("user-agent"); !ok || v != "curl/8" {
		t.Errorf("Header(user-agent) = %q, %v, want curl/8, true", v, ok)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Errorf("LoadFile() error = nil, want read error")
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded := make(chan *Decoded, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(d *Decoded, err error) {
		if err != nil {
			return
		}
		select {
		case loaded <- d:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	doc := `[{"Name": "r", "Priority": 1, "Statement": {"LabelMatchStatement": {"Key": "k"}}, "Action": {"Block": {}}}]`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case d := <-loaded:
		if len(d.Rules) != 1 {
			t.Errorf("len(Rules) = %v, want 1", len(d.Rules))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload within 5s")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}
