// internal/ruleset/load.go
package ruleset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/wafscope/internal/types"
)

// Format is the encoding of a rule-set or request document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks the format from the file extension; JSON by default.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ToJSON converts a document to JSON. JSON input is returned unchanged.
func ToJSON(data []byte, format Format) ([]byte, error) {
	if format == FormatJSON {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &types.InputShapeError{Index: -1, Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	out, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return nil, &types.InputShapeError{Index: -1, Reason: fmt.Sprintf("YAML not representable as JSON: %v", err)}
	}
	return out, nil
}

// jsonCompatible rewrites non-string map keys produced by YAML decoding.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = jsonCompatible(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = jsonCompatible(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = jsonCompatible(child)
		}
		return t
	default:
		return v
	}
}

// DecodeDocument decodes a rule-set document in the given format.
func DecodeDocument(data []byte, format Format) (*Decoded, error) {
	doc, err := ToJSON(data, format)
	if err != nil {
		return nil, err
	}
	return Decode(doc)
}

// LoadFile reads and decodes a rule-set file.
func LoadFile(path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set: %w", err)
	}
	return DecodeDocument(data, FormatFromPath(path))
}

// DecodeRequest decodes a request document.
func DecodeRequest(data []byte, format Format) (types.Request, error) {
	doc, err := ToJSON(data, format)
	if err != nil {
		return types.Request{}, err
	}
	var req types.Request
	if err := json.Unmarshal(doc, &req); err != nil {
		return types.Request{}, fmt.Errorf("invalid request: %w", err)
	}
	return req.Normalize(), nil
}

// LoadRequest reads and decodes a request file.
func LoadRequest(path string) (types.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Request{}, fmt.Errorf("failed to read request: %w", err)
	}
	return DecodeRequest(data, FormatFromPath(path))
}
