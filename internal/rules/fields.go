// internal/rules/fields.go
package rules

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Request field extraction.
 *
 * Resolves a FieldToMatch against a Request. Selectors return zero or more
 * candidate values: single-valued selectors return one, AllQueryArguments
 * returns every argument value in name order so match diagnostics are
 * stable across runs.
 *
 * Outcomes:
 *   - values found: one fieldValue per candidate
 *   - field absent: empty slice, nil error (definitive non-match)
 *   - unknown selector: ErrUnsupportedField (inconclusive)
 *
 * Query arguments come from Request.QueryString, or from the part of the URI
 * after '?' when QueryString is empty. Argument names compare
 * case-insensitively. Body reads Request.Body as text. JA3 reads Request.JA3Fingerprint and falls back to a
 * "ja3" header.
 *
 * Values longer than MaxRequestFieldLength are truncated before matching.
 */

// fieldValue is one candidate value with its diagnostic label.
type fieldValue struct {
	Label string
	Value string
}

// extractField returns the candidate values of field in req.
func extractField(req *types.Request, field types.FieldToMatch) ([]fieldValue, error) {
	switch field.Kind {
	case types.FieldURIPath:
		return single("UriPath", uriPath(req)), nil

	case types.FieldMethod:
		return single("Method", req.Method), nil

	case types.FieldQueryString:
		return single("QueryString", rawQuery(req)), nil

	case types.FieldSingleQueryArgument:
		var out []fieldValue
		for name, values := range queryArgs(req) {
			if !strings.EqualFold(name, field.Name) {
				continue
			}
			for _, v := range values {
				out = append(out, fieldValue{Label: "QueryParam:" + name, Value: truncate(v)})
			}
		}
		sortValues(out)
		return out, nil

	case types.FieldAllQueryArguments:
		var out []fieldValue
		for name, values := range queryArgs(req) {
			for _, v := range values {
				out = append(out, fieldValue{Label: "AllQueryArguments:" + name, Value: truncate(v)})
			}
		}
		sortValues(out)
		return out, nil

	case types.FieldSingleHeader:
		v, ok := req.Header(field.Name)
		if !ok {
			return nil, nil
		}
		return single("Header:"+strings.ToLower(field.Name), v), nil

	case types.FieldBody:
		return single("Body", req.Body), nil

	case types.FieldJA3Fingerprint:
		if req.JA3Fingerprint != "" {
			return single("JA3Fingerprint", req.JA3Fingerprint), nil
		}
		v, _ := req.Header("ja3")
		return single("JA3Fingerprint", v), nil

	default:
		if field.Kind == types.FieldUnspecified {
			return nil, fmt.Errorf("%w: no field to match", types.ErrUnsupportedField)
		}
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedField, field.Kind)
	}
}

// single wraps a scalar selector value; empty means absent.
func single(label, value string) []fieldValue {
	if value == "" {
		return nil
	}
	return []fieldValue{{Label: label, Value: truncate(value)}}
}

// uriPath returns the URI without its query component.
func uriPath(req *types.Request) string {
	if i := strings.IndexByte(req.URI, '?'); i >= 0 {
		return req.URI[:i]
	}
	return req.URI
}

// rawQuery returns the query component without the leading '?'.
func rawQuery(req *types.Request) string {
	if req.QueryString != "" {
		return strings.TrimPrefix(req.QueryString, "?")
	}
	if i := strings.IndexByte(req.URI, '?'); i >= 0 {
		return req.URI[i+1:]
	}
	return ""
}

// queryArgs parses the query component. Malformed pairs are dropped;
// url.ParseQuery keeps every well-formed pair even when it returns an error.
func queryArgs(req *types.Request) url.Values {
	values, _ := url.ParseQuery(rawQuery(req))
	return values
}

func sortValues(values []fieldValue) {
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].Label < values[j].Label
	})
}

func truncate(s string) string {
	if len(s) > types.MaxRequestFieldLength {
		return s[:types.MaxRequestFieldLength]
	}
	return s
}
