// Package types provides domain models shared across wafscope components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the core (internal/rules) stays importable without
// pulling in transport or storage deps. ID utilities in ids.go import uuid
// but are isolated from the rule model.
//
// Separation from wire formats: rule-set documents (AWS WAF JSON/YAML) are
// decoded in internal/ruleset; API payloads are converted in internal/core/api.
// This package contains only the typed model those boundaries produce.
package types

import "strings"

// RuleSetID identifies a stored rule set (UUIDv7 string).
type RuleSetID string

// SessionID identifies a live evaluation session (UUIDv7 string).
type SessionID string

// WorkspaceID scopes rule sets and sessions to the API key that created them.
type WorkspaceID string

// Request is the synthetic HTTP request a rule set is evaluated against.
// Header names are stored lower-cased; use Header for lookups.
type Request struct {
	Method         string            `json:"method,omitempty"`
	URI            string            `json:"uri"`
	QueryString    string            `json:"queryString,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	JA3Fingerprint string            `json:"ja3Fingerprint,omitempty"`
}

// NewRequest builds a Request with normalized header names.
func NewRequest(method, uri, query string, headers map[string]string) Request {
	req := Request{
		Method:      method,
		URI:         uri,
		QueryString: query,
	}
	for name, value := range headers {
		req.SetHeader(name, value)
	}
	return req
}

// Header returns the value of the named header (case-insensitive).
func (r Request) Header(name string) (string, bool) {
	if r.Headers == nil {
		return "", false
	}
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// SetHeader stores a header under its lower-cased name.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(name)] = value
}

// Normalize lower-cases header names of a Request decoded from JSON.
func (r Request) Normalize() Request {
	out := r
	out.Headers = nil
	for name, value := range r.Headers {
		out.SetHeader(name, value)
	}
	return out
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Resource limits enforced by the core to keep evaluation bounded.
const (
	// MaxStatementDepth caps recursion through nested statements.
	// Exceeding it fails closed: evaluation is inconclusive, extraction stops.
	MaxStatementDepth = 64

	// MaxRules caps the number of rules accepted in one rule set.
	// Operator rule sets are typically well under a few thousand rules.
	MaxRules = 10000

	// MaxRequestFieldLength bounds a single extracted request field before matching.
	MaxRequestFieldLength = 64 * 1024
)

// InputWarning records a rule-set entry that was skipped while decoding.
type InputWarning struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}
