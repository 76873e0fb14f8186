// internal/rules/transform.go
package rules

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Text transformations applied to a field value before matching.
 *
 * Transformations run in ascending priority order (the decoder sorts them;
 * applyTransforms trusts that order). Each is a pure string -> string step.
 *
 * Decoding steps are lenient: input that does not decode (bad percent
 * escape, invalid base64) passes through unchanged, the same way a WAF
 * inspects the raw bytes when normalization fails.
 *
 * Unknown transformation types are an error (ErrUnsupportedTransform) and
 * make the enclosing match inconclusive.
 */

// applyTransforms runs transforms over value in order.
func applyTransforms(value string, transforms []types.TextTransformation) (string, error) {
	for _, t := range transforms {
		next, err := transform(value, t.Type)
		if err != nil {
			return "", err
		}
		value = next
	}
	return value, nil
}

func transform(value string, kind types.TransformType) (string, error) {
	switch kind {
	case types.TransformNone, "":
		return value, nil
	case types.TransformLowercase:
		return strings.ToLower(value), nil
	case types.TransformUppercase:
		return strings.ToUpper(value), nil
	case types.TransformURLDecode:
		return urlDecode(value), nil
	case types.TransformCompressWhiteSpace:
		return compressWhiteSpace(value), nil
	case types.TransformHTMLEntityDecode:
		return html.UnescapeString(value), nil
	case types.TransformBase64Decode:
		return base64Decode(value), nil
	case types.TransformCmdLine:
		return cmdLine(value), nil
	default:
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedTransform, kind)
	}
}

func urlDecode(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

func base64Decode(value string) string {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(value); err == nil {
			return string(decoded)
		}
	}
	return value
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// compressWhiteSpace collapses every whitespace run into one space.
// Leading and trailing runs are kept (as one space each).
func compressWhiteSpace(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	inSpace := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isSpace(c) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteByte(c)
	}
	return b.String()
}

// cmdLine normalizes obfuscated shell input:
// drop \ " ' ^, drop spaces before / and (, turn , and ; into spaces,
// compress whitespace, lowercase.
func cmdLine(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\', '"', '\'', '^':
		case ',', ';':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	s := compressWhiteSpace(b.String())
	s = strings.ReplaceAll(s, " /", "/")
	s = strings.ReplaceAll(s, " (", "(")
	return strings.ToLower(s)
}
