// internal/rules/regex.go
package rules

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/solatis/wafscope/internal/types"
)

/*
 * Regex match support.
 *
 * Patterns use regexp2 (backtracking, PCRE-like syntax with lookaround) since
 * WAF regex statements are written in that dialect and RE2 rejects a share of
 * real-world patterns. Backtracking is bounded per match by MatchTimeout.
 *
 * Compiled patterns are cached in a fixed-size LRU keyed by pattern text.
 * Compile failures are cached too so a broken pattern in a hot rule costs
 * one compile attempt, not one per request.
 *
 * Matching is unanchored: a match anywhere in the value counts.
 */

const (
	// DefaultRegexCacheSize bounds compiled patterns held by one Engine.
	DefaultRegexCacheSize = 512

	// DefaultRegexTimeout bounds a single pattern match.
	DefaultRegexTimeout = 100 * time.Millisecond
)

type compiledPattern struct {
	re  *regexp2.Regexp
	err error
}

type regexCache struct {
	cache   *lru.Cache[string, compiledPattern]
	timeout time.Duration
}

func newRegexCache(size int, timeout time.Duration) (*regexCache, error) {
	if size <= 0 {
		size = DefaultRegexCacheSize
	}
	cache, err := lru.New[string, compiledPattern](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &regexCache{cache: cache, timeout: timeout}, nil
}

func (c *regexCache) compile(pattern string) (*regexp2.Regexp, error) {
	if entry, ok := c.cache.Get(pattern); ok {
		return entry.re, entry.err
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		err = fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
		re = nil
	} else if c.timeout > 0 {
		re.MatchTimeout = c.timeout
	}
	c.cache.Add(pattern, compiledPattern{re: re, err: err})
	return re, err
}

// match reports whether pattern occurs anywhere in value.
// A timeout is reported as ErrInvalidPattern.
func (c *regexCache) match(pattern, value string) (bool, error) {
	re, err := c.compile(pattern)
	if err != nil {
		return false, err
	}
	ok, err := re.MatchString(value)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrInvalidPattern, err)
	}
	return ok, nil
}
