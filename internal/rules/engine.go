// internal/rules/engine.go
package rules

import (
	"log/slog"
	"time"
)

/*
 * Evaluation engine.
 *
 * Engine holds what evaluation needs beyond the rule set itself: the
 * compiled-regex cache and an optional Tracer. It is safe for concurrent use
 * by any number of sessions and EvaluateAll calls; all per-request state
 * lives in the caller (labels) or in a Session.
 *
 * Debug hooks are explicit: a Tracer is injected with WithTracer. There is
 * no package-level hook or logger state.
 */

// Tracer receives evaluation events. Implementations must be safe for
// concurrent use when the Engine is shared.
type Tracer interface {
	// RuleEvaluated is called after each rule is offered to a request.
	RuleEvaluated(index int, result MatchResult)

	// SessionEvent is called on session transitions (start, step, back, reset).
	SessionEvent(event string, position int)
}

type nopTracer struct{}

func (nopTracer) RuleEvaluated(int, MatchResult) {}
func (nopTracer) SessionEvent(string, int)       {}

// LogTracer writes evaluation events as debug records.
type LogTracer struct {
	Logger *slog.Logger
}

// RuleEvaluated implements Tracer.
func (t LogTracer) RuleEvaluated(index int, result MatchResult) {
	t.logger().Debug("rule evaluated",
		slog.Int("index", index),
		slog.String("rule", result.RuleName),
		slog.Int("priority", result.Priority),
		slog.Bool("matched", result.Matched),
		slog.Bool("inconclusive", result.Inconclusive),
	)
}

// SessionEvent implements Tracer.
func (t LogTracer) SessionEvent(event string, position int) {
	t.logger().Debug("session "+event, slog.Int("position", position))
}

func (t LogTracer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Engine evaluates statements and rules against requests.
type Engine struct {
	regexes *regexCache
	tracer  Tracer
}

type engineOptions struct {
	tracer         Tracer
	regexCacheSize int
	regexTimeout   time.Duration
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithTracer installs t to receive evaluation events.
func WithTracer(t Tracer) Option {
	return func(o *engineOptions) {
		o.tracer = t
	}
}

// WithRegexCacheSize sets how many compiled patterns are kept.
func WithRegexCacheSize(n int) Option {
	return func(o *engineOptions) {
		o.regexCacheSize = n
	}
}

// WithRegexTimeout bounds a single regex match. Zero disables the bound.
func WithRegexTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.regexTimeout = d
	}
}

// NewEngine creates an evaluation engine.
func NewEngine(opts ...Option) (*Engine, error) {
	o := engineOptions{
		tracer:         nopTracer{},
		regexCacheSize: DefaultRegexCacheSize,
		regexTimeout:   DefaultRegexTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = nopTracer{}
	}

	regexes, err := newRegexCache(o.regexCacheSize, o.regexTimeout)
	if err != nil {
		return nil, err
	}
	return &Engine{regexes: regexes, tracer: o.tracer}, nil
}
