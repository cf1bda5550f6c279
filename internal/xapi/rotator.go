// Package xapi implements the Twitter/X v2 ingestion client: a bearer token
// rotation pool, a rate-limit aware HTTP client for the recent-search
// endpoint, and the append-only request audit trail.
package xapi

import (
	"errors"
	"log/slog"
	"time"
)

// Rotator manages an ordered pool of bearer credentials and advances through
// them when rate limits are hit. The current index and tried set are owned
// exclusively by the fetch call path; callers running concurrently must
// serialize access themselves.
type Rotator struct {
	tokens     []string
	current    int
	tried      map[int]struct{}
	rateLimits map[int]time.Time
	logger     *slog.Logger
}

// RotatorStatus is a read-only snapshot of the rotator state.
type RotatorStatus struct {
	TotalTokens  int
	CurrentIndex int
	TokensTried  int
	RateLimits   map[int]time.Time
}

// NewRotator builds a rotator over the given credential pool. Tokens are
// interchangeable and unique by position only; duplicate values are
// tolerated. An empty pool is a configuration error.
func NewRotator(tokens []string, logger *slog.Logger) (*Rotator, error) {
	if len(tokens) == 0 {
		return nil, errors.New("no bearer tokens provided")
	}
	logger.Info("token rotator initialized", "tokens", len(tokens))
	return &Rotator{
		tokens:     tokens,
		tried:      make(map[int]struct{}),
		rateLimits: make(map[int]time.Time),
		logger:     logger,
	}, nil
}

// Current returns the active credential without side effects.
func (r *Rotator) Current() string {
	return r.tokens[r.current]
}

// Rotate marks the active credential as tried and advances to the next one
// in cyclic order. It returns false without mutating the position when the
// pool has a single credential or every credential has already been tried
// this cycle; repeated calls after exhaustion keep returning false.
func (r *Rotator) Rotate() bool {
	if len(r.tokens) == 1 {
		r.logger.Warn("only one token available, cannot rotate")
		r.tried[0] = struct{}{}
		return false
	}

	r.tried[r.current] = struct{}{}

	if len(r.tried) >= len(r.tokens) {
		r.logger.Error("all tokens have been tried and are rate limited", "tokens", len(r.tokens))
		return false
	}

	old := r.current
	r.current = (r.current + 1) % len(r.tokens)
	r.logger.Info("rotated bearer token",
		"from", old,
		"to", r.current,
		"tried", len(r.tried),
		"total", len(r.tokens),
	)
	return true
}

// RecordRateLimit stores or overwrites the reset time for the active credential.
func (r *Rotator) RecordRateLimit(reset time.Time) {
	r.rateLimits[r.current] = reset
	r.logger.Info("token rate limited", "token", r.current, "reset", reset)
}

// Status returns an observability snapshot. The rate limit map is a copy.
func (r *Rotator) Status() RotatorStatus {
	limits := make(map[int]time.Time, len(r.rateLimits))
	for k, v := range r.rateLimits {
		limits[k] = v
	}
	return RotatorStatus{
		TotalTokens:  len(r.tokens),
		CurrentIndex: r.current,
		TokensTried:  len(r.tried),
		RateLimits:   limits,
	}
}
