// Package ratelimit tracks the upstream request quota advertised in
// X-Ratelimit-* response headers and gates outgoing requests on it.
// State lives in Redis so every client process sharing an upstream sees
// the same budget.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response headers carrying the quota.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderReset     = "X-Ratelimit-Reset"
)

// RedisKey is the hash holding the shared quota state.
const RedisKey = "posts:rate_limit:state"

// Hash fields of RedisKey.
const (
	fieldRemaining  = "remaining"
	fieldLimit      = "limit"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Thresholds decide when requests are throttled or blocked.
type Thresholds struct {
	// Critical blocks all requests while remaining falls below it.
	Critical int

	// Warning throttles requests while remaining falls below it.
	Warning int

	// Healthy marks the state healthy at or above it.
	Healthy int
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: 5,
		Warning:  20,
		Healthy:  50,
	}
}

// RateLimitState is the last quota observed from the upstream.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the window size, 0 when the upstream does not send it.
	Limit int `json:"limit"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// WindowOpen reports whether the observed window is still running.
func (s *RateLimitState) WindowOpen() bool {
	return time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests must be blocked.
// A window that already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock(th Thresholds) bool {
	return s.WindowOpen() && s.Remaining < th.Critical
}

// NeedsThrottling returns true if requests should be delayed.
func (s *RateLimitState) NeedsThrottling(th Thresholds) bool {
	return s.WindowOpen() && s.Remaining < th.Warning && !s.NeedsCriticalBlock(th)
}

// IsHealthy returns true when the budget is at or above the healthy threshold
// or the window has reset.
func (s *RateLimitState) IsHealthy(th Thresholds) bool {
	return !s.WindowOpen() || s.Remaining >= th.Healthy
}

// ParseHeaders reads the quota headers of a response.
// It returns ok=false when the upstream sent no X-Ratelimit-Remaining.
// X-Ratelimit-Reset is a unix timestamp; small values are treated as
// seconds from now for upstreams that send a delta.
func ParseHeaders(headers http.Header, now time.Time) (state *RateLimitState, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}

	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	var resetAt time.Time
	if reset < deltaCutoff {
		resetAt = now.Add(time.Duration(reset) * time.Second)
	} else {
		resetAt = time.Unix(reset, 0)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	return &RateLimitState{
		Remaining:  remain,
		Limit:      limit,
		ResetAt:    resetAt,
		LastUpdate: now,
	}, true, nil
}

// deltaCutoff separates reset deltas from unix timestamps (2001-09-09).
const deltaCutoff = 1_000_000_000
