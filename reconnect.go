package slamon

import (
	"math"
	"time"
)

// NextDelay returns the backoff before reconnect attempt n (1-indexed):
// min(base * 2^(n-1), maxDelay).
func NextDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	delay := float64(base) * math.Pow(2, exp)
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}

// reconnector tracks the retry ceiling. It is not goroutine-safe; the owning
// Channel guards it with its mutex.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(config *ChannelConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

// next consumes one attempt. ok is false once the ceiling is reached.
func (r *reconnector) next() (attempt int, delay time.Duration, ok bool) {
	if r.attempt >= r.maxAttempts {
		return r.attempt, 0, false
	}
	r.attempt++
	return r.attempt, NextDelay(r.baseDelay, r.maxDelay, r.attempt), true
}

func (r *reconnector) reset() {
	r.attempt = 0
}
