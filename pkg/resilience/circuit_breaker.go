package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// RateLimitError is a 429 from a provider, or a call refused by an open
// breaker. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limited"
	}
	if e.Provider == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// CircuitBreaker opens after threshold consecutive rate limits and stays open
// for the cooldown, or for the provider's Retry-After when that is longer.
// Other errors neither trip nor reset it.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
	tripped   bool
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may go out, and otherwise how long until it may.
func (c *CircuitBreaker) Allow() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wait := c.openUntil.Sub(c.now())
	if wait > 0 {
		return false, wait
	}
	return true, 0
}

// OnSuccess resets the failure count. It reports true when the breaker had
// tripped since the last success.
func (c *CircuitBreaker) OnSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	recovered := c.tripped
	c.failures = 0
	c.tripped = false
	c.openUntil = time.Time{}
	return recovered
}

// OnError counts rate limits. It reports true when this error opened the
// breaker.
func (c *CircuitBreaker) OnError(err error) bool {
	var rl RateLimitError
	if !errors.As(err, &rl) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures < c.threshold {
		return false
	}
	hold := c.cooldown
	if rl.RetryAfter > hold {
		hold = rl.RetryAfter
	}
	c.openUntil = c.now().Add(hold)
	c.failures = 0
	c.tripped = true
	return true
}
