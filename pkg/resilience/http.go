package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx response from a remote collaborator.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Body)
}

// CheckResponse returns nil for a 2xx response. Otherwise it drains and
// closes the body and returns a RateLimitError for 429 or a StatusError.
func CheckResponse(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	body := strings.TrimSpace(string(raw))
	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimitError{
			Provider:   service,
			Message:    body,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return StatusError{Service: service, Status: resp.StatusCode, Body: body}
}

// ParseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past
// values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// Transient reports whether err is worth another attempt: rate limits, 5xx
// responses and transport failures. Cancellation and 4xx are not.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRateLimit(err) {
		return true
	}
	var se StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	return true
}
