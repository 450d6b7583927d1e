package llm

import (
	"context"
	"time"

	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/resilience"
)

// CircuitBreakerAdapter refuses model calls for a while after the provider
// keeps answering 429. Response interpretation is delegated untouched.
type CircuitBreakerAdapter struct {
	Adapter
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
}

func NewCircuitBreakerAdapter(inner Adapter, breaker *resilience.CircuitBreaker) *CircuitBreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerAdapter{Adapter: inner, breaker: breaker, obs: metrics.NoopObserver{}}
}

func (a *CircuitBreakerAdapter) SetObserver(obs metrics.Observer) {
	if obs != nil {
		a.obs = obs
	}
}

func (a *CircuitBreakerAdapter) Chat(ctx context.Context, req Request) (*Response, error) {
	return guarded(a, func() (*Response, error) { return a.Adapter.Chat(ctx, req) })
}

// Stream is guarded only while opening; errors inside the stream do not
// count against the breaker.
func (a *CircuitBreakerAdapter) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	return guarded(a, func() (<-chan Chunk, error) { return a.Adapter.Stream(ctx, req) })
}

func guarded[T any](a *CircuitBreakerAdapter, call func() (T, error)) (T, error) {
	var zero T
	if ok, wait := a.breaker.Allow(); !ok {
		a.record(metrics.EventBreakerDenied)
		return zero, resilience.RateLimitError{Provider: a.Name(), Message: "circuit open", RetryAfter: wait}
	}
	out, err := call()
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.record(metrics.EventRateLimit)
		}
		if a.breaker.OnError(err) {
			a.record(metrics.EventBreakerOpen)
		}
		return zero, err
	}
	if a.breaker.OnSuccess() {
		a.record(metrics.EventBreakerClose)
	}
	return out, nil
}

func (a *CircuitBreakerAdapter) record(name string) {
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: 1,
		Tags:  map[string]string{"provider": a.Adapter.Name(), "component": "llm"},
	})
}

var _ Adapter = (*CircuitBreakerAdapter)(nil)
