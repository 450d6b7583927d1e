package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/providers/mock"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerDeniesAfterRepeatedRateLimits(t *testing.T) {
	inner := mock.NewLLMAdapter(mock.LLMConfig{Steps: []mock.Step{
		{Err: resilience.RateLimitError{Provider: "mock_llm"}},
		{Err: resilience.RateLimitError{Provider: "mock_llm"}},
		{Text: "never reached"},
	}})
	obs := metrics.NewMemoryObserver()
	a := llm.NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(2, time.Minute))
	a.SetObserver(obs)

	for i := 0; i < 2; i++ {
		_, err := a.Chat(context.Background(), llm.Request{})
		require.Error(t, err)
	}
	_, err := a.Chat(context.Background(), llm.Request{})
	require.True(t, resilience.IsRateLimit(err))
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, inner.ChatCalls(), "open breaker does not reach the provider")

	_, err = a.Stream(context.Background(), llm.Request{})
	require.Error(t, err)

	assert.Equal(t, 2, obs.Count(metrics.EventRateLimit))
	assert.Equal(t, 1, obs.Count(metrics.EventBreakerOpen))
	assert.Equal(t, 2, obs.Count(metrics.EventBreakerDenied))
}

func TestBreakerPassesThroughOtherErrors(t *testing.T) {
	inner := mock.NewLLMAdapter(mock.LLMConfig{Steps: []mock.Step{{Text: "hi"}}})
	a := llm.NewCircuitBreakerAdapter(inner, nil)
	resp, err := a.Chat(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "hi", a.TextContent(resp))
}
