package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/frontdesk/pkg/config"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/providers/anthropic"
	"github.com/harunnryd/frontdesk/pkg/providers/mock"
	"github.com/harunnryd/frontdesk/pkg/providers/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildWrapsInBreakerByDefault(t *testing.T) {
	reg := NewRegistry(metrics.NewMemoryObserver())
	adapter, err := reg.BuildLLM(config.VendorConfig{
		Provider: "groq",
		Settings: map[string]any{"api_key": "k", "model": "llama-3.1-70b"},
	})
	require.NoError(t, err)
	cb, ok := adapter.(*llm.CircuitBreakerAdapter)
	require.True(t, ok)
	inner, ok := cb.Adapter.(*openai.Adapter)
	require.True(t, ok)
	assert.Equal(t, "groq", inner.Name())
}

func TestBuildWithoutBreaker(t *testing.T) {
	adapter, err := NewRegistry(nil).BuildLLM(config.VendorConfig{
		Provider: "Anthropic",
		Settings: map[string]any{"api_key": "k", "use_circuit_breaker": "false", "max_tokens": "512"},
	})
	require.NoError(t, err)
	_, ok := adapter.(*anthropic.Adapter)
	assert.True(t, ok)
}

func TestBuildErrors(t *testing.T) {
	reg := NewRegistry(nil)

	_, err := reg.BuildLLM(config.VendorConfig{Provider: "bard"})
	assert.ErrorContains(t, err, "not registered")

	_, err = reg.BuildLLM(config.VendorConfig{Provider: "openai", Settings: map[string]any{"model": "gpt-4o"}})
	assert.ErrorContains(t, err, "api_key is required")

	_, err = reg.BuildLLM(config.VendorConfig{Provider: "custom", Settings: map[string]any{"api_key": "k"}})
	assert.ErrorContains(t, err, "base_url is required")

	_, err = reg.BuildLLM(config.VendorConfig{Provider: "openai", Settings: map[string]any{"api_key": "k", "colour": "red"}})
	assert.ErrorContains(t, err, "unknown: colour")
}

func TestOllamaNeedsNoKey(t *testing.T) {
	_, err := NewRegistry(nil).BuildLLM(config.VendorConfig{Provider: "ollama"})
	assert.NoError(t, err)
}

func TestMockProvider(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Contains(t, reg.Names(), "mock")
	adapter, err := reg.BuildLLM(config.VendorConfig{Provider: "mock", Settings: map[string]any{"response_text": "hi"}})
	require.NoError(t, err)
	_, ok := adapter.(*mock.LLMAdapter)
	assert.True(t, ok)
}

func TestTemperatureZeroIsKept(t *testing.T) {
	var temps []gjson.Result
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		temps = append(temps, gjson.GetBytes(raw, "temperature"))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	reg := NewRegistry(nil)
	for _, settings := range []map[string]any{
		{"api_key": "k", "base_url": srv.URL, "temperature": 0},
		{"api_key": "k", "base_url": srv.URL},
	} {
		adapter, err := reg.BuildLLM(config.VendorConfig{Provider: "custom", Settings: settings})
		require.NoError(t, err)
		_, err = adapter.Chat(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
		require.NoError(t, err)
	}

	require.Len(t, temps, 2)
	assert.True(t, temps[0].Exists())
	assert.Equal(t, 0.0, temps[0].Float())
	assert.Equal(t, 0.4, temps[1].Float())
}
