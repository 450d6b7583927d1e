// Package providers builds the configured LLM adapter by name.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/frontdesk/pkg/config"
	"github.com/harunnryd/frontdesk/pkg/configutil"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/providers/anthropic"
	"github.com/harunnryd/frontdesk/pkg/providers/mock"
	"github.com/harunnryd/frontdesk/pkg/providers/openai"
	"github.com/harunnryd/frontdesk/pkg/resilience"
)

// LLMSettings is the decoded form of vendors.llm.settings.
type LLMSettings struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`
	BaseURL           string   `mapstructure:"base_url"`
	Temperature       *float64 `mapstructure:"temperature"`
	MaxTokens         int      `mapstructure:"max_tokens"`
	TimeoutMS         int      `mapstructure:"timeout_ms"`
	UseCircuitBreaker *bool    `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int      `mapstructure:"circuit_threshold"`
	CircuitCooldownMS int      `mapstructure:"circuit_cooldown_ms"`
	ResponseText      string   `mapstructure:"response_text"`
}

type LLMFactory func(settings LLMSettings) (llm.Adapter, error)

type Registry struct {
	llm map[string]LLMFactory
	obs metrics.Observer
}

// NewRegistry returns a registry with every built-in provider registered.
func NewRegistry(obs metrics.Observer) *Registry {
	r := &Registry{llm: make(map[string]LLMFactory), obs: obs}
	for _, name := range []string{"openai", "groq", "together", "mistral", "ollama", "custom"} {
		r.RegisterLLM(name, chatCompletions(name))
	}
	r.RegisterLLM("anthropic", func(s LLMSettings) (llm.Adapter, error) {
		if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		return anthropic.NewAdapter(anthropic.Config{
			APIKey:    s.APIKey,
			Model:     s.Model,
			BaseURL:   s.BaseURL,
			MaxTokens: s.MaxTokens,
			Client:    httpClient(s),
		}), nil
	})
	r.RegisterLLM("mock", func(s LLMSettings) (llm.Adapter, error) {
		text := s.ResponseText
		if text == "" {
			text = "Thanks for calling. How can I help you today?"
		}
		return mock.NewLLMAdapter(mock.LLMConfig{Steps: []mock.Step{{Text: text}}}), nil
	})
	return r
}

func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.llm))
	for name := range r.llm {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildLLM decodes the vendor settings, builds the adapter and, unless
// use_circuit_breaker is false, wraps it in a rate-limit circuit breaker.
func (r *Registry) BuildLLM(vendor config.VendorConfig) (llm.Adapter, error) {
	name := strings.ToLower(strings.TrimSpace(vendor.Provider))
	fn := r.llm[name]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", vendor.Provider)
	}
	var settings LLMSettings
	if err := configutil.Decode("vendors.llm.settings", vendor.Settings, configutil.SchemaFor(settings), &settings); err != nil {
		return nil, err
	}
	adapter, err := fn(settings)
	if err != nil {
		return nil, fmt.Errorf("llm provider %s: %w", name, err)
	}
	if name == "mock" || !configutil.BoolValue(settings.UseCircuitBreaker, true) {
		return adapter, nil
	}
	breaker := resilience.NewCircuitBreaker(
		configutil.IntValue(settings.CircuitThreshold, 3),
		configutil.Millis(settings.CircuitCooldownMS, 30*time.Second),
	)
	wrapped := llm.NewCircuitBreakerAdapter(adapter, breaker)
	if r.obs != nil {
		wrapped.SetObserver(r.obs)
	}
	return wrapped, nil
}

func chatCompletions(name string) LLMFactory {
	return func(s LLMSettings) (llm.Adapter, error) {
		if name != "ollama" {
			if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
				return nil, err
			}
		}
		if name == "custom" {
			if err := configutil.RequireString(s.BaseURL, "vendors.llm.settings.base_url"); err != nil {
				return nil, err
			}
		}
		return openai.NewAdapter(openai.Config{
			Provider:    name,
			APIKey:      s.APIKey,
			Model:       s.Model,
			BaseURL:     s.BaseURL,
			Temperature: configutil.FloatValue(s.Temperature, 0.4),
			Client:      httpClient(s),
		}), nil
	}
}

func httpClient(s LLMSettings) *http.Client {
	return &http.Client{Timeout: configutil.Millis(s.TimeoutMS, 60*time.Second)}
}
