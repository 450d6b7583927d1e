package crm

import (
	"log/slog"
	"net/http"

	"github.com/alphadose/haxmap"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

// Factory hands out one Provider per tenant so OAuth tokens are reused
// across calls.
type Factory struct {
	providers *haxmap.Map[string, Provider]
	client    *http.Client
	logger    *slog.Logger
	stub      *Stub
	authURL   string
	apiBase   string
	retry     resilience.RetryPolicy
}

type FactoryOption func(*Factory)

func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.client = c }
}

func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithServiceTitanEndpoints overrides the auth and API hosts, e.g. for the
// integration sandbox. Empty values keep the production hosts.
func WithServiceTitanEndpoints(authURL, apiBase string) FactoryOption {
	return func(f *Factory) {
		f.authURL = authURL
		f.apiBase = apiBase
	}
}

func WithRetry(p resilience.RetryPolicy) FactoryOption {
	return func(f *Factory) { f.retry = p }
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		providers: haxmap.New[string, Provider](),
		logger:    slog.Default(),
		stub:      NewStub(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// For returns the provider for cfg's crm_platform. Unknown platforms and
// incomplete ServiceTitan credentials fall back to the stub.
func (f *Factory) For(cfg *tenant.Config) Provider {
	if cfg == nil || cfg.CRMPlatform != PlatformServiceTitan {
		return f.stub
	}
	p, _ := f.providers.GetOrCompute(cfg.ID, func() Provider {
		creds, err := DecodeServiceTitanCredentials(cfg.CRMCredentials)
		if err != nil {
			f.logger.Warn("crm_credentials_invalid", "client_id", cfg.ID, "error", err)
			return f.stub
		}
		return NewServiceTitan(ServiceTitanConfig{
			Credentials: creds,
			AuthURL:     f.authURL,
			APIBase:     f.apiBase,
			Client:      f.client,
			Retry:       f.retry,
		})
	})
	return p
}

// Forget drops a cached provider, e.g. after credentials change.
func (f *Factory) Forget(clientID string) {
	f.providers.Del(clientID)
}
