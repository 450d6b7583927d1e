// Package payments creates card-present deposit sessions for callers.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ErrNotConfigured is returned when no secret key was provided.
var ErrNotConfigured = errors.New("payments not configured")

type IntentRequest struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type Creator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

type StripeConfig struct {
	SecretKey string
	// BaseURL overrides the Stripe API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

type Stripe struct {
	api *client.API
}

func NewStripe(cfg StripeConfig) *Stripe {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return &Stripe{}
	}
	var backends *stripe.Backends
	if cfg.BaseURL != "" || cfg.HTTPClient != nil {
		bc := &stripe.BackendConfig{
			HTTPClient:        cfg.HTTPClient,
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Stripe{api: api}
}

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if s.api == nil {
		return Intent{}, errorsx.Wrap(ErrNotConfigured, errorsx.ReasonPaymentCreate)
	}
	if req.AmountCents <= 0 {
		return Intent{}, errorsx.Wrapf(errorsx.ReasonPaymentCreate, "amount must be positive, got %d cents", req.AmountCents)
	}
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, errorsx.Wrapf(errorsx.ReasonPaymentCreate, "create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

var _ Creator = (*Stripe)(nil)
