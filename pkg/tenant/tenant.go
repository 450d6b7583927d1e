package tenant

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNotFound is returned when no active tenant matches a lookup.
var ErrNotFound = errors.New("no active client found")

// Hours is one weekday's opening window in 24h "HH:MM" local time.
type Hours struct {
	Open  string `json:"open" yaml:"open"`
	Close string `json:"close" yaml:"close"`
}

type CallConfig struct {
	// BusinessHours is keyed by lowercase English weekday ("monday").
	BusinessHours      map[string]Hours  `json:"business_hours" yaml:"business_hours"`
	AfterHoursBehavior string            `json:"after_hours_behavior" yaml:"after_hours_behavior"`
	TransferNumber     string            `json:"transfer_number" yaml:"transfer_number"`
	EmergencyKeywords  []string          `json:"emergency_keywords" yaml:"emergency_keywords"`
	ToneOverride       string            `json:"tone_override,omitempty" yaml:"tone_override"`
	FAQContent         map[string]string `json:"faq_content,omitempty" yaml:"faq_content"`
}

type Service struct {
	Name            string  `json:"service_name" yaml:"service_name"`
	BasePrice       float64 `json:"base_price" yaml:"base_price"`
	DurationMinutes int     `json:"duration_minutes" yaml:"duration_minutes"`
	RequiresDeposit bool    `json:"requires_deposit" yaml:"requires_deposit"`
}

// Config is an immutable snapshot of one tenant for the lifetime of a call.
type Config struct {
	ID               string            `json:"id" yaml:"id"`
	CompanyName      string            `json:"company_name" yaml:"company_name"`
	PhoneNumber      string            `json:"phone_number" yaml:"phone_number"`
	IndustryVertical string            `json:"industry_vertical" yaml:"industry_vertical"`
	Timezone         string            `json:"timezone" yaml:"timezone"`
	CRMPlatform      string            `json:"crm_platform" yaml:"crm_platform"`
	CRMCredentials   map[string]string `json:"-" yaml:"crm_credentials"`
	Active           bool              `json:"active" yaml:"active"`
	Services         []Service         `json:"services" yaml:"services"`
	CallConfig       CallConfig        `json:"call_config" yaml:"call_config"`
}

// Lookup resolves tenants by normalized phone number or id.
type Lookup interface {
	FindByPhone(ctx context.Context, normalized string) (*Config, error)
	FindByID(ctx context.Context, id string) (*Config, error)
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone converts a raw number to E.164, assuming +1 for ten digits.
// An input with no digits returns "".
func NormalizePhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// Resolve normalizes raw and looks the tenant up by phone.
func Resolve(ctx context.Context, store Lookup, raw string) (*Config, error) {
	normalized := NormalizePhone(raw)
	if normalized == "" {
		return nil, ErrNotFound
	}
	return store.FindByPhone(ctx, normalized)
}

// ClientID is the tenant id, or empty for a nil snapshot.
func (c *Config) ClientID() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// TransferNumber is where live handoffs go, or empty for a nil snapshot.
func (c *Config) TransferNumber() string {
	if c == nil {
		return ""
	}
	return c.CallConfig.TransferNumber
}

// FindService returns the first catalog entry whose name contains name,
// case-insensitively.
func (c *Config) FindService(name string) (Service, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if c == nil || needle == "" {
		return Service{}, false
	}
	for _, s := range c.Services {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			return s, true
		}
	}
	return Service{}, false
}
