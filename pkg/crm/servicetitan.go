package crm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/configutil"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultAuthURL = "https://auth.servicetitan.io/connect/token"
	defaultAPIBase = "https://api.servicetitan.io"
)

// ServiceTitanCredentials is decoded from a tenant's crm_credentials. Keys
// match case-, underscore- and hyphen-insensitively.
type ServiceTitanCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AppKey       string `mapstructure:"app_key"`
	TenantID     string `mapstructure:"tenant_id"`
}

type ServiceTitanConfig struct {
	Credentials ServiceTitanCredentials
	AuthURL     string
	APIBase     string
	Client      *http.Client
	Retry       resilience.RetryPolicy
}

type ServiceTitan struct {
	apiBase  string
	tenantID string
	client   *http.Client
	retry    resilience.RetryPolicy
}

// DecodeServiceTitanCredentials validates and decodes stored credentials.
func DecodeServiceTitanCredentials(raw map[string]string) (ServiceTitanCredentials, error) {
	var creds ServiceTitanCredentials
	schema := configutil.SchemaFor(creds, "client_id", "client_secret", "app_key", "tenant_id")
	schema.AllowUnknown = true
	if err := configutil.Decode("servicetitan credentials", configutil.FromStrings(raw), schema, &creds); err != nil {
		return ServiceTitanCredentials{}, err
	}
	return creds, nil
}

// NewServiceTitan builds a client whose token requests and API calls both
// carry the ST-App-Key header. Tokens are cached and refreshed by oauth2.
func NewServiceTitan(cfg ServiceTitanConfig) *ServiceTitan {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	base := cfg.Client
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	inner := base.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	keyed := &http.Client{
		Timeout:   base.Timeout,
		Transport: appKeyTransport{key: cfg.Credentials.AppKey, next: inner},
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.Credentials.ClientID,
		ClientSecret: cfg.Credentials.ClientSecret,
		TokenURL:     authURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, keyed)
	client := cc.Client(ctx)
	client.Timeout = keyed.Timeout

	retry := cfg.Retry
	if retry.Backoff == 0 {
		retry = resilience.NewRetryPolicy(1, 250*time.Millisecond)
	}
	return &ServiceTitan{
		apiBase:  apiBase,
		tenantID: cfg.Credentials.TenantID,
		client:   client,
		retry:    retry,
	}
}

type appKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t appKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("ST-App-Key", t.key)
	return t.next.RoundTrip(clone)
}

func (s *ServiceTitan) Availability(ctx context.Context, q AvailabilityQuery) ([]Slot, error) {
	params := url.Values{}
	params.Set("startsOnOrAfter", q.Date+"T00:00:00Z")
	params.Set("endsOnOrBefore", q.Date+"T23:59:59Z")
	body, err := s.get(ctx, "/scheduling/v2/tenant/{tenant}/capacity", params)
	if err != nil {
		return nil, err
	}
	var slots []Slot
	gjson.GetBytes(body, "data").ForEach(func(_, slot gjson.Result) bool {
		tech := slot.Get("technician.name").String()
		if tech == "" {
			tech = "Available Technician"
		}
		slots = append(slots, Slot{
			StartTime:      slot.Get("start").String(),
			EndTime:        slot.Get("end").String(),
			TechnicianName: tech,
		})
		return true
	})
	return slots, nil
}

func (s *ServiceTitan) CreateJob(ctx context.Context, req JobRequest) (Job, error) {
	summary := req.Notes
	if summary == "" {
		summary = req.ServiceType
	}
	payload, err := json.Marshal(map[string]any{
		"customerId":    req.CustomerID,
		"scheduledDate": req.ScheduledTime,
		"duration":      req.EstimatedDuration,
		"summary":       summary,
	})
	if err != nil {
		return Job{}, err
	}
	body, err := s.do(ctx, http.MethodPost, "/jpm/v2/tenant/{tenant}/jobs", nil, payload)
	if err != nil {
		return Job{}, err
	}
	id := gjson.GetBytes(body, "id").String()
	conf := gjson.GetBytes(body, "number").String()
	if conf == "" {
		conf = id
	}
	return Job{ID: id, ConfirmationNumber: conf}, nil
}

func (s *ServiceTitan) LookupCustomer(ctx context.Context, phone string) (*Customer, error) {
	params := url.Values{}
	params.Set("phone", digitsOnly(phone))
	body, err := s.get(ctx, "/crm/v2/tenant/{tenant}/customers", params)
	if err != nil {
		return nil, err
	}
	first := gjson.GetBytes(body, "data.0")
	if !first.Exists() {
		return nil, nil
	}
	name := strings.TrimSpace(first.Get("firstName").String() + " " + first.Get("lastName").String())
	c := &Customer{
		ID:              first.Get("id").String(),
		Name:            name,
		Address:         first.Get("address.street").String(),
		LastServiceDate: first.Get("lastServiceDate").String(),
		Equipment:       []string{},
	}
	first.Get("equipment.#.name").ForEach(func(_, v gjson.Result) bool {
		if v.String() != "" {
			c.Equipment = append(c.Equipment, v.String())
		}
		return true
	})
	return c, nil
}

// get retries idempotent reads.
func (s *ServiceTitan) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = s.do(ctx, http.MethodGet, path, params, nil)
		return err
	})
	return body, err
}

func (s *ServiceTitan) do(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
	endpoint := s.apiBase + strings.ReplaceAll(path, "{tenant}", url.PathEscape(s.tenantID))
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonCRMRequest, "servicetitan %s %s: %w", method, path, err)
	}
	if err := resilience.CheckResponse("servicetitan", resp); err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonCRMRequest, "%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCRMRequest)
	}
	return body, nil
}

var _ Provider = (*ServiceTitan)(nil)
