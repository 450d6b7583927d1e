// Package config loads the process configuration from a YAML file with viper.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Agent         AgentConfig         `mapstructure:"agent"`
	CRM           CRMConfig           `mapstructure:"crm"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Handoff       HandoffConfig       `mapstructure:"handoff"`
	Templates     TemplatesConfig     `mapstructure:"templates"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	PublicURL      string   `mapstructure:"public_url"`
	Secret         string   `mapstructure:"secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DrainTimeoutMS int      `mapstructure:"drain_timeout_ms"`
}

type StorageConfig struct {
	DSN      string `mapstructure:"dsn"`
	SeedFile string `mapstructure:"seed_file"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	LLM VendorConfig `mapstructure:"llm"`
}

type AgentConfig struct {
	MaxIterations   int `mapstructure:"max_iterations"`
	MaxToolFailures int `mapstructure:"max_tool_failures"`
}

// CRMConfig overrides the ServiceTitan endpoints, mainly for sandboxes.
type CRMConfig struct {
	ServiceTitanAuthURL string `mapstructure:"servicetitan_auth_url"`
	ServiceTitanAPIBase string `mapstructure:"servicetitan_api_base"`
	TimeoutMS           int    `mapstructure:"timeout_ms"`
	Retries             int    `mapstructure:"retries"`
	RetryBackoffMS      int    `mapstructure:"retry_backoff_ms"`
}

type PaymentsConfig struct {
	StripeSecretKey string `mapstructure:"stripe_secret_key"`
}

type DispatchConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type HandoffConfig struct {
	Provider   string `mapstructure:"provider"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	CallerID   string `mapstructure:"caller_id"`
}

type TemplatesConfig struct {
	Dir string `mapstructure:"dir"`
}

// ObservabilityConfig enables per-call JSONL timelines when TimelinesDir is set.
// LogSampleRate thins routine metrics log lines; timelines are never sampled.
type ObservabilityConfig struct {
	TimelinesDir  string  `mapstructure:"timelines_dir"`
	RetentionDays int     `mapstructure:"retention_days"`
	MetricsBuffer int     `mapstructure:"metrics_buffer"`
	LogSampleRate float64 `mapstructure:"log_sample_rate"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

var llmProviders = map[string]bool{
	"openai": true, "groq": true, "together": true, "mistral": true,
	"ollama": true, "custom": true, "anthropic": true, "mock": true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.secret", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("storage.dsn", "frontdesk.db")
	v.SetDefault("storage.seed_file", "")
	v.SetDefault("vendors.llm.provider", "openai")
	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.max_tool_failures", 2)
	v.SetDefault("crm.servicetitan_auth_url", "")
	v.SetDefault("crm.servicetitan_api_base", "")
	v.SetDefault("crm.timeout_ms", 15000)
	v.SetDefault("crm.retries", 1)
	v.SetDefault("crm.retry_backoff_ms", 250)
	v.SetDefault("payments.stripe_secret_key", "")
	v.SetDefault("dispatch.nats_url", "")
	v.SetDefault("dispatch.subject", "frontdesk.dispositions")
	v.SetDefault("handoff.provider", "none")
	v.SetDefault("handoff.account_sid", "")
	v.SetDefault("handoff.auth_token", "")
	v.SetDefault("handoff.caller_id", "")
	v.SetDefault("templates.dir", "")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.timelines_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.metrics_buffer", 256)
	v.SetDefault("observability.log_sample_rate", 1.0)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads path, applies defaults, expands ${VAR} references and validates.
// An empty path loads defaults plus FRONTDESK_* environment variables only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FRONTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(c.Vendors.LLM.Provider))
	if provider == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if !llmProviders[provider] {
		return fmt.Errorf("vendors.llm.provider %q is not supported", c.Vendors.LLM.Provider)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.MaxToolFailures <= 0 {
		return fmt.Errorf("agent.max_tool_failures must be positive")
	}
	if r := c.Observability.LogSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.log_sample_rate must be between 0 and 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Handoff.Provider)) {
	case "", "none":
	case "twilio":
		if c.Handoff.AccountSID == "" || c.Handoff.AuthToken == "" {
			return fmt.Errorf("handoff.account_sid and handoff.auth_token are required for twilio")
		}
	default:
		return fmt.Errorf("handoff.provider %q is not supported", c.Handoff.Provider)
	}
	if strings.TrimSpace(c.Server.Secret) == "" && !c.AllowsAnonymous() {
		return fmt.Errorf("server.secret is required")
	}
	return nil
}

// IsProduction reports whether environment is set to production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// AllowsAnonymous reports whether the voice platform endpoints may run
// without a shared secret. Only the mock provider outside production may.
func (c *Config) AllowsAnonymous() bool {
	provider := strings.ToLower(strings.TrimSpace(c.Vendors.LLM.Provider))
	return provider == "mock" && !c.IsProduction()
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
