package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  secret: s\nvendors:\n  llm:\n    provider: anthropic\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 2, cfg.Agent.MaxToolFailures)
	assert.Equal(t, "frontdesk.dispositions", cfg.Dispatch.Subject)
	assert.Equal(t, "none", cfg.Handoff.Provider)
	assert.True(t, cfg.Privacy.RedactPII)
	assert.Equal(t, "anthropic", cfg.Vendors.LLM.Provider)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test")
	t.Setenv("TEST_SECRET", "s3cret")
	path := writeConfig(t, `
server:
  secret: ${TEST_SECRET}
vendors:
  llm:
    provider: openai
    settings:
      api_key: ${TEST_LLM_KEY}
      model: gpt-4o-mini
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Secret)
	assert.Equal(t, "sk-test", cfg.Vendors.LLM.Settings["api_key"])
	assert.Equal(t, "gpt-4o-mini", cfg.Vendors.LLM.Settings["model"])
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "vendors:\n  llm:\n    provider: bard\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")

	_, err = Load(writeConfig(t, "handoff:\n  provider: twilio\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handoff.account_sid")

	_, err = Load(writeConfig(t, "agent:\n  max_iterations: 0\n"))
	require.Error(t, err)
}

func TestValidateRequiresSecret(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{Addr: ":8080"},
		Agent:   AgentConfig{MaxIterations: 10, MaxToolFailures: 2},
		Vendors: VendorsConfig{LLM: VendorConfig{Provider: "openai"}},
	}
	cfg.Observability.LogSampleRate = 1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.secret")

	cfg.Vendors.LLM.Provider = "mock"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.AllowsAnonymous())

	cfg.Environment = "Production"
	assert.True(t, cfg.IsProduction())
	require.Error(t, cfg.Validate())
	assert.False(t, cfg.AllowsAnonymous())

	cfg.Server.Secret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
