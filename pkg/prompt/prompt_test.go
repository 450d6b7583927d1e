package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hvacTenant() *tenant.Config {
	return &tenant.Config{
		CompanyName:      "Acme HVAC",
		IndustryVertical: "hvac",
		Services: []tenant.Service{
			{Name: "AC Repair", BasePrice: 149, DurationMinutes: 90, RequiresDeposit: true},
			{Name: "Estimate"},
		},
		CallConfig: tenant.CallConfig{
			TransferNumber:    "+15550001111",
			EmergencyKeywords: []string{"gas leak", "no heat"},
			FAQContent:        map[string]string{"warranty": "1 year parts", "areas": "Metro only"},
		},
	}
}

func TestAssembleHVAC(t *testing.T) {
	out := NewAssembler("", nil).Assemble(hvacTenant())
	assert.Contains(t, out, "Acme HVAC")
	assert.Contains(t, out, "- AC Repair: $149.00, 90 min [deposit required]")
	assert.Contains(t, out, "- Estimate: Call for pricing")
	assert.Contains(t, out, "gas leak, no heat")
	assert.Contains(t, out, "- areas: Metro only\n- warranty: 1 year parts")
	assert.Contains(t, out, "professional, friendly, and helpful")
	assert.NotContains(t, out, "{{")
}

func TestUnknownVerticalFallsBackToGeneric(t *testing.T) {
	cfg := hvacTenant()
	cfg.IndustryVertical = "landscaping"
	out := NewAssembler("", nil).Assemble(cfg)
	assert.True(t, strings.HasPrefix(out, "You are a helpful voice assistant answering calls for Acme HVAC."))
}

func TestTemplateDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spa.txt"), []byte("Welcome to {{company_name}} ({{unknown}})"), 0o644))
	cfg := hvacTenant()
	cfg.IndustryVertical = "spa"
	assert.Equal(t, "Welcome to Acme HVAC ({{unknown}})", NewAssembler(dir, nil).Assemble(cfg))

	cfg.IndustryVertical = "plumbing"
	assert.Contains(t, NewAssembler(dir, nil).Assemble(cfg), "plumbing company")
}

func TestDefaults(t *testing.T) {
	vars := Variables(&tenant.Config{})
	assert.Equal(t, "our company", vars["company_name"])
	assert.Equal(t, "our main line", vars["transfer_number"])
	assert.Equal(t, "voicemail", vars["after_hours_behavior"])
	assert.Equal(t, "Contact us for a full list of available services.", vars["services_list"])
	assert.Equal(t, "", vars["faq_content"])
}

func TestInterpolateLeavesUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, "Hi Bo, {{missing}}", Interpolate("Hi {{name}}, {{missing}}", map[string]string{"name": "Bo"}))
}
