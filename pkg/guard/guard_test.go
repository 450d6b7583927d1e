package guard

import (
	"testing"
	"time"

	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-06-03 is a Monday.
func at(t *testing.T, clock string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", "2024-06-03 "+clock, loc)
	require.NoError(t, err)
	return ts
}

func fixedGuard(now time.Time) *Guard {
	return &Guard{Now: func() time.Time { return now }}
}

func mondayTenant() *tenant.Config {
	return &tenant.Config{
		Timezone: "America/New_York",
		CallConfig: tenant.CallConfig{
			BusinessHours:     map[string]tenant.Hours{"monday": {Open: "08:00", Close: "17:00"}},
			TransferNumber:    "+15550001111",
			EmergencyKeywords: []string{"gas leak", "flooding"},
		},
	}
}

func user(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: text}}
}

func TestBusinessHoursBoundaries(t *testing.T) {
	cases := []struct {
		clock string
		want  Action
	}{
		{"07:59", AfterHours},
		{"08:00", Proceed},
		{"16:59", Proceed},
		{"17:00", AfterHours},
	}
	for _, tc := range cases {
		t.Run(tc.clock, func(t *testing.T) {
			d := fixedGuard(at(t, tc.clock)).Evaluate(user("I need a tune-up"), mondayTenant())
			assert.Equal(t, tc.want, d.Action)
		})
	}
}

func TestEmptyScheduleIsAlwaysOpen(t *testing.T) {
	cfg := mondayTenant()
	cfg.CallConfig.BusinessHours = nil
	d := fixedGuard(at(t, "03:00")).Evaluate(user("hello"), cfg)
	assert.Equal(t, Proceed, d.Action)
}

func TestMissingWeekdayIsClosed(t *testing.T) {
	cfg := mondayTenant()
	cfg.CallConfig.BusinessHours = map[string]tenant.Hours{"tuesday": {Open: "08:00", Close: "17:00"}}
	d := fixedGuard(at(t, "10:00")).Evaluate(user("hello"), cfg)
	assert.Equal(t, AfterHours, d.Action)
	assert.Equal(t, "voicemail", d.Behavior)
	assert.Equal(t, "+15550001111", d.TransferNumber)
}

func TestTimezoneIsApplied(t *testing.T) {
	// 13:30 UTC is 09:30 in New York but 06:30 in Los Angeles.
	now := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	cfg := mondayTenant()
	assert.Equal(t, Proceed, fixedGuard(now).Evaluate(user("hi"), cfg).Action)

	cfg.Timezone = "America/Los_Angeles"
	assert.Equal(t, AfterHours, fixedGuard(now).Evaluate(user("hi"), cfg).Action)
}

func TestBadTimezoneFailsOpen(t *testing.T) {
	cfg := mondayTenant()
	cfg.Timezone = "Mars/Olympus_Mons"
	d := fixedGuard(at(t, "03:00")).Evaluate(user("hi"), cfg)
	assert.Equal(t, Proceed, d.Action)
}

func TestMalformedHoursFailOpen(t *testing.T) {
	cfg := mondayTenant()
	cfg.CallConfig.BusinessHours = map[string]tenant.Hours{"monday": {Open: "8am", Close: "17:00"}}
	d := fixedGuard(at(t, "03:00")).Evaluate(user("hi"), cfg)
	assert.Equal(t, Proceed, d.Action)
}

func TestEmergencyKeywordCaseInsensitiveSubstring(t *testing.T) {
	d := fixedGuard(at(t, "10:00")).Evaluate(user("I smell a GAS LEAK in my kitchen"), mondayTenant())
	assert.Equal(t, EmergencyTransfer, d.Action)
	assert.Equal(t, "gas leak", d.Keyword)
	assert.Equal(t, "I smell a GAS LEAK in my kitchen", d.Message)
}

func TestEmergencyBeatsAfterHours(t *testing.T) {
	d := fixedGuard(at(t, "22:00")).Evaluate(user("the basement is flooding, get me a supervisor"), mondayTenant())
	assert.Equal(t, EmergencyTransfer, d.Action)
}

func TestAfterHoursBeatsEscalation(t *testing.T) {
	cfg := mondayTenant()
	cfg.CallConfig.AfterHoursBehavior = "message_only"
	d := fixedGuard(at(t, "22:00")).Evaluate(user("let me talk to a human"), cfg)
	assert.Equal(t, AfterHours, d.Action)
	assert.Equal(t, "message_only", d.Behavior)
}

func TestEscalationPhrase(t *testing.T) {
	d := fixedGuard(at(t, "10:00")).Evaluate(user("Can I speak to a REPRESENTATIVE please"), mondayTenant())
	assert.Equal(t, Escalate, d.Action)
	assert.Equal(t, ReasonCallerRequestedHuman, d.Reason)
}

func TestOnlyLatestUserMessageCounts(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "there was a gas leak last year"},
		{Role: llm.RoleAssistant, Content: "Sorry to hear that. How can I help today?"},
		{Role: llm.RoleUser, Content: "just a tune-up"},
		{Role: llm.RoleAssistant, Content: "talk to a human any time"},
	}
	d := fixedGuard(at(t, "10:00")).Evaluate(history, mondayTenant())
	assert.Equal(t, Proceed, d.Action)
}

func TestNoUserMessage(t *testing.T) {
	assert.Equal(t, "", LastUserMessage(nil))
	d := fixedGuard(at(t, "10:00")).Evaluate(nil, mondayTenant())
	assert.Equal(t, Proceed, d.Action)
}

func TestNilTenantProceeds(t *testing.T) {
	d := fixedGuard(at(t, "10:00")).Evaluate(user("hello"), nil)
	assert.Equal(t, Proceed, d.Action)
}
