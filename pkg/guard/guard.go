// Package guard decides, before any model call, whether a turn must be
// answered by policy instead of the model.
package guard

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

type Action string

const (
	Proceed           Action = "proceed"
	EmergencyTransfer Action = "emergency_transfer"
	AfterHours        Action = "after_hours"
	Escalate          Action = "escalate"
)

const (
	DefaultTimezone           = "America/New_York"
	DefaultAfterHoursBehavior = "voicemail"

	ReasonCallerRequestedHuman = "caller_requested_human"
)

// Decision is exactly one of the four actions. Only the fields of that
// action are set.
type Decision struct {
	Action Action

	// EmergencyTransfer
	Keyword string
	Message string

	// AfterHours
	Behavior       string
	TransferNumber string

	// Escalate
	Reason string
}

var humanRequestPhrases = []string{
	"talk to a human",
	"speak to a human",
	"speak to a person",
	"talk to a person",
	"talk to a real person",
	"speak with an agent",
	"talk to an agent",
	"speak to a representative",
	"talk to someone",
	"get a human",
	"real person",
	"live agent",
	"operator",
	"supervisor",
}

// Guard is stateless apart from its clock and is safe for concurrent use.
type Guard struct {
	Now    func() time.Time
	Logger *slog.Logger
}

func New(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{Now: time.Now, Logger: logger}
}

// Evaluate applies emergency, after-hours and escalation checks in that
// order and returns the first that matches.
func (g *Guard) Evaluate(messages []llm.Message, cfg *tenant.Config) Decision {
	var cc tenant.CallConfig
	var tz string
	if cfg != nil {
		cc = cfg.CallConfig
		tz = cfg.Timezone
	}
	text := LastUserMessage(messages)
	lower := strings.ToLower(text)

	for _, kw := range cc.EmergencyKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return Decision{Action: EmergencyTransfer, Keyword: kw, Message: text}
		}
	}

	open, err := WithinBusinessHours(cc.BusinessHours, tz, g.now())
	if err != nil {
		g.logger().Warn("guard_business_hours_invalid", "timezone", tz, "error", err)
	}
	if !open {
		behavior := cc.AfterHoursBehavior
		if behavior == "" {
			behavior = DefaultAfterHoursBehavior
		}
		return Decision{Action: AfterHours, Behavior: behavior, TransferNumber: cc.TransferNumber}
	}

	for _, phrase := range humanRequestPhrases {
		if strings.Contains(lower, phrase) {
			return Decision{Action: Escalate, Reason: ReasonCallerRequestedHuman}
		}
	}
	return Decision{Action: Proceed}
}

func (g *Guard) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

// LastUserMessage returns the text of the most recent user turn, or "".
func LastUserMessage(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// WithinBusinessHours reports whether now, in timezone tz, falls inside the
// weekday's [open, close) window. An empty schedule is always open; a weekday
// missing from a non-empty schedule is closed. On an unknown timezone or a
// malformed window it returns true together with the error.
func WithinBusinessHours(hours map[string]tenant.Hours, tz string, now time.Time) (bool, error) {
	if len(hours) == 0 {
		return true, nil
	}
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return true, err
	}
	local := now.In(loc)
	day, ok := hours[strings.ToLower(local.Weekday().String())]
	if !ok {
		return false, nil
	}
	openAt, err := minuteOfDay(day.Open)
	if err != nil {
		return true, err
	}
	closeAt, err := minuteOfDay(day.Close)
	if err != nil {
		return true, err
	}
	current := local.Hour()*60 + local.Minute()
	return current >= openAt && current < closeAt, nil
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
