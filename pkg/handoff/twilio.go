// Package handoff moves a live call to a human when a turn ends in a
// transfer disposition.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/frontdesk/pkg/dispatch"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tools"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	// CallerID is presented to the transfer target; empty keeps the caller's number.
	CallerID string `mapstructure:"caller_id"`
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// Twilio redirects an in-progress call to the disposition's transfer number
// with <Dial> TwiML.
type Twilio struct {
	cfg     Config
	updater callUpdater
	logger  *slog.Logger
}

func NewTwilio(cfg Config, logger *slog.Logger) *Twilio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Twilio{cfg: cfg, logger: logger}
}

// Dispatch skips events without a provider call SID or transfer target; the
// voice platform then handles the transfer on its own.
func (t *Twilio) Dispatch(ctx context.Context, ev dispatch.Event) error {
	_ = ctx
	if ev.Disposition.Action != tools.ActionTransfer {
		return nil
	}
	sid := strings.TrimSpace(ev.ProviderCallID)
	target := strings.TrimSpace(ev.Disposition.TransferTo)
	if sid == "" || target == "" {
		t.logger.Debug("handoff_skipped", "call_id", ev.CallID, "has_sid", sid != "", "has_target", target != "")
		return nil
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonHandoffUpdate)
	}
	updater := t.updater
	if updater == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: t.cfg.AccountSID,
			Password: t.cfg.AuthToken,
		})
		updater = rest.Api
	}
	params := &api.UpdateCallParams{}
	params.SetTwiml(buildDialTwiml(target, t.cfg.CallerID))
	if _, err := updater.UpdateCall(sid, params); err != nil {
		return errorsx.Wrapf(errorsx.ReasonHandoffUpdate, "redirect call %s: %w", sid, err)
	}
	t.logger.Info("handoff_redirected", "call_id", ev.CallID, "priority", ev.Disposition.Priority)
	return nil
}

func buildDialTwiml(number, callerID string) string {
	if callerID != "" {
		return fmt.Sprintf(`<Response><Dial callerId="%s">%s</Dial></Response>`, xmlEscape(callerID), xmlEscape(number))
	}
	return fmt.Sprintf(`<Response><Dial>%s</Dial></Response>`, xmlEscape(number))
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}
