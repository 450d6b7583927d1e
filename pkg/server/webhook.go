package server

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/tidwall/gjson"
)

const maxSummaryChars = 500

// handleWebhook always acknowledges; processing failures are only logged so
// the platform does not retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		if err := s.logEndOfCall(r.Context(), body); err != nil {
			s.logger.Error("webhook_processing_failed", errorsx.Attrs(err)...)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) logEndOfCall(ctx context.Context, body []byte) error {
	msg := gjson.GetBytes(body, "message")
	if msg.Get("type").String() != "end-of-call-report" || s.deps.CallLogs == nil {
		return nil
	}
	call := msg.Get("call")
	toNumber := conversation.ExtractToNumber(msg)
	if toNumber == "" {
		return nil
	}
	cfg, err := s.deps.Conversation.Resolve(ctx, toNumber)
	if errors.Is(err, tenant.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	outcome := msg.Get("endedReason").String()
	if outcome == "" {
		outcome = calllog.OutcomeUnknown
	}
	return s.deps.CallLogs.InsertCallLog(ctx, calllog.Entry{
		ClientID:        cfg.ID,
		CallID:          call.Get("id").String(),
		CallerNumber:    call.Get("customer.number").String(),
		Outcome:         outcome,
		Summary:         callSummary(msg.Get("artifact")),
		DurationSeconds: callDuration(call),
	})
}

func callSummary(artifact gjson.Result) string {
	if s := artifact.Get("analysis.summary").String(); s != "" {
		return s
	}
	transcript := []rune(artifact.Get("transcript").String())
	if len(transcript) > maxSummaryChars {
		transcript = transcript[:maxSummaryChars]
	}
	return string(transcript)
}

func callDuration(call gjson.Result) *int {
	started, err := time.Parse(time.RFC3339Nano, call.Get("startedAt").String())
	if err != nil {
		return nil
	}
	ended, err := time.Parse(time.RFC3339Nano, call.Get("endedAt").String())
	if err != nil {
		return nil
	}
	secs := int(math.Round(ended.Sub(started).Seconds()))
	return &secs
}
