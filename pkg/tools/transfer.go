package tools

import (
	"context"
	"fmt"

	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/tenant"
)

type transferCallArgs struct {
	Reason   string `json:"reason" mapstructure:"reason" jsonschema_description:"Brief reason for the transfer (e.g., \"caller requested human\", \"emergency\", \"tool failure\")"`
	Summary  string `json:"summary" mapstructure:"summary" jsonschema_description:"A concise handoff summary for the receiving agent: what the caller needs and any info collected"`
	Priority string `json:"priority,omitempty" mapstructure:"priority" jsonschema:"enum=normal,enum=emergency" jsonschema_description:"Transfer priority. Use \"emergency\" for burst pipes, gas leaks, carbon monoxide, or other safety issues."`
}

// newTransferCall is the one terminal tool in the default set.
func newTransferCall() Tool {
	return newTool(TransferCall,
		"Transfer the caller to a live human agent. Use when the caller requests a human, when a tool fails repeatedly, or for emergencies.",
		true,
		func(_ context.Context, args transferCallArgs, cfg *tenant.Config) (any, error) {
			priority := args.Priority
			if priority != PriorityEmergency {
				priority = PriorityNormal
			}
			return Disposition{
				Action:         ActionTransfer,
				TransferTo:     cfg.TransferNumber(),
				Priority:       priority,
				Reason:         args.Reason,
				HandoffSummary: args.Summary,
			}, nil
		})
}

type logUnansweredArgs struct {
	Question string `json:"question" mapstructure:"question" jsonschema_description:"The exact question or topic the caller asked about"`
	Context  string `json:"context,omitempty" mapstructure:"context" jsonschema_description:"Brief context about why this could not be answered"`
}

type loggedResult struct {
	Logged  bool   `json:"logged"`
	Message string `json:"message"`
}

func newLogUnansweredQuestion(deps Deps) Tool {
	return newTool(LogUnansweredQuestion,
		"Log a question the AI could not answer so the client team can review and update their FAQ or training data.",
		false,
		func(ctx context.Context, args logUnansweredArgs, cfg *tenant.Config) (any, error) {
			summary := "Q: " + args.Question
			if args.Context != "" {
				summary += " | Context: " + args.Context
			}
			if deps.CallLogs != nil {
				now := deps.Now()
				err := deps.CallLogs.InsertCallLog(ctx, calllog.Entry{
					ClientID:  cfg.ClientID(),
					CallID:    fmt.Sprintf("uq-%d", now.UnixMilli()),
					Outcome:   calllog.OutcomeUnansweredQuestion,
					Summary:   summary,
					CreatedAt: now,
				})
				if err != nil {
					deps.Logger.Warn("unanswered_question_log_failed", "client_id", cfg.ClientID(), "error", err)
				}
			}
			return loggedResult{
				Logged:  true,
				Message: "I've made a note of that question so our team can follow up. Is there anything else I can help you with today?",
			}, nil
		})
}
