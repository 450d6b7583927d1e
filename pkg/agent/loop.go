// Package agent runs the bounded tool-calling loop for one conversational turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/redact"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/harunnryd/frontdesk/pkg/tools"
)

const (
	DefaultMaxIterations   = 10
	DefaultMaxToolFailures = 2
)

const (
	msgEmergencyTransfer = "This sounds like an emergency. I'm connecting you with a technician right now."
	msgTransfer          = "Of course, let me connect you with a member of our team right now."
	msgToolEscalation    = "I'm sorry, I'm having a technical issue. Let me connect you with one of our team members right away."
	msgEmptyResponse     = "I'm sorry, I didn't get a response. Could you please repeat that?"
	msgMaxIterations     = "I'm sorry, I'm having trouble processing your request. Let me transfer you to a team member."
)

// ToolRunner is the registry surface the loop depends on.
type ToolRunner interface {
	Execute(ctx context.Context, name tools.Name, args map[string]any, cfg *tenant.Config) (any, error)
	Defs() []llm.ToolDefinition
	IsTerminal(name tools.Name) bool
}

type Config struct {
	MaxIterations   int
	MaxToolFailures int
	Observer        metrics.Observer
	Logger          *slog.Logger
}

// Loop is stateless between runs; one instance serves concurrent calls.
type Loop struct {
	adapter         llm.Adapter
	tools           ToolRunner
	maxIterations   int
	maxToolFailures int
	obs             metrics.Observer
	logger          *slog.Logger
}

func New(adapter llm.Adapter, runner ToolRunner, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxToolFailures <= 0 {
		cfg.MaxToolFailures = DefaultMaxToolFailures
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		adapter:         adapter,
		tools:           runner,
		maxIterations:   cfg.MaxIterations,
		maxToolFailures: cfg.MaxToolFailures,
		obs:             cfg.Observer,
		logger:          cfg.Logger,
	}
}

// Turn is the input of one Run.
type Turn struct {
	CallID   string
	Tenant   *tenant.Config
	Messages []llm.Message
	// SystemPrompt is sent with the first model call only.
	SystemPrompt string
}

// Run drives the model until it produces final text, a terminal tool
// succeeds, a tool exhausts its failure budget, or the iteration bound is
// reached. Every exit that returns nil has already completed the sink, unless
// the sink itself stopped accepting output. A non-nil error means the model
// call failed and nothing has been completed.
func (l *Loop) Run(ctx context.Context, turn Turn, sink Sink) error {
	history := withoutSystem(turn.Messages)
	failures := map[tools.Name]int{}
	defs := l.tools.Defs()
	logger := l.logger.With("call_id", turn.CallID, "client_id", clientID(turn.Tenant))

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		l.record(metrics.EventAgentIteration, turn, map[string]string{"iteration": fmt.Sprint(iteration)})

		req := llm.Request{Messages: history, Tools: defs}
		if iteration == 1 {
			req.SystemPrompt = turn.SystemPrompt
		}
		resp, err := l.adapter.Chat(ctx, req)
		if err != nil {
			return errorsx.Wrapf(errorsx.ReasonLLMGenerate, "%s chat (iteration %d): %w", l.adapter.Name(), iteration, err)
		}

		if !l.adapter.IsToolCallResponse(resp) {
			return l.finish(ctx, turn, req, l.adapter.TextContent(resp), sink, logger)
		}

		calls := l.adapter.ExtractToolCalls(resp)
		history = append(history, l.adapter.BuildToolCallMessage(resp))

		for _, call := range calls {
			name := tools.Name(call.Name)
			logger.Debug("agent_tool_call", "tool", call.Name, "iteration", iteration, "args", redact.Args(call.Arguments))
			result, err := l.tools.Execute(ctx, name, call.Arguments, turn.Tenant)
			if err == nil {
				failures[name] = 0
				if l.tools.IsTerminal(name) {
					disposition, _ := tools.AsDisposition(result)
					l.record(metrics.EventTerminalTool, turn, map[string]string{"tool": call.Name})
					logger.Info("agent_terminal_tool", "tool", call.Name, "iteration", iteration)
					l.end(ctx, sink, transferText(disposition), disposition, logger)
					return nil
				}
				history = append(history, l.adapter.BuildToolResult(call.ID, result))
				continue
			}

			failures[name]++
			l.record(metrics.EventToolFailed, turn, map[string]string{"tool": call.Name})
			logger.Warn("agent_tool_failed", "tool", call.Name, "failures", failures[name], "error", err)
			if failures[name] >= l.maxToolFailures {
				disposition := l.forceTransfer(ctx, turn.Tenant, name, logger)
				l.record(metrics.EventToolEscalated, turn, map[string]string{"tool": call.Name})
				l.end(ctx, sink, msgToolEscalation, disposition, logger)
				return nil
			}
			history = append(history, l.adapter.BuildToolResult(call.ID, map[string]string{"error": err.Error()}))
		}
	}

	l.record(metrics.EventMaxIterations, turn, nil)
	logger.Warn("agent_max_iterations", "max_iterations", l.maxIterations)
	l.end(ctx, sink, msgMaxIterations, nil, logger)
	return nil
}

// finish handles a final-text response: the same history is re-issued on
// the streaming path without tools and forwarded fragment by fragment.
func (l *Loop) finish(ctx context.Context, turn Turn, chatReq llm.Request, text string, sink Sink, logger *slog.Logger) error {
	if strings.TrimSpace(text) == "" {
		l.end(ctx, sink, msgEmptyResponse, nil, logger)
		return nil
	}
	logger.Debug("agent_final_text", "text", redact.Text(text))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamReq := llm.Request{Messages: chatReq.Messages, SystemPrompt: chatReq.SystemPrompt}
	chunks, err := l.adapter.Stream(streamCtx, streamReq)
	if err != nil {
		l.record(metrics.EventStreamFallback, turn, map[string]string{"stage": "open"})
		logger.Warn("agent_stream_fallback", "error", errorsx.Wrap(err, errorsx.ReasonLLMStream))
		l.end(ctx, sink, text, nil, logger)
		return nil
	}

	var emitted strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			l.record(metrics.EventStreamFallback, turn, map[string]string{"stage": "mid_stream"})
			logger.Warn("agent_stream_fallback", "emitted", emitted.Len(), "error", errorsx.Wrap(chunk.Err, errorsx.ReasonLLMStream))
			l.end(ctx, sink, fallbackRemainder(emitted.String(), text), nil, logger)
			return nil
		}
		if chunk.Text == "" {
			continue
		}
		if !l.emit(ctx, sink, chunk.Text, logger) {
			return nil
		}
		emitted.WriteString(chunk.Text)
	}
	if emitted.Len() == 0 {
		l.record(metrics.EventStreamFallback, turn, map[string]string{"stage": "empty"})
		l.end(ctx, sink, text, nil, logger)
		return nil
	}
	l.complete(ctx, sink, nil, logger)
	return nil
}

// fallbackRemainder returns what still has to be said after a stream broke.
// A prefix of the batch text is continued; anything else is followed by the
// whole batch text so the caller always hears a complete answer.
func fallbackRemainder(emitted, full string) string {
	if strings.HasPrefix(full, emitted) {
		return full[len(emitted):]
	}
	return full
}

func (l *Loop) forceTransfer(ctx context.Context, cfg *tenant.Config, failed tools.Name, logger *slog.Logger) *tools.Disposition {
	reason := fmt.Sprintf("Tool %q failed %d times", failed, l.maxToolFailures)
	summary := fmt.Sprintf("The AI encountered a technical issue with %s. Please assist the caller manually.", failed)
	result, err := l.tools.Execute(ctx, tools.TransferCall, map[string]any{
		"reason":   reason,
		"summary":  summary,
		"priority": tools.PriorityNormal,
	}, cfg)
	if d, ok := tools.AsDisposition(result); err == nil && ok {
		return d
	}
	logger.Error("agent_forced_transfer_failed", "error", err)
	return &tools.Disposition{
		Action:         tools.ActionTransfer,
		TransferTo:     cfg.TransferNumber(),
		Priority:       tools.PriorityNormal,
		Reason:         reason,
		HandoffSummary: summary,
	}
}

func transferText(d *tools.Disposition) string {
	if d != nil && d.Priority == tools.PriorityEmergency {
		return msgEmergencyTransfer
	}
	return msgTransfer
}

// end emits text, if any, and completes the sink.
func (l *Loop) end(ctx context.Context, sink Sink, text string, d *tools.Disposition, logger *slog.Logger) {
	if text != "" && !l.emit(ctx, sink, text, logger) {
		return
	}
	l.complete(ctx, sink, d, logger)
}

func (l *Loop) emit(ctx context.Context, sink Sink, text string, logger *slog.Logger) bool {
	if err := sink.Emit(ctx, text); err != nil {
		logSinkError(logger, "emit", err)
		return false
	}
	return true
}

func (l *Loop) complete(ctx context.Context, sink Sink, d *tools.Disposition, logger *slog.Logger) {
	if err := sink.Complete(ctx, d); err != nil {
		logSinkError(logger, "complete", err)
	}
}

func logSinkError(logger *slog.Logger, op string, err error) {
	if errors.Is(err, ErrSinkClosed) || errors.Is(err, context.Canceled) {
		logger.Debug("agent_sink_closed", "op", op)
		return
	}
	logger.Warn("agent_sink_failed", "op", op, "error", errorsx.Wrap(err, errorsx.ReasonSinkClosed))
}

func (l *Loop) record(name string, turn Turn, tags map[string]string) {
	if tags == nil {
		tags = map[string]string{}
	}
	tags["client_id"] = clientID(turn.Tenant)
	if turn.CallID != "" {
		tags["call_id"] = turn.CallID
	}
	l.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Value: 1, Tags: tags})
}

func withoutSystem(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func clientID(cfg *tenant.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.ID
}
