// Package conversation is the entry point for one turn: it resolves the
// tenant, applies the call-flow guard and, when the guard lets the turn
// through, runs the agent loop.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/dispatch"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/guard"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/metrics"
	"github.com/harunnryd/frontdesk/pkg/redact"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/harunnryd/frontdesk/pkg/tools"
)

const (
	msgEmergency        = "This sounds like an emergency. I'm connecting you with a technician immediately. Please stay on the line."
	msgEscalate         = "Of course! Let me connect you with a member of our team right now."
	msgLoopError        = "I'm sorry, I encountered an error. Please try again or call back shortly."
	msgAfterHoursMsg    = "Thank you for calling %s. We're currently closed. Please leave a message or call back during our business hours."
	msgAfterHoursOnCall = "Thank you for calling %s. We're currently closed, but I can connect you with our on-call team for emergencies."
	msgAfterHoursVM     = "Thank you for calling %s. Our office is currently closed. Please leave a message and we'll return your call next business day."
)

type Runner interface {
	Run(ctx context.Context, turn agent.Turn, sink agent.Sink) error
}

type PromptAssembler interface {
	Assemble(cfg *tenant.Config) string
}

type Evaluator interface {
	Evaluate(messages []llm.Message, cfg *tenant.Config) guard.Decision
}

type Deps struct {
	Tenants    tenant.Lookup
	Guard      Evaluator
	Prompts    PromptAssembler
	Loop       Runner
	Dispatcher dispatch.Dispatcher
	Observer   metrics.Observer
	Logger     *slog.Logger
}

type Service struct {
	tenants    tenant.Lookup
	guard      Evaluator
	prompts    PromptAssembler
	loop       Runner
	dispatcher dispatch.Dispatcher
	obs        metrics.Observer
	logger     *slog.Logger
}

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(deps.Logger)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.Noop{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	return &Service{
		tenants:    deps.Tenants,
		guard:      deps.Guard,
		prompts:    deps.Prompts,
		loop:       deps.Loop,
		dispatcher: deps.Dispatcher,
		obs:        deps.Observer,
		logger:     deps.Logger,
	}
}

// Resolve finds the active tenant for a dialed number. It returns an error
// matching tenant.ErrNotFound when there is none.
func (s *Service) Resolve(ctx context.Context, toNumber string) (*tenant.Config, error) {
	cfg, err := tenant.Resolve(ctx, s.tenants, toNumber)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, errorsx.Wrap(err, errorsx.ReasonTenantNotFound)
		}
		return nil, err
	}
	return cfg, nil
}

// Handle answers one turn for an already resolved tenant. The sink is always
// completed unless it stops accepting output.
func (s *Service) Handle(ctx context.Context, cfg *tenant.Config, req Request, sink agent.Sink) {
	logger := s.logger.With("call_id", req.CallID, "client_id", cfg.ID, "caller", redact.Phone(req.CallerNumber))
	out := &dispatchingSink{Sink: sink, svc: s, cfg: cfg, req: req, source: dispatch.SourceAgent, logger: logger}

	decision := s.guard.Evaluate(req.Messages, cfg)
	if decision.Action != guard.Proceed {
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventShortCircuit,
			Time:  time.Now(),
			Value: 1,
			Tags:  map[string]string{"action": string(decision.Action), "client_id": cfg.ID, "call_id": req.CallID},
		})
		logger.Info("guard_short_circuit", "action", decision.Action, "keyword", decision.Keyword, "behavior", decision.Behavior)
		text, disposition := shortCircuit(decision, cfg)
		out.source = dispatch.SourceGuard
		if err := out.Emit(ctx, text); err != nil {
			logger.Debug("conversation_sink_closed", "error", err)
			return
		}
		if err := out.Complete(ctx, disposition); err != nil {
			logger.Debug("conversation_sink_closed", "error", err)
		}
		return
	}

	turn := agent.Turn{CallID: req.CallID, Tenant: cfg, Messages: req.Messages}
	if isFirstTurn(req.Messages) && s.prompts != nil {
		turn.SystemPrompt = s.prompts.Assemble(cfg)
	}
	if err := s.loop.Run(ctx, turn, out); err != nil {
		logger.Error("agent_loop_failed", errorsx.Attrs(err)...)
		if err := out.Emit(ctx, msgLoopError); err != nil {
			return
		}
		_ = out.Complete(ctx, nil)
	}
}

func shortCircuit(d guard.Decision, cfg *tenant.Config) (string, *tools.Disposition) {
	switch d.Action {
	case guard.EmergencyTransfer:
		return msgEmergency, &tools.Disposition{
			Action:     tools.ActionTransfer,
			Priority:   tools.PriorityEmergency,
			TransferTo: cfg.CallConfig.TransferNumber,
			Reason:     "emergency keyword: " + d.Keyword,
		}
	case guard.AfterHours:
		switch d.Behavior {
		case "message_only":
			return fmt.Sprintf(msgAfterHoursMsg, cfg.CompanyName), nil
		case "emergency_transfer":
			return fmt.Sprintf(msgAfterHoursOnCall, cfg.CompanyName), nil
		default:
			return fmt.Sprintf(msgAfterHoursVM, cfg.CompanyName), nil
		}
	default:
		return msgEscalate, &tools.Disposition{
			Action:     tools.ActionTransfer,
			Priority:   tools.PriorityNormal,
			TransferTo: cfg.CallConfig.TransferNumber,
			Reason:     d.Reason,
		}
	}
}

// isFirstTurn reports whether the platform has not yet echoed a system
// prompt back in the history.
func isFirstTurn(messages []llm.Message) bool {
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			return false
		}
	}
	return true
}

// dispatchingSink forwards a non-nil disposition downstream once the caller
// stream has been completed.
type dispatchingSink struct {
	agent.Sink
	svc    *Service
	cfg    *tenant.Config
	req    Request
	source string
	logger *slog.Logger
}

func (d *dispatchingSink) Complete(ctx context.Context, disposition *tools.Disposition) error {
	err := d.Sink.Complete(ctx, disposition)
	if disposition == nil {
		return err
	}
	ev := dispatch.Event{
		CallID:         d.req.CallID,
		ProviderCallID: d.req.ProviderCallID,
		ClientID:       d.cfg.ID,
		CompanyName:    d.cfg.CompanyName,
		CallerNumber:   d.req.CallerNumber,
		Source:         d.source,
		Disposition:    *disposition,
		At:             time.Now().UTC(),
	}
	if derr := d.svc.dispatcher.Dispatch(context.WithoutCancel(ctx), ev); derr != nil {
		d.logger.Warn("disposition_dispatch_failed", errorsx.Attrs(derr)...)
	}
	return err
}
