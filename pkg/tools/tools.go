// Package tools holds the closed set of actions the model may invoke during a
// call and the registry that dispatches them by name.
package tools

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/configutil"
	"github.com/harunnryd/frontdesk/pkg/crm"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/payments"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/invopop/jsonschema"
)

// Name identifies one tool in the closed set.
type Name string

const (
	CheckAvailability     Name = "check_availability"
	CreateJob             Name = "create_job"
	LookupCustomer        Name = "lookup_customer"
	InitiatePayment       Name = "initiate_payment"
	TransferCall          Name = "transfer_call"
	LogUnansweredQuestion Name = "log_unanswered_question"
)

// ErrUnknownTool is returned when the model names a tool outside the set.
var ErrUnknownTool = errors.New("unknown tool")

const (
	PriorityNormal    = "normal"
	PriorityEmergency = "emergency"

	ActionTransfer = "transfer"
)

// Disposition is the routing intent a call ends with. The core never moves
// the call itself; downstream dispatch acts on it.
type Disposition struct {
	Action         string `json:"action"`
	TransferTo     string `json:"transfer_to"`
	Priority       string `json:"priority"`
	Reason         string `json:"reason,omitempty"`
	HandoffSummary string `json:"handoff_summary,omitempty"`
}

// AsDisposition recovers a Disposition from a terminal tool's result.
func AsDisposition(result any) (*Disposition, bool) {
	switch v := result.(type) {
	case Disposition:
		return &v, true
	case *Disposition:
		return v, v != nil
	}
	return nil, false
}

// Tool is one executable action plus the definition advertised to the model.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]any, cfg *tenant.Config) (any, error)
}

// CRMSource hands out the CRM client for a tenant.
type CRMSource interface {
	For(cfg *tenant.Config) crm.Provider
}

// Deps are the collaborators the default tools call out to.
type Deps struct {
	CRM      CRMSource
	Payments payments.Creator
	CallLogs calllog.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.CRM == nil {
		d.CRM = staticCRM{crm.NewStub()}
	}
	if d.Payments == nil {
		d.Payments = payments.NewStripe(payments.StripeConfig{})
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type staticCRM struct{ p crm.Provider }

func (s staticCRM) For(*tenant.Config) crm.Provider { return s.p }

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// typed adapts a function over a typed argument struct to Tool. Fields whose
// json tag lacks omitempty are required.
type typed[A any] struct {
	def      llm.ToolDefinition
	required []string
	run      func(ctx context.Context, args A, cfg *tenant.Config) (any, error)
}

func newTool[A any](name Name, description string, terminal bool, run func(context.Context, A, *tenant.Config) (any, error)) *typed[A] {
	var zero A
	schema := reflector.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""
	return &typed[A]{
		def: llm.ToolDefinition{
			Name:        string(name),
			Description: description,
			Schema:      schema,
			Terminal:    terminal,
		},
		required: schema.Required,
		run:      run,
	}
}

func (t *typed[A]) Definition() llm.ToolDefinition { return t.def }

func (t *typed[A]) Execute(ctx context.Context, args map[string]any, cfg *tenant.Config) (any, error) {
	var a A
	if err := configutil.Decode("", args, configutil.Schema{Required: t.required, AllowUnknown: true}, &a); err != nil {
		return nil, err
	}
	return t.run(ctx, a, cfg)
}
