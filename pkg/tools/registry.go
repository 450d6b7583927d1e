package tools

import (
	"context"

	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry maps tool names to tools, preserving registration order for
// advertisement. It is immutable after construction and safe for concurrent use.
type Registry struct {
	tools *orderedmap.OrderedMap[Name, Tool]
	defs  []llm.ToolDefinition
}

// NewRegistry builds the default tool set.
func NewRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	return New(
		newCheckAvailability(deps),
		newCreateJob(deps),
		newLookupCustomer(deps),
		newInitiatePayment(deps),
		newTransferCall(),
		newLogUnansweredQuestion(deps),
	)
}

// New builds a registry from an explicit tool list. A later tool with the
// same name replaces an earlier one.
func New(tools ...Tool) *Registry {
	r := &Registry{tools: orderedmap.New[Name, Tool]()}
	for _, t := range tools {
		r.tools.Set(Name(t.Definition().Name), t)
	}
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		r.defs = append(r.defs, pair.Value.Definition())
	}
	return r
}

// Execute runs the named tool against the tenant snapshot.
func (r *Registry) Execute(ctx context.Context, name Name, args map[string]any, cfg *tenant.Config) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, errorsx.Wrapf(errorsx.ReasonToolUnknown, "%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.Execute(ctx, args, cfg)
	if err != nil {
		return nil, errorsx.Wrapf(errorsx.ReasonToolExecute, "%s: %w", name, err)
	}
	return result, nil
}

// Defs returns every definition in registration order. Callers must not
// modify the returned slice.
func (r *Registry) Defs() []llm.ToolDefinition {
	return r.defs
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name Name) (Tool, bool) {
	return r.tools.Get(name)
}

func (r *Registry) IsTerminal(name Name) bool {
	t, ok := r.Lookup(name)
	return ok && t.Definition().Terminal
}
