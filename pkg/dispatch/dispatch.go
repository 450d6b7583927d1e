// Package dispatch forwards the routing intent a call ended with to the
// systems that act on it.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/harunnryd/frontdesk/pkg/tools"
)

// Event is one completed turn that ended in a disposition.
type Event struct {
	CallID         string            `json:"call_id"`
	ProviderCallID string            `json:"provider_call_id,omitempty"`
	ClientID       string            `json:"client_id"`
	CompanyName    string            `json:"company_name"`
	CallerNumber   string            `json:"caller_number,omitempty"`
	Source         string            `json:"source"`
	Disposition    tools.Disposition `json:"disposition"`
	At             time.Time         `json:"at"`
}

const (
	SourceGuard = "guard"
	SourceAgent = "agent"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Fanout sends an event to every dispatcher and joins their errors.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, ev Event) error {
	var errs []error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards events.
type Noop struct{}

func (Noop) Dispatch(context.Context, Event) error { return nil }
