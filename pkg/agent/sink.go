package agent

import (
	"context"
	"errors"

	"github.com/harunnryd/frontdesk/pkg/tools"
)

// ErrSinkClosed is returned by a Sink that will accept no more output,
// typically because the caller hung up.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives the caller-facing output of one turn: any number of Emit
// calls followed by exactly one Complete. Disposition is nil unless the turn
// ends in a transfer.
type Sink interface {
	Emit(ctx context.Context, text string) error
	Complete(ctx context.Context, disposition *tools.Disposition) error
}
