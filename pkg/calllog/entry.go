package calllog

import (
	"context"
	"time"
)

const (
	OutcomeUnansweredQuestion = "unanswered_question"
	OutcomeUnknown            = "unknown"
)

// Entry is one row of the per-tenant call history.
type Entry struct {
	ID              int64     `json:"id"`
	ClientID        string    `json:"client_id"`
	CallID          string    `json:"call_id"`
	CallerNumber    string    `json:"caller_number,omitempty"`
	Outcome         string    `json:"outcome"`
	Summary         string    `json:"summary,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Recorder interface {
	InsertCallLog(ctx context.Context, e Entry) error
}
