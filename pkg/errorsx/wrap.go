package errorsx

import (
	"errors"
	"fmt"
)

// Error tags an error with the reason it was classified under. The first
// classification wins: rewrapping an already tagged chain is a no-op.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

// Wrapf is Wrap over fmt.Errorf. A %w operand that is already tagged keeps
// its own reason.
func Wrapf(reason ReasonCode, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), reason)
}

// Reason returns the code of the first tag in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Reason
	}
	return ReasonUnknown
}

func Is(err error, reason ReasonCode) bool {
	return err != nil && Reason(err) == reason
}

// Attrs is the reason_code/error pair every failure log line carries.
func Attrs(err error) []any {
	return []any{"reason_code", string(Reason(err)), "error", err}
}
