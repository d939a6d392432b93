package events

import "errors"

// ErrAlreadyProcessed is returned when an event identifier is already in the
// ledger; callers acknowledge the delivery without re-running handlers.
var ErrAlreadyProcessed = errors.New("event already processed")

// PermanentError marks a failure that an immediate retry cannot fix
// (unresolvable plan id, malformed metadata). The event is still not marked
// processed, so a corrected redelivery can succeed.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a data-integrity failure rather than a
// transient one.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
