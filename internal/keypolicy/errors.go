package keypolicy

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidComponent    = errors.New("invalid key component")
	ErrNoKeyMaterial       = errors.New("no encryption key added")
	ErrUserCancelled       = errors.New("cancelled by user")
	ErrTransformFailed     = errors.New("failed to transform key with new KDF parameters")
	ErrHardwareUnavailable = errors.New("challenge-response device not detected")

	ErrInvalidTransition = errors.New("invalid key component transition")
	ErrDraftConsumed     = errors.New("key draft already committed")
	ErrSimpleMode        = errors.New("parameter is derived automatically in simple mode")
	ErrBenchmarkRunning  = errors.New("benchmark already running")
)

// CommitError describes why a commit attempt was rejected. Err is one of
// the ErrInvalidComponent, ErrNoKeyMaterial, ErrUserCancelled,
// ErrTransformFailed or ErrHardwareUnavailable sentinels.
type CommitError struct {
	Err     error
	Kind    Kind // zero unless the error concerns a single component
	Message string
	Cause   error
}

func (e *CommitError) Error() string {
	var msg string
	if e.Kind != 0 {
		msg = fmt.Sprintf("%s: %s", e.Err, e.Kind)
	} else {
		msg = e.Err.Error()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil && (e.Message == "" || e.Message != e.Cause.Error()) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommitError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func invalidComponent(kind Kind, cause error) *CommitError {
	return &CommitError{Err: ErrInvalidComponent, Kind: kind, Message: cause.Error(), Cause: cause}
}
