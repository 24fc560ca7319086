package keypolicy

// WarningCode identifies an advisory condition that needs explicit user
// confirmation before a commit may proceed
type WarningCode int

const (
	WarningNoPasswordConfirmationRequired WarningCode = iota + 1
	WarningNoPassword
	WarningWeakPassword
	WarningRoundsTooHigh
	WarningRoundsTooLow
)

func (c WarningCode) String() string {
	switch c {
	case WarningNoPasswordConfirmationRequired:
		return "NoPasswordConfirmationRequired"
	case WarningNoPassword:
		return "NoPassword"
	case WarningWeakPassword:
		return "WeakPassword"
	case WarningRoundsTooHigh:
		return "RoundsTooHigh"
	case WarningRoundsTooLow:
		return "RoundsTooLow"
	}
	return "Unknown"
}

// Warning is shown to the user, who either accepts it or aborts the commit
type Warning struct {
	Code    WarningCode
	Title   string
	Message string
}

// Confirmer asks the user to accept a warning
type Confirmer interface {
	Confirm(w Warning) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(w Warning) bool

func (f ConfirmFunc) Confirm(w Warning) bool { return f(w) }

// AcceptAll confirms every warning; meant for non-interactive callers that
// were told to force the operation
var AcceptAll = ConfirmFunc(func(Warning) bool { return true })

// DeclineAll rejects every warning
var DeclineAll = ConfirmFunc(func(Warning) bool { return false })

// confirmAll stops at the first declined warning. A nil confirmer declines.
func confirmAll(c Confirmer, warnings []Warning) error {
	for _, w := range warnings {
		if c == nil || !c.Confirm(w) {
			return &CommitError{Err: ErrUserCancelled, Message: w.Title}
		}
	}
	return nil
}
