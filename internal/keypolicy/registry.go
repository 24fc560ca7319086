package keypolicy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/illarion/vaultkey/internal/hardware"
	"github.com/illarion/vaultkey/internal/keys"
)

// Registry tracks the key components of one master key edit session and
// assembles the resulting composite key. It is not safe for concurrent use.
type Registry struct {
	slots    [3]Slot
	consumed bool

	minPasswordScore int
	logger           *slog.Logger
}

// NewRegistry returns a registry with every slot Absent
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	r := &Registry{minPasswordScore: o.minPasswordScore, logger: o.logger}
	r.Reset()
	return r
}

func index(kind Kind) (int, error) {
	if kind < KindPassword || kind > KindChallengeResponse {
		return 0, fmt.Errorf("%w: unknown component kind %d", ErrInvalidTransition, int(kind))
	}
	return int(kind) - 1, nil
}

// Reset starts a session for a database without a key
func (r *Registry) Reset() {
	for i, kind := range Kinds {
		r.slots[i] = Slot{kind: kind}
	}
	r.consumed = false
}

// Initialize starts a session from the components of existing. Kinds found
// in existing become Present and keep their key objects; the rest are Absent.
func (r *Registry) Initialize(existing *keys.CompositeKey) {
	r.Reset()
	if existing.IsEmpty() {
		return
	}

	present := func(kind Kind, m Material) {
		s := &r.slots[int(kind)-1]
		s.state, s.prior, s.initial = StatePresent, StatePresent, StatePresent
		s.existing = append(s.existing, m)
	}
	for _, k := range existing.Keys() {
		if kind, ok := KindOf(k.UUID()); ok {
			present(kind, Material{Key: k})
		} else {
			r.logger.Warn("ignoring unknown key component", "uuid", k.UUID())
		}
	}
	for _, k := range existing.ChallengeResponseKeys() {
		present(KindChallengeResponse, Material{ChallengeResponse: k})
	}
}

func (r *Registry) apply(kind Kind, o op, editor Editor) error {
	if r.consumed {
		return ErrDraftConsumed
	}
	i, err := index(kind)
	if err != nil {
		return err
	}
	if (o == opAdd || o == opEdit) && (editor == nil || editor.Kind() != kind) {
		return fmt.Errorf("%w: editor does not match %s", ErrInvalidTransition, kind)
	}

	s := &r.slots[i]
	next, err := transition(s.state, o)
	if err != nil {
		return err
	}

	switch o {
	case opAdd, opEdit:
		s.prior = s.state
		s.editor = editor
	case opRemove:
		s.existing = nil
	case opCancel:
		next = s.prior
		s.editor = nil
	}
	s.state = next
	return nil
}

// RequestAdd stages editor for an Absent kind
func (r *Registry) RequestAdd(kind Kind, editor Editor) error {
	return r.apply(kind, opAdd, editor)
}

// RequestEdit stages editor to replace a Present kind
func (r *Registry) RequestEdit(kind Kind, editor Editor) error {
	return r.apply(kind, opEdit, editor)
}

// RequestRemove drops a Present kind
func (r *Registry) RequestRemove(kind Kind) error {
	return r.apply(kind, opRemove, nil)
}

// CancelEdit discards the staged editor and restores the pre-edit state
func (r *Registry) CancelEdit(kind Kind) error {
	return r.apply(kind, opCancel, nil)
}

// Slot returns the slot of kind
func (r *Registry) Slot(kind Kind) (Slot, bool) {
	i, err := index(kind)
	if err != nil {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Slots returns all slots in component order
func (r *Registry) Slots() []Slot {
	return append([]Slot(nil), r.slots[:]...)
}

// Changed reports whether a commit would differ from the initial key
func (r *Registry) Changed() bool {
	for _, s := range r.slots {
		if s.state == StateStagedForEdit || s.state != s.initial {
			return true
		}
	}
	return false
}

// Consumed reports whether a commit already succeeded
func (r *Registry) Consumed() bool { return r.consumed }

func editorError(kind Kind, err error) error {
	if errors.Is(err, hardware.ErrNotDetected) {
		return &CommitError{Err: ErrHardwareUnavailable, Kind: kind, Cause: err}
	}
	return invalidComponent(kind, err)
}

// Commit validates every staged editor and assembles the composite key.
// Warnings are passed to confirm one at a time; a nil confirm declines
// them. On error the session is left as it was so the commit can be
// retried; on success the session is consumed.
func (r *Registry) Commit(ctx context.Context, confirm Confirmer) (*keys.CompositeKey, error) {
	if r.consumed {
		return nil, ErrDraftConsumed
	}

	for _, s := range r.slots {
		if s.state != StateStagedForEdit {
			continue
		}
		if err := s.editor.Validate(); err != nil {
			return nil, editorError(s.kind, err)
		}
	}

	key := keys.NewCompositeKey()
	contributors := make(map[Kind]State)
	for _, s := range r.slots {
		switch s.state {
		case StatePresent:
			for _, m := range s.existing {
				m.addTo(key)
			}
			contributors[s.kind] = StatePresent
		case StateStagedForEdit:
			m, err := s.editor.Materialize(ctx)
			if err != nil {
				return nil, editorError(s.kind, err)
			}
			m.addTo(key)
			contributors[s.kind] = StateStagedForEdit
		}
	}

	if key.IsEmpty() {
		return nil, &CommitError{Err: ErrNoKeyMaterial}
	}

	if err := confirmAll(confirm, r.warnings(contributors)); err != nil {
		return nil, err
	}

	r.consumed = true
	r.logger.Debug("master key assembled", "components", len(key.Components()))
	return key, nil
}

func (r *Registry) warnings(contributors map[Kind]State) []Warning {
	var out []Warning

	pw, hasPassword := contributors[KindPassword]
	newPassword := hasPassword && pw == StateStagedForEdit

	if newPassword && len(contributors) == 1 {
		out = append(out, Warning{
			Code:    WarningNoPasswordConfirmationRequired,
			Title:   "Password is the only key",
			Message: "The database will be protected by the new password alone. It cannot be recovered if you forget it.",
		})
	}
	if !hasPassword {
		out = append(out, Warning{
			Code:    WarningNoPassword,
			Title:   "No password set",
			Message: "You have not set a password. Using a database without a password is strongly discouraged.",
		})
	}
	if newPassword && r.minPasswordScore > 0 {
		if pe, ok := r.slots[KindPassword-1].editor.(*PasswordEditor); ok {
			if score, crack := pe.Strength(); score < r.minPasswordScore {
				out = append(out, Warning{
					Code:    WarningWeakPassword,
					Title:   "Weak password",
					Message: fmt.Sprintf("The password scores %d of 4 and could be cracked in %s.", score, crack),
				})
			}
		}
	}
	return out
}
