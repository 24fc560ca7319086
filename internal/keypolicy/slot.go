package keypolicy

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/keys"
)

// Kind is a kind of master key material
type Kind int

const (
	KindPassword Kind = iota + 1
	KindKeyFile
	KindChallengeResponse
)

// Kinds lists every kind in the order components are added to a key
var Kinds = []Kind{KindPassword, KindKeyFile, KindChallengeResponse}

func (k Kind) String() string {
	switch k {
	case KindPassword:
		return "Password"
	case KindKeyFile:
		return "Key File"
	case KindChallengeResponse:
		return "Challenge-Response"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindOf maps a key component UUID to its kind
func KindOf(id uuid.UUID) (Kind, bool) {
	switch id {
	case keys.PasswordKeyUUID:
		return KindPassword, true
	case keys.FileKeyUUID:
		return KindKeyFile, true
	case keys.ChallengeResponseKeyUUID:
		return KindChallengeResponse, true
	}
	return 0, false
}

// State of a slot within an edit session
type State int

const (
	StateAbsent State = iota
	StateStagedForAdd
	StatePresent
	StateStagedForRemoval
	StateStagedForEdit
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStagedForAdd:
		return "staged for add"
	case StatePresent:
		return "present"
	case StateStagedForRemoval:
		return "staged for removal"
	case StateStagedForEdit:
		return "staged for edit"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Material is the key object a slot contributes. Exactly one field is set.
type Material struct {
	Key               keys.Key
	ChallengeResponse keys.ChallengeResponseKey
}

func (m Material) addTo(c *keys.CompositeKey) {
	if m.Key != nil {
		c.AddKey(m.Key)
	}
	if m.ChallengeResponse != nil {
		c.AddChallengeResponseKey(m.ChallengeResponse)
	}
}

// Slot is the session view of one key component kind
type Slot struct {
	kind     Kind
	state    State
	prior    State // state to return to on CancelEdit
	initial  State // state at Initialize
	existing []Material
	editor   Editor
}

func (s Slot) Kind() Kind { return s.kind }

// State returns the slot's current state
func (s Slot) State() State { return s.state }

// Editor returns the staged editor, nil unless StagedForEdit
func (s Slot) Editor() Editor { return s.editor }

// HasPayload reports whether the slot holds material or a staged editor
func (s Slot) HasPayload() bool {
	return len(s.existing) > 0 || s.editor != nil
}

// Pending describes the change a commit would make to this slot:
// StagedForAdd for a new component, StagedForEdit for a replacement,
// StagedForRemoval for a component that existed and was removed, otherwise
// the current state.
func (s Slot) Pending() State {
	switch {
	case s.state == StateStagedForEdit && s.prior == StateAbsent:
		return StateStagedForAdd
	case s.state == StateAbsent && s.initial == StatePresent:
		return StateStagedForRemoval
	}
	return s.state
}

type op int

const (
	opAdd op = iota
	opEdit
	opRemove
	opCancel
)

func (o op) String() string {
	return [...]string{"add", "edit", "remove", "cancel"}[o]
}

// transition is the slot state machine. cancel is resolved by the caller
// since its target depends on the prior state.
func transition(from State, o op) (State, error) {
	switch {
	case o == opAdd && from == StateAbsent:
		return StateStagedForEdit, nil
	case o == opEdit && from == StatePresent:
		return StateStagedForEdit, nil
	case o == opRemove && from == StatePresent:
		return StateAbsent, nil
	case o == opCancel && from == StateStagedForEdit:
		return StateStagedForEdit, nil
	}
	return from, fmt.Errorf("%w: cannot %s a component that is %s", ErrInvalidTransition, o, from)
}
