package keypolicy

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/vaultkey/internal/hardware"
	"github.com/illarion/vaultkey/internal/keys"
)

type fakeDetector struct {
	result hardware.DetectResult
}

func (d *fakeDetector) Detect(_ context.Context) <-chan hardware.DetectResult {
	out := make(chan hardware.DetectResult, 1)
	out <- d.result
	close(out)
	return out
}

func (d *fakeDetector) Challenge(_ context.Context, slot int, challenge []byte) ([]byte, error) {
	if d.result.Err != nil {
		return nil, d.result.Err
	}
	return append([]byte{byte(slot)}, challenge...), nil
}

// recorder accepts or declines every warning and remembers what it saw
type recorder struct {
	accept bool
	seen   []WarningCode
}

func (r *recorder) Confirm(w Warning) bool {
	r.seen = append(r.seen, w.Code)
	return r.accept
}

func passwordEditor(pw string) *PasswordEditor {
	e := NewPasswordEditor()
	e.SetPassword([]byte(pw))
	e.SetRepeat([]byte(pw))
	return e
}

func writeKeyFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}
	return path
}

func existingKey(t *testing.T) (*keys.CompositeKey, *keys.FileKey) {
	t.Helper()
	path := writeKeyFile(t, t.TempDir(), "existing.key", []byte("existing key file content"))
	fk, err := keys.LoadFileKey(path)
	if err != nil {
		t.Fatalf("LoadFileKey failed: %v", err)
	}
	key := keys.NewCompositeKey()
	key.AddKey(keys.NewPasswordKey([]byte("old password")))
	key.AddKey(fk)
	return key, fk
}

func stateOf(t *testing.T, r *Registry, kind Kind) State {
	t.Helper()
	s, ok := r.Slot(kind)
	if !ok {
		t.Fatalf("No slot for %s", kind)
	}
	return s.State()
}

func TestInitialize(t *testing.T) {
	existing, _ := existingKey(t)
	r := NewRegistry()
	r.Initialize(existing)

	want := map[Kind]State{
		KindPassword:          StatePresent,
		KindKeyFile:           StatePresent,
		KindChallengeResponse: StateAbsent,
	}
	for kind, state := range want {
		if got := stateOf(t, r, kind); got != state {
			t.Errorf("%s: expected %s, got %s", kind, state, got)
		}
	}

	// idempotent
	r.Initialize(existing)
	for kind, state := range want {
		if got := stateOf(t, r, kind); got != state {
			t.Errorf("After second Initialize %s: expected %s, got %s", kind, state, got)
		}
	}
	if r.Changed() {
		t.Error("Freshly initialized registry should not report changes")
	}

	r.Initialize(nil)
	for _, kind := range Kinds {
		if got := stateOf(t, r, kind); got != StateAbsent {
			t.Errorf("Initialize(nil) %s: expected absent, got %s", kind, got)
		}
	}
}

func TestTransitions(t *testing.T) {
	existing, _ := existingKey(t)

	tests := []struct {
		name    string
		kind    Kind
		run     func(r *Registry) error
		want    State
		wantErr bool
	}{
		{"add absent", KindChallengeResponse, func(r *Registry) error {
			return r.RequestAdd(KindChallengeResponse, NewChallengeResponseEditor(&fakeDetector{}))
		}, StateStagedForEdit, false},
		{"add present", KindPassword, func(r *Registry) error {
			return r.RequestAdd(KindPassword, passwordEditor("x"))
		}, StatePresent, true},
		{"edit present", KindPassword, func(r *Registry) error {
			return r.RequestEdit(KindPassword, passwordEditor("x"))
		}, StateStagedForEdit, false},
		{"edit absent", KindChallengeResponse, func(r *Registry) error {
			return r.RequestEdit(KindChallengeResponse, NewChallengeResponseEditor(&fakeDetector{}))
		}, StateAbsent, true},
		{"remove present", KindKeyFile, func(r *Registry) error {
			return r.RequestRemove(KindKeyFile)
		}, StateAbsent, false},
		{"remove absent", KindChallengeResponse, func(r *Registry) error {
			return r.RequestRemove(KindChallengeResponse)
		}, StateAbsent, true},
		{"cancel present", KindPassword, func(r *Registry) error {
			return r.CancelEdit(KindPassword)
		}, StatePresent, true},
		{"editor of wrong kind", KindPassword, func(r *Registry) error {
			return r.RequestEdit(KindPassword, NewKeyFileEditor(""))
		}, StatePresent, true},
		{"nil editor", KindChallengeResponse, func(r *Registry) error {
			return r.RequestAdd(KindChallengeResponse, nil)
		}, StateAbsent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Initialize(existing)
			err := tt.run(r)
			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if got := stateOf(t, r, tt.kind); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if err := NewRegistry().RequestRemove(Kind(42)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for unknown kind, got %v", err)
	}
}

func TestCancelEditRestoresPriorState(t *testing.T) {
	existing, _ := existingKey(t)
	r := NewRegistry()
	r.Initialize(existing)

	if err := r.RequestEdit(KindPassword, passwordEditor("new")); err != nil {
		t.Fatalf("RequestEdit failed: %v", err)
	}
	if s, _ := r.Slot(KindPassword); s.Pending() != StateStagedForEdit {
		t.Errorf("Expected pending edit, got %s", s.Pending())
	}
	if err := r.CancelEdit(KindPassword); err != nil {
		t.Fatalf("CancelEdit failed: %v", err)
	}
	s, _ := r.Slot(KindPassword)
	if s.State() != StatePresent || s.Editor() != nil || !s.HasPayload() {
		t.Errorf("Expected present slot with original payload, got %s editor=%v", s.State(), s.Editor())
	}

	if err := r.RequestAdd(KindChallengeResponse, NewChallengeResponseEditor(&fakeDetector{})); err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	if s, _ := r.Slot(KindChallengeResponse); s.Pending() != StateStagedForAdd {
		t.Errorf("Expected pending add, got %s", s.Pending())
	}
	if err := r.CancelEdit(KindChallengeResponse); err != nil {
		t.Fatalf("CancelEdit failed: %v", err)
	}
	if s, _ := r.Slot(KindChallengeResponse); s.State() != StateAbsent || s.HasPayload() {
		t.Errorf("Expected empty absent slot, got %s", s.State())
	}

	if err := r.RequestRemove(KindKeyFile); err != nil {
		t.Fatalf("RequestRemove failed: %v", err)
	}
	if s, _ := r.Slot(KindKeyFile); s.Pending() != StateStagedForRemoval {
		t.Errorf("Expected pending removal, got %s", s.Pending())
	}
	if !r.Changed() {
		t.Error("Removal should count as a change")
	}
}

// Every sequence of operations keeps the slot in a defined state whose
// payload matches it, and cancel always restores the pre-edit state.
func TestSlotStateMachineSequences(t *testing.T) {
	existing, _ := existingKey(t)
	ops := []string{"add", "edit", "remove", "cancel"}
	const depth = 5

	var walk func(seq []string)
	walk = func(seq []string) {
		if len(seq) == depth {
			return
		}
		for _, name := range ops {
			next := NewRegistry()
			next.Initialize(existing)
			for _, prev := range seq {
				applyOp(next, prev)
			}

			before := stateOf(t, next, KindPassword)
			beforeSlot, _ := next.Slot(KindPassword)
			applyOp(next, name)
			s, _ := next.Slot(KindPassword)

			switch s.State() {
			case StateAbsent, StatePresent, StateStagedForEdit:
			default:
				t.Fatalf("%v+%s: undefined state %s", seq, name, s.State())
			}
			wantPayload := s.State() == StatePresent || s.State() == StateStagedForEdit
			if s.HasPayload() != wantPayload {
				t.Fatalf("%v+%s: payload=%v in state %s", seq, name, s.HasPayload(), s.State())
			}
			if name == "cancel" && before == StateStagedForEdit && s.State() != beforeSlot.prior {
				t.Fatalf("%v+cancel: expected %s, got %s", seq, beforeSlot.prior, s.State())
			}
			walk(append(append([]string(nil), seq...), name))
		}
	}
	walk(nil)
}

func applyOp(r *Registry, name string) {
	switch name {
	case "add":
		_ = r.RequestAdd(KindPassword, passwordEditor("pw"))
	case "edit":
		_ = r.RequestEdit(KindPassword, passwordEditor("pw"))
	case "remove":
		_ = r.RequestRemove(KindPassword)
	case "cancel":
		_ = r.CancelEdit(KindPassword)
	}
}

func TestCommitNoKeyMaterial(t *testing.T) {
	r := NewRegistry()
	_, err := r.Commit(context.Background(), AcceptAll)
	if !errors.Is(err, ErrNoKeyMaterial) {
		t.Fatalf("Expected ErrNoKeyMaterial, got %v", err)
	}

	existing, _ := existingKey(t)
	r.Initialize(existing)
	_ = r.RequestRemove(KindPassword)
	_ = r.RequestRemove(KindKeyFile)
	if _, err := r.Commit(context.Background(), AcceptAll); !errors.Is(err, ErrNoKeyMaterial) {
		t.Fatalf("Expected ErrNoKeyMaterial after removing everything, got %v", err)
	}
}

func TestCommitNewPasswordOnlyNeedsConfirmation(t *testing.T) {
	r := NewRegistry()
	if err := r.RequestAdd(KindPassword, passwordEditor("hunter2")); err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}

	decline := &recorder{}
	_, err := r.Commit(context.Background(), decline)
	if !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if len(decline.seen) != 1 || decline.seen[0] != WarningNoPasswordConfirmationRequired {
		t.Fatalf("Expected a single NoPasswordConfirmationRequired warning, got %v", decline.seen)
	}
	if stateOf(t, r, KindPassword) != StateStagedForEdit || r.Consumed() {
		t.Fatal("Declined commit must leave the draft unmodified")
	}

	if _, err := r.Commit(context.Background(), nil); !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("nil confirmer should decline, got %v", err)
	}

	accept := &recorder{accept: true}
	key, err := r.Commit(context.Background(), accept)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got := key.Components(); len(got) != 1 || got[0] != keys.PasswordKeyUUID {
		t.Errorf("Unexpected components: %v", got)
	}

	if _, err := r.Commit(context.Background(), AcceptAll); !errors.Is(err, ErrDraftConsumed) {
		t.Errorf("Expected ErrDraftConsumed, got %v", err)
	}
	if err := r.RequestRemove(KindPassword); !errors.Is(err, ErrDraftConsumed) {
		t.Errorf("Expected ErrDraftConsumed, got %v", err)
	}
}

func TestCommitCarriedForwardPasswordNeedsNoConfirmation(t *testing.T) {
	existing, _ := existingKey(t)
	r := NewRegistry()
	r.Initialize(existing)
	_ = r.RequestRemove(KindKeyFile)

	key, err := r.Commit(context.Background(), DeclineAll)
	if err != nil {
		t.Fatalf("Commit with a carried-forward password should not warn: %v", err)
	}
	if got := key.Components(); len(got) != 1 || got[0] != keys.PasswordKeyUUID {
		t.Errorf("Removed key file must not contribute: %v", got)
	}
}

func TestCommitCarriesForwardIdenticalMaterial(t *testing.T) {
	ctx := context.Background()
	existing, fk := existingKey(t)

	r := NewRegistry()
	r.Initialize(existing)
	key, err := r.Commit(ctx, DeclineAll)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	before, _ := existing.RawKey(ctx, []byte("seed"))
	after, _ := key.RawKey(ctx, []byte("seed"))
	if !bytes.Equal(before, after) {
		t.Error("Carried-forward key must be byte-identical")
	}
	if got := key.Keys(); len(got) != 2 || got[1] != keys.Key(fk) {
		t.Error("Carried-forward key file must be the same key object")
	}
}

func TestCommitInvalidComponent(t *testing.T) {
	tests := []struct {
		name   string
		editor *PasswordEditor
		want   error
	}{
		{"empty", NewPasswordEditor(), ErrEmptyPassword},
		{"mismatch", func() *PasswordEditor {
			e := NewPasswordEditor()
			e.SetPassword([]byte("one"))
			e.SetRepeat([]byte("two"))
			return e
		}(), ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			_ = r.RequestAdd(KindPassword, tt.editor)
			_, err := r.Commit(context.Background(), AcceptAll)
			if !errors.Is(err, ErrInvalidComponent) || !errors.Is(err, tt.want) {
				t.Fatalf("Expected ErrInvalidComponent wrapping %v, got %v", tt.want, err)
			}
			var ce *CommitError
			if !errors.As(err, &ce) || ce.Kind != KindPassword {
				t.Errorf("Expected CommitError for password, got %#v", err)
			}
		})
	}
}

func TestCommitInvalidComponentAbortsWholeCommit(t *testing.T) {
	existing, _ := existingKey(t)
	r := NewRegistry()
	r.Initialize(existing)
	_ = r.RequestEdit(KindPassword, passwordEditor("fine"))
	_ = r.RequestEdit(KindKeyFile, NewKeyFileEditor(""))

	if _, err := r.Commit(context.Background(), AcceptAll); !errors.Is(err, ErrNoKeyFile) {
		t.Fatalf("Expected ErrNoKeyFile, got %v", err)
	}
	if stateOf(t, r, KindPassword) != StateStagedForEdit || stateOf(t, r, KindKeyFile) != StateStagedForEdit {
		t.Error("Failed commit must not change slots")
	}
}

func TestCommitChallengeResponse(t *testing.T) {
	ctx := context.Background()

	missing := NewChallengeResponseEditor(&fakeDetector{result: hardware.DetectResult{Err: hardware.ErrNotDetected}})
	<-missing.Poll(ctx)
	r := NewRegistry()
	_ = r.RequestAdd(KindPassword, passwordEditor("pw"))
	_ = r.RequestAdd(KindChallengeResponse, missing)
	_, err := r.Commit(ctx, AcceptAll)
	if !errors.Is(err, ErrHardwareUnavailable) {
		t.Fatalf("Expected ErrHardwareUnavailable, got %v", err)
	}

	device := &fakeDetector{result: hardware.DetectResult{Slots: []hardware.Slot{
		{Number: 1, Name: "token"},
		{Number: 2, Name: "token", Blocking: true},
	}}}
	found := NewChallengeResponseEditor(device)
	if res := <-found.Poll(ctx); res.Err != nil {
		t.Fatalf("Poll failed: %v", res.Err)
	}
	if err := found.Select(2); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if err := found.Select(3); !errors.Is(err, hardware.ErrInvalidSlot) {
		t.Errorf("Expected ErrInvalidSlot, got %v", err)
	}

	_ = r.CancelEdit(KindChallengeResponse)
	if err := r.RequestAdd(KindChallengeResponse, found); err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
	key, err := r.Commit(ctx, AcceptAll)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	cr := key.ChallengeResponseKeys()
	if len(cr) != 1 {
		t.Fatalf("Expected one challenge-response key, got %d", len(cr))
	}
	if sk, ok := cr[0].(*keys.SlotKey); !ok || sk.Slot().Number != 2 || !sk.Slot().Blocking {
		t.Errorf("Unexpected challenge-response key %v", cr[0])
	}
}

func TestCommitWarnings(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, "only.key", []byte("key file only"))

	t.Run("no password", func(t *testing.T) {
		r := NewRegistry()
		e := NewKeyFileEditor(filepath.Join(dir, "db.vault"))
		e.SetPath(keyPath)
		_ = r.RequestAdd(KindKeyFile, e)

		rec := &recorder{accept: true}
		if _, err := r.Commit(context.Background(), rec); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		if len(rec.seen) != 1 || rec.seen[0] != WarningNoPassword {
			t.Errorf("Expected NoPassword warning, got %v", rec.seen)
		}
	})

	t.Run("weak password", func(t *testing.T) {
		r := NewRegistry(WithMinPasswordScore(3))
		_ = r.RequestAdd(KindPassword, passwordEditor("password"))

		rec := &recorder{accept: true}
		if _, err := r.Commit(context.Background(), rec); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		want := []WarningCode{WarningNoPasswordConfirmationRequired, WarningWeakPassword}
		if len(rec.seen) != len(want) || rec.seen[0] != want[0] || rec.seen[1] != want[1] {
			t.Errorf("Expected %v, got %v", want, rec.seen)
		}
	})
}

func TestKeyFileEditor(t *testing.T) {
	dir := t.TempDir()
	dbPath := writeKeyFile(t, dir, "db.vault", []byte("database"))

	e := NewKeyFileEditor(dbPath)
	e.SetPath(dbPath)
	if err := e.Validate(); !errors.Is(err, ErrKeyFileIsVault) {
		t.Errorf("Expected ErrKeyFileIsVault, got %v", err)
	}

	path, err := e.Generate(dir, "new.key")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if e.Path() != path {
		t.Errorf("Generated key file should be selected, got %s", e.Path())
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Generated key file should be valid: %v", err)
	}
	m, err := e.Materialize(context.Background())
	if err != nil || m.Key == nil || len(m.Key.RawKey()) != 32 {
		t.Errorf("Materialize failed: %v", err)
	}

	if _, err := e.Generate(dir, "new.key"); !errors.Is(err, ErrKeyFileExists) {
		t.Errorf("Expected ErrKeyFileExists, got %v", err)
	}
	if _, err := e.Generate(dir, "../escape.key"); err == nil {
		t.Error("Expected error for key file outside dir")
	}
}

func TestPasswordStrength(t *testing.T) {
	e := NewPasswordEditor()
	if score, _ := e.Strength(); score != 0 {
		t.Errorf("Empty password should score 0, got %d", score)
	}
	e.SetPassword([]byte("password"))
	if score, _ := e.Strength(); score > 1 {
		t.Errorf("Common password should score low, got %d", score)
	}
	e.Clear()
	if err := e.Validate(); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("Expected ErrEmptyPassword after Clear, got %v", err)
	}
}
