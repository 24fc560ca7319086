package keypolicy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/hardware"
	"github.com/illarion/vaultkey/internal/keys"
	"github.com/illarion/vaultkey/internal/security"
	"github.com/nbutton23/zxcvbn-go"
)

var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNoKeyFile        = errors.New("no key file selected")
	ErrKeyFileIsVault   = errors.New("the database file cannot be its own key file")
	ErrKeyFileExists    = errors.New("key file already exists")
	ErrNoSlotSelected   = errors.New("no challenge-response slot selected")
)

// Editor collects and validates the input for one key component kind
type Editor interface {
	Kind() Kind
	Validate() error
	Materialize(ctx context.Context) (Material, error)
}

// PasswordEditor collects a new password and its confirmation
type PasswordEditor struct {
	password []byte
	repeat   []byte
}

func NewPasswordEditor() *PasswordEditor {
	return &PasswordEditor{}
}

func (e *PasswordEditor) Kind() Kind { return KindPassword }

// SetPassword stores a copy of password
func (e *PasswordEditor) SetPassword(password []byte) {
	crypto.ClearBytes(e.password)
	e.password = append([]byte(nil), password...)
}

// SetRepeat stores a copy of the confirmation
func (e *PasswordEditor) SetRepeat(repeat []byte) {
	crypto.ClearBytes(e.repeat)
	e.repeat = append([]byte(nil), repeat...)
}

func (e *PasswordEditor) Validate() error {
	if len(e.password) == 0 {
		return ErrEmptyPassword
	}
	if !crypto.ConstantTimeCompare(e.password, e.repeat) {
		return ErrPasswordMismatch
	}
	return nil
}

func (e *PasswordEditor) Materialize(_ context.Context) (Material, error) {
	if err := e.Validate(); err != nil {
		return Material{}, err
	}
	return Material{Key: keys.NewPasswordKey(e.password)}, nil
}

// Strength estimates the password with zxcvbn. Score ranges 0..4.
func (e *PasswordEditor) Strength() (score int, crackTime string) {
	if len(e.password) == 0 {
		return 0, "instant"
	}
	m := zxcvbn.PasswordStrength(string(e.password), nil)
	return m.Score, m.CrackTimeDisplay
}

// Clear wipes the entered password
func (e *PasswordEditor) Clear() {
	crypto.ClearBytes(e.password)
	crypto.ClearBytes(e.repeat)
	e.password, e.repeat = nil, nil
}

// KeyFileEditor selects an existing key file or generates a new one
type KeyFileEditor struct {
	databasePath string
	path         string
}

// NewKeyFileEditor returns an editor for the database at databasePath,
// which is never accepted as a key file
func NewKeyFileEditor(databasePath string) *KeyFileEditor {
	return &KeyFileEditor{databasePath: databasePath}
}

func (e *KeyFileEditor) Kind() Kind { return KindKeyFile }

func (e *KeyFileEditor) SetPath(path string) { e.path = path }
func (e *KeyFileEditor) Path() string        { return e.path }

func (e *KeyFileEditor) Validate() error {
	if e.path == "" {
		return ErrNoKeyFile
	}
	info, err := os.Stat(e.path)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return keys.ErrKeyFileNotFile
	}
	if info.Size() == 0 {
		return keys.ErrEmptyKeyFile
	}
	if e.databasePath != "" {
		if dbInfo, err := os.Stat(e.databasePath); err == nil && os.SameFile(info, dbInfo) {
			return ErrKeyFileIsVault
		}
	}
	return nil
}

func (e *KeyFileEditor) Materialize(_ context.Context) (Material, error) {
	if err := e.Validate(); err != nil {
		return Material{}, err
	}
	key, err := keys.LoadFileKey(e.path)
	if err != nil {
		return Material{}, err
	}
	return Material{Key: key}, nil
}

// Generate writes a new random key file named name inside dir and selects
// it. Existing files are never overwritten.
func (e *KeyFileEditor) Generate(dir, name string) (string, error) {
	pv, err := security.New(dir)
	if err != nil {
		return "", err
	}
	defer pv.Close()

	rel, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return "", err
	}
	data, err := keys.GenerateKeyFileData()
	if err != nil {
		return "", fmt.Errorf("failed to generate key file: %w", err)
	}
	defer crypto.ClearBytes(data)

	if err := pv.CreateFileInRoot(rel, data, 0600); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrKeyFileExists, rel)
		}
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	e.path = filepath.Join(pv.Root(), filepath.FromSlash(rel))
	return e.path, nil
}

// ChallengeResponseEditor binds a challenge-response slot reported by an
// injected detector
type ChallengeResponseEditor struct {
	device hardware.DetectorDevice

	mu        sync.Mutex
	slots     []hardware.Slot
	selected  int
	detectErr error
	polling   bool
}

func NewChallengeResponseEditor(device hardware.DetectorDevice) *ChallengeResponseEditor {
	return &ChallengeResponseEditor{device: device, selected: -1, detectErr: hardware.ErrNotDetected}
}

func (e *ChallengeResponseEditor) Kind() Kind { return KindChallengeResponse }

// Poll starts device detection and returns immediately. The returned
// channel delivers the result once it was recorded by the editor.
func (e *ChallengeResponseEditor) Poll(ctx context.Context) <-chan hardware.DetectResult {
	out := make(chan hardware.DetectResult, 1)

	e.mu.Lock()
	e.polling = true
	e.mu.Unlock()

	results := e.device.Detect(ctx)
	go func() {
		defer close(out)
		var res hardware.DetectResult
		select {
		case r, ok := <-results:
			if !ok {
				r = hardware.DetectResult{Err: hardware.ErrNotDetected}
			}
			res = r
		case <-ctx.Done():
			res = hardware.DetectResult{Err: ctx.Err()}
		}

		e.mu.Lock()
		e.polling = false
		e.slots = res.Slots
		e.detectErr = res.Err
		e.selected = -1
		if res.Err == nil && len(res.Slots) > 0 {
			e.selected = 0
		}
		e.mu.Unlock()

		out <- res
	}()
	return out
}

// Polling reports whether detection is in progress
func (e *ChallengeResponseEditor) Polling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polling
}

// Slots returns the slots found by the last poll
func (e *ChallengeResponseEditor) Slots() []hardware.Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]hardware.Slot(nil), e.slots...)
}

// Select picks a detected slot by number
func (e *ChallengeResponseEditor) Select(number int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.slots {
		if s.Number == number {
			e.selected = i
			return nil
		}
	}
	return fmt.Errorf("%w: %d", hardware.ErrInvalidSlot, number)
}

// Selected returns the slot that will be bound
func (e *ChallengeResponseEditor) Selected() (hardware.Slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected < 0 || e.selected >= len(e.slots) {
		return hardware.Slot{}, false
	}
	return e.slots[e.selected], true
}

func (e *ChallengeResponseEditor) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.slots) == 0 {
		if e.detectErr != nil && !errors.Is(e.detectErr, hardware.ErrNotDetected) {
			return fmt.Errorf("%w: %w", hardware.ErrNotDetected, e.detectErr)
		}
		return hardware.ErrNotDetected
	}
	if e.selected < 0 || e.selected >= len(e.slots) {
		return ErrNoSlotSelected
	}
	return nil
}

func (e *ChallengeResponseEditor) Materialize(_ context.Context) (Material, error) {
	if err := e.Validate(); err != nil {
		return Material{}, err
	}
	slot, _ := e.Selected()
	return Material{ChallengeResponse: keys.NewSlotKey(e.device, slot)}, nil
}
