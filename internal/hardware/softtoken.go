package hardware

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keyring"
)

const (
	SecretSize = 20 // HMAC-SHA1 secret size, as programmed into hardware tokens
	MinSlot    = 1
	MaxSlot    = 2
)

// SoftToken emulates an HMAC-SHA1 challenge-response token whose per-slot
// secrets live in the OS keyring
type SoftToken struct{}

// NewSoftToken returns a keyring-backed token
func NewSoftToken() *SoftToken {
	return &SoftToken{}
}

func validSlot(slot int) error {
	if slot < MinSlot || slot > MaxSlot {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return nil
}

// Enroll programs a new random secret into slot, replacing any existing one
func (t *SoftToken) Enroll(slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	secret, err := crypto.GenerateRandom(SecretSize)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(secret)

	if err := keyring.SaveTokenSecret(slot, secret); err != nil {
		return fmt.Errorf("failed to store token secret: %w", err)
	}
	return nil
}

// Remove deletes the secret of slot
func (t *SoftToken) Remove(slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	if err := keyring.DeleteTokenSecret(slot); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotDetected
		}
		return err
	}
	return nil
}

// Slots lists enrolled slots synchronously
func (t *SoftToken) Slots() []Slot {
	var slots []Slot
	for n := MinSlot; n <= MaxSlot; n++ {
		secret, err := keyring.GetTokenSecret(n)
		if err != nil {
			continue
		}
		crypto.ClearBytes(secret)
		slots = append(slots, Slot{Number: n, Name: "Software token"})
	}
	return slots
}

// Detect probes the keyring on a separate goroutine
func (t *SoftToken) Detect(ctx context.Context) <-chan DetectResult {
	out := make(chan DetectResult, 1)
	go func() {
		defer close(out)
		if err := ctx.Err(); err != nil {
			out <- DetectResult{Err: err}
			return
		}
		slots := t.Slots()
		if len(slots) == 0 {
			out <- DetectResult{Err: ErrNotDetected}
			return
		}
		out <- DetectResult{Slots: slots}
	}()
	return out
}

// Challenge returns HMAC-SHA1(secret, challenge) for slot
func (t *SoftToken) Challenge(ctx context.Context, slot int, challenge []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validSlot(slot); err != nil {
		return nil, err
	}
	secret, err := keyring.GetTokenSecret(slot)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotDetected
		}
		return nil, err
	}
	defer crypto.ClearBytes(secret)

	mac := hmac.New(sha1.New, secret)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}
