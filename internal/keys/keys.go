// Package keys implements the components of a composite master key.
//
// A composite key combines static keys (password, key file) and
// challenge-response keys (hardware token). The raw key fed into the KDF is
// SHA-256 over every static component followed, when challenge-response
// components exist, by SHA-256 over their responses to the KDF seed.
package keys

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/hardware"
)

var (
	PasswordKeyUUID          = uuid.MustParse("77e90411-303a-43f2-b773-853b05635ead")
	FileKeyUUID              = uuid.MustParse("a584cbc4-c9b4-437e-81bb-362ca9709273")
	ChallengeResponseKeyUUID = uuid.MustParse("e092495c-e8a2-4088-a62a-6e1e5a3e6f32")
)

// Key is a static key component
type Key interface {
	UUID() uuid.UUID
	RawKey() []byte
}

// ChallengeResponseKey derives its contribution from a device response
type ChallengeResponseKey interface {
	UUID() uuid.UUID
	Name() string
	Challenge(ctx context.Context, challenge []byte) ([]byte, error)
}

// PasswordKey holds SHA-256 of the password
type PasswordKey struct {
	raw []byte
}

// NewPasswordKey hashes password; the caller may clear password afterwards
func NewPasswordKey(password []byte) *PasswordKey {
	sum := sha256.Sum256(password)
	return &PasswordKey{raw: sum[:]}
}

func (k *PasswordKey) UUID() uuid.UUID { return PasswordKeyUUID }
func (k *PasswordKey) RawKey() []byte  { return k.raw }

// SlotKey answers challenges through a hardware slot
type SlotKey struct {
	device hardware.Device
	slot   hardware.Slot
}

// NewSlotKey binds a challenge-response slot of device
func NewSlotKey(device hardware.Device, slot hardware.Slot) *SlotKey {
	return &SlotKey{device: device, slot: slot}
}

func (k *SlotKey) UUID() uuid.UUID     { return ChallengeResponseKeyUUID }
func (k *SlotKey) Name() string        { return k.slot.String() }
func (k *SlotKey) Slot() hardware.Slot { return k.slot }

func (k *SlotKey) Challenge(ctx context.Context, challenge []byte) ([]byte, error) {
	resp, err := k.device.Challenge(ctx, k.slot.Number, challenge)
	if err != nil {
		return nil, fmt.Errorf("challenge-response on slot %d failed: %w", k.slot.Number, err)
	}
	return resp, nil
}

// CompositeKey is an ordered set of key components
type CompositeKey struct {
	keys   []Key
	crKeys []ChallengeResponseKey
}

// NewCompositeKey returns an empty composite key
func NewCompositeKey() *CompositeKey {
	return &CompositeKey{}
}

func (c *CompositeKey) AddKey(k Key) {
	c.keys = append(c.keys, k)
}

func (c *CompositeKey) AddChallengeResponseKey(k ChallengeResponseKey) {
	c.crKeys = append(c.crKeys, k)
}

func (c *CompositeKey) Keys() []Key {
	return append([]Key(nil), c.keys...)
}

func (c *CompositeKey) ChallengeResponseKeys() []ChallengeResponseKey {
	return append([]ChallengeResponseKey(nil), c.crKeys...)
}

// IsEmpty reports whether no component contributes material
func (c *CompositeKey) IsEmpty() bool {
	return c == nil || (len(c.keys) == 0 && len(c.crKeys) == 0)
}

// Components lists component UUIDs in the order they contribute
func (c *CompositeKey) Components() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.keys)+len(c.crKeys))
	for _, k := range c.keys {
		ids = append(ids, k.UUID())
	}
	for _, k := range c.crKeys {
		ids = append(ids, k.UUID())
	}
	return ids
}

// RawKey combines all components. challenge is only used when
// challenge-response components are present.
func (c *CompositeKey) RawKey(ctx context.Context, challenge []byte) ([]byte, error) {
	h := sha256.New()
	for _, k := range c.keys {
		h.Write(k.RawKey())
	}

	if len(c.crKeys) > 0 {
		crh := sha256.New()
		for _, k := range c.crKeys {
			resp, err := k.Challenge(ctx, challenge)
			if err != nil {
				return nil, err
			}
			crh.Write(resp)
			crypto.ClearBytes(resp)
		}
		h.Write(crh.Sum(nil))
	}

	return h.Sum(nil), nil
}
