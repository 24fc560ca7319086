package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	KdfArgon2id   = uuid.MustParse("9e298b19-56db-4773-b23d-fc3ec6f0a1e6")
	KdfAesKdbx3   = uuid.MustParse("c9d9f39a-628a-4460-bf74-0d08c18a4fea")
	KdfAesKdbx4   = uuid.MustParse("7c02bb82-79a7-4ac0-927d-114a00648238")
	ErrUnknownKdf = errors.New("unknown key derivation function")
)

// Kdf transforms a composite raw key into the key that protects the database.
type Kdf interface {
	UUID() uuid.UUID
	Name() string

	Rounds() int
	// SetRounds clamps to the supported range and reports whether rounds
	// was accepted unchanged.
	SetRounds(rounds int) bool

	Seed() []byte
	SetSeed(seed []byte) bool
	RandomizeSeed() error

	Transform(raw []byte) ([]byte, error)

	// Benchmark returns the number of rounds that take roughly msec
	// milliseconds on this machine. It blocks for about that long.
	Benchmark(ctx context.Context, msec int) (int, error)

	Clone() Kdf
	Params() KdfParams
}

// KdfParams is the persisted form of a Kdf
type KdfParams struct {
	UUID        uuid.UUID `json:"uuid"`
	Rounds      int       `json:"rounds"`
	MemoryKiB   uint32    `json:"memory_kib,omitempty"`
	Parallelism uint32    `json:"parallelism,omitempty"`
	Seed        []byte    `json:"seed,omitempty"`
}

// Kdfs returns the supported KDF identifiers in display order
func Kdfs() []uuid.UUID {
	return []uuid.UUID{KdfArgon2id, KdfAesKdbx4, KdfAesKdbx3}
}

// IsAesKdf reports whether id names one of the AES-KDF variants
func IsAesKdf(id uuid.UUID) bool {
	return id == KdfAesKdbx3 || id == KdfAesKdbx4
}

// NewKdf creates a KDF with default parameters for the given identifier
func NewKdf(id uuid.UUID) (Kdf, error) {
	switch {
	case id == KdfArgon2id:
		return NewArgon2Kdf(), nil
	case IsAesKdf(id):
		return NewAesKdf(id), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKdf, id)
}

// KdfFromParams restores a KDF from its persisted parameters
func KdfFromParams(p KdfParams) (Kdf, error) {
	kdf, err := NewKdf(p.UUID)
	if err != nil {
		return nil, err
	}

	if !kdf.SetRounds(p.Rounds) {
		return nil, fmt.Errorf("invalid rounds for %s: %d", kdf.Name(), p.Rounds)
	}
	if len(p.Seed) > 0 && !kdf.SetSeed(p.Seed) {
		return nil, fmt.Errorf("invalid seed size for %s: %d", kdf.Name(), len(p.Seed))
	}
	if a, ok := kdf.(*Argon2Kdf); ok {
		if !a.SetMemory(p.MemoryKiB) {
			return nil, fmt.Errorf("invalid Argon2 memory: %d KiB", p.MemoryKiB)
		}
		if !a.SetParallelism(p.Parallelism) {
			return nil, fmt.Errorf("invalid Argon2 parallelism: %d", p.Parallelism)
		}
	}
	return kdf, nil
}

// scaleRounds extrapolates a round count that fits msec from one timed run
func scaleRounds(rounds int, elapsed time.Duration, msec int) int {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	scaled := float64(rounds) * (float64(time.Duration(msec)*time.Millisecond) / float64(elapsed))
	if scaled < 1 {
		return 1
	}
	if scaled > float64(maxRounds) {
		return maxRounds
	}
	return int(scaled)
}

const maxRounds = 1<<31 - 1
