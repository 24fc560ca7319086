package crypto

import (
	"context"
	"crypto/aes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AesKdfDefaultRounds = 100000
	aesBenchmarkBatch   = 10000
)

// AesKdf derives the database key by encrypting the composite key with
// AES-256 (keyed by the seed) for the configured number of rounds and
// hashing the result with SHA-256
type AesKdf struct {
	id     uuid.UUID
	rounds int
	seed   []byte
}

// NewAesKdf returns an AES-KDF for either the KDBX 3.1 or KDBX 4 identifier
func NewAesKdf(id uuid.UUID) *AesKdf {
	if !IsAesKdf(id) {
		id = KdfAesKdbx3
	}
	return &AesKdf{
		id:     id,
		rounds: AesKdfDefaultRounds,
		seed:   make([]byte, SeedSize),
	}
}

func (k *AesKdf) UUID() uuid.UUID { return k.id }

func (k *AesKdf) Name() string {
	if k.id == KdfAesKdbx4 {
		return "AES-KDF (KDBX 4)"
	}
	return "AES-KDF (KDBX 3.1)"
}

func (k *AesKdf) Rounds() int { return k.rounds }

func (k *AesKdf) SetRounds(rounds int) bool {
	switch {
	case rounds < 1:
		k.rounds = 1
		return false
	case rounds > maxRounds:
		k.rounds = maxRounds
		return false
	}
	k.rounds = rounds
	return true
}

func (k *AesKdf) Seed() []byte { return k.seed }

// SetSeed accepts only a 32 byte seed since it is used as the AES-256 key
func (k *AesKdf) SetSeed(seed []byte) bool {
	if len(seed) != SeedSize {
		return false
	}
	k.seed = append([]byte(nil), seed...)
	return true
}

func (k *AesKdf) RandomizeSeed() error {
	seed, err := GenerateRandom(SeedSize)
	if err != nil {
		return err
	}
	k.seed = seed
	return nil
}

func (k *AesKdf) Transform(raw []byte) ([]byte, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("aes-kdf: key must be %d bytes, got %d", KeySize, len(raw))
	}
	data := append([]byte(nil), raw...)
	defer ClearBytes(data)

	if err := k.transformRounds(data, k.rounds); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func (k *AesKdf) transformRounds(data []byte, rounds int) error {
	block, err := aes.NewCipher(k.seed)
	if err != nil {
		return fmt.Errorf("aes-kdf: %w", err)
	}
	// ECB over the two 16-byte halves
	for i := 0; i < rounds; i++ {
		block.Encrypt(data[:aes.BlockSize], data[:aes.BlockSize])
		block.Encrypt(data[aes.BlockSize:], data[aes.BlockSize:])
	}
	return nil
}

// Benchmark counts how many rounds complete within msec
func (k *AesKdf) Benchmark(ctx context.Context, msec int) (int, error) {
	probe := make([]byte, KeySize)
	bench := &AesKdf{id: k.id, seed: make([]byte, SeedSize)}
	for i := range probe {
		probe[i] = 0x7e
		bench.seed[i] = 0x4b
	}

	budget := time.Duration(msec) * time.Millisecond
	start := time.Now()
	rounds := 0
	for time.Since(start) < budget {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := bench.transformRounds(probe, aesBenchmarkBatch); err != nil {
			return 0, err
		}
		if rounds > maxRounds-aesBenchmarkBatch {
			return maxRounds, nil
		}
		rounds += aesBenchmarkBatch
	}
	if rounds < 1 {
		rounds = 1
	}
	return rounds, nil
}

func (k *AesKdf) Clone() Kdf {
	c := *k
	c.seed = append([]byte(nil), k.seed...)
	return &c
}

func (k *AesKdf) Params() KdfParams {
	return KdfParams{
		UUID:   k.id,
		Rounds: k.rounds,
		Seed:   append([]byte(nil), k.seed...),
	}
}
