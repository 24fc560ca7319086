package crypto

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

const (
	Argon2MinMemoryKiB     = 8
	Argon2MaxMemoryKiB     = 4 * 1024 * 1024 // 4 GiB
	Argon2MinParallelism   = 1
	Argon2MaxParallelism   = 255 // argon2.IDKey takes a uint8
	Argon2DefaultMemoryKiB = 64 * 1024
	Argon2DefaultRounds    = 10
)

// Argon2Kdf derives the database key with Argon2id
type Argon2Kdf struct {
	rounds      int
	memoryKiB   uint32
	parallelism uint32
	seed        []byte
}

// NewArgon2Kdf returns an Argon2id KDF with 64 MiB of memory and one lane
// per CPU core
func NewArgon2Kdf() *Argon2Kdf {
	k := &Argon2Kdf{
		rounds:    Argon2DefaultRounds,
		memoryKiB: Argon2DefaultMemoryKiB,
		seed:      make([]byte, SeedSize),
	}
	k.SetParallelism(uint32(runtime.NumCPU()))
	return k
}

func (k *Argon2Kdf) UUID() uuid.UUID { return KdfArgon2id }
func (k *Argon2Kdf) Name() string    { return "Argon2id" }
func (k *Argon2Kdf) Rounds() int     { return k.rounds }

func (k *Argon2Kdf) SetRounds(rounds int) bool {
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

// Memory returns the memory cost in KiB
func (k *Argon2Kdf) Memory() uint32 { return k.memoryKiB }

// SetMemory sets the memory cost in KiB, clamping to the supported range
func (k *Argon2Kdf) SetMemory(kib uint32) bool {
	switch {
	case kib < Argon2MinMemoryKiB:
		k.memoryKiB = Argon2MinMemoryKiB
		return false
	case kib > Argon2MaxMemoryKiB:
		k.memoryKiB = Argon2MaxMemoryKiB
		return false
	}
	k.memoryKiB = kib
	return true
}

func (k *Argon2Kdf) Parallelism() uint32 { return k.parallelism }

// SetParallelism sets the number of lanes, clamping to the supported range
func (k *Argon2Kdf) SetParallelism(p uint32) bool {
	switch {
	case p < Argon2MinParallelism:
		k.parallelism = Argon2MinParallelism
		return false
	case p > Argon2MaxParallelism:
		k.parallelism = Argon2MaxParallelism
		return false
	}
	k.parallelism = p
	return true
}

func (k *Argon2Kdf) Seed() []byte { return k.seed }

func (k *Argon2Kdf) SetSeed(seed []byte) bool {
	if len(seed) < 8 || len(seed) > 64 {
		return false
	}
	k.seed = append([]byte(nil), seed...)
	return true
}

func (k *Argon2Kdf) RandomizeSeed() error {
	seed, err := GenerateRandom(SeedSize)
	if err != nil {
		return err
	}
	k.seed = seed
	return nil
}

func (k *Argon2Kdf) Transform(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("argon2: empty key")
	}
	if len(k.seed) == 0 {
		return nil, fmt.Errorf("argon2: seed not set")
	}
	return argon2.IDKey(raw, k.seed, uint32(k.rounds), k.memoryKiB, uint8(k.parallelism), KeySize), nil
}

// Benchmark times a single round with the current memory and parallelism
// and scales it to msec
func (k *Argon2Kdf) Benchmark(ctx context.Context, msec int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	probe := make([]byte, KeySize)
	seed := make([]byte, SeedSize)
	for i := range probe {
		probe[i] = 0x7e
		seed[i] = 0x4b
	}

	start := time.Now()
	argon2.IDKey(probe, seed, 1, k.memoryKiB, uint8(k.parallelism), KeySize)
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return scaleRounds(1, elapsed, msec), nil
}

func (k *Argon2Kdf) Clone() Kdf {
	c := *k
	c.seed = append([]byte(nil), k.seed...)
	return &c
}

func (k *Argon2Kdf) Params() KdfParams {
	return KdfParams{
		UUID:        KdfArgon2id,
		Rounds:      k.rounds,
		MemoryKiB:   k.memoryKiB,
		Parallelism: k.parallelism,
		Seed:        append([]byte(nil), k.seed...),
	}
}
