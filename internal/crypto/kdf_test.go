package crypto

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestArgon2TransformDeterministic(t *testing.T) {
	kdf := NewArgon2Kdf()
	kdf.SetRounds(1)
	kdf.SetMemory(64)
	kdf.SetParallelism(1)
	if err := kdf.RandomizeSeed(); err != nil {
		t.Fatalf("Failed to randomize seed: %v", err)
	}

	a, err := kdf.Transform(testKey())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	b, err := kdf.Clone().Transform(testKey())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Clone should transform to the same key")
	}

	if err := kdf.RandomizeSeed(); err != nil {
		t.Fatalf("Failed to randomize seed: %v", err)
	}
	c, err := kdf.Transform(testKey())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Error("New seed should change the transformed key")
	}
}

func TestArgon2Clamping(t *testing.T) {
	kdf := NewArgon2Kdf()

	tests := []struct {
		name   string
		set    func() bool
		get    func() uint32
		ok     bool
		result uint32
	}{
		{"memory in range", func() bool { return kdf.SetMemory(131072) }, kdf.Memory, true, 131072},
		{"memory too low", func() bool { return kdf.SetMemory(1) }, kdf.Memory, false, Argon2MinMemoryKiB},
		{"memory too high", func() bool { return kdf.SetMemory(Argon2MaxMemoryKiB + 1) }, kdf.Memory, false, Argon2MaxMemoryKiB},
		{"parallelism in range", func() bool { return kdf.SetParallelism(4) }, kdf.Parallelism, true, 4},
		{"parallelism zero", func() bool { return kdf.SetParallelism(0) }, kdf.Parallelism, false, Argon2MinParallelism},
		{"parallelism too high", func() bool { return kdf.SetParallelism(1000) }, kdf.Parallelism, false, Argon2MaxParallelism},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ok := tt.set(); ok != tt.ok {
				t.Errorf("setter returned %v, want %v", ok, tt.ok)
			}
			if got := tt.get(); got != tt.result {
				t.Errorf("value is %d, want %d", got, tt.result)
			}
		})
	}

	if kdf.SetRounds(0) {
		t.Error("SetRounds(0) should report clamping")
	}
	if kdf.Rounds() != 1 {
		t.Errorf("Rounds should clamp to 1, got %d", kdf.Rounds())
	}
}

func TestAesKdfTransform(t *testing.T) {
	kdf := NewAesKdf(KdfAesKdbx3)
	kdf.SetRounds(1000)
	if err := kdf.RandomizeSeed(); err != nil {
		t.Fatalf("Failed to randomize seed: %v", err)
	}

	out, err := kdf.Transform(testKey())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(out) != KeySize {
		t.Errorf("Expected %d byte key, got %d", KeySize, len(out))
	}

	kdf.SetRounds(1001)
	other, err := kdf.Transform(testKey())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if bytes.Equal(out, other) {
		t.Error("Different round counts should yield different keys")
	}

	if _, err := kdf.Transform([]byte("short")); err == nil {
		t.Error("Expected error for short key")
	}
	if kdf.SetSeed([]byte("short")) {
		t.Error("AES-KDF should reject a seed that is not 32 bytes")
	}
}

func TestBenchmark(t *testing.T) {
	argon := NewArgon2Kdf()
	argon.SetMemory(1024)
	argon.SetParallelism(1)

	for _, kdf := range []Kdf{argon, NewAesKdf(KdfAesKdbx4)} {
		t.Run(kdf.Name(), func(t *testing.T) {
			rounds, err := kdf.Benchmark(context.Background(), 20)
			if err != nil {
				t.Fatalf("Benchmark failed: %v", err)
			}
			if rounds < 1 {
				t.Errorf("Expected at least one round, got %d", rounds)
			}
		})
	}
}

func TestBenchmarkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewAesKdf(KdfAesKdbx3).Benchmark(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := NewArgon2Kdf().Benchmark(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestKdfParamsRoundTrip(t *testing.T) {
	kdf := NewArgon2Kdf()
	kdf.SetRounds(7)
	kdf.SetMemory(2048)
	kdf.SetParallelism(3)
	if err := kdf.RandomizeSeed(); err != nil {
		t.Fatalf("Failed to randomize seed: %v", err)
	}

	restored, err := KdfFromParams(kdf.Params())
	if err != nil {
		t.Fatalf("KdfFromParams failed: %v", err)
	}
	a, ok := restored.(*Argon2Kdf)
	if !ok {
		t.Fatalf("Expected *Argon2Kdf, got %T", restored)
	}
	if a.Rounds() != 7 || a.Memory() != 2048 || a.Parallelism() != 3 {
		t.Errorf("Parameters not restored: %+v", a.Params())
	}
	if !bytes.Equal(a.Seed(), kdf.Seed()) {
		t.Error("Seed not restored")
	}

	if _, err := KdfFromParams(KdfParams{UUID: CipherAES256, Rounds: 1}); !errors.Is(err, ErrUnknownKdf) {
		t.Errorf("Expected ErrUnknownKdf, got %v", err)
	}
}
