package keypolicy

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/illarion/vaultkey/internal/crypto"
)

type fakeSink struct {
	err error
	kdf crypto.Kdf
}

func (s *fakeSink) ChangeKdf(kdf crypto.Kdf) error {
	if s.err != nil {
		return s.err
	}
	s.kdf = kdf
	return nil
}

// blockingKdf ignores ctx in Benchmark until release is closed
type blockingKdf struct {
	crypto.Kdf
	release chan struct{}
}

func (k *blockingKdf) Clone() crypto.Kdf {
	return &blockingKdf{Kdf: k.Kdf.Clone(), release: k.release}
}

func (k *blockingKdf) Benchmark(_ context.Context, _ int) (int, error) {
	<-k.release
	return 42, nil
}

func waitIdle(t *testing.T, n *Negotiator) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for n.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n.Busy() {
		t.Fatal("Negotiator still busy after the worker finished")
	}
}

func advanced(t *testing.T, kdf crypto.Kdf) *Negotiator {
	t.Helper()
	n := NewNegotiator(kdf)
	n.SelectCompatibilityMode(ModeAdvanced)
	return n
}

func TestSimpleModeModernDefaults(t *testing.T) {
	tuned := crypto.NewArgon2Kdf()
	tuned.SetMemory(1024)
	tuned.SetParallelism(1)
	tuned.SetRounds(3)

	n := NewNegotiator(tuned)
	if n.Mode() != ModeAdvanced {
		t.Fatalf("Tuned KDF should start in advanced mode, got %s", n.Mode())
	}

	n.SelectCompatibilityMode(ModeSimple)
	cfg := n.Config()
	want := min(runtime.NumCPU(), crypto.Argon2MaxParallelism)
	if cfg.Algorithm != AlgorithmArgon2 || cfg.MemoryKiB != 131072 || int(cfg.Parallelism) != want {
		t.Errorf("Unexpected simple mode config %+v", cfg)
	}

	// simple mode resets are not remembered across a round trip
	n.SelectCompatibilityMode(ModeAdvanced)
	if _, err := n.SetMemoryKiB(2048); err != nil {
		t.Fatalf("SetMemoryKiB failed: %v", err)
	}
	n.SelectCompatibilityMode(ModeSimple)
	if cfg := n.Config(); cfg.MemoryKiB != ModernMemoryKiB {
		t.Errorf("Simple mode should reset memory, got %d", cfg.MemoryKiB)
	}
	if n.Mode() != ModeSimple || NewNegotiator(n.Kdf()).Mode() != ModeSimple {
		t.Error("Default config should be recognised as simple")
	}
}

func TestSimpleModeTiers(t *testing.T) {
	n := NewNegotiator(nil, WithCores(func() int { return 4 }))
	if cfg := n.Config(); cfg.Parallelism != 4 || cfg.Algorithm != AlgorithmArgon2 {
		t.Fatalf("Unexpected default config %+v", cfg)
	}

	n.SelectTier(TierLegacy)
	cfg := n.Config()
	if cfg.Algorithm != AlgorithmAesKdf || cfg.MemoryKiB != 0 || cfg.Parallelism != 0 {
		t.Errorf("Legacy tier should use AES-KDF without Argon2 fields, got %+v", cfg)
	}
	if n.Kdf().UUID() != crypto.KdfAesKdbx3 {
		t.Errorf("Legacy tier should use KDBX 3.1 AES-KDF, got %s", n.Kdf().Name())
	}

	// the tier follows the algorithm when switching back to simple
	n.SelectCompatibilityMode(ModeAdvanced)
	if err := n.SetAlgorithm(AlgorithmArgon2); err != nil {
		t.Fatalf("SetAlgorithm failed: %v", err)
	}
	n.SelectCompatibilityMode(ModeSimple)
	if n.Tier() != TierModern || n.Config().MemoryKiB != ModernMemoryKiB {
		t.Errorf("Expected modern tier, got %s %+v", n.Tier(), n.Config())
	}
}

func TestSimpleModeRejectsManualParameters(t *testing.T) {
	n := NewNegotiator(nil)
	if _, err := n.SetCost(5); !errors.Is(err, ErrSimpleMode) {
		t.Errorf("Expected ErrSimpleMode, got %v", err)
	}
	if err := n.SetAlgorithm(AlgorithmAesKdf); !errors.Is(err, ErrSimpleMode) {
		t.Errorf("Expected ErrSimpleMode, got %v", err)
	}
	if _, err := n.SetMemoryKiB(8); !errors.Is(err, ErrSimpleMode) {
		t.Errorf("Expected ErrSimpleMode, got %v", err)
	}
	if _, err := n.SetParallelism(1); !errors.Is(err, ErrSimpleMode) {
		t.Errorf("Expected ErrSimpleMode, got %v", err)
	}
}

func TestAdvancedSettersClamp(t *testing.T) {
	n := advanced(t, crypto.NewArgon2Kdf())

	if got, _ := n.SetMemoryKiB(1); got != crypto.Argon2MinMemoryKiB {
		t.Errorf("Expected memory clamped to %d, got %d", crypto.Argon2MinMemoryKiB, got)
	}
	if got, _ := n.SetParallelism(1000); got != crypto.Argon2MaxParallelism {
		t.Errorf("Expected parallelism clamped to %d, got %d", crypto.Argon2MaxParallelism, got)
	}
	if got, _ := n.SetCost(0); got != 1 {
		t.Errorf("Expected rounds clamped to 1, got %d", got)
	}

	if err := n.SetAlgorithm(AlgorithmAesKdf); err != nil {
		t.Fatalf("SetAlgorithm failed: %v", err)
	}
	if got, err := n.SetMemoryKiB(4096); err != nil || got != 0 {
		t.Errorf("Memory should be ignored for AES-KDF, got %d, %v", got, err)
	}
	if cfg := n.Config(); cfg.MemoryKiB != 0 || cfg.Parallelism != 0 {
		t.Errorf("AES-KDF config should zero Argon2 fields, got %+v", cfg)
	}
	if n.Tier() != TierLegacy {
		t.Errorf("Tier should follow the algorithm, got %s", n.Tier())
	}
}

func TestValidateSafetyBounds(t *testing.T) {
	tests := []struct {
		name   string
		kdf    crypto.Kdf
		rounds int
		want   WarningCode
	}{
		{"argon2 above limit", crypto.NewArgon2Kdf(), MaxSafeArgon2Rounds + 1, WarningRoundsTooHigh},
		{"argon2 at limit", crypto.NewArgon2Kdf(), MaxSafeArgon2Rounds, 0},
		{"argon2 typical", crypto.NewArgon2Kdf(), 10, 0},
		{"aes below limit", crypto.NewAesKdf(crypto.KdfAesKdbx4), MinSafeAesRounds - 1, WarningRoundsTooLow},
		{"aes at limit", crypto.NewAesKdf(crypto.KdfAesKdbx4), MinSafeAesRounds, 0},
		{"aes high", crypto.NewAesKdf(crypto.KdfAesKdbx3), 5000000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := advanced(t, tt.kdf)
			if _, err := n.SetCost(tt.rounds); err != nil {
				t.Fatalf("SetCost failed: %v", err)
			}
			warnings := n.ValidateSafetyBounds()
			if tt.want == 0 {
				if len(warnings) != 0 {
					t.Errorf("Expected no warning, got %v", warnings)
				}
				return
			}
			if len(warnings) != 1 || warnings[0].Code != tt.want {
				t.Errorf("Expected %s, got %v", tt.want, warnings)
			}
		})
	}
}

func TestBenchmarkWritesCost(t *testing.T) {
	n := advanced(t, crypto.NewAesKdf(crypto.KdfAesKdbx4))
	rounds, err := n.Benchmark(context.Background(), 20)
	if err != nil {
		t.Fatalf("Benchmark failed: %v", err)
	}
	if rounds < 1 || n.Config().Cost != rounds {
		t.Errorf("Benchmark result %d not written back, config %+v", rounds, n.Config())
	}
	if n.Busy() {
		t.Error("Negotiator should not be busy after benchmark")
	}

	a := advanced(t, crypto.NewArgon2Kdf())
	_, _ = a.SetMemoryKiB(crypto.Argon2MinMemoryKiB)
	_, _ = a.SetParallelism(1)
	if rounds, err := a.Benchmark(context.Background(), 20); err != nil || rounds < 1 {
		t.Errorf("Argon2 benchmark failed: %d, %v", rounds, err)
	}
}

func TestBenchmarkCancelled(t *testing.T) {
	n := advanced(t, crypto.NewAesKdf(crypto.KdfAesKdbx4))
	before := n.Config().Cost

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.Benchmark(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if n.Config().Cost != before {
		t.Error("Cancelled benchmark must not change the cost")
	}
	waitIdle(t, n)
}

func TestBenchmarkBusyUntilWorkerExits(t *testing.T) {
	release := make(chan struct{})
	n := advanced(t, &blockingKdf{Kdf: crypto.NewAesKdf(crypto.KdfAesKdbx4), release: release})
	before := n.Config().Cost

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := n.Benchmark(ctx, 1000); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	if !n.Busy() {
		t.Error("Negotiator must stay busy while the worker is still running")
	}
	if _, err := n.Benchmark(context.Background(), 1000); !errors.Is(err, ErrBenchmarkRunning) {
		t.Errorf("Expected ErrBenchmarkRunning, got %v", err)
	}

	close(release)
	waitIdle(t, n)
	if n.Config().Cost != before {
		t.Errorf("Abandoned benchmark must not change the cost, got %d", n.Config().Cost)
	}

	rounds, err := n.Benchmark(context.Background(), 1000)
	if err != nil || rounds != 42 {
		t.Errorf("Benchmark after idle = %d, %v", rounds, err)
	}
}

func TestCommitAdvanced(t *testing.T) {
	n := advanced(t, crypto.NewAesKdf(crypto.KdfAesKdbx4))
	_, _ = n.SetCost(1000)

	sink := &fakeSink{}
	rec := &recorder{}
	err := n.Commit(context.Background(), sink, rec)
	if !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if sink.kdf != nil {
		t.Error("Declined commit must not reach the sink")
	}
	if len(rec.seen) != 1 || rec.seen[0] != WarningRoundsTooLow {
		t.Errorf("Expected RoundsTooLow warning, got %v", rec.seen)
	}

	if err := n.Commit(context.Background(), sink, AcceptAll); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if sink.kdf == nil || sink.kdf.Rounds() != 1000 {
		t.Errorf("Sink did not receive the configured KDF: %v", sink.kdf)
	}

	failing := &fakeSink{err: errors.New("out of memory")}
	if err := n.Commit(context.Background(), failing, AcceptAll); !errors.Is(err, ErrTransformFailed) {
		t.Errorf("Expected ErrTransformFailed, got %v", err)
	}
}

func TestCommitSimpleBenchmarksTarget(t *testing.T) {
	n := NewNegotiator(nil)
	n.SelectTier(TierLegacy)
	if got := n.SetTargetMillis(1); got != MinTargetMillis {
		t.Errorf("Expected target clamped to %d, got %d", MinTargetMillis, got)
	}

	sink := &fakeSink{}
	if err := n.Commit(context.Background(), sink, DeclineAll); err != nil {
		t.Fatalf("Simple commit should not ask for confirmation: %v", err)
	}
	if sink.kdf == nil || sink.kdf.UUID() != crypto.KdfAesKdbx3 || sink.kdf.Rounds() < 1 {
		t.Errorf("Unexpected committed KDF %v", sink.kdf)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Commit(ctx, sink, AcceptAll); !errors.Is(err, ErrUserCancelled) {
		t.Errorf("Expected ErrUserCancelled for cancelled benchmark, got %v", err)
	}
}

func TestFormatDecryptionTime(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{100, "100 ms"},
		{999, "999 ms"},
		{1000, "1.0 s"},
		{1240, "1.2 s"},
		{1260, "1.3 s"},
		{1500, "1.5 s"},
		{60000, "60.0 s"},
	}
	for _, tt := range tests {
		if got := FormatDecryptionTime(tt.ms); got != tt.want {
			t.Errorf("FormatDecryptionTime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestConfirmWritesNothing(t *testing.T) {
	n := advanced(t, crypto.NewAesKdf(crypto.KdfAesKdbx4))
	_, _ = n.SetCost(1000)

	if err := n.Confirm(DeclineAll); !errors.Is(err, ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if err := n.Confirm(AcceptAll); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	sink := &fakeSink{}
	if err := n.Apply(context.Background(), sink); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if sink.kdf == nil || sink.kdf.Rounds() != 1000 {
		t.Errorf("Apply did not reach the sink: %v", sink.kdf)
	}

	if err := NewNegotiator(nil).Confirm(DeclineAll); err != nil {
		t.Errorf("Simple mode raises no warnings, got %v", err)
	}
}
