package keypolicy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/illarion/vaultkey/internal/crypto"
)

// Algorithm is a KDF family
type Algorithm int

const (
	AlgorithmArgon2 Algorithm = iota
	AlgorithmAesKdf
)

func (a Algorithm) String() string {
	if a == AlgorithmAesKdf {
		return "AES-KDF"
	}
	return "Argon2"
}

// Mode selects how KDF parameters are chosen
type Mode int

const (
	// ModeSimple derives everything from the target decryption time
	ModeSimple Mode = iota
	// ModeAdvanced exposes every parameter
	ModeAdvanced
)

func (m Mode) String() string {
	if m == ModeAdvanced {
		return "advanced"
	}
	return "simple"
}

// Tier is the file format compatibility level used in simple mode
type Tier int

const (
	TierModern Tier = iota
	TierLegacy
)

func (t Tier) String() string {
	if t == TierLegacy {
		return "legacy"
	}
	return "modern"
}

// ParseTier accepts "modern" or "legacy"
func ParseTier(s string) (Tier, error) {
	switch s {
	case "modern", "":
		return TierModern, nil
	case "legacy":
		return TierLegacy, nil
	}
	return 0, fmt.Errorf("unknown compatibility tier %q", s)
}

const (
	ModernMemoryKiB = 128 * 1024

	// Argon2 above this many rounds may take hours to open
	MaxSafeArgon2Rounds = 10000
	// AES-KDF below this many rounds is too easy to brute force
	MinSafeAesRounds = 100000

	DefaultTargetMillis = 1000
	MinTargetMillis     = 100
	MaxTargetMillis     = 60000
)

// KdfConfig is a read-only view of the candidate KDF. MemoryKiB and
// Parallelism are zero unless Algorithm is AlgorithmArgon2.
type KdfConfig struct {
	Algorithm   Algorithm
	Cost        int
	MemoryKiB   uint32
	Parallelism uint32
}

// KdfSink receives the committed KDF, usually the open database
type KdfSink interface {
	ChangeKdf(kdf crypto.Kdf) error
}

// Negotiator selects, calibrates and safety checks a KDF configuration
type Negotiator struct {
	kdf    crypto.Kdf
	mode   Mode
	tier   Tier
	target int
	busy   atomic.Bool

	cores  func() int
	logger *slog.Logger
}

// NewNegotiator starts from current, or from modern defaults when current
// is nil. The session starts in simple mode when current matches the
// defaults of its tier and in advanced mode otherwise.
func NewNegotiator(current crypto.Kdf, opts ...Option) *Negotiator {
	o := newOptions(opts)
	n := &Negotiator{
		target: DefaultTargetMillis,
		cores:  o.cores,
		logger: o.logger,
	}
	if current == nil {
		n.mode, n.tier = ModeSimple, TierModern
		n.applyTier()
		return n
	}

	n.kdf = current.Clone()
	n.tier = tierOf(n.kdf)
	if n.matchesTierDefaults() {
		n.mode = ModeSimple
	} else {
		n.mode = ModeAdvanced
	}
	return n
}

func algorithmOf(k crypto.Kdf) Algorithm {
	if crypto.IsAesKdf(k.UUID()) {
		return AlgorithmAesKdf
	}
	return AlgorithmArgon2
}

func tierOf(k crypto.Kdf) Tier {
	if algorithmOf(k) == AlgorithmAesKdf {
		return TierLegacy
	}
	return TierModern
}

func (n *Negotiator) matchesTierDefaults() bool {
	switch n.tier {
	case TierModern:
		a, ok := n.kdf.(*crypto.Argon2Kdf)
		return ok && a.Memory() == ModernMemoryKiB && int(a.Parallelism()) == n.hostCores()
	case TierLegacy:
		return n.kdf.UUID() == crypto.KdfAesKdbx3
	}
	return false
}

func (n *Negotiator) hostCores() int {
	c := n.cores()
	return max(crypto.Argon2MinParallelism, min(c, crypto.Argon2MaxParallelism))
}

// applyTier replaces the KDF with a fresh one using the tier defaults
func (n *Negotiator) applyTier() {
	switch n.tier {
	case TierLegacy:
		n.kdf = crypto.NewAesKdf(crypto.KdfAesKdbx3)
	default:
		a := crypto.NewArgon2Kdf()
		a.SetMemory(ModernMemoryKiB)
		a.SetParallelism(uint32(n.hostCores()))
		n.kdf = a
	}
}

func (n *Negotiator) Mode() Mode { return n.mode }
func (n *Negotiator) Tier() Tier { return n.tier }

// Config returns the current candidate configuration
func (n *Negotiator) Config() KdfConfig {
	cfg := KdfConfig{Algorithm: algorithmOf(n.kdf), Cost: n.kdf.Rounds()}
	if a, ok := n.kdf.(*crypto.Argon2Kdf); ok {
		cfg.MemoryKiB = a.Memory()
		cfg.Parallelism = a.Parallelism()
	}
	return cfg
}

// Kdf returns a copy of the candidate KDF
func (n *Negotiator) Kdf() crypto.Kdf { return n.kdf.Clone() }

// SelectCompatibilityMode switches between simple and advanced mode.
// Entering simple mode always resets the KDF to the tier defaults.
func (n *Negotiator) SelectCompatibilityMode(mode Mode) {
	n.mode = mode
	if mode == ModeSimple {
		n.tier = tierOf(n.kdf)
		n.applyTier()
	}
	n.logger.Debug("kdf mode selected", "mode", mode, "tier", n.tier)
}

// SelectTier sets the compatibility tier, applying its defaults in simple
// mode
func (n *Negotiator) SelectTier(tier Tier) {
	n.tier = tier
	if n.mode == ModeSimple {
		n.applyTier()
	}
}

// SetAlgorithm replaces the KDF with defaults of algorithm
func (n *Negotiator) SetAlgorithm(a Algorithm) error {
	if n.mode == ModeSimple {
		return ErrSimpleMode
	}
	if algorithmOf(n.kdf) == a {
		return nil
	}
	if a == AlgorithmAesKdf {
		n.kdf = crypto.NewAesKdf(crypto.KdfAesKdbx3)
	} else {
		n.kdf = crypto.NewArgon2Kdf()
	}
	n.tier = tierOf(n.kdf)
	return nil
}

// SetCost sets the round count and returns the value actually applied
func (n *Negotiator) SetCost(rounds int) (int, error) {
	if n.mode == ModeSimple {
		return n.kdf.Rounds(), ErrSimpleMode
	}
	n.kdf.SetRounds(rounds)
	return n.kdf.Rounds(), nil
}

// SetMemoryKiB sets the Argon2 memory cost and returns the value actually
// applied. It is ignored for AES-KDF.
func (n *Negotiator) SetMemoryKiB(kib uint32) (uint32, error) {
	if n.mode == ModeSimple {
		return n.Config().MemoryKiB, ErrSimpleMode
	}
	a, ok := n.kdf.(*crypto.Argon2Kdf)
	if !ok {
		return 0, nil
	}
	a.SetMemory(kib)
	return a.Memory(), nil
}

// SetParallelism sets the Argon2 lane count and returns the value actually
// applied. It is ignored for AES-KDF.
func (n *Negotiator) SetParallelism(p uint32) (uint32, error) {
	if n.mode == ModeSimple {
		return n.Config().Parallelism, ErrSimpleMode
	}
	a, ok := n.kdf.(*crypto.Argon2Kdf)
	if !ok {
		return 0, nil
	}
	a.SetParallelism(p)
	return a.Parallelism(), nil
}

// SetTargetMillis sets the decryption time used by simple mode and returns
// the clamped value
func (n *Negotiator) SetTargetMillis(ms int) int {
	n.target = max(MinTargetMillis, min(ms, MaxTargetMillis))
	return n.target
}

func (n *Negotiator) TargetMillis() int { return n.target }

// Busy reports whether a benchmark is running
func (n *Negotiator) Busy() bool { return n.busy.Load() }

// Benchmark calibrates the round count so one transform takes about
// targetMillis. The KDF runs on its own goroutine; the caller blocks until
// it finishes or ctx is done. The result is written back into the config.
// Busy stays set until the worker goroutine has exited, even when ctx
// ended the wait earlier.
func (n *Negotiator) Benchmark(ctx context.Context, targetMillis int) (int, error) {
	if !n.busy.CompareAndSwap(false, true) {
		return 0, ErrBenchmarkRunning
	}

	type result struct {
		rounds int
		err    error
	}
	trial := n.kdf.Clone()
	done := make(chan result, 1)
	start := time.Now()

	n.logger.Debug("benchmark started", "kdf", trial.Name(), "target_ms", targetMillis)
	go func() {
		rounds, err := trial.Benchmark(ctx, targetMillis)
		n.busy.Store(false)
		done <- result{rounds, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return 0, fmt.Errorf("benchmark failed: %w", res.err)
		}
		n.kdf.SetRounds(res.rounds)
		n.logger.Debug("benchmark finished",
			"kdf", trial.Name(), "rounds", n.kdf.Rounds(), "elapsed", time.Since(start))
		return n.kdf.Rounds(), nil
	}
}

// ValidateSafetyBounds lists advisory warnings for the current config
func (n *Negotiator) ValidateSafetyBounds() []Warning {
	cfg := n.Config()
	var out []Warning
	switch {
	case cfg.Algorithm == AlgorithmArgon2 && cfg.Cost > MaxSafeArgon2Rounds:
		out = append(out, Warning{
			Code:    WarningRoundsTooHigh,
			Title:   "Number of rounds too high",
			Message: "You are using a very high number of key transform rounds with Argon2. The database may take hours, days, or even longer to open.",
		})
	case cfg.Algorithm == AlgorithmAesKdf && cfg.Cost < MinSafeAesRounds:
		out = append(out, Warning{
			Code:    WarningRoundsTooLow,
			Title:   "Number of rounds too low",
			Message: "You are using a very low number of key transform rounds with AES-KDF. The database may be too easy to crack.",
		})
	}
	return out
}

// Confirm asks confirm to accept every safety warning of an advanced mode
// config. Simple mode configs raise no warnings. Nothing is written.
func (n *Negotiator) Confirm(confirm Confirmer) error {
	if n.mode == ModeSimple {
		return nil
	}
	return confirmAll(confirm, n.ValidateSafetyBounds())
}

// Apply writes the negotiated KDF into sink without asking for
// confirmation. In simple mode the tier defaults are applied and calibrated
// against the target time first. A sink failure leaves its prior KDF in
// effect.
func (n *Negotiator) Apply(ctx context.Context, sink KdfSink) error {
	if n.mode == ModeSimple {
		n.applyTier()
		if _, err := n.Benchmark(ctx, n.target); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &CommitError{Err: ErrUserCancelled, Cause: err}
			}
			return &CommitError{Err: ErrTransformFailed, Cause: err}
		}
	}

	if err := sink.ChangeKdf(n.kdf.Clone()); err != nil {
		return &CommitError{Err: ErrTransformFailed, Cause: err}
	}
	n.logger.Info("kdf changed", "kdf", n.kdf.Name(), "rounds", n.kdf.Rounds())
	return nil
}

// Commit confirms the safety warnings and then applies the KDF to sink
func (n *Negotiator) Commit(ctx context.Context, sink KdfSink, confirm Confirmer) error {
	if err := n.Confirm(confirm); err != nil {
		return err
	}
	return n.Apply(ctx, sink)
}

// FormatDecryptionTime renders a target time the way the slider shows it
func FormatDecryptionTime(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return strconv.FormatFloat(float64(ms)/1000, 'f', 1, 64) + " s"
}
