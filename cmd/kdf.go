package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/vaultkey/internal/keypolicy"
)

// KdfOptions are the Encryption page inputs. Zero values leave a
// parameter unchanged.
type KdfOptions struct {
	TimeMs      int
	Tier        string
	Simple      bool
	Advanced    bool
	Algorithm   string // argon2 or aes
	Rounds      int
	MemoryKiB   uint
	Parallelism uint
	Benchmark   bool
}

func (o KdfOptions) changed() bool {
	return o.TimeMs != 0 || o.Tier != "" || o.Simple || o.Advanced || o.Algorithm != "" ||
		o.Rounds != 0 || o.MemoryKiB != 0 || o.Parallelism != 0 || o.Benchmark
}

func (o KdfOptions) advanced() bool {
	return o.Advanced || o.Algorithm != "" || o.Rounds != 0 || o.MemoryKiB != 0 || o.Parallelism != 0 || o.Benchmark
}

// apply drives the negotiator the way the Encryption page would
func (o KdfOptions) apply(ctx context.Context, n *keypolicy.Negotiator) error {
	if o.TimeMs != 0 {
		n.SetTargetMillis(o.TimeMs)
	}
	if o.Simple && o.advanced() {
		return fmt.Errorf("--simple cannot be combined with advanced KDF parameters")
	}

	if !o.advanced() {
		if o.Simple || o.Tier != "" || n.Mode() == keypolicy.ModeSimple {
			n.SelectCompatibilityMode(keypolicy.ModeSimple)
		}
		if o.Tier != "" {
			tier, err := keypolicy.ParseTier(o.Tier)
			if err != nil {
				return err
			}
			n.SelectTier(tier)
		}
		return nil
	}

	if o.Tier != "" {
		return fmt.Errorf("--tier only applies in simple mode; use --algorithm")
	}
	n.SelectCompatibilityMode(keypolicy.ModeAdvanced)
	switch o.Algorithm {
	case "":
	case "argon2":
		if err := n.SetAlgorithm(keypolicy.AlgorithmArgon2); err != nil {
			return err
		}
	case "aes":
		if err := n.SetAlgorithm(keypolicy.AlgorithmAesKdf); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown KDF algorithm %q (use argon2 or aes)", o.Algorithm)
	}

	if o.MemoryKiB != 0 {
		if got, err := n.SetMemoryKiB(uint32(o.MemoryKiB)); err != nil {
			return err
		} else if uint(got) != o.MemoryKiB && n.Config().Algorithm == keypolicy.AlgorithmArgon2 {
			fmt.Printf("Memory adjusted to %d KiB\n", got)
		}
	}
	if o.Parallelism != 0 {
		if got, err := n.SetParallelism(uint32(o.Parallelism)); err != nil {
			return err
		} else if uint(got) != o.Parallelism && n.Config().Algorithm == keypolicy.AlgorithmArgon2 {
			fmt.Printf("Parallelism adjusted to %d\n", got)
		}
	}
	if o.Benchmark {
		fmt.Printf("Benchmarking %s for %s...\n", n.Config().Algorithm, keypolicy.FormatDecryptionTime(n.TargetMillis()))
		rounds, err := n.Benchmark(ctx, n.TargetMillis())
		if err != nil {
			return err
		}
		fmt.Printf("Benchmark: %d rounds\n", rounds)
	}
	if o.Rounds != 0 {
		if _, err := n.SetCost(o.Rounds); err != nil {
			return err
		}
	}
	return nil
}

// Kdf shows or changes the key derivation settings of a database
func Kdf(ctx context.Context, unlock UnlockOptions, opts KdfOptions, yes bool) {
	s, done := openSettings(ctx, unlock)
	defer done()
	n := s.Negotiator()

	if !opts.changed() {
		cfg := n.Config()
		fmt.Printf("Mode: %s\n", n.Mode())
		fmt.Printf("Algorithm: %s\n", cfg.Algorithm)
		fmt.Printf("Rounds: %d\n", cfg.Cost)
		if cfg.Algorithm == keypolicy.AlgorithmArgon2 {
			fmt.Printf("Memory: %d KiB\n", cfg.MemoryKiB)
			fmt.Printf("Parallelism: %d\n", cfg.Parallelism)
		}
		if n.Mode() == keypolicy.ModeSimple {
			fmt.Printf("Compatibility: %s\n", n.Tier())
		}
		return
	}

	if opts.TimeMs == 0 {
		n.SetTargetMillis(conf.DecryptionTimeMs)
	}
	if err := opts.apply(ctx, n); err != nil {
		HandleError(err)
	}
	if opts.Tier != "" {
		tier, _ := keypolicy.ParseTier(opts.Tier) // checked by apply
		s.SelectTier(tier)
		if s.Cipher() != s.Database().Cipher() {
			fmt.Println("Cipher reset to AES-256 for the selected compatibility tier")
		}
	}
	if opts.Simple || opts.TimeMs != 0 {
		s.Recalibrate()
	}

	applySettings(ctx, s, yes)
}
