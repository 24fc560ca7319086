package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/git"
	"github.com/illarion/vaultkey/internal/hardware"
	"github.com/illarion/vaultkey/internal/keypolicy"
	"github.com/illarion/vaultkey/internal/wizard"
)

// InitOptions collects the answers to the new database wizard
type InitOptions struct {
	Path        string
	Name        string
	Description string

	Kdf KdfOptions

	NoPassword      bool
	KeyFile         string
	GenerateKeyFile string
	Token           bool

	Yes bool
}

// Init creates a new database by walking through the wizard pages
func Init(ctx context.Context, opts InitOptions) {
	cipher := conf.CipherID()
	w := wizard.New(opts.Path,
		wizard.WithLogger(logger),
		wizard.WithCipher(cipher),
		wizard.WithPolicyOptions(policyOptions()...),
	)
	confirm := confirmer(opts.Yes)

	// General
	m := w.Metadata()
	if opts.Name != "" {
		m.Name = opts.Name
	}
	m.Description = opts.Description
	w.SetMetadata(m)
	if err := w.Next(ctx, confirm); err != nil {
		HandleError(err)
	}

	// Encryption
	tier, err := keypolicy.ParseTier(conf.Compatibility)
	if err != nil {
		HandleError(err)
	}
	w.SelectTier(tier)
	// the configured cipher wins over the tier default
	w.SetCipher(cipher)
	n := w.Negotiator()
	n.SetTargetMillis(conf.DecryptionTimeMs)
	if err := opts.Kdf.apply(ctx, n); err != nil {
		HandleError(err)
	}
	if n.Mode() == keypolicy.ModeSimple {
		fmt.Printf("Calibrating %s for %s decryption time...\n", n.Config().Algorithm, keypolicy.FormatDecryptionTime(n.TargetMillis()))
	}
	if err := w.Next(ctx, confirm); err != nil {
		HandleError(err)
	}

	// Master key
	reg := w.Registry()
	if !opts.NoPassword {
		password, err := GetPasswordForInit()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		e := keypolicy.NewPasswordEditor()
		e.SetPassword(password)
		e.SetRepeat(password)
		crypto.ClearBytes(password)
		defer e.Clear()

		if score, crack := e.Strength(); score < 3 {
			fmt.Printf("Password strength: %d/4 (estimated crack time: %s)\n", score, crack)
		}
		if err := reg.RequestAdd(keypolicy.KindPassword, e); err != nil {
			HandleError(err)
		}
	}

	var keyFiles []string
	if opts.KeyFile != "" || opts.GenerateKeyFile != "" {
		e := w.KeyFileEditor()
		if opts.GenerateKeyFile != "" {
			path, err := e.Generate(filepath.Dir(opts.Path), opts.GenerateKeyFile)
			if err != nil {
				HandleError(err)
			}
			fmt.Printf("Generated key file %s\n", path)
		} else {
			e.SetPath(opts.KeyFile)
		}
		keyFiles = append(keyFiles, e.Path())
		if err := reg.RequestAdd(keypolicy.KindKeyFile, e); err != nil {
			HandleError(err)
		}
	}

	if opts.Token {
		e, err := tokenEditor(ctx)
		if err != nil {
			HandleError(err)
		}
		if err := reg.RequestAdd(keypolicy.KindChallengeResponse, e); err != nil {
			HandleError(err)
		}
	}

	db, err := w.Finish(ctx, confirm)
	if err != nil {
		HandleError(err)
	}
	defer db.Close()

	fmt.Printf("✓ Initialized %s\n", opts.Path)

	if status, err := git.CheckGitIntegration(opts.Path, keyFiles); err == nil {
		fmt.Print(git.FormatGitStatus(status))
	}
}

// tokenEditor detects the software token and selects the configured slot
func tokenEditor(ctx context.Context) (*keypolicy.ChallengeResponseEditor, error) {
	e := keypolicy.NewChallengeResponseEditor(hardware.NewSoftToken())
	if res := <-e.Poll(ctx); res.Err != nil {
		// left for Commit to report as unavailable hardware
		return e, nil
	}
	if err := e.Select(conf.TokenSlot); err != nil {
		return nil, fmt.Errorf("%w (run 'vaultkey token enroll --slot %d')", err, conf.TokenSlot)
	}
	return e, nil
}
