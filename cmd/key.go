package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/git"
	"github.com/illarion/vaultkey/internal/keypolicy"
)

// KeyOptions are the Master key page inputs
type KeyOptions struct {
	NewPassword     bool
	RemovePassword  bool
	NewKeyFile      string
	GenerateKeyFile string
	RemoveKeyFile   bool
	AddToken        bool
	RemoveToken     bool
	Yes             bool
}

// Key changes the components of the master key
func Key(ctx context.Context, unlock UnlockOptions, opts KeyOptions) {
	s, done := openSettings(ctx, unlock)
	defer done()
	reg := s.Registry()

	if !opts.NewPassword && !opts.RemovePassword && opts.NewKeyFile == "" && opts.GenerateKeyFile == "" &&
		!opts.RemoveKeyFile && !opts.AddToken && !opts.RemoveToken {
		fmt.Println("Master key components:")
		for _, slot := range reg.Slots() {
			state := "not set"
			if slot.State() == keypolicy.StatePresent {
				state = "set"
			}
			fmt.Printf("  %-20s %s\n", slot.Kind(), state)
		}
		return
	}

	if opts.NewPassword && opts.RemovePassword {
		HandleError(fmt.Errorf("--new-password and --remove-password are mutually exclusive"))
	}
	if opts.RemoveKeyFile && (opts.NewKeyFile != "" || opts.GenerateKeyFile != "") {
		HandleError(fmt.Errorf("--remove-keyfile cannot be combined with a new key file"))
	}
	if opts.AddToken && opts.RemoveToken {
		HandleError(fmt.Errorf("--add-token and --remove-token are mutually exclusive"))
	}

	var newPassword []byte
	if opts.NewPassword {
		password, err := core.ReadPasswordConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		newPassword = password
		defer crypto.ClearBytes(newPassword)

		e := keypolicy.NewPasswordEditor()
		e.SetPassword(password)
		e.SetRepeat(password)
		defer e.Clear()
		if err := stage(reg, keypolicy.KindPassword, e); err != nil {
			HandleError(err)
		}
	}
	if opts.RemovePassword {
		if err := reg.RequestRemove(keypolicy.KindPassword); err != nil {
			HandleError(fmt.Errorf("no password to remove: %w", err))
		}
	}

	var keyFiles []string
	if opts.NewKeyFile != "" || opts.GenerateKeyFile != "" {
		e := s.KeyFileEditor()
		if opts.GenerateKeyFile != "" {
			path, err := e.Generate(filepath.Dir(unlock.Path), opts.GenerateKeyFile)
			if err != nil {
				HandleError(err)
			}
			fmt.Printf("Generated key file %s\n", path)
		} else {
			e.SetPath(opts.NewKeyFile)
		}
		keyFiles = append(keyFiles, e.Path())
		if err := stage(reg, keypolicy.KindKeyFile, e); err != nil {
			HandleError(err)
		}
	}
	if opts.RemoveKeyFile {
		if err := reg.RequestRemove(keypolicy.KindKeyFile); err != nil {
			HandleError(fmt.Errorf("no key file to remove: %w", err))
		}
	}

	if opts.AddToken {
		e, err := tokenEditor(ctx)
		if err != nil {
			HandleError(err)
		}
		if err := stage(reg, keypolicy.KindChallengeResponse, e); err != nil {
			HandleError(err)
		}
	}
	if opts.RemoveToken {
		if err := reg.RequestRemove(keypolicy.KindChallengeResponse); err != nil {
			HandleError(fmt.Errorf("no challenge-response token to remove: %w", err))
		}
	}

	if !applySettings(ctx, s, opts.Yes) {
		return
	}
	switch {
	case newPassword != nil:
		updateKeyring(vaultIDOf(s.Database()), newPassword)
	case opts.RemovePassword:
		forgetKeyring(vaultIDOf(s.Database()))
	}

	if status, err := git.CheckGitIntegration(unlock.Path, keyFiles); err == nil {
		fmt.Print(git.FormatGitStatus(status))
	}
}
