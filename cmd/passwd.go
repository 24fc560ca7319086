package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keypolicy"
)

// Passwd changes the password component of the master key
func Passwd(ctx context.Context, unlock UnlockOptions, yes bool) {
	s, done := openSettings(ctx, unlock)
	defer done()

	// Get new password
	newPassword, err := core.ReadPasswordConfirm()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(newPassword)

	e := keypolicy.NewPasswordEditor()
	e.SetPassword(newPassword)
	e.SetRepeat(newPassword)
	defer e.Clear()
	if err := stage(s.Registry(), keypolicy.KindPassword, e); err != nil {
		HandleError(err)
	}

	if err := s.Save(ctx, confirmer(yes)); err != nil {
		HandleError(err)
	}

	// Always try to update keyring if an entry exists
	updateKeyring(vaultIDOf(s.Database()), newPassword)

	// Compact database after rewriting all data
	if err := s.Database().Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("Password changed")
}
