package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keyring"
	"github.com/illarion/vaultkey/internal/keys"
)

func vaultIDOf(db *core.Database) string {
	info, err := db.Status()
	if err != nil {
		return ""
	}
	return info.VaultID
}

// updateKeyring replaces a remembered password after it changed
func updateKeyring(vaultID string, password []byte) {
	if vaultID == "" || !keyring.HasPassword(vaultID) {
		return
	}
	if err := keyring.SavePassword(vaultID, string(password)); err == nil {
		fmt.Println("Keyring updated with new password")
	}
}

// forgetKeyring drops a remembered password that no longer unlocks anything
func forgetKeyring(vaultID string) {
	if vaultID == "" {
		return
	}
	if err := keyring.DeletePassword(vaultID); err == nil {
		fmt.Println("Password removed from keyring")
	}
}

// KeyringSave saves the password to the OS keyring
func KeyringSave(ctx context.Context, unlock UnlockOptions) {
	db := OpenDatabase(unlock.Path)
	defer db.Close()

	if !slices.Contains(db.Components(), keys.PasswordKeyUUID) {
		fmt.Fprintln(os.Stderr, "Error: database has no password")
		os.Exit(1)
	}

	// Prompt for password
	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(password)

	// Verify password is correct
	key, err := unlockKey(db, password, unlock.KeyFile)
	if err != nil {
		HandleError(err)
	}
	if err := db.Unlock(ctx, key); err != nil {
		HandleError(err)
	}

	// Get vault ID (create if not exists)
	vaultID, err := db.GetOrCreateVaultID()
	if err != nil {
		HandleError(err)
	}

	// Save to keyring
	if err := keyring.SavePassword(vaultID, string(password)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the password from the OS keyring
func KeyringDelete(path string) {
	db := OpenDatabase(path)
	defer db.Close()

	vaultID := vaultIDOf(db)
	if vaultID == "" {
		fmt.Println("No password stored in keyring")
		return
	}

	// Delete from keyring
	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Println("No password stored in keyring")
		return
	}

	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(path string) {
	db := OpenDatabase(path)
	defer db.Close()

	vaultID := vaultIDOf(db)
	if vaultID != "" && keyring.HasPassword(vaultID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}
