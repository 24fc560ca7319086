package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/git"
	"github.com/illarion/vaultkey/internal/keyring"
)

// Status shows the public header of a database. No key is required.
func Status(path, keyFile string) {
	// Check if the database exists
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No database found at %s\n", path)
			fmt.Println("Run 'vaultkey init' to create one")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		return
	}

	db := OpenDatabase(path)
	defer db.Close()

	// Get status (no key required)
	status, err := db.Status()
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Database: %s (%s)\n", status.Path, formatSize(status.Size))
	fmt.Printf("  Format version: %d\n", status.Version)
	if status.VaultID != "" {
		fmt.Printf("  Vault ID: %s\n", status.VaultID)
	}
	fmt.Printf("  Created: %s\n", formatTime(status.Created))
	fmt.Printf("  Modified: %s\n", formatTime(status.Modified))
	fmt.Printf("  Master key changed: %s\n", formatTime(status.KeyChanged))

	fmt.Println("\nEncryption:")
	fmt.Printf("  Cipher: %s\n", status.Cipher)
	fmt.Printf("  KDF: %s, %d rounds", status.KdfName, status.Kdf.Rounds)
	if !crypto.IsAesKdf(status.Kdf.UUID) {
		fmt.Printf(", %d KiB, %d threads", status.Kdf.MemoryKiB, status.Kdf.Parallelism)
	}
	fmt.Println()
	if !status.Recommended {
		fmt.Println("  warning: KDF parameters are outside the recommended range (see 'vaultkey kdf')")
	}

	fmt.Println("\nMaster key:")
	if len(status.Components) == 0 {
		fmt.Println("  (none)")
	} else {
		fmt.Printf("  %s\n", strings.Join(status.Components, ", "))
	}
	if status.VaultID != "" && keyring.HasPassword(status.VaultID) {
		fmt.Println("  Password stored in keyring")
	}

	if keyFile == "" {
		keyFile = core.GetKeyFileFromEnv()
	}
	var keyFiles []string
	if keyFile != "" {
		keyFiles = append(keyFiles, keyFile)
	}
	if g, err := git.CheckGitIntegration(path, keyFiles); err == nil {
		fmt.Print(git.FormatGitStatus(g))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.RFC3339)
}
