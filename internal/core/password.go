package core

import (
	"fmt"
	"os"
	"syscall"

	"github.com/illarion/vaultkey/internal/crypto"
	"golang.org/x/term"
)

const (
	EnvPassword = "VAULTKEY_PASSWORD"
	EnvKeyFile  = "VAULTKEY_KEYFILE"
)

// ReadPassword reads a password from the terminal without echoing
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // New line after password

	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func ReadPasswordConfirm() ([]byte, error) {
	password1, err := ReadPassword("Enter new password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password1)

	password2, err := ReadPassword("Repeat password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		return nil, fmt.Errorf("passwords do not match")
	}

	result := make([]byte, len(password1))
	copy(result, password1)
	return result, nil
}

// IsTerminal reports whether stdin is interactive
func IsTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// GetPasswordFromEnv reads password from VAULTKEY_PASSWORD environment variable
func GetPasswordFromEnv() []byte {
	password := os.Getenv(EnvPassword)
	if password == "" {
		return nil
	}
	// Return a copy to avoid issues when clearing the bytes
	result := make([]byte, len(password))
	copy(result, []byte(password))
	return result
}

// GetKeyFileFromEnv returns the key file named by VAULTKEY_KEYFILE
func GetKeyFileFromEnv() string {
	return os.Getenv(EnvKeyFile)
}
