package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/illarion/vaultkey/internal/config"
	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/keypolicy"
	"github.com/illarion/vaultkey/internal/security"
	"github.com/illarion/vaultkey/internal/settings"
	"github.com/illarion/vaultkey/internal/storage"
)

var (
	conf   = config.Default()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Configure sets the configuration and logger used by every command
func Configure(c *config.Config, l *slog.Logger) {
	if c != nil {
		conf = c
	}
	if l != nil {
		logger = l
	}
}

// GetPassword retrieves password from environment or prompts user
// The caller is responsible for calling crypto.ClearBytes on the returned password
func GetPassword(prompt string) ([]byte, error) {
	// Try environment variable first
	password := core.GetPasswordFromEnv()
	if password != nil {
		return password, nil
	}

	// Prompt user
	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	return password, nil
}

// GetPasswordForInit retrieves a new password
// Checks environment variable first, then prompts with confirmation
func GetPasswordForInit() ([]byte, error) {
	// Try environment variable first
	password := core.GetPasswordFromEnv()
	if password != nil {
		return password, nil
	}

	// Fall back to confirmation prompt
	return core.ReadPasswordConfirm()
}

// Confirm asks a yes/no question. An empty answer selects defaultYes.
func Confirm(prompt string, defaultYes bool) bool {
	fmt.Print(prompt)

	var response string
	fmt.Scanln(&response)
	return parseAnswer(response, defaultYes)
}

func parseAnswer(response string, defaultYes bool) bool {
	response = strings.ToLower(strings.TrimSpace(response))
	switch response {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return defaultYes
}

// confirmer shows policy warnings on the terminal. With yes set every
// warning is accepted; without a terminal every warning is declined.
func confirmer(yes bool) keypolicy.Confirmer {
	if yes {
		return keypolicy.AcceptAll
	}
	if !core.IsTerminal() {
		return keypolicy.DeclineAll
	}
	return keypolicy.ConfirmFunc(func(w keypolicy.Warning) bool {
		fmt.Printf("\nwarning: %s\n%s\n", w.Title, w.Message)
		return Confirm("Continue anyway? [y/N]: ", false)
	})
}

// HandleError handles common errors consistently
func HandleError(err error) {
	var commitErr *keypolicy.CommitError
	var saveErr *settings.SaveError

	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: database not found\n")
		fmt.Fprintf(os.Stderr, "Run 'vaultkey init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: database already exists\n")
		fmt.Fprintf(os.Stderr, "Use 'vaultkey status' to see current state\n")
	case errors.Is(err, core.ErrWrongKey):
		fmt.Fprintf(os.Stderr, "Error: invalid credentials\n")
	case errors.Is(err, storage.ErrLocked):
		fmt.Fprintf(os.Stderr, "Error: database is in use by another process\n")
	case errors.Is(err, keypolicy.ErrUserCancelled):
		fmt.Fprintln(os.Stderr, "Cancelled")
	case errors.Is(err, keypolicy.ErrNoKeyMaterial):
		fmt.Fprintf(os.Stderr, "Error: the master key needs at least one component\n")
	case errors.Is(err, keypolicy.ErrHardwareUnavailable):
		fmt.Fprintf(os.Stderr, "Error: no challenge-response token found\n")
		fmt.Fprintf(os.Stderr, "Use 'vaultkey token enroll' to set one up\n")
	case errors.As(err, &commitErr) && errors.Is(err, keypolicy.ErrInvalidComponent):
		fmt.Fprintf(os.Stderr, "Error: invalid %s: %s\n", strings.ToLower(commitErr.Kind.String()), commitErr.Cause)
	case errors.As(err, &saveErr):
		fmt.Fprintf(os.Stderr, "Error: %s\n", saveErr)
	case errors.Is(err, security.ErrPathEscapes), errors.Is(err, security.ErrAbsolutePath):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Generated key files must be named relative to the database directory\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

// stage adds an editor for kind, replacing the component when one is
// already present
func stage(reg *keypolicy.Registry, kind keypolicy.Kind, editor keypolicy.Editor) error {
	if slot, ok := reg.Slot(kind); ok && slot.State() == keypolicy.StatePresent {
		return reg.RequestEdit(kind, editor)
	}
	return reg.RequestAdd(kind, editor)
}

// policyOptions configures registries and negotiators from the config
func policyOptions() []keypolicy.Option {
	return []keypolicy.Option{
		keypolicy.WithLogger(logger),
		keypolicy.WithMinPasswordScore(conf.MinPasswordScore),
	}
}
