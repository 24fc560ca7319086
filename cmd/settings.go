package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/vaultkey/internal/config"
	"github.com/illarion/vaultkey/internal/settings"
	"github.com/illarion/vaultkey/internal/storage"
	"gopkg.in/yaml.v3"
)

// SettingsOptions edits several pages at once
type SettingsOptions struct {
	Cipher string
	Import string // YAML file with the General page
	Export bool
	Yes    bool
}

// openSettings unlocks the database and starts a settings session
func openSettings(ctx context.Context, unlock UnlockOptions) (*settings.Settings, func()) {
	db := UnlockDatabase(ctx, unlock)
	s, err := settings.New(db, settings.WithLogger(logger), settings.WithPolicyOptions(policyOptions()...))
	if err != nil {
		db.Close()
		HandleError(err)
	}
	return s, func() { db.Close() }
}

// applySettings previews the pending changes and saves them after
// confirmation. It reports whether anything was saved.
func applySettings(ctx context.Context, s *settings.Settings, yes bool) bool {
	if !s.Changed() {
		fmt.Println("No changes")
		return false
	}

	fmt.Println("Pending changes:")
	fmt.Print(s.Diff())

	if !yes {
		if !Confirm("\nApply these changes? [Y/n]: ", true) {
			fmt.Println("Cancelled")
			return false
		}
	}

	if err := s.Save(ctx, confirmer(yes)); err != nil {
		HandleError(err)
	}
	fmt.Println("Settings saved")
	return true
}

// Settings shows the settings of a database or applies several at once
func Settings(ctx context.Context, unlock UnlockOptions, opts SettingsOptions) {
	s, done := openSettings(ctx, unlock)
	defer done()

	if opts.Export {
		out, err := yaml.Marshal(s.Metadata())
		if err != nil {
			HandleError(err)
		}
		fmt.Print(string(out))
		return
	}

	edited := false
	if opts.Import != "" {
		data, err := os.ReadFile(opts.Import)
		if err != nil {
			HandleError(fmt.Errorf("failed to read %s: %w", opts.Import, err))
		}
		m := storage.NewMetadata()
		if err := yaml.Unmarshal(data, m); err != nil {
			HandleError(fmt.Errorf("failed to parse %s: %w", opts.Import, err))
		}
		if err := m.Validate(); err != nil {
			HandleError(err)
		}
		s.SetMetadata(m)
		edited = true
	}
	if opts.Cipher != "" {
		id, err := config.ParseCipher(opts.Cipher)
		if err != nil {
			HandleError(err)
		}
		s.SetCipher(id)
		edited = true
	}

	if !edited {
		fmt.Print(s.Summary())
		return
	}
	applySettings(ctx, s, opts.Yes)
}
