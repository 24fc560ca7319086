package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/hardware"
	"github.com/illarion/vaultkey/internal/keyring"
	"github.com/illarion/vaultkey/internal/keys"
)

// UnlockOptions names the key material needed beyond the password
type UnlockOptions struct {
	Path    string
	KeyFile string // falls back to VAULTKEY_KEYFILE
}

// OpenDatabase opens the database at path and exits on error. The database
// stays locked.
func OpenDatabase(path string) *core.Database {
	db, err := core.Open(path, core.WithLogger(logger))
	if err != nil {
		HandleError(err)
	}
	return db
}

// UnlockDatabase opens and unlocks the database, exiting on error. The
// password comes from VAULTKEY_PASSWORD, the keyring or a prompt, in that
// order. A stale keyring entry is removed and the user is asked instead.
func UnlockDatabase(ctx context.Context, opts UnlockOptions) *core.Database {
	db := OpenDatabase(opts.Path)

	vaultID := ""
	if info, err := db.Status(); err == nil {
		vaultID = info.VaultID
	}

	password, fromKeyring, err := unlockPassword(db, vaultID)
	if err != nil {
		db.Close()
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	key, err := unlockKey(db, password, opts.KeyFile)
	if err != nil {
		db.Close()
		HandleError(err)
	}

	err = db.Unlock(ctx, key)
	if errors.Is(err, core.ErrWrongKey) && fromKeyring {
		fmt.Fprintln(os.Stderr, "warning: password in keyring is stale, removing it")
		_ = keyring.DeletePassword(vaultID)

		password, err = GetPassword("Enter password: ")
		if err != nil {
			db.Close()
			HandleError(err)
		}
		defer crypto.ClearBytes(password)
		if key, err = unlockKey(db, password, opts.KeyFile); err == nil {
			err = db.Unlock(ctx, key)
		}
	}
	if err != nil {
		db.Close()
		HandleError(err)
	}
	return db
}

// unlockPassword returns nil when the database has no password component
func unlockPassword(db *core.Database, vaultID string) ([]byte, bool, error) {
	if !slices.Contains(db.Components(), keys.PasswordKeyUUID) {
		return nil, false, nil
	}
	if password := core.GetPasswordFromEnv(); password != nil {
		return password, false, nil
	}
	if conf.UseKeyring && vaultID != "" {
		if stored, err := keyring.GetPassword(vaultID); err == nil {
			return []byte(stored), true, nil
		}
	}
	password, err := core.ReadPassword("Enter password: ")
	return password, false, err
}

// unlockKey assembles the composite key in the order components are
// recorded in the header
func unlockKey(db *core.Database, password []byte, keyFile string) (*keys.CompositeKey, error) {
	key := keys.NewCompositeKey()
	for _, id := range db.Components() {
		switch id {
		case keys.PasswordKeyUUID:
			key.AddKey(keys.NewPasswordKey(password))
		case keys.FileKeyUUID:
			if keyFile == "" {
				keyFile = core.GetKeyFileFromEnv()
			}
			if keyFile == "" {
				return nil, fmt.Errorf("database requires a key file (use --keyfile or %s)", core.EnvKeyFile)
			}
			fk, err := keys.LoadFileKey(keyFile)
			if err != nil {
				return nil, err
			}
			key.AddKey(fk)
		case keys.ChallengeResponseKeyUUID:
			slot := hardware.Slot{Number: conf.TokenSlot, Name: "Software token"}
			key.AddChallengeResponseKey(keys.NewSlotKey(hardware.NewSoftToken(), slot))
		default:
			return nil, fmt.Errorf("unsupported key component %s", id)
		}
	}
	return key, nil
}
