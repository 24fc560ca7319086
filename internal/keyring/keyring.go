// Package keyring stores vaultkey secrets in the OS keyring.
//
// Two kinds of entries live under the "vaultkey" service:
//   - the remembered password of a database, keyed by its vault ID
//   - challenge-response token secrets, keyed by "token-slot-<n>"
package keyring

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "vaultkey"

// ErrNotFound is returned when no entry exists for the requested key
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores a password in the OS keyring
func SavePassword(vaultID string, password string) error {
	return keyring.Set(serviceName, vaultID, password)
}

// GetPassword retrieves a password from the OS keyring
func GetPassword(vaultID string) (string, error) {
	return keyring.Get(serviceName, vaultID)
}

// DeletePassword removes a password from the OS keyring
func DeletePassword(vaultID string) error {
	return keyring.Delete(serviceName, vaultID)
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(vaultID string) bool {
	_, err := keyring.Get(serviceName, vaultID)
	return err == nil
}

func tokenUser(slot int) string {
	return fmt.Sprintf("token-slot-%d", slot)
}

// SaveTokenSecret stores the HMAC secret of a challenge-response slot
func SaveTokenSecret(slot int, secret []byte) error {
	return keyring.Set(serviceName, tokenUser(slot), hex.EncodeToString(secret))
}

// GetTokenSecret retrieves the HMAC secret of a challenge-response slot
func GetTokenSecret(slot int) ([]byte, error) {
	encoded, err := keyring.Get(serviceName, tokenUser(slot))
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("corrupt token secret for slot %d: %w", slot, err)
	}
	return secret, nil
}

// DeleteTokenSecret removes the secret of a challenge-response slot
func DeleteTokenSecret(slot int) error {
	err := keyring.Delete(serviceName, tokenUser(slot))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
