package core

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keys"
)

// StatusInfo describes a database without needing the master key
type StatusInfo struct {
	Path        string
	Version     int
	VaultID     string
	Created     time.Time
	Modified    time.Time
	KeyChanged  time.Time
	Cipher      string
	Kdf         crypto.KdfParams
	KdfName     string
	Components  []string
	Size        int64
	Recommended bool // KDF parameters are at or above the safety floors
}

// Status reads the public header
func (d *Database) Status() (*StatusInfo, error) {
	h := d.header
	s := &StatusInfo{
		Path:       d.path,
		Version:    h.Version,
		VaultID:    h.VaultID,
		Created:    h.Created,
		Modified:   h.Modified,
		KeyChanged: h.KeyChanged,
		Cipher:     crypto.CipherName(h.Cipher),
		Kdf:        h.Kdf,
	}
	s.Kdf.Seed = nil

	if kdf, err := crypto.KdfFromParams(h.Kdf); err == nil {
		s.KdfName = kdf.Name()
	} else {
		s.KdfName = "unknown"
	}
	s.Recommended = recommendedKdf(h.Kdf)

	for _, id := range h.Components {
		s.Components = append(s.Components, componentName(id))
	}

	if info, err := os.Stat(d.path); err == nil {
		s.Size = info.Size()
	}
	return s, nil
}

func recommendedKdf(p crypto.KdfParams) bool {
	if crypto.IsAesKdf(p.UUID) {
		return p.Rounds >= 100000
	}
	return p.Rounds <= 10000
}

func componentName(id uuid.UUID) string {
	switch id {
	case keys.PasswordKeyUUID:
		return "password"
	case keys.FileKeyUUID:
		return "key file"
	case keys.ChallengeResponseKeyUUID:
		return "challenge-response"
	}
	return fmt.Sprintf("unknown (%s)", id)
}
