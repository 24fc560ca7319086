package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
)

const (
	rawKeyFileSize = 32
	hexKeyFileSize = 64
	maxKeyFileSize = 64 * 1024 * 1024
)

var (
	ErrEmptyKeyFile   = errors.New("key file is empty")
	ErrKeyFileTooBig  = errors.New("key file is too large")
	ErrKeyFileNotFile = errors.New("key file is not a regular file")
)

// FileKey holds the key material read from a key file
type FileKey struct {
	raw  []byte
	path string
}

func (k *FileKey) UUID() uuid.UUID { return FileKeyUUID }
func (k *FileKey) RawKey() []byte  { return k.raw }
func (k *FileKey) Path() string    { return k.path }

// LoadFileKey reads a key file. A 32 byte file is used as is, a 64 byte
// hex file is decoded, anything else is hashed with SHA-256.
func LoadFileKey(path string) (*FileKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access key file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrKeyFileNotFile
	}
	if info.Size() == 0 {
		return nil, ErrEmptyKeyFile
	}
	if info.Size() > maxKeyFileSize {
		return nil, ErrKeyFileTooBig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer crypto.ClearBytes(data)

	return &FileKey{raw: keyFromData(data), path: path}, nil
}

func keyFromData(data []byte) []byte {
	switch len(data) {
	case rawKeyFileSize:
		return append([]byte(nil), data...)
	case hexKeyFileSize:
		raw, err := hex.DecodeString(string(data))
		if err == nil {
			return raw
		}
	}
	sum := sha256.Sum256(data)
	return sum[:]
}

// GenerateKeyFileData returns the contents of a new random hex key file
func GenerateKeyFileData() ([]byte, error) {
	raw, err := crypto.GenerateRandom(rawKeyFileSize)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(raw)

	out := make([]byte, hexKeyFileSize)
	hex.Encode(out, raw)
	return out, nil
}
