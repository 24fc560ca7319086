package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
	bolt "go.etcd.io/bbolt"
)

// FormatVersion is written into every new database
const FormatVersion = 1

// Bucket names
var (
	ConfigBucket  = []byte("config")  // public header, unencrypted
	PrivateBucket = []byte("private") // key check value and encrypted body
)

// Config keys
var (
	ConfigVersion    = []byte("version")
	ConfigCreated    = []byte("created")
	ConfigModified   = []byte("modified")
	ConfigKeyChanged = []byte("key_changed")
	ConfigCipher     = []byte("cipher")
	ConfigKdf        = []byte("kdf")
	ConfigMasterSeed = []byte("master_seed")
	ConfigComponents = []byte("components")
	ConfigVaultID    = []byte("vault_id")
)

// Private keys
var (
	PrivateCheck = []byte("check")
	PrivateBody  = []byte("body")
)

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrLocked         = errors.New("database is in use by another process")
	ErrCorrupt        = errors.New("database header is corrupt")
)

// Header is the public part of a database
type Header struct {
	Version    int
	Created    time.Time
	Modified   time.Time
	KeyChanged time.Time
	Cipher     uuid.UUID
	Kdf        crypto.KdfParams
	MasterSeed []byte
	Components []uuid.UUID
	VaultID    string
}

// Storage provides BBolt-based storage for vaultkey
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a database file
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new database
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, PrivateBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// IsInitialized checks if a header has been written
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// ReadHeader loads the public header
func (s *Storage) ReadHeader() (*Header, error) {
	var h *Header
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil || config.Get(ConfigVersion) == nil {
			return ErrNotInitialized
		}
		var err error
		h, err = decodeHeader(config)
		return err
	})
	return h, err
}

func decodeHeader(config *bolt.Bucket) (*Header, error) {
	h := &Header{}

	version, err := strconv.Atoi(string(config.Get(ConfigVersion)))
	if err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrCorrupt, err)
	}
	h.Version = version

	for key, dst := range map[string]*time.Time{
		string(ConfigCreated):    &h.Created,
		string(ConfigModified):   &h.Modified,
		string(ConfigKeyChanged): &h.KeyChanged,
	} {
		if data := config.Get([]byte(key)); data != nil {
			if err := dst.UnmarshalBinary(data); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
			}
		}
	}

	if h.Cipher, err = uuid.FromBytes(config.Get(ConfigCipher)); err != nil {
		return nil, fmt.Errorf("%w: cipher: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(config.Get(ConfigKdf), &h.Kdf); err != nil {
		return nil, fmt.Errorf("%w: kdf: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(config.Get(ConfigComponents), &h.Components); err != nil {
		return nil, fmt.Errorf("%w: components: %v", ErrCorrupt, err)
	}
	// Make a copy since the slice is only valid during the transaction
	h.MasterSeed = append([]byte(nil), config.Get(ConfigMasterSeed)...)
	h.VaultID = string(config.Get(ConfigVaultID))
	return h, nil
}

func encodeHeader(config *bolt.Bucket, h *Header) error {
	kdf, err := json.Marshal(h.Kdf)
	if err != nil {
		return err
	}
	components, err := json.Marshal(h.Components)
	if err != nil {
		return err
	}
	created, _ := h.Created.MarshalBinary()
	modified, _ := h.Modified.MarshalBinary()
	keyChanged, _ := h.KeyChanged.MarshalBinary()

	entries := []struct {
		key, value []byte
	}{
		{ConfigVersion, []byte(strconv.Itoa(h.Version))},
		{ConfigCreated, created},
		{ConfigModified, modified},
		{ConfigKeyChanged, keyChanged},
		{ConfigCipher, h.Cipher[:]},
		{ConfigKdf, kdf},
		{ConfigMasterSeed, h.MasterSeed},
		{ConfigComponents, components},
	}
	for _, e := range entries {
		if err := config.Put(e.key, e.value); err != nil {
			return err
		}
	}
	if h.VaultID != "" {
		return config.Put(ConfigVaultID, []byte(h.VaultID))
	}
	return nil
}

// ReadSealed returns the key check value and the encrypted body
func (s *Storage) ReadSealed() (check, body []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		private := tx.Bucket(PrivateBucket)
		if private == nil {
			return ErrNotInitialized
		}
		check = append([]byte(nil), private.Get(PrivateCheck)...)
		body = append([]byte(nil), private.Get(PrivateBody)...)
		if len(check) == 0 {
			return ErrNotInitialized
		}
		return nil
	})
	return check, body, err
}

// WriteSealed stores the header together with data sealed under it.
// Modified is set to the current time. Either everything is written or
// nothing is.
func (s *Storage) WriteSealed(h *Header, check, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return err
		}
		private, err := tx.CreateBucketIfNotExists(PrivateBucket)
		if err != nil {
			return err
		}

		h.Modified = time.Now()
		if h.Created.IsZero() {
			h.Created = h.Modified
		}
		if err := encodeHeader(config, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := private.Put(PrivateCheck, check); err != nil {
			return err
		}
		return private.Put(PrivateBody, body)
	})
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id not found")
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *Storage) GetOrCreateVaultID() (string, error) {
	vaultID, err := s.GetVaultID()
	if err == nil {
		return vaultID, nil
	}

	vaultID = uuid.NewString()
	err = s.db.Update(func(tx *bolt.Tx) error {
		config, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return err
		}
		return config.Put(ConfigVaultID, []byte(vaultID))
	})
	if err != nil {
		return "", err
	}

	return vaultID, nil
}

// Compact creates a compacted copy of the database and swaps it in,
// reclaiming the space left by rewritten bodies.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
