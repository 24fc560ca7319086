package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keys"
	"github.com/illarion/vaultkey/internal/storage"
)

const (
	DefaultFile    = "passwords.vault"
	FilePermSecure = 0600 // File: owner rw only
	keyCheckString = "vaultkey-key-check"
)

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrAlreadyExists  = errors.New("database already exists")
	ErrWrongKey       = errors.New("invalid credentials")
	ErrLocked         = errors.New("database is locked")
	ErrNoKey          = errors.New("master key has no components")
	ErrVersion        = errors.New("unsupported database version")
)

// Body is the encrypted part of a database
type Body struct {
	Metadata storage.Metadata `json:"metadata"`
}

// CreateSpec describes a new database. Zero values select defaults.
type CreateSpec struct {
	Key      *keys.CompositeKey
	Kdf      crypto.Kdf
	Cipher   uuid.UUID
	Metadata *storage.Metadata
}

// Option configures a Database
type Option func(*Database)

// WithLogger sets the structured logger; the default discards everything
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.logger = l
		}
	}
}

// Database is an open vaultkey file. Until Unlock succeeds only the public
// header is available.
type Database struct {
	path   string
	db     *storage.Storage
	header *storage.Header

	key      *keys.CompositeKey
	kdf      crypto.Kdf
	metadata *storage.Metadata

	logger *slog.Logger
}

func newDatabase(path string, opts []Option) *Database {
	d := &Database{
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create writes a new database at path and returns it unlocked
func Create(ctx context.Context, path string, params CreateSpec, opts ...Option) (*Database, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}
	if params.Key.IsEmpty() {
		return nil, ErrNoKey
	}

	kdf := params.Kdf
	if kdf == nil {
		kdf = crypto.NewArgon2Kdf()
	} else {
		kdf = kdf.Clone()
	}
	cipherID := params.Cipher
	if cipherID == uuid.Nil {
		cipherID = crypto.CipherAES256
	}
	metadata := storage.NewMetadata()
	if params.Metadata != nil {
		metadata = params.Metadata.Clone()
	}
	metadata.Normalize()
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	d := newDatabase(path, opts)
	d.db = db
	d.header = &storage.Header{
		Version:    storage.FormatVersion,
		Cipher:     cipherID,
		VaultID:    uuid.NewString(),
		KeyChanged: time.Now(),
	}

	if err := d.reseal(ctx, sealState{key: params.Key, kdf: kdf, cipher: cipherID, metadata: metadata}); err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	d.logger.Info("database created", "path", path, "kdf", kdf.Name(), "cipher", crypto.CipherName(cipherID))
	return d, nil
}

// Open reads the header of an existing database. The database stays
// locked until Unlock.
func Open(path string, opts ...Option) (*Database, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	header, err := db.ReadHeader()
	if err != nil {
		db.Close()
		if errors.Is(err, storage.ErrNotInitialized) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if header.Version > storage.FormatVersion {
		db.Close()
		return nil, fmt.Errorf("%w: %d", ErrVersion, header.Version)
	}

	d := newDatabase(path, opts)
	d.db = db
	d.header = header
	return d, nil
}

// Close releases the database file
func (d *Database) Close() error {
	d.lockMemory()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Database) lockMemory() {
	d.key = nil
	d.kdf = nil
	d.metadata = nil
}

// Unlock verifies key and decrypts the body
func (d *Database) Unlock(ctx context.Context, key *keys.CompositeKey) error {
	if key.IsEmpty() {
		return ErrNoKey
	}
	kdf, err := crypto.KdfFromParams(d.header.Kdf)
	if err != nil {
		return fmt.Errorf("failed to load KDF: %w", err)
	}

	check, body, err := d.db.ReadSealed()
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	enc, err := d.encryptor(ctx, key, kdf, d.header.MasterSeed, d.header.Cipher)
	if err != nil {
		return err
	}
	defer enc.Destroy()

	if plain, err := enc.Decrypt(check); err != nil || string(plain) != keyCheckString {
		return ErrWrongKey
	}

	plain, err := enc.Decrypt(body)
	if err != nil {
		return fmt.Errorf("failed to decrypt body: %w", err)
	}
	defer crypto.ClearBytes(plain)

	var b Body
	if err := json.Unmarshal(plain, &b); err != nil {
		return fmt.Errorf("failed to parse body: %w", err)
	}

	d.key = key
	d.kdf = kdf
	d.metadata = &b.Metadata
	d.logger.Debug("database unlocked", "path", d.path)
	return nil
}

// Locked reports whether Unlock has not succeeded yet
func (d *Database) Locked() bool { return d.key == nil }

func (d *Database) Path() string { return d.path }

// Key returns the master key; nil while locked
func (d *Database) Key() *keys.CompositeKey { return d.key }

// Kdf returns a copy of the KDF in effect. It is available while locked.
func (d *Database) Kdf() crypto.Kdf {
	if d.kdf != nil {
		return d.kdf.Clone()
	}
	kdf, err := crypto.KdfFromParams(d.header.Kdf)
	if err != nil {
		return nil
	}
	return kdf
}

func (d *Database) Cipher() uuid.UUID { return d.header.Cipher }

// Components lists the key component UUIDs recorded in the header
func (d *Database) Components() []uuid.UUID {
	return append([]uuid.UUID(nil), d.header.Components...)
}

// Metadata returns a copy of the general settings; nil while locked
func (d *Database) Metadata() *storage.Metadata {
	if d.metadata == nil {
		return nil
	}
	return d.metadata.Clone()
}

// SetKey re-seals the database under key with a fresh master seed
func (d *Database) SetKey(ctx context.Context, key *keys.CompositeKey) error {
	if d.Locked() {
		return ErrLocked
	}
	if key.IsEmpty() {
		return ErrNoKey
	}
	kdf := d.kdf.Clone()
	if err := d.reseal(ctx, sealState{key: key, kdf: kdf, cipher: d.header.Cipher, metadata: d.metadata, keyChanged: true}); err != nil {
		return err
	}
	d.logger.Info("master key changed", "components", len(key.Components()))
	return nil
}

// ChangeKdf re-seals the database under kdf
func (d *Database) ChangeKdf(kdf crypto.Kdf) error {
	return d.ChangeKdfContext(context.Background(), kdf)
}

// ChangeKdfContext is ChangeKdf with a context for challenge-response keys
func (d *Database) ChangeKdfContext(ctx context.Context, kdf crypto.Kdf) error {
	if d.Locked() {
		return ErrLocked
	}
	if kdf == nil {
		return fmt.Errorf("no KDF given")
	}
	if err := d.reseal(ctx, sealState{key: d.key, kdf: kdf.Clone(), cipher: d.header.Cipher, metadata: d.metadata}); err != nil {
		return err
	}
	d.logger.Info("kdf changed", "kdf", kdf.Name(), "rounds", kdf.Rounds())
	return nil
}

// SetCipher re-encrypts the body with cipher
func (d *Database) SetCipher(ctx context.Context, cipherID uuid.UUID) error {
	if d.Locked() {
		return ErrLocked
	}
	if cipherID == d.header.Cipher {
		return nil
	}
	if crypto.CipherName(cipherID) == "unknown" {
		return crypto.ErrUnknownCipher
	}
	kdf := d.kdf.Clone()
	if err := d.reseal(ctx, sealState{key: d.key, kdf: kdf, cipher: cipherID, metadata: d.metadata}); err != nil {
		return err
	}
	d.logger.Info("cipher changed", "cipher", crypto.CipherName(cipherID))
	return nil
}

// SetMetadata replaces the general settings
func (d *Database) SetMetadata(ctx context.Context, m *storage.Metadata) error {
	if d.Locked() {
		return ErrLocked
	}
	m = m.Clone()
	m.Normalize()
	if err := m.Validate(); err != nil {
		return err
	}
	kdf := d.kdf.Clone()
	return d.reseal(ctx, sealState{key: d.key, kdf: kdf, cipher: d.header.Cipher, metadata: m})
}

// Compact reclaims unused space in the database file
func (d *Database) Compact() error {
	if err := d.db.Compact(); err != nil {
		return err
	}
	d.logger.Info("database compacted", "path", d.path)
	return nil
}

// GetOrCreateVaultID returns the stable identifier of this database
func (d *Database) GetOrCreateVaultID() (string, error) {
	id, err := d.db.GetOrCreateVaultID()
	if err != nil {
		return "", err
	}
	d.header.VaultID = id
	return id, nil
}

type sealState struct {
	key        *keys.CompositeKey
	kdf        crypto.Kdf
	cipher     uuid.UUID
	metadata   *storage.Metadata
	keyChanged bool
}

// reseal encrypts everything under s with fresh seeds and writes it in one
// transaction. The in-memory state only changes after the write succeeded.
func (d *Database) reseal(ctx context.Context, s sealState) error {
	if err := s.kdf.RandomizeSeed(); err != nil {
		return fmt.Errorf("failed to generate KDF seed: %w", err)
	}
	masterSeed, err := crypto.GenerateRandom(crypto.SeedSize)
	if err != nil {
		return fmt.Errorf("failed to generate master seed: %w", err)
	}

	enc, err := d.encryptor(ctx, s.key, s.kdf, masterSeed, s.cipher)
	if err != nil {
		return err
	}
	defer enc.Destroy()

	check, err := enc.Encrypt([]byte(keyCheckString))
	if err != nil {
		return fmt.Errorf("failed to encrypt key check: %w", err)
	}
	plain, err := json.Marshal(Body{Metadata: *s.metadata})
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}
	body, err := enc.Encrypt(plain)
	crypto.ClearBytes(plain)
	if err != nil {
		return fmt.Errorf("failed to encrypt body: %w", err)
	}

	next := *d.header
	next.Cipher = s.cipher
	next.Kdf = s.kdf.Params()
	next.MasterSeed = masterSeed
	next.Components = s.key.Components()
	if s.keyChanged {
		next.KeyChanged = time.Now()
	}

	if err := d.db.WriteSealed(&next, check, body); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}

	d.header = &next
	d.key = s.key
	d.kdf = s.kdf
	d.metadata = s.metadata
	return nil
}

// encryptor derives the final key: SHA-256(masterSeed || KDF(raw key)).
// The KDF seed doubles as the challenge for challenge-response components.
func (d *Database) encryptor(ctx context.Context, key *keys.CompositeKey, kdf crypto.Kdf, masterSeed []byte, cipherID uuid.UUID) (*crypto.Encryptor, error) {
	raw, err := key.RawKey(ctx, kdf.Seed())
	if err != nil {
		return nil, fmt.Errorf("failed to compute raw key: %w", err)
	}
	defer crypto.ClearBytes(raw)

	start := time.Now()
	transformed, err := kdf.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to transform key: %w", err)
	}
	defer crypto.ClearBytes(transformed)
	d.logger.Debug("key transformed", "kdf", kdf.Name(), "rounds", kdf.Rounds(), "elapsed", time.Since(start))

	h := sha256.New()
	h.Write(masterSeed)
	h.Write(transformed)
	final := h.Sum(nil)
	defer crypto.ClearBytes(final)

	return crypto.NewEncryptor(cipherID, final)
}
