package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize  = 32 // AES-256 / ChaCha20 key size
	SeedSize = 32 // Master seed and KDF seed size
	TagSize  = 16 // AEAD authentication tag size
)

var (
	CipherAES256   = uuid.MustParse("31c1f2e6-bf71-4350-be58-05216afc5aff")
	CipherChaCha20 = uuid.MustParse("d6038a2b-8b6f-4cb5-a524-339a31dbb59a")
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrUnknownCipher     = errors.New("unknown cipher")
)

var cipherNames = map[uuid.UUID]string{
	CipherAES256:   "AES-256-GCM",
	CipherChaCha20: "ChaCha20-Poly1305",
}

// Ciphers returns the supported cipher identifiers in display order
func Ciphers() []uuid.UUID {
	return []uuid.UUID{CipherAES256, CipherChaCha20}
}

// CipherName returns a human readable cipher name
func CipherName(id uuid.UUID) string {
	if name, ok := cipherNames[id]; ok {
		return name
	}
	return "unknown"
}

// Encryptor provides authenticated encryption with the selected cipher
type Encryptor struct {
	key  []byte
	aead cipher.AEAD
}

// NewEncryptor creates a new encryptor for the cipher identified by id.
// The key is copied; the caller keeps ownership of its slice.
func NewEncryptor(id uuid.UUID, key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	k := append([]byte(nil), key...)

	var aead cipher.AEAD
	switch id {
	case CipherAES256:
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
	case CipherChaCha20:
		var err error
		aead, err = chacha20poly1305.New(k)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305: %w", err)
		}
	default:
		ClearBytes(k)
		return nil, fmt.Errorf("%w: %s", ErrUnknownCipher, id)
	}

	return &Encryptor{key: k, aead: aead}, nil
}

// Encrypt seals plaintext and prepends the random nonce
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns+TagSize {
		return nil, ErrInvalidCiphertext
	}

	plaintext, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
