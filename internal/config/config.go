// Package config loads the optional vaultkey YAML configuration.
//
// The file lives at $VAULTKEY_CONFIG or, when unset, at
// $XDG_CONFIG_HOME/vaultkey/config.yaml (~/.config/vaultkey/config.yaml).
// A missing file yields the defaults. Environment variables override the
// file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/crypto"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig = "VAULTKEY_CONFIG"
	EnvDebug  = "VAULTKEY_DEBUG"

	CipherAES256   = "aes256-gcm"
	CipherChaCha20 = "chacha20-poly1305"

	CompatibilityModern = "modern"
	CompatibilityLegacy = "legacy"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds user preferences applied to new databases and sessions
type Config struct {
	DecryptionTimeMs int    `yaml:"decryption_time_ms"`
	Compatibility    string `yaml:"compatibility"`
	Cipher           string `yaml:"cipher"`
	MinPasswordScore int    `yaml:"min_password_score"`
	UseKeyring       bool   `yaml:"use_keyring"`
	TokenSlot        int    `yaml:"token_slot"`
	Debug            bool   `yaml:"debug"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DecryptionTimeMs: 1000,
		Compatibility:    CompatibilityModern,
		Cipher:           CipherAES256,
		MinPasswordScore: 0,
		UseKeyring:       true,
		TokenSlot:        2,
	}
}

// Path returns the configuration file location
func Path() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "vaultkey", "config.yaml"), nil
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file returned by Path
func LoadDefault() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// ParseCipher maps a configuration cipher name to its identifier
func ParseCipher(name string) (uuid.UUID, error) {
	switch name {
	case CipherAES256:
		return crypto.CipherAES256, nil
	case CipherChaCha20:
		return crypto.CipherChaCha20, nil
	}
	return uuid.Nil, fmt.Errorf("%w: cipher must be %q or %q, got %q", ErrInvalidConfig, CipherAES256, CipherChaCha20, name)
}

// CipherID returns the identifier of the configured cipher
func (c *Config) CipherID() uuid.UUID {
	id, err := ParseCipher(c.Cipher)
	if err != nil {
		return crypto.CipherAES256
	}
	return id
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Validate rejects out of range values
func (c *Config) Validate() error {
	if c.DecryptionTimeMs < 100 || c.DecryptionTimeMs > 60000 {
		return fmt.Errorf("%w: decryption_time_ms must be between 100 and 60000, got %d", ErrInvalidConfig, c.DecryptionTimeMs)
	}
	switch c.Compatibility {
	case CompatibilityModern, CompatibilityLegacy:
	default:
		return fmt.Errorf("%w: compatibility must be %q or %q, got %q", ErrInvalidConfig, CompatibilityModern, CompatibilityLegacy, c.Compatibility)
	}
	if _, err := ParseCipher(c.Cipher); err != nil {
		return err
	}
	if c.MinPasswordScore < 0 || c.MinPasswordScore > 4 {
		return fmt.Errorf("%w: min_password_score must be between 0 and 4, got %d", ErrInvalidConfig, c.MinPasswordScore)
	}
	if c.TokenSlot != 1 && c.TokenSlot != 2 {
		return fmt.Errorf("%w: token_slot must be 1 or 2, got %d", ErrInvalidConfig, c.TokenSlot)
	}
	return nil
}
