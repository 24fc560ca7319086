package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/vaultkey/internal/crypto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv(EnvDebug, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvDebug, "")
	path := writeConfig(t, `
decryption_time_ms: 2500
compatibility: legacy
cipher: chacha20-poly1305
min_password_score: 3
use_keyring: false
token_slot: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Config{
		DecryptionTimeMs: 2500,
		Compatibility:    CompatibilityLegacy,
		Cipher:           CipherChaCha20,
		MinPasswordScore: 3,
		UseKeyring:       false,
		TokenSlot:        1,
	}
	if *cfg != want {
		t.Errorf("Expected %+v, got %+v", want, cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvDebug, "")
	cfg, err := Load(writeConfig(t, "cipher: chacha20-poly1305\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DecryptionTimeMs != 1000 || !cfg.UseKeyring || cfg.Cipher != CipherChaCha20 {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvDebug, "1")
	cfg, err := Load(writeConfig(t, "debug: false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Debug {
		t.Error("VAULTKEY_DEBUG should enable debug")
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom.yaml")
	if p, err := Path(); err != nil || p != "/tmp/custom.yaml" {
		t.Errorf("Expected override path, got %q (%v)", p, err)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(EnvDebug, "")
	tests := []struct {
		name    string
		content string
	}{
		{"time too low", "decryption_time_ms: 99\n"},
		{"time too high", "decryption_time_ms: 60001\n"},
		{"unknown compatibility", "compatibility: ancient\n"},
		{"unknown cipher", "cipher: rot13\n"},
		{"score too high", "min_password_score: 5\n"},
		{"bad slot", "token_slot: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := Load(writeConfig(t, "cipher: [unclosed\n")); err == nil {
		t.Error("Expected parse error")
	}
}

func TestParseCipher(t *testing.T) {
	if id, err := ParseCipher(CipherChaCha20); err != nil || id != crypto.CipherChaCha20 {
		t.Errorf("Unexpected cipher %s (%v)", id, err)
	}
	if _, err := ParseCipher("des"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if Default().CipherID() != crypto.CipherAES256 {
		t.Error("Default cipher should be AES-256")
	}
}
