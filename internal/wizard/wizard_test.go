package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keypolicy"
	"github.com/illarion/vaultkey/internal/keys"
)

// fastKdf switches the Encryption page to the cheapest Argon2 settings
func fastKdf(t *testing.T, w *Wizard) {
	t.Helper()
	n := w.Negotiator()
	n.SelectCompatibilityMode(keypolicy.ModeAdvanced)
	if _, err := n.SetMemoryKiB(crypto.Argon2MinMemoryKiB); err != nil {
		t.Fatalf("SetMemoryKiB failed: %v", err)
	}
	if _, err := n.SetParallelism(1); err != nil {
		t.Fatalf("SetParallelism failed: %v", err)
	}
	if _, err := n.SetCost(1); err != nil {
		t.Fatalf("SetCost failed: %v", err)
	}
}

func addPassword(t *testing.T, w *Wizard, pw string) {
	t.Helper()
	e := keypolicy.NewPasswordEditor()
	e.SetPassword([]byte(pw))
	e.SetRepeat([]byte(pw))
	if err := w.Registry().RequestAdd(keypolicy.KindPassword, e); err != nil {
		t.Fatalf("RequestAdd failed: %v", err)
	}
}

func TestNavigation(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "db.vault"))
	ctx := context.Background()

	if w.Page() != PageGeneral {
		t.Fatalf("Expected General page, got %s", w.Page())
	}
	if err := w.Back(); !errors.Is(err, ErrNoPreviousPage) {
		t.Errorf("Expected ErrNoPreviousPage, got %v", err)
	}
	if w.Negotiator().Mode() != keypolicy.ModeSimple {
		t.Error("Encryption page should start in simple mode")
	}
	if w.Metadata().Name != "Passwords" {
		t.Errorf("Expected default name, got %q", w.Metadata().Name)
	}

	if err := w.Next(ctx, nil); err != nil {
		t.Fatalf("Next from General failed: %v", err)
	}
	fastKdf(t, w)
	if err := w.Next(ctx, nil); err != nil {
		t.Fatalf("Next from Encryption failed: %v", err)
	}
	if w.Page() != PageMasterKey {
		t.Fatalf("Expected Master key page, got %s", w.Page())
	}
	if err := w.Next(ctx, nil); !errors.Is(err, ErrNoNextPage) {
		t.Errorf("Expected ErrNoNextPage, got %v", err)
	}
	if err := w.Back(); err != nil || w.Page() != PageEncryption {
		t.Errorf("Back failed: %v, page %s", err, w.Page())
	}
	if _, err := w.Finish(ctx, keypolicy.AcceptAll); !errors.Is(err, ErrNotLastPage) {
		t.Errorf("Expected ErrNotLastPage, got %v", err)
	}
}

func TestInvalidGeneralPage(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "db.vault"))
	m := w.Metadata()
	m.HistoryMaxItems = -5
	w.SetMetadata(m)

	if err := w.Next(context.Background(), nil); err == nil {
		t.Fatal("Expected invalid metadata to block Next")
	}
	if w.Page() != PageGeneral {
		t.Errorf("Page should not change on failure, got %s", w.Page())
	}
}

func TestEncryptionPageWarningDeclined(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "db.vault"))
	ctx := context.Background()
	if err := w.Next(ctx, nil); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	n := w.Negotiator()
	n.SelectCompatibilityMode(keypolicy.ModeAdvanced)
	if err := n.SetAlgorithm(keypolicy.AlgorithmAesKdf); err != nil {
		t.Fatalf("SetAlgorithm failed: %v", err)
	}
	_, _ = n.SetCost(10)

	if err := w.Next(ctx, keypolicy.DeclineAll); !errors.Is(err, keypolicy.ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if w.Page() != PageEncryption {
		t.Errorf("Declined warning should keep the page, got %s", w.Page())
	}
	if err := w.Next(ctx, keypolicy.AcceptAll); err != nil {
		t.Errorf("Accepted warning should advance: %v", err)
	}
}

func TestFinish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.vault")
	w := New(path)
	ctx := context.Background()

	m := w.Metadata()
	m.Name = "  Work  "
	w.SetMetadata(m)
	w.SetCipher(crypto.CipherChaCha20)

	if err := w.Next(ctx, nil); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	fastKdf(t, w)
	if err := w.Next(ctx, nil); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if _, err := w.Finish(ctx, keypolicy.AcceptAll); !errors.Is(err, keypolicy.ErrNoKeyMaterial) {
		t.Fatalf("Expected ErrNoKeyMaterial, got %v", err)
	}

	addPassword(t, w, "correct horse battery staple")
	// a lone new password needs confirmation
	if _, err := w.Finish(ctx, keypolicy.DeclineAll); !errors.Is(err, keypolicy.ErrUserCancelled) {
		t.Fatalf("Expected ErrUserCancelled, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Declined finish must not create the database")
	}

	db, err := w.Finish(ctx, keypolicy.AcceptAll)
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	db.Close()

	if _, err := w.Finish(ctx, keypolicy.AcceptAll); !errors.Is(err, ErrFinished) {
		t.Errorf("Expected ErrFinished, got %v", err)
	}

	opened, err := core.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer opened.Close()

	key := keys.NewCompositeKey()
	key.AddKey(keys.NewPasswordKey([]byte("correct horse battery staple")))
	if err := opened.Unlock(ctx, key); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if opened.Metadata().Name != "Work" {
		t.Errorf("Expected normalized name, got %q", opened.Metadata().Name)
	}
	if opened.Cipher() != crypto.CipherChaCha20 {
		t.Errorf("Expected ChaCha20, got %s", crypto.CipherName(opened.Cipher()))
	}
	if opened.Kdf().Rounds() != 1 {
		t.Errorf("Expected negotiated rounds, got %d", opened.Kdf().Rounds())
	}
}

func TestFinishRetryAfterCreateFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.vault")
	if err := os.WriteFile(path, []byte("occupied"), 0600); err != nil {
		t.Fatal(err)
	}
	w := New(path)
	ctx := context.Background()
	_ = w.Next(ctx, nil)
	fastKdf(t, w)
	_ = w.Next(ctx, nil)
	addPassword(t, w, "pw")

	if _, err := w.Finish(ctx, keypolicy.AcceptAll); !errors.Is(err, core.ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	// the committed key is reused
	db, err := w.Finish(ctx, keypolicy.DeclineAll)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	db.Close()
}

func TestSelectTierResetsCipher(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "new.vault"), WithCipher(crypto.CipherChaCha20))

	w.SelectTier(keypolicy.TierLegacy)
	if w.Cipher() != crypto.CipherAES256 {
		t.Errorf("Simple mode tier should reset the cipher, got %s", crypto.CipherName(w.Cipher()))
	}
	if !crypto.IsAesKdf(w.Negotiator().Kdf().UUID()) {
		t.Error("Legacy tier should select AES-KDF")
	}

	w.Negotiator().SelectCompatibilityMode(keypolicy.ModeAdvanced)
	w.SetCipher(crypto.CipherChaCha20)
	w.SelectTier(keypolicy.TierModern)
	if w.Cipher() != crypto.CipherChaCha20 {
		t.Error("Advanced mode must leave the cipher alone")
	}
}
