// Package settings edits an unlocked database.
//
// A Settings session has three pages, General, Encryption and Master key,
// each edited independently. Save writes the pages in that order and stops
// at the first failure; pages saved before the failure stay saved.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keypolicy"
	"github.com/illarion/vaultkey/internal/storage"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Page names a settings page in save order
type Page int

const (
	PageGeneral Page = iota
	PageEncryption
	PageMasterKey
)

func (p Page) String() string {
	switch p {
	case PageGeneral:
		return "General"
	case PageEncryption:
		return "Encryption"
	case PageMasterKey:
		return "Master key"
	}
	return fmt.Sprintf("Page(%d)", int(p))
}

// SaveError reports the page that failed to save
type SaveError struct {
	Page Page
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save %s settings: %v", e.Page, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Option configures a Settings session
type Option func(*Settings)

// WithLogger sets the structured logger shared with the policy components
func WithLogger(l *slog.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPolicyOptions passes options to the key registry and KDF negotiator
func WithPolicyOptions(opts ...keypolicy.Option) Option {
	return func(s *Settings) {
		s.policyOpts = append(s.policyOpts, opts...)
	}
}

// Settings is an edit session over an unlocked database
type Settings struct {
	db *core.Database

	metadata   *storage.Metadata
	cipher     uuid.UUID
	negotiator *keypolicy.Negotiator
	registry   *keypolicy.Registry

	// encryption page baseline
	savedKdf    keypolicy.KdfConfig
	savedTier   keypolicy.Tier
	savedTarget int
	recalibrate bool

	policyOpts []keypolicy.Option
	logger     *slog.Logger
}

// New opens a settings session. The database must be unlocked.
func New(db *core.Database, opts ...Option) (*Settings, error) {
	if db.Locked() {
		return nil, core.ErrLocked
	}
	s := &Settings{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policyOpts = append([]keypolicy.Option{keypolicy.WithLogger(s.logger)}, s.policyOpts...)
	s.registry = keypolicy.NewRegistry(s.policyOpts...)
	s.reload()
	return s, nil
}

// reload resets every page from the database
func (s *Settings) reload() {
	s.loadGeneral()
	s.loadEncryption()
	s.loadMasterKey()
}

func (s *Settings) loadGeneral() {
	s.metadata = s.db.Metadata()
}

func (s *Settings) loadEncryption() {
	s.cipher = s.db.Cipher()
	s.negotiator = keypolicy.NewNegotiator(s.db.Kdf(), s.policyOpts...)
	s.savedKdf = s.negotiator.Config()
	s.savedTier = s.negotiator.Tier()
	s.savedTarget = s.negotiator.TargetMillis()
	s.recalibrate = false
}

func (s *Settings) loadMasterKey() {
	s.registry.Initialize(s.db.Key())
}

// Database returns the database being edited
func (s *Settings) Database() *core.Database { return s.db }

// Metadata returns a copy of the General page
func (s *Settings) Metadata() *storage.Metadata { return s.metadata.Clone() }

// SetMetadata replaces the General page
func (s *Settings) SetMetadata(m *storage.Metadata) { s.metadata = m.Clone() }

func (s *Settings) Cipher() uuid.UUID      { return s.cipher }
func (s *Settings) SetCipher(id uuid.UUID) { s.cipher = id }

// SelectTier applies a compatibility tier on the Encryption page. In simple
// mode the cipher returns to AES-256 along with the tier defaults.
func (s *Settings) SelectTier(tier keypolicy.Tier) {
	s.negotiator.SelectTier(tier)
	if s.negotiator.Mode() == keypolicy.ModeSimple {
		s.cipher = crypto.CipherAES256
	}
}

// Negotiator is the Encryption page KDF session
func (s *Settings) Negotiator() *keypolicy.Negotiator { return s.negotiator }

// Registry is the Master key page component session
func (s *Settings) Registry() *keypolicy.Registry { return s.registry }

// KeyFileEditor returns a key file editor that rejects the database itself
func (s *Settings) KeyFileEditor() *keypolicy.KeyFileEditor {
	return keypolicy.NewKeyFileEditor(s.db.Path())
}

func (s *Settings) generalChanged() bool {
	saved := s.db.Metadata()
	m := s.metadata.Clone()
	m.Normalize()
	return *m != *saved
}

// Recalibrate makes Save benchmark a simple mode KDF again even when no
// parameter changed. It has no effect in advanced mode.
func (s *Settings) Recalibrate() { s.recalibrate = true }

func (s *Settings) kdfChanged() bool {
	if s.negotiator.Config() != s.savedKdf {
		return true
	}
	if s.negotiator.Mode() != keypolicy.ModeSimple {
		return false
	}
	return s.recalibrate || s.negotiator.Tier() != s.savedTier || s.negotiator.TargetMillis() != s.savedTarget
}

func (s *Settings) encryptionChanged() bool {
	return s.cipher != s.db.Cipher() || s.kdfChanged()
}

// Changed reports whether Save would write anything
func (s *Settings) Changed() bool {
	return s.generalChanged() || s.encryptionChanged() || s.registry.Changed()
}

// kdfSink forwards a committed KDF to the database with a context
type kdfSink struct {
	ctx context.Context
	db  *core.Database
}

func (k kdfSink) ChangeKdf(kdf crypto.Kdf) error {
	return k.db.ChangeKdfContext(k.ctx, kdf)
}

// Save writes the changed pages in page order. It stops at the first
// failure and returns a *SaveError naming the page.
func (s *Settings) Save(ctx context.Context, confirm keypolicy.Confirmer) error {
	if s.generalChanged() {
		if err := s.db.SetMetadata(ctx, s.metadata); err != nil {
			return &SaveError{Page: PageGeneral, Err: err}
		}
		s.loadGeneral()
		s.logger.Debug("settings saved", "page", PageGeneral)
	}

	if s.encryptionChanged() {
		// warnings are confirmed before anything on this page is written
		kdf := s.kdfChanged()
		if kdf {
			if err := s.negotiator.Confirm(confirm); err != nil {
				return &SaveError{Page: PageEncryption, Err: err}
			}
			if err := s.negotiator.Apply(ctx, kdfSink{ctx: ctx, db: s.db}); err != nil {
				return &SaveError{Page: PageEncryption, Err: err}
			}
		}
		if s.cipher != s.db.Cipher() {
			if err := s.db.SetCipher(ctx, s.cipher); err != nil {
				if kdf {
					// the KDF is stored; keep only the cipher pending
					pending := s.cipher
					s.loadEncryption()
					s.cipher = pending
				}
				return &SaveError{Page: PageEncryption, Err: err}
			}
		}
		s.loadEncryption()
		s.logger.Debug("settings saved", "page", PageEncryption)
	}

	if s.registry.Changed() {
		key, err := s.registry.Commit(ctx, confirm)
		if err != nil {
			return &SaveError{Page: PageMasterKey, Err: err}
		}
		if err := s.db.SetKey(ctx, key); err != nil {
			// the draft is consumed; start over from the stored key
			s.loadMasterKey()
			return &SaveError{Page: PageMasterKey, Err: err}
		}
		s.loadMasterKey()
		s.logger.Debug("settings saved", "page", PageMasterKey)
	}
	return nil
}

// Summary renders the pending settings, one item per line
func (s *Settings) Summary() string {
	m := s.metadata.Clone()
	m.Normalize()

	kdf := formatKdf(s.negotiator.Config())
	if s.negotiator.Mode() == keypolicy.ModeSimple && s.kdfChanged() {
		kdf = fmt.Sprintf("%s, %s tier, calibrated to %s", s.negotiator.Config().Algorithm,
			s.negotiator.Tier(), keypolicy.FormatDecryptionTime(s.negotiator.TargetMillis()))
	}

	var components []string
	for _, slot := range s.registry.Slots() {
		switch slot.Pending() {
		case keypolicy.StatePresent:
			components = append(components, slot.Kind().String())
		case keypolicy.StateStagedForAdd:
			components = append(components, slot.Kind().String()+" (new)")
		case keypolicy.StateStagedForEdit:
			components = append(components, slot.Kind().String()+" (changed)")
		}
	}
	return render(m, s.cipher, kdf, components)
}

// savedSummary renders what the database currently holds
func (s *Settings) savedSummary() string {
	var components []string
	for _, id := range s.db.Components() {
		if kind, ok := keypolicy.KindOf(id); ok {
			components = append(components, kind.String())
		}
	}
	return render(s.db.Metadata(), s.db.Cipher(), formatKdf(keypolicy.NewNegotiator(s.db.Kdf()).Config()), components)
}

// Diff shows the pending changes line by line, prefixed with "- " for the
// stored value and "+ " for the new one. It is empty without changes.
func (s *Settings) Diff() string {
	before, after := s.savedSummary(), s.Summary()
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				out.WriteString(prefix + line)
			}
		}
	}
	return out.String()
}

func formatKdf(c keypolicy.KdfConfig) string {
	if c.Algorithm == keypolicy.AlgorithmAesKdf {
		return fmt.Sprintf("%s, %d rounds", c.Algorithm, c.Cost)
	}
	return fmt.Sprintf("%s, %d rounds, %s, %d threads", c.Algorithm, c.Cost, formatKiB(c.MemoryKiB), c.Parallelism)
}

func formatKiB(kib uint32) string {
	if kib >= 1024 && kib%1024 == 0 {
		return fmt.Sprintf("%d MiB", kib/1024)
	}
	return fmt.Sprintf("%d KiB", kib)
}

func render(m *storage.Metadata, cipher uuid.UUID, kdf string, components []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", m.Name)
	fmt.Fprintf(&b, "Description: %s\n", m.Description)
	fmt.Fprintf(&b, "Default username: %s\n", m.DefaultUsername)
	fmt.Fprintf(&b, "History: %s items, %s\n", limit(m.HistoryMaxItems, ""), limit(m.HistoryMaxSizeMiB, " MiB"))
	fmt.Fprintf(&b, "Recycle bin: %s\n", onOff(m.RecycleBin))
	fmt.Fprintf(&b, "Cipher: %s\n", crypto.CipherName(cipher))
	fmt.Fprintf(&b, "KDF: %s\n", kdf)
	if len(components) == 0 {
		b.WriteString("Master key: none\n")
	} else {
		fmt.Fprintf(&b, "Master key: %s\n", strings.Join(components, ", "))
	}
	return b.String()
}

func limit(v int, unit string) string {
	if v < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d%s", v, unit)
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

// IsSaveError reports whether err came from the named page
func IsSaveError(err error, page Page) bool {
	var se *SaveError
	return errors.As(err, &se) && se.Page == page
}
