// Package wizard walks through the creation of a new database.
//
// The pages are General, Encryption and Master key. Next validates and
// stores the current page before moving on; Finish stores the master key
// page and writes the database. Nothing touches the filesystem before
// Finish.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/illarion/vaultkey/internal/core"
	"github.com/illarion/vaultkey/internal/crypto"
	"github.com/illarion/vaultkey/internal/keypolicy"
	"github.com/illarion/vaultkey/internal/keys"
	"github.com/illarion/vaultkey/internal/storage"
)

// Page is one step of the wizard
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

var (
	ErrNoNextPage     = errors.New("already on the last page")
	ErrNoPreviousPage = errors.New("already on the first page")
	ErrNotLastPage    = errors.New("finish is only possible from the last page")
	ErrFinished       = errors.New("wizard already finished")
)

// Option configures a Wizard
type Option func(*Wizard)

// WithLogger sets the structured logger shared by the wizard, its policy
// components and the created database
func WithLogger(l *slog.Logger) Option {
	return func(w *Wizard) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPolicyOptions passes options to the key registry and KDF negotiator
func WithPolicyOptions(opts ...keypolicy.Option) Option {
	return func(w *Wizard) {
		w.policyOpts = append(w.policyOpts, opts...)
	}
}

// WithCipher preselects the body cipher
func WithCipher(id uuid.UUID) Option {
	return func(w *Wizard) {
		w.cipher = id
	}
}

// draft receives the stored page results
type draft struct {
	metadata *storage.Metadata
	kdf      crypto.Kdf
	key      *keys.CompositeKey
}

func (d *draft) ChangeKdf(kdf crypto.Kdf) error {
	d.kdf = kdf
	return nil
}

// Wizard creates a database at a fixed path
type Wizard struct {
	path string
	page Page
	done bool

	metadata   *storage.Metadata
	cipher     uuid.UUID
	negotiator *keypolicy.Negotiator
	registry   *keypolicy.Registry
	draft      draft

	policyOpts []keypolicy.Option
	logger     *slog.Logger
}

// New starts a wizard for a database at path
func New(path string, opts ...Option) *Wizard {
	w := &Wizard{
		path:     path,
		metadata: storage.NewMetadata(),
		cipher:   crypto.CipherAES256,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(w)
	}

	policy := append([]keypolicy.Option{keypolicy.WithLogger(w.logger)}, w.policyOpts...)
	w.negotiator = keypolicy.NewNegotiator(nil, policy...)
	w.registry = keypolicy.NewRegistry(policy...)
	return w
}

func (w *Wizard) Path() string { return w.path }
func (w *Wizard) Page() Page   { return w.page }

// Metadata returns a copy of the General page input
func (w *Wizard) Metadata() *storage.Metadata { return w.metadata.Clone() }

// SetMetadata replaces the General page input
func (w *Wizard) SetMetadata(m *storage.Metadata) { w.metadata = m.Clone() }

func (w *Wizard) Cipher() uuid.UUID { return w.cipher }

// SetCipher selects the body cipher on the Encryption page
func (w *Wizard) SetCipher(id uuid.UUID) { w.cipher = id }

// SelectTier applies a compatibility tier on the Encryption page. In simple
// mode the cipher returns to AES-256 along with the tier defaults.
func (w *Wizard) SelectTier(tier keypolicy.Tier) {
	w.negotiator.SelectTier(tier)
	if w.negotiator.Mode() == keypolicy.ModeSimple {
		w.cipher = crypto.CipherAES256
	}
}

// Negotiator is the Encryption page KDF session. It starts in simple mode.
func (w *Wizard) Negotiator() *keypolicy.Negotiator { return w.negotiator }

// Registry is the Master key page component session
func (w *Wizard) Registry() *keypolicy.Registry { return w.registry }

// KeyFileEditor returns a key file editor that rejects the new database
// itself
func (w *Wizard) KeyFileEditor() *keypolicy.KeyFileEditor {
	return keypolicy.NewKeyFileEditor(w.path)
}

// Next stores the current page and moves to the following one. confirm
// answers the warnings raised while storing.
func (w *Wizard) Next(ctx context.Context, confirm keypolicy.Confirmer) error {
	if w.done {
		return ErrFinished
	}
	if w.page == PageMasterKey {
		return ErrNoNextPage
	}
	if err := w.store(ctx, w.page, confirm); err != nil {
		return err
	}
	w.page++
	w.logger.Debug("wizard page", "page", w.page)
	return nil
}

// Back returns to the previous page. Stored results are kept and
// overwritten when the page is stored again.
func (w *Wizard) Back() error {
	if w.done {
		return ErrFinished
	}
	if w.page == PageGeneral {
		return ErrNoPreviousPage
	}
	w.page--
	return nil
}

func (w *Wizard) store(ctx context.Context, page Page, confirm keypolicy.Confirmer) error {
	switch page {
	case PageGeneral:
		m := w.metadata.Clone()
		m.Normalize()
		if err := m.Validate(); err != nil {
			return err
		}
		w.draft.metadata = m

	case PageEncryption:
		if crypto.CipherName(w.cipher) == "unknown" {
			return fmt.Errorf("%w: %s", crypto.ErrUnknownCipher, w.cipher)
		}
		if err := w.negotiator.Commit(ctx, &w.draft, confirm); err != nil {
			return err
		}

	case PageMasterKey:
		// a consumed draft already produced the key of an earlier Finish
		if w.registry.Consumed() && w.draft.key != nil {
			return nil
		}
		key, err := w.registry.Commit(ctx, confirm)
		if err != nil {
			return err
		}
		w.draft.key = key
	}
	return nil
}

// Finish stores the Master key page and creates the database. The returned
// database is unlocked and owned by the caller.
func (w *Wizard) Finish(ctx context.Context, confirm keypolicy.Confirmer, opts ...core.Option) (*core.Database, error) {
	if w.done {
		return nil, ErrFinished
	}
	if w.page != PageMasterKey {
		return nil, ErrNotLastPage
	}
	if err := w.store(ctx, PageMasterKey, confirm); err != nil {
		return nil, err
	}

	opts = append([]core.Option{core.WithLogger(w.logger)}, opts...)
	db, err := core.Create(ctx, w.path, core.CreateSpec{
		Key:      w.draft.key,
		Kdf:      w.draft.kdf,
		Cipher:   w.cipher,
		Metadata: w.draft.metadata,
	}, opts...)
	if err != nil {
		return nil, err
	}
	w.done = true
	return db, nil
}
