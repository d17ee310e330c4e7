package repository

import (
	"iter"
	"log/slog"

	"atm-ledger/internal/domain"
)

// Snapshotter persists the full set of accounts.
type Snapshotter interface {
	Load() ([]*domain.Account, error)
	Save(accounts iter.Seq[*domain.Account]) error
}

// Store owns the in-memory accounts and writes them through to the ledger.
type Store struct {
	accounts *accountRepository
	ledger   Snapshotter
	logger   *slog.Logger
}

// NewStore creates an empty Store backed by ledger.
func NewStore(ledger Snapshotter, logger *slog.Logger) *Store {
	return &Store{
		accounts: newAccountRepository(logger),
		ledger:   ledger,
		logger:   logger,
	}
}

// Load replaces the store's contents with the ledger's.
func (s *Store) Load() error {
	loaded, err := s.ledger.Load()
	if err != nil {
		return err
	}

	s.accounts = newAccountRepository(s.logger)
	for _, a := range loaded {
		s.accounts.Insert(a)
	}
	return nil
}

// Account returns the account repository for read-only use.
func (s *Store) Account() domain.AccountRepository {
	return s.accounts
}

// Tx is the view of the store handed to WithTransaction.
type Tx struct {
	store   *Store
	changed bool
}

func (t *Tx) Account() domain.AccountRepository {
	return t.store.accounts
}

// MarkChanged records that the transaction mutated persisted fields.
func (t *Tx) MarkChanged() {
	t.changed = true
}

// WithTransaction runs fn. If fn succeeds and marked a change, the ledger is
// rewritten before WithTransaction returns. In-memory changes made by a
// failing fn are kept and not written.
func (s *Store) WithTransaction(fn func(tx *Tx) error) error {
	tx := &Tx{store: s}

	if err := fn(tx); err != nil {
		return err
	}
	if !tx.changed {
		return nil
	}

	return s.ledger.Save(s.accounts.All())
}
