package repository

import (
	"iter"
	"log/slog"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
)

// accountRepository keeps accounts in insertion order with an index over the
// active ones. It is not safe for concurrent use; the server's control loop
// is its only caller.
type accountRepository struct {
	accounts []*domain.Account
	index    map[string]*domain.Account
	logger   *slog.Logger
}

func newAccountRepository(logger *slog.Logger) *accountRepository {
	return &accountRepository{
		index:  make(map[string]*domain.Account),
		logger: logger,
	}
}

func (r *accountRepository) Find(number string) (*domain.Account, error) {
	account, ok := r.index[number]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return account, nil
}

// Insert appends account. When an active account already holds the number,
// the earlier one keeps answering lookups.
func (r *accountRepository) Insert(account *domain.Account) {
	r.accounts = append(r.accounts, account)
	if account.IsBlocked() {
		return
	}
	if _, exists := r.index[account.Number]; exists {
		r.logger.Warn("Duplicate active account number; first one wins", "account_no", account.Number)
		return
	}
	r.index[account.Number] = account
}

func (r *accountRepository) Block(account *domain.Account) {
	account.Status = domain.StatusBlocked
	if r.index[account.Number] != account {
		return
	}
	delete(r.index, account.Number)

	for _, a := range r.accounts {
		if a.Number == account.Number && !a.IsBlocked() {
			r.index[a.Number] = a
			break
		}
	}
}

func (r *accountRepository) All() iter.Seq[*domain.Account] {
	return func(yield func(*domain.Account) bool) {
		for _, a := range r.accounts {
			if !yield(a) {
				return
			}
		}
	}
}

func (r *accountRepository) Len() int {
	return len(r.accounts)
}
