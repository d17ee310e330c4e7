package service

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/repository"
)

const accountNoLength = 5

type AccountService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewAccountService(store *repository.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

// Balance looks the account up without changing it.
func (s *AccountService) Balance(accountNo string) (*domain.Account, error) {
	s.logger.Info("Getting balance", "account_no", accountNo)
	return s.store.Account().Find(accountNo)
}

// UpsertAccount overwrites the PIN and funds of an existing account, or
// creates it. created reports which happened.
func (s *AccountService) UpsertAccount(accountNo string, pin int, funds decimal.Decimal) (account *domain.Account, created bool, err error) {
	s.logger.Info("Updating account", "account_no", accountNo, "funds", funds)

	if !isDigits(accountNo, accountNoLength) {
		return nil, false, errors.ErrInvalidInput.WithDetails("account number must be exactly 5 digits")
	}
	if pin < 0 || pin > 999 {
		return nil, false, errors.ErrInvalidInput.WithDetails("PIN must be exactly 3 digits")
	}
	if err := validateAmount(funds, true); err != nil {
		return nil, false, err
	}

	err = s.store.WithTransaction(func(tx *repository.Tx) error {
		existing, findErr := tx.Account().Find(accountNo)
		if findErr == nil {
			existing.PINCode = domain.EncodePIN(pin)
			existing.Funds = funds
			account = existing
		} else {
			account = domain.NewAccount(accountNo, pin, funds)
			tx.Account().Insert(account)
			created = true
		}
		tx.MarkChanged()
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("Account updated", "account_no", accountNo, "created", created)
	return account, created, nil
}

func isDigits(s string, n int) bool {
	return len(s) == n && strings.Trim(s, "0123456789") == ""
}
