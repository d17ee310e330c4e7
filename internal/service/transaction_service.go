package service

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/repository"
)

// TransactionService serves the terminal operations.
type TransactionService struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewTransactionService(store *repository.Store, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		logger: logger,
	}
}

// ValidatePIN checks pin against the account. A match resets the attempt
// counter without touching the ledger. The MaxPINAttempts-th consecutive
// mismatch blocks the account and persists it.
func (s *TransactionService) ValidatePIN(accountNo string, pin int) error {
	blocked := false
	err := s.store.WithTransaction(func(tx *repository.Tx) error {
		account, err := tx.Account().Find(accountNo)
		if err != nil {
			s.logger.Info("PIN check for unknown account", "account_no", accountNo)
			return err
		}

		if account.PINMatches(pin) {
			account.Attempts = 0
			s.logger.Info("PIN accepted", "account_no", accountNo)
			return nil
		}

		if account.Attempts+1 < domain.MaxPINAttempts {
			account.Attempts++
			s.logger.Warn("PIN rejected", "account_no", accountNo, "attempts", account.Attempts)
			return errors.ErrPINWrong
		}

		account.Attempts = 0
		tx.Account().Block(account)
		tx.MarkChanged()
		blocked = true
		s.logger.Warn("Account blocked", "account_no", accountNo)
		return nil
	})
	if err != nil {
		return err
	}
	if blocked {
		return errors.ErrAccountBlocked
	}
	return nil
}

// Withdraw takes amount from the account's funds and persists the result.
func (s *TransactionService) Withdraw(accountNo string, amount decimal.Decimal) (*domain.Account, error) {
	s.logger.Info("Processing withdrawal", "account_no", accountNo, "amount", amount)

	if err := validateAmount(amount, false); err != nil {
		return nil, err
	}

	var result *domain.Account
	err := s.store.WithTransaction(func(tx *repository.Tx) error {
		account, err := tx.Account().Find(accountNo)
		if err != nil {
			return err
		}

		if amount.GreaterThan(account.Funds) {
			s.logger.Info("Withdrawal rejected", "account_no", accountNo, "funds", account.Funds, "amount", amount)
			return errors.ErrInsufficientFunds
		}

		account.Funds = account.Funds.Sub(amount)
		tx.MarkChanged()
		result = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Withdrawal completed", "account_no", accountNo, "funds", result.Funds)
	return result, nil
}

// validateAmount accepts amounts with at most two fraction digits that are
// positive, or non-negative when allowZero is set.
func validateAmount(amount decimal.Decimal, allowZero bool) error {
	if amount.IsNegative() || (!allowZero && amount.IsZero()) {
		return errors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.ErrInvalidAmount
	}
	return nil
}
