package service

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/repository"
)

func newTestServices(t *testing.T, accounts ...*domain.Account) (*AccountService, *TransactionService, *repository.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := repository.NewLedger(filepath.Join(t.TempDir(), "DataBase.csv"), logger)
	require.NoError(t, ledger.Save(slices.Values(accounts)))

	store := repository.NewStore(ledger, logger)
	require.NoError(t, store.Load())

	return NewAccountService(store, logger), NewTransactionService(store, logger), ledger
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount    string
		allowZero bool
		valid     bool
	}{
		{"0.01", false, true},
		{"200", false, true},
		{"200.50", false, true},
		{"0", false, false},
		{"0", true, true},
		{"-1", true, false},
		{"1.001", false, false},
		{"1.001", true, false},
	}

	for _, tt := range tests {
		err := validateAmount(dec(tt.amount), tt.allowZero)
		if tt.valid {
			assert.NoError(t, err, "amount %s", tt.amount)
		} else {
			assert.ErrorIs(t, err, errors.ErrInvalidAmount, "amount %s", tt.amount)
		}
	}
}

func TestTransactionService_PINAttemptsNeverReachLimit(t *testing.T) {
	_, txService, _ := newTestServices(t, domain.NewAccount("00001", 111, dec("500")))

	assert.ErrorIs(t, txService.ValidatePIN("00001", 999), errors.ErrPINWrong)
	assert.ErrorIs(t, txService.ValidatePIN("00001", 999), errors.ErrPINWrong)
	assert.NoError(t, txService.ValidatePIN("00001", 111))

	// The counter was reset, so two more misses are still not a block.
	assert.ErrorIs(t, txService.ValidatePIN("00001", 999), errors.ErrPINWrong)
	assert.ErrorIs(t, txService.ValidatePIN("00001", 999), errors.ErrPINWrong)
	assert.ErrorIs(t, txService.ValidatePIN("00001", 999), errors.ErrAccountBlocked)
	assert.ErrorIs(t, txService.ValidatePIN("00001", 111), errors.ErrAccountNotFound)
}

func TestTransactionService_Withdraw(t *testing.T) {
	accountService, txService, ledger := newTestServices(t, domain.NewAccount("00001", 111, dec("500")))

	_, err := txService.Withdraw("00001", dec("600"))
	assert.ErrorIs(t, err, errors.ErrInsufficientFunds)

	_, err = txService.Withdraw("00001", dec("-5"))
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	_, err = txService.Withdraw("00002", dec("5"))
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	account, err := txService.Withdraw("00001", dec("500"))
	require.NoError(t, err)
	assert.True(t, account.Funds.IsZero())

	balance, err := accountService.Balance("00001")
	require.NoError(t, err)
	assert.True(t, balance.Funds.IsZero())

	loaded, err := ledger.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.00", loaded[0].Funds.StringFixed(2))
}

func TestAccountService_UpsertValidation(t *testing.T) {
	accountService, _, _ := newTestServices(t)

	tests := []struct {
		name      string
		accountNo string
		pin       int
		funds     string
		want      *errors.AppError
	}{
		{"short number", "1234", 111, "1", errors.ErrInvalidInput},
		{"letters", "12a45", 111, "1", errors.ErrInvalidInput},
		{"PIN too large", "12345", 1000, "1", errors.ErrInvalidInput},
		{"negative PIN", "12345", -1, "1", errors.ErrInvalidInput},
		{"negative funds", "12345", 111, "-1", errors.ErrInvalidAmount},
		{"three decimals", "12345", 111, "1.005", errors.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := accountService.UpsertAccount(tt.accountNo, tt.pin, dec(tt.funds))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccountService_UpsertCreatesThenUpdates(t *testing.T) {
	accountService, txService, ledger := newTestServices(t)

	account, created, err := accountService.UpsertAccount("00002", 222, dec("1000.00"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 221, account.PINCode)

	account, created, err = accountService.UpsertAccount("00002", 333, dec("0"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, account.Funds.IsZero())

	assert.NoError(t, txService.ValidatePIN("00002", 333))

	loaded, err := ledger.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 332, loaded[0].PINCode)
}

func TestTransactionService_WithdrawFromSubCentLedgerRow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "DataBase.csv")
	require.NoError(t, os.WriteFile(path, []byte(repository.LedgerHeader+"\n00001,110,500.005\n"), 0o644))

	ledger := repository.NewLedger(path, logger)
	store := repository.NewStore(ledger, logger)
	require.NoError(t, store.Load())
	accountService := NewAccountService(store, logger)
	txService := NewTransactionService(store, logger)

	balance, err := accountService.Balance("00001")
	require.NoError(t, err)
	assert.True(t, balance.Funds.Equal(dec("500.01")))

	account, err := txService.Withdraw("00001", dec("500.01"))
	require.NoError(t, err)
	assert.True(t, account.Funds.IsZero())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, repository.LedgerHeader+"\n00001,110,0.00\n", string(data))
}
