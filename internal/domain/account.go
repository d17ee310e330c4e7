package domain

import (
	"iter"

	"github.com/shopspring/decimal"
)

// MaxPINAttempts is the number of consecutive PIN mismatches that blocks an account.
const MaxPINAttempts = 3

// BlockedMarker replaces the first character of a blocked account number in the ledger.
const BlockedMarker = 'X'

type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

type Account struct {
	Number   string          `json:"account_no"`
	PINCode  int             `json:"-"`
	Funds    decimal.Decimal `json:"funds"`
	Attempts int             `json:"attempts"`
	Status   Status          `json:"status"`
}

// NewAccount returns an active account with no failed attempts. pin is the
// PIN as entered; it is stored encoded.
func NewAccount(number string, pin int, funds decimal.Decimal) *Account {
	return &Account{
		Number:  number,
		PINCode: EncodePIN(pin),
		Funds:   funds,
		Status:  StatusActive,
	}
}

// EncodePIN applies the ledger's fixed offset. It is not a secret transform:
// the stored code is plaintext-equivalent.
func EncodePIN(pin int) int {
	return pin - 1
}

func (a *Account) PINMatches(pin int) bool {
	return a.PINCode == EncodePIN(pin)
}

func (a *Account) IsBlocked() bool {
	return a.Status == StatusBlocked
}

// LedgerNumber is the identifier written to disk. Blocked accounts carry the
// marker in place of their first character so that they never match again
// after a restart.
func (a *Account) LedgerNumber() string {
	if !a.IsBlocked() || a.Number == "" || a.Number[0] == BlockedMarker {
		return a.Number
	}
	return string(BlockedMarker) + a.Number[1:]
}

// Snapshot copies the fields a response may carry. The PIN code is omitted.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		AccountNo: a.Number,
		Funds:     a.Funds,
		Attempts:  a.Attempts,
	}
}

type AccountRepository interface {
	Find(number string) (*Account, error)
	Insert(account *Account)
	Block(account *Account)
	All() iter.Seq[*Account]
	Len() int
}
