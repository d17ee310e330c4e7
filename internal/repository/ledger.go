package repository

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
)

// LedgerHeader is the first line of every ledger file. It is skipped on read.
const LedgerHeader = "Account No.,Encoded PIN,Funds available"

var identifierSpace = strings.NewReplacer(" ", "", "\t", "", "\r", "", "\n", "")

// Ledger is the CSV snapshot of the account store at path.
type Ledger struct {
	path   string
	logger *slog.Logger
}

func NewLedger(path string, logger *slog.Logger) *Ledger {
	return &Ledger{
		path:   path,
		logger: logger,
	}
}

// Load reads every account up to the first malformed row.
func (l *Ledger) Load() ([]*domain.Account, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.ErrLedgerUnavailable.Wrap(err)
	}
	defer f.Close()

	accounts, err := ReadLedger(f, l.logger)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Ledger loaded", "path", l.path, "accounts", len(accounts))
	return accounts, nil
}

// Save rewrites the whole ledger. The rows go to a temporary file in the
// same directory which is then renamed over the ledger, so a crash leaves
// either the old or the new file.
func (l *Ledger) Save(accounts iter.Seq[*domain.Account]) error {
	dir, base := filepath.Split(l.path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		l.logger.Error("Failed to create ledger temp file", "path", l.path, "error", err)
		return errors.ErrLedgerWriteFailed.Wrap(err)
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, accounts); err != nil {
		os.Remove(tmpName)
		l.logger.Error("Failed to write ledger", "path", l.path, "error", err)
		return errors.ErrLedgerWriteFailed.Wrap(err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		l.logger.Error("Failed to replace ledger", "path", l.path, "error", err)
		return errors.ErrLedgerWriteFailed.Wrap(err)
	}

	l.logger.Debug("Ledger written", "path", l.path)
	return nil
}

func writeAndSync(f *os.File, accounts iter.Seq[*domain.Account]) error {
	if err := WriteLedger(f, accounts); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadLedger parses ledger rows after the header. Parsing stops at the first
// row that is not "accountNo,pinCode,funds", or that is too long to scan; the
// rows after it are dropped and reported in a warning. Blank lines are skipped.
func ReadLedger(r io.Reader, logger *slog.Logger) ([]*domain.Account, error) {
	scanner := bufio.NewScanner(r)
	var accounts []*domain.Account

	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}

		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		account, err := parseRow(text)
		if err != nil {
			dropped := 1
			for scanner.Scan() {
				if strings.TrimSpace(scanner.Text()) != "" {
					dropped++
				}
			}
			if err := scanner.Err(); err != nil && err != bufio.ErrTooLong {
				return nil, errors.ErrLedgerUnavailable.Wrap(err)
			}
			logger.Warn("Malformed ledger row; remaining rows dropped",
				"line", line,
				"dropped_rows", dropped,
				"error", err)
			return accounts, nil
		}
		accounts = append(accounts, account)
	}

	switch err := scanner.Err(); {
	case err == bufio.ErrTooLong:
		logger.Warn("Malformed ledger row; remaining rows dropped",
			"line", line+1,
			"error", err)
	case err != nil:
		return nil, errors.ErrLedgerUnavailable.Wrap(err)
	}
	return accounts, nil
}

func parseRow(text string) (*domain.Account, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return nil, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	number := identifierSpace.Replace(fields[0])
	if number == "" {
		return nil, fmt.Errorf("empty account number")
	}

	pinCode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid PIN code: %w", err)
	}

	funds, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid funds: %w", err)
	}
	if funds.IsNegative() {
		return nil, fmt.Errorf("negative funds %s", funds)
	}
	// Rows are written with two decimals; keep memory equal to what the
	// next save will write.
	funds = funds.Round(2)

	status := domain.StatusActive
	if number[0] == domain.BlockedMarker {
		status = domain.StatusBlocked
	}

	return &domain.Account{
		Number:  number,
		PINCode: pinCode,
		Funds:   funds,
		Status:  status,
	}, nil
}

// WriteLedger writes the header and one row per account.
func WriteLedger(w io.Writer, accounts iter.Seq[*domain.Account]) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, LedgerHeader); err != nil {
		return err
	}

	for a := range accounts {
		if _, err := fmt.Fprintf(bw, "%s,%d,%s\n",
			formatNumber(a.LedgerNumber()),
			a.PINCode,
			a.Funds.StringFixed(2),
		); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// formatNumber zero-pads all-digit identifiers to five digits and leaves
// anything else verbatim.
func formatNumber(number string) string {
	if number == "" || strings.TrimLeft(number, "0123456789") != "" {
		return number
	}
	n, err := strconv.Atoi(number)
	if err != nil {
		return number
	}
	return fmt.Sprintf("%05d", n)
}
