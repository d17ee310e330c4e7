package handler

import (
	"context"
	"log/slog"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/service"
)

// Dispatcher turns one request message into one response message. It must
// only be called from a single goroutine.
type Dispatcher struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
	logger             *slog.Logger
}

func NewDispatcher(
	accountService *service.AccountService,
	transactionService *service.TransactionService,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		accountService:     accountService,
		transactionService: transactionService,
		logger:             logger,
	}
}

// Handle returns the response for req. The error is non-nil only when the
// ledger could not be written, in which case the server must stop.
func (d *Dispatcher) Handle(ctx context.Context, req domain.Message) (domain.Message, error) {
	logger := d.logger.With(
		"correlation_id", req.CorrelationID,
		"origin", req.Origin,
		"operation", req.Operation,
	)

	var (
		resp domain.Message
		err  error
	)
	switch {
	case req.Origin == domain.OriginTerminal && req.Operation == domain.OperationPIN:
		resp, err = d.handlePIN(req)
	case req.Origin == domain.OriginTerminal && req.Operation == domain.OperationBalance:
		resp, err = d.handleBalance(req)
	case req.Origin == domain.OriginTerminal && req.Operation == domain.OperationWithdraw:
		resp, err = d.handleWithdraw(req)
	case req.Origin == domain.OriginAdmin && req.Operation == domain.OperationUpdateDB:
		resp, err = d.handleUpdate(req)
	default:
		logger.Warn("Unsupported request")
		return req.Reply(domain.ResponseInvalidRequest, domain.AccountSnapshot{AccountNo: req.Account.AccountNo}), nil
	}

	if err != nil {
		logger.Error("Request failed", "error", err)
		return domain.Message{}, err
	}

	logger.Info("Request handled", "status", resp.Status)
	return resp, nil
}

func (d *Dispatcher) handlePIN(req domain.Message) (domain.Message, error) {
	err := d.transactionService.ValidatePIN(req.Account.AccountNo, req.Account.PIN)
	echo := domain.AccountSnapshot{AccountNo: req.Account.AccountNo}

	switch errors.CodeOf(err) {
	case "":
	case errors.PINWrong:
		return req.Reply(domain.ResponsePINWrong, echo), nil
	case errors.AccountBlocked:
		return req.Reply(domain.ResponseBlocked, echo), nil
	case errors.AccountNotFound:
		return req.Reply(domain.ResponseNotExist, echo), nil
	default:
		return domain.Message{}, err
	}
	return req.Reply(domain.ResponseOK, echo), nil
}

func (d *Dispatcher) handleBalance(req domain.Message) (domain.Message, error) {
	account, err := d.accountService.Balance(req.Account.AccountNo)
	if err != nil {
		if errors.CodeOf(err) == errors.AccountNotFound {
			return req.Reply(domain.ResponseNotExist, domain.AccountSnapshot{AccountNo: req.Account.AccountNo}), nil
		}
		return domain.Message{}, err
	}
	return req.Reply(domain.ResponseOK, account.Snapshot()), nil
}

func (d *Dispatcher) handleWithdraw(req domain.Message) (domain.Message, error) {
	echo := domain.AccountSnapshot{AccountNo: req.Account.AccountNo, Funds: req.Account.Funds}

	account, err := d.transactionService.Withdraw(req.Account.AccountNo, req.Account.Funds)
	switch errors.CodeOf(err) {
	case "":
	case errors.AccountNotFound:
		return req.Reply(domain.ResponseNotExist, echo), nil
	case errors.InsufficientFunds:
		return req.Reply(domain.ResponseNSF, echo), nil
	case errors.InvalidAmount:
		return req.Reply(domain.ResponseInvalidAmount, echo), nil
	default:
		return domain.Message{}, err
	}
	return req.Reply(domain.ResponseFundsOK, account.Snapshot()), nil
}

func (d *Dispatcher) handleUpdate(req domain.Message) (domain.Message, error) {
	account, created, err := d.accountService.UpsertAccount(req.Account.AccountNo, req.Account.PIN, req.Account.Funds)
	switch errors.CodeOf(err) {
	case "":
	case errors.InvalidInput:
		return req.Reply(domain.ResponseInvalidRequest, domain.AccountSnapshot{AccountNo: req.Account.AccountNo}), nil
	case errors.InvalidAmount:
		return req.Reply(domain.ResponseInvalidAmount, domain.AccountSnapshot{AccountNo: req.Account.AccountNo}), nil
	default:
		return domain.Message{}, err
	}

	if created {
		return req.Reply(domain.ResponseCreated, account.Snapshot()), nil
	}
	return req.Reply(domain.ResponseUpdated, account.Snapshot()), nil
}
