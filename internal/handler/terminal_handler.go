package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/transport"
)

// TerminalHandler is the HTTP face of an ATM terminal. Each call becomes one
// terminal-origin request on the transport.
type TerminalHandler struct {
	caller transport.Caller
}

func NewTerminalHandler(caller transport.Caller) *TerminalHandler {
	return &TerminalHandler{
		caller: caller,
	}
}

type PINRequest struct {
	AccountNo string `json:"account_no"`
	PIN       int    `json:"pin"`
}

type BalanceRequest struct {
	AccountNo string `json:"account_no"`
}

type WithdrawRequest struct {
	AccountNo string `json:"account_no"`
	Amount    string `json:"amount"`
}

func (h *TerminalHandler) ValidatePIN(w http.ResponseWriter, r *http.Request) {
	var req PINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}

	h.call(w, r, domain.OperationPIN, domain.AccountSnapshot{
		AccountNo: req.AccountNo,
		PIN:       req.PIN,
	})
}

func (h *TerminalHandler) Balance(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}

	h.call(w, r, domain.OperationBalance, domain.AccountSnapshot{AccountNo: req.AccountNo})
}

func (h *TerminalHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errors.ErrInvalidAmount.WithDetails("invalid amount format"))
		return
	}

	h.call(w, r, domain.OperationWithdraw, domain.AccountSnapshot{
		AccountNo: req.AccountNo,
		Funds:     amount,
	})
}

func (h *TerminalHandler) call(w http.ResponseWriter, r *http.Request, op domain.Operation, account domain.AccountSnapshot) {
	resp, err := h.caller.Call(r.Context(), domain.Message{
		Origin:    domain.OriginTerminal,
		Operation: op,
		Account:   account,
	})
	if err != nil {
		writeCallError(w, err)
		return
	}

	writeMessage(w, resp)
}
