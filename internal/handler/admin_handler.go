package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/transport"
)

type AdminHandler struct {
	caller transport.Caller
}

func NewAdminHandler(caller transport.Caller) *AdminHandler {
	return &AdminHandler{
		caller: caller,
	}
}

type UpsertAccountRequest struct {
	PIN   int    `json:"pin"`
	Funds string `json:"funds"`
}

// UpsertAccount creates or overwrites the account named in the path.
func (h *AdminHandler) UpsertAccount(w http.ResponseWriter, r *http.Request) {
	accountNo := mux.Vars(r)["account_no"]

	var req UpsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ErrInvalidInput.WithDetails(err.Error()))
		return
	}

	funds, err := decimal.NewFromString(req.Funds)
	if err != nil {
		writeError(w, errors.ErrInvalidAmount.WithDetails("invalid funds format"))
		return
	}

	resp, err := h.caller.Call(r.Context(), domain.Message{
		Origin:    domain.OriginAdmin,
		Operation: domain.OperationUpdateDB,
		Account: domain.AccountSnapshot{
			AccountNo: accountNo,
			PIN:       req.PIN,
			Funds:     funds,
		},
	})
	if err != nil {
		writeCallError(w, err)
		return
	}

	writeMessage(w, resp)
}
