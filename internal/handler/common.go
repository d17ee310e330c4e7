package handler

import (
	"encoding/json"
	"net/http"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func writeCallError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		writeError(w, appErr)
		return
	}
	writeError(w, errors.ErrTransportClosed.Wrap(err))
}

// writeMessage renders a protocol response. Outcomes that refuse the request
// become error bodies carrying the protocol status as details.
func writeMessage(w http.ResponseWriter, resp domain.Message) {
	switch resp.Status {
	case domain.ResponseOK, domain.ResponseFundsOK, domain.ResponseUpdated:
		writeJSON(w, http.StatusOK, newMessageResponse(resp))
	case domain.ResponseCreated:
		writeJSON(w, http.StatusCreated, newMessageResponse(resp))
	case domain.ResponseNotExist:
		writeError(w, errors.ErrAccountNotFound.WithDetails(string(resp.Status)))
	case domain.ResponsePINWrong:
		writeError(w, errors.ErrPINWrong.WithDetails(string(resp.Status)))
	case domain.ResponseBlocked:
		writeError(w, errors.ErrAccountBlocked.WithDetails(string(resp.Status)))
	case domain.ResponseNSF:
		writeError(w, errors.ErrInsufficientFunds.WithDetails(string(resp.Status)))
	case domain.ResponseInvalidAmount:
		writeError(w, errors.ErrInvalidAmount.WithDetails(string(resp.Status)))
	default:
		writeError(w, errors.ErrInvalidInput.WithDetails(string(resp.Status)))
	}
}

type MessageResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	AccountNo     string `json:"account_no"`
	Funds         string `json:"funds,omitempty"`
}

func newMessageResponse(resp domain.Message) MessageResponse {
	out := MessageResponse{
		CorrelationID: resp.CorrelationID.String(),
		Status:        string(resp.Status),
		AccountNo:     resp.Account.AccountNo,
	}
	if resp.Operation != domain.OperationPIN {
		out.Funds = resp.Account.Funds.StringFixed(2)
	}
	return out
}
