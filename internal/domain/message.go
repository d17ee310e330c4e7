package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Origin string

const (
	OriginTerminal Origin = "terminal"
	OriginAdmin    Origin = "admin"
)

type Operation string

const (
	OperationPIN      Operation = "PIN"
	OperationBalance  Operation = "BALANCE"
	OperationWithdraw Operation = "WITHDRAW"
	OperationUpdateDB Operation = "UPDATE_DB"
)

// ResponseStatus is the outcome carried back to the client.
type ResponseStatus string

const (
	ResponseOK             ResponseStatus = "OK"
	ResponsePINWrong       ResponseStatus = "PIN_WRONG"
	ResponseBlocked        ResponseStatus = "BLOCKED"
	ResponseNotExist       ResponseStatus = "NOT_EXIST"
	ResponseNSF            ResponseStatus = "NSF"
	ResponseFundsOK        ResponseStatus = "FUNDS_OK"
	ResponseUpdated        ResponseStatus = "UPDATED"
	ResponseCreated        ResponseStatus = "CREATED"
	ResponseInvalidAmount  ResponseStatus = "INVALID_AMOUNT"
	ResponseInvalidRequest ResponseStatus = "INVALID_REQUEST"
)

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// AccountSnapshot is the account section of a message. In requests PIN is
// the PIN as entered and Funds is the amount (withdrawal) or the new funds
// (admin update); in responses PIN is always zero.
type AccountSnapshot struct {
	AccountNo string          `json:"account_no"`
	PIN       int             `json:"pin,omitempty"`
	Funds     decimal.Decimal `json:"funds"`
	Attempts  int             `json:"attempts"`
}

type Message struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Origin        Origin          `json:"origin"`
	Operation     Operation       `json:"operation"`
	Account       AccountSnapshot `json:"account"`
	Status        ResponseStatus  `json:"status,omitempty"`
}

type Envelope struct {
	Kind    Kind    `json:"kind"`
	Payload Message `json:"payload"`
}

// Reply builds the response skeleton for m, echoing its correlation id.
func (m Message) Reply(status ResponseStatus, account AccountSnapshot) Message {
	return Message{
		CorrelationID: m.CorrelationID,
		Origin:        m.Origin,
		Operation:     m.Operation,
		Account:       account,
		Status:        status,
	}
}
