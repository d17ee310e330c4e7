// Package transport carries request and response messages between the
// server's control loop and its clients. Every request gets a correlation
// id which the response echoes, and each client only ever sees the
// responses to its own requests.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"atm-ledger/internal/domain"
)

// Receiver is the server side of a transport.
type Receiver interface {
	// Receive blocks until a request is available.
	Receive(ctx context.Context) (domain.Message, error)
	// Reply routes resp to the client waiting on its correlation id.
	Reply(ctx context.Context, resp domain.Message) error
}

// Caller is the client side of a transport.
type Caller interface {
	// Call sends req under a fresh correlation id and waits for its response.
	Call(ctx context.Context, req domain.Message) (domain.Message, error)
	// Send sends req without waiting for a response.
	Send(ctx context.Context, req domain.Message) error
}

func encodeEnvelope(kind domain.Kind, msg domain.Message) ([]byte, error) {
	return json.Marshal(domain.Envelope{Kind: kind, Payload: msg})
}

func decodeEnvelope(body []byte, want domain.Kind) (domain.Message, error) {
	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Message{}, err
	}
	if env.Kind != want {
		return domain.Message{}, fmt.Errorf("unexpected envelope kind %q, want %q", env.Kind, want)
	}
	return env.Payload, nil
}
