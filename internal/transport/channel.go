package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
)

// Channel is an in-process transport. Requests share one bounded queue;
// responses go to a per-call queue keyed by correlation id.
type Channel struct {
	requests chan domain.Envelope

	mu      sync.Mutex
	pending map[uuid.UUID]chan domain.Message

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

var (
	_ Receiver = (*Channel)(nil)
	_ Caller   = (*Channel)(nil)
)

// NewChannel creates a Channel whose request queue holds capacity messages;
// senders block once it is full.
func NewChannel(capacity int, logger *slog.Logger) *Channel {
	return &Channel{
		requests: make(chan domain.Envelope, capacity),
		pending:  make(map[uuid.UUID]chan domain.Message),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (c *Channel) Receive(ctx context.Context) (domain.Message, error) {
	select {
	case env := <-c.requests:
		return env.Payload, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-c.done:
		return domain.Message{}, errors.ErrTransportClosed
	}
}

func (c *Channel) Reply(ctx context.Context, resp domain.Message) error {
	c.mu.Lock()
	waiter, ok := c.pending[resp.CorrelationID]
	c.mu.Unlock()

	select {
	case <-c.done:
		return errors.ErrTransportClosed
	default:
	}

	if !ok {
		c.logger.Debug("Dropping response with no waiting caller", "correlation_id", resp.CorrelationID)
		return nil
	}

	select {
	case waiter <- resp:
	default:
		c.logger.Warn("Duplicate response dropped", "correlation_id", resp.CorrelationID)
	}
	return nil
}

func (c *Channel) Call(ctx context.Context, req domain.Message) (domain.Message, error) {
	req.CorrelationID = uuid.New()
	waiter := make(chan domain.Message, 1)

	c.mu.Lock()
	c.pending[req.CorrelationID] = waiter
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.CorrelationID)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, req); err != nil {
		return domain.Message{}, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-c.done:
		return domain.Message{}, errors.ErrTransportClosed
	}
}

func (c *Channel) Send(ctx context.Context, req domain.Message) error {
	if req.CorrelationID == uuid.Nil {
		req.CorrelationID = uuid.New()
	}
	return c.enqueue(ctx, req)
}

func (c *Channel) enqueue(ctx context.Context, req domain.Message) error {
	select {
	case <-c.done:
		return errors.ErrTransportClosed
	default:
	}

	select {
	case c.requests <- domain.Envelope{Kind: domain.KindRequest, Payload: req}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.ErrTransportClosed
	}
}

// Close releases every blocked sender, receiver and caller with
// ErrTransportClosed. It is safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
