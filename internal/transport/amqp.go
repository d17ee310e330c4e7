package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
)

const dialTimeout = 10 * time.Second

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

func dial(amqpURL string) (*amqp.Connection, *amqp.Channel, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// AMQPServer receives requests from a durable RabbitMQ queue and publishes
// each response to the reply queue named by its request.
type AMQPServer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	replyTo    map[uuid.UUID]string
	logger     *slog.Logger
}

var _ Receiver = (*AMQPServer)(nil)

func NewAMQPServer(amqpURL, queue string, logger *slog.Logger) (*AMQPServer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	// Requests are handled one at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPServer{
		conn:       conn,
		ch:         ch,
		deliveries: deliveries,
		replyTo:    make(map[uuid.UUID]string),
		logger:     logger,
	}, nil
}

// Receive acknowledges each request as soon as it is decoded, so a request
// is processed at most once.
func (s *AMQPServer) Receive(ctx context.Context) (domain.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		case d, ok := <-s.deliveries:
			if !ok {
				return domain.Message{}, errors.ErrTransportClosed
			}

			msg, err := decodeEnvelope(d.Body, domain.KindRequest)
			if err != nil {
				s.logger.Warn("Dropping undecodable request", "message_id", d.MessageId, "error", err)
				d.Nack(false, false)
				continue
			}
			if id, err := uuid.Parse(d.CorrelationId); err == nil {
				msg.CorrelationID = id
			}
			if d.ReplyTo != "" {
				s.replyTo[msg.CorrelationID] = d.ReplyTo
			}
			if err := d.Ack(false); err != nil {
				return domain.Message{}, errors.ErrTransportClosed.Wrap(err)
			}
			return msg, nil
		}
	}
}

func (s *AMQPServer) Reply(ctx context.Context, resp domain.Message) error {
	replyTo, ok := s.replyTo[resp.CorrelationID]
	if !ok {
		s.logger.Debug("No reply queue for response", "correlation_id", resp.CorrelationID)
		return nil
	}
	delete(s.replyTo, resp.CorrelationID)

	body, err := encodeEnvelope(domain.KindResponse, resp)
	if err != nil {
		return err
	}

	return s.ch.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Type:          string(domain.KindResponse),
		CorrelationId: resp.CorrelationID.String(),
		Timestamp:     time.Now(),
		Body:          body,
	})
}

func (s *AMQPServer) Close() {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// AMQPClient publishes requests to the server's queue and receives its
// responses on an exclusive, auto-deleted reply queue.
type AMQPClient struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	replyQueue string

	publishMu sync.Mutex
	mu        sync.Mutex
	pending   map[uuid.UUID]chan domain.Message
	done      chan struct{}
	logger    *slog.Logger
}

var _ Caller = (*AMQPClient)(nil)

func NewAMQPClient(amqpURL, queue string, logger *slog.Logger) (*AMQPClient, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	replies, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(replies.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	c := &AMQPClient{
		conn:       conn,
		ch:         ch,
		queue:      queue,
		replyQueue: replies.Name,
		pending:    make(map[uuid.UUID]chan domain.Message),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go c.routeReplies(deliveries)

	return c, nil
}

func (c *AMQPClient) routeReplies(deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for d := range deliveries {
		id, err := uuid.Parse(d.CorrelationId)
		if err != nil {
			c.logger.Warn("Reply without correlation id", "error", err)
			continue
		}

		msg, err := decodeEnvelope(d.Body, domain.KindResponse)
		if err != nil {
			c.logger.Warn("Dropping undecodable reply", "correlation_id", id, "error", err)
			continue
		}

		c.mu.Lock()
		waiter, ok := c.pending[id]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Dropping reply with no waiting caller", "correlation_id", id)
			continue
		}

		select {
		case waiter <- msg:
		default:
		}
	}
}

func (c *AMQPClient) Call(ctx context.Context, req domain.Message) (domain.Message, error) {
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

	if err := c.publish(ctx, req, c.replyQueue); err != nil {
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

func (c *AMQPClient) Send(ctx context.Context, req domain.Message) error {
	if req.CorrelationID == uuid.Nil {
		req.CorrelationID = uuid.New()
	}
	return c.publish(ctx, req, "")
}

func (c *AMQPClient) publish(ctx context.Context, req domain.Message, replyTo string) error {
	body, err := encodeEnvelope(domain.KindRequest, req)
	if err != nil {
		return err
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Type:          string(domain.KindRequest),
		CorrelationId: req.CorrelationID.String(),
		ReplyTo:       replyTo,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return errors.ErrTransportClosed.Wrap(err)
	}
	return nil
}

func (c *AMQPClient) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
