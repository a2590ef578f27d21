// Package events publishes transfer lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const Exchange = "fintrust.events"

// Routing keys
const (
	TransferFlagged       = "transfer.flagged"
	TransferCommitted     = "transfer.committed"
	TransferIndeterminate = "transfer.indeterminate"
	TransferReconciled    = "transfer.reconciled"
)

// TransferEvent is the message body for every routing key.
type TransferEvent struct {
	TransferID string    `json:"tx_id"`
	Status     string    `json:"status"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver"`
	Amount     string    `json:"amount"`
	Settled    string    `json:"settled_amount,omitempty"`
	Score      float64   `json:"fraud_score"`
	LedgerRef  string    `json:"ledger_ref,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is implemented by types that can publish transfer events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event TransferEvent) error
	Close()
}

// NoopPublisher drops events. Used when RabbitMQ is not configured.
type NoopPublisher struct {
	Log *zap.Logger
}

func (p *NoopPublisher) Publish(_ context.Context, routingKey string, event TransferEvent) error {
	if p.Log != nil {
		p.Log.Debug("event publish skipped", zap.String("routing_key", routingKey), zap.String("tx_id", event.TransferID))
	}
	return nil
}

func (p *NoopPublisher) Close() {}

// RabbitPublisher publishes JSON events to a durable topic exchange.
type RabbitPublisher struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	log     *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewRabbitPublisher dials RabbitMQ and declares the exchange.
func NewRabbitPublisher(amqpURL string, log *zap.Logger) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	p := &RabbitPublisher{conn: conn, log: log}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// reopen opens a fresh channel and declares the exchange. Callers hold mu
// or own p exclusively.
func (p *RabbitPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, event TransferEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.TransferID + ":" + routingKey,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.log.Warn("publish failed, reopening channel", zap.String("routing_key", routingKey), zap.Error(err))
	if rerr := p.reopen(); rerr != nil {
		return rerr
	}
	return p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, msg)
}

func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Connect returns a RabbitMQ publisher, or a NoopPublisher when url is empty
// or the broker is unreachable.
func Connect(amqpURL string, log *zap.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		log.Info("RABBITMQ_URL not set, transfer events disabled")
		return &NoopPublisher{Log: log}
	}
	p, err := NewRabbitPublisher(amqpURL, log)
	if err != nil {
		log.Warn("rabbitmq unavailable, transfer events disabled", zap.Error(err))
		return &NoopPublisher{Log: log}
	}
	return p
}
