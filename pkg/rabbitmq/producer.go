/**
 * @description
 * Publishes round-up domain events to a durable RabbitMQ topic exchange. When the
 * broker is unreachable at startup the service runs with EventProducerFallback, which
 * logs and drops events instead of failing requests.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyPledgeAccrued     = "pledge.accrued"
	RoutingKeyDonationCompleted = "donation.completed"
	DefaultExchange             = "roundup.events"
)

// PledgeAccruedEvent is published after a transaction's round-up was pledged.
type PledgeAccruedEvent struct {
	Owner          string    `json:"owner"`
	TransactionID  string    `json:"transaction_id"`
	PledgeID       string    `json:"pledge_id"`
	Amount         string    `json:"amount"`
	PendingPledges string    `json:"pending_pledges"`
	Timestamp      time.Time `json:"timestamp"`
}

// DonationCompletedEvent is published after a donation settled pending pledges.
type DonationCompletedEvent struct {
	Owner          string    `json:"owner"`
	DonationID     string    `json:"donation_id"`
	CharityID      string    `json:"charity_id"`
	Amount         string    `json:"amount"`
	DonationType   string    `json:"donation_type"`
	ReceiptNumber  string    `json:"receipt_number"`
	SettledPledges []string  `json:"settled_pledges"`
	SettledAmount  string    `json:"settled_amount"`
	PendingPledges string    `json:"pending_pledges"`
	TotalDonated   string    `json:"total_donated"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	PublishPledgeAccrued(ctx context.Context, event PledgeAccruedEvent) error
	PublishDonationCompleted(ctx context.Context, event DonationCompletedEvent) error
	Close()
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) PublishPledgeAccrued(ctx context.Context, event PledgeAccruedEvent) error {
	return p.Publish(ctx, DefaultExchange, RoutingKeyPledgeAccrued, event)
}

func (p *EventProducerFallback) PublishDonationCompleted(ctx context.Context, event DonationCompletedEvent) error {
	return p.Publish(ctx, DefaultExchange, RoutingKeyDonationCompleted, event)
}

func (p *EventProducerFallback) Close() {}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and publishes typed events to exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *EventProducer) reopenChannel() error {
	if p.conn == nil {
		return amqp091.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	return nil
}

func (p *EventProducer) declare(exchange string) error {
	return p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Publish sends body as JSON to exchange with routingKey. A failed declare or
// publish reopens the channel and retries once.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.declare(exchange); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", exchange, err)
		if err := p.reopenChannel(); err != nil {
			return err
		}
		if err := p.declare(exchange); err != nil {
			return err
		}
	}

	err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
	if reopenErr := p.reopenChannel(); reopenErr != nil {
		return err
	}
	if declareErr := p.declare(exchange); declareErr != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

// PublishPledgeAccrued publishes a pledge.accrued event.
func (p *EventProducer) PublishPledgeAccrued(ctx context.Context, event PledgeAccruedEvent) error {
	return p.Publish(ctx, p.exchange, RoutingKeyPledgeAccrued, event)
}

// PublishDonationCompleted publishes a donation.completed event.
func (p *EventProducer) PublishDonationCompleted(ctx context.Context, event DonationCompletedEvent) error {
	return p.Publish(ctx, p.exchange, RoutingKeyDonationCompleted, event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
