// Package notify публикует события об изменении заказов и выплат внешним подписчикам
// (push-уведомления, генерация квитанций).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Типы событий.
const (
	OrderCreated         = "order.created"
	OrderDriverAssigned  = "order.driver_assigned"
	OrderStatusChanged   = "order.status_changed"
	OrderReturnSubmitted = "order.return_submitted"
	OrderReturnVerified  = "order.return_verified"
	RemittanceRequested  = "remittance.requested"
	RemittanceApproved   = "remittance.approved"
	RemittanceSent       = "remittance.sent"
	ManualReceipt        = "receipt.manual"
)

// DefaultChannel канал Redis по умолчанию.
const DefaultChannel = "backoffice.events"

// Event событие. Несёт идентификаторы, подписчики перечитывают сущность сами.
type Event struct {
	Type             string           `json:"type"`
	OrderID          *uuid.UUID       `json:"orderRef,omitempty"`
	RemittanceID     *uuid.UUID       `json:"remittanceRef,omitempty"`
	PartyID          *uuid.UUID       `json:"partyRef,omitempty"`
	Status           string           `json:"status,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	ExceedsAvailable bool             `json:"exceedsAvailable,omitempty"`
	At               time.Time        `json:"at"`
}

// Publisher отправляет события. Ошибка публикации не отменяет уже выполненную операцию.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// RedisPublisher публикует события в канал Redis Pub/Sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher подключается к Redis и проверяет соединение.
func NewRedisPublisher(addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPublisherFromClient(client, channel), nil
}

// NewRedisPublisherFromClient использует готовый клиент.
func NewRedisPublisherFromClient(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish реализует Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher пишет события в журнал, когда брокер не настроен.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher создаёт публикатор в журнал.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish реализует Publisher.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	fields := []zap.Field{zap.String("type", e.Type), zap.Time("at", e.At)}
	if e.OrderID != nil {
		fields = append(fields, zap.String("order", e.OrderID.String()))
	}
	if e.RemittanceID != nil {
		fields = append(fields, zap.String("remittance", e.RemittanceID.String()))
	}
	if e.PartyID != nil {
		fields = append(fields, zap.String("party", e.PartyID.String()))
	}
	if e.Status != "" {
		fields = append(fields, zap.String("status", e.Status))
	}
	if e.Amount != nil {
		fields = append(fields, zap.String("amount", e.Amount.String()), zap.String("currency", e.Currency))
	}
	if e.ExceedsAvailable {
		fields = append(fields, zap.Bool("exceedsAvailable", true))
	}
	p.log.Info("event", fields...)
	return nil
}

// Close реализует Publisher.
func (p *LogPublisher) Close() error { return nil }
