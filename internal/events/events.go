// Package events отправляет события заказов во внешние каналы реального времени.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mmeshcher/resto-system/internal/model"
)

// Виды событий заказа, транслируемых на кухонные экраны и терминалы официантов.
const (
	EventOrderNew       = "order.new"
	EventOrderUpdated   = "order.updated"
	EventOrderStarted   = "order.started"
	EventOrderReady     = "order.ready"
	EventOrderServed    = "order.served"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

// Publisher описывает контракт отправки событий заказа. Доставка — лучшая из
// возможных: вызывающий код не ждёт подтверждения и не откатывает операцию
// при ошибке отправки.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error
	Close() error
}

// orderEvent — полезная нагрузка события: снимок заказа с ключом арендатора.
type orderEvent struct {
	Kind      string       `json:"kind"`
	BrandID   int64        `json:"brand_id"`
	BranchID  int64        `json:"branch_id"`
	Order     *model.Order `json:"order"`
	Timestamp time.Time    `json:"timestamp"`
}

const exchangeName = "orders_fanout"

// RabbitMQPublisher отправляет события заказов в fanout-обменник RabbitMQ.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher подключается к RabbitMQ и объявляет обменник событий.
func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &RabbitMQPublisher{conn: conn, channel: channel}, nil
}

// PublishOrderEvent публикует снимок заказа указанного вида.
func (p *RabbitMQPublisher) PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error {
	body, err := json.Marshal(orderEvent{
		Kind:      kind,
		BrandID:   order.BrandID,
		BranchID:  order.BranchID,
		Order:     order,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	routingKey := fmt.Sprintf("%d.%d", order.BrandID, order.BranchID)

	err = p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Close закрывает канал и соединение с RabbitMQ.
func (p *RabbitMQPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NoopPublisher используется, когда канал реального времени не настроен.
type NoopPublisher struct{}

// PublishOrderEvent ничего не делает.
func (NoopPublisher) PublishOrderEvent(ctx context.Context, kind string, order *model.Order) error {
	return nil
}

// Close ничего не делает.
func (NoopPublisher) Close() error { return nil }
