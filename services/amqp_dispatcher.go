package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"anniversary_server/logger"

	"github.com/streadway/amqp"
)

// PushJob is the payload a push worker consumes from the notification queue.
type PushJob struct {
	TargetHandle string            `json:"targetHandle"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`
}

// amqpPublisher is the part of *amqp.Channel the dispatcher uses.
type amqpPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDispatcher enqueues push jobs on a durable queue for an external
// push worker.
type AMQPDispatcher struct {
	mu      sync.Mutex
	channel amqpPublisher
	queue   string
	now     func() time.Time
}

func NewAMQPDispatcher(channel amqpPublisher, queue string) *AMQPDispatcher {
	return &AMQPDispatcher{channel: channel, queue: queue, now: time.Now}
}

// DialAMQPDispatcher connects, declares the queue and returns the dispatcher
// with a close function for the connection.
func DialAMQPDispatcher(url, queue string) (*AMQPDispatcher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	logger.Get().Info().Str("queue", queue).Msg("✅ connected to notification broker")
	closeFn := func() error {
		ch.Close()
		return conn.Close()
	}
	return NewAMQPDispatcher(ch, queue), closeFn, nil
}

func (d *AMQPDispatcher) Send(ctx context.Context, targetHandle, title, body string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if targetHandle == "" {
		return fmt.Errorf("push job has no target handle")
	}
	payload, err := json.Marshal(PushJob{
		TargetHandle: targetHandle,
		Title:        title,
		Body:         body,
		Data:         data,
		EnqueuedAt:   d.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode push job: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	err = d.channel.Publish("", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    d.now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish push job: %w", err)
	}
	return nil
}
