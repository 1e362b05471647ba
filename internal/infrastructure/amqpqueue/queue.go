// Package amqpqueue carries delivery tasks over a durable RabbitMQ queue.
package amqpqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redemption-api/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Queue struct {
	conn  *amqp.Connection
	name  string
	mu    sync.Mutex // guards pubCh; channels are not safe for concurrent publishing
	pubCh *amqp.Channel
}

// Dial connects to url and declares the durable queue name.
func Dial(url, name string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	return &Queue{conn: conn, name: name, pubCh: ch}, nil
}

func (q *Queue) Close() error { return q.conn.Close() }

func publishing(task domain.DeliveryTask) (amqp.Publishing, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.TaskID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, task domain.DeliveryTask) error {
	pub, err := publishing(task)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pubCh.PublishWithContext(ctx, "", q.name, false, false, pub)
}

// Consume hands deliveries to handle on a dedicated channel until ctx is cancelled.
// A handler error rejects the delivery without requeueing it.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.DeliveryTask) error) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		slog.Warn("amqp set qos failed", "err", err)
	}
	msgs, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleDelivery(ctx, d.Body, handle); err != nil {
				slog.Error("amqp handle delivery failed", "queue", q.name, "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleDelivery(ctx context.Context, body []byte, handle func(context.Context, domain.DeliveryTask) error) error {
	var task domain.DeliveryTask
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return handle(ctx, task)
}

// Len reports the number of ready messages.
func (q *Queue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, err := q.pubCh.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return int64(st.Messages), nil
}
