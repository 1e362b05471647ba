// Package redisqueue is a reliable delivery queue on a Redis list. A task moves atomically
// into a processing list while it is handled and is removed only after the handler returns,
// so a crashed worker's tasks can be put back with Requeue.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const pollTimeout = 5 * time.Second

type Queue struct {
	rdb        redis.Cmdable
	key        string
	processing string
}

func New(rdb redis.Cmdable, key string) *Queue {
	return &Queue{rdb: rdb, key: "queue:" + key, processing: "queue:" + key + ":processing"}
}

// NewClient parses a redis:// URL into a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (q *Queue) Enqueue(ctx context.Context, task domain.DeliveryTask) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

// Consume hands tasks to handle until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.DeliveryTask) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := q.processOne(ctx, handle); err != nil && ctx.Err() == nil {
			slog.Error("redis queue consume failed", "queue", q.key, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// processOne waits for one task. It reports false when nothing arrived before the poll timeout.
func (q *Queue) processOne(ctx context.Context, handle func(context.Context, domain.DeliveryTask) error) (bool, error) {
	raw, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var task domain.DeliveryTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		slog.Error("dropping malformed task", "queue", q.key, "err", err)
		return true, q.rdb.LRem(ctx, q.processing, 1, raw).Err()
	}
	if err := handle(ctx, task); err != nil {
		// Left in the processing list for Requeue.
		return true, fmt.Errorf("handle task %s: %w", task.TaskID, err)
	}
	return true, q.rdb.LRem(ctx, q.processing, 1, raw).Err()
}

// Requeue moves every task stranded in the processing list back onto the queue.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.rdb.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Len reports the number of tasks waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
