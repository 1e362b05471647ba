package memstore

import (
	"context"
	"fmt"

	"github.com/go-redemption-api/internal/domain"
)

// Queue is a buffered in-process delivery queue. Tasks do not survive a restart.
type Queue struct {
	tasks chan domain.DeliveryTask
}

func NewQueue(size int) *Queue {
	return &Queue{tasks: make(chan domain.DeliveryTask, size)}
}

func (q *Queue) Enqueue(ctx context.Context, task domain.DeliveryTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("memory queue full")
	}
}

func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.DeliveryTask) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-q.tasks:
			_ = handle(ctx, t)
		}
	}
}

func (q *Queue) Len(context.Context) (int64, error) { return int64(len(q.tasks)), nil }

// Drain returns every queued task without handling it.
func (q *Queue) Drain() []domain.DeliveryTask {
	var out []domain.DeliveryTask
	for {
		select {
		case t := <-q.tasks:
			out = append(out, t)
		default:
			return out
		}
	}
}
