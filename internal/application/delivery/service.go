package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redemption-api/internal/domain"
)

const requeueTimeout = 5 * time.Second

// Queue carries delivery tasks between producers and workers.
type Queue interface {
	Enqueue(ctx context.Context, task domain.DeliveryTask) error
	Consume(ctx context.Context, handle func(context.Context, domain.DeliveryTask) error) error
}

type notifier interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

type mediaRenderer interface {
	Render(ctx context.Context, key, payload string) (string, error)
}

type deliveryStore interface {
	Put(ctx context.Context, d *domain.DeliveryRecord) error
}

type recorder interface {
	Delivery(kind, status string)
}

// Service renders and sends queued delivery tasks with bounded retries.
type Service interface {
	Handle(ctx context.Context, task domain.DeliveryTask) error
	Run(ctx context.Context, workers int)
}

type service struct {
	queue      Queue
	notifier   notifier
	media      mediaRenderer
	store      deliveryStore
	metrics    recorder
	maxRetries int
	backoff    time.Duration

	retries sync.WaitGroup // delayed re-queues still waiting to fire
}

type ServiceDeps struct {
	Queue      Queue
	Notifier   notifier
	Media      mediaRenderer // optional; tasks are sent as text only when nil
	Store      deliveryStore
	Metrics    recorder
	MaxRetries int
	Backoff    time.Duration // base delay before a failed task is re-queued
}

func NewService(deps ServiceDeps) Service {
	return &service{
		queue:      deps.Queue,
		notifier:   deps.Notifier,
		media:      deps.Media,
		store:      deps.Store,
		metrics:    deps.Metrics,
		maxRetries: deps.MaxRetries,
		backoff:    deps.Backoff,
	}
}

// Run starts workers consumers and blocks until ctx is cancelled, all have returned and
// every pending retry is back on the queue.
func (s *service) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := s.queue.Consume(ctx, s.Handle); err != nil {
				slog.Error("delivery worker stopped", "worker", n, "err", err)
			}
		}(i)
	}
	wg.Wait()
	s.retries.Wait()
}

// Handle delivers one task. Send failures are retried by re-queueing the task after a
// linear backoff until maxRetries attempts have been made, after which the task is
// dead-lettered. The backoff runs off the worker so it can take the next task at once.
func (s *service) Handle(ctx context.Context, task domain.DeliveryTask) error {
	now := time.Now().UTC()
	attempt := task.Attempts + 1
	rec := &domain.DeliveryRecord{
		DeliveryID: task.TaskID,
		Kind:       task.Kind,
		Phone:      task.Phone,
		Attempts:   attempt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sendErr := s.send(ctx, task, rec)
	switch {
	case sendErr == nil:
		rec.Status = domain.DeliverySent
	case attempt < s.maxRetries:
		rec.Status = domain.DeliveryFailed
		rec.LastError = sendErr.Error()
	default:
		rec.Status = domain.DeliveryDead
		rec.LastError = sendErr.Error()
		slog.Error("delivery dead-lettered", "task", task.TaskID, "kind", task.Kind, "phone", task.Phone, "attempts", attempt, "err", sendErr)
	}
	s.metrics.Delivery(string(task.Kind), string(rec.Status))

	if err := s.store.Put(ctx, rec); err != nil {
		slog.Warn("could not record delivery", "task", task.TaskID, "err", err)
	}
	if rec.Status != domain.DeliveryFailed {
		return nil
	}

	task.Attempts = attempt
	s.requeueAfter(ctx, task, s.backoff*time.Duration(attempt))
	return nil
}

// requeueAfter puts task back on the queue once delay has passed. When ctx ends first the
// task is re-queued immediately so a shutdown does not drop it.
func (s *service) requeueAfter(ctx context.Context, task domain.DeliveryTask, delay time.Duration) {
	s.retries.Add(1)
	go func() {
		defer s.retries.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		defer cancel()
		if err := s.queue.Enqueue(enqCtx, task); err != nil {
			slog.Error("delivery requeue failed, task lost", "task", task.TaskID, "kind", task.Kind, "attempts", task.Attempts, "err", err)
		}
	}()
}

func (s *service) send(ctx context.Context, task domain.DeliveryTask, rec *domain.DeliveryRecord) error {
	msg := domain.OutboundMessage{Phone: task.Phone, Name: task.Name, Text: task.Text}
	if s.media != nil && task.Payload != "" {
		url, err := s.media.Render(ctx, fmt.Sprintf("qr/%s/%s.png", task.Kind, task.TaskID), task.Payload)
		if err != nil {
			return fmt.Errorf("render media: %w", err)
		}
		msg.ImageURL = url
		rec.ImageURL = url
	}
	return s.notifier.Send(ctx, msg)
}
