package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

type EventRepo struct {
	mu     sync.RWMutex
	events map[string]domain.Event
}

func NewEventRepo() *EventRepo { return &EventRepo{events: make(map[string]domain.Event)} }

func (r *EventRepo) Put(_ context.Context, e *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.EventID] = *e
	return nil
}

func (r *EventRepo) Get(_ context.Context, eventID string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[eventID]
	if !ok || !e.Visible() {
		return nil, notFound("event")
	}
	return &e, nil
}

type IdentityRepo struct {
	mu    sync.Mutex
	byTel map[string]domain.Identity
}

func NewIdentityRepo() *IdentityRepo { return &IdentityRepo{byTel: make(map[string]domain.Identity)} }

func (r *IdentityRepo) Get(_ context.Context, phone string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byTel[phone]
	if !ok {
		return nil, notFound("identity")
	}
	return &i, nil
}

func (r *IdentityRepo) LookupOrCreate(_ context.Context, phone, name string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byTel[phone]; ok {
		return &i, nil
	}
	i := domain.Identity{Phone: phone, IdentityID: id.New(), Name: name, CreatedAt: time.Now().UTC()}
	r.byTel[phone] = i
	return &i, nil
}

type AttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]domain.CommitAttempt
}

func NewAttemptRepo() *AttemptRepo { return &AttemptRepo{attempts: make(map[string]domain.CommitAttempt)} }

func (r *AttemptRepo) Create(_ context.Context, a *domain.CommitAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[a.AttemptID]; ok {
		return conflict("attempt exists")
	}
	r.attempts[a.AttemptID] = *a
	return nil
}

func (r *AttemptRepo) Get(_ context.Context, attemptID string) (*domain.CommitAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return nil, notFound("attempt")
	}
	return &a, nil
}

func (r *AttemptRepo) Transition(_ context.Context, attemptID string, from, to domain.AttemptState, patch domain.AttemptPatch, at time.Time) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrIllegalTransition(from, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok || a.State != from {
		return conflict("attempt " + attemptID + " not in state " + string(from))
	}
	a.State = to
	a.UpdatedAt = at.UTC()
	if patch.ReservedPhones != nil {
		a.ReservedPhones = cloneStrings(patch.ReservedPhones)
	}
	if patch.CreatedPhones != nil {
		a.CreatedPhones = cloneStrings(patch.CreatedPhones)
	}
	if patch.Failures != nil {
		a.Failures = cloneStrings(patch.Failures)
	}
	r.attempts[attemptID] = a
	return nil
}

func (r *AttemptRepo) RecordReservation(_ context.Context, attemptID string, phones []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok || a.State != domain.AttemptPending {
		return conflict("attempt " + attemptID + " no longer pending")
	}
	a.ReservedPhones = cloneStrings(phones)
	a.UpdatedAt = at.UTC()
	r.attempts[attemptID] = a
	return nil
}

// Backdate shifts an attempt's last update into the past, as if its process had died.
func (r *AttemptRepo) Backdate(attemptID string, by time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.attempts[attemptID]; ok {
		a.UpdatedAt = a.UpdatedAt.Add(-by)
		r.attempts[attemptID] = a
	}
}

func (r *AttemptRepo) ListStale(_ context.Context, states []domain.AttemptState, before time.Time) ([]domain.CommitAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CommitAttempt
	for _, a := range r.attempts {
		for _, st := range states {
			if a.State == st && a.UpdatedAt.Before(before) {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

type ReportRepo struct {
	mu      sync.RWMutex
	reports map[string]domain.Report
}

func NewReportRepo() *ReportRepo { return &ReportRepo{reports: make(map[string]domain.Report)} }

func (r *ReportRepo) Put(_ context.Context, rep *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rep
	c.DownloadURL = ""
	r.reports[rep.ReportID] = c
	return nil
}

func (r *ReportRepo) Get(_ context.Context, reportID string) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[reportID]
	if !ok || rep.Deleted {
		return nil, notFound("report")
	}
	return &rep, nil
}

type DeliveryRepo struct {
	mu         sync.RWMutex
	deliveries map[string]domain.DeliveryRecord
}

func NewDeliveryRepo() *DeliveryRepo {
	return &DeliveryRepo{deliveries: make(map[string]domain.DeliveryRecord)}
}

func (r *DeliveryRepo) Put(_ context.Context, d *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[d.DeliveryID] = *d
	return nil
}

func (r *DeliveryRepo) Get(_ context.Context, deliveryID string) (*domain.DeliveryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, notFound("delivery")
	}
	return &d, nil
}
