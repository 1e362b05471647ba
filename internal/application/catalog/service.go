// Package catalog manages the events links point at and the vouchers attendees can claim.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
	"github.com/go-redemption-api/internal/pkg/validate"
)

type Service interface {
	CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error)
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
	CreateVoucher(ctx context.Context, req domain.CreateVoucherRequest) (*domain.Voucher, error)
}

type eventStore interface {
	Put(ctx context.Context, e *domain.Event) error
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type voucherStore interface {
	Create(ctx context.Context, v *domain.Voucher) error
}

type service struct {
	events   eventStore
	vouchers voucherStore
	now      func() time.Time
}

func NewService(events eventStore, vouchers voucherStore) Service {
	return &service{events: events, vouchers: vouchers, now: time.Now}
}

func (s *service) CreateEvent(ctx context.Context, req domain.CreateEventRequest) (*domain.Event, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	ev := &domain.Event{
		EventID:   id.New(),
		Title:     strings.TrimSpace(req.Title),
		Venue:     strings.TrimSpace(req.Venue),
		StartsAt:  req.StartsAt.UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.events.Put(ctx, ev); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	return ev, nil
}

func (s *service) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.events.Get(ctx, eventID)
}

// CreateVoucher stores an active voucher with its full capacity available.
func (s *service) CreateVoucher(ctx context.Context, req domain.CreateVoucherRequest) (*domain.Voucher, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.EventID != "" {
		if _, err := s.events.Get(ctx, req.EventID); err != nil {
			return nil, err
		}
	}
	v := &domain.Voucher{
		Code:        req.Code,
		Description: req.Description,
		EventID:     req.EventID,
		MaxUsage:    req.MaxUsage,
		Remaining:   req.MaxUsage,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.vouchers.Create(ctx, v); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("voucher %s already exists: %w", v.Code, domain.ErrConflict)
		}
		return nil, err
	}
	return v, nil
}
