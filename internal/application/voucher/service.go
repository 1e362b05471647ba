package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

// maxReserveAttempts bounds how often Reserve re-reads the voucher after losing a race.
const maxReserveAttempts = 3

type Service interface {
	Reserve(ctx context.Context, code, eventID, holder string, phones []string) (domain.Reservation, error)
	Confirm(ctx context.Context, code, holder string, n int) (bool, error)
	Release(ctx context.Context, code, holder string, phones []string) error
	RedeemAtVenue(ctx context.Context, code, rawPhone string) (*domain.Voucher, error)
	Claim(ctx context.Context, code, rawPhone string) (*domain.Voucher, error)
	Get(ctx context.Context, code string) (*domain.Voucher, error)
}

type voucherStore interface {
	Get(ctx context.Context, code string) (*domain.Voucher, error)
	Reserve(ctx context.Context, code, holder string, phones []string) error
	Confirm(ctx context.Context, code, holder string, n int) error
	Release(ctx context.Context, code, holder, phone string) error
	RedeemAtVenue(ctx context.Context, code, phone string) error
}

type phoneCanonicalizer interface {
	Canonical(raw string) (string, error)
}

type recorder interface {
	VoucherOperation(op, status string)
}

type service struct {
	repo    voucherStore
	phones  phoneCanonicalizer
	metrics recorder
}

type ServiceDeps struct {
	VoucherRepo voucherStore
	Phones      phoneCanonicalizer
	Metrics     recorder
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.VoucherRepo, phones: deps.Phones, metrics: deps.Metrics}
}

// Reserve holds one voucher slot for as many of phones as capacity allows, in input order,
// owned by holder. Phones that already hold or used the voucher are skipped. A missing, inactive or
// out-of-scope voucher, exhausted capacity, or a race lost maxReserveAttempts times all
// yield an empty reservation: the caller proceeds without the voucher.
func (s *service) Reserve(ctx context.Context, code, eventID, holder string, phones []string) (domain.Reservation, error) {
	if code == "" || len(phones) == 0 {
		return domain.Reservation{}, nil
	}
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		v, err := s.repo.Get(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.VoucherOperation("reserve", "not_found")
			return domain.Reservation{}, nil
		}
		if err != nil {
			return domain.Reservation{}, err
		}
		if !v.AppliesTo(eventID) {
			s.metrics.VoucherOperation("reserve", "not_applicable")
			return domain.Reservation{}, nil
		}
		take := eligible(v, phones)
		if len(take) > v.Remaining {
			take = take[:v.Remaining]
		}
		if len(take) == 0 {
			s.metrics.VoucherOperation("reserve", "exhausted")
			return domain.Reservation{}, nil
		}
		err = s.repo.Reserve(ctx, code, holder, take)
		if err == nil {
			s.metrics.VoucherOperation("reserve", "ok")
			return domain.Reservation{Code: code, Phones: take}, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Reservation{}, err
		}
		slog.Debug("voucher reserve raced, retrying", "code", code, "attempt", attempt)
	}
	s.metrics.VoucherOperation("reserve", "contended")
	slog.Warn("voucher reserve gave up under contention", "code", code, "phones", len(phones))
	return domain.Reservation{}, nil
}

// eligible returns phones (input order, deduplicated) that have not claimed v.
func eligible(v *domain.Voucher, phones []string) []string {
	seen := make(map[string]bool, len(phones))
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		if seen[p] || v.HasClaimed(p) {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Confirm settles holder's n reservations and reports whether this call did it. A holder
// that was already settled is not counted twice. Confirm never creates a reservation, so
// confirmed stays within held capacity.
func (s *service) Confirm(ctx context.Context, code, holder string, n int) (bool, error) {
	if code == "" || n <= 0 {
		return false, nil
	}
	err := s.repo.Confirm(ctx, code, holder, n)
	if err == nil {
		s.metrics.VoucherOperation("confirm", "ok")
		return true, nil
	}
	if errors.Is(err, domain.ErrConflict) {
		if v, gerr := s.repo.Get(ctx, code); gerr == nil && v.SettledBy(holder) {
			s.metrics.VoucherOperation("confirm", "already_settled")
			return false, nil
		}
	}
	s.metrics.VoucherOperation("confirm", "error")
	return false, fmt.Errorf("confirm voucher %s: %w", code, err)
}

// Release returns the reservations holder owns among phones. Phones held by someone else,
// holding nothing, or already confirmed are left alone, so Release can be replayed.
func (s *service) Release(ctx context.Context, code, holder string, phones []string) error {
	if code == "" {
		return nil
	}
	var errs []error
	for _, p := range phones {
		if err := s.repo.Release(ctx, code, holder, p); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		s.metrics.VoucherOperation("release", "error")
		return errors.Join(errs...)
	}
	s.metrics.VoucherOperation("release", "ok")
	return nil
}

// RedeemAtVenue records on-site use of the voucher by phone. The slot stays held.
func (s *service) RedeemAtVenue(ctx context.Context, code, rawPhone string) (*domain.Voucher, error) {
	p, err := s.phones.Canonical(rawPhone)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	for _, r := range v.Redeemed {
		if r == p {
			return nil, fmt.Errorf("voucher already used by %s: %w", p, domain.ErrAlreadyRedeemed)
		}
	}
	if err := s.repo.RedeemAtVenue(ctx, code, p); err != nil {
		s.metrics.VoucherOperation("redeem_at_venue", "rejected")
		return nil, fmt.Errorf("%s has no reservation on %s: %w", p, code, err)
	}
	s.metrics.VoucherOperation("redeem_at_venue", "ok")
	return s.repo.Get(ctx, code)
}

// Claim is the immediate-settlement path: reserve one slot for phone and confirm it.
func (s *service) Claim(ctx context.Context, code, rawPhone string) (*domain.Voucher, error) {
	p, err := s.phones.Canonical(rawPhone)
	if err != nil {
		return nil, err
	}
	holder := "claim-" + id.New()
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		v, err := s.repo.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if !v.Active {
			return nil, fmt.Errorf("voucher %s is not active: %w", code, domain.ErrNotFound)
		}
		if v.HasClaimed(p) {
			s.metrics.VoucherOperation("claim", "duplicate")
			return nil, fmt.Errorf("%s already claimed %s: %w", p, code, domain.ErrConflict)
		}
		if v.Remaining <= 0 {
			s.metrics.VoucherOperation("claim", "sold_out")
			return nil, fmt.Errorf("voucher %s: %w", code, domain.ErrSoldOut)
		}
		err = s.repo.Reserve(ctx, code, holder, []string{p})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.repo.Confirm(ctx, code, holder, 1); err != nil {
			if rerr := s.repo.Release(ctx, code, holder, p); rerr != nil {
				slog.Error("voucher claim left a dangling reservation", "code", code, "phone", p, "err", rerr)
			}
			return nil, fmt.Errorf("confirm claim: %w", err)
		}
		s.metrics.VoucherOperation("claim", "ok")
		return s.repo.Get(ctx, code)
	}
	return nil, fmt.Errorf("voucher %s is busy, try again: %w", code, domain.ErrConflict)
}

func (s *service) Get(ctx context.Context, code string) (*domain.Voucher, error) {
	return s.repo.Get(ctx, code)
}
