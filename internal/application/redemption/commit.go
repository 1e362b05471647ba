package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

// Redeem validates the link and the attendee batch, then commits it.
func (s *service) Redeem(ctx context.Context, req domain.RedeemRequest) (*domain.RedeemResult, error) {
	summary, err := s.Validate(ctx, req.Phone, req.Token)
	if err != nil {
		return nil, err
	}
	set, err := s.PreValidate(ctx, summary.Link, req.Attendees)
	if err != nil {
		s.metrics.CommitOutcome("rejected")
		return nil, err
	}
	return s.commit(ctx, summary, set, req.VoucherCode)
}

// commit runs the attempt state machine:
//
//	PENDING -> ALLOCATED -> COMMITTED
//	PENDING | ALLOCATED -> ROLLED_BACK
//
// The link lease keeps other commits off the link while this one runs; the ISSUED ->
// REDEEMED flip is conditional on still holding it.
func (s *service) commit(ctx context.Context, summary *domain.LinkSummary, set *domain.AttendeeSet, voucherCode string) (*domain.RedeemResult, error) {
	link, ev := summary.Link, summary.Event
	now := s.now().UTC()
	attemptID := id.New()

	if err := s.links.AcquireLease(ctx, link.Token, attemptID, now.Add(s.lease), now); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		s.metrics.CommitOutcome("busy")
		if cur, gerr := s.links.Get(ctx, link.Token); gerr == nil && cur.State == domain.LinkRedeemed {
			return nil, fmt.Errorf("link %s: %w", link.Token, domain.ErrAlreadyRedeemed)
		}
		return nil, fmt.Errorf("redemption already in progress for this link: %w", domain.ErrConflict)
	}

	attempt := &domain.CommitAttempt{
		AttemptID:   attemptID,
		LinkToken:   link.Token,
		EventID:     link.EventID,
		Phones:      set.Phones(),
		VoucherCode: voucherCode,
		State:       domain.AttemptPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.releaseLease(ctx, link.Token, attemptID)
		return nil, fmt.Errorf("open commit attempt: %w", err)
	}

	reservation := s.reserveVoucher(ctx, attempt)

	allocs, failures := s.allocate(ctx, link, set, attemptID)
	created := make([]string, 0, len(allocs))
	for _, a := range allocs {
		created = append(created, a.Phone)
	}
	patch := domain.AttemptPatch{
		ReservedPhones: nonNil(reservation.Phones),
		CreatedPhones:  created,
		Failures:       failureStrings(failures),
	}
	if err := s.attempts.Transition(ctx, attemptID, domain.AttemptPending, domain.AttemptAllocated, patch, s.now()); err != nil {
		attempt.ReservedPhones = reservation.Phones
		_ = s.compensate(ctx, attempt, domain.AttemptPending)
		s.metrics.CommitOutcome("error")
		return nil, fmt.Errorf("record allocations: %w", err)
	}
	attempt.State = domain.AttemptAllocated
	attempt.ReservedPhones = reservation.Phones
	attempt.CreatedPhones = created

	if len(failures) > 0 {
		_ = s.compensate(ctx, attempt, domain.AttemptAllocated)
		s.metrics.CommitOutcome("rolled_back")
		return nil, &domain.CommitFailedError{AttemptID: attemptID, Failures: failures}
	}

	if err := s.links.MarkRedeemed(ctx, link.Token, attemptID, s.now()); err != nil {
		_ = s.compensate(ctx, attempt, domain.AttemptAllocated)
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.CommitOutcome("lost_flip")
			if cur, gerr := s.links.Get(ctx, link.Token); gerr == nil && cur.State == domain.LinkRedeemed {
				return nil, fmt.Errorf("link %s: %w", link.Token, domain.ErrAlreadyRedeemed)
			}
			return nil, fmt.Errorf("commit lease expired before the link was redeemed: %w", domain.ErrConflict)
		}
		s.metrics.CommitOutcome("error")
		return nil, fmt.Errorf("mark link redeemed: %w", err)
	}

	settled, _ := s.finalize(ctx, attempt, link.Phone)
	s.metrics.CommitOutcome("committed")

	for _, a := range allocs {
		s.enqueue(ctx, ticketTask(a, ev))
	}
	// Until the voucher is confirmed the attendees do not hold it; recovery sends these
	// once it settles the reservation.
	if settled {
		for _, p := range reservation.Phones {
			a, _ := set.Get(p)
			s.enqueue(ctx, voucherTask(reservation.Code, a, ev))
		}
	}

	redeemed := *link
	redeemed.State = domain.LinkRedeemed
	redeemed.RedeemedByAttempt = attemptID
	return &domain.RedeemResult{AttemptID: attemptID, Link: &redeemed, Allocations: allocs, Voucher: reservation}, nil
}

// reserveVoucher holds voucher slots for the attempt's phones, owned by the attempt, and
// records them on it. Any problem means the batch proceeds without the voucher.
func (s *service) reserveVoucher(ctx context.Context, attempt *domain.CommitAttempt) domain.Reservation {
	if attempt.VoucherCode == "" {
		return domain.Reservation{}
	}
	res, err := s.vouchers.Reserve(ctx, attempt.VoucherCode, attempt.EventID, attempt.AttemptID, attempt.Phones)
	if err != nil {
		slog.Warn("voucher reserve failed, continuing without voucher", "code", attempt.VoucherCode, "attempt", attempt.AttemptID, "err", err)
		return domain.Reservation{}
	}
	if res.Empty() {
		return res
	}
	if err := s.attempts.RecordReservation(ctx, attempt.AttemptID, res.Phones, s.now()); err != nil {
		slog.Warn("could not record voucher reservation, releasing it", "attempt", attempt.AttemptID, "err", err)
		if rerr := s.vouchers.Release(ctx, res.Code, attempt.AttemptID, res.Phones); rerr != nil {
			slog.Error("voucher release failed", "code", res.Code, "attempt", attempt.AttemptID, "err", rerr)
		}
		return domain.Reservation{}
	}
	return res
}

// allocate creates one allocation per attendee. Every attendee is attempted even after a
// failure so the caller learns about all of them at once.
func (s *service) allocate(ctx context.Context, link *domain.RedemptionLink, set *domain.AttendeeSet, attemptID string) ([]domain.TicketAllocation, []domain.Rejection) {
	var (
		allocs   []domain.TicketAllocation
		failures []domain.Rejection
	)
	for i, a := range set.All() {
		ident, err := s.identities.LookupOrCreate(ctx, a.Phone, a.Name)
		if err != nil {
			slog.Warn("identity lookup failed", "phone", a.Phone, "attempt", attemptID, "err", err)
			failures = append(failures, domain.Rejection{Index: i, Phone: a.Phone, Name: a.Name,
				Code: domain.RejectIdentityFailed, Message: "could not resolve attendee identity"})
			continue
		}
		alloc := domain.TicketAllocation{
			EventID:      link.EventID,
			Phone:        a.Phone,
			AllocationID: id.New(),
			IdentityID:   ident.IdentityID,
			Name:         a.Name,
			LinkToken:    link.Token,
			Source:       domain.SourceLink,
			AttemptID:    attemptID,
			Price:        link.Price,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.allocations.Create(ctx, &alloc); err != nil {
			code, msg := domain.RejectInternal, "could not create ticket"
			if errors.Is(err, domain.ErrConflict) {
				code, msg = domain.RejectAllocationRace, "already holds a ticket for this event"
			}
			failures = append(failures, domain.Rejection{Index: i, Phone: a.Phone, Name: a.Name, Code: code, Message: msg})
			continue
		}
		allocs = append(allocs, alloc)
	}
	return allocs, failures
}

// compensate undoes every write of attempt and marks it ROLLED_BACK. Each step is
// idempotent; if any fails the attempt keeps its state and recovery retries it later.
// Voucher releases cover all of the attempt's phones: only reservations the attempt owns
// and has not confirmed are returned, including one whose recording never landed.
func (s *service) compensate(ctx context.Context, attempt *domain.CommitAttempt, from domain.AttemptState) error {
	var errs []error
	for _, p := range attempt.Phones {
		if err := s.allocations.Delete(ctx, attempt.EventID, p, attempt.AttemptID); err != nil {
			errs = append(errs, fmt.Errorf("delete allocation %s: %w", p, err))
		}
	}
	if attempt.VoucherCode != "" {
		if err := s.vouchers.Release(ctx, attempt.VoucherCode, attempt.AttemptID, attempt.Phones); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		slog.Error("compensation incomplete, left for recovery", "attempt", attempt.AttemptID, "err", err)
		return err
	}
	s.releaseLease(ctx, attempt.LinkToken, attempt.AttemptID)
	if err := s.attempts.Transition(ctx, attempt.AttemptID, from, domain.AttemptRolledBack, domain.AttemptPatch{}, s.now()); err != nil {
		slog.Warn("could not mark attempt rolled back", "attempt", attempt.AttemptID, "err", err)
		return err
	}
	return nil
}

// finalize settles the voucher, frees the slot and marks the attempt COMMITTED once the link
// is REDEEMED. Failures leave the attempt ALLOCATED for recovery to roll forward. settled
// reports whether this call confirmed the attempt's voucher reservations; a replay after an
// earlier confirm reports false.
func (s *service) finalize(ctx context.Context, attempt *domain.CommitAttempt, linkPhone string) (settled bool, err error) {
	if n := len(attempt.ReservedPhones); n > 0 {
		settled, err = s.vouchers.Confirm(ctx, attempt.VoucherCode, attempt.AttemptID, n)
		if err != nil {
			slog.Error("voucher confirm failed after commit", "attempt", attempt.AttemptID, "code", attempt.VoucherCode, "err", err)
			return false, err
		}
	}
	key := domain.SlotKey(attempt.EventID, linkPhone)
	if err := s.slots.Release(ctx, key, attempt.LinkToken); err != nil {
		slog.Warn("could not free link slot", "slot", key, "err", err)
	}
	if err := s.attempts.Transition(ctx, attempt.AttemptID, domain.AttemptAllocated, domain.AttemptCommitted, domain.AttemptPatch{}, s.now()); err != nil {
		slog.Warn("could not mark attempt committed", "attempt", attempt.AttemptID, "err", err)
		return settled, err
	}
	return settled, nil
}

func (s *service) releaseLease(ctx context.Context, token, attemptID string) {
	if err := s.links.ReleaseLease(ctx, token, attemptID); err != nil {
		slog.Warn("could not release commit lease", "token", token, "attempt", attemptID, "err", err)
	}
}

func failureStrings(rs []domain.Rejection) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Phone+":"+string(r.Code))
	}
	return out
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
