package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

var unfinishedStates = []domain.AttemptState{domain.AttemptPending, domain.AttemptAllocated}

// Recover resolves commit attempts left PENDING or ALLOCATED for longer than olderThan.
// An attempt whose link was flipped by it is rolled forward; every other one is compensated.
func (s *service) Recover(ctx context.Context, olderThan time.Duration) (domain.RecoveryReport, error) {
	var report domain.RecoveryReport
	stale, err := s.attempts.ListStale(ctx, unfinishedStates, s.now().Add(-olderThan))
	if err != nil {
		return report, fmt.Errorf("list stale attempts: %w", err)
	}
	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		a := &stale[i]
		report.Scanned++
		outcome, err := s.recoverOne(ctx, a)
		switch {
		case err != nil:
			report.Failed++
			slog.Error("recovery failed", "attempt", a.AttemptID, "state", a.State, "err", err)
		case outcome == domain.AttemptCommitted:
			report.RolledFwd++
		case outcome == domain.AttemptRolledBack:
			report.RolledBack++
		}
	}
	if report.Scanned > 0 {
		slog.Info("recovery pass finished", "scanned", report.Scanned, "rolled_back", report.RolledBack,
			"rolled_forward", report.RolledFwd, "failed", report.Failed)
	}
	return report, nil
}

// recoverOne returns the state the attempt ended in, or "" when it was left alone because a
// live commit still holds the link.
func (s *service) recoverOne(ctx context.Context, a *domain.CommitAttempt) (domain.AttemptState, error) {
	link, err := s.links.Get(ctx, a.LinkToken)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.rollBack(ctx, a)
	case err != nil:
		return "", err
	}

	if link.State == domain.LinkRedeemed {
		if link.RedeemedByAttempt == a.AttemptID && a.State == domain.AttemptAllocated {
			settled, err := s.finalize(ctx, a, link.Phone)
			if settled {
				s.notifyVoucher(ctx, a)
			}
			if err != nil {
				return "", err
			}
			return domain.AttemptCommitted, nil
		}
		return s.rollBack(ctx, a)
	}

	// The link is still ISSUED. Fence it so a slow original commit can no longer flip it,
	// then undo whatever that commit wrote.
	fence := "recover-" + id.New()
	now := s.now()
	if err := s.links.AcquireLease(ctx, link.Token, fence, now.Add(s.lease), now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Info("link still leased, skipping attempt", "attempt", a.AttemptID, "token", link.Token)
			return "", nil
		}
		return "", err
	}
	defer s.releaseLease(ctx, link.Token, fence)
	return s.rollBack(ctx, a)
}

func (s *service) rollBack(ctx context.Context, a *domain.CommitAttempt) (domain.AttemptState, error) {
	if err := s.compensate(ctx, a, a.State); err != nil {
		return "", err
	}
	return domain.AttemptRolledBack, nil
}

// notifyVoucher sends the VOUCHER messages a commit held back because its confirm had not
// landed yet.
func (s *service) notifyVoucher(ctx context.Context, a *domain.CommitAttempt) {
	ev, err := s.events.Get(ctx, a.EventID)
	if err != nil {
		slog.Warn("voucher messages skipped, event unavailable", "attempt", a.AttemptID, "err", err)
		return
	}
	allocs, err := s.allocations.FindExisting(ctx, a.EventID, a.ReservedPhones)
	if err != nil {
		slog.Warn("voucher messages skipped, allocations unavailable", "attempt", a.AttemptID, "err", err)
		return
	}
	for _, p := range a.ReservedPhones {
		attendee := domain.Attendee{Phone: p}
		if al, ok := allocs[p]; ok {
			attendee.Name = al.Name
		}
		s.enqueue(ctx, voucherTask(a.VoucherCode, attendee, ev))
	}
}
