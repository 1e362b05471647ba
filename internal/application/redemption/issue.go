package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
	"github.com/go-redemption-api/internal/pkg/phone"
	"github.com/go-redemption-api/internal/pkg/validate"
)

const (
	// maxTokenAttempts bounds token regeneration after collisions.
	maxTokenAttempts = 5
	// slotClaimGrace is how long a slot whose link does not exist yet is left to its issuer.
	slotClaimGrace = 30 * time.Second
)

// Issue creates a live link for (event, phone). At most one ISSUED link exists per pair: a
// second issue returns a *domain.LinkConflictError carrying the live link so the caller can
// resend it instead.
func (s *service) Issue(ctx context.Context, req domain.IssueLinkRequest) (*domain.IssuedLink, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if s.maxTickets > 0 && req.TicketCount > s.maxTickets {
		return nil, fmt.Errorf("ticket_count must be at most %d: %w", s.maxTickets, domain.ErrBadRequest)
	}
	p, err := s.phones.Canonical(req.Phone)
	if err != nil {
		return nil, err
	}
	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	existing, err := s.allocations.FindExisting(ctx, ev.EventID, []string{p})
	if err != nil {
		return nil, fmt.Errorf("check existing allocation: %w", err)
	}
	if _, ok := existing[p]; ok {
		s.metrics.LinkIssued("conflict")
		return nil, &domain.LinkConflictError{Reason: fmt.Sprintf("%s already holds a ticket for event %s", p, ev.EventID)}
	}

	now := s.now().UTC()
	link := &domain.RedemptionLink{
		EventID:     ev.EventID,
		Phone:       p,
		TicketCount: req.TicketCount,
		Price:       price,
		Notes:       req.Notes,
		IssuedBy:    req.IssuedBy,
		State:       domain.LinkIssued,
		CreatedAt:   now,
	}
	if err := s.persistLink(ctx, link); err != nil {
		var lc *domain.LinkConflictError
		if errors.As(err, &lc) {
			s.metrics.LinkIssued("conflict")
		}
		return nil, err
	}
	s.metrics.LinkIssued("ok")

	issued := &domain.IssuedLink{Link: link, URL: s.linkURL(link)}
	s.enqueue(ctx, linkTask(issued, ev))
	return issued, nil
}

// persistLink claims the (event, phone) slot and stores link under a fresh token.
func (s *service) persistLink(ctx context.Context, link *domain.RedemptionLink) error {
	key := domain.SlotKey(link.EventID, link.Phone)
	token, err := id.Token(id.TokenLength)
	if err != nil {
		return err
	}
	if err := s.claimSlot(ctx, key, token); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		link.Token = token
		err := s.links.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == maxTokenAttempts {
			if rerr := s.slots.Release(ctx, key, token); rerr != nil {
				slog.Warn("could not release link slot", "slot", key, "err", rerr)
			}
			return fmt.Errorf("store link: %w", err)
		}
		next, err := id.Token(id.TokenLength)
		if err != nil {
			return err
		}
		if err := s.slots.Replace(ctx, key, token, next, s.now()); err != nil {
			return fmt.Errorf("retarget link slot: %w", err)
		}
		token = next
	}
}

// claimSlot points the (event, phone) slot at token. A slot held by a live link is a
// conflict; a slot whose link is gone, redeemed or revoked is taken over.
func (s *service) claimSlot(ctx context.Context, key, token string) error {
	now := s.now().UTC()
	err := s.slots.Claim(ctx, &domain.LinkSlot{SlotKey: key, Token: token, CreatedAt: now})
	if !errors.Is(err, domain.ErrConflict) {
		return err
	}
	slot, err := s.slots.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		// Released between our claim and the read; one more try.
		return s.slots.Claim(ctx, &domain.LinkSlot{SlotKey: key, Token: token, CreatedAt: now})
	}
	if err != nil {
		return err
	}
	held, err := s.links.Get(ctx, slot.Token)
	switch {
	case err == nil && held.Live():
		return &domain.LinkConflictError{Link: held, Reason: "a live link already exists for this phone and event"}
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if now.Sub(slot.CreatedAt) < slotClaimGrace {
			return fmt.Errorf("link issuance already in progress: %w", domain.ErrConflict)
		}
	default:
		return err
	}
	slog.Info("taking over stale link slot", "slot", key, "stale_token", slot.Token)
	if err := s.slots.Replace(ctx, key, slot.Token, token, now); err != nil {
		return fmt.Errorf("concurrent link issuance: %w", err)
	}
	return nil
}

// Resend queues the link message again for a live link.
func (s *service) Resend(ctx context.Context, token string) (*domain.IssuedLink, error) {
	link, err := s.links.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.State == domain.LinkRedeemed {
		return nil, fmt.Errorf("link %s: %w", token, domain.ErrAlreadyRedeemed)
	}
	ev, err := s.events.Get(ctx, link.EventID)
	if err != nil {
		return nil, err
	}
	issued := &domain.IssuedLink{Link: link, URL: s.linkURL(link)}
	if err := s.queue.Enqueue(ctx, linkTask(issued, ev)); err != nil {
		return nil, fmt.Errorf("queue link message: %w", err)
	}
	return issued, nil
}

// Revoke hides an unredeemed link and frees its (event, phone) slot.
func (s *service) Revoke(ctx context.Context, token string) error {
	link, err := s.links.Get(ctx, token)
	if err != nil {
		return err
	}
	if link.State == domain.LinkRedeemed {
		return fmt.Errorf("link %s: %w", token, domain.ErrAlreadyRedeemed)
	}
	if err := s.links.SoftDelete(ctx, token); err != nil {
		return fmt.Errorf("revoke link %s: %w", token, err)
	}
	return s.slots.Release(ctx, domain.SlotKey(link.EventID, link.Phone), token)
}

func (s *service) linkURL(l *domain.RedemptionLink) string {
	return fmt.Sprintf("%s/redeem/%s/%s", s.baseURL, phone.Digits(l.Phone), l.Token)
}

// enqueue queues a delivery task. Delivery is best effort from the caller's point of view.
func (s *service) enqueue(ctx context.Context, task domain.DeliveryTask) {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		slog.Warn("could not queue delivery", "kind", task.Kind, "phone", task.Phone, "err", err)
	}
}
