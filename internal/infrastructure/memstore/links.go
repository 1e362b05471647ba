package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/go-redemption-api/internal/domain"
)

type LinkRepo struct {
	mu    sync.RWMutex
	links map[string]domain.RedemptionLink
}

func NewLinkRepo() *LinkRepo {
	return &LinkRepo{links: make(map[string]domain.RedemptionLink)}
}

func (r *LinkRepo) Create(_ context.Context, l *domain.RedemptionLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[l.Token]; ok {
		return conflict("link token taken")
	}
	r.links[l.Token] = *l
	return nil
}

func (r *LinkRepo) Get(_ context.Context, token string) (*domain.RedemptionLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[token]
	if !ok || !l.Visible() {
		return nil, notFound("link")
	}
	return &l, nil
}

func (r *LinkRepo) AcquireLease(_ context.Context, token, attemptID string, until, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[token]
	if !ok || l.State != domain.LinkIssued || l.Deleted || (l.LeaseAttempt != "" && l.LeaseUntil >= now.Unix()) {
		return conflict("link not available for commit")
	}
	l.LeaseAttempt = attemptID
	l.LeaseUntil = until.Unix()
	r.links[token] = l
	return nil
}

func (r *LinkRepo) ReleaseLease(_ context.Context, token, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[token]
	if !ok || l.LeaseAttempt != attemptID {
		return nil
	}
	l.LeaseAttempt = ""
	l.LeaseUntil = 0
	r.links[token] = l
	return nil
}

func (r *LinkRepo) MarkRedeemed(_ context.Context, token, attemptID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[token]
	if !ok || l.State != domain.LinkIssued || l.LeaseAttempt != attemptID {
		return conflict("link already redeemed or lease lost")
	}
	at = at.UTC()
	l.State = domain.LinkRedeemed
	l.RedeemedAt = &at
	l.RedeemedByAttempt = attemptID
	l.LeaseAttempt = ""
	l.LeaseUntil = 0
	r.links[token] = l
	return nil
}

func (r *LinkRepo) SoftDelete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[token]
	if !ok || l.State != domain.LinkIssued || l.LeaseAttempt != "" {
		return conflict("only idle unredeemed links can be revoked")
	}
	l.Deleted = true
	r.links[token] = l
	return nil
}

func (r *LinkRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, token)
	return nil
}

type LinkSlotRepo struct {
	mu    sync.Mutex
	slots map[string]domain.LinkSlot
}

func NewLinkSlotRepo() *LinkSlotRepo {
	return &LinkSlotRepo{slots: make(map[string]domain.LinkSlot)}
}

func (r *LinkSlotRepo) Claim(_ context.Context, s *domain.LinkSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[s.SlotKey]; ok {
		return conflict("link slot taken")
	}
	r.slots[s.SlotKey] = *s
	return nil
}

func (r *LinkSlotRepo) Get(_ context.Context, slotKey string) (*domain.LinkSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotKey]
	if !ok {
		return nil, notFound("link slot")
	}
	return &s, nil
}

func (r *LinkSlotRepo) Replace(_ context.Context, slotKey, oldToken, newToken string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotKey]
	if !ok || s.Token != oldToken {
		return conflict("link slot changed")
	}
	s.Token = newToken
	s.CreatedAt = at.UTC()
	r.slots[slotKey] = s
	return nil
}

func (r *LinkSlotRepo) Release(_ context.Context, slotKey, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[slotKey]; ok && s.Token == token {
		delete(r.slots, slotKey)
	}
	return nil
}
