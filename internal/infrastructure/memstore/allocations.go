package memstore

import (
	"context"
	"sync"

	"github.com/go-redemption-api/internal/domain"
)

type AllocationRepo struct {
	mu     sync.RWMutex
	allocs map[string]domain.TicketAllocation
}

func NewAllocationRepo() *AllocationRepo {
	return &AllocationRepo{allocs: make(map[string]domain.TicketAllocation)}
}

func allocKey(eventID, phone string) string { return eventID + "\x00" + phone }

func (r *AllocationRepo) Create(_ context.Context, a *domain.TicketAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := allocKey(a.EventID, a.Phone)
	if _, ok := r.allocs[k]; ok {
		return conflict("phone already allocated for event")
	}
	r.allocs[k] = *a
	return nil
}

func (r *AllocationRepo) Get(_ context.Context, eventID, phone string) (*domain.TicketAllocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.allocs[allocKey(eventID, phone)]
	if !ok {
		return nil, notFound("allocation")
	}
	return &a, nil
}

func (r *AllocationRepo) Delete(_ context.Context, eventID, phone, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := allocKey(eventID, phone)
	if a, ok := r.allocs[k]; ok && a.AttemptID == attemptID {
		delete(r.allocs, k)
	}
	return nil
}

func (r *AllocationRepo) FindExisting(_ context.Context, eventID string, phones []string) (map[string]*domain.TicketAllocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := make(map[string]*domain.TicketAllocation)
	for _, p := range phones {
		if a, ok := r.allocs[allocKey(eventID, p)]; ok {
			a := a
			found[p] = &a
		}
	}
	return found, nil
}

// Count returns the number of allocations stored for eventID.
func (r *AllocationRepo) Count(eventID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.allocs {
		if a.EventID == eventID {
			n++
		}
	}
	return n
}
