package redemption

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redemption-api/internal/domain"
)

// PreValidate checks an attendee batch against link before anything is written. Either every
// attendee passes and the canonical AttendeeSet is returned, or a *domain.BatchRejectedError
// lists the reason for every refused attendee.
func (s *service) PreValidate(ctx context.Context, link *domain.RedemptionLink, attendees []domain.Attendee) (*domain.AttendeeSet, error) {
	if len(attendees) != link.TicketCount {
		return nil, &domain.BatchRejectedError{Rejections: []domain.Rejection{{
			Index:   -1,
			Code:    domain.RejectBatchSize,
			Message: fmt.Sprintf("expected %d attendees, got %d", link.TicketCount, len(attendees)),
		}}}
	}

	var rejections []domain.Rejection
	set := domain.NewAttendeeSet()
	index := make(map[string]int, len(attendees))
	for i, a := range attendees {
		name := strings.TrimSpace(a.Name)
		p, err := s.phones.Canonical(a.Phone)
		if err != nil {
			rejections = append(rejections, domain.Rejection{Index: i, Phone: a.Phone, Name: name,
				Code: domain.RejectInvalidPhone, Message: "phone number is not valid"})
			continue
		}
		if name == "" {
			rejections = append(rejections, domain.Rejection{Index: i, Phone: p,
				Code: domain.RejectMissingName, Message: "name is required"})
			continue
		}
		if !set.Add(domain.Attendee{Name: name, Phone: p}) {
			rejections = append(rejections, domain.Rejection{Index: i, Phone: p, Name: name,
				Code: domain.RejectDuplicate, Message: "phone appears more than once",
				Detail: map[string]string{"first_index": strconv.Itoa(index[p])}})
			continue
		}
		index[p] = i
	}

	existing, err := s.allocations.FindExisting(ctx, link.EventID, set.Phones())
	if err != nil {
		return nil, fmt.Errorf("check existing allocations: %w", err)
	}
	for _, p := range set.Phones() {
		alloc, ok := existing[p]
		if !ok {
			continue
		}
		a, _ := set.Get(p)
		rejections = append(rejections, domain.Rejection{Index: index[p], Phone: p, Name: a.Name,
			Code: domain.RejectAlreadyAllocated, Message: "already holds a ticket for this event",
			Detail: map[string]string{"allocation_id": alloc.AllocationID}})
	}

	if len(rejections) > 0 {
		sort.SliceStable(rejections, func(i, j int) bool { return rejections[i].Index < rejections[j].Index })
		return nil, &domain.BatchRejectedError{Rejections: rejections}
	}
	return set, nil
}
