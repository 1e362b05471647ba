// Package memstore is an in-memory twin of the DynamoDB repositories. Every conditional
// write fails under the same circumstances as its DynamoDB counterpart, so the engine can
// run (and be tested) without AWS.
package memstore

import (
	"fmt"

	"github.com/go-redemption-api/internal/domain"
)

// Store bundles one repository per table.
type Store struct {
	Events      *EventRepo
	Links       *LinkRepo
	LinkSlots   *LinkSlotRepo
	Allocations *AllocationRepo
	Vouchers    *VoucherRepo
	Identities  *IdentityRepo
	Attempts    *AttemptRepo
	Reports     *ReportRepo
	Deliveries  *DeliveryRepo
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		Events:      NewEventRepo(),
		Links:       NewLinkRepo(),
		LinkSlots:   NewLinkSlotRepo(),
		Allocations: NewAllocationRepo(),
		Vouchers:    NewVoucherRepo(),
		Identities:  NewIdentityRepo(),
		Attempts:    NewAttemptRepo(),
		Reports:     NewReportRepo(),
		Deliveries:  NewDeliveryRepo(),
	}
}

func notFound(what string) error { return fmt.Errorf("%s not found: %w", what, domain.ErrNotFound) }

func conflict(msg string) error { return fmt.Errorf("%s: %w", msg, domain.ErrConflict) }

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	copy(out, ss)
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func remove(ss []string, s string) []string {
	out := ss[:0:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
