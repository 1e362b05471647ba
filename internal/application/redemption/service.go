// Package redemption issues single-use redemption links and turns a redeemed link into
// ticket allocations. A commit either allocates every attendee and flips the link to
// REDEEMED, or compensates every write it made and leaves the link redeemable.
package redemption

import (
	"context"
	"time"

	"github.com/go-redemption-api/internal/domain"
)

type Service interface {
	Issue(ctx context.Context, req domain.IssueLinkRequest) (*domain.IssuedLink, error)
	Resend(ctx context.Context, token string) (*domain.IssuedLink, error)
	Revoke(ctx context.Context, token string) error
	Validate(ctx context.Context, rawPhone, token string) (*domain.LinkSummary, error)
	PreValidate(ctx context.Context, link *domain.RedemptionLink, attendees []domain.Attendee) (*domain.AttendeeSet, error)
	Redeem(ctx context.Context, req domain.RedeemRequest) (*domain.RedeemResult, error)
	Recover(ctx context.Context, olderThan time.Duration) (domain.RecoveryReport, error)
}

type eventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type linkStore interface {
	Create(ctx context.Context, l *domain.RedemptionLink) error
	Get(ctx context.Context, token string) (*domain.RedemptionLink, error)
	AcquireLease(ctx context.Context, token, attemptID string, until, now time.Time) error
	ReleaseLease(ctx context.Context, token, attemptID string) error
	MarkRedeemed(ctx context.Context, token, attemptID string, at time.Time) error
	SoftDelete(ctx context.Context, token string) error
}

type slotStore interface {
	Claim(ctx context.Context, s *domain.LinkSlot) error
	Get(ctx context.Context, slotKey string) (*domain.LinkSlot, error)
	Replace(ctx context.Context, slotKey, oldToken, newToken string, at time.Time) error
	Release(ctx context.Context, slotKey, token string) error
}

type allocationStore interface {
	Create(ctx context.Context, a *domain.TicketAllocation) error
	Delete(ctx context.Context, eventID, phone, attemptID string) error
	FindExisting(ctx context.Context, eventID string, phones []string) (map[string]*domain.TicketAllocation, error)
}

type identityStore interface {
	LookupOrCreate(ctx context.Context, phone, name string) (*domain.Identity, error)
}

type attemptStore interface {
	Create(ctx context.Context, a *domain.CommitAttempt) error
	RecordReservation(ctx context.Context, attemptID string, phones []string, at time.Time) error
	Transition(ctx context.Context, attemptID string, from, to domain.AttemptState, patch domain.AttemptPatch, at time.Time) error
	ListStale(ctx context.Context, states []domain.AttemptState, before time.Time) ([]domain.CommitAttempt, error)
}

type voucherAllocator interface {
	Reserve(ctx context.Context, code, eventID, holder string, phones []string) (domain.Reservation, error)
	Confirm(ctx context.Context, code, holder string, n int) (bool, error)
	Release(ctx context.Context, code, holder string, phones []string) error
}

type taskQueue interface {
	Enqueue(ctx context.Context, task domain.DeliveryTask) error
}

type phoneCanonicalizer interface {
	Canonical(raw string) (string, error)
}

type recorder interface {
	LinkIssued(outcome string)
	CommitOutcome(outcome string)
}

type service struct {
	events      eventStore
	links       linkStore
	slots       slotStore
	allocations allocationStore
	identities  identityStore
	attempts    attemptStore
	vouchers    voucherAllocator
	queue       taskQueue
	phones      phoneCanonicalizer
	metrics     recorder

	baseURL    string
	maxTickets int
	lease      time.Duration
	now        func() time.Time
}

type ServiceDeps struct {
	EventRepo      eventStore
	LinkRepo       linkStore
	SlotRepo       slotStore
	AllocationRepo allocationStore
	IdentityRepo   identityStore
	AttemptRepo    attemptStore
	Vouchers       voucherAllocator
	Queue          taskQueue
	Phones         phoneCanonicalizer
	Metrics        recorder

	BaseURL     string        // redemption URLs are <BaseURL>/redeem/<digits>/<token>
	MaxTickets  int           // upper bound on ticket_count per link
	CommitLease time.Duration // how long one commit may hold a link
	Now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	lease := deps.CommitLease
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &service{
		events:      deps.EventRepo,
		links:       deps.LinkRepo,
		slots:       deps.SlotRepo,
		allocations: deps.AllocationRepo,
		identities:  deps.IdentityRepo,
		attempts:    deps.AttemptRepo,
		vouchers:    deps.Vouchers,
		queue:       deps.Queue,
		phones:      deps.Phones,
		metrics:     deps.Metrics,
		baseURL:     deps.BaseURL,
		maxTickets:  deps.MaxTickets,
		lease:       lease,
		now:         now,
	}
}
