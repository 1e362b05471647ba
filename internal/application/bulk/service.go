// Package bulk allocates tickets directly from an admin-uploaded attendee file. Rows are
// processed independently: a bad row is reported, never fatal to the rest of the file.
package bulk

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

const maxTokenAttempts = 5

type Service interface {
	Allocate(ctx context.Context, req Request) (*Result, error)
	Report(ctx context.Context, reportID string) (*domain.Report, error)
}

// Request is one upload. Price and Notes apply to every row.
type Request struct {
	EventID  string
	Rows     []Row
	Price    string
	Notes    string
	IssuedBy string
}

type Result struct {
	Allocated []domain.TicketAllocation `json:"allocated"`
	Rejected  []domain.Rejection        `json:"rejected"`
	Report    *domain.Report            `json:"report,omitempty"`
}

type eventStore interface {
	Get(ctx context.Context, eventID string) (*domain.Event, error)
}

type linkStore interface {
	Create(ctx context.Context, l *domain.RedemptionLink) error
	Delete(ctx context.Context, token string) error
}

type allocationStore interface {
	Create(ctx context.Context, a *domain.TicketAllocation) error
	FindExisting(ctx context.Context, eventID string, phones []string) (map[string]*domain.TicketAllocation, error)
}

type identityStore interface {
	LookupOrCreate(ctx context.Context, phone, name string) (*domain.Identity, error)
}

type reportStore interface {
	Put(ctx context.Context, r *domain.Report) error
	Get(ctx context.Context, reportID string) (*domain.Report, error)
}

type objectStore interface {
	PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

type taskQueue interface {
	Enqueue(ctx context.Context, task domain.DeliveryTask) error
}

type phoneCanonicalizer interface {
	Canonical(raw string) (string, error)
}

type recorder interface {
	BulkRows(result string, n int)
}

type service struct {
	events      eventStore
	links       linkStore
	allocations allocationStore
	identities  identityStore
	reports     reportStore
	objects     objectStore
	queue       taskQueue
	phones      phoneCanonicalizer
	metrics     recorder
	now         func() time.Time
}

type ServiceDeps struct {
	EventRepo      eventStore
	LinkRepo       linkStore
	AllocationRepo allocationStore
	IdentityRepo   identityStore
	ReportRepo     reportStore
	Objects        objectStore
	Queue          taskQueue
	Phones         phoneCanonicalizer
	Metrics        recorder
	Now            func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		events:      deps.EventRepo,
		links:       deps.LinkRepo,
		allocations: deps.AllocationRepo,
		identities:  deps.IdentityRepo,
		reports:     deps.ReportRepo,
		objects:     deps.Objects,
		queue:       deps.Queue,
		phones:      deps.Phones,
		metrics:     deps.Metrics,
		now:         now,
	}
}

// candidate is a row that passed the local checks.
type candidate struct {
	Row
	index int
}

func (s *service) Allocate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("no rows to allocate: %w", domain.ErrBadRequest)
	}
	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		return nil, err
	}
	ev, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	res := &Result{Allocated: []domain.TicketAllocation{}, Rejected: []domain.Rejection{}}
	reject := func(i int, r Row, code domain.RejectionCode, msg string, detail map[string]string) {
		res.Rejected = append(res.Rejected, domain.Rejection{
			Index: i, Row: r.Line, Phone: r.Phone, Name: r.Name, Code: code, Message: msg, Detail: detail,
		})
	}

	var candidates []candidate
	firstLine := make(map[string]int, len(req.Rows))
	for i, r := range req.Rows {
		p, err := s.phones.Canonical(r.Phone)
		if err != nil {
			reject(i, r, domain.RejectInvalidPhone, "phone number is not valid", nil)
			continue
		}
		r.Phone = p
		if r.Name == "" {
			reject(i, r, domain.RejectMissingName, "name is required", nil)
			continue
		}
		if first, ok := firstLine[p]; ok {
			reject(i, r, domain.RejectDuplicateInFile, "phone appears earlier in the file",
				map[string]string{"first_row": strconv.Itoa(first)})
			continue
		}
		firstLine[p] = r.Line
		candidates = append(candidates, candidate{Row: r, index: i})
	}

	phones := make([]string, 0, len(candidates))
	for _, c := range candidates {
		phones = append(phones, c.Phone)
	}
	existing, err := s.allocations.FindExisting(ctx, ev.EventID, phones)
	if err != nil {
		return nil, fmt.Errorf("check existing allocations: %w", err)
	}

	for _, c := range candidates {
		if a, ok := existing[c.Phone]; ok {
			reject(c.index, c.Row, domain.RejectAlreadyAllocated, "already holds a ticket for this event", map[string]string{
				"allocation_id": a.AllocationID,
				"link_token":    a.LinkToken,
				"source":        string(a.Source),
			})
			continue
		}
		alloc, code, err := s.allocateRow(ctx, ev, c.Row, price, req)
		if err != nil {
			msg := "could not create ticket"
			if code == domain.RejectAllocationRace {
				msg = "already holds a ticket for this event"
			}
			slog.Warn("bulk row rejected", "event", ev.EventID, "row", c.Line, "code", code, "err", err)
			reject(c.index, c.Row, code, msg, nil)
			continue
		}
		res.Allocated = append(res.Allocated, *alloc)
		if err := s.queue.Enqueue(ctx, ticketTask(*alloc, ev)); err != nil {
			slog.Warn("could not queue ticket delivery", "allocation", alloc.AllocationID, "err", err)
		}
	}

	s.metrics.BulkRows("allocated", len(res.Allocated))
	s.metrics.BulkRows("rejected", len(res.Rejected))

	if len(res.Rejected) > 0 {
		sortRejections(res.Rejected)
		rep, err := s.writeReport(ctx, ev.EventID, req.IssuedBy, res.Rejected)
		if err != nil {
			// The allocations stand; the report can be rebuilt from the response body.
			slog.Error("could not store rejection report", "event", ev.EventID, "err", err)
		} else {
			res.Report = rep
		}
	}
	return res, nil
}

// allocateRow writes identity, an already-REDEEMED link and the allocation for one row. The
// link is removed again when the allocation loses.
func (s *service) allocateRow(ctx context.Context, ev *domain.Event, r Row, price domain.Price, req Request) (*domain.TicketAllocation, domain.RejectionCode, error) {
	ident, err := s.identities.LookupOrCreate(ctx, r.Phone, r.Name)
	if err != nil {
		return nil, domain.RejectInternal, fmt.Errorf("identity: %w", err)
	}
	now := s.now().UTC()
	link := &domain.RedemptionLink{
		EventID:     ev.EventID,
		Phone:       r.Phone,
		TicketCount: 1,
		Price:       price,
		Notes:       req.Notes,
		IssuedBy:    req.IssuedBy,
		State:       domain.LinkRedeemed,
		CreatedAt:   now,
		RedeemedAt:  &now,
	}
	if err := s.createLink(ctx, link); err != nil {
		return nil, domain.RejectInternal, err
	}
	alloc := &domain.TicketAllocation{
		EventID:      ev.EventID,
		Phone:        r.Phone,
		AllocationID: id.New(),
		IdentityID:   ident.IdentityID,
		Name:         r.Name,
		LinkToken:    link.Token,
		Source:       domain.SourceAdminDirect,
		Price:        price,
		CreatedAt:    now,
	}
	if err := s.allocations.Create(ctx, alloc); err != nil {
		if derr := s.links.Delete(ctx, link.Token); derr != nil {
			slog.Warn("could not remove orphan link", "token", link.Token, "err", derr)
		}
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.RejectAllocationRace, err
		}
		return nil, domain.RejectInternal, err
	}
	return alloc, "", nil
}

func (s *service) createLink(ctx context.Context, link *domain.RedemptionLink) error {
	for attempt := 1; ; attempt++ {
		token, err := id.Token(id.TokenLength)
		if err != nil {
			return err
		}
		link.Token = token
		err = s.links.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == maxTokenAttempts {
			return fmt.Errorf("store link: %w", err)
		}
	}
}

var reportHeader = []string{"row", "phone", "name", "reason", "reason_code", "detail"}

func (s *service) writeReport(ctx context.Context, eventID, createdBy string, rejected []domain.Rejection) (*domain.Report, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, r := range rejected {
		detail := ""
		if len(r.Detail) > 0 {
			b, err := json.Marshal(r.Detail)
			if err != nil {
				return nil, err
			}
			detail = string(b)
		}
		if err := w.Write([]string{strconv.Itoa(r.Row), r.Phone, r.Name, r.Message, string(r.Code), detail}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	rep := &domain.Report{
		ReportID:  id.New(),
		Kind:      domain.ReportKindRejections,
		EventID:   eventID,
		Rows:      len(rejected),
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	rep.Object = fmt.Sprintf("reports/%s/%s.csv", eventID, rep.ReportID)
	url, err := s.objects.PutBytes(ctx, rep.Object, buf.Bytes(), "text/csv")
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}
	if err := s.reports.Put(ctx, rep); err != nil {
		return nil, fmt.Errorf("register report: %w", err)
	}
	rep.DownloadURL = url
	return rep, nil
}

// Report returns a stored report with a fresh download URL.
func (s *service) Report(ctx context.Context, reportID string) (*domain.Report, error) {
	rep, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignedURL(ctx, rep.Object)
	if err != nil {
		return nil, fmt.Errorf("presign report: %w", err)
	}
	rep.DownloadURL = url
	return rep, nil
}

func ticketTask(a domain.TicketAllocation, ev *domain.Event) domain.DeliveryTask {
	return domain.DeliveryTask{
		TaskID:  id.New(),
		Kind:    domain.TaskTicket,
		Phone:   a.Phone,
		Name:    a.Name,
		Text:    fmt.Sprintf("Hi %s, you are on the list for %s at %s. Show this code at the entrance.", a.Name, ev.Title, ev.Venue),
		Payload: "ticket:" + a.AllocationID,
	}
}
