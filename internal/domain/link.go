package domain

import "time"

type LinkState string

const (
	LinkIssued   LinkState = "ISSUED"
	LinkRedeemed LinkState = "REDEEMED"
)

// RedemptionLink is a single-use, phone-scoped grant of TicketCount tickets for one event.
// The token is the primary key; the (event, phone) ISSUED slot lives in LinkSlot.
type RedemptionLink struct {
	Token             string     `json:"token" dynamodbav:"token"`
	EventID           string     `json:"event_id" dynamodbav:"event_id"`
	Phone             string     `json:"phone" dynamodbav:"phone"`
	TicketCount       int        `json:"ticket_count" dynamodbav:"ticket_count"`
	Price             Price      `json:"price" dynamodbav:"price"`
	Notes             string     `json:"notes,omitempty" dynamodbav:"notes"`
	IssuedBy          string     `json:"issued_by" dynamodbav:"issued_by"`
	State             LinkState  `json:"state" dynamodbav:"state"`
	RedeemedByAttempt string     `json:"-" dynamodbav:"redeemed_by_attempt,omitempty"`
	LeaseAttempt      string     `json:"-" dynamodbav:"lease_attempt,omitempty"`
	LeaseUntil        int64      `json:"-" dynamodbav:"lease_until"`
	Deleted           bool       `json:"-" dynamodbav:"deleted"`
	CreatedAt         time.Time  `json:"created" dynamodbav:"created_at"`
	RedeemedAt        *time.Time `json:"redeemed_at,omitempty" dynamodbav:"redeemed_at"`
}

// Visible reports whether the link passes the soft-delete predicate.
func (l *RedemptionLink) Visible() bool { return l != nil && !l.Deleted }

// Live reports whether the link can still be redeemed.
func (l *RedemptionLink) Live() bool { return l.Visible() && l.State == LinkIssued }

// LinkSlot marks the single ISSUED link allowed per (event, phone).
type LinkSlot struct {
	SlotKey   string    `dynamodbav:"slot_key"`
	Token     string    `dynamodbav:"token"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

func SlotKey(eventID, phone string) string { return eventID + "#" + phone }

type IssueLinkRequest struct {
	EventID     string `json:"event_id" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	TicketCount int    `json:"ticket_count" validate:"required,min=1"`
	Price       string `json:"price"`
	Notes       string `json:"notes" validate:"max=500"`
	IssuedBy    string `json:"-"`
}

// IssuedLink is the issuer's result: the stored link plus its redemption URL.
type IssuedLink struct {
	Link *RedemptionLink `json:"link"`
	URL  string          `json:"url"`
}

// LinkSummary is what the redemption form needs to render.
type LinkSummary struct {
	Link  *RedemptionLink `json:"link"`
	Event *Event          `json:"event"`
}
