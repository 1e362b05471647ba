package domain

// Attendee is a transient (name, phone) pair supplied at redemption time.
type Attendee struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"required"`
}

// AttendeeSet is a phone-keyed collection of attendees. Phones are unique within the set and
// iteration follows insertion order.
type AttendeeSet struct {
	order []string
	byKey map[string]Attendee
}

func NewAttendeeSet() *AttendeeSet {
	return &AttendeeSet{byKey: make(map[string]Attendee)}
}

// Add inserts a, keyed by its phone. It returns false and leaves the set unchanged when the
// phone is already present.
func (s *AttendeeSet) Add(a Attendee) bool {
	if _, ok := s.byKey[a.Phone]; ok {
		return false
	}
	s.order = append(s.order, a.Phone)
	s.byKey[a.Phone] = a
	return true
}

func (s *AttendeeSet) Get(phone string) (Attendee, bool) {
	a, ok := s.byKey[phone]
	return a, ok
}

func (s *AttendeeSet) Len() int { return len(s.order) }

// Phones returns the phones in insertion order.
func (s *AttendeeSet) Phones() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns the attendees in insertion order.
func (s *AttendeeSet) All() []Attendee {
	out := make([]Attendee, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.byKey[p])
	}
	return out
}

// RedeemRequest is a customer's submission against a redemption link. Phone and Token come
// from the URL; the phone is the link holder, attendees may be anyone.
type RedeemRequest struct {
	Phone       string     `json:"-"`
	Token       string     `json:"-"`
	Attendees   []Attendee `json:"attendees"`
	VoucherCode string     `json:"voucher_code,omitempty"`
}

// RedeemResult describes a committed redemption.
type RedeemResult struct {
	AttemptID   string             `json:"attempt_id"`
	Link        *RedemptionLink    `json:"link"`
	Allocations []TicketAllocation `json:"allocations"`
	Voucher     Reservation        `json:"voucher"`
}
