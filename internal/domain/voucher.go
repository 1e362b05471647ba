package domain

import "time"

// Voucher is a capped-usage promotional benefit claimable once per phone.
//
// Capacity accounting: Remaining counts slots not yet held. A slot is held while its phone
// sits in Reserved or Redeemed, so held = MaxUsage - Remaining = |Reserved| + |Redeemed|.
// Unconfirmed counts held slots not yet confirmed, which keeps Confirmed <= held <= MaxUsage.
//
// Every reservation is owned by a holder (a commit attempt or a direct claim). Holders maps a
// reserved phone to its owner and Settled lists owners whose reservations were confirmed, so
// Release and Confirm only ever act on the caller's own reservations and can be replayed.
type Voucher struct {
	Code        string            `json:"code" dynamodbav:"code"`
	Description string            `json:"description" dynamodbav:"description"`
	EventID     string            `json:"event_id,omitempty" dynamodbav:"event_id,omitempty"`
	MaxUsage    int               `json:"max_usage" dynamodbav:"max_usage"`
	Remaining   int               `json:"remaining" dynamodbav:"remaining"`
	Unconfirmed int               `json:"unconfirmed" dynamodbav:"unconfirmed"`
	Confirmed   int               `json:"confirmed" dynamodbav:"confirmed"`
	Reserved    []string          `json:"reserved" dynamodbav:"reserved,stringset,omitempty"`
	Redeemed    []string          `json:"redeemed" dynamodbav:"redeemed,stringset,omitempty"`
	Holders     map[string]string `json:"-" dynamodbav:"holders"`
	Settled     []string          `json:"-" dynamodbav:"settled,stringset,omitempty"`
	Active      bool              `json:"active" dynamodbav:"active"`
	Deleted     bool              `json:"-" dynamodbav:"deleted"`
	CreatedAt   time.Time         `json:"created" dynamodbav:"created_at"`
}

func (v *Voucher) Visible() bool { return v != nil && !v.Deleted }

// AppliesTo reports whether the voucher can be used for eventID.
func (v *Voucher) AppliesTo(eventID string) bool {
	return v.Visible() && v.Active && (v.EventID == "" || v.EventID == eventID)
}

// Held is the number of capacity slots currently held by reservations or venue redemptions.
func (v *Voucher) Held() int { return v.MaxUsage - v.Remaining }

// HasClaimed reports whether phone already holds or used the voucher.
func (v *Voucher) HasClaimed(phone string) bool {
	for _, p := range v.Reserved {
		if p == phone {
			return true
		}
	}
	for _, p := range v.Redeemed {
		if p == phone {
			return true
		}
	}
	return false
}

// HolderOf returns the owner of phone's reservation, or "" when it holds none.
func (v *Voucher) HolderOf(phone string) string {
	if v.Holders == nil {
		return ""
	}
	return v.Holders[phone]
}

// SettledBy reports whether holder's reservations have been confirmed.
func (v *Voucher) SettledBy(holder string) bool {
	for _, h := range v.Settled {
		if h == holder {
			return true
		}
	}
	return false
}

// Reservation is the outcome of a reserve call: the phones that now hold a slot.
// An empty reservation means the batch proceeds without the voucher.
type Reservation struct {
	Code   string   `json:"code,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

func (r Reservation) Empty() bool { return len(r.Phones) == 0 }

type CreateVoucherRequest struct {
	Code        string `json:"code" validate:"required,alphanum,max=32"`
	Description string `json:"description" validate:"max=200"`
	EventID     string `json:"event_id"`
	MaxUsage    int    `json:"max_usage" validate:"required,min=1"`
}
