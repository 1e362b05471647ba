package domain

import (
	"fmt"
	"time"
)

// AttemptState is the commit state machine:
// PENDING -> ALLOCATED -> COMMITTED, or PENDING|ALLOCATED -> ROLLED_BACK.
type AttemptState string

const (
	AttemptPending    AttemptState = "PENDING"
	AttemptAllocated  AttemptState = "ALLOCATED"
	AttemptCommitted  AttemptState = "COMMITTED"
	AttemptRolledBack AttemptState = "ROLLED_BACK"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptPending:   {AttemptAllocated, AttemptRolledBack},
	AttemptAllocated: {AttemptCommitted, AttemptRolledBack},
}

// CanTransition reports whether from -> to is a legal commit transition.
func CanTransition(from, to AttemptState) bool {
	for _, s := range attemptTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	return s == AttemptCommitted || s == AttemptRolledBack
}

// CommitAttempt records one try at turning a validated batch into allocations, so that an
// interrupted attempt can be rolled forward or compensated later.
type CommitAttempt struct {
	AttemptID      string       `json:"id" dynamodbav:"attempt_id"`
	LinkToken      string       `json:"link_token" dynamodbav:"link_token"`
	EventID        string       `json:"event_id" dynamodbav:"event_id"`
	Phones         []string     `json:"phones" dynamodbav:"phones"`
	VoucherCode    string       `json:"voucher_code,omitempty" dynamodbav:"voucher_code,omitempty"`
	ReservedPhones []string     `json:"reserved_phones,omitempty" dynamodbav:"reserved_phones"`
	CreatedPhones  []string     `json:"created_phones,omitempty" dynamodbav:"created_phones"`
	State          AttemptState `json:"state" dynamodbav:"state"`
	Failures       []string     `json:"failures,omitempty" dynamodbav:"failures"`
	CreatedAt      time.Time    `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time    `json:"updated" dynamodbav:"updated_at"`
}

// AttemptPatch holds the fields written together with a state transition.
type AttemptPatch struct {
	ReservedPhones []string
	CreatedPhones  []string
	Failures       []string
}

// ErrIllegalTransition is returned for transitions outside the state machine.
func ErrIllegalTransition(from, to AttemptState) error {
	return fmt.Errorf("illegal attempt transition %s -> %s: %w", from, to, ErrConflict)
}

// RecoveryReport summarizes one pass over stale commit attempts.
type RecoveryReport struct {
	Scanned    int `json:"scanned"`
	RolledBack int `json:"rolled_back"`
	RolledFwd  int `json:"rolled_forward"`
	Failed     int `json:"failed"`
}
