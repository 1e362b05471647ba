package domain

import (
	"fmt"
	"strings"
)

// RejectionCode is the machine-readable reason an attendee or bulk row was refused.
type RejectionCode string

const (
	RejectBatchSize        RejectionCode = "BATCH_SIZE_MISMATCH"
	RejectInvalidPhone     RejectionCode = "INVALID_PHONE"
	RejectMissingName      RejectionCode = "MISSING_NAME"
	RejectDuplicate        RejectionCode = "DUPLICATE_IN_BATCH"
	RejectDuplicateInFile  RejectionCode = "DUPLICATE_IN_FILE"
	RejectAlreadyAllocated RejectionCode = "ALREADY_ALLOCATED"
	RejectAllocationRace   RejectionCode = "ALLOCATION_RACE"
	RejectIdentityFailed   RejectionCode = "IDENTITY_FAILED"
	RejectInternal         RejectionCode = "INTERNAL"
)

// Rejection describes one refused attendee (Index, zero-based) or bulk row (Row, one-based
// file line). Detail carries identifiers needed for manual resolution.
type Rejection struct {
	Index   int               `json:"index"`
	Row     int               `json:"row,omitempty"`
	Phone   string            `json:"phone"`
	Name    string            `json:"name,omitempty"`
	Code    RejectionCode     `json:"reason_code"`
	Message string            `json:"reason"`
	Detail  map[string]string `json:"detail,omitempty"`
}

func joinRejections(rs []Rejection) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Phone, r.Code))
	}
	return strings.Join(parts, ", ")
}

// BatchRejectedError is returned when pre-validation refuses an attendee batch.
type BatchRejectedError struct {
	Rejections []Rejection
}

func (e *BatchRejectedError) Error() string {
	return "attendee batch rejected: " + joinRejections(e.Rejections)
}

func (e *BatchRejectedError) Unwrap() error {
	for _, r := range e.Rejections {
		if r.Code == RejectAlreadyAllocated {
			return ErrConflict
		}
	}
	return ErrBadRequest
}

// CommitFailedError is returned when some allocations of a batch could not be created and the
// whole attempt was compensated. The link stays redeemable.
type CommitFailedError struct {
	AttemptID string
	Failures  []Rejection
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("commit %s rolled back: %s", e.AttemptID, joinRejections(e.Failures))
}

func (e *CommitFailedError) Unwrap() error { return ErrConflict }

// LinkConflictError carries the existing live link so the caller can resend instead of
// issuing a duplicate. Link is nil when the conflict is an existing allocation.
type LinkConflictError struct {
	Link   *RedemptionLink
	Reason string
}

func (e *LinkConflictError) Error() string { return e.Reason }

func (e *LinkConflictError) Unwrap() error { return ErrConflict }
