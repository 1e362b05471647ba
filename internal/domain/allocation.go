package domain

import "time"

type AllocationSource string

const (
	SourceLink        AllocationSource = "LINK"
	SourceAdminDirect AllocationSource = "ADMIN_DIRECT"
)

// TicketAllocation binds one phone to one ticket at one event. At most one exists
// per (EventID, Phone) across every allocation path.
type TicketAllocation struct {
	EventID      string           `json:"event_id" dynamodbav:"event_id"`
	Phone        string           `json:"phone" dynamodbav:"phone"`
	AllocationID string           `json:"id" dynamodbav:"allocation_id"`
	IdentityID   string           `json:"identity_id" dynamodbav:"identity_id"`
	Name         string           `json:"name" dynamodbav:"name"`
	LinkToken    string           `json:"link_token" dynamodbav:"link_token"`
	Source       AllocationSource `json:"source" dynamodbav:"source"`
	AttemptID    string           `json:"-" dynamodbav:"attempt_id"`
	Price        Price            `json:"price" dynamodbav:"price"`
	CreatedAt    time.Time        `json:"created" dynamodbav:"created_at"`
}
