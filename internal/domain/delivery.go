package domain

import "time"

type TaskKind string

const (
	TaskLink    TaskKind = "link"
	TaskTicket  TaskKind = "ticket"
	TaskVoucher TaskKind = "voucher"
)

// DeliveryTask is one asynchronous message to a phone. Payload is what the scannable code
// encodes (a redemption URL, an allocation id, a voucher claim).
type DeliveryTask struct {
	TaskID   string   `json:"id"`
	Kind     TaskKind `json:"kind"`
	Phone    string   `json:"phone"`
	Name     string   `json:"name"`
	Text     string   `json:"text"`
	Payload  string   `json:"payload"`
	Attempts int      `json:"attempts"`
}

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
	DeliveryDead   DeliveryStatus = "DEAD"
)

// DeliveryRecord is the operational log entry for one task.
type DeliveryRecord struct {
	DeliveryID string         `json:"id" dynamodbav:"delivery_id"`
	Kind       TaskKind       `json:"kind" dynamodbav:"kind"`
	Phone      string         `json:"phone" dynamodbav:"phone"`
	Status     DeliveryStatus `json:"status" dynamodbav:"status"`
	Attempts   int            `json:"attempts" dynamodbav:"attempts"`
	ImageURL   string         `json:"image_url,omitempty" dynamodbav:"image_url,omitempty"`
	LastError  string         `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time      `json:"updated" dynamodbav:"updated_at"`
}

// OutboundMessage is what a notifier sends to one phone.
type OutboundMessage struct {
	Phone    string
	Name     string
	Text     string
	ImageURL string
}
