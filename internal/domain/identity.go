package domain

import "time"

// Identity is the per-phone person record resolved (or created) for every attendee.
type Identity struct {
	Phone      string    `json:"phone" dynamodbav:"phone"`
	IdentityID string    `json:"id" dynamodbav:"identity_id"`
	Name       string    `json:"name" dynamodbav:"name"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
}
