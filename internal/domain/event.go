package domain

import "time"

type Event struct {
	EventID   string    `json:"id" dynamodbav:"event_id"`
	Title     string    `json:"title" dynamodbav:"title"`
	Venue     string    `json:"venue" dynamodbav:"venue"`
	StartsAt  time.Time `json:"starts_at" dynamodbav:"starts_at"`
	Deleted   bool      `json:"-" dynamodbav:"deleted"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

func (e *Event) Visible() bool { return e != nil && !e.Deleted }

type CreateEventRequest struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Venue    string    `json:"venue" validate:"max=200"`
	StartsAt time.Time `json:"starts_at"`
}
