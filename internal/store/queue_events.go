package store

import (
	"time"

	"hms/internal/models"
)

const (
	EventTicketIssued   = "ticket_issued"
	EventTurnAdvanced   = "turn_advanced"
	EventTicketFinished = "ticket_finished"
)

// QueueEvent is an outbox row written in the same transaction as the change it describes.
type QueueEvent struct {
	EventID    string          `json:"eventId"`
	Key        models.QueueKey `json:"key"`
	Type       string          `json:"type"`
	TurnNumber int             `json:"turnNumber"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// EventOffset orders outbox rows by (created_at, event_id).
type EventOffset struct {
	CreatedAt time.Time
	EventID   string
}

func (o EventOffset) Advance(event QueueEvent) EventOffset {
	return EventOffset{CreatedAt: event.CreatedAt, EventID: event.EventID}
}

// Before reports whether event sorts after o.
func (o EventOffset) Before(event QueueEvent) bool {
	if !event.CreatedAt.Equal(o.CreatedAt) {
		return event.CreatedAt.After(o.CreatedAt)
	}
	return event.EventID > o.EventID
}
