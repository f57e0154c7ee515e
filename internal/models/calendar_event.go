package models

import "time"

// CalendarEvent is an externally sourced interval. StartAt and EndAt are
// pointers because upstream calendar data routinely arrives without them.
type CalendarEvent struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	StartAt    *time.Time `json:"startAt,omitempty"`
	EndAt      *time.Time `json:"endAt,omitempty"`
	Location   string     `json:"location,omitempty"`
	AllDay     bool       `json:"allDay"`
	ExternalID string     `json:"externalId,omitempty"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// HasTimes reports whether both timestamps are present.
func (e CalendarEvent) HasTimes() bool {
	return e.StartAt != nil && e.EndAt != nil && !e.StartAt.IsZero() && !e.EndAt.IsZero()
}
