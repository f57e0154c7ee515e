package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertType string

const (
	AlertConflict AlertType = "conflict"
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertResolved  AlertStatus = "resolved"
	AlertDismissed AlertStatus = "dismissed"
	AlertAccepted  AlertStatus = "accepted"
)

// ParseAlertType normalizes s into a known alert type. The second return value
// is false when s was not recognized and the warning fallback was used.
func ParseAlertType(s string) (AlertType, bool) {
	switch AlertType(strings.ToLower(strings.TrimSpace(s))) {
	case AlertConflict:
		return AlertConflict, true
	case AlertWarning:
		return AlertWarning, true
	case AlertCritical:
		return AlertCritical, true
	}
	return AlertWarning, false
}

// ScheduleAlert records a detected conflict. RelatedBlockIDs may reference
// blocks that have since been deleted.
type ScheduleAlert struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Type            AlertType   `json:"type"`
	Message         string      `json:"message"`
	Severity        int         `json:"severity"`
	RelatedBlockIDs []string    `json:"relatedBlockIds"`
	CalendarEventID string      `json:"calendarEventId,omitempty"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func (a *ScheduleAlert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("alert id cannot be empty")
	}
	if a.UserID == "" {
		return fmt.Errorf("alert user id cannot be empty")
	}
	if _, ok := ParseAlertType(string(a.Type)); !ok {
		return fmt.Errorf("invalid alert type %q", a.Type)
	}
	switch a.Status {
	case AlertPending, AlertResolved, AlertDismissed, AlertAccepted:
	default:
		return fmt.Errorf("invalid alert status %q", a.Status)
	}
	if a.Message == "" {
		return fmt.Errorf("alert message cannot be empty")
	}
	return nil
}
