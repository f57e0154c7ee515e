package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
)

// AgentEvent is an append-only event log entry. ProcessedBy only ever grows;
// the "all" sentinel marks the event as fully processed.
type AgentEvent struct {
	ID          string              `json:"id"`
	UserID      string              `json:"userId"`
	EventType   constants.EventType `json:"eventType"`
	EventSource string              `json:"eventSource"`
	Payload     json.RawMessage     `json:"payload"`
	ProcessedBy []string            `json:"processedBy"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// IsProcessedBy reports whether subscriber has acknowledged the event.
func (e AgentEvent) IsProcessedBy(subscriber string) bool {
	for _, s := range e.ProcessedBy {
		if s == subscriber {
			return true
		}
	}
	return false
}

// IsComplete reports whether the "all" sentinel is present.
func (e AgentEvent) IsComplete() bool {
	return e.IsProcessedBy(constants.ProcessedAllSentinel)
}

// DecodePayload unmarshals the event payload into v.
func (e AgentEvent) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has an empty payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.EventType, err)
	}
	return nil
}

// CalendarSyncedPayload is carried by calendar.event.synced.
type CalendarSyncedPayload struct {
	CalendarEventID string `json:"calendarEventId"`
}

// ConflictDetectedPayload is carried by schedule.conflict.detected.
type ConflictDetectedPayload struct {
	AlertID         string    `json:"alertId"`
	CalendarEventID string    `json:"calendarEventId"`
	BlockIDs        []string  `json:"blockIds"`
	Severity        int       `json:"severity"`
	AlertType       AlertType `json:"alertType"`
	Date            string    `json:"date"`
	Timezone        string    `json:"timezone"`
}

// ConflictResolvedPayload is carried by schedule.conflict.resolved.
type ConflictResolvedPayload struct {
	AlertID        string `json:"alertId"`
	StrategyID     string `json:"strategyId"`
	OperationCount int    `json:"operationCount"`
	Applied        int    `json:"applied"`
	Skipped        int    `json:"skipped"`
}

// Decision outcomes carried by decision.recorded.
const (
	OutcomeSuggestion   = "suggestion"
	OutcomeManualReview = "manual_review"
)

// DecisionRecordedPayload is carried by decision.recorded.
type DecisionRecordedPayload struct {
	AlertID     string   `json:"alertId"`
	Outcome     string   `json:"outcome"`
	Reason      string   `json:"reason,omitempty"`
	StrategyIDs []string `json:"strategyIds,omitempty"`
}
