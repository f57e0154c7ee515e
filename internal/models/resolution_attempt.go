package models

import "time"

type AttemptState string

const (
	AttemptApplied          AttemptState = "applied"
	AttemptCompensated      AttemptState = "compensated"
	AttemptPartiallyApplied AttemptState = "partially_applied"
)

// ResolutionAttempt is the saga record of one strategy application.
type ResolutionAttempt struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	AlertID       string       `json:"alertId"`
	StrategyID    string       `json:"strategyId"`
	State         AttemptState `json:"state"`
	Applied       int          `json:"applied"`
	Skipped       int          `json:"skipped"`
	FailureReason string       `json:"failureReason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
