package constants

// EventType is one of the closed set of agent event kinds.
type EventType string

const (
	EventCalendarSynced   EventType = "calendar.event.synced"
	EventCalendarDeleted  EventType = "calendar.event.deleted"
	EventConflictDetected EventType = "schedule.conflict.detected"
	EventConflictResolved EventType = "schedule.conflict.resolved"
	EventBlockCreated     EventType = "schedule.block.created"
	EventBlockModified    EventType = "schedule.block.modified"
	EventBundleSuggested  EventType = "errand.bundle.suggested"
	EventBundleAccepted   EventType = "errand.bundle.accepted"
	EventComposeCompleted EventType = "compose.day.completed"
	EventPatternUpdated   EventType = "user.pattern.updated"
	EventDecisionRecorded EventType = "decision.recorded"
)

// EventTypes lists every known event kind in declaration order.
var EventTypes = []EventType{
	EventCalendarSynced,
	EventCalendarDeleted,
	EventConflictDetected,
	EventConflictResolved,
	EventBlockCreated,
	EventBlockModified,
	EventBundleSuggested,
	EventBundleAccepted,
	EventComposeCompleted,
	EventPatternUpdated,
	EventDecisionRecorded,
}

// Valid reports whether t is a known event kind.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Subscriber names
const (
	SubscriberGuardian     = "guardian"
	SubscriberOrchestrator = "orchestrator"
)

// Event sources
const (
	SourceGuardian     = "guardian"
	SourceOrchestrator = "orchestrator"
	SourceCalendarSync = "calendar-sync"
	SourceCLI          = "daylitd-cli"
)
