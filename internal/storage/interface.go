package storage

import (
	"context"
	"time"

	"github.com/julianstephens/daylitd/internal/models"
)

// Provider is the relational store the pipeline reads and writes. Every
// method except the event-bus sweep queries is scoped to a user.
type Provider interface {
	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Preferences
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	SavePreferences(ctx context.Context, prefs models.UserPreferences) error

	// Calendar events
	SaveCalendarEvent(ctx context.Context, event models.CalendarEvent) error
	GetCalendarEvent(ctx context.Context, userID, id string) (models.CalendarEvent, error)
	// ListCalendarEvents returns live, timed events intersecting [from, to).
	ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error)

	// Schedule blocks
	AddBlock(ctx context.Context, block models.ScheduleBlock) error
	GetBlock(ctx context.Context, userID, id string) (models.ScheduleBlock, error)
	// ListBlocks returns blocks intersecting [from, to) ordered by start.
	ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.ScheduleBlock, error)
	UpdateBlock(ctx context.Context, block models.ScheduleBlock) error
	DeleteBlock(ctx context.Context, userID, id string) error

	// Alerts
	AddAlert(ctx context.Context, alert models.ScheduleAlert) error
	GetAlert(ctx context.Context, userID, id string) (models.ScheduleAlert, error)
	// ListAlerts returns the user's alerts, newest first. An empty status lists all.
	ListAlerts(ctx context.Context, userID string, status models.AlertStatus) ([]models.ScheduleAlert, error)
	UpdateAlertStatus(ctx context.Context, userID, id string, status models.AlertStatus) error
	// RecordConflict writes the alert and its detection event atomically.
	RecordConflict(ctx context.Context, alert models.ScheduleAlert, event models.AgentEvent) error

	// Agent events
	AddEvent(ctx context.Context, event models.AgentEvent) error
	GetEvent(ctx context.Context, id string) (models.AgentEvent, error)
	// ListUnprocessedEvents returns up to limit events lacking the "all"
	// acknowledgement across all users: never-attempted events first, then
	// least recently attempted, oldest first within each.
	ListUnprocessedEvents(ctx context.Context, limit int) ([]models.AgentEvent, error)
	// MarkProcessed adds subscriber to the event's processed set if absent.
	// It reports whether this call added it.
	MarkProcessed(ctx context.Context, eventID, subscriber string) (bool, error)
	// MarkAttempted records a failed delivery at at, moving the event behind
	// fresher pending events.
	MarkAttempted(ctx context.Context, eventID string, at time.Time) error

	// Resolution attempts
	AddResolutionAttempt(ctx context.Context, attempt models.ResolutionAttempt) error
	ListResolutionAttempts(ctx context.Context, userID, alertID string) ([]models.ResolutionAttempt, error)

	// Utils
	GetConfigPath() string
}

// Migrator is implemented by stores with a versioned schema.
type Migrator interface {
	Migrate(ctx context.Context, logFn func(string)) (int, error)
}
