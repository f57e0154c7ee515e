// Package guardian detects overlaps between a synced calendar event and the
// user's planned blocks, scores them and records an alert.
package guardian

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/interval"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/reasoning"
	"github.com/julianstephens/daylitd/internal/utils"
)

// Status is the outcome of one Check.
type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusNoConflict Status = "no_conflict"
	StatusConflict   Status = "conflict"
)

// Skip reasons
const (
	SkipMissingTimes = "missing_times"
	SkipAllDay       = "all_day"
	SkipDeleted      = "deleted"
)

// Store is the slice of storage.Provider the guardian needs.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	GetCalendarEvent(ctx context.Context, userID, id string) (models.CalendarEvent, error)
	ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.ScheduleBlock, error)
	RecordConflict(ctx context.Context, alert models.ScheduleAlert, event models.AgentEvent) error
}

// EventFactory builds unsaved agent events. *eventbus.Bus implements it.
type EventFactory interface {
	NewEvent(userID string, eventType constants.EventType, source string, payload interface{}) (models.AgentEvent, error)
}

type CheckRequest struct {
	UserID          string `json:"userId"`
	CalendarEventID string `json:"calendarEventId"`
}

type CheckResult struct {
	Status              Status           `json:"status"`
	Reason              string           `json:"reason,omitempty"`
	AlertID             string           `json:"alertId,omitempty"`
	EventID             string           `json:"eventId,omitempty"`
	OverlappingBlockIDs []string         `json:"overlappingBlockIds"`
	Severity            int              `json:"severity,omitempty"`
	AlertType           models.AlertType `json:"alertType,omitempty"`
}

// Guardian is safe for concurrent use.
type Guardian struct {
	store   Store
	decider reasoning.Decider
	events  EventFactory
	now     func() time.Time
	newID   func() string
}

func New(store Store, decider reasoning.Decider, events EventFactory) *Guardian {
	return &Guardian{
		store:   store,
		decider: decider,
		events:  events,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Check runs one detection pass. A calendar record without usable times is
// skipped, not failed. On conflict the alert and its detection event are
// written together or not at all.
func (g *Guardian) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	log := logger.For("guardian")

	if req.UserID == "" {
		return nil, errors.MissingField("userId")
	}
	if req.CalendarEventID == "" {
		return nil, errors.MissingField("calendarEventId")
	}

	event, err := g.store.GetCalendarEvent(ctx, req.UserID, req.CalendarEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar event: %w", err)
	}

	if reason := skipReason(event); reason != "" {
		log.Warn("Skipping calendar event", "user_id", req.UserID, "calendar_event_id", event.ID, "reason", reason)
		return &CheckResult{Status: StatusSkipped, Reason: reason, OverlappingBlockIDs: []string{}}, nil
	}
	start, end := *event.StartAt, *event.EndAt

	blocks, err := g.store.ListBlocks(ctx, req.UserID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocks: %w", err)
	}

	overlapping := make([]models.ScheduleBlock, 0, len(blocks))
	for _, b := range blocks {
		if interval.HasOverlap(start.Unix(), end.Unix(), b.StartTime.Unix(), b.EndTime.Unix()) {
			overlapping = append(overlapping, b)
		}
	}
	ids := blockIDs(overlapping)

	if len(overlapping) == 0 {
		log.Debug("No conflict", "user_id", req.UserID, "calendar_event_id", event.ID)
		return &CheckResult{Status: StatusNoConflict, OverlappingBlockIDs: ids}, nil
	}

	prefs, err := g.store.GetPreferences(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	loc := utils.ResolveLocation(prefs.Timezone)

	var raw assessment
	if err := g.decider.Decide(ctx, buildPrompt(event, overlapping, loc), &raw); err != nil {
		return nil, err
	}
	scored := calibrate(raw, event, overlapping)

	now := g.now().UTC()
	alert := models.ScheduleAlert{
		ID:              g.newID(),
		UserID:          req.UserID,
		Type:            scored.Type,
		Message:         scored.Message,
		Severity:        scored.Severity,
		RelatedBlockIDs: ids,
		CalendarEventID: event.ID,
		Status:          models.AlertPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	detected, err := g.events.NewEvent(req.UserID, constants.EventConflictDetected, constants.SourceGuardian,
		models.ConflictDetectedPayload{
			AlertID:         alert.ID,
			CalendarEventID: event.ID,
			BlockIDs:        ids,
			Severity:        alert.Severity,
			AlertType:       alert.Type,
			Date:            utils.LocalDate(start, loc),
			Timezone:        loc.String(),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to build conflict event: %w", err)
	}

	if err := g.store.RecordConflict(ctx, alert, detected); err != nil {
		return nil, fmt.Errorf("failed to record conflict: %w", err)
	}

	log.Info("Conflict recorded",
		"user_id", req.UserID, "calendar_event_id", event.ID, "alert_id", alert.ID,
		"severity", alert.Severity, "type", alert.Type, "blocks", len(ids))
	return &CheckResult{
		Status:              StatusConflict,
		AlertID:             alert.ID,
		EventID:             detected.ID,
		OverlappingBlockIDs: ids,
		Severity:            alert.Severity,
		AlertType:           alert.Type,
	}, nil
}

// HandleEvent consumes calendar.event.synced. Bad input acknowledges the
// event so it is not redelivered forever; upstream failures leave it pending.
func (g *Guardian) HandleEvent(ctx context.Context, event models.AgentEvent) error {
	log := logger.For("guardian")

	var payload models.CalendarSyncedPayload
	if err := event.DecodePayload(&payload); err != nil {
		log.Warn("Dropping undecodable sync event", "event_id", event.ID, "error", err)
		return nil
	}

	_, err := g.Check(ctx, CheckRequest{UserID: event.UserID, CalendarEventID: payload.CalendarEventID})
	if err == nil {
		return nil
	}

	var val *errors.ValidationError
	if stderrors.As(err, &val) || stderrors.Is(err, errors.ErrNotFound) {
		log.Warn("Dropping sync event", "event_id", event.ID, "error", err)
		return nil
	}
	return err
}

func skipReason(event models.CalendarEvent) string {
	switch {
	case event.DeletedAt != nil:
		return SkipDeleted
	case !event.HasTimes():
		return SkipMissingTimes
	case event.AllDay:
		return SkipAllDay
	}
	return ""
}

func blockIDs(blocks []models.ScheduleBlock) []string {
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	return ids
}

// assessment is the reasoning service's answer. Severity is a float so a
// fractional score still decodes.
type assessment struct {
	Severity float64 `json:"severity"`
	Type     string  `json:"type"`
	Message  string  `json:"message"`
}

type score struct {
	Severity int
	Type     models.AlertType
	Message  string
}

// calibrate bounds the model's answer by deterministic policy: the type is
// coerced into the known set, severity is clamped to [0, 10], displacing deep
// work floors it and displacing only breaks or buffers caps it.
func calibrate(raw assessment, event models.CalendarEvent, blocks []models.ScheduleBlock) score {
	log := logger.For("guardian")

	alertType, ok := models.ParseAlertType(raw.Type)
	if !ok {
		logger.Decision(log, "Coerced alert type", "returned", raw.Type, "used", alertType)
	}

	severity := constants.SeverityDefaultAdvisory
	if !math.IsNaN(raw.Severity) {
		severity = int(math.Round(raw.Severity))
	}
	clamped := min(max(severity, constants.SeverityMin), constants.SeverityMax)

	deepWork, allLow := false, true
	for _, b := range blocks {
		if b.BlockType == models.BlockDeepWork {
			deepWork = true
		}
		if !b.BlockType.IsLowPriority() {
			allLow = false
		}
	}
	switch {
	case deepWork:
		clamped = max(clamped, constants.SeverityDeepWorkFloor)
	case allLow:
		clamped = min(clamped, constants.SeverityLowPriorityCap)
	}
	if clamped != severity {
		logger.Decision(log, "Adjusted severity", "returned", raw.Severity, "used", clamped)
	}

	message := raw.Message
	if message == "" {
		message = fmt.Sprintf("%q overlaps %d planned block(s)", eventTitle(event), len(blocks))
		logger.Decision(log, "Replaced empty alert message", "message", message)
	}

	return score{Severity: clamped, Type: alertType, Message: message}
}

func eventTitle(event models.CalendarEvent) string {
	if event.Title == "" {
		return "Calendar event"
	}
	return event.Title
}
