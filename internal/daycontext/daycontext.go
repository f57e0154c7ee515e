// Package daycontext assembles a user's day: preferences, calendar events,
// planned blocks and the free slots between them, all in the user's zone.
package daycontext

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/interval"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/utils"
)

// Store is the subset of storage.Provider the builder reads.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error)
	ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.ScheduleBlock, error)
}

// DayContext is one user's local day. Minutes are counted from local midnight.
type DayContext struct {
	UserID      string                 `json:"userId"`
	Date        string                 `json:"date"`
	Timezone    string                 `json:"timezone"`
	Preferences models.UserPreferences `json:"userPrefs"`
	Events      []models.CalendarEvent `json:"events"`
	Blocks      []models.ScheduleBlock `json:"blocks"`
	WorkStart   int                    `json:"workStart"`
	WorkEnd     int                    `json:"workEnd"`
	Busy        []interval.Interval    `json:"busy"`
	FreeSlots   []interval.FreeSlot    `json:"freeSlots"`

	location *time.Location
	midnight time.Time
}

// Location returns the resolved zone of the day.
func (d *DayContext) Location() *time.Location {
	return d.location
}

// MinuteOf returns t as minutes from local midnight. Values outside
// [0, 1440) belong to neighboring days.
func (d *DayContext) MinuteOf(t time.Time) int {
	return int(t.Sub(d.midnight) / time.Minute)
}

// TimeAt converts a minute of the day back into an instant.
func (d *DayContext) TimeAt(minute int) time.Time {
	return d.midnight.Add(time.Duration(minute) * time.Minute)
}

// IntervalOf maps a start/end pair onto the day's minute axis.
func (d *DayContext) IntervalOf(start, end time.Time) interval.Interval {
	return interval.Interval{Start: d.MinuteOf(start), End: d.MinuteOf(end)}
}

// Block returns the block with id, if present.
func (d *DayContext) Block(id string) (models.ScheduleBlock, bool) {
	for _, b := range d.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return models.ScheduleBlock{}, false
}

// Builder builds DayContexts from the store.
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Build loads the user's day. An empty timezone falls back to the user's
// preference; an unknown one falls back to the default zone rather than
// failing. Only an unparseable date is an error.
func (b *Builder) Build(ctx context.Context, userID, date, timezone string) (*DayContext, error) {
	log := logger.For("daycontext")

	if userID == "" {
		return nil, errors.MissingField("userId")
	}

	prefs, err := b.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	models.ApplyDefaultPreferences(&prefs)

	if timezone == "" {
		timezone = prefs.Timezone
	}
	loc := utils.ResolveLocation(timezone)

	midnight, err := utils.ParseDateInLocation(date, loc)
	if err != nil {
		return nil, errors.Validation(errors.CodeInvalidDate, "date", "expected YYYY-MM-DD, got %q", date)
	}

	// Query wider than the day, then keep what falls on the local date.
	from := midnight.Add(-constants.ContextQueryPadding)
	to := midnight.AddDate(0, 0, 1).Add(constants.ContextQueryPadding)

	rawEvents, err := b.store.ListCalendarEvents(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar events: %w", err)
	}
	rawBlocks, err := b.store.ListBlocks(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocks: %w", err)
	}

	day := &DayContext{
		UserID:      userID,
		Date:        date,
		Timezone:    loc.String(),
		Preferences: prefs,
		Events:      []models.CalendarEvent{},
		Blocks:      []models.ScheduleBlock{},
		location:    loc,
		midnight:    midnight,
	}
	day.WorkStart, day.WorkEnd = workingHours(prefs, log)

	var busy []interval.Interval
	for _, ev := range rawEvents {
		if !ev.HasTimes() || utils.LocalDate(*ev.StartAt, loc) != date {
			continue
		}
		day.Events = append(day.Events, ev)
		if !ev.AllDay {
			busy = append(busy, day.IntervalOf(*ev.StartAt, *ev.EndAt))
		}
	}
	for _, bl := range rawBlocks {
		if utils.LocalDate(bl.StartTime, loc) != date {
			continue
		}
		day.Blocks = append(day.Blocks, bl)
		busy = append(busy, day.IntervalOf(bl.StartTime, bl.EndTime))
	}

	day.Busy = interval.MergeIntervals(busy)
	day.FreeSlots = interval.FreeSlots(0, constants.DayWindowEndMinute, busy)

	log.Debug("Built day context",
		"user_id", userID, "date", date, "timezone", day.Timezone,
		"events", len(day.Events), "blocks", len(day.Blocks), "free_slots", len(day.FreeSlots))
	return day, nil
}

func workingHours(prefs models.UserPreferences, l *log.Logger) (int, int) {
	start, err := interval.TimeToMinutes(prefs.WorkStart)
	if err != nil {
		l.Warn("Invalid work start, using default", "value", prefs.WorkStart, "error", err)
		start, _ = interval.TimeToMinutes(constants.DefaultWorkStart)
	}
	end, err := interval.TimeToMinutes(prefs.WorkEnd)
	if err != nil {
		l.Warn("Invalid work end, using default", "value", prefs.WorkEnd, "error", err)
		end, _ = interval.TimeToMinutes(constants.DefaultWorkEnd)
	}
	return start, end
}
