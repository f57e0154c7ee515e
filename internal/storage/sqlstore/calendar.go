package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
)

const calendarColumns = `id, user_id, title, start_at, end_at, location, all_day, external_id, deleted_at`

// SaveCalendarEvent inserts or replaces an event by id.
func (s *Store) SaveCalendarEvent(ctx context.Context, event models.CalendarEvent) error {
	if event.ID == "" || event.UserID == "" {
		return fmt.Errorf("calendar event id and user id are required")
	}
	startAt, startUnix := nullableTime(event.StartAt)
	endAt, endUnix := nullableTime(event.EndAt)
	deletedAt, _ := nullableTime(event.DeletedAt)

	_, err := s.exec(ctx, `
		INSERT INTO calendar_events (
			id, user_id, title, start_at, end_at, start_unix, end_unix,
			location, all_day, external_id, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			start_unix = excluded.start_unix,
			end_unix = excluded.end_unix,
			location = excluded.location,
			all_day = excluded.all_day,
			external_id = excluded.external_id,
			deleted_at = excluded.deleted_at
	`,
		event.ID, event.UserID, event.Title, startAt, endAt, startUnix, endUnix,
		event.Location, event.AllDay, event.ExternalID, deletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save calendar event: %w", err)
	}
	return nil
}

func (s *Store) GetCalendarEvent(ctx context.Context, userID, id string) (models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := s.read(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.rebind(`
			SELECT `+calendarColumns+` FROM calendar_events
			WHERE user_id = ? AND id = ?
		`), userID, id)
		var err error
		event, err = scanCalendarEvent(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.CalendarEvent{}, fmt.Errorf("calendar event %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("failed to get calendar event: %w", err)
	}
	return event, nil
}

func (s *Store) ListCalendarEvents(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := s.read(ctx, func(ctx context.Context) error {
		events = nil
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT `+calendarColumns+` FROM calendar_events
			WHERE user_id = ? AND deleted_at IS NULL
				AND start_unix IS NOT NULL AND end_unix IS NOT NULL
				AND start_unix < ? AND end_unix > ?
			ORDER BY start_unix ASC, id ASC
		`), userID, to.Unix(), from.Unix())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanCalendarEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCalendarEvent(row scanner) (models.CalendarEvent, error) {
	var event models.CalendarEvent
	var startAt, endAt, deletedAt sql.NullString
	if err := row.Scan(
		&event.ID, &event.UserID, &event.Title, &startAt, &endAt,
		&event.Location, &event.AllDay, &event.ExternalID, &deletedAt,
	); err != nil {
		return models.CalendarEvent{}, err
	}

	var err error
	if event.StartAt, err = parseNullableTime("start_at", startAt); err != nil {
		return models.CalendarEvent{}, err
	}
	if event.EndAt, err = parseNullableTime("end_at", endAt); err != nil {
		return models.CalendarEvent{}, err
	}
	if event.DeletedAt, err = parseNullableTime("deleted_at", deletedAt); err != nil {
		return models.CalendarEvent{}, err
	}
	return event, nil
}
