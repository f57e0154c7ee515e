package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	apperrors "github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
)

const eventColumns = `id, user_id, event_type, event_source, payload, created_at`

func (s *Store) AddEvent(ctx context.Context, event models.AgentEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertEvent(ctx, tx, event)
	})
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, event models.AgentEvent) error {
	if event.ID == "" || event.UserID == "" {
		return fmt.Errorf("event id and user id are required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	payload := string(event.Payload)
	if payload == "" {
		payload = "{}"
	}

	_, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO agent_events (id, user_id, event_type, event_source, payload, created_at, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		event.ID, event.UserID, string(event.EventType), event.EventSource, payload,
		formatTime(event.CreatedAt), event.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (models.AgentEvent, error) {
	var event models.AgentEvent
	err := s.read(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+eventColumns+` FROM agent_events WHERE id = ?`), id)
		var err error
		if event, err = scanEvent(row); err != nil {
			return err
		}
		event.ProcessedBy, err = s.acks(ctx, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.AgentEvent{}, fmt.Errorf("event %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.AgentEvent{}, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListUnprocessedEvents is the sweep query. It crosses users.
func (s *Store) ListUnprocessedEvents(ctx context.Context, limit int) ([]models.AgentEvent, error) {
	var events []models.AgentEvent
	err := s.read(ctx, func(ctx context.Context) error {
		events = nil
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT `+eventColumns+` FROM agent_events e
			WHERE NOT EXISTS (
				SELECT 1 FROM agent_event_acks a
				WHERE a.event_id = e.id AND a.subscriber = ?
			)
			ORDER BY e.last_attempt_ns ASC, e.created_ns ASC, e.id ASC
			LIMIT ?
		`), constants.ProcessedAllSentinel, limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return err
			}
			events = append(events, event)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for i := range events {
			if events[i].ProcessedBy, err = s.acks(ctx, events[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	return events, nil
}

// MarkProcessed is an append-if-absent on the ack table, so concurrent
// sweeps cannot lose each other's acknowledgements.
func (s *Store) MarkProcessed(ctx context.Context, eventID, subscriber string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.exec(ctx, `
		INSERT INTO agent_event_acks (event_id, subscriber, acked_at, acked_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, subscriber) DO NOTHING
	`, eventID, subscriber, formatTime(now), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s processed by %s: %w", eventID, subscriber, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n == 1, nil
}

func (s *Store) MarkAttempted(ctx context.Context, eventID string, at time.Time) error {
	result, err := s.exec(ctx, `UPDATE agent_events SET last_attempt_ns = ? WHERE id = ?`, at.UnixNano(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event %s attempted: %w", eventID, err)
	}
	return requireRow(result, "event", eventID)
}

func (s *Store) acks(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT subscriber FROM agent_event_acks
		WHERE event_id = ?
		ORDER BY acked_ns ASC, subscriber ASC
	`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	processedBy := []string{}
	for rows.Next() {
		var subscriber string
		if err := rows.Scan(&subscriber); err != nil {
			return nil, err
		}
		processedBy = append(processedBy, subscriber)
	}
	return processedBy, rows.Err()
}

func scanEvent(row scanner) (models.AgentEvent, error) {
	var event models.AgentEvent
	var eventType, payload, createdStr string
	if err := row.Scan(&event.ID, &event.UserID, &eventType, &event.EventSource, &payload, &createdStr); err != nil {
		return models.AgentEvent{}, err
	}
	event.EventType = constants.EventType(eventType)
	event.Payload = []byte(payload)

	var err error
	if event.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
		return models.AgentEvent{}, err
	}
	return event, nil
}
