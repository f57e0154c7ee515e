package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
)

const alertColumns = `id, user_id, type, message, severity, related_block_ids, calendar_event_id, status, created_at, updated_at`

func (s *Store) AddAlert(ctx context.Context, alert models.ScheduleAlert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.insertAlert(ctx, tx, alert)
	})
}

// RecordConflict writes the alert and the schedule.conflict.detected event
// in one transaction so neither exists without the other.
func (s *Store) RecordConflict(ctx context.Context, alert models.ScheduleAlert, event models.AgentEvent) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertAlert(ctx, tx, alert); err != nil {
			return err
		}
		return s.insertEvent(ctx, tx, event)
	})
}

func (s *Store) insertAlert(ctx context.Context, tx *sql.Tx, alert models.ScheduleAlert) error {
	related := alert.RelatedBlockIDs
	if related == nil {
		related = []string{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("failed to marshal related block ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO schedule_alerts (
			id, user_id, type, message, severity, related_block_ids,
			calendar_event_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		alert.ID, alert.UserID, string(alert.Type), alert.Message, alert.Severity, string(relatedJSON),
		alert.CalendarEventID, string(alert.Status), formatTime(alert.CreatedAt), formatTime(alert.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, userID, id string) (models.ScheduleAlert, error) {
	var alert models.ScheduleAlert
	err := s.read(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.rebind(`
			SELECT `+alertColumns+` FROM schedule_alerts
			WHERE user_id = ? AND id = ?
		`), userID, id)
		var err error
		alert, err = scanAlert(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScheduleAlert{}, fmt.Errorf("alert %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.ScheduleAlert{}, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

func (s *Store) ListAlerts(ctx context.Context, userID string, status models.AlertStatus) ([]models.ScheduleAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM schedule_alerts WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id ASC`

	var alerts []models.ScheduleAlert
	err := s.read(ctx, func(ctx context.Context) error {
		alerts = nil
		rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			alert, err := scanAlert(rows)
			if err != nil {
				return err
			}
			alerts = append(alerts, alert)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, userID, id string, status models.AlertStatus) error {
	result, err := s.exec(ctx, `
		UPDATE schedule_alerts SET status = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, string(status), formatTime(time.Now().UTC()), userID, id)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return requireRow(result, "alert", id)
}

func scanAlert(row scanner) (models.ScheduleAlert, error) {
	var alert models.ScheduleAlert
	var alertType, status, relatedJSON, createdStr, updatedStr string
	if err := row.Scan(
		&alert.ID, &alert.UserID, &alertType, &alert.Message, &alert.Severity, &relatedJSON,
		&alert.CalendarEventID, &status, &createdStr, &updatedStr,
	); err != nil {
		return models.ScheduleAlert{}, err
	}
	alert.Type = models.AlertType(alertType)
	alert.Status = models.AlertStatus(status)

	if err := json.Unmarshal([]byte(relatedJSON), &alert.RelatedBlockIDs); err != nil {
		return models.ScheduleAlert{}, fmt.Errorf("failed to unmarshal related block ids: %w", err)
	}

	var err error
	if alert.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
		return models.ScheduleAlert{}, err
	}
	if alert.UpdatedAt, err = parseTime("updated_at", updatedStr); err != nil {
		return models.ScheduleAlert{}, err
	}
	return alert, nil
}
