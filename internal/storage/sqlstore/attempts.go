package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/daylitd/internal/models"
)

func (s *Store) AddResolutionAttempt(ctx context.Context, attempt models.ResolutionAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO resolution_attempts (
			id, user_id, alert_id, strategy_id, state, applied, skipped,
			failure_reason, created_at, created_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.ID, attempt.UserID, attempt.AlertID, attempt.StrategyID, string(attempt.State),
		attempt.Applied, attempt.Skipped, attempt.FailureReason,
		formatTime(attempt.CreatedAt), attempt.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution attempt: %w", err)
	}
	return nil
}

func (s *Store) ListResolutionAttempts(ctx context.Context, userID, alertID string) ([]models.ResolutionAttempt, error) {
	var attempts []models.ResolutionAttempt
	err := s.read(ctx, func(ctx context.Context) error {
		attempts = nil
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT id, user_id, alert_id, strategy_id, state, applied, skipped, failure_reason, created_at
			FROM resolution_attempts
			WHERE user_id = ? AND alert_id = ?
			ORDER BY created_ns ASC
		`), userID, alertID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var attempt models.ResolutionAttempt
			var state, createdStr string
			if err := rows.Scan(
				&attempt.ID, &attempt.UserID, &attempt.AlertID, &attempt.StrategyID, &state,
				&attempt.Applied, &attempt.Skipped, &attempt.FailureReason, &createdStr,
			); err != nil {
				return err
			}
			attempt.State = models.AttemptState(state)
			if attempt.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
				return err
			}
			attempts = append(attempts, attempt)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list resolution attempts: %w", err)
	}
	return attempts, nil
}
