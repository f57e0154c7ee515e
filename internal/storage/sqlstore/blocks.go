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

const blockColumns = `id, user_id, title, block_type, start_time, end_time, task_id, event_id, pinned, rationale, explain_json`

func (s *Store) AddBlock(ctx context.Context, block models.ScheduleBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	_, err := s.exec(ctx, `
		INSERT INTO schedule_blocks (
			id, user_id, title, block_type, start_time, end_time, start_unix, end_unix,
			task_id, event_id, pinned, rationale, explain_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		block.ID, block.UserID, block.Title, string(block.BlockType),
		block.StartTime.Format(time.RFC3339), block.EndTime.Format(time.RFC3339),
		block.StartTime.Unix(), block.EndTime.Unix(),
		block.TaskID, block.EventID, block.Pinned, block.Rationale, string(block.Explain),
	)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

func (s *Store) GetBlock(ctx context.Context, userID, id string) (models.ScheduleBlock, error) {
	var block models.ScheduleBlock
	err := s.read(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.rebind(`
			SELECT `+blockColumns+` FROM schedule_blocks
			WHERE user_id = ? AND id = ?
		`), userID, id)
		var err error
		block, err = scanBlock(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScheduleBlock{}, fmt.Errorf("block %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.ScheduleBlock{}, fmt.Errorf("failed to get block: %w", err)
	}
	return block, nil
}

func (s *Store) ListBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.ScheduleBlock, error) {
	var blocks []models.ScheduleBlock
	err := s.read(ctx, func(ctx context.Context) error {
		blocks = nil
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT `+blockColumns+` FROM schedule_blocks
			WHERE user_id = ? AND start_unix < ? AND end_unix > ?
			ORDER BY start_unix ASC, id ASC
		`), userID, to.Unix(), from.Unix())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			block, err := scanBlock(rows)
			if err != nil {
				return err
			}
			blocks = append(blocks, block)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return blocks, nil
}

// UpdateBlock rewrites the mutable fields of an existing block.
func (s *Store) UpdateBlock(ctx context.Context, block models.ScheduleBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	result, err := s.exec(ctx, `
		UPDATE schedule_blocks SET
			title = ?, block_type = ?, start_time = ?, end_time = ?,
			start_unix = ?, end_unix = ?, task_id = ?, event_id = ?,
			pinned = ?, rationale = ?, explain_json = ?
		WHERE user_id = ? AND id = ?
	`,
		block.Title, string(block.BlockType),
		block.StartTime.Format(time.RFC3339), block.EndTime.Format(time.RFC3339),
		block.StartTime.Unix(), block.EndTime.Unix(), block.TaskID, block.EventID,
		block.Pinned, block.Rationale, string(block.Explain),
		block.UserID, block.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update block: %w", err)
	}
	return requireRow(result, "block", block.ID)
}

func (s *Store) DeleteBlock(ctx context.Context, userID, id string) error {
	result, err := s.exec(ctx, `DELETE FROM schedule_blocks WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return requireRow(result, "block", id)
}

func scanBlock(row scanner) (models.ScheduleBlock, error) {
	var block models.ScheduleBlock
	var blockType, startStr, endStr, explain string
	if err := row.Scan(
		&block.ID, &block.UserID, &block.Title, &blockType, &startStr, &endStr,
		&block.TaskID, &block.EventID, &block.Pinned, &block.Rationale, &explain,
	); err != nil {
		return models.ScheduleBlock{}, err
	}
	block.BlockType = models.BlockType(blockType)
	if explain != "" {
		block.Explain = []byte(explain)
	}

	var err error
	if block.StartTime, err = parseTime("start_time", startStr); err != nil {
		return models.ScheduleBlock{}, err
	}
	if block.EndTime, err = parseTime("end_time", endStr); err != nil {
		return models.ScheduleBlock{}, err
	}
	return block, nil
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, apperrors.ErrNotFound)
	}
	return nil
}
