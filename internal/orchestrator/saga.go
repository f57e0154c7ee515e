package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
)

// step is one applied operation and the snapshot needed to undo it.
type step struct {
	op       models.Operation
	original models.ScheduleBlock
}

type applyResult struct {
	applied []step
	skipped int
	// failure is the store error that stopped application, if any.
	failure error
}

// apply runs the strategy's operations in order. Missing targets are skipped;
// the first store failure stops the run with everything before it applied.
func apply(ctx context.Context, store Store, userID string, s models.Strategy, l *log.Logger) applyResult {
	var res applyResult
	for i, op := range s.Operations {
		block, err := store.GetBlock(ctx, userID, op.Target())
		if stderrors.Is(err, errors.ErrNotFound) {
			l.Warn("Skipping operation on missing block", "strategy_id", s.ID, "operation", i, "block_id", op.Target())
			res.skipped++
			continue
		}
		if err != nil {
			res.failure = fmt.Errorf("operation %d: failed to load block %s: %w", i, op.Target(), err)
			return res
		}

		if err := mutate(ctx, store, block, op); err != nil {
			res.failure = fmt.Errorf("operation %d (%s %s): %w", i, op.Type(), op.Target(), err)
			return res
		}
		res.applied = append(res.applied, step{op: op, original: block})
		l.Debug("Applied operation", "strategy_id", s.ID, "operation", i, "type", op.Type(), "block_id", block.ID)
	}
	return res
}

func mutate(ctx context.Context, store Store, block models.ScheduleBlock, op models.Operation) error {
	switch o := op.(type) {
	case models.DeleteOperation:
		return store.DeleteBlock(ctx, block.UserID, block.ID)
	case models.MoveOperation:
		return store.UpdateBlock(ctx, Moved(block, o.ShiftMinutes))
	case models.ResizeOperation:
		return store.UpdateBlock(ctx, Resized(block, o.DurationMinutes))
	}
	return fmt.Errorf("unsupported operation %T", op)
}

// compensate undoes applied steps in reverse order and returns the first
// failure, continuing past it so as much as possible is restored.
func compensate(ctx context.Context, store Store, steps []step, l *log.Logger) error {
	var first error
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		var err error
		if st.op.Type() == models.OperationDelete {
			err = store.AddBlock(ctx, st.original)
		} else {
			err = store.UpdateBlock(ctx, st.original)
		}
		if err != nil {
			l.Error("Compensation failed", "block_id", st.original.ID, "operation", st.op.Type(), "error", err)
			if first == nil {
				first = fmt.Errorf("failed to restore block %s: %w", st.original.ID, err)
			}
		}
	}
	return first
}

// Moved shifts both ends of b, preserving its duration.
func Moved(b models.ScheduleBlock, shiftMinutes int) models.ScheduleBlock {
	shift := time.Duration(shiftMinutes) * time.Minute
	b.StartTime = b.StartTime.Add(shift)
	b.EndTime = b.EndTime.Add(shift)
	return b
}

// Resized keeps the start of b and sets its length.
func Resized(b models.ScheduleBlock, durationMinutes int) models.ScheduleBlock {
	b.EndTime = b.StartTime.Add(time.Duration(durationMinutes) * time.Minute)
	return b
}
