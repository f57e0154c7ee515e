package negotiator

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/interval"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
)

// checkPolicy replays a strategy's operations against the day. Operations
// apply in order, so a delete can free the slot a later move lands in.
// Operations on blocks outside the day are orphaned references: they are
// left out of the replay and skipped when the strategy is applied.
func checkPolicy(s models.Strategy, day *daycontext.DayContext, l *log.Logger) error {
	state := make(map[string]interval.Interval, len(day.Blocks))
	types := make(map[string]models.BlockType, len(day.Blocks))
	for _, b := range day.Blocks {
		state[b.ID] = day.IntervalOf(b.StartTime, b.EndTime)
		types[b.ID] = b.BlockType
	}

	var events []interval.Interval
	for _, ev := range day.Events {
		if ev.HasTimes() && !ev.AllDay {
			events = append(events, day.IntervalOf(*ev.StartAt, *ev.EndAt))
		}
	}

	for i, op := range s.Operations {
		target := op.Target()
		current, ok := state[target]
		if !ok {
			logger.Decision(l, "Ignored orphaned operation", "strategy_id", s.ID, "operation", i, "block_id", target)
			continue
		}
		if b, _ := day.Block(target); b.Pinned {
			return violation(s, i, "mutates pinned block %s", target)
		}

		switch o := op.(type) {
		case models.MoveOperation:
			moved := interval.Interval{Start: current.Start + o.ShiftMinutes, End: current.End + o.ShiftMinutes}
			if moved.Start < 0 || moved.End > constants.MinutesPerDay {
				return violation(s, i, "moves block %s outside the day", target)
			}
			if !fitsFree(moved, target, state, events) {
				return violation(s, i, "moves block %s to %s-%s which is not free",
					target, interval.FormatMinutes(moved.Start), interval.FormatMinutes(moved.End))
			}
			state[target] = moved

		case models.ResizeOperation:
			if o.DurationMinutes <= 0 {
				return violation(s, i, "resizes block %s to %d minutes", target, o.DurationMinutes)
			}
			if types[target] == models.BlockDeepWork &&
				o.DurationMinutes < current.Duration() &&
				o.DurationMinutes < constants.DeepWorkMinDurationMin {
				return violation(s, i, "shortens deep-work block %s below %d minutes",
					target, constants.DeepWorkMinDurationMin)
			}
			resized := interval.Interval{Start: current.Start, End: current.Start + o.DurationMinutes}
			if resized.End > constants.MinutesPerDay {
				return violation(s, i, "extends block %s past the end of the day", target)
			}
			state[target] = resized

		case models.DeleteOperation:
			delete(state, target)
		}
	}
	return nil
}

// fitsFree reports whether candidate lies inside one gap of everything busy
// other than the block being moved.
func fitsFree(candidate interval.Interval, self string, blocks map[string]interval.Interval, events []interval.Interval) bool {
	busy := make([]interval.Interval, 0, len(blocks)+len(events))
	busy = append(busy, events...)
	for id, iv := range blocks {
		if id != self {
			busy = append(busy, iv)
		}
	}
	for _, slot := range interval.Gaps(0, constants.MinutesPerDay, busy) {
		if slot.Fits(candidate) {
			return true
		}
	}
	return false
}

func violation(s models.Strategy, op int, format string, args ...interface{}) error {
	err := errors.Guardrail(errors.CodePolicyViolation, "strategy %s %s", s.ID, fmt.Sprintf(format, args...))
	err.Details = map[string]interface{}{"strategyId": s.ID, "operation": op}
	return err
}
