// Package interval implements the pure time-range arithmetic used by conflict
// detection and free-slot extraction. Nothing here performs I/O.
package interval

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
)

// Interval is a half-open range [Start, End) in minutes since local midnight.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FreeSlot is a gap in a day's busy set.
type FreeSlot struct {
	Start           int `json:"start"`
	End             int `json:"end"`
	DurationMinutes int `json:"durationMinutes"`
}

// TimeToMinutes parses "HH:MM" or "H:MM AM/PM" (meridiem case-insensitive)
// into minutes since midnight.
func TimeToMinutes(text string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(text))

	meridiem := ""
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		meridiem = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
	}
	if minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
	}

	switch meridiem {
	case "":
		if hours < 0 || hours > 23 {
			return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
		}
	default:
		if hours < 1 || hours > 12 {
			return 0, fmt.Errorf("%w: %q", errors.ErrInvalidTimeFormat, text)
		}
		if hours == 12 {
			hours = 0
		}
		if meridiem == "PM" {
			hours += 12
		}
	}

	return hours*60 + minutes, nil
}

// FormatMinutes renders minutes since midnight as HH:MM.
func FormatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// HasOverlap reports whether [startA, endA) and [startB, endB) share any
// point. Touching ranges do not overlap and empty ranges overlap nothing.
func HasOverlap[T cmp.Ordered](startA, endA, startB, endB T) bool {
	return max(startA, startB) < min(endA, endB)
}

// Overlaps is HasOverlap for two Intervals.
func (i Interval) Overlaps(o Interval) bool {
	return HasOverlap(i.Start, i.End, o.Start, o.End)
}

// Duration returns the length of i in minutes.
func (i Interval) Duration() int {
	return i.End - i.Start
}

// MergeIntervals sorts by start and coalesces overlapping or touching
// intervals. The input is not modified.
func MergeIntervals(list []Interval) []Interval {
	if len(list) == 0 {
		return []Interval{}
	}

	sorted := slices.Clone(list)
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})

	merged := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.End >= cur.Start {
			last.End = max(last.End, cur.End)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Gaps returns every gap inside [dayStart, dayEnd] not covered by busy,
// without any minimum-duration filter. Busy intervals are clipped to the
// window first.
func Gaps(dayStart, dayEnd int, busy []Interval) []FreeSlot {
	clipped := make([]Interval, 0, len(busy))
	for _, b := range busy {
		start, end := max(b.Start, dayStart), min(b.End, dayEnd)
		if start < end {
			clipped = append(clipped, Interval{Start: start, End: end})
		}
	}

	gaps := []FreeSlot{}
	cursor := dayStart
	for _, b := range MergeIntervals(clipped) {
		if b.Start > cursor {
			gaps = append(gaps, newSlot(cursor, b.Start))
		}
		cursor = max(cursor, b.End)
	}
	if cursor < dayEnd {
		gaps = append(gaps, newSlot(cursor, dayEnd))
	}
	return gaps
}

// FreeSlots returns the gaps inside [dayStart, dayEnd] that are at least
// constants.MinFreeSlotMinutes long.
func FreeSlots(dayStart, dayEnd int, busy []Interval) []FreeSlot {
	return FilterSlots(Gaps(dayStart, dayEnd, busy), constants.MinFreeSlotMinutes)
}

// FilterSlots keeps slots of at least minMinutes.
func FilterSlots(slots []FreeSlot, minMinutes int) []FreeSlot {
	out := make([]FreeSlot, 0, len(slots))
	for _, s := range slots {
		if s.DurationMinutes >= minMinutes {
			out = append(out, s)
		}
	}
	return out
}

// Fits reports whether i lies entirely inside s.
func (s FreeSlot) Fits(i Interval) bool {
	return i.Start >= s.Start && i.End <= s.End
}

func newSlot(start, end int) FreeSlot {
	return FreeSlot{Start: start, End: end, DurationMinutes: end - start}
}
