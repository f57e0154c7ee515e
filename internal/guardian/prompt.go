package guardian

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/models"
)

func buildPrompt(event models.CalendarEvent, blocks []models.ScheduleBlock, loc *time.Location) string {
	var sb strings.Builder

	sb.WriteString("You assess schedule conflicts. A calendar event overlaps planned blocks.\n\n")
	fmt.Fprintf(&sb, "Calendar event: %q from %s to %s (%s)\n",
		eventTitle(event),
		event.StartAt.In(loc).Format(constants.TimeFormat),
		event.EndAt.In(loc).Format(constants.TimeFormat),
		loc.String())

	sb.WriteString("Overlapping blocks:\n")
	for _, b := range blocks {
		fmt.Fprintf(&sb, "- id=%s type=%s title=%q %s-%s pinned=%t\n",
			b.ID, b.BlockType, b.Title,
			b.StartTime.In(loc).Format(constants.TimeFormat),
			b.EndTime.In(loc).Format(constants.TimeFormat),
			b.Pinned)
	}

	fmt.Fprintf(&sb, `
Score the conflict on a %d-%d scale:
- displacing protected deep-work is at least %d
- displacing only a micro-break or buffer is at most %d
- routine overlaps with meetings or admin sit in between

Respond with JSON only:
{"severity": <integer>, "type": "conflict" | "warning" | "critical", "message": "<one sentence for the user>"}
`, constants.SeverityMin, constants.SeverityMax, constants.SeverityDeepWorkFloor, constants.SeverityLowPriorityCap)

	return sb.String()
}
