package negotiator

import (
	"fmt"
	"strings"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/interval"
	"github.com/julianstephens/daylitd/internal/models"
)

func buildPrompt(req Request) string {
	day := req.Day
	clock := func(m int) string { return interval.FormatMinutes(m) }

	var sb strings.Builder
	sb.WriteString("You resolve schedule conflicts by proposing concrete edits to planned blocks.\n\n")
	fmt.Fprintf(&sb, "Date: %s (%s). Working hours %s-%s.\n",
		day.Date, day.Timezone, clock(day.WorkStart), clock(day.WorkEnd))
	if style := day.Preferences.ResolutionStyle; style != "" {
		fmt.Fprintf(&sb, "Preferred resolution style: %s.\n", style)
	}
	fmt.Fprintf(&sb, "Alert (%s, severity %d): %s\n\n", req.Alert.Type, req.Alert.Severity, req.Alert.Message)

	sb.WriteString("Conflicting blocks:\n")
	writeBlocks(&sb, req, req.Blocks)

	sb.WriteString("\nOther blocks today:\n")
	others := make([]models.ScheduleBlock, 0, len(day.Blocks))
	for _, b := range day.Blocks {
		if !containsBlock(req.Blocks, b.ID) {
			others = append(others, b)
		}
	}
	writeBlocks(&sb, req, others)

	sb.WriteString("\nCalendar events today:\n")
	for _, ev := range day.Events {
		if ev.AllDay {
			fmt.Fprintf(&sb, "- %q all day\n", ev.Title)
			continue
		}
		iv := day.IntervalOf(*ev.StartAt, *ev.EndAt)
		fmt.Fprintf(&sb, "- %q %s-%s\n", ev.Title, clock(iv.Start), clock(iv.End))
	}

	sb.WriteString("\nFree slots:\n")
	for _, s := range day.FreeSlots {
		fmt.Fprintf(&sb, "- %s-%s (%d min)\n", clock(s.Start), clock(s.End), s.DurationMinutes)
	}

	fmt.Fprintf(&sb, `
Rules:
- propose exactly %d distinct strategies
- a moved block must land entirely inside a free slot on this date
- never change pinned blocks
- deep-work blocks may not be shortened below %d minutes; delete or move them instead
- operations: "move" shifts a block by params.shiftMinutes (negative is earlier),
  "resize" sets params.durationMinutes keeping the start, "delete" removes it

Respond with JSON only:
{"strategies": [{"id": "<slug>", "title": "...", "description": "...", "impact": "Low" | "Medium" | "High",
  "action": "move" | "shorten" | "delete" | "split" | "swap",
  "operations": [{"type": "move" | "resize" | "delete", "targetBlockId": "<block id>", "params": {"shiftMinutes": 0, "durationMinutes": 0}}]}]}
`, constants.StrategiesPerNegotiation, constants.DeepWorkMinDurationMin)

	return sb.String()
}

func writeBlocks(sb *strings.Builder, req Request, blocks []models.ScheduleBlock) {
	if len(blocks) == 0 {
		sb.WriteString("- none\n")
		return
	}
	for _, b := range blocks {
		iv := req.Day.IntervalOf(b.StartTime, b.EndTime)
		fmt.Fprintf(sb, "- id=%s type=%s title=%q %s-%s (%d min) pinned=%t\n",
			b.ID, b.BlockType, b.Title,
			interval.FormatMinutes(iv.Start), interval.FormatMinutes(iv.End),
			iv.Duration(), b.Pinned)
	}
}

func containsBlock(blocks []models.ScheduleBlock, id string) bool {
	for _, b := range blocks {
		if b.ID == id {
			return true
		}
	}
	return false
}
