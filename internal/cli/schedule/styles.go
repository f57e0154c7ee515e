package schedule

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/interval"
	"github.com/julianstephens/daylitd/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true).
			MarginTop(1)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("111")).
			Width(12)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	criticalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func span(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format(constants.TimeFormat) + "-" + end.In(loc).Format(constants.TimeFormat)
}

func renderDay(w io.Writer, day *daycontext.DayContext) {
	loc := day.Location()
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%s)", day.Date, day.Timezone)))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("working hours %s-%s",
		interval.FormatMinutes(day.WorkStart), interval.FormatMinutes(day.WorkEnd))))

	fmt.Fprintln(w, sectionStyle.Render("Events"))
	if len(day.Events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, ev := range day.Events {
		when := span(*ev.StartAt, *ev.EndAt, loc)
		if ev.AllDay {
			when = "all day"
		}
		fmt.Fprintln(w, "  "+timeStyle.Render(when)+ev.Title)
	}

	fmt.Fprintln(w, sectionStyle.Render("Blocks"))
	if len(day.Blocks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, b := range day.Blocks {
		line := "  " + timeStyle.Render(span(b.StartTime, b.EndTime, loc)) + kindStyle.Render(string(b.BlockType)) + b.Title
		if b.Pinned {
			line += " " + warningStyle.Render("pinned")
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, sectionStyle.Render("Free"))
	slots := interval.FilterSlots(day.FreeSlots, constants.MinFreeSlotMinutes)
	if len(slots) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, s := range slots {
		fmt.Fprintln(w, "  "+timeStyle.Render(interval.FormatMinutes(s.Start)+"-"+interval.FormatMinutes(s.End))+
			mutedStyle.Render(fmt.Sprintf("%dm", s.DurationMinutes)))
	}
}

func severityStyle(a models.ScheduleAlert) lipgloss.Style {
	switch {
	case a.Type == models.AlertCritical || a.Severity >= constants.SeverityDeepWorkFloor:
		return criticalStyle
	case a.Severity > constants.SeverityLowPriorityCap:
		return warningStyle
	}
	return mutedStyle
}

func renderAlerts(w io.Writer, alerts []models.ScheduleAlert) {
	fmt.Fprintf(w, "%-36s %-9s %-8s %-9s %s\n", "ID", "Type", "Severity", "Status", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, a := range alerts {
		message := a.Message
		if len(message) > 40 {
			message = message[:37] + "..."
		}
		severity := severityStyle(a).Render(fmt.Sprintf("%-8d", a.Severity))
		fmt.Fprintf(w, "%-36s %-9s %s %-9s %s\n", a.ID, a.Type, severity, a.Status, message)
	}
}
