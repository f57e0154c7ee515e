package schedule

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/storage/memory"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	start, end := at(9, 0), at(9, 30)
	if err := store.SaveCalendarEvent(ctx, models.CalendarEvent{ID: "cal-1", UserID: "u1", Title: "Dentist", StartAt: &start, EndAt: &end}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddBlock(ctx, models.ScheduleBlock{
		ID: "b1", UserID: "u1", Title: "Write design doc", BlockType: models.BlockDeepWork,
		StartTime: at(10, 0), EndTime: at(11, 30), Pinned: true,
	}); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestRenderDay(t *testing.T) {
	store := seed(t)
	day, err := daycontext.NewBuilder(store).Build(context.Background(), "u1", "2025-03-10", "UTC")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	renderDay(&buf, day)
	out := buf.String()
	for _, want := range []string{
		"2025-03-10 (UTC)",
		"09:00-09:30", "Dentist",
		"10:00-11:30", "deep-work", "Write design doc", "pinned",
		"09:30-10:00", "30m",
		"11:30-23:59",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("renderDay() output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAlerts(t *testing.T) {
	alerts := []models.ScheduleAlert{
		{ID: "a1", Type: models.AlertConflict, Severity: 8, Status: models.AlertPending, Message: "Dentist overlaps deep work"},
		{ID: "a2", Type: models.AlertWarning, Severity: 2, Status: models.AlertResolved, Message: strings.Repeat("x", 60)},
	}
	var buf bytes.Buffer
	renderAlerts(&buf, alerts)
	out := buf.String()
	for _, want := range []string{"a1", "Dentist overlaps deep work", "pending", "a2", "resolved", strings.Repeat("x", 37) + "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("renderAlerts() output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 41)) {
		t.Error("long message was not truncated")
	}
}

func TestPublishCmd(t *testing.T) {
	tests := []struct {
		name      string
		cmd       PublishCmd
		wantError bool
	}{
		{"valid", PublishCmd{User: "u1", Type: string(constants.EventCalendarSynced), Payload: `{"calendarEventId": "cal-1"}`, Source: constants.SourceCLI}, false},
		{"unknown type", PublishCmd{User: "u1", Type: "calendar.exploded", Payload: `{}`, Source: constants.SourceCLI}, true},
		{"invalid payload", PublishCmd{User: "u1", Type: string(constants.EventCalendarSynced), Payload: `{"calendarEventId":`, Source: constants.SourceCLI}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			err := tt.cmd.Run(&cli.Context{Store: store})
			if (err != nil) != tt.wantError {
				t.Fatalf("PublishCmd.Run() error = %v, wantError %v", err, tt.wantError)
			}
			want := 1
			if tt.wantError {
				want = 0
			}
			if got := store.EventCount(); got != want {
				t.Errorf("EventCount() = %d, want %d", got, want)
			}
		})
	}
}

func TestDayCmd(t *testing.T) {
	store := seed(t)
	if err := (&DayCmd{User: "u1", Date: "2025-03-10", Timezone: "UTC", JSON: true}).Run(&cli.Context{Store: store}); err != nil {
		t.Errorf("DayCmd.Run() error = %v", err)
	}
	if err := (&DayCmd{User: "u1", Date: "03/10/2025"}).Run(&cli.Context{Store: store}); err == nil {
		t.Error("DayCmd.Run() with bad date should fail")
	}
}

func TestAlertsCmd(t *testing.T) {
	store := memory.New()
	if err := (&AlertsCmd{User: "u1"}).Run(&cli.Context{Store: store}); err != nil {
		t.Errorf("AlertsCmd.Run() error = %v", err)
	}
	if err := (&AlertsCmd{User: "u1", Status: "snoozed"}).Run(&cli.Context{Store: store}); err == nil {
		t.Error("AlertsCmd.Run() with unknown status should fail")
	}
}
