package cli

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/eventbus"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/reasoning"
	"github.com/julianstephens/daylitd/internal/storage/memory"
)

// scriptedDecider answers conflict assessments and negotiations.
type scriptedDecider struct {
	assessments  int
	negotiations int
}

func (d *scriptedDecider) Decide(_ context.Context, prompt string, out interface{}) error {
	if strings.Contains(prompt, `"strategies"`) {
		d.negotiations++
		return reasoning.DecodeJSON(`{"strategies": [
			{"id": "shift", "title": "Shift the review", "description": "Move it after lunch", "impact": "low", "action": "move",
			 "operations": [{"type": "move", "targetBlockId": "b1", "shiftMinutes": 120}]},
			{"id": "drop", "title": "Drop the review", "description": "Skip it today", "impact": "high", "action": "delete",
			 "operations": [{"type": "delete", "targetBlockId": "b1"}]},
			{"id": "ask", "title": "Ask to reschedule", "description": "Message the dentist", "impact": "medium", "action": "swap",
			 "operations": []}
		]}`, out)
	}
	d.assessments++
	return reasoning.DecodeJSON(`{"severity": 5, "type": "conflict", "message": "Dentist overlaps the review"}`, out)
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestPipelineResolvesSyncedEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	decider := &scriptedDecider{}
	appCtx := &Context{Store: store, Decider: decider}

	start, end := at(9, 0), at(9, 30)
	if err := store.SavePreferences(ctx, models.UserPreferences{UserID: "u1", Timezone: "UTC", AutoResolve: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveCalendarEvent(ctx, models.CalendarEvent{ID: "cal-1", UserID: "u1", Title: "Dentist", StartAt: &start, EndAt: &end}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddBlock(ctx, models.ScheduleBlock{
		ID: "b1", UserID: "u1", Title: "Review", BlockType: models.BlockMeeting, StartTime: at(9, 0), EndTime: at(10, 0),
	}); err != nil {
		t.Fatal(err)
	}

	p, err := appCtx.Pipeline(nil)
	if err != nil {
		t.Fatalf("Pipeline() error = %v", err)
	}
	id := p.Bus.Publish(ctx, "u1", constants.EventCalendarSynced, constants.SourceCalendarSync,
		models.CalendarSyncedPayload{CalendarEventID: "cal-1"})
	if id == "" {
		t.Fatal("Publish() returned empty id")
	}

	// Sweep 1: guardian detects. Sweep 2: orchestrator resolves.
	for sweep := 1; sweep <= 2; sweep++ {
		n, err := p.Bus.ProcessEvents(ctx)
		if err != nil {
			t.Fatalf("sweep %d: ProcessEvents() error = %v", sweep, err)
		}
		if n != 1 {
			t.Errorf("sweep %d: completed %d events, want 1", sweep, n)
		}
	}

	alerts, err := store.ListAlerts(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Status != models.AlertResolved {
		t.Errorf("alert status = %s, want resolved", alerts[0].Status)
	}

	b1, err := store.GetBlock(ctx, "u1", "b1")
	if err != nil {
		t.Fatal(err)
	}
	if !b1.StartTime.Equal(at(11, 0)) || !b1.EndTime.Equal(at(12, 0)) {
		t.Errorf("b1 = %s-%s, want 11:00-12:00", b1.StartTime.Format(constants.TimeFormat), b1.EndTime.Format(constants.TimeFormat))
	}
	if decider.assessments != 1 || decider.negotiations != 1 {
		t.Errorf("decider calls = %d assessments, %d negotiations, want 1 each", decider.assessments, decider.negotiations)
	}

	// The resolved event has no subscribers and completes on the next sweep.
	n, err := p.Bus.ProcessEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("sweep 3: completed %d events, want 1", n)
	}
	pending, err := store.ListUnprocessedEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending events = %d, want 0", len(pending))
	}
}

func TestContextSubscriptions(t *testing.T) {
	appCtx := &Context{}
	subs, err := appCtx.Subscriptions()
	if err != nil {
		t.Fatal(err)
	}
	if got := subs.For(constants.EventConflictDetected); len(got) != 1 || got[0] != constants.SubscriberOrchestrator {
		t.Errorf("default detected subscribers = %v", got)
	}

	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	if err := os.WriteFile(path, []byte("subscriptions:\n  calendar.event.synced: [guardian, audit]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	appCtx.SubscriptionsFile = path
	subs, err = appCtx.Subscriptions()
	if err != nil {
		t.Fatalf("Subscriptions() error = %v", err)
	}
	if got := subs.For(constants.EventCalendarSynced); len(got) != 2 {
		t.Errorf("synced subscribers = %v, want [guardian audit]", got)
	}
	if got := subs.For(constants.EventConflictDetected); len(got) != 0 {
		t.Errorf("detected subscribers = %v, want none from file", got)
	}
}

func TestPipelineRejectsUnhandledSubscriber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	if err := os.WriteFile(path, []byte("subscriptions:\n  schedule.conflict.detected: [orchestrator, notifier]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	appCtx := &Context{Store: memory.New(), Decider: &scriptedDecider{}, SubscriptionsFile: path}

	_, err := appCtx.Pipeline(nil)
	if err == nil || !strings.Contains(err.Error(), `"notifier"`) {
		t.Fatalf("Pipeline(nil) error = %v, want unhandled notifier", err)
	}

	remote := eventbus.NewHTTPDispatcher(&http.Client{}, "http://127.0.0.1:0", "token")
	if _, err := appCtx.Pipeline(remote); err != nil {
		t.Errorf("Pipeline(remote) error = %v", err)
	}
}
