// Package storagetest is a behavioral suite every storage.Provider must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	apperrors "github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/storage"
)

// Factory returns a fresh, initialized, empty store.
type Factory func(t *testing.T) storage.Provider

// Run executes the suite, one fresh store per subtest.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Provider)
	}{
		{"Preferences", testPreferences},
		{"CalendarEvents", testCalendarEvents},
		{"Blocks", testBlocks},
		{"Alerts", testAlerts},
		{"RecordConflictAtomic", testRecordConflictAtomic},
		{"EventAcks", testEventAcks},
		{"EventAttempts", testEventAttempts},
		{"ConcurrentMarkProcessed", testConcurrentMarkProcessed},
		{"ResolutionAttempts", testResolutionAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

func testPreferences(t *testing.T, s storage.Provider) {
	ctx := context.Background()

	prefs, err := s.GetPreferences(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if prefs.WorkStart != constants.DefaultWorkStart || prefs.WorkEnd != constants.DefaultWorkEnd {
		t.Errorf("expected default working hours, got %s-%s", prefs.WorkStart, prefs.WorkEnd)
	}

	want := models.UserPreferences{
		UserID:          "user-1",
		WorkStart:       "08:30",
		WorkEnd:         "16:00",
		Timezone:        "Europe/Berlin",
		AutoResolve:     true,
		ResolutionStyle: "defer",
	}
	if err := s.SavePreferences(ctx, want); err != nil {
		t.Fatalf("SavePreferences failed: %v", err)
	}
	want.WorkEnd = "16:30"
	if err := s.SavePreferences(ctx, want); err != nil {
		t.Fatalf("SavePreferences (update) failed: %v", err)
	}

	got, err := s.GetPreferences(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if got != want {
		t.Errorf("GetPreferences() = %+v, want %+v", got, want)
	}

	other, err := s.GetPreferences(ctx, "user-2")
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if other.AutoResolve {
		t.Error("preferences leaked across users")
	}
}

func testCalendarEvents(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	events := []models.CalendarEvent{
		{ID: "ev-1", UserID: "user-1", Title: "Standup", StartAt: ptr(at(9, 0)), EndAt: ptr(at(9, 30))},
		{ID: "ev-2", UserID: "user-1", Title: "Untimed"},
		{ID: "ev-3", UserID: "user-1", Title: "Deleted", StartAt: ptr(at(11, 0)), EndAt: ptr(at(12, 0)), DeletedAt: ptr(at(8, 0))},
		{ID: "ev-4", UserID: "user-1", Title: "Tomorrow", StartAt: ptr(at(33, 0)), EndAt: ptr(at(34, 0))},
		{ID: "ev-5", UserID: "user-2", Title: "Other user", StartAt: ptr(at(9, 0)), EndAt: ptr(at(10, 0))},
	}
	for _, ev := range events {
		if err := s.SaveCalendarEvent(ctx, ev); err != nil {
			t.Fatalf("SaveCalendarEvent(%s) failed: %v", ev.ID, err)
		}
	}

	got, err := s.GetCalendarEvent(ctx, "user-1", "ev-2")
	if err != nil {
		t.Fatalf("GetCalendarEvent failed: %v", err)
	}
	if got.HasTimes() {
		t.Error("untimed event came back with times")
	}

	if _, err := s.GetCalendarEvent(ctx, "user-2", "ev-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("cross-user GetCalendarEvent error = %v, want ErrNotFound", err)
	}

	list, err := s.ListCalendarEvents(ctx, "user-1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListCalendarEvents failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "ev-1" {
		t.Fatalf("ListCalendarEvents() = %+v, want only ev-1", list)
	}
	if !list[0].StartAt.Equal(at(9, 0)) {
		t.Errorf("start = %v, want %v", list[0].StartAt, at(9, 0))
	}

	moved := events[0]
	moved.StartAt, moved.EndAt = ptr(at(10, 0)), ptr(at(10, 30))
	if err := s.SaveCalendarEvent(ctx, moved); err != nil {
		t.Fatalf("SaveCalendarEvent (upsert) failed: %v", err)
	}
	got, err = s.GetCalendarEvent(ctx, "user-1", "ev-1")
	if err != nil {
		t.Fatalf("GetCalendarEvent failed: %v", err)
	}
	if !got.StartAt.Equal(at(10, 0)) {
		t.Errorf("upsert did not replace start: %v", got.StartAt)
	}
}

func testBlocks(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}

	focus := models.ScheduleBlock{
		ID: "b-1", UserID: "user-1", Title: "Focus", BlockType: models.BlockDeepWork,
		StartTime: at(10, 0).In(berlin), EndTime: at(12, 0).In(berlin),
		Pinned: true, Explain: json.RawMessage(`{"source":"compose"}`),
	}
	email := models.ScheduleBlock{
		ID: "b-2", UserID: "user-1", Title: "Email", BlockType: models.BlockAdmin,
		StartTime: at(8, 0), EndTime: at(8, 30),
	}
	for _, b := range []models.ScheduleBlock{focus, email} {
		if err := s.AddBlock(ctx, b); err != nil {
			t.Fatalf("AddBlock(%s) failed: %v", b.ID, err)
		}
	}

	invalid := email
	invalid.ID, invalid.EndTime = "b-3", invalid.StartTime
	if err := s.AddBlock(ctx, invalid); err == nil {
		t.Error("expected zero-length block to be rejected")
	}

	got, err := s.GetBlock(ctx, "user-1", "b-1")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if !got.StartTime.Equal(focus.StartTime) || !got.Pinned || got.BlockType != models.BlockDeepWork {
		t.Errorf("GetBlock() = %+v", got)
	}
	if _, offset := got.StartTime.Zone(); offset != 3600 {
		t.Errorf("offset not preserved: %v", got.StartTime)
	}
	if string(got.Explain) != `{"source":"compose"}` {
		t.Errorf("explain = %s", got.Explain)
	}

	list, err := s.ListBlocks(ctx, "user-1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListBlocks failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b-2" || list[1].ID != "b-1" {
		t.Fatalf("ListBlocks() order wrong: %+v", list)
	}

	got.StartTime = got.StartTime.Add(30 * time.Minute)
	got.EndTime = got.EndTime.Add(30 * time.Minute)
	if err := s.UpdateBlock(ctx, got); err != nil {
		t.Fatalf("UpdateBlock failed: %v", err)
	}
	updated, err := s.GetBlock(ctx, "user-1", "b-1")
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if !updated.StartTime.Equal(at(10, 30)) || !updated.EndTime.Equal(at(12, 30)) {
		t.Errorf("UpdateBlock did not persist: %v-%v", updated.StartTime, updated.EndTime)
	}

	if err := s.DeleteBlock(ctx, "user-1", "b-2"); err != nil {
		t.Fatalf("DeleteBlock failed: %v", err)
	}
	if err := s.DeleteBlock(ctx, "user-1", "b-2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second DeleteBlock error = %v, want ErrNotFound", err)
	}
	missing := email
	missing.ID = "nope"
	if err := s.UpdateBlock(ctx, missing); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("UpdateBlock(missing) error = %v, want ErrNotFound", err)
	}
}

func newAlert(id string, created time.Time) models.ScheduleAlert {
	return models.ScheduleAlert{
		ID: id, UserID: "user-1", Type: models.AlertConflict, Message: "Standup overlaps Focus",
		Severity: 6, RelatedBlockIDs: []string{"b-1"}, CalendarEventID: "ev-1",
		Status: models.AlertPending, CreatedAt: created, UpdatedAt: created,
	}
}

func testAlerts(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	if err := s.AddAlert(ctx, newAlert("a-1", at(9, 0))); err != nil {
		t.Fatalf("AddAlert failed: %v", err)
	}
	if err := s.AddAlert(ctx, newAlert("a-2", at(9, 5))); err != nil {
		t.Fatalf("AddAlert failed: %v", err)
	}

	got, err := s.GetAlert(ctx, "user-1", "a-1")
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if len(got.RelatedBlockIDs) != 1 || got.RelatedBlockIDs[0] != "b-1" || got.Severity != 6 {
		t.Errorf("GetAlert() = %+v", got)
	}

	if err := s.UpdateAlertStatus(ctx, "user-1", "a-1", models.AlertResolved); err != nil {
		t.Fatalf("UpdateAlertStatus failed: %v", err)
	}
	pending, err := s.ListAlerts(ctx, "user-1", models.AlertPending)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a-2" {
		t.Errorf("pending alerts = %+v", pending)
	}
	all, err := s.ListAlerts(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a-2" {
		t.Errorf("all alerts should be newest first: %+v", all)
	}

	if err := s.UpdateAlertStatus(ctx, "user-1", "missing", models.AlertResolved); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("UpdateAlertStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func newEvent(id string, eventType constants.EventType, created time.Time) models.AgentEvent {
	return models.AgentEvent{
		ID: id, UserID: "user-1", EventType: eventType, EventSource: "test",
		Payload: json.RawMessage(`{"k":"v"}`), CreatedAt: created,
	}
}

func testRecordConflictAtomic(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	if err := s.AddEvent(ctx, newEvent("e-1", constants.EventCalendarSynced, at(8, 0))); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	// Reusing e-1 forces the event insert to fail after the alert insert.
	err := s.RecordConflict(ctx, newAlert("a-1", at(9, 0)), newEvent("e-1", constants.EventConflictDetected, at(9, 0)))
	if err == nil {
		t.Fatal("expected duplicate event id to fail")
	}
	if _, err := s.GetAlert(ctx, "user-1", "a-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("alert was committed without its event: %v", err)
	}

	if err := s.RecordConflict(ctx, newAlert("a-1", at(9, 0)), newEvent("e-2", constants.EventConflictDetected, at(9, 0))); err != nil {
		t.Fatalf("RecordConflict failed: %v", err)
	}
	if _, err := s.GetAlert(ctx, "user-1", "a-1"); err != nil {
		t.Errorf("GetAlert after RecordConflict failed: %v", err)
	}
	if _, err := s.GetEvent(ctx, "e-2"); err != nil {
		t.Errorf("GetEvent after RecordConflict failed: %v", err)
	}
}

func testEventAcks(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	for i, id := range []string{"e-3", "e-1", "e-2"} {
		created := at(9, 0).Add(time.Duration([]int{3, 1, 2}[i]) * time.Second)
		if err := s.AddEvent(ctx, newEvent(id, constants.EventCalendarSynced, created)); err != nil {
			t.Fatalf("AddEvent(%s) failed: %v", id, err)
		}
	}

	list, err := s.ListUnprocessedEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListUnprocessedEvents failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e-1" || list[1].ID != "e-2" {
		t.Fatalf("ListUnprocessedEvents() = %+v, want e-1, e-2", list)
	}
	if len(list[0].ProcessedBy) != 0 {
		t.Errorf("fresh event already processed by %v", list[0].ProcessedBy)
	}

	added, err := s.MarkProcessed(ctx, "e-1", constants.SubscriberGuardian)
	if err != nil || !added {
		t.Fatalf("MarkProcessed() = %v, %v; want true, nil", added, err)
	}
	added, err = s.MarkProcessed(ctx, "e-1", constants.SubscriberGuardian)
	if err != nil || added {
		t.Fatalf("repeated MarkProcessed() = %v, %v; want false, nil", added, err)
	}

	event, err := s.GetEvent(ctx, "e-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if !event.IsProcessedBy(constants.SubscriberGuardian) || event.IsComplete() {
		t.Errorf("ProcessedBy = %v", event.ProcessedBy)
	}
	if string(event.Payload) != `{"k":"v"}` {
		t.Errorf("payload = %s", event.Payload)
	}

	if _, err := s.MarkProcessed(ctx, "e-1", constants.ProcessedAllSentinel); err != nil {
		t.Fatalf("MarkProcessed(all) failed: %v", err)
	}
	list, err = s.ListUnprocessedEvents(ctx, 20)
	if err != nil {
		t.Fatalf("ListUnprocessedEvents failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e-2" || list[1].ID != "e-3" {
		t.Errorf("completed event still listed: %+v", list)
	}

	if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("GetEvent(missing) error = %v, want ErrNotFound", err)
	}
}

func testEventAttempts(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	for i, id := range []string{"e-1", "e-2", "e-3"} {
		if err := s.AddEvent(ctx, newEvent(id, constants.EventCalendarSynced, at(9, i))); err != nil {
			t.Fatalf("AddEvent(%s) failed: %v", id, err)
		}
	}

	if err := s.MarkAttempted(ctx, "e-1", at(10, 0)); err != nil {
		t.Fatalf("MarkAttempted(e-1) failed: %v", err)
	}
	if err := s.MarkAttempted(ctx, "e-2", at(9, 30)); err != nil {
		t.Fatalf("MarkAttempted(e-2) failed: %v", err)
	}

	list, err := s.ListUnprocessedEvents(ctx, 20)
	if err != nil {
		t.Fatalf("ListUnprocessedEvents failed: %v", err)
	}
	var ids []string
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	if len(ids) != 3 || ids[0] != "e-3" || ids[1] != "e-2" || ids[2] != "e-1" {
		t.Errorf("ListUnprocessedEvents() order = %v, want [e-3 e-2 e-1]", ids)
	}

	if err := s.MarkAttempted(ctx, "missing", at(10, 0)); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("MarkAttempted(missing) error = %v, want ErrNotFound", err)
	}
}

func testConcurrentMarkProcessed(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	if err := s.AddEvent(ctx, newEvent("e-1", constants.EventConflictDetected, at(9, 0))); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := s.MarkProcessed(ctx, "e-1", constants.SubscriberOrchestrator)
			if err != nil {
				t.Errorf("MarkProcessed failed: %v", err)
				return
			}
			if added {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d concurrent callers won the append, want exactly 1", wins)
	}
	event, err := s.GetEvent(ctx, "e-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if len(event.ProcessedBy) != 1 {
		t.Errorf("ProcessedBy = %v, want a single entry", event.ProcessedBy)
	}
}

func testResolutionAttempts(t *testing.T, s storage.Provider) {
	ctx := context.Background()
	attempts := []models.ResolutionAttempt{
		{ID: "r-1", UserID: "user-1", AlertID: "a-1", StrategyID: "s-1", State: models.AttemptCompensated, Applied: 1, FailureReason: "disk full", CreatedAt: at(9, 0)},
		{ID: "r-2", UserID: "user-1", AlertID: "a-1", StrategyID: "s-1", State: models.AttemptApplied, Applied: 2, Skipped: 1, CreatedAt: at(9, 5)},
	}
	for _, a := range attempts {
		if err := s.AddResolutionAttempt(ctx, a); err != nil {
			t.Fatalf("AddResolutionAttempt failed: %v", err)
		}
	}

	got, err := s.ListResolutionAttempts(ctx, "user-1", "a-1")
	if err != nil {
		t.Fatalf("ListResolutionAttempts failed: %v", err)
	}
	if len(got) != 2 || got[0].State != models.AttemptCompensated || got[1].Skipped != 1 {
		t.Errorf("ListResolutionAttempts() = %+v", got)
	}
	if got[0].FailureReason != "disk full" {
		t.Errorf("failure reason = %q", got[0].FailureReason)
	}
}
