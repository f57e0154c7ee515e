package models

import (
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
)

func TestParseAlertType(t *testing.T) {
	tests := []struct {
		in    string
		want  AlertType
		known bool
	}{
		{"conflict", AlertConflict, true},
		{"CRITICAL", AlertCritical, true},
		{" warning ", AlertWarning, true},
		{"catastrophic", AlertWarning, false},
		{"", AlertWarning, false},
	}

	for _, tt := range tests {
		got, known := ParseAlertType(tt.in)
		if got != tt.want || known != tt.known {
			t.Errorf("ParseAlertType(%q) = %q, %v; want %q, %v", tt.in, got, known, tt.want, tt.known)
		}
	}
}

func TestScheduleBlockValidate(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	block := ScheduleBlock{ID: "b1", UserID: "u1", BlockType: BlockMeeting, StartTime: start, EndTime: start.Add(time.Hour)}
	if err := block.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if block.DurationMinutes() != 60 {
		t.Errorf("DurationMinutes() = %d, want 60", block.DurationMinutes())
	}

	block.EndTime = start
	if err := block.Validate(); err == nil {
		t.Error("expected error for zero-length block")
	}

	block.EndTime = start.Add(time.Hour)
	block.BlockType = "nap"
	if err := block.Validate(); err == nil {
		t.Error("expected error for unknown block type")
	}
}

func TestPreferencesMapping(t *testing.T) {
	prefs := MapToPreferences("u1", map[string]string{
		constants.SettingAutoResolve:     "true",
		constants.SettingResolutionStyle: "move",
		constants.SettingTimezone:        "Europe/Berlin",
		"unknown_key":                    "ignored",
	})
	if !prefs.AutoResolve || prefs.ResolutionStyle != "move" || prefs.Timezone != "Europe/Berlin" {
		t.Errorf("unexpected preferences: %+v", prefs)
	}

	ApplyDefaultPreferences(&prefs)
	if prefs.WorkStart != constants.DefaultWorkStart || prefs.WorkEnd != constants.DefaultWorkEnd {
		t.Errorf("defaults not applied: %+v", prefs)
	}

	roundTrip := MapToPreferences("u1", PreferencesToMap(prefs))
	if roundTrip != prefs {
		t.Errorf("round trip mismatch: %+v vs %+v", roundTrip, prefs)
	}
}

func TestAgentEventProcessedBy(t *testing.T) {
	evt := AgentEvent{ID: "e1", ProcessedBy: []string{"guardian"}}
	if !evt.IsProcessedBy("guardian") || evt.IsProcessedBy("orchestrator") {
		t.Error("IsProcessedBy() mismatch")
	}
	if evt.IsComplete() {
		t.Error("event should not be complete without sentinel")
	}
	evt.ProcessedBy = append(evt.ProcessedBy, constants.ProcessedAllSentinel)
	if !evt.IsComplete() {
		t.Error("event should be complete with sentinel")
	}

	var payload CalendarSyncedPayload
	if err := evt.DecodePayload(&payload); err == nil {
		t.Error("expected error decoding empty payload")
	}
}
