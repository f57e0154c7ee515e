package negotiator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/reasoning"
	"github.com/julianstephens/daylitd/internal/storage/memory"
)

type fakeDecider struct {
	response string
	prompt   string
	calls    int
}

func (d *fakeDecider) Decide(_ context.Context, prompt string, out interface{}) error {
	d.calls++
	d.prompt = prompt
	return reasoning.DecodeJSON(d.response, out)
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// Day: dentist 09:00-09:30 over deep work b1 09:00-10:30, meeting b2
// 11:00-12:00, pinned admin b3 13:00-14:00.
func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := store.SaveCalendarEvent(ctx, models.CalendarEvent{
		ID: "cal-1", UserID: "u1", Title: "Dentist", StartAt: ptr(at(9, 0)), EndAt: ptr(at(9, 30)),
	}); err != nil {
		t.Fatal(err)
	}
	blocks := []models.ScheduleBlock{
		{ID: "b1", UserID: "u1", Title: "Write design doc", BlockType: models.BlockDeepWork, StartTime: at(9, 0), EndTime: at(10, 30)},
		{ID: "b2", UserID: "u1", Title: "1:1", BlockType: models.BlockMeeting, StartTime: at(11, 0), EndTime: at(12, 0)},
		{ID: "b3", UserID: "u1", Title: "Expenses", BlockType: models.BlockAdmin, StartTime: at(13, 0), EndTime: at(14, 0), Pinned: true},
	}
	for _, b := range blocks {
		if err := store.AddBlock(ctx, b); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func buildDay(t *testing.T, store *memory.Store) *daycontext.DayContext {
	t.Helper()
	day, err := daycontext.NewBuilder(store).Build(context.Background(), "u1", "2025-03-10", "UTC")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return day
}

func strategy(id string, ops string) string {
	return fmt.Sprintf(`{"id": %q, "title": "Title %s", "description": "d", "impact": "low", "action": "move", "operations": [%s]}`, id, id, ops)
}

func respond(first string) string {
	return `{"strategies": [` + strings.Join([]string{
		first,
		strategy("drop", `{"type": "delete", "targetBlockId": "b1"}`),
		strategy("ask", ``),
	}, ",") + `]}`
}

func move(target string, shift int) string {
	return fmt.Sprintf(`{"type": "move", "targetBlockId": %q, "params": {"shiftMinutes": %d}}`, target, shift)
}

func resize(target string, duration int) string {
	return fmt.Sprintf(`{"type": "resize", "targetBlockId": %q, "params": {"durationMinutes": %d}}`, target, duration)
}

func negotiate(t *testing.T, response string) ([]models.Strategy, error) {
	t.Helper()
	store := seed(t)
	day := buildDay(t, store)
	b1, _ := day.Block("b1")
	n := New(store, &fakeDecider{response: response})
	return n.Negotiate(context.Background(), Request{
		Alert:  models.ScheduleAlert{ID: "a1", Type: models.AlertConflict, Message: "Dentist overlaps deep work", Severity: 7},
		Blocks: []models.ScheduleBlock{b1},
		Day:    day,
	})
}

func guardrailCode(err error) errors.Code {
	var g *errors.GuardrailViolationError
	if stderrors.As(err, &g) {
		return g.Code
	}
	return ""
}

func TestNegotiateAccepts(t *testing.T) {
	strategies, err := negotiate(t, respond(strategy("later", move("b1", 300))))
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if len(strategies) != 3 {
		t.Fatalf("strategies = %d, want 3", len(strategies))
	}
	first := strategies[0]
	if first.Impact != models.ImpactLow {
		t.Errorf("Impact = %q, want normalized Low", first.Impact)
	}
	if len(first.Operations) != 1 {
		t.Fatalf("operations = %d, want 1", len(first.Operations))
	}
	if op, ok := first.Operations[0].(models.MoveOperation); !ok || op.ShiftMinutes != 300 || op.TargetBlockID != "b1" {
		t.Errorf("operation = %#v", first.Operations[0])
	}
	if strategies[2].Operations == nil {
		t.Error("absent operations should decode to an empty slice")
	}
}

func TestNegotiateContract(t *testing.T) {
	two := `{"strategies": [` + strategy("a", "") + `,` + strategy("b", "") + `]}`
	four := `{"strategies": [` + strings.Repeat(strategy("x", "")+",", 3) + strategy("y", "") + `]}`
	missingTitle := respond(`{"id": "untitled", "description": "d", "impact": "Low", "action": "move"}`)
	duplicate := `{"strategies": [` + strategy("a", "") + `,` + strategy("a", "") + `,` + strategy("b", "") + `]}`
	badOp := respond(strategy("bad", `{"type": "teleport", "targetBlockId": "b1"}`))

	tests := []struct {
		name     string
		response string
		want     errors.Code
	}{
		{"two strategies", two, errors.CodeInvalidStrategyCount},
		{"four strategies", four, errors.CodeInvalidStrategyCount},
		{"no strategies key", `{"ideas": []}`, errors.CodeInvalidStrategyCount},
		{"missing title", missingTitle, errors.CodeMissingStrategyField},
		{"duplicate id", duplicate, errors.CodeInvalidResponseShape},
		{"unknown operation", badOp, errors.CodeInvalidResponseShape},
		{"not json", "I would move the block", errors.CodeInvalidResponseShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategies, err := negotiate(t, tt.response)
			if got := guardrailCode(err); got != tt.want {
				t.Fatalf("error = %v (code %q), want %s", err, got, tt.want)
			}
			if strategies != nil {
				t.Errorf("strategies = %v, want nil on rejection", strategies)
			}
		})
	}
}

func TestNegotiatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		ops     string
		wantErr bool
	}{
		{"move into free afternoon", move("b1", 300), false},
		{"move earlier into morning", move("b1", -180), false},
		{"move onto meeting", move("b1", 90), true},
		{"move still over event", move("b1", 0), true},
		{"move off the day", move("b1", -600), true},
		{"pinned block", move("b3", 120), true},
		{"unknown block is skipped", move("ghost", 30), false},
		{"unknown block beside valid delete", `{"type": "delete", "targetBlockId": "b2"}, ` + move("ghost", 30), false},
		{"unknown block does not hide violation", move("ghost", 30) + `, ` + move("b1", 90), true},
		{"deep work too short", resize("b1", 30), true},
		{"deep work at minimum", resize("b1", 60), false},
		{"zero duration", resize("b2", 0), true},
		{"meeting shortened", resize("b2", 30), false},
		{"delete frees slot for later move", `{"type": "delete", "targetBlockId": "b2"}, ` + move("b1", 120), false},
		{"target deleted earlier", `{"type": "delete", "targetBlockId": "b1"}, ` + move("b1", 300), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := negotiate(t, respond(strategy("s", tt.ops)))
			if tt.wantErr {
				if got := guardrailCode(err); got != errors.CodePolicyViolation {
					t.Fatalf("error = %v, want POLICY_VIOLATION", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
		})
	}
}

func TestNegotiateAlert(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	if err := store.AddAlert(ctx, models.ScheduleAlert{
		ID: "a1", UserID: "u1", Type: models.AlertConflict, Message: "Dentist overlaps deep work",
		Severity: 7, RelatedBlockIDs: []string{"b1", "ghost"}, Status: models.AlertPending,
	}); err != nil {
		t.Fatal(err)
	}

	decider := &fakeDecider{response: respond(strategy("later", move("b1", 300)))}
	n := New(store, decider)

	proposal, err := n.NegotiateAlert(ctx, "u1", "a1", "2025-03-10", "UTC")
	if err != nil {
		t.Fatalf("NegotiateAlert() error = %v", err)
	}
	if len(proposal.Blocks) != 1 || proposal.Blocks[0].ID != "b1" {
		t.Errorf("Blocks = %v, want only b1", proposal.Blocks)
	}
	if len(proposal.Strategies) != 3 {
		t.Errorf("Strategies = %d, want 3", len(proposal.Strategies))
	}
	for _, want := range []string{"id=b1", "Dentist", "14:00-23:59", "exactly 3"} {
		if !strings.Contains(decider.prompt, want) {
			t.Errorf("prompt does not mention %q", want)
		}
	}

	var val *errors.ValidationError
	if _, err := n.NegotiateAlert(ctx, "u1", "", "2025-03-10", "UTC"); !stderrors.As(err, &val) {
		t.Errorf("missing alert id error = %v, want ValidationError", err)
	}
	if _, err := n.NegotiateAlert(ctx, "u1", "nope", "2025-03-10", "UTC"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown alert error = %v, want ErrNotFound", err)
	}
	if _, err := n.NegotiateAlert(ctx, "u1", "a1", "2025-03-11", "UTC"); !stderrors.As(err, &val) {
		t.Errorf("off-day alert error = %v, want ValidationError", err)
	}
}
