package interval

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	apperrors "github.com/julianstephens/daylitd/internal/errors"
)

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:15", 555, false},
		{"23:59", 1439, false},
		{"9:05", 545, false},
		{"9:30 AM", 570, false},
		{"9:30 pm", 1290, false},
		{"12:00 AM", 0, false},
		{"12:45 PM", 765, false},
		{"12:00pm", 720, false},
		{"24:00", 0, true},
		{"13:00 PM", 0, true},
		{"10:60", 0, true},
		{"10", 0, true},
		{"10:00:00", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := TimeToMinutes(tt.input)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidTimeFormat) {
					t.Fatalf("TimeToMinutes(%q) error = %v, want ErrInvalidTimeFormat", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("TimeToMinutes(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("TimeToMinutes(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasOverlap(t *testing.T) {
	tests := []struct {
		name                   string
		startA, endA, sB, endB int
		want                   bool
	}{
		{"partial overlap", 540, 570, 555, 600, true},
		{"adjacent", 540, 570, 570, 600, false},
		{"contained", 540, 600, 550, 560, true},
		{"disjoint", 540, 570, 600, 630, false},
		{"identical", 540, 570, 540, 570, true},
		{"zero length inside", 540, 600, 560, 560, false},
		{"zero length with itself", 560, 560, 560, 560, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasOverlap(tt.startA, tt.endA, tt.sB, tt.endB); got != tt.want {
				t.Errorf("HasOverlap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasOverlapSymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		a := randomInterval(r)
		b := randomInterval(r)
		if a.Overlaps(b) != b.Overlaps(a) {
			t.Fatalf("overlap not symmetric for %v and %v", a, b)
		}
	}
}

func TestMergeIntervals(t *testing.T) {
	busy := []Interval{{480, 540}, {540, 570}, {600, 615}}
	want := []Interval{{480, 570}, {600, 615}}
	if got := MergeIntervals(busy); !reflect.DeepEqual(got, want) {
		t.Errorf("MergeIntervals() = %v, want %v", got, want)
	}

	unsorted := []Interval{{600, 615}, {500, 700}, {480, 490}}
	want = []Interval{{480, 490}, {500, 700}}
	if got := MergeIntervals(unsorted); !reflect.DeepEqual(got, want) {
		t.Errorf("MergeIntervals(unsorted) = %v, want %v", got, want)
	}
	if unsorted[0].Start != 600 {
		t.Error("MergeIntervals modified its input")
	}

	if got := MergeIntervals(nil); got == nil || len(got) != 0 {
		t.Errorf("MergeIntervals(nil) = %v, want empty non-nil", got)
	}
}

func TestMergeIntervalsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		busy := randomBusy(r)
		once := MergeIntervals(busy)
		twice := MergeIntervals(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("merge not idempotent: %v then %v", once, twice)
		}
	}
}

func TestFreeSlotsExample(t *testing.T) {
	busy := []Interval{{480, 540}, {540, 570}, {600, 615}}
	got := FreeSlots(0, 1439, busy)
	want := []FreeSlot{
		{Start: 0, End: 480, DurationMinutes: 480},
		{Start: 570, End: 600, DurationMinutes: 30},
		{Start: 615, End: 1439, DurationMinutes: 824},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FreeSlots() = %v, want %v", got, want)
	}
}

func TestFreeSlotsDropsMicroGaps(t *testing.T) {
	busy := []Interval{{540, 600}, {610, 660}}
	for _, s := range FreeSlots(0, 1439, busy) {
		if s.Start == 600 {
			t.Errorf("10 minute gap should have been dropped: %v", s)
		}
	}
	if got := FreeSlots(0, 1439, []Interval{{0, 1439}}); len(got) != 0 {
		t.Errorf("fully busy day should have no free slots, got %v", got)
	}
}

func TestFreeSlotsClipsToWindow(t *testing.T) {
	got := FreeSlots(0, 1439, []Interval{{-60, 60}, {1400, 1500}})
	want := []FreeSlot{{Start: 60, End: 1400, DurationMinutes: 1340}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FreeSlots() = %v, want %v", got, want)
	}
}

// Gaps plus the merged busy set must tile the window exactly.
func TestGapsComplementBusy(t *testing.T) {
	const dayStart, dayEnd = 0, 1439
	r := rand.New(rand.NewSource(3))

	for i := 0; i < 500; i++ {
		busy := randomBusy(r)
		covered := make([]int, dayEnd-dayStart)

		for _, b := range MergeIntervals(busy) {
			for m := b.Start; m < b.End; m++ {
				covered[m]++
			}
		}
		for _, g := range Gaps(dayStart, dayEnd, busy) {
			if g.DurationMinutes != g.End-g.Start {
				t.Fatalf("slot %v has wrong duration", g)
			}
			for m := g.Start; m < g.End; m++ {
				covered[m]++
			}
		}
		for m, c := range covered {
			if c != 1 {
				t.Fatalf("minute %d covered %d times for busy set %v", m, c, busy)
			}
		}
	}
}

func TestFormatMinutes(t *testing.T) {
	if got := FormatMinutes(615); got != "10:15" {
		t.Errorf("FormatMinutes(615) = %s, want 10:15", got)
	}
	if got := FormatMinutes(0); got != "00:00" {
		t.Errorf("FormatMinutes(0) = %s, want 00:00", got)
	}
}

func randomInterval(r *rand.Rand) Interval {
	start := r.Intn(1440)
	return Interval{Start: start, End: start + r.Intn(120)}
}

// randomBusy returns intervals confined to [0, 1439].
func randomBusy(r *rand.Rand) []Interval {
	n := r.Intn(8)
	busy := make([]Interval, 0, n)
	for j := 0; j < n; j++ {
		start := r.Intn(1439)
		end := start + 1 + r.Intn(1439-start)
		busy = append(busy, Interval{Start: start, End: min(end, 1439)})
	}
	return busy
}
