package melody

import (
	"testing"
	"time"
)

func TestPeriod(t *testing.T) {
	tests := []struct {
		idx  int
		want time.Duration
		ok   bool
	}{
		{0, 1136 * time.Microsecond, true},
		{MinFreqIdx, 2024 * time.Microsecond, true},
		{MaxFreqIdx, 506 * time.Microsecond, true},
		{MinFreqIdx - 1, 0, false},
		{MaxFreqIdx + 1, 0, false},
	}
	for _, tt := range tests {
		got, ok := Period(tt.idx)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Period(%d) = %v, %v; want %v, %v", tt.idx, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPeriodsShrinkWithPitch(t *testing.T) {
	prev, _ := Period(MinFreqIdx)
	for idx := MinFreqIdx + 1; idx <= MaxFreqIdx; idx++ {
		p, _ := Period(idx)
		if p >= prev {
			t.Fatalf("period at %d (%v) not shorter than at %d (%v)", idx, p, idx-1, prev)
		}
		prev = p
	}
}

func TestBuiltinsPlayableAtEveryKey(t *testing.T) {
	for _, tbl := range []*Table{BrotherJohn, Twinkle} {
		if err := tbl.Validate(-5, 5); err != nil {
			t.Errorf("%s: %v", tbl.Name, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	high := *BrotherJohn
	high.Offsets[3] = 12

	zero := *Twinkle
	zero.Beats[31] = 0

	unnamed := *Twinkle
	unnamed.Name = ""

	// 60000/(300*4) = 50ms, shorter than the gap
	fast := *BrotherJohn
	fast.Beats[7] = 4

	// 60000/(300*2.4) = 83ms
	edge := *BrotherJohn
	edge.Beats[0] = 2.4

	for name, tbl := range map[string]*Table{
		"high":      &high,
		"zero beat": &zero,
		"unnamed":   &unnamed,
		"fast beat": &fast,
		"edge beat": &edge,
	} {
		if err := tbl.Validate(-5, 5); err == nil {
			t.Errorf("%s: Validate succeeded, want error", name)
		}
	}
}

func TestStepOutlastsGap(t *testing.T) {
	tests := []struct {
		beat float64
		ok   bool
	}{
		{BeatB, true},
		{BeatA, true},
		{BeatC, true},
		{2.3, true}, // 86ms at 300 bpm
		{2.35, false},
		{4, false},
	}
	for _, tt := range tests {
		tbl := *Twinkle
		tbl.Beats[5] = tt.beat
		if err := tbl.Validate(-5, 5); (err == nil) != tt.ok {
			t.Errorf("beat %v: Validate = %v, want ok %v", tt.beat, err, tt.ok)
		}
	}
}

func TestStepDuration(t *testing.T) {
	tests := []struct {
		tempo int
		beat  float64
		want  time.Duration
	}{
		{120, BeatA, 500 * time.Millisecond},
		{120, BeatB, 1000 * time.Millisecond},
		{120, BeatC, 250 * time.Millisecond},
		{70, BeatA, 857 * time.Millisecond},
		{300, BeatC, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := StepDuration(tt.tempo, tt.beat); got != tt.want {
			t.Errorf("StepDuration(%d, %v) = %v, want %v", tt.tempo, tt.beat, got, tt.want)
		}
	}
}

func TestFromSlices(t *testing.T) {
	offsets := make([]int, Steps)
	beats := make([]float64, Steps)
	for i := range beats {
		beats[i] = BeatA
	}
	tbl, err := FromSlices("scale", offsets, beats)
	if err != nil {
		t.Fatalf("FromSlices: %v", err)
	}
	if tbl.Beats[31] != BeatA {
		t.Fatalf("beats not copied")
	}
	if _, err := FromSlices("short", offsets[:10], beats); err == nil {
		t.Fatalf("short table accepted")
	}
}

func TestLibrary(t *testing.T) {
	lib := NewLibrary()
	if _, ok := lib.ByName("Twinkle"); !ok {
		t.Fatalf("lookup is not case-insensitive")
	}
	custom := *BrotherJohn
	custom.Name = "Custom"
	lib.Add(&custom)

	names := lib.Names()
	want := []string{"brother-john", "custom", "twinkle"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}
