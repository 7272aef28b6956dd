// Package melody holds the immutable note tables the sequencer steps through
// and the frequency index to period lookup the tone engine ticks at.
package melody

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go-conductor/policy"
)

// Steps is the fixed length of every melody.
const Steps = 32

// Frequency index range covered by the period table.
const (
	MinFreqIdx = -10
	MaxFreqIdx = 14
)

// Beat multipliers. A step lasts beat(tempo) / multiplier.
const (
	BeatA = 1.0
	BeatB = BeatA / 2
	BeatC = BeatA * 2
)

// periods are half-periods in microseconds, MinFreqIdx first. Index 0 is A4.
var periods = [MaxFreqIdx - MinFreqIdx + 1]int{
	2024, 1911, 1803, 1702, 1607, 1516, 1431, 1351, 1275,
	1203, 1136, 1072, 1012, 955, 901, 851, 803, 758,
	715, 675, 637, 601, 568, 536, 506,
}

// Period returns the toggle interval for a frequency index. ok is false when
// idx is outside [MinFreqIdx, MaxFreqIdx].
func Period(idx int) (time.Duration, bool) {
	if idx < MinFreqIdx || idx > MaxFreqIdx {
		return 0, false
	}
	return time.Duration(periods[idx-MinFreqIdx]) * time.Microsecond, true
}

// Table is one melody: a pitch offset and a beat multiplier per step.
type Table struct {
	Name    string
	Offsets [Steps]int
	Beats   [Steps]float64
}

// StepDuration is 60000 / (tempo * beat) milliseconds, truncated.
func StepDuration(tempo int, beat float64) time.Duration {
	return time.Duration(60000/(float64(tempo)*beat)) * time.Millisecond
}

// Validate checks that every step can be sounded at some key in
// [minKey, maxKey] and that every step outlasts the articulation gap at the
// fastest tapped tempo.
func (t *Table) Validate(minKey, maxKey int) error {
	if t.Name == "" {
		return fmt.Errorf("melody has no name")
	}
	for i := 0; i < Steps; i++ {
		if t.Beats[i] <= 0 {
			return fmt.Errorf("melody %q: step %d has beat %v", t.Name, i, t.Beats[i])
		}
		if d := StepDuration(policy.RelaxedMaxTempo, t.Beats[i]); d <= policy.GapSilence {
			return fmt.Errorf("melody %q: step %d beat %v lasts %v at %d bpm, not longer than the %v gap",
				t.Name, i, t.Beats[i], d, policy.RelaxedMaxTempo, policy.GapSilence)
		}
		if lo := t.Offsets[i] + minKey; lo < MinFreqIdx {
			return fmt.Errorf("melody %q: step %d offset %d below range at key %d", t.Name, i, t.Offsets[i], minKey)
		}
		if hi := t.Offsets[i] + maxKey; hi > MaxFreqIdx {
			return fmt.Errorf("melody %q: step %d offset %d above range at key %d", t.Name, i, t.Offsets[i], maxKey)
		}
	}
	return nil
}

// FromSlices builds a table from config data. Both slices must have exactly
// Steps entries.
func FromSlices(name string, offsets []int, beats []float64) (*Table, error) {
	if len(offsets) != Steps || len(beats) != Steps {
		return nil, fmt.Errorf("melody %q: need %d offsets and beats, got %d and %d", name, Steps, len(offsets), len(beats))
	}
	t := &Table{Name: name}
	copy(t.Offsets[:], offsets)
	copy(t.Beats[:], beats)
	return t, nil
}

var BrotherJohn = &Table{
	Name: "brother-john",
	Offsets: [Steps]int{
		0, 2, 4, 0, 0, 2, 4, 0,
		4, 5, 7, 4, 5, 7, 7, 9,
		7, 5, 4, 0, 7, 9, 7, 5,
		4, 0, 0, -5, 0, 0, -5, 0,
	},
	Beats: [Steps]float64{
		BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatA,
		BeatA, BeatA, BeatB, BeatA, BeatA, BeatB, BeatC, BeatC,
		BeatC, BeatC, BeatA, BeatA, BeatC, BeatC, BeatC, BeatC,
		BeatA, BeatA, BeatA, BeatA, BeatB, BeatA, BeatA, BeatB,
	},
}

// Twinkle is 28 notes long; the last four steps lead back into the opening
// phrase so every table has Steps entries.
var Twinkle = &Table{
	Name: "twinkle",
	Offsets: [Steps]int{
		0, 0, 7, 7, 9, 9, 7,
		5, 5, 4, 4, 2, 2, 0,
		7, 7, 5, 5, 4, 4, 2,
		7, 7, 5, 5, 4, 4, 2,
		0, 0, 7, 7,
	},
	Beats: [Steps]float64{
		BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatB,
		BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatB,
		BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatB,
		BeatA, BeatA, BeatA, BeatA, BeatA, BeatA, BeatB,
		BeatA, BeatA, BeatA, BeatA,
	},
}

// Default is the melody a node starts with.
var Default = BrotherJohn

// Library maps names to tables. The built-ins are always present.
type Library struct {
	tables map[string]*Table
}

// NewLibrary returns a library holding the built-in melodies.
func NewLibrary() *Library {
	return &Library{tables: map[string]*Table{
		BrotherJohn.Name: BrotherJohn,
		Twinkle.Name:     Twinkle,
	}}
}

// Add registers t, replacing any table with the same name.
func (l *Library) Add(t *Table) {
	l.tables[strings.ToLower(t.Name)] = t
}

// ByName looks a melody up, case-insensitively.
func (l *Library) ByName(name string) (*Table, bool) {
	t, ok := l.tables[strings.ToLower(name)]
	return t, ok
}

// Names returns the registered names, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.tables))
	for name := range l.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
