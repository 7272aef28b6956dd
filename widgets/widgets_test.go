package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/key"

	"go-conductor/melody"
	"go-conductor/sequencer"
	"go-conductor/theme"
)

func TestStepCells(t *testing.T) {
	sym := theme.New(nil).Symbols

	tests := []struct {
		name  string
		st    sequencer.State
		at    int
		want  rune
		other rune
	}{
		{"stopped", sequencer.State{}, 0, sym.StepIdle, sym.StepIdle},
		{"sounding", sequencer.State{Playing: true, Step: 5}, 5, sym.StepPlayhead, sym.StepNote},
		{"gap", sequencer.State{Playing: true, Step: 31, InGap: true}, 31, sym.StepGap, sym.StepNote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := StepCells(sym, tt.st)
			if len(cells) != melody.Steps {
				t.Fatalf("%d cells, want %d", len(cells), melody.Steps)
			}
			if cells[tt.at] != tt.want {
				t.Fatalf("cell %d = %c, want %c", tt.at, cells[tt.at], tt.want)
			}
			if cells[(tt.at+1)%melody.Steps] != tt.other {
				t.Fatalf("neighbour = %c, want %c", cells[(tt.at+1)%melody.Steps], tt.other)
			}
		})
	}
}

func TestRenderStepsTwoRows(t *testing.T) {
	th := theme.New(nil)
	out := RenderSteps(th, melody.BrotherJohn, sequencer.State{Playing: true, Step: 3})
	if n := strings.Count(out, "\n"); n != 1 {
		t.Fatalf("%d line breaks, want 1", n)
	}
	if strings.Count(out, string(th.Symbols.StepPlayhead)) != 1 {
		t.Fatalf("playhead not drawn once: %q", out)
	}
}

func TestMeterCells(t *testing.T) {
	sym := theme.New(nil).Symbols
	tests := []struct {
		volume, full int
		filled       int
	}{
		{5, 25, 5},
		{25, 25, 25},
		{30, 25, 25},
		{-1, 25, 0},
	}
	for _, tt := range tests {
		got := MeterCells(sym, tt.volume, tt.full)
		if n := strings.Count(got, string(sym.Meter)); n != tt.filled {
			t.Fatalf("MeterCells(%d) filled %d, want %d", tt.volume, n, tt.filled)
		}
		if n := len([]rune(got)); n != tt.full {
			t.Fatalf("MeterCells(%d) width %d, want %d", tt.volume, n, tt.full)
		}
	}
}

func TestSection(t *testing.T) {
	up := key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "volume up"))
	off := key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "nothing"), key.WithDisabled())

	sec := Section("Sound", up, off)
	if len(sec.Keys) != 1 || sec.Keys[0].Desc != "volume up" {
		t.Fatalf("section = %+v", sec)
	}
	out := RenderKeyHelp([]KeySection{sec})
	if !strings.HasPrefix(out, "Sound\n") || !strings.Contains(out, "volume up") {
		t.Fatalf("RenderKeyHelp = %q", out)
	}
}
