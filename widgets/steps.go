package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-conductor/melody"
	"go-conductor/sequencer"
	"go-conductor/theme"
)

// StepCells returns one symbol per step with the current step marked.
// Exported separately from RenderSteps so the layout can be checked
// without styling.
func StepCells(sym theme.Symbols, st sequencer.State) []rune {
	cells := make([]rune, melody.Steps)
	for i := range cells {
		cells[i] = sym.StepNote
		if !st.Playing {
			cells[i] = sym.StepIdle
		}
	}
	if st.Playing {
		if st.InGap {
			cells[st.Step] = sym.StepGap
		} else {
			cells[st.Step] = sym.StepPlayhead
		}
	}
	return cells
}

// RenderSteps draws the 32 steps in two rows of 16, each note colored by
// its pitch offset.
func RenderSteps(th *theme.Theme, table *melody.Table, st sequencer.State) string {
	cells := StepCells(th.Symbols, st)
	lo, hi := offsetRange(table)

	var rows []string
	for r := 0; r < 2; r++ {
		var line strings.Builder
		for i := r * 16; i < (r+1)*16; i++ {
			color := th.Muted()
			switch {
			case st.Playing && i == st.Step:
				color = th.Active()
			case st.Playing:
				norm := 0.5
				if hi > lo {
					norm = 0.3 + 0.4*float64(table.Offsets[i]-lo)/float64(hi-lo)
				}
				color = th.Color(norm)
			}
			line.WriteString(lipgloss.NewStyle().Foreground(color).Render(string(cells[i])))
			if i%4 == 3 {
				line.WriteString("  ")
			} else {
				line.WriteString(" ")
			}
		}
		rows = append(rows, line.String())
	}
	return strings.Join(rows, "\n")
}

func offsetRange(t *melody.Table) (lo, hi int) {
	lo, hi = t.Offsets[0], t.Offsets[0]
	for _, o := range t.Offsets {
		lo = min(lo, o)
		hi = max(hi, o)
	}
	return lo, hi
}

// MeterCells draws volume out of full as filled and empty cells
func MeterCells(sym theme.Symbols, volume, full int) string {
	volume = max(0, min(full, volume))
	return strings.Repeat(string(sym.Meter), volume) + strings.Repeat(string(sym.Empty), full-volume)
}

// RenderMeter shows the volume, dimmed when muted
func RenderMeter(th *theme.Theme, volume, full int, muted bool) string {
	color := th.Success()
	label := fmt.Sprintf(" %2d", volume)
	if muted {
		color = th.Muted()
		label += " muted"
	}
	return lipgloss.NewStyle().Foreground(color).Render(MeterCells(th.Symbols, volume, full)) + label
}
