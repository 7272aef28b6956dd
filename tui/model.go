package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-conductor/node"
	"go-conductor/policy"
	"go-conductor/sequencer"
	"go-conductor/tap"
	"go-conductor/theme"
	"go-conductor/widgets"
)

// historyLines is how much of the node's report history the console shows
const historyLines = 8

type Model struct {
	Node  *node.Node
	Seq   *sequencer.Sequencer
	Tap   *tap.Estimator
	Theme *theme.Theme

	keys     keyMap
	help     help.Model
	full     bool
	last     node.Result
	quitting bool
}

type UpdateMsg struct{}

func NewModel(n *node.Node, seq *sequencer.Sequencer, est *tap.Estimator, th *theme.Theme) Model {
	return Model{
		Node:  n,
		Seq:   seq,
		Tap:   est,
		Theme: th,
		keys:  newKeyMap(),
		help:  help.New(),
	}
}

func ListenForUpdates(n *node.Node) tea.Cmd {
	return func() tea.Msg {
		<-n.Updates()
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Node)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.Node)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.VolumeUp):
		m.last = m.Node.IncreaseVolume()
	case key.Matches(msg, m.keys.VolumeDown):
		m.last = m.Node.DecreaseVolume()
	case key.Matches(msg, m.keys.Mute):
		m.last = m.Node.ToggleMute()
	case key.Matches(msg, m.keys.Tempo):
		m.last = m.Node.CommitTempo()
	case key.Matches(msg, m.keys.Key):
		m.last = m.Node.CommitKey()
	case key.Matches(msg, m.keys.Play):
		m.last = m.Node.Play()
	case key.Matches(msg, m.keys.Stop):
		m.last = m.Node.Stop()
	case key.Matches(msg, m.keys.Conductor):
		m.last = m.Node.BecomeConductor()
	case key.Matches(msg, m.keys.Musician):
		m.last = m.Node.BecomeMusician()
	case key.Matches(msg, m.keys.Digit):
		m.last = m.Node.EnterDigit([]rune(msg.String())[0])
	case key.Matches(msg, m.keys.Clear):
		m.Node.ClearDigits()
		m.last = node.Result{}

	case key.Matches(msg, m.keys.Tap):
		// a terminal only reports presses, so space alternates the edges
		switch m.Tap.Snapshot().State {
		case tap.Pressed, tap.Held:
			m.Tap.Release()
		default:
			m.Tap.Press()
		}

	case key.Matches(msg, m.keys.Melody):
		m.last = m.Node.SelectMelody(m.nextMelody())

	case key.Matches(msg, m.keys.Help):
		m.full = !m.full
	}
	return m, nil
}

func (m Model) nextMelody() string {
	names := m.Seq.Melodies()
	cur := m.Seq.Snapshot().Melody
	for i, name := range names {
		if name == cur {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.Node.Status()
	seq := st.Sequencer

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	okStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())
	refusedStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	if seq.Playing {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("go-conductor  %-12s %s  %3dbpm  key %+d  %s",
		st.Role, playState, seq.Tempo, seq.Key, seq.Melody))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderSteps(m.Theme, m.Seq.Melody(), seq))
	out.WriteString("\n\n")
	out.WriteString(widgets.RenderMeter(m.Theme, st.Tone.Volume, policy.MaxVolume, st.Tone.Muted))
	out.WriteString("\n")

	ts := m.Tap.Snapshot()
	out.WriteString(dimStyle.Render(fmt.Sprintf("value [%-8s]  tap %-8s burst %v  rx %d  ignored %d  faults %d",
		st.Digits, ts.State, ts.Samples, st.Received, st.Ignored, st.Faults)))
	out.WriteString("\n\n")

	if m.last.Message != "" {
		if m.last.OK {
			out.WriteString(okStyle.Render(m.last.Message))
		} else {
			out.WriteString(refusedStyle.Render(m.last.Message))
		}
		out.WriteString("\n")
	}

	history := m.Node.History()
	if len(history) > historyLines {
		history = history[len(history)-historyLines:]
	}
	for _, line := range history {
		out.WriteString(dimStyle.Render("  " + line))
		out.WriteString("\n")
	}
	out.WriteString("\n")

	if m.full {
		out.WriteString(widgets.RenderKeyHelp(m.keys.sections()))
	} else {
		out.WriteString(m.help.View(m.keys))
	}
	return out.String()
}
