package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-conductor/node"
	"go-conductor/sched"
	"go-conductor/sequencer"
	"go-conductor/tap"
	"go-conductor/theme"
	"go-conductor/tone"
)

type nullSink struct{}

func (nullSink) SetLevel(uint8) {}

func newTestModel(role node.Role) (Model, *sched.Kernel) {
	k := sched.NewKernel(sched.NewManualClock(time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC)))
	engine := tone.New(k, nullSink{})
	seq := sequencer.New(k, engine, nil)
	n := node.New(k, engine, seq, nil, role)
	est := tap.New(k, n)
	est.SetReporter(n.Report)
	return NewModel(n, seq, est, theme.New(nil)), k
}

func press(m Model, keys ...string) Model {
	for _, s := range keys {
		var msg tea.KeyMsg
		switch s {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace}
		case "backspace":
			msg = tea.KeyMsg{Type: tea.KeyBackspace}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestKeysDriveNode(t *testing.T) {
	m, k := newTestModel(node.Conductor)

	m = press(m, "w", "w", "s")
	if got := m.Node.Status().Tone.Volume; got != 6 {
		t.Fatalf("volume = %d, want 6", got)
	}

	m = press(m, "1", "5", "0", "t")
	if !m.last.OK || m.last.Message != "Changed Tempo: 150" {
		t.Fatalf("tempo commit = %+v", m.last)
	}

	m = press(m, "-", "2", "k")
	if got := m.Node.Status().Sequencer.Key; got != -2 {
		t.Fatalf("key = %d, want -2", got)
	}

	m = press(m, "v")
	k.Advance(0)
	if !m.Node.Status().Sequencer.Playing {
		t.Fatalf("v did not start the music")
	}
	m = press(m, "x")
	if m.Node.Status().Sequencer.Playing || m.last.Message != "Music is now stopped." {
		t.Fatalf("x: %+v", m.last)
	}
}

func TestRoleKeys(t *testing.T) {
	m, _ := newTestModel(node.Disconnected)
	m = press(m, "w")
	if m.last.OK {
		t.Fatalf("disconnected node applied a command")
	}
	m = press(m, "e")
	if m.Node.Role() != node.Conductor || m.last.Message != "Connected as conductor!" {
		t.Fatalf("e: role %v, %+v", m.Node.Role(), m.last)
	}
	m = press(m, "d")
	if m.Node.Role() != node.Musician {
		t.Fatalf("d: role %v", m.Node.Role())
	}
}

func TestBackspaceClearsEntry(t *testing.T) {
	m, _ := newTestModel(node.Conductor)
	m = press(m, "9", "9", "backspace", "t")
	if m.last.OK || m.last.Message != "No value entered" {
		t.Fatalf("commit after clear = %+v", m.last)
	}
}

func TestSpaceAlternatesTapEdges(t *testing.T) {
	m, k := newTestModel(node.Musician)
	m = press(m, " ")
	if s := m.Tap.Snapshot().State; s != tap.Pressed {
		t.Fatalf("after first space: %v", s)
	}
	k.Advance(200 * time.Millisecond)
	m = press(m, " ")
	if s := m.Tap.Snapshot().State; s != tap.Released {
		t.Fatalf("after second space: %v", s)
	}
}

func TestSpaceFollowsEstimatorAfterBounce(t *testing.T) {
	m, k := newTestModel(node.Musician)
	m = press(m, " ")
	k.Advance(50 * time.Millisecond)
	m = press(m, " ") // within contact bounce, ignored
	if s := m.Tap.Snapshot().State; s != tap.Pressed {
		t.Fatalf("after bounced release: %v", s)
	}
	k.Advance(150 * time.Millisecond)
	m = press(m, " ")
	if s := m.Tap.Snapshot().State; s != tap.Released {
		t.Fatalf("space after a bounce: %v, want released", s)
	}
}

func TestNextMelodyCycles(t *testing.T) {
	m, _ := newTestModel(node.Musician)
	first := m.Seq.Snapshot().Melody
	m = press(m, "n")
	if m.Seq.Snapshot().Melody == first {
		t.Fatalf("n did not change melody")
	}
	for i := 1; i < len(m.Seq.Melodies()); i++ {
		m = press(m, "n")
	}
	if got := m.Seq.Snapshot().Melody; got != first {
		t.Fatalf("after a full cycle melody = %q, want %q", got, first)
	}
}

func TestViewShowsStatus(t *testing.T) {
	m, _ := newTestModel(node.Conductor)
	m = press(m, "w")
	out := m.View()
	for _, want := range []string{"go-conductor", "conductor", "120bpm", "Volume: 6"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
	m = press(m, "?")
	if !strings.Contains(m.View(), "Values") {
		t.Fatalf("full help not shown")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(node.Conductor)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || next.(Model).View() != "" {
		t.Fatalf("q did not quit")
	}
}
