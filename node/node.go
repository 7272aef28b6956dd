// Package node is one participant on the bus: it owns the role, turns
// operator commands into local changes and bus broadcasts, and applies
// broadcasts it hears when it is a musician.
package node

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"go-conductor/bus"
	"go-conductor/debug"
	"go-conductor/sched"
	"go-conductor/sequencer"
	"go-conductor/tone"
)

// HistoryLen is how many report lines a node keeps.
const HistoryLen = 64

// MaxDigits is the longest numeric entry, the bus payload limit.
const MaxDigits = bus.MaxPayload

// Result is the outcome of one command. A false OK is a normal refusal.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Status is a snapshot of everything the console shows.
type Status struct {
	Role      Role            `json:"role"`
	Digits    string          `json:"digits"`
	Tone      tone.State      `json:"tone"`
	Sequencer sequencer.State `json:"sequencer"`
	Received  uint64          `json:"received"`
	Ignored   uint64          `json:"ignored"`
	Faults    uint64          `json:"faults"`
}

// Node is an active object. Public methods are synchronous calls; inbound
// bus frames are queued onto it through the kernel.
type Node struct {
	sched.Object

	k    *sched.Kernel
	tone *tone.Engine
	seq  *sequencer.Sequencer
	bus  bus.Transport

	role    Role
	digits  []byte
	history []string

	received atomic.Uint64
	ignored  atomic.Uint64

	updates chan struct{}
}

// New wires a node to its engine, sequencer and bus. transport may be nil
// for a node that only plays locally.
func New(k *sched.Kernel, engine *tone.Engine, seq *sequencer.Sequencer, transport bus.Transport, role Role) *Node {
	n := &Node{
		k:       k,
		tone:    engine,
		seq:     seq,
		bus:     transport,
		role:    role,
		updates: make(chan struct{}, 1),
	}
	seq.SetOnChange(n.notify)
	if transport != nil {
		transport.SetHandler(n.Receive)
	}
	return n
}

// Updates signals (coalesced) whenever something visible changed.
func (n *Node) Updates() <-chan struct{} {
	return n.updates
}

func (n *Node) notify() {
	select {
	case n.updates <- struct{}{}:
	default:
	}
}

// Report adds a line to the history. Collaborators such as the tap
// estimator use it for their own progress messages.
func (n *Node) Report(line string) {
	sched.Do(&n.Object, func() { n.logLocked(line) })
}

func (n *Node) logLocked(line string) {
	debug.Log("node", "%s", line)
	n.history = append(n.history, line)
	if over := len(n.history) - HistoryLen; over > 0 {
		n.history = append(n.history[:0], n.history[over:]...)
	}
	n.notify()
}

// History returns the retained report lines, oldest first.
func (n *Node) History() []string {
	return sched.Call(&n.Object, func() []string {
		return append([]string(nil), n.history...)
	})
}

// Role returns the current role
func (n *Node) Role() Role {
	return sched.Call(&n.Object, func() Role { return n.role })
}

// Status collects a snapshot from the node and its collaborators.
func (n *Node) Status() Status {
	s := sched.Call(&n.Object, func() Status {
		return Status{Role: n.role, Digits: string(n.digits)}
	})
	s.Tone = n.tone.Snapshot()
	s.Sequencer = n.seq.Snapshot()
	s.Received = n.received.Load()
	s.Ignored = n.ignored.Load()
	s.Faults = n.k.Faults()
	return s
}

// SetRole changes the role. It is always allowed.
func (n *Node) SetRole(r Role) Result {
	return sched.Call(&n.Object, func() Result {
		n.role = r
		var res Result
		switch r {
		case Conductor:
			res = Result{true, "Connected as conductor!"}
		case Musician:
			res = Result{true, "Connected as musician!"}
		default:
			res = Result{true, "Disconnected."}
		}
		n.logLocked(res.Message)
		return res
	})
}

// BecomeConductor is SetRole(Conductor)
func (n *Node) BecomeConductor() Result { return n.SetRole(Conductor) }

// BecomeMusician is SetRole(Musician)
func (n *Node) BecomeMusician() Result { return n.SetRole(Musician) }

// command runs apply on a conductor and broadcasts msg afterwards,
// whatever the local outcome. Other roles get a refusal and nothing is sent.
func (n *Node) command(msg bus.Message, apply func() Result) Result {
	type outcome struct {
		res  Result
		send bool
	}
	o := sched.Call(&n.Object, func() outcome {
		if n.role != Conductor {
			res := Result{false, fmt.Sprintf("Not connected as conductor, %s not applied.", msg.Action)}
			n.logLocked(res.Message)
			return outcome{res, false}
		}
		res := apply()
		n.logLocked(res.Message)
		return outcome{res, true}
	})
	if o.send {
		n.broadcast(msg)
	}
	return o.res
}

// broadcast sends outside the node's exclusion; serial writes may block.
func (n *Node) broadcast(msg bus.Message) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Send(msg); err != nil {
		debug.Log("node", "send %v: %v", msg, err)
		n.Report(fmt.Sprintf("Bus send failed: %v", err))
	}
}

func (n *Node) volume(delta int) Result {
	v, ok := n.tone.ChangeVolume(delta)
	if ok {
		return Result{true, fmt.Sprintf("Volume: %d", v)}
	}
	if delta > 0 {
		return Result{false, "Volume is already maximum."}
	}
	return Result{false, "Volume is already minimum."}
}

func (n *Node) toggleMute() Result {
	if n.tone.ToggleMute() {
		return Result{true, "Music is muted."}
	}
	return Result{true, "Music is not muted."}
}

func (n *Node) tempo(bpm int) Result {
	if n.seq.ChangeTempo(bpm) {
		return Result{true, fmt.Sprintf("Changed Tempo: %d", bpm)}
	}
	return Result{false, "Tempo out of range"}
}

func (n *Node) key(k int) Result {
	if n.seq.ChangeKey(k) {
		return Result{true, fmt.Sprintf("Changed Key: %d", k)}
	}
	return Result{false, "Key out of range"}
}

func (n *Node) play() Result {
	if n.seq.Start() {
		return Result{true, "Music is now playing from the beginning."}
	}
	return Result{false, "Music is already playing."}
}

func (n *Node) stop() Result {
	if n.seq.Stop() {
		return Result{true, "Music is now stopped."}
	}
	return Result{false, "Music is already stopped."}
}

// IncreaseVolume raises the volume by one step.
func (n *Node) IncreaseVolume() Result {
	return n.command(bus.NewMessage(bus.ChangeVolume, 1), func() Result { return n.volume(1) })
}

// DecreaseVolume lowers the volume by one step.
func (n *Node) DecreaseVolume() Result {
	return n.command(bus.NewMessage(bus.ChangeVolume, -1), func() Result { return n.volume(-1) })
}

// ToggleMute flips mute.
func (n *Node) ToggleMute() Result {
	return n.command(bus.NewMessage(bus.ToggleMute, 0), n.toggleMute)
}

// SetTempo sets an absolute tempo in the normal range.
func (n *Node) SetTempo(bpm int) Result {
	return n.command(bus.NewMessage(bus.ChangeTempo, bpm), func() Result { return n.tempo(bpm) })
}

// SetKey sets an absolute key offset.
func (n *Node) SetKey(k int) Result {
	return n.command(bus.NewMessage(bus.ChangeKey, k), func() Result { return n.key(k) })
}

// Play starts the melody from the first step.
func (n *Node) Play() Result {
	return n.command(bus.NewMessage(bus.PlayMusic, 0), n.play)
}

// Stop stops the melody.
func (n *Node) Stop() Result {
	return n.command(bus.NewMessage(bus.StopMusic, 0), n.stop)
}

// SelectMelody switches melody on this node only.
func (n *Node) SelectMelody(name string) Result {
	return sched.Call(&n.Object, func() Result {
		res := Result{false, fmt.Sprintf("Unknown melody %q", name)}
		if n.seq.SetMelody(name) {
			res = Result{true, "Melody: " + name}
		}
		n.logLocked(res.Message)
		return res
	})
}

// ApplyTappedTempo takes a tempo from the tap button. It is applied here
// with the relaxed range whatever the role; a conductor also broadcasts it.
func (n *Node) ApplyTappedTempo(bpm int) bool {
	type outcome struct{ ok, send bool }
	o := sched.Call(&n.Object, func() outcome {
		ok := n.seq.ChangeTempoRelaxed(bpm)
		if ok {
			n.logLocked(fmt.Sprintf("Changed Tempo: %d", bpm))
		}
		return outcome{ok, n.role == Conductor}
	})
	if o.send {
		n.broadcast(bus.NewMessage(bus.ChangeTempo, bpm))
	}
	return o.ok
}

// EnterDigit appends to the pending numeric entry: digits, and a minus
// sign in first position.
func (n *Node) EnterDigit(c rune) Result {
	return sched.Call(&n.Object, func() Result {
		switch {
		case c == '-' && len(n.digits) > 0:
			return Result{false, "Minus sign only allowed first"}
		case c != '-' && (c < '0' || c > '9'):
			return Result{false, fmt.Sprintf("Not a digit: %q", c)}
		case len(n.digits) >= MaxDigits:
			return Result{false, fmt.Sprintf("Entry is limited to %d characters", MaxDigits)}
		}
		n.digits = append(n.digits, byte(c))
		res := Result{true, fmt.Sprintf("Entered: %c", c)}
		n.logLocked(res.Message)
		return res
	})
}

// ClearDigits drops the pending entry
func (n *Node) ClearDigits() {
	sched.Do(&n.Object, func() {
		n.digits = n.digits[:0]
		n.notify()
	})
}

type entry struct {
	v  int
	ok bool
}

// takeDigits consumes the pending entry.
func (n *Node) takeDigits() (int, bool) {
	e := sched.Call(&n.Object, func() entry {
		s := string(n.digits)
		n.digits = n.digits[:0]
		v, err := strconv.Atoi(s)
		if err != nil {
			n.logLocked("No value entered")
			return entry{}
		}
		return entry{v, true}
	})
	return e.v, e.ok
}

// CommitTempo applies the pending entry as a tempo.
func (n *Node) CommitTempo() Result {
	v, ok := n.takeDigits()
	if !ok {
		return Result{false, "No value entered"}
	}
	return n.SetTempo(v)
}

// CommitKey applies the pending entry as a key.
func (n *Node) CommitKey() Result {
	v, ok := n.takeDigits()
	if !ok {
		return Result{false, "No value entered"}
	}
	return n.SetKey(v)
}
