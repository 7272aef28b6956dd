// Package tap turns a single push button into a tempo. Releases spaced
// evenly enough form a burst; a full burst sets the tempo. Holding the
// button for two seconds resets it to the default.
package tap

import (
	"fmt"
	"time"

	"go-conductor/debug"
	"go-conductor/policy"
	"go-conductor/sched"
)

const (
	ContactBounce  = 100 * time.Millisecond
	HoldArm        = time.Second
	HoldResetAfter = 2 * time.Second
	MaxBurst       = 3
	Compatible     = 100 // ms a sample may differ from the first of its burst
	SessionTimeout = 2 * time.Second
)

// TempoSetter receives tapped tempos. It applies bpm with the relaxed range
// and reports whether it was accepted.
type TempoSetter interface {
	ApplyTappedTempo(bpm int) bool
}

// State of the button
type State int

const (
	Idle State = iota
	Pressed
	Held
	Released
)

func (s State) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Held:
		return "held"
	case Released:
		return "released"
	}
	return "idle"
}

// Outcome says what a transition did
type Outcome int

const (
	Ignored      Outcome = iota // contact bounce, or release without press
	Down                        // press accepted, hold timer armed
	Armed                       // first release of a session
	Sampled                     // interval added to the burst
	Incompatible                // interval too far from the burst, session dropped
	TempoSet                    // burst complete, tempo accepted
	TempoRefused                // burst complete, tempo out of range
	HoldReset                   // long hold, tempo reset to default
	HoldCleared                 // short hold, burst dropped
)

var outcomeNames = [...]string{
	Ignored:      "ignored",
	Down:         "down",
	Armed:        "armed",
	Sampled:      "sampled",
	Incompatible: "incompatible",
	TempoSet:     "tempo-set",
	TempoRefused: "tempo-refused",
	HoldReset:    "hold-reset",
	HoldCleared:  "hold-cleared",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Snapshot is a copy of the estimator state for display.
type Snapshot struct {
	State   State
	Armed   bool
	Samples []int // ms
}

// Estimator is the button state machine. Press and Release are synchronous
// calls; the hold timer is a message on the same object.
type Estimator struct {
	sched.Object

	k      *sched.Kernel
	tempo  TempoSetter
	report func(string)

	state    State
	lastEdge time.Time // last accepted transition
	pressAt  time.Time
	hold     *sched.Msg

	armed       bool
	lastRelease time.Time
	burst       [MaxBurst]int
	n           int
}

// New creates an idle estimator that sends finished bursts to tempo.
func New(k *sched.Kernel, tempo TempoSetter) *Estimator {
	return &Estimator{k: k, tempo: tempo}
}

// SetReporter sets where human-readable progress lines go.
func (e *Estimator) SetReporter(fn func(string)) {
	sched.Do(&e.Object, func() { e.report = fn })
}

func (e *Estimator) say(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	debug.Log("tap", "%s", msg)
	if e.report != nil {
		e.report(msg)
	}
}

func (e *Estimator) bounced(now time.Time) bool {
	return !e.lastEdge.IsZero() && now.Sub(e.lastEdge) < ContactBounce
}

// Press handles the button going down. Edges come from outside the
// dispatcher, so they are stamped with the wall clock.
func (e *Estimator) Press() Outcome {
	return sched.Call(&e.Object, func() Outcome {
		now := e.k.Wall()
		if e.bounced(now) {
			return Ignored
		}
		e.lastEdge = now
		e.pressAt = now
		e.state = Pressed
		e.k.Abort(e.hold)
		e.hold = e.k.At(&e.Object, now.Add(HoldArm), e.onHold)
		return Down
	})
}

func (e *Estimator) onHold() {
	e.hold = nil
	if e.state != Pressed {
		return
	}
	e.state = Held
	e.say("Button held for 1 second.")
}

// Release handles the button coming up.
func (e *Estimator) Release() Outcome {
	return sched.Call(&e.Object, func() Outcome {
		now := e.k.Wall()
		if e.bounced(now) {
			return Ignored
		}
		e.lastEdge = now
		e.k.Abort(e.hold)
		e.hold = nil

		switch e.state {
		case Held:
			e.state = Released
			held := now.Sub(e.pressAt)
			e.clear()
			if held >= HoldResetAfter {
				if e.tempo.ApplyTappedTempo(policy.DefaultBPM) {
					e.say("Tempo changed to %d BPM (Default).", policy.DefaultBPM)
				}
				return HoldReset
			}
			e.say("Button was held for %dms, burst cleared.", held.Milliseconds())
			return HoldCleared
		case Pressed:
			e.state = Released
			return e.tap(now)
		}
		return Ignored
	})
}

func (e *Estimator) tap(now time.Time) Outcome {
	since := now.Sub(e.lastRelease)
	if !e.armed || since > SessionTimeout {
		e.clear()
		e.armed = true
		e.lastRelease = now
		e.say("Initiated tempo burst mode.")
		return Armed
	}

	interval := int(since / time.Millisecond)
	if e.n > 0 {
		if diff := abs(e.burst[0] - interval); diff > Compatible {
			e.say("Burst is not compatible with %dms gap.", diff)
			e.clear()
			return Incompatible
		}
	}
	e.burst[e.n] = interval
	e.n++
	e.lastRelease = now
	e.say("Interval added to buffer: %d", interval)

	if e.n < MaxBurst {
		return Sampled
	}

	bpm := 60000 / e.average()
	e.clear()
	if !e.tempo.ApplyTappedTempo(bpm) {
		e.say("Tempo out of range, can't be set.")
		return TempoRefused
	}
	e.say("Tempo changed to %d BPM.", bpm)
	return TempoSet
}

// average is the integer mean of the burst; only called on a full burst
func (e *Estimator) average() int {
	sum := 0
	for i := 0; i < e.n; i++ {
		sum += e.burst[i]
	}
	return sum / e.n
}

func (e *Estimator) clear() {
	e.n = 0
	e.armed = false
}

// Snapshot returns the current state
func (e *Estimator) Snapshot() Snapshot {
	return sched.Call(&e.Object, func() Snapshot {
		return Snapshot{
			State:   e.state,
			Armed:   e.armed,
			Samples: append([]int(nil), e.burst[:e.n]...),
		}
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
