// Package tone is the square-wave tone engine. While a note sounds, a tick
// chain flips the output between the volume and zero at the period of the
// current frequency index.
package tone

import (
	"time"

	"go-conductor/debug"
	"go-conductor/melody"
	"go-conductor/policy"
	"go-conductor/sched"
)

// Sink is the write-only amplitude register the engine drives.
type Sink interface {
	SetLevel(level uint8)
}

// State is a copy of the engine's fields.
type State struct {
	FreqIdx  int
	Volume   int
	Muted    bool
	Polarity bool
	Sounding bool
}

// Engine is an active object; every method takes its exclusion.
type Engine struct {
	sched.Object

	k      *sched.Kernel
	sink   Sink
	window time.Duration // tick deadline, 0 = one period

	state State
	tick  *sched.Msg
	chain uint64 // bumped on every start/stop; older ticks are ignored
	ticks uint64
}

// New creates an engine writing to sink, silent, at the default volume.
func New(k *sched.Kernel, sink Sink) *Engine {
	return &Engine{
		k:     k,
		sink:  sink,
		state: State{Volume: policy.DefaultVolume},
	}
}

// SetTickWindow sets how late a tick may start before it counts as a timing
// fault. Zero means one toggle period.
func (e *Engine) SetTickWindow(d time.Duration) {
	sched.Do(&e.Object, func() { e.window = d })
}

// SetFrequency selects the pitch for the next ticks. Out-of-range indices
// are refused and leave the pitch unchanged.
func (e *Engine) SetFrequency(idx int) bool {
	return sched.Call(&e.Object, func() bool {
		if _, ok := melody.Period(idx); !ok {
			debug.Log("tone", "frequency index %d out of range", idx)
			return false
		}
		e.state.FreqIdx = idx
		return true
	})
}

// StartNote begins a tick chain. A chain already pending is withdrawn first
// so there is never more than one.
func (e *Engine) StartNote() {
	sched.Do(&e.Object, func() {
		e.k.Abort(e.tick)
		e.chain++
		e.state.Sounding = true
		e.schedule(0, 0)
	})
}

// StopNote ends the sounding phase and forces the output to zero.
func (e *Engine) StopNote() {
	sched.Do(&e.Object, e.stopLocked)
}

// Silence stops any note and resets the waveform.
func (e *Engine) Silence() {
	sched.Do(&e.Object, func() {
		e.stopLocked()
		e.state.Polarity = false
	})
}

func (e *Engine) stopLocked() {
	e.state.Sounding = false
	e.chain++
	e.k.Abort(e.tick)
	e.tick = nil
	e.sink.SetLevel(0)
}

// ChangeVolume adds delta to the volume. Any attempt unmutes, even one that
// is then refused for leaving the legal range.
func (e *Engine) ChangeVolume(delta int) (int, bool) {
	type result struct {
		v  int
		ok bool
	}
	r := sched.Call(&e.Object, func() result {
		e.state.Muted = false
		v, ok := policy.Volume(e.state.Volume, delta)
		e.state.Volume = v
		return result{v, ok}
	})
	return r.v, r.ok
}

// ToggleMute flips mute and returns the new setting. Muting zeroes the
// output at once; unmuting waits for the next tick.
func (e *Engine) ToggleMute() bool {
	return sched.Call(&e.Object, func() bool {
		e.state.Muted = !e.state.Muted
		if e.state.Muted {
			e.sink.SetLevel(0)
		}
		return e.state.Muted
	})
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() State {
	return sched.Call(&e.Object, func() State { return e.state })
}

// Ticks returns how many ticks have run.
func (e *Engine) Ticks() uint64 {
	return sched.Call(&e.Object, func() uint64 { return e.ticks })
}

func (e *Engine) schedule(after, window time.Duration) {
	chain := e.chain
	e.tick = e.k.Send(&e.Object, after, window, func() { e.onTick(chain) })
}

// onTick runs under the engine's exclusion (kernel dispatch). A tick already
// popped by the dispatcher cannot be aborted, so the chain number decides.
func (e *Engine) onTick(chain uint64) {
	if chain != e.chain {
		return
	}
	e.tick = nil
	if !e.state.Sounding {
		e.sink.SetLevel(0)
		return
	}
	e.ticks++

	if e.state.Muted {
		e.sink.SetLevel(0)
	} else {
		e.state.Polarity = !e.state.Polarity
		if e.state.Polarity {
			e.sink.SetLevel(uint8(e.state.Volume))
		} else {
			e.sink.SetLevel(0)
		}
	}

	period, ok := melody.Period(e.state.FreqIdx)
	if !ok {
		return
	}
	window := e.window
	if window == 0 {
		window = period
	}
	e.schedule(period, window)
}
