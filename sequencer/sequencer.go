package sequencer

import (
	"go-conductor/debug"
	"go-conductor/melody"
	"go-conductor/policy"
	"go-conductor/sched"
	"go-conductor/tone"
)

// Sequencer steps through a melody table. Each step is a Sounding phase
// followed by a fixed Gap of silence; after the last step it wraps to 0.
type Sequencer struct {
	sched.Object

	k       *sched.Kernel
	tone    *tone.Engine
	library *melody.Library
	table   *melody.Table

	state State
	phase *sched.Msg // pending transition
	gen   uint64     // bumped by Start/Stop; stale transitions compare unequal

	onChange func()
}

// New creates a stopped sequencer driving engine
func New(k *sched.Kernel, engine *tone.Engine, library *melody.Library) *Sequencer {
	if library == nil {
		library = melody.NewLibrary()
	}
	return &Sequencer{
		k:       k,
		tone:    engine,
		library: library,
		table:   melody.Default,
		state:   NewState(),
	}
}

// SetOnChange registers a callback run on every phase transition and state
// change. It runs with the sequencer's exclusion held, so it must not call
// back into the sequencer; signalling a channel is the intended use.
func (s *Sequencer) SetOnChange(fn func()) {
	sched.Do(&s.Object, func() { s.onChange = fn })
}

func (s *Sequencer) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Start plays from step 0. It returns false if already playing.
func (s *Sequencer) Start() bool {
	return sched.Call(&s.Object, func() bool {
		if s.state.Playing {
			return false
		}
		s.state.Playing = true
		s.state.Step = 0
		s.state.Advances = 0
		s.gen++
		gen := s.gen
		s.phase = s.k.Async(&s.Object, func() { s.enterSounding(gen) })
		debug.Log("sequencer", "start (tempo %d, key %d, %s)", s.state.Tempo, s.state.Key, s.table.Name)
		s.changed()
		return true
	})
}

// Stop silences the output at once, whatever phase was active. It returns
// false if already stopped.
func (s *Sequencer) Stop() bool {
	return sched.Call(&s.Object, func() bool {
		if !s.state.Playing {
			return false
		}
		s.state.Playing = false
		s.state.Step = 0
		s.state.InGap = false
		s.state.Phase = PhaseIdle
		s.gen++
		s.k.Abort(s.phase)
		s.phase = nil
		s.tone.Silence()
		debug.Log("sequencer", "stop")
		s.changed()
		return true
	})
}

// ChangeTempo sets the tempo if it is within the normal range. A running
// step keeps its timing; the next transition uses the new tempo.
func (s *Sequencer) ChangeTempo(bpm int) bool {
	return s.setTempo(bpm, false)
}

// ChangeTempoRelaxed sets the tempo within the wider tap-tempo range.
func (s *Sequencer) ChangeTempoRelaxed(bpm int) bool {
	return s.setTempo(bpm, true)
}

func (s *Sequencer) setTempo(bpm int, relaxed bool) bool {
	return sched.Call(&s.Object, func() bool {
		if !policy.Tempo(bpm, relaxed) {
			return false
		}
		s.state.Tempo = bpm
		s.changed()
		return true
	})
}

// ChangeKey sets the key offset applied from the next sounding step.
func (s *Sequencer) ChangeKey(key int) bool {
	return sched.Call(&s.Object, func() bool {
		if !policy.Key(key) {
			return false
		}
		s.state.Key = key
		s.changed()
		return true
	})
}

// SetMelody switches to a named melody. The step index carries over.
func (s *Sequencer) SetMelody(name string) bool {
	t, ok := s.library.ByName(name)
	if !ok {
		return false
	}
	sched.Do(&s.Object, func() {
		s.table = t
		s.state.Melody = t.Name
		s.changed()
	})
	return true
}

// Melodies lists the names SetMelody accepts
func (s *Sequencer) Melodies() []string {
	return s.library.Names()
}

// Melody returns the active table. Tables are immutable once built.
func (s *Sequencer) Melody() *melody.Table {
	return sched.Call(&s.Object, func() *melody.Table { return s.table })
}

// Snapshot returns a copy of the sequencer state
func (s *Sequencer) Snapshot() State {
	return sched.Call(&s.Object, func() State { return s.state })
}

// enterSounding starts the note for the current step and schedules the gap.
func (s *Sequencer) enterSounding(gen uint64) {
	if gen != s.gen || !s.state.Playing {
		return
	}
	step := s.state.Step
	pitch := s.table.Offsets[step] + s.state.Key
	if !s.tone.SetFrequency(pitch) {
		debug.Log("sequencer", "step %d: pitch %d out of range", step, pitch)
	}

	beat := melody.StepDuration(s.state.Tempo, s.table.Beats[step])
	s.state.InGap = false
	s.state.Phase = PhaseSounding
	s.tone.StartNote()

	s.phase = s.k.Send(&s.Object, beat-policy.GapSilence, policy.GapSilence, func() { s.enterGap(gen) })
	s.changed()
}

// enterGap silences the note and schedules the next step.
func (s *Sequencer) enterGap(gen uint64) {
	if gen != s.gen || !s.state.Playing {
		return
	}
	s.state.InGap = true
	s.state.Phase = PhaseGap
	s.tone.StopNote()

	s.phase = s.k.Send(&s.Object, policy.GapSilence, policy.GapSilence, func() {
		if gen != s.gen || !s.state.Playing {
			return
		}
		s.state.Step = (s.state.Step + 1) % melody.Steps
		s.state.Advances++
		s.enterSounding(gen)
	})
	s.changed()
}
