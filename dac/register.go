// Package dac stands in for the amplitude register the tone engine writes.
// The register can be played through the sound card, recorded to WAV, or
// both.
package dac

import (
	"sync/atomic"

	"go-conductor/policy"
	"go-conductor/tone"
)

// Register is a single write-only amplitude byte, safe for concurrent use.
type Register struct {
	level  atomic.Uint32
	writes atomic.Uint64
}

func (r *Register) SetLevel(level uint8) {
	r.level.Store(uint32(level))
	r.writes.Add(1)
}

// Level is the last value written
func (r *Register) Level() uint8 {
	return uint8(r.level.Load())
}

// Writes counts SetLevel calls
func (r *Register) Writes() uint64 {
	return r.writes.Load()
}

// Sample maps the level to [0, 1] with MaxVolume as full scale.
func (r *Register) Sample() float32 {
	return float32(r.Level()) / policy.MaxVolume
}

// Tee copies every write to each sink.
type Tee []tone.Sink

func (t Tee) SetLevel(level uint8) {
	for _, s := range t {
		s.SetLevel(level)
	}
}
