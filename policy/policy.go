// Package policy holds the legal ranges for operator-requested changes.
// Rejections are ordinary outcomes reported as false, never errors.
package policy

import "time"

const (
	MinVolume     = 1
	MaxVolume     = 25
	DefaultVolume = 5

	MinKey     = -5
	MaxKey     = 5
	DefaultKey = 0

	MinTempo   = 60
	MaxTempo   = 240
	DefaultBPM = 120

	// Relaxed bounds for the tap-tempo path. The lower bound is exclusive.
	RelaxedMinTempo = MinTempo - 30
	RelaxedMaxTempo = MaxTempo + 60
)

// GapSilence is the articulation gap between notes. MaxTempo keeps every
// beat longer than this.
const GapSilence = 85 * time.Millisecond

// Volume applies delta to cur. It returns cur unchanged and false when the
// result would leave [MinVolume, MaxVolume].
func Volume(cur, delta int) (int, bool) {
	next := cur + delta
	if next < MinVolume || next > MaxVolume {
		return cur, false
	}
	return next, true
}

// Tempo reports whether bpm is legal. relaxed widens the range to
// (RelaxedMinTempo, RelaxedMaxTempo].
func Tempo(bpm int, relaxed bool) bool {
	if relaxed {
		return bpm > RelaxedMinTempo && bpm <= RelaxedMaxTempo
	}
	return bpm >= MinTempo && bpm <= MaxTempo
}

// Key reports whether k is a legal key offset.
func Key(k int) bool {
	return k >= MinKey && k <= MaxKey
}
