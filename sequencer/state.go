package sequencer

import (
	"go-conductor/melody"
	"go-conductor/policy"
)

// Phase is the part of a step the sequencer is in
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSounding
	PhaseGap
)

func (p Phase) String() string {
	switch p {
	case PhaseSounding:
		return "sounding"
	case PhaseGap:
		return "gap"
	}
	return "idle"
}

// State is the sequencer's own data; Snapshot hands out copies
type State struct {
	Playing bool   `json:"playing"`
	Step    int    `json:"step"`
	Key     int    `json:"key"`
	Tempo   int    `json:"tempo"`
	InGap   bool   `json:"inGap"`
	Phase   Phase  `json:"phase"`
	Melody  string `json:"melody"`

	// Advances counts completed steps since the last Start (runtime only)
	Advances int `json:"-"`
}

// NewState creates a stopped state with defaults
func NewState() State {
	return State{
		Tempo:  policy.DefaultBPM,
		Key:    policy.DefaultKey,
		Melody: melody.Default.Name,
	}
}
