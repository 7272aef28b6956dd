package midi

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
	SysEx   uint8 = 0xF0
	EOX     uint8 = 0xF7
)

// SustainPedal is the controller number most footswitches send
const SustainPedal uint8 = 64

// NonCommercial is the SysEx manufacturer id reserved for private use.
// Bus frames travel as F0 7D <id> <len> <payload> F7.
const NonCommercial uint8 = 0x7D
