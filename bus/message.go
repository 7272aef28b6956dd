// Package bus carries control messages between a conductor and its
// musicians. Action ids double as arbitration priority: a lower id wins.
package bus

import (
	"fmt"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// MaxPayload is the largest payload a frame can carry.
const MaxPayload = 8

// Action identifies a message; the numeric order is the priority order.
type Action uint8

const (
	StopMusic Action = iota
	PlayMusic
	ChangeVolume
	ChangeTempo
	ChangeKey
	ToggleMute
	ToggleIsPlaying // reserved, receivers ignore it

	numActions
)

var actionNames = [...]string{
	StopMusic:       "StopMusic",
	PlayMusic:       "PlayMusic",
	ChangeVolume:    "ChangeVolume",
	ChangeTempo:     "ChangeTempo",
	ChangeKey:       "ChangeKey",
	ToggleMute:      "ToggleMute",
	ToggleIsPlaying: "ToggleIsPlaying",
}

func (a Action) String() string {
	if a.Valid() {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Valid reports whether a is a known action id.
func (a Action) Valid() bool {
	return a < numActions
}

// ParseAction accepts an action name or its numeric id.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < int(numActions) {
		return Action(n), nil
	}
	return 0, fault.New("unknown action "+strconv.Quote(s), ftag.With(ftag.InvalidArgument))
}

// Message is one bus frame: an action and its decimal payload.
type Message struct {
	Action  Action
	Payload string
}

// NewMessage builds a message carrying v as decimal text.
func NewMessage(a Action, v int) Message {
	return Message{Action: a, Payload: strconv.Itoa(v)}
}

// Value parses the payload. ok is false for an empty or non-numeric
// payload, which receivers treat as a malformed no-op.
func (m Message) Value() (int, bool) {
	if m.Payload == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m.Payload)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (m Message) String() string {
	if m.Payload == "" {
		return m.Action.String()
	}
	return m.Action.String() + "(" + m.Payload + ")"
}

// Encode returns the wire form [id][len][payload...].
func (m Message) Encode() ([]byte, error) {
	if !m.Action.Valid() {
		return nil, fault.New(fmt.Sprintf("cannot encode action id %d", m.Action), ftag.With(ftag.InvalidArgument))
	}
	if len(m.Payload) > MaxPayload {
		return nil, fault.New(fmt.Sprintf("payload %q longer than %d bytes", m.Payload, MaxPayload),
			ftag.With(ftag.InvalidArgument),
			fmsg.WithDesc("payload too long", "Values are limited to 8 characters"))
	}
	out := make([]byte, 0, 2+len(m.Payload))
	out = append(out, byte(m.Action), byte(len(m.Payload)))
	return append(out, m.Payload...), nil
}

// Decode parses the wire form produced by Encode.
func Decode(b []byte) (Message, error) {
	if len(b) < 2 {
		return Message{}, fault.New(fmt.Sprintf("short frame (%d bytes)", len(b)), ftag.With(ftag.InvalidArgument))
	}
	a, n := Action(b[0]), int(b[1])
	if !a.Valid() {
		return Message{}, fault.New(fmt.Sprintf("unknown action id %d", b[0]), ftag.With(ftag.InvalidArgument))
	}
	if n > MaxPayload || len(b) != 2+n {
		return Message{}, fault.New(fmt.Sprintf("length byte %d does not match frame of %d bytes", n, len(b)), ftag.With(ftag.InvalidArgument))
	}
	return Message{Action: a, Payload: string(b[2:])}, nil
}
