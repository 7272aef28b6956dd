package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ButtonController turns a MIDI input into tap button edges
type ButtonController struct {
	id       string
	match    Match
	stopFunc func()

	buttons chan ButtonEvent
}

// NewButtonController listens on inPort for messages selected by match
func NewButtonController(id string, inPort drivers.In, match Match) (*ButtonController, error) {
	bc := &ButtonController{
		id:      id,
		match:   match,
		buttons: make(chan ButtonEvent, 32),
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			if ev, ok := decodeButton(msg, bc.match); ok {
				select {
				case bc.buttons <- ev:
				default:
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		bc.stopFunc = stop
	}

	return bc, nil
}

func (bc *ButtonController) ID() string {
	return bc.id
}

func (bc *ButtonController) Type() ControllerType {
	return bc.match.Type
}

func (bc *ButtonController) Buttons() <-chan ButtonEvent {
	return bc.buttons
}

func (bc *ButtonController) Close() error {
	if bc.stopFunc != nil {
		bc.stopFunc()
	}
	close(bc.buttons)
	return nil
}

// decodeButton reports whether msg is an edge of the button m describes.
// Note on with velocity 0 counts as a release.
func decodeButton(msg gomidi.Message, m Match) (ButtonEvent, bool) {
	var channel, number, value uint8

	switch m.Type {
	case ControllerButton:
		switch {
		case msg.GetNoteStart(&channel, &number, &value):
			return filter(ButtonEvent{Down: true, Channel: channel + 1, Number: number}, m.Channel, m.Note)
		case msg.GetNoteEnd(&channel, &number):
			return filter(ButtonEvent{Down: false, Channel: channel + 1, Number: number}, m.Channel, m.Note)
		}
	case ControllerPedal:
		if msg.GetControlChange(&channel, &number, &value) {
			cc := m.CC
			if cc == 0 {
				cc = int(SustainPedal)
			}
			return filter(ButtonEvent{Down: value >= 64, Channel: channel + 1, Number: number}, m.Channel, cc)
		}
	}
	return ButtonEvent{}, false
}

func filter(ev ButtonEvent, channel, number int) (ButtonEvent, bool) {
	if channel != 0 && int(ev.Channel) != channel {
		return ButtonEvent{}, false
	}
	if number != 0 && int(ev.Number) != number {
		return ButtonEvent{}, false
	}
	return ev, true
}

// Forward calls press and release for each edge from c until c closes.
// Repeated edges in the same direction, as pedals send while moving,
// are dropped.
func Forward(c Controller, press, release func()) {
	down := false
	for ev := range c.Buttons() {
		if ev.Down == down {
			continue
		}
		down = ev.Down
		if down {
			press()
		} else {
			release()
		}
	}
}
