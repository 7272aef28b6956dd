package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerButton                 // pad or key sending note on/off
	ControllerPedal                  // footswitch sending a control change
)

func (t ControllerType) String() string {
	switch t {
	case ControllerButton:
		return "button"
	case ControllerPedal:
		return "pedal"
	}
	return "unknown"
}

// ParseControllerType maps a config string to a type
func ParseControllerType(s string) ControllerType {
	switch s {
	case "button":
		return ControllerButton
	case "pedal":
		return ControllerPedal
	}
	return ControllerUnknown
}

// ButtonEvent is one edge of the tap button
type ButtonEvent struct {
	Down    bool
	Channel uint8 // 1-16
	Number  uint8 // note or controller number
}

// Match selects which messages from a port count as the tap button.
// Zero Channel or Note means any.
type Match struct {
	Pattern string // case-insensitive substring of the port name
	Type    ControllerType
	Channel int
	Note    int
	CC      int
}

// Controller is the interface for tap inputs
type Controller interface {
	ID() string
	Type() ControllerType
	Buttons() <-chan ButtonEvent
	Close() error
}
