package midi

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-conductor/bus"
	"go-conductor/debug"
)

// sysExBody is the bus frame between F0 and F7
func sysExBody(m bus.Message) ([]byte, error) {
	frame, err := m.Encode()
	if err != nil {
		return nil, err
	}
	for _, b := range frame {
		if b >= 0x80 {
			return nil, fmt.Errorf("midi bus: byte %#x is not 7-bit", b)
		}
	}
	return append([]byte{NonCommercial}, frame...), nil
}

// parseSysEx decodes a body received between F0 and F7. Other
// manufacturers' SysEx is reported as not ours.
func parseSysEx(body []byte) (bus.Message, bool, error) {
	if len(body) == 0 || body[0] != NonCommercial {
		return bus.Message{}, false, nil
	}
	m, err := bus.Decode(body[1:])
	return m, true, err
}

// SysExTransport carries bus messages as SysEx over a MIDI cable pair
type SysExTransport struct {
	send     func(msg gomidi.Message) error
	stopFunc func()

	mu      sync.Mutex
	handler bus.Handler
	closed  bool
	dropped int
}

// OpenSysEx finds the named ports and starts listening
func OpenSysEx(inName, outName string) (*SysExTransport, error) {
	in, err := gomidi.FindInPort(inName)
	if err != nil {
		return nil, fmt.Errorf("midi in %q: %w", inName, err)
	}
	out, err := gomidi.FindOutPort(outName)
	if err != nil {
		return nil, fmt.Errorf("midi out %q: %w", outName, err)
	}
	return NewSysExTransport(in, out)
}

// NewSysExTransport uses already resolved ports
func NewSysExTransport(in drivers.In, out drivers.Out) (*SysExTransport, error) {
	t := &SysExTransport{}

	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	t.send = send

	stop, err := gomidi.ListenTo(in, t.receive, gomidi.UseSysEx())
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	t.stopFunc = stop

	debug.Log("bus", "midi sysex on %s -> %s", in, out)
	return t, nil
}

func (t *SysExTransport) receive(msg gomidi.Message, timestampms int32) {
	var body []byte
	if !msg.GetSysEx(&body) {
		return
	}
	m, ours, err := parseSysEx(body)
	if !ours {
		return
	}

	t.mu.Lock()
	h := t.handler
	if err != nil {
		t.dropped++
	}
	t.mu.Unlock()

	if err != nil {
		debug.Log("bus", "midi sysex dropped: %v", err)
		return
	}
	if h != nil {
		h(m)
	}
}

// Send transmits one message
func (t *SysExTransport) Send(m bus.Message) error {
	body, err := sysExBody(m)
	if err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return bus.ErrClosed
	}
	if err := t.send(gomidi.SysEx(body)); err != nil {
		return fmt.Errorf("midi send: %w", err)
	}
	debug.Log("bus", "midi sent %v", m)
	return nil
}

func (t *SysExTransport) SetHandler(h bus.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Dropped counts our frames that failed to decode
func (t *SysExTransport) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *SysExTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.stopFunc != nil {
		t.stopFunc()
	}
	return nil
}
