package bus

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"go-conductor/debug"
)

// Serial framing to the CAN adapter:
//
//	[SOF0][SOF1][LEN][ID][payload...][CKS]
//
// LEN counts the ID byte plus the payload; CKS is the XOR of LEN, ID and
// the payload bytes.
const (
	SOF0 = 0xAA
	SOF1 = 0x55
)

// EncodeFrame wraps m for the serial line.
func EncodeFrame(m Message) ([]byte, error) {
	body, err := m.Encode()
	if err != nil {
		return nil, err
	}
	// body is [id][len][payload]; the adapter wants [len+1][id][payload]
	payload := body[2:]
	length := byte(len(payload) + 1)
	cks := length ^ body[0]
	for _, b := range payload {
		cks ^= b
	}

	out := []byte{SOF0, SOF1, length, body[0]}
	out = append(out, payload...)
	out = append(out, cks)
	return out, nil
}

// FrameParser reassembles frames from a byte stream. It resynchronizes on
// SOF0 SOF1 and drops frames with a bad checksum or an undecodable body.
type FrameParser struct {
	buf     []byte
	Dropped int
}

// Feed consumes b and returns every message completed by it.
func (p *FrameParser) Feed(b []byte) []Message {
	p.buf = append(p.buf, b...)
	var out []Message
	for {
		// find start of frame
		i := 0
		for i+1 < len(p.buf) && !(p.buf[i] == SOF0 && p.buf[i+1] == SOF1) {
			i++
		}
		if i > 0 {
			p.buf = p.buf[i:]
		}
		if len(p.buf) < 3 {
			return out
		}
		if p.buf[0] != SOF0 || p.buf[1] != SOF1 {
			return out
		}
		length := int(p.buf[2])
		if length < 1 || length > MaxPayload+1 {
			p.Dropped++
			p.buf = p.buf[2:]
			continue
		}
		total := 3 + length + 1
		if len(p.buf) < total {
			return out
		}

		frame := p.buf[:total]
		cks := frame[2]
		for _, b := range frame[3 : total-1] {
			cks ^= b
		}
		if cks != frame[total-1] {
			p.Dropped++
			p.buf = p.buf[2:]
			continue
		}

		id, payload := frame[3], frame[4:total-1]
		body := append([]byte{id, byte(len(payload))}, payload...)
		p.buf = p.buf[total:]
		m, err := Decode(body)
		if err != nil {
			p.Dropped++
			continue
		}
		out = append(out, m)
	}
}

// SerialTransport speaks the adapter framing over any byte stream.
type SerialTransport struct {
	rw io.ReadWriteCloser

	mu      sync.Mutex
	handler Handler
	closed  bool
	done    chan struct{}
}

// NewSerialTransport starts reading frames from rw.
func NewSerialTransport(rw io.ReadWriteCloser) *SerialTransport {
	t := &SerialTransport{rw: rw, done: make(chan struct{})}
	go t.readLoop()
	return t
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int) (*SerialTransport, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	discardStale(p, name)
	debug.Log("bus", "serial port opened: %s @ %d", name, baud)
	return NewSerialTransport(p), nil
}

// discardStale drops bytes the adapter buffered before we opened it. A
// failure only costs a few garbled frames, so it is logged and ignored.
func discardStale(p interface{ ResetInputBuffer() error }, name string) {
	if err := p.ResetInputBuffer(); err != nil {
		debug.Log("bus", "serial reset input %s: %v", name, err)
	}
}

// SerialPorts lists serial devices present on the system.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Send writes one frame.
func (t *SerialTransport) Send(m Message) error {
	data, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, err := t.rw.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	debug.Log("bus", "serial sent %v", m)
	return nil
}

// SetHandler sets the receive handler
func (t *SerialTransport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Close closes the port and waits for the reader to exit.
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.rw.Close()
	<-t.done
	return err
}

func (t *SerialTransport) readLoop() {
	defer close(t.done)

	var parser FrameParser
	buf := make([]byte, 64)
	for {
		n, err := t.rw.Read(buf)
		if n > 0 {
			for _, m := range parser.Feed(buf[:n]) {
				t.mu.Lock()
				h := t.handler
				t.mu.Unlock()
				if h != nil {
					h(m)
				}
			}
		}
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				debug.Log("bus", "serial read: %v", err)
			}
			return
		}
	}
}
