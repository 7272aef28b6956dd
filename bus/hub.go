package bus

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"go-conductor/debug"
)

// Handler receives inbound messages. It is called from the transport's
// delivery goroutine and should hand off quickly.
type Handler func(Message)

// Transport is a node's attachment to the bus. Send never echoes back to
// the sender's own handler.
type Transport interface {
	Send(m Message) error
	SetHandler(h Handler)
	Close() error
}

// ErrClosed is returned by Send on a closed transport.
var ErrClosed = errors.New("bus: transport closed")

type frame struct {
	msg   Message
	from  *Port
	seq   uint64
	index int
}

// frameQueue arbitrates like a CAN bus: lowest id first, then FIFO
type frameQueue []*frame

func (q frameQueue) Len() int { return len(q) }
func (q frameQueue) Less(i, j int) bool {
	if q[i].msg.Action == q[j].msg.Action {
		return q[i].seq < q[j].seq
	}
	return q[i].msg.Action < q[j].msg.Action
}
func (q frameQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *frameQueue) Push(x any) {
	f := x.(*frame)
	f.index = len(*q)
	*q = append(*q, f)
}
func (q *frameQueue) Pop() any {
	old := *q
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return f
}

// Hub is an in-process bus. Every attached port hears every frame sent by
// the others.
type Hub struct {
	mu      sync.Mutex
	ports   []*Port
	pending frameQueue
	seq     uint64

	deliver sync.Mutex // one delivery at a time, in arbitration order
	wake    chan struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{wake: make(chan struct{}, 1)}
}

// Attach adds a port to the hub
func (h *Hub) Attach() *Port {
	p := &Port{hub: h}
	h.mu.Lock()
	h.ports = append(h.ports, p)
	h.mu.Unlock()
	return p
}

func (h *Hub) detach(p *Port) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, q := range h.ports {
		if q == p {
			h.ports = append(h.ports[:i], h.ports[i+1:]...)
			return
		}
	}
}

func (h *Hub) enqueue(from *Port, m Message) {
	h.mu.Lock()
	heap.Push(&h.pending, &frame{msg: m, from: from, seq: h.seq})
	h.seq++
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of undelivered frames
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Flush delivers every pending frame, highest priority first, and returns
// how many were delivered. Frames sent by handlers during the flush are
// delivered too.
func (h *Hub) Flush() int {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	n := 0
	for {
		h.mu.Lock()
		if len(h.pending) == 0 {
			h.mu.Unlock()
			return n
		}
		f := heap.Pop(&h.pending).(*frame)
		ports := append([]*Port(nil), h.ports...)
		h.mu.Unlock()

		for _, p := range ports {
			if p != f.from {
				p.receive(f.msg)
			}
		}
		n++
	}
}

// Run delivers frames as they arrive until ctx is cancelled (blocking - run
// in goroutine).
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
			if n := h.Flush(); n > 0 {
				debug.LogEvery(100, "bus", "delivered %d frames", n)
			}
		}
	}
}

// Port is one node's connection to a Hub.
type Port struct {
	hub     *Hub
	mu      sync.Mutex
	handler Handler
	closed  bool
}

// Send queues m for every other port.
func (p *Port) Send(m Message) error {
	if _, err := m.Encode(); err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	p.hub.enqueue(p, m)
	return nil
}

// SetHandler sets the receive handler (nil drops inbound frames)
func (p *Port) SetHandler(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Close detaches the port from the hub
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.handler = nil
	p.mu.Unlock()
	p.hub.detach(p)
	return nil
}

func (p *Port) receive(m Message) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(m)
	}
}
