// Package sched is the reactive scheduling substrate every active object is
// written against: synchronous calls, fire-and-forget dispatch, timed
// dispatch bounded by a baseline and a deadline, and cancellation.
//
// One Kernel dispatches one handler at a time in baseline order. Handlers
// never block on I/O; waiting is expressed by scheduling a later message.
package sched

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go-conductor/debug"
)

// Msg is a pending invocation. It doubles as the handle Abort takes.
type Msg struct {
	obj      *Object
	fn       func()
	baseline time.Time
	deadline time.Time // zero = no deadline
	seq      uint64
	index    int // position in the queue, -1 once popped or aborted
}

// Baseline is the earliest time the message may start.
func (m *Msg) Baseline() time.Time { return m.baseline }

// Deadline is the latest time the message may start (zero if none).
func (m *Msg) Deadline() time.Time { return m.deadline }

// msgQueue orders by baseline, then by submission.
type msgQueue []*Msg

func (q msgQueue) Len() int { return len(q) }
func (q msgQueue) Less(i, j int) bool {
	if q[i].baseline.Equal(q[j].baseline) {
		return q[i].seq < q[j].seq
	}
	return q[i].baseline.Before(q[j].baseline)
}
func (q msgQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *msgQueue) Push(x any) {
	m := x.(*Msg)
	m.index = len(*q)
	*q = append(*q, m)
}
func (q *msgQueue) Pop() any {
	old := *q
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	m.index = -1
	*q = old[:n-1]
	return m
}

// Kernel is the run queue plus the dispatcher.
type Kernel struct {
	clock Clock

	mu      sync.Mutex
	queue   msgQueue
	seq     uint64
	current *Msg // message being dispatched

	wake    chan struct{} // signal Run to recalculate (queue changed)
	onFault func(error)
	faults  atomic.Uint64
}

// NewKernel creates a kernel reading time from clock.
func NewKernel(clock Clock) *Kernel {
	return &Kernel{
		clock: clock,
		wake:  make(chan struct{}, 1),
		onFault: func(err error) {
			debug.LogEvery(50, "fault", "%v", err)
		},
	}
}

// SetFaultHandler replaces the default (debug log) timing fault report.
func (k *Kernel) SetFaultHandler(fn func(error)) {
	k.mu.Lock()
	k.onFault = fn
	k.mu.Unlock()
}

// Faults returns the number of timing faults seen so far.
func (k *Kernel) Faults() uint64 {
	return k.faults.Load()
}

// Now is the baseline of the message being dispatched while a handler runs,
// and the clock time otherwise. Offsets given to Send are measured from it,
// which keeps timed chains from drifting. Code outside the dispatcher should
// stamp events with Wall instead.
func (k *Kernel) Now() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nowLocked()
}

func (k *Kernel) nowLocked() time.Time {
	if k.current != nil {
		return k.current.baseline
	}
	return k.clock.Now()
}

// Wall is the clock time, even while a handler runs. A late dispatcher does
// not hold it back.
func (k *Kernel) Wall() time.Time {
	return k.clock.Now()
}

// Send schedules fn on o no earlier than after from Now. A positive window
// sets the deadline to baseline+window.
func (k *Kernel) Send(o *Object, after, window time.Duration, fn func()) *Msg {
	k.mu.Lock()
	baseline := k.nowLocked().Add(after)
	k.mu.Unlock()
	return k.push(o, baseline, window, fn)
}

// At schedules fn on o no earlier than t, with no deadline.
func (k *Kernel) At(o *Object, t time.Time, fn func()) *Msg {
	return k.push(o, t, 0, fn)
}

func (k *Kernel) push(o *Object, baseline time.Time, window time.Duration, fn func()) *Msg {
	k.mu.Lock()
	m := &Msg{obj: o, fn: fn, baseline: baseline, seq: k.seq}
	k.seq++
	if window > 0 {
		m.deadline = m.baseline.Add(window)
	}
	heap.Push(&k.queue, m)
	k.mu.Unlock()

	k.interrupt()
	return m
}

// Async dispatches fn on o as soon as possible without waiting for it.
func (k *Kernel) Async(o *Object, fn func()) *Msg {
	return k.Send(o, 0, 0, fn)
}

// After schedules fn on o after d with no deadline.
func (k *Kernel) After(o *Object, d time.Duration, fn func()) *Msg {
	return k.Send(o, d, 0, fn)
}

// Abort withdraws m if it has not started. Aborting a message that already
// ran, or a nil handle, does nothing.
func (k *Kernel) Abort(m *Msg) {
	if m == nil {
		return
	}
	k.mu.Lock()
	if m.index >= 0 && m.index < len(k.queue) && k.queue[m.index] == m {
		heap.Remove(&k.queue, m.index)
	}
	k.mu.Unlock()
}

// Pending returns the number of queued messages.
func (k *Kernel) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queue)
}

// interrupt wakes Run without blocking
func (k *Kernel) interrupt() {
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

// Run dispatches messages in real time until ctx is cancelled (blocking -
// run in goroutine).
func (k *Kernel) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var due *Msg
		wait := time.Duration(-1)

		k.mu.Lock()
		if len(k.queue) > 0 {
			if d := k.queue[0].baseline.Sub(k.clock.Now()); d > 0 {
				wait = d
			} else {
				due = heap.Pop(&k.queue).(*Msg)
			}
		}
		k.mu.Unlock()

		if due != nil {
			k.dispatch(due)
			continue
		}

		var fire <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-k.wake:
		case <-fire:
		}
		timer.Stop()
	}
}

// Advance dispatches, in order, every message whose baseline falls within d
// of the current time, moving the ManualClock to each baseline before the
// handler runs. It returns the number of handlers run. Advance(0) drains
// everything already due.
func (k *Kernel) Advance(d time.Duration) int {
	mc, ok := k.clock.(*ManualClock)
	if !ok {
		panic("sched: Advance needs a ManualClock")
	}
	target := mc.Now().Add(d)

	n := 0
	for {
		k.mu.Lock()
		if len(k.queue) == 0 || k.queue[0].baseline.After(target) {
			k.mu.Unlock()
			break
		}
		m := heap.Pop(&k.queue).(*Msg)
		k.mu.Unlock()

		if m.baseline.After(mc.Now()) {
			mc.Set(m.baseline)
		}
		k.dispatch(m)
		n++
	}
	if target.After(mc.Now()) {
		mc.Set(target)
	}
	return n
}

func (k *Kernel) dispatch(m *Msg) {
	k.mu.Lock()
	k.current = m
	report := k.onFault
	k.mu.Unlock()

	if !m.deadline.IsZero() {
		if started := k.clock.Now(); started.After(m.deadline) {
			k.faults.Add(1)
			if report != nil {
				report(newTimingFault(m, started))
			}
		}
	}

	defer func() {
		k.mu.Lock()
		k.current = nil
		k.mu.Unlock()
	}()
	Do(m.obj, m.fn)
}
