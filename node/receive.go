package node

import (
	"fmt"

	"go-conductor/bus"
	"go-conductor/debug"
)

// Receive is the bus handler. It queues the frame onto the node so it is
// applied with the node's exclusion, in the kernel's order.
func (n *Node) Receive(m bus.Message) {
	n.received.Add(1)
	n.k.Async(&n.Object, func() { n.apply(m) })
}

// apply runs under the node's exclusion. Only a musician acts on the bus;
// each node validates against its own state, so nodes may diverge.
func (n *Node) apply(m bus.Message) {
	debug.Log("bus", "received %v as %v", m, n.role)
	if n.role != Musician {
		n.ignored.Add(1)
		return
	}

	v, hasValue := m.Value()
	var res Result
	switch m.Action {
	case bus.PlayMusic:
		res = n.play()
	case bus.StopMusic:
		res = n.stop()
	case bus.ToggleMute:
		res = n.toggleMute()
	case bus.ChangeVolume:
		if !hasValue {
			n.malformed(m)
			return
		}
		res = n.volume(v)
	case bus.ChangeTempo:
		if !hasValue {
			n.malformed(m)
			return
		}
		res = n.tempo(v)
	case bus.ChangeKey:
		if !hasValue {
			n.malformed(m)
			return
		}
		res = n.key(v)
	default:
		// ToggleIsPlaying is reserved
		n.ignored.Add(1)
		return
	}
	n.logLocked(res.Message)
}

func (n *Node) malformed(m bus.Message) {
	n.ignored.Add(1)
	n.logLocked(fmt.Sprintf("Ignoring %v without a value", m.Action))
}
