package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-conductor/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of tap controllers
type DeviceManager struct {
	matches     []Match
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration

	list func() (map[string]drivers.In, bool)
	open func(id string, in drivers.In, m Match) (Controller, error)
}

// NewDeviceManager creates a device manager for ports matching any of matches
func NewDeviceManager(matches []Match) *DeviceManager {
	return &DeviceManager{
		matches:     matches,
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		list:        listInPorts,
		open: func(id string, in drivers.In, m Match) (Controller, error) {
			return NewButtonController(id, in, m)
		},
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// listInPorts asks the driver for input ports, giving up after 3s
// (CoreMIDI can hang).
func listInPorts() (map[string]drivers.In, bool) {
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- gomidi.GetInPorts()
	}()

	select {
	case inPorts := <-ch:
		ports := make(map[string]drivers.In, len(inPorts))
		for _, p := range inPorts {
			ports[p.String()] = p
		}
		return ports, true
	case <-time.After(3 * time.Second):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, false
	}
}

func (dm *DeviceManager) lookup(name string) (Match, bool) {
	name = strings.ToLower(name)
	for _, m := range dm.matches {
		if m.Pattern != "" && strings.Contains(name, strings.ToLower(m.Pattern)) {
			return m, true
		}
	}
	return Match{}, false
}

func (dm *DeviceManager) scan() {
	ports, ok := dm.list()
	if !ok {
		// driver hung - skip this scan
		return
	}

	var events []DeviceEvent
	seenIDs := make(map[string]bool)

	for id, in := range ports {
		m, ok := dm.lookup(id)
		if !ok {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := dm.open(id, in, m)
		if err != nil {
			debug.Log("midi", "open %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()
		events = append(events, DeviceEvent{Type: DeviceConnected, Controller: c, ID: id})
	}

	// Check for disconnects
	dm.mu.Lock()
	for id, c := range dm.controllers {
		if !seenIDs[id] {
			c.Close()
			delete(dm.controllers, id)
			events = append(events, DeviceEvent{Type: DeviceDisconnected, ID: id})
		}
	}
	dm.mu.Unlock()

	for _, ev := range events {
		debug.Log("midi", "device %s connected=%v", ev.ID, ev.Type == DeviceConnected)
		dm.events <- ev
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
