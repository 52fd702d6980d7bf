// Package midiio watches MIDI input ports for hot-plug and turns incoming
// note messages into callbacks.
package midiio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// EventType tells connects from disconnects.
type EventType int

const (
	Connected EventType = iota
	Disconnected
)

func (t EventType) String() string {
	if t == Connected {
		return "connected"
	}
	return "disconnected"
}

// Event is emitted when an input port appears or disappears. Port is nil on
// disconnect.
type Event struct {
	Type EventType
	ID   string
	Port drivers.In
}

// Source lists the input ports currently available. drivers.Driver
// implementations satisfy it.
type Source interface {
	Ins() ([]drivers.In, error)
}

type registeredDriver struct{}

func (registeredDriver) Ins() ([]drivers.In, error) {
	return gomidi.GetInPorts(), nil
}

// DefaultSource lists the ports of the registered gomidi driver.
var DefaultSource Source = registeredDriver{}

// Manager polls a Source and reports hot-plug events.
type Manager struct {
	source   Source
	pollRate time.Duration
	timeout  time.Duration
	events   chan Event
	log      *logrus.Entry

	mu    sync.RWMutex
	ports map[string]drivers.In
}

// NewManager creates a manager polling source every pollRate.
func NewManager(source Source, pollRate time.Duration) *Manager {
	if source == nil {
		source = DefaultSource
	}
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &Manager{
		source:   source,
		pollRate: pollRate,
		timeout:  3 * time.Second,
		events:   make(chan Event, 16),
		log:      logrus.WithField("component", "midiio"),
		ports:    make(map[string]drivers.In),
	}
}

// Events returns the channel of connect/disconnect events. It is closed
// when Run returns.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connected returns the ports seen by the last scan, sorted by name.
func (m *Manager) Connected() []drivers.In {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ports := make([]drivers.In, 0, len(m.ports))
	for _, p := range m.ports {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].String() < ports[j].String() })
	return ports
}

// Run scans until ctx is cancelled (blocking - run in goroutine).
func (m *Manager) Run(ctx context.Context) {
	defer close(m.events)

	ticker := time.NewTicker(m.pollRate)
	defer ticker.Stop()

	m.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan lists the ports once and emits the differences with the previous
// scan.
func (m *Manager) Scan(ctx context.Context) {
	type portsResult struct {
		ins []drivers.In
		err error
	}

	// some drivers hang while enumerating
	ch := make(chan portsResult, 1)
	go func() {
		ins, err := m.source.Ins()
		ch <- portsResult{ins: ins, err: err}
	}()

	var ins []drivers.In
	select {
	case res := <-ch:
		if res.err != nil {
			m.log.WithError(res.err).Warn("listing MIDI inputs failed")
			return
		}
		ins = res.ins
	case <-time.After(m.timeout):
		m.log.Warn("listing MIDI inputs timed out")
		return
	case <-ctx.Done():
		return
	}

	seen := make(map[string]drivers.In, len(ins))
	for _, in := range ins {
		seen[in.String()] = in
	}

	var events []Event
	m.mu.Lock()
	for id, in := range seen {
		if _, ok := m.ports[id]; !ok {
			m.ports[id] = in
			events = append(events, Event{Type: Connected, ID: id, Port: in})
		}
	}
	for id := range m.ports {
		if _, ok := seen[id]; !ok {
			delete(m.ports, id)
			events = append(events, Event{Type: Disconnected, ID: id})
		}
	}
	m.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	for _, ev := range events {
		m.log.WithFields(logrus.Fields{"device": ev.ID, "event": ev.Type}).Info("MIDI input changed")
		select {
		case m.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
