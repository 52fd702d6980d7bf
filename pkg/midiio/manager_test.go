package midiio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// fakeIn implements drivers.In by name only
type fakeIn struct {
	drivers.In
	name string
}

func (f fakeIn) String() string { return f.name }

type fakeSource struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (s *fakeSource) set(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = names
}

func (s *fakeSource) Ins() ([]drivers.In, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	ins := make([]drivers.In, 0, len(s.names))
	for _, n := range s.names {
		ins = append(ins, fakeIn{name: n})
	}
	return ins, nil
}

func drain(m *Manager) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestScanReportsHotPlug(t *testing.T) {
	src := &fakeSource{}
	m := NewManager(src, time.Hour)
	ctx := context.Background()

	src.set("Keystation 49", "Launchpad X")
	m.Scan(ctx)
	events := drain(m)
	if len(events) != 2 {
		t.Fatalf("events = %+v, want 2 connects", events)
	}
	if events[0].ID != "Keystation 49" || events[0].Type != Connected || events[0].Port == nil {
		t.Errorf("events[0] = %+v", events[0])
	}
	if got := m.Connected(); len(got) != 2 {
		t.Errorf("Connected() = %d ports, want 2", len(got))
	}

	m.Scan(ctx)
	if events := drain(m); len(events) != 0 {
		t.Errorf("unchanged scan emitted %+v", events)
	}

	src.set("Launchpad X")
	m.Scan(ctx)
	events = drain(m)
	if len(events) != 1 || events[0].Type != Disconnected || events[0].ID != "Keystation 49" {
		t.Errorf("events = %+v, want Keystation 49 disconnect", events)
	}
}

func TestScanIgnoresSourceErrors(t *testing.T) {
	src := &fakeSource{}
	src.set("Keystation 49")
	m := NewManager(src, time.Hour)
	m.Scan(context.Background())
	drain(m)

	src.err = errors.New("driver gone")
	m.Scan(context.Background())
	if events := drain(m); len(events) != 0 {
		t.Errorf("failed scan emitted %+v", events)
	}
	if got := m.Connected(); len(got) != 1 {
		t.Errorf("Connected() = %d ports, want previous scan kept", len(got))
	}
}

func TestRunClosesEvents(t *testing.T) {
	src := &fakeSource{}
	src.set("Keystation 49")
	m := NewManager(src, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	ev := <-m.Events()
	if ev.ID != "Keystation 49" {
		t.Errorf("first event = %+v", ev)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-m.Events(); ok {
		t.Error("Events() not closed after Run returned")
	}
}

func TestSubscriptionStopsOnce(t *testing.T) {
	stops := 0
	s := NewSubscription(func() { stops++ })
	s.Stop()
	s.Stop()
	if stops != 1 {
		t.Errorf("stop called %d times, want 1", stops)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after Stop")
	}
}
