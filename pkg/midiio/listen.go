package midiio

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Subscription is a live listener on an input port. Stop ends it; calling
// Stop more than once has no further effect.
type Subscription struct {
	once    sync.Once
	stop    func()
	stopped chan struct{}
}

// NewSubscription wraps a stop function.
func NewSubscription(stop func()) *Subscription {
	return &Subscription{stop: stop, stopped: make(chan struct{})}
}

func (s *Subscription) Stop() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.stopped)
	})
}

// Done is closed once the subscription is stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}

// NoteHandler receives note on/off messages. A note on with zero velocity
// is reported as a note off.
type NoteHandler func(on bool, channel, key, velocity uint8)

// Listen opens in if needed and calls handle for every note message until
// the returned subscription is stopped.
func Listen(in drivers.In, handle NoteHandler) (*Subscription, error) {
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		var channel, key, velocity uint8
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			handle(true, channel, key, velocity)
		case msg.GetNoteEnd(&channel, &key):
			handle(false, channel, key, 0)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listen to %s: %w", in, err)
	}
	return NewSubscription(stop), nil
}
