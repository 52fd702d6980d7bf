package audio

import (
	"sync"
)

// EventKind tells note on from note off in a recording.
type EventKind int

const (
	NoteOnEvent EventKind = iota
	NoteOffEvent
	ProgramChangeEvent
	ControlChangeEvent
)

// Event is one recorded synthesizer call. Program changes carry the
// program in Value; control changes carry the controller in Controller.
type Event struct {
	Kind       EventKind
	Channel    uint8
	Pitch      uint8
	Velocity   uint8
	Controller uint8
	Value      uint8
}

// Recorder is a Synthesizer that only remembers what it was asked to play.
// It is used for dry runs and tests.
type Recorder struct {
	channels channels

	mu       sync.Mutex
	events   []Event
	setup    []Event
	released []uint8
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) CreateSynth() (Voice, error) {
	ch, err := r.channels.take()
	if err != nil {
		return nil, err
	}
	return &channelVoice{channel: ch, release: r.releaseChannel}, nil
}

func (r *Recorder) releaseChannel(ch uint8) error {
	r.channels.free(ch)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, ch)
	return nil
}

func (r *Recorder) ProgramChange(program uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	r.recordSetup(Event{Kind: ProgramChangeEvent, Channel: v.Channel(), Value: program})
	return nil
}

func (r *Recorder) ControlChange(controller, value uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	r.recordSetup(Event{Kind: ControlChangeEvent, Channel: v.Channel(), Controller: controller, Value: value})
	return nil
}

func (r *Recorder) NoteOn(pitch, velocity uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	r.record(Event{Kind: NoteOnEvent, Channel: v.Channel(), Pitch: pitch, Velocity: velocity})
	return nil
}

func (r *Recorder) NoteOff(pitch uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	r.record(Event{Kind: NoteOffEvent, Channel: v.Channel(), Pitch: pitch})
	return nil
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) recordSetup(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setup = append(r.setup, e)
}

// Setup returns the recorded program and control changes in order.
func (r *Recorder) Setup() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.setup...)
}

// Events returns the recorded note calls in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Released returns the channels of released voices, in release order.
func (r *Recorder) Released() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint8(nil), r.released...)
}
