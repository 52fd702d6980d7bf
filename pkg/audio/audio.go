// Package audio defines the synthesizer the player and the device wiring
// drive, with a MIDI output implementation and an in-memory recorder.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Voice is a synth handle returned by CreateSynth. Its owner must call
// Release once done; releasing twice is harmless.
type Voice interface {
	Channel() uint8
	Release() error
}

// Synthesizer plays notes on voices it created.
type Synthesizer interface {
	CreateSynth() (Voice, error)
	// ProgramChange selects the instrument the voice plays with.
	ProgramChange(program uint8, v Voice) error
	ControlChange(controller, value uint8, v Voice) error
	NoteOn(pitch, velocity uint8, v Voice) error
	NoteOff(pitch uint8, v Voice) error
}

// ErrNoFreeChannel is returned when all sixteen MIDI channels hold a voice.
var ErrNoFreeChannel = errors.New("no free MIDI channel")

// ErrReleased is returned when playing on a released voice.
var ErrReleased = errors.New("voice released")

type channelVoice struct {
	channel uint8
	once    sync.Once
	release func(uint8) error
	err     error

	mu       sync.Mutex
	released bool
}

func (v *channelVoice) Channel() uint8 { return v.channel }

func (v *channelVoice) Release() error {
	v.once.Do(func() {
		v.mu.Lock()
		v.released = true
		v.mu.Unlock()
		v.err = v.release(v.channel)
	})
	return v.err
}

func (v *channelVoice) isReleased() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

// channels hands out MIDI channels, lowest free first.
type channels struct {
	mu   sync.Mutex
	used [16]bool
}

func (c *channels) take() (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.used {
		if !c.used[ch] {
			c.used[ch] = true
			return uint8(ch), nil
		}
	}
	return 0, ErrNoFreeChannel
}

func (c *channels) free(ch uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used[ch] = false
}

// MIDIOut plays voices on an external synthesizer through a MIDI output
// port, one channel per voice.
type MIDIOut struct {
	send     func(midi.Message) error
	channels channels
	program  uint8
}

// NewMIDIOut opens out for sending. program is sent to every new voice.
func NewMIDIOut(out drivers.Out, program uint8) (*MIDIOut, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", out, err)
	}
	return &MIDIOut{send: send, program: program}, nil
}

// NewMIDIOutByName opens the first output port whose name contains name.
func NewMIDIOutByName(name string, program uint8) (*MIDIOut, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find output %q: %w", name, err)
	}
	return NewMIDIOut(out, program)
}

func (m *MIDIOut) CreateSynth() (Voice, error) {
	ch, err := m.channels.take()
	if err != nil {
		return nil, err
	}
	if err := m.send(midi.ProgramChange(ch, m.program)); err != nil {
		m.channels.free(ch)
		return nil, err
	}
	return &channelVoice{channel: ch, release: m.releaseChannel}, nil
}

func (m *MIDIOut) releaseChannel(ch uint8) error {
	defer m.channels.free(ch)
	// all notes off
	return m.send(midi.ControlChange(ch, 123, 0))
}

func (m *MIDIOut) ProgramChange(program uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	return m.send(midi.ProgramChange(v.Channel(), program))
}

func (m *MIDIOut) ControlChange(controller, value uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	return m.send(midi.ControlChange(v.Channel(), controller, value))
}

func (m *MIDIOut) NoteOn(pitch, velocity uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	return m.send(midi.NoteOn(v.Channel(), pitch, velocity))
}

func (m *MIDIOut) NoteOff(pitch uint8, v Voice) error {
	if err := checkVoice(v); err != nil {
		return err
	}
	return m.send(midi.NoteOff(v.Channel(), pitch))
}

func checkVoice(v Voice) error {
	if v == nil {
		return errors.New("nil voice")
	}
	if cv, ok := v.(*channelVoice); ok && cv.isReleased() {
		return ErrReleased
	}
	return nil
}
