package store

import (
	"errors"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
)

// Soundtrack is a loaded score. Its keyboard and synth handles are owned by
// the store entry.
type Soundtrack struct {
	ID       string
	Name     string
	Tracks   []score.Track
	Keyboard keyboard.Keyboard
	Synth    audio.Voice
}

// HasNotes reports whether any track holds a measure.
func (s Soundtrack) HasNotes() bool {
	for _, t := range s.Tracks {
		if t.HasMeasures() {
			return true
		}
	}
	return false
}

func (s *Soundtrack) release() error {
	var errs []error
	if s.Keyboard != nil {
		errs = append(errs, s.Keyboard.Release())
	}
	if s.Synth != nil {
		errs = append(errs, s.Synth.Release())
	}
	return errors.Join(errs...)
}

// SoundtrackStore is the list of loaded soundtracks.
type SoundtrackStore struct {
	items keyed[Soundtrack]
}

func NewSoundtrackStore() *SoundtrackStore {
	return &SoundtrackStore{items: newKeyed(
		func(s *Soundtrack) *string { return &s.ID },
		(*Soundtrack).release,
	)}
}

func (s *SoundtrackStore) State() []Soundtrack {
	return s.items.State()
}

func (s *SoundtrackStore) Subscribe(fn func([]Soundtrack)) *Subscription[[]Soundtrack] {
	return s.items.Subscribe(fn)
}

func (s *SoundtrackStore) Len() int {
	return len(s.items.State())
}

func (s *SoundtrackStore) Get(id string) (Soundtrack, bool) {
	return s.items.get(id)
}

// Add appends st under its normalized id unless the key is taken.
func (s *SoundtrackStore) Add(st Soundtrack) bool {
	return s.items.add(st)
}

// Delete releases the soundtrack handles and removes it.
func (s *SoundtrackStore) Delete(id string) error {
	return s.items.remove(id)
}

func (s *SoundtrackStore) DeleteAll() error {
	return s.items.removeAll()
}

// SetSoundtrackKeyboard replaces the soundtrack keyboard; nil releases it.
func (s *SoundtrackStore) SetSoundtrackKeyboard(id string, kb keyboard.Keyboard) (bool, error) {
	var err error
	found := s.items.update(id, func(st *Soundtrack) bool {
		err = releaseReplaced(st.Keyboard, kb)
		st.Keyboard = kb
		return true
	})
	return found, err
}

// SetSoundtrackSynth replaces the soundtrack voice; nil releases it.
func (s *SoundtrackStore) SetSoundtrackSynth(id string, v audio.Voice) (bool, error) {
	var err error
	found := s.items.update(id, func(st *Soundtrack) bool {
		err = releaseReplaced(st.Synth, v)
		st.Synth = v
		return true
	})
	return found, err
}
