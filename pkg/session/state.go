package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/stephaneeybert/musicng-sub001/pkg/player"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

// Devices returns the connected devices.
func (s *Session) Devices(ctx context.Context) ([]store.Device, error) {
	var out []store.Device
	err := s.Do(ctx, func() { out = s.devices.State() })
	return out, err
}

// SetMuted mutes or unmutes a device. It reports false for unknown ids.
func (s *Session) SetMuted(ctx context.Context, id string, muted bool) (bool, error) {
	var found bool
	err := s.Do(ctx, func() {
		if muted {
			found = s.devices.Mute(id)
		} else {
			found = s.devices.Unmute(id)
		}
	})
	return found, err
}

// SubscribeDevices calls fn on the loop goroutine with every device list.
// The returned func cancels the subscription.
func (s *Session) SubscribeDevices(ctx context.Context, fn func([]store.Device)) (func(), error) {
	var sub *store.Subscription[[]store.Device]
	if err := s.Do(ctx, func() { sub = s.devices.Subscribe(fn) }); err != nil {
		return nil, err
	}
	return func() { s.post(sub.Cancel) }, nil
}

// Soundtracks returns the loaded soundtracks.
func (s *Session) Soundtracks(ctx context.Context) ([]store.Soundtrack, error) {
	var out []store.Soundtrack
	err := s.Do(ctx, func() { out = s.soundtracks.State() })
	return out, err
}

// SubscribeSoundtracks calls fn on the loop goroutine with every
// soundtrack list. The returned func cancels the subscription.
func (s *Session) SubscribeSoundtracks(ctx context.Context, fn func([]store.Soundtrack)) (func(), error) {
	var sub *store.Subscription[[]store.Soundtrack]
	if err := s.Do(ctx, func() { sub = s.soundtracks.Subscribe(fn) }); err != nil {
		return nil, err
	}
	return func() { s.post(sub.Cancel) }, nil
}

// SoundtrackName derives a soundtrack name from a file name.
func SoundtrackName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AddSoundtrack imports a Standard MIDI File and adds it under name. It
// reports false, and keeps the existing one, when the name is taken.
func (s *Session) AddSoundtrack(ctx context.Context, name string, data []byte) (store.Soundtrack, bool, error) {
	tracks, err := score.ImportSMF(data)
	if err != nil {
		return store.Soundtrack{}, false, fmt.Errorf("import %s: %w", name, err)
	}
	var (
		st    store.Soundtrack
		added bool
	)
	err = s.Do(ctx, func() {
		added = s.soundtracks.Add(store.Soundtrack{ID: name, Name: name, Tracks: tracks})
		id := store.NormalizeKey(name)
		if added && s.settings.Settings().ShowKeyboard {
			if kb, kerr := s.keyboards.CreateKeyboard(soundtrackElementID(id), KeyboardWidth); kerr != nil {
				s.log.WithError(kerr).WithField("soundtrack", id).Warn("creating keyboard failed")
			} else {
				found, kerr := s.soundtracks.SetSoundtrackKeyboard(id, kb)
				s.adopt(s.log.WithField("soundtrack", id), "keyboard", found, kerr, kb.Release)
			}
		}
		st, _ = s.soundtracks.Get(id)
	})
	return st, added, err
}

func soundtrackElementID(id string) string {
	return "soundtrack-" + id
}

// DeleteSoundtrack removes a soundtrack and releases its handles.
func (s *Session) DeleteSoundtrack(ctx context.Context, id string) error {
	var rerr error
	if err := s.Do(ctx, func() { rerr = s.soundtracks.Delete(id) }); err != nil {
		return err
	}
	return wrap("release soundtrack", rerr)
}

// PlaySoundtrack plays every track of the soundtrack on the session synth,
// showing the notes on its keyboard, and returns when playback ends.
func (s *Session) PlaySoundtrack(ctx context.Context, id string, opts ...player.Option) error {
	st, found, err := s.Soundtrack(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("soundtrack %q: %w", id, score.ErrInvalidArgument)
	}
	if st.Keyboard != nil {
		opts = append([]player.Option{player.WithKeyboard(st.Keyboard)}, opts...)
	}
	s.log.WithField("soundtrack", st.ID).Info("playing")
	return player.New(s.synth, opts...).Play(ctx, st.Tracks...)
}

// ExportSoundtrack renders the soundtrack as a Standard MIDI File at the
// session resolution. It reports false for unknown ids.
func (s *Session) ExportSoundtrack(ctx context.Context, id string) ([]byte, bool, error) {
	st, found, err := s.Soundtrack(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	data, err := score.ExportSMFAt(st.Tracks, s.ppq)
	return data, true, wrap("export "+st.ID, err)
}

// Settings returns the current settings.
func (s *Session) Settings(ctx context.Context) (store.Settings, error) {
	var out store.Settings
	err := s.Do(ctx, func() { out = s.settings.Settings() })
	return out, err
}

// SaveSettings publishes and persists settings.
func (s *Session) SaveSettings(ctx context.Context, settings store.Settings) error {
	var serr error
	if err := s.Do(ctx, func() { serr = s.settings.SetAndStoreSettings(settings) }); err != nil {
		return err
	}
	return serr
}

// ResetSettings restores the default settings.
func (s *Session) ResetSettings(ctx context.Context) error {
	return s.Do(ctx, func() { s.settings.Delete() })
}

// Soundtrack returns the soundtrack whose key matches id.
func (s *Session) Soundtrack(ctx context.Context, id string) (store.Soundtrack, bool, error) {
	var (
		st    store.Soundtrack
		found bool
	)
	err := s.Do(ctx, func() { st, found = s.soundtracks.Get(id) })
	return st, found, err
}
