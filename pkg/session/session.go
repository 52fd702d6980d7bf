// Package session runs the application state on one goroutine.
//
// The stores are not safe for concurrent use. A Session owns them and
// serves every access through Do, which runs a closure on the loop
// goroutine started by Run. MIDI hot-plug events and incoming notes are
// handled on the same goroutine.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/midiio"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/storage"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

// KeyboardWidth is the number of keys of the keyboards the session creates.
const KeyboardWidth = 88

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("session stopped")

// ListenFunc starts delivering notes from an input port.
type ListenFunc func(in drivers.In, handle midiio.NoteHandler) (*midiio.Subscription, error)

// Options are the collaborators of a Session. Zero fields get defaults.
type Options struct {
	Storage   storage.Storage
	Keyboards keyboard.Factory
	Synth     audio.Synthesizer
	// Manager reports MIDI hot-plug events. Without one no device is ever
	// connected.
	Manager *midiio.Manager
	Listen  ListenFunc
	// PPQ is the resolution of exported MIDI files.
	PPQ int
}

// Session owns the stores and wires devices to them.
type Session struct {
	devices     *store.DeviceStore
	soundtracks *store.SoundtrackStore
	settings    *store.SettingsStore

	keyboards keyboard.Factory
	synth     audio.Synthesizer
	manager   *midiio.Manager
	listen    ListenFunc
	ppq       int

	calls   chan func()
	stopped chan struct{}
	log     *logrus.Entry
}

func New(opts Options) *Session {
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	if opts.Keyboards == nil {
		opts.Keyboards = keyboard.NewRegistry()
	}
	if opts.Synth == nil {
		opts.Synth = audio.NewRecorder()
	}
	if opts.Listen == nil {
		opts.Listen = midiio.Listen
	}
	if opts.PPQ <= 0 {
		opts.PPQ = score.DefaultPPQ
	}
	return &Session{
		devices:     store.NewDeviceStore(),
		soundtracks: store.NewSoundtrackStore(),
		settings:    store.NewSettingsStore(opts.Storage),
		keyboards:   opts.Keyboards,
		synth:       opts.Synth,
		manager:     opts.Manager,
		listen:      opts.Listen,
		ppq:         opts.PPQ,
		calls:       make(chan func()),
		stopped:     make(chan struct{}),
		log:         logrus.WithField("component", "session"),
	}
}

// Run loads the stored settings and serves the loop until ctx is done.
// Every device and soundtrack is released before it returns.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)

	if err := s.settings.LoadFromStorage(); err != nil {
		s.log.WithError(err).Warn("using default settings")
	}

	var events <-chan midiio.Event
	if s.manager != nil {
		events = s.manager.Events()
		go s.manager.Run(ctx)
	}

	s.log.Info("session started")
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case fn := <-s.calls:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handle(ev)
		}
	}
}

func (s *Session) shutdown() {
	if err := s.devices.DeleteAll(); err != nil {
		s.log.WithError(err).Warn("releasing devices failed")
	}
	if err := s.soundtracks.DeleteAll(); err != nil {
		s.log.WithError(err).Warn("releasing soundtracks failed")
	}
	s.log.Info("session stopped")
}

// Do runs fn on the loop goroutine and waits for it to return.
func (s *Session) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	call := func() {
		defer close(done)
		fn()
	}
	select {
	case s.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		<-done
		return nil
	}
}

// post queues fn without waiting for it. It is used from driver
// goroutines, which must not block on a stopped loop.
func (s *Session) post(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.stopped:
	}
}

func (s *Session) handle(ev midiio.Event) {
	switch ev.Type {
	case midiio.Connected:
		s.connect(ev.ID, ev.Port)
	case midiio.Disconnected:
		s.disconnect(ev.ID)
	}
}

// connect adds the device and gives it a keyboard, a voice and a MIDI
// subscription. A failing collaborator only costs the device that part.
func (s *Session) connect(name string, port drivers.In) {
	id := store.NormalizeKey(name)
	log := s.log.WithField("device", id)
	if !s.devices.Add(store.Device{ID: id, Name: name}) {
		log.Debug("device already known")
		return
	}
	log.Info("device connected")

	if s.settings.Settings().ShowKeyboard {
		kb, err := s.keyboards.CreateKeyboard(deviceElementID(id), KeyboardWidth)
		if err != nil {
			log.WithError(err).Warn("creating keyboard failed")
		} else {
			found, err := s.devices.SetDeviceKeyboard(id, kb)
			s.adopt(log, "keyboard", found, err, kb.Release)
		}
	}

	voice, err := s.synth.CreateSynth()
	if err != nil {
		log.WithError(err).Warn("creating synth failed")
	} else {
		found, err := s.devices.SetDeviceSynth(id, voice)
		s.adopt(log, "synth", found, err, voice.Release)
	}

	if port == nil {
		return
	}
	sub, err := s.listen(port, func(on bool, channel, key, velocity uint8) {
		s.post(func() { s.playNote(id, on, key, velocity) })
	})
	if err != nil {
		log.WithError(err).Warn("listening to device failed")
		return
	}
	if !s.devices.SetDeviceSubscription(id, sub) {
		log.Debug("device gone before listening started")
		sub.Stop()
	}
}

// adopt logs the outcome of handing a new handle to a store entry. When the
// entry is gone the handle has no owner and is released here.
func (s *Session) adopt(log *logrus.Entry, what string, found bool, err error, release func() error) {
	if err != nil {
		log.WithError(err).Warnf("releasing replaced %s failed", what)
	}
	if found {
		return
	}
	log.Debugf("entry gone before %s was attached", what)
	if rerr := release(); rerr != nil {
		log.WithError(rerr).Warnf("releasing %s failed", what)
	}
}

func deviceElementID(id string) string {
	return "device-" + id
}

func (s *Session) disconnect(name string) {
	log := s.log.WithField("device", store.NormalizeKey(name))
	if err := s.devices.Delete(name); err != nil {
		log.WithError(err).Warn("releasing device failed")
	}
	log.Info("device disconnected")
}

// playNote sends a note received from a device to its voice and keyboard.
// Muted devices are ignored.
func (s *Session) playNote(id string, on bool, key, velocity uint8) {
	d, ok := s.devices.Get(id)
	if !ok || d.Muted {
		return
	}
	var err error
	if d.Synth != nil {
		if on {
			err = s.synth.NoteOn(key, velocity, d.Synth)
		} else {
			err = s.synth.NoteOff(key, d.Synth)
		}
	}
	if err != nil {
		s.log.WithError(err).WithField("device", id).Debug("note dropped")
	}
	if d.Keyboard != nil {
		if on {
			d.Keyboard.PressKey(key)
		} else {
			d.Keyboard.UnpressKey(key)
		}
	}
}

// Connect handles a device connection as a hot-plug event would.
func (s *Session) Connect(ctx context.Context, name string, port drivers.In) error {
	return s.Do(ctx, func() { s.connect(name, port) })
}

// Disconnect handles a device removal as a hot-plug event would.
func (s *Session) Disconnect(ctx context.Context, name string) error {
	return s.Do(ctx, func() { s.disconnect(name) })
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
