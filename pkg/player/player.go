// Package player plays tracks on a synthesizer in real time.
package player

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/wakelock"
)

// Clock waits between events.
type Clock interface {
	Wait(ctx context.Context, d time.Duration) error
}

// RealClock waits with timers.
type RealClock struct{}

func (RealClock) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Player turns scheduled notes into synthesizer calls.
type Player struct {
	synth    audio.Synthesizer
	clock    Clock
	locks    *wakelock.Manager
	keyboard keyboard.Keyboard
	log      *logrus.Entry
}

// Option configures a Player.
type Option func(*Player)

// WithClock replaces the real-time clock.
func WithClock(c Clock) Option {
	return func(p *Player) { p.clock = c }
}

// WithWakeLocks takes wake locks from m instead of the default manager.
func WithWakeLocks(m *wakelock.Manager) Option {
	return func(p *Player) { p.locks = m }
}

// WithKeyboard shows the playing notes on kb.
func WithKeyboard(kb keyboard.Keyboard) Option {
	return func(p *Player) { p.keyboard = kb }
}

func New(synth audio.Synthesizer, opts ...Option) *Player {
	p := &Player{
		synth: synth,
		clock: RealClock{},
		log:   logrus.WithField("component", "player"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play plays track on synth with the default options.
func Play(ctx context.Context, track score.Track, synth audio.Synthesizer) error {
	return New(synth).Play(ctx, track)
}

type event struct {
	at    float64
	on    bool
	voice int
	pitch uint8
	vel   uint8
}

// timeline lists note on/off events of every track in play order. At equal
// times note offs come first, so a repeated pitch is released before it is
// struck again.
func timeline(tracks []score.Track) []event {
	var events []event
	for i, t := range tracks {
		for _, sn := range t.Schedule() {
			pitch, ok := sn.Placed.Note.Pitch.MIDI()
			if !ok {
				continue
			}
			events = append(events,
				event{at: sn.Start, on: true, voice: i, pitch: pitch, vel: uint8(sn.Placed.Note.Velocity)},
				event{at: sn.End(), voice: i, pitch: pitch},
			)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return !events[i].on && events[j].on
	})
	return events
}

// Play plays the tracks together, one voice per track, and returns when the
// last note ends or ctx is done. Held notes are released and every voice and
// the wake lock are given back on all paths.
func (p *Player) Play(ctx context.Context, tracks ...score.Track) (err error) {
	events := timeline(tracks)
	if len(events) == 0 {
		return nil
	}

	var lock *wakelock.Lock
	if p.locks != nil {
		lock, err = p.locks.Acquire(ctx, "playing")
	} else {
		lock, err = wakelock.Acquire(ctx, "playing")
	}
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	voices := make([]audio.Voice, len(tracks))
	defer func() {
		for _, v := range voices {
			if v != nil {
				err = errors.Join(err, v.Release())
			}
		}
	}()
	for i, t := range tracks {
		v, verr := p.synth.CreateSynth()
		if verr != nil {
			return fmt.Errorf("create voice for track %d: %w", i, verr)
		}
		voices[i] = v
		if serr := p.setup(t, v); serr != nil {
			return fmt.Errorf("set up voice for track %d: %w", i, serr)
		}
	}

	held := map[[2]int]bool{}
	defer func() {
		for k := range held {
			err = errors.Join(err, p.synth.NoteOff(uint8(k[1]), voices[k[0]]))
		}
		if p.keyboard != nil {
			p.keyboard.UnpressAll()
		}
	}()

	log := p.log.WithField("tracks", len(tracks))
	log.WithField("events", len(events)).Debug("playing")
	var now float64
	for _, e := range events {
		if werr := p.clock.Wait(ctx, seconds(e.at-now)); werr != nil {
			log.WithField("at", now).Debug("playback stopped")
			return werr
		}
		now = e.at
		key := [2]int{e.voice, int(e.pitch)}
		if e.on {
			if perr := p.synth.NoteOn(e.pitch, e.vel, voices[e.voice]); perr != nil {
				return fmt.Errorf("note on %d: %w", e.pitch, perr)
			}
			held[key] = true
			if p.keyboard != nil {
				p.keyboard.PressKey(e.pitch)
			}
			continue
		}
		if !held[key] {
			continue
		}
		delete(held, key)
		if perr := p.synth.NoteOff(e.pitch, voices[e.voice]); perr != nil {
			return fmt.Errorf("note off %d: %w", e.pitch, perr)
		}
		if p.keyboard != nil {
			p.keyboard.UnpressKey(e.pitch)
		}
	}
	log.WithField("seconds", now).Debug("playback finished")
	return nil
}

// setup gives the voice the track instrument and controllers. The voice
// keeps the channel the synthesizer picked for it.
func (p *Player) setup(t score.Track, v audio.Voice) error {
	if err := p.synth.ProgramChange(t.Instrument.Program, v); err != nil {
		return err
	}
	for _, c := range t.Controls {
		if err := p.synth.ControlChange(c.Controller, c.Value, v); err != nil {
			return err
		}
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
