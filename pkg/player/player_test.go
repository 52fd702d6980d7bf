package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stephaneeybert/musicng-sub001/pkg/audio"
	"github.com/stephaneeybert/musicng-sub001/pkg/keyboard"
	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/wakelock"
)

// fakeClock returns at once, remembering the waits. It cancels the context
// once stopAfter waits have been made, when set.
type fakeClock struct {
	waits     []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	if c.stopAfter > 0 && len(c.waits) >= c.stopAfter {
		c.cancel()
	}
	return ctx.Err()
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.waits {
		sum += d
	}
	return sum
}

func note(t *testing.T, chroma string, octave int) score.Note {
	t.Helper()
	p, err := score.NewPitch(chroma, octave)
	if err != nil {
		t.Fatalf("NewPitch() error = %v", err)
	}
	n, err := score.NewNote(p, 100)
	if err != nil {
		t.Fatalf("NewNote() error = %v", err)
	}
	return n.WithDuration(score.NewDuration(score.Quarter, score.BPM))
}

// scale is three quarter notes at 60 BPM: one second each.
func scale(t *testing.T) score.Track {
	m := score.NewMeasure(score.NewTempo(60), score.CommonTime)
	for i, c := range []string{"C", "D", "E"} {
		m = m.WithAddedNote(note(t, c, 4), score.NewCursor(0, i, score.NewDuration(score.None, score.BPM)))
	}
	return score.NewTrack(0, score.Instrument{}).WithAddedMeasure(m)
}

func TestPlay(t *testing.T) {
	synth := audio.NewRecorder()
	clock := &fakeClock{}
	locks := wakelock.NewManager(wakelock.Noop{})
	kb, err := keyboard.NewRegistry().CreateKeyboard("player", 88)
	if err != nil {
		t.Fatalf("CreateKeyboard() error = %v", err)
	}

	p := New(synth, WithClock(clock), WithWakeLocks(locks), WithKeyboard(kb))
	if err := p.Play(context.Background(), scale(t)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	want := []audio.Event{
		{Kind: audio.NoteOnEvent, Pitch: 60, Velocity: 100},
		{Kind: audio.NoteOffEvent, Pitch: 60},
		{Kind: audio.NoteOnEvent, Pitch: 62, Velocity: 100},
		{Kind: audio.NoteOffEvent, Pitch: 62},
		{Kind: audio.NoteOnEvent, Pitch: 64, Velocity: 100},
		{Kind: audio.NoteOffEvent, Pitch: 64},
	}
	got := synth.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if clock.total() != 3*time.Second {
		t.Errorf("waited %v, want 3s", clock.total())
	}
	if len(synth.Released()) != 1 {
		t.Errorf("released voices = %v, want one", synth.Released())
	}
	if locks.Held() != 0 {
		t.Errorf("wake locks held = %d after Play", locks.Held())
	}
	if len(kb.(*keyboard.Virtual).Pressed()) != 0 {
		t.Error("keys left pressed")
	}
}

func TestPlayCancelReleasesEverything(t *testing.T) {
	synth := audio.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The second wait is the one before the first note off.
	clock := &fakeClock{stopAfter: 2, cancel: cancel}
	locks := wakelock.NewManager(wakelock.Noop{})

	err := New(synth, WithClock(clock), WithWakeLocks(locks)).Play(ctx, scale(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Play() error = %v, want context.Canceled", err)
	}

	events := synth.Events()
	if len(events) != 2 || events[1].Kind != audio.NoteOffEvent || events[1].Pitch != 60 {
		t.Errorf("events = %+v, want the held note released", events)
	}
	if len(synth.Released()) != 1 || locks.Held() != 0 {
		t.Errorf("released = %v, locks held = %d", synth.Released(), locks.Held())
	}
}

func TestPlaySeveralTracks(t *testing.T) {
	synth := audio.NewRecorder()
	clock := &fakeClock{}
	if err := New(synth, WithClock(clock)).Play(context.Background(), scale(t), scale(t)); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	channels := map[uint8]int{}
	for _, e := range synth.Events() {
		channels[e.Channel]++
	}
	if len(channels) != 2 {
		t.Errorf("channels used = %v, want two voices", channels)
	}
	if len(synth.Released()) != 2 {
		t.Errorf("released = %v, want two voices", synth.Released())
	}
}

func TestPlaySkipsRestsAndEmptyTracks(t *testing.T) {
	synth := audio.NewRecorder()
	if err := Play(context.Background(), score.NewTrack(0, score.Instrument{}), synth); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	rest, _ := score.NewPitchWithoutOctave("rest")
	n, _ := score.NewNote(rest, 0)
	m := score.NewMeasure(score.DefaultTempo, score.CommonTime).
		WithAddedNote(n.WithDuration(score.NewDuration(score.Quarter, score.BPM)), score.NewCursor(0, 0, score.Duration{}))
	tr := score.NewTrack(0, score.Instrument{}).WithAddedMeasure(m)
	if err := New(synth, WithClock(&fakeClock{})).Play(context.Background(), tr); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if len(synth.Events()) != 0 || len(synth.Released()) != 0 {
		t.Errorf("events = %v, released = %v, want nothing", synth.Events(), synth.Released())
	}
}

func TestTimelineOrdersOffBeforeOn(t *testing.T) {
	c := note(t, "C", 4)
	m := score.NewMeasure(score.NewTempo(60), score.CommonTime).
		WithAddedNote(c, score.NewCursor(0, 1, score.Duration{})).
		WithAddedNote(c, score.NewCursor(0, 0, score.Duration{}))
	events := timeline([]score.Track{score.NewTrack(0, score.Instrument{}).WithAddedMeasure(m)})

	want := []struct {
		at float64
		on bool
	}{{0, true}, {1, false}, {1, true}, {2, false}}
	if len(events) != len(want) {
		t.Fatalf("timeline = %+v", events)
	}
	for i, w := range want {
		if events[i].at != w.at || events[i].on != w.on {
			t.Errorf("event %d = %+v, want at %v on %v", i, events[i], w.at, w.on)
		}
	}
}

func TestPlaySetsUpTrackInstruments(t *testing.T) {
	synth := audio.NewRecorder()
	lead := scale(t)
	lead.Instrument = score.Instrument{Program: 48, Name: "Strings"}
	lead.Controls = []score.Control{{Controller: 7, Value: 90}, {Controller: 10, Value: 20}}
	bass := scale(t)
	bass.Instrument = score.Instrument{Program: 33, Name: "Bass"}

	if err := New(synth, WithClock(&fakeClock{})).Play(context.Background(), lead, bass); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	want := []audio.Event{
		{Kind: audio.ProgramChangeEvent, Channel: 0, Value: 48},
		{Kind: audio.ControlChangeEvent, Channel: 0, Controller: 7, Value: 90},
		{Kind: audio.ControlChangeEvent, Channel: 0, Controller: 10, Value: 20},
		{Kind: audio.ProgramChangeEvent, Channel: 1, Value: 33},
	}
	got := synth.Setup()
	if len(got) != len(want) {
		t.Fatalf("setup = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("setup %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	for _, e := range synth.Events() {
		if e.Channel == 0 && e.Kind == audio.ProgramChangeEvent {
			t.Errorf("program change mixed into note events: %+v", e)
		}
	}
}
