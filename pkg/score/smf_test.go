package score

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestIsSMF(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), true},
		{"SysEx message", []byte{0xF0, 0x00, 0x20, 0x32, 0x00, 0xF7}, false},
		{"Short data", []byte{0x00, 0x01}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSMF(tt.data); got != tt.expected {
				t.Errorf("IsSMF() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExportImportSMF(t *testing.T) {
	c4 := mustNote(t, mustPitch(t, "C", 4), 100).WithDuration(NewDuration(Quarter, BPM))
	e4 := mustNote(t, mustPitch(t, "E", 4), 90).WithTicks(96)
	m := NewMeasure(NewTempo(120), CommonTime).
		WithAddedNote(c4, NewCursor(0, 0, Duration{})).
		WithAddedNote(e4, NewCursor(0, 2, NewDuration(Eighth, BPM)))

	tr := NewTrack(2, Instrument{Program: 5, Name: "Piano"}).WithAddedMeasure(m)
	tr.Name = "lead"

	data, err := ExportSMF([]Track{tr})
	if err != nil {
		t.Fatalf("ExportSMF() error = %v", err)
	}
	if !IsSMF(data) {
		t.Fatal("ExportSMF() did not produce a MIDI file")
	}

	tracks, err := ImportSMF(data)
	if err != nil {
		t.Fatalf("ImportSMF() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("ImportSMF() tracks = %d, want 1", len(tracks))
	}
	got := tracks[0]
	if got.Channel != 2 {
		t.Errorf("Channel = %d, want 2", got.Channel)
	}
	if got.Instrument.Program != 5 {
		t.Errorf("Program = %d, want 5", got.Instrument.Program)
	}
	if got.Name != "lead" {
		t.Errorf("Name = %q, want %q", got.Name, "lead")
	}
	if got.PPQ != DefaultPPQ {
		t.Errorf("PPQ = %d, want %d", got.PPQ, DefaultPPQ)
	}

	measures := got.Measures()
	if len(measures) != 1 {
		t.Fatalf("measures = %d, want 1", len(measures))
	}
	if measures[0].Tempo().BPM() != 120 || measures[0].TimeSignature() != CommonTime {
		t.Errorf("measure = %v %v, want 120 BPM 4/4", measures[0].Tempo(), measures[0].TimeSignature())
	}

	notes := measures[0].PlacedNotes()
	if len(notes) != 2 {
		t.Fatalf("notes = %d, want 2", len(notes))
	}
	if notes[0].Note.Pitch.RenderAbc() != "C4" || notes[0].Note.Ticks != DefaultPPQ {
		t.Errorf("first note = %+v, want C4 held one quarter", notes[0].Note)
	}
	if notes[1].Cursor != NewCursor(0, 2, NewDuration(Eighth, BPM)) {
		t.Errorf("second cursor = %v, want 0:2:8n", notes[1].Cursor)
	}
	if notes[1].Note.Ticks != 96 || notes[1].Note.Velocity != 90 {
		t.Errorf("second note = %+v, want 96 ticks at velocity 90", notes[1].Note)
	}

	sched := got.Schedule()
	if !almostEqual(sched[1].Start, 1.25) || !almostEqual(sched[1].Hold, 0.25) {
		t.Errorf("second note scheduled at %v for %v, want 1.25 for 0.25", sched[1].Start, sched[1].Hold)
	}
}

func TestImportSMFErrors(t *testing.T) {
	if _, err := ImportSMF([]byte("not midi")); err == nil {
		t.Error("ImportSMF() expected error for garbage input")
	}
	data, err := ExportSMF([]Track{NewTrack(0, Instrument{})})
	if err != nil {
		t.Fatalf("ExportSMF() error = %v", err)
	}
	if _, err := ImportSMF(data); err == nil {
		t.Error("ImportSMF() expected error for a file without notes")
	}
	if _, err := ExportSMF(nil); err == nil {
		t.Error("ExportSMF(nil) expected error")
	}
}

func TestExportSMFAtResolution(t *testing.T) {
	e4 := mustNote(t, mustPitch(t, "E", 4), 90).WithTicks(96)
	m := NewMeasure(NewTempo(120), CommonTime).WithAddedNote(e4, NewCursor(0, 1, Duration{}))
	tr := NewTrack(0, Instrument{}).WithAddedMeasure(m)

	data, err := ExportSMFAt([]Track{tr}, 480)
	if err != nil {
		t.Fatalf("ExportSMFAt() error = %v", err)
	}
	tracks, err := ImportSMF(data)
	if err != nil {
		t.Fatalf("ImportSMF() error = %v", err)
	}
	got := tracks[0]
	if got.PPQ != 480 {
		t.Errorf("PPQ = %d, want 480", got.PPQ)
	}
	sched := got.Schedule()
	if len(sched) != 1 {
		t.Fatalf("Schedule() len = %d, want 1", len(sched))
	}
	if sched[0].Placed.Note.Ticks != 240 {
		t.Errorf("Ticks = %d, want 240", sched[0].Placed.Note.Ticks)
	}
	if !almostEqual(sched[0].Start, 0.5) || !almostEqual(sched[0].Hold, 0.25) {
		t.Errorf("scheduled at %v for %v, want 0.5 for 0.25", sched[0].Start, sched[0].Hold)
	}

	for _, ppq := range []int{0, -1, 40000} {
		if _, err := ExportSMFAt([]Track{tr}, ppq); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ExportSMFAt(ppq=%d) error = %v, want ErrInvalidArgument", ppq, err)
		}
	}
}

type smfEvent struct {
	tick uint32
	msg  []byte
}

// buildSMF writes a single track file; events must be in tick order.
func buildSMF(t *testing.T, ppq uint16, events ...smfEvent) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppq)
	var track smf.Track
	var cur uint32
	for _, e := range events {
		track.Add(e.tick-cur, e.msg)
		cur = e.tick
	}
	track.Close(0)
	if err := s.Add(track); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return buf.Bytes()
}

// importWithin fails the test when the import does not return promptly.
func importWithin(t *testing.T, data []byte) ([]Track, error) {
	t.Helper()
	type result struct {
		tracks []Track
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		tracks, err := ImportSMF(data)
		ch <- result{tracks, err}
	}()
	select {
	case r := <-ch:
		return r.tracks, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("ImportSMF() did not return")
		return nil, nil
	}
}

func TestImportSMFCoarseResolution(t *testing.T) {
	tests := []struct {
		name     string
		ppq      uint16
		num, den uint8
		noteTick uint32
		measure  int
		beat     int
		start    float64
	}{
		{"one tick per quarter in 1/8", 1, 1, 8, 1, 2, 0, 1},
		{"one tick per quarter in 4/8", 1, 4, 8, 1, 0, 2, 1},
		{"three ticks per quarter in 3/8", 3, 3, 8, 6, 1, 1, 2},
		{"one tick per quarter in 7/16", 1, 7, 16, 2, 1, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildSMF(t, tt.ppq,
				smfEvent{0, smf.MetaTempo(60)},
				smfEvent{0, smf.MetaMeter(tt.num, tt.den)},
				smfEvent{tt.noteTick, midi.NoteOn(0, 60, 100)},
				smfEvent{tt.noteTick + 1, midi.NoteOff(0, 60)},
			)
			tracks, err := importWithin(t, data)
			if err != nil {
				t.Fatalf("ImportSMF() error = %v", err)
			}
			sched := tracks[0].Schedule()
			if len(sched) != 1 {
				t.Fatalf("Schedule() len = %d, want 1", len(sched))
			}
			c := sched[0].Placed.Cursor
			if c.MeasureNb != tt.measure || c.BeatNb != tt.beat {
				t.Errorf("cursor = %v, want measure %d beat %d", c, tt.measure, tt.beat)
			}
			if !almostEqual(sched[0].Start, tt.start) {
				t.Errorf("Start = %v, want %v", sched[0].Start, tt.start)
			}
		})
	}
}

func TestImportSMFRejectsRunawayGrid(t *testing.T) {
	data := buildSMF(t, 1,
		smfEvent{0, smf.MetaMeter(1, 64)},
		smfEvent{1 << 20, midi.NoteOn(0, 60, 100)},
		smfEvent{1<<20 + 1, midi.NoteOff(0, 60)},
	)
	if _, err := importWithin(t, data); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ImportSMF() error = %v, want ErrInvalidArgument", err)
	}
	if _, err := newMeasureGrid(nil, nil, 0, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("newMeasureGrid(ppq=0) error = %v, want ErrInvalidArgument", err)
	}
}

func TestImportSMFTempoChangeInsideMeasure(t *testing.T) {
	data := buildSMF(t, DefaultPPQ,
		smfEvent{0, smf.MetaTempo(120)},
		smfEvent{0, midi.NoteOn(0, 60, 100)},
		smfEvent{96, smf.MetaTempo(60)},
		smfEvent{192, midi.NoteOff(0, 60)},
		smfEvent{768, midi.NoteOn(0, 62, 100)},
		smfEvent{960, midi.NoteOff(0, 62)},
	)
	tracks, err := importWithin(t, data)
	if err != nil {
		t.Fatalf("ImportSMF() error = %v", err)
	}
	measures := tracks[0].Measures()
	if len(measures) != 2 {
		t.Fatalf("measures = %d, want 2", len(measures))
	}
	if measures[0].Tempo().BPM() != 120 || measures[1].Tempo().BPM() != 60 {
		t.Errorf("tempos = %v, %v, want the change at the next measure", measures[0].Tempo().BPM(), measures[1].Tempo().BPM())
	}
	sched := tracks[0].Schedule()
	if !almostEqual(sched[1].Start, 2) || !almostEqual(sched[1].Hold, 1) {
		t.Errorf("second note at %v for %v, want 2 for 1", sched[1].Start, sched[1].Hold)
	}
}
