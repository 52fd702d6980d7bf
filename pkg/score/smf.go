package score

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// IsSMF reports whether data starts like a Standard MIDI File.
func IsSMF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "MThd"
}

type tempoChange struct {
	tick int64
	bpm  float64
}

type meterChange struct {
	tick int64
	sig  TimeSignature
}

type importedNote struct {
	tick     int64
	ticks    int64
	key      uint8
	velocity uint8
}

type importedTrack struct {
	name       string
	channel    uint8
	instrument Instrument
	controls   []Control
	notes      []importedNote
}

// ImportSMFFile reads a MIDI file and imports its tracks.
func ImportSMFFile(filename string) ([]Track, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return ImportSMF(data)
}

// ImportSMF parses MIDI data into tracks, one per MIDI track and channel
// carrying notes. Tempo and meter changes are applied at measure
// boundaries, note positions are quantized to the nearest subdivision
// within their beat and note lengths are kept exactly as tick hints.
func ImportSMF(data []byte) ([]Track, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	ppq := DefaultPPQ
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ppq = int(mt.Resolution())
	}
	if ppq <= 0 {
		return nil, fmt.Errorf("resolution %d: %w", ppq, ErrInvalidArgument)
	}

	var tempos []tempoChange
	var meters []meterChange
	var imported []*importedTrack
	var lastTick int64

	for _, track := range s.Tracks {
		var name string
		byChannel := map[uint8]*importedTrack{}
		open := map[[2]uint8]importedNote{}
		var order []uint8

		channelTrack := func(ch uint8) *importedTrack {
			it, ok := byChannel[ch]
			if !ok {
				it = &importedTrack{channel: ch}
				byChannel[ch] = it
				order = append(order, ch)
			}
			return it
		}

		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			lastTick = max(lastTick, tick)

			var bpm float64
			var num, denom uint8
			var text string
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				tempos = append(tempos, tempoChange{tick: tick, bpm: bpm})
				continue
			case ev.Message.GetMetaMeter(&num, &denom):
				if ts, err := NewTimeSignature(int(num), int(denom)); err == nil {
					meters = append(meters, meterChange{tick: tick, sig: ts})
				}
				continue
			case ev.Message.GetMetaTrackName(&text):
				name = text
				continue
			}

			msg := midi.Message(ev.Message)
			var channel, key, velocity, program, controller, value uint8
			switch {
			case msg.GetNoteStart(&channel, &key, &velocity):
				open[[2]uint8{channel, key}] = importedNote{tick: tick, key: key, velocity: velocity}
			case msg.GetNoteEnd(&channel, &key):
				n, ok := open[[2]uint8{channel, key}]
				if !ok {
					continue
				}
				delete(open, [2]uint8{channel, key})
				n.ticks = tick - n.tick
				it := channelTrack(channel)
				it.notes = append(it.notes, n)
			case msg.GetProgramChange(&channel, &program):
				channelTrack(channel).instrument.Program = program
			case msg.GetControlChange(&channel, &controller, &value):
				it := channelTrack(channel)
				it.controls = append(it.controls, Control{Controller: controller, Value: value})
			}
		}

		for _, ch := range order {
			it := byChannel[ch]
			if len(it.notes) == 0 {
				continue
			}
			it.name = name
			imported = append(imported, it)
		}
	}

	if len(imported) == 0 {
		return nil, errors.New("no notes found in MIDI data")
	}

	grid, err := newMeasureGrid(tempos, meters, ppq, lastTick)
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(imported))
	for _, it := range imported {
		tracks = append(tracks, grid.track(it))
	}
	return tracks, nil
}

// maxMeasures bounds the measure grid of an imported file.
const maxMeasures = 1 << 16

// measureGrid slices the tick timeline into measures. Positions are kept
// in fractional ticks so that coarse resolutions in short meters do not
// truncate to zero-length measures or beats.
type measureGrid struct {
	ppq    int
	starts []float64
	bases  []Measure
}

func newMeasureGrid(tempos []tempoChange, meters []meterChange, ppq int, lastTick int64) (*measureGrid, error) {
	if ppq <= 0 {
		return nil, fmt.Errorf("resolution %d: %w", ppq, ErrInvalidArgument)
	}
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })
	sort.SliceStable(meters, func(i, j int) bool { return meters[i].tick < meters[j].tick })

	g := &measureGrid{ppq: ppq}
	tempo, sig := DefaultTempo, CommonTime
	var start float64
	for {
		// changes inside a measure take effect at the next measure
		for len(tempos) > 0 && float64(tempos[0].tick) <= start {
			tempo = NewTempo(tempos[0].bpm)
			tempos = tempos[1:]
		}
		for len(meters) > 0 && float64(meters[0].tick) <= start {
			sig = meters[0].sig
			meters = meters[1:]
		}
		if len(g.starts) == maxMeasures {
			return nil, fmt.Errorf("more than %d measures: %w", maxMeasures, ErrInvalidArgument)
		}
		g.starts = append(g.starts, start)
		g.bases = append(g.bases, NewMeasure(tempo, sig))
		start += measureTicks(sig, ppq)
		if start > float64(lastTick) {
			return g, nil
		}
	}
}

func (g *measureGrid) track(it *importedTrack) Track {
	measures := append([]Measure(nil), g.bases...)
	for _, n := range it.notes {
		tick := float64(n.tick)
		i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] > tick }) - 1
		m := measures[i]
		beat := beatTicks(m.signature, g.ppq)
		rel := tick - g.starts[i]
		beatNb := int(math.Floor(rel / beat))
		offset := quantize(rel-float64(beatNb)*beat, m.Context(g.ppq))
		note := Note{Pitch: PitchFromMIDI(n.key), Velocity: int(n.velocity), Ticks: int(n.ticks)}
		measures[i] = m.WithAddedNote(note, NewCursor(i, beatNb, offset))
	}
	t := NewTrack(it.channel, it.instrument)
	t.Name = it.name
	t.PPQ = g.ppq
	t.Controls = it.controls
	return t.WithMeasures(measures)
}

// quantize returns the subdivision whose length is closest to ticks.
func quantize(ticks float64, ctx Context) Duration {
	best := NewDuration(None, BPM)
	bestDiff := ticks
	for _, s := range subdivisions[1:] {
		d := NewDuration(s, BPM)
		if diff := math.Abs(d.exactTicks(ctx) - ticks); diff < bestDiff {
			best, bestDiff = d, diff
		}
	}
	return best
}

// tickPosition is the absolute tick of a cursor within t.
func (t Track) tickPosition(c Cursor, ppq int) int64 {
	var ticks float64
	for i := 0; i < c.MeasureNb; i++ {
		ticks += measureTicks(t.measureAt(i).signature, ppq)
	}
	ctx := t.measureAt(c.MeasureNb).Context(ppq)
	ticks += float64(c.BeatNb) * beatTicks(ctx.Signature, ppq)
	return int64(math.Round(ticks + c.Offset.Seconds(ctx)/ctx.TicksToSeconds(1)))
}

func measureTicks(sig TimeSignature, ppq int) float64 {
	return float64(sig.Numerator) * beatTicks(sig, ppq)
}

func beatTicks(sig TimeSignature, ppq int) float64 {
	return float64(ppq) * 4 / float64(sig.Denominator)
}

type timedMessage struct {
	tick int64
	msg  []byte
	// note offs sort before note ons at the same tick
	rank int
}

// ExportSMF writes tracks as a format 1 MIDI file at DefaultPPQ. The tempo
// map is taken from the first track.
func ExportSMF(tracks []Track) ([]byte, error) {
	return ExportSMFAt(tracks, DefaultPPQ)
}

// ExportSMFAt is ExportSMF at a resolution of ppq ticks per quarter note.
func ExportSMFAt(tracks []Track, ppq int) ([]byte, error) {
	if len(tracks) == 0 {
		return nil, errors.New("no tracks to export")
	}
	if ppq <= 0 || ppq > math.MaxInt16 {
		return nil, fmt.Errorf("resolution %d: %w", ppq, ErrInvalidArgument)
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppq)

	var conductor []timedMessage
	var start float64
	var prev Measure
	for i, m := range tracks[0].measures {
		tick := int64(math.Round(start))
		if i == 0 || m.tempo != prev.tempo {
			conductor = append(conductor, timedMessage{tick: tick, msg: smf.MetaTempo(m.tempo.BPM())})
		}
		if i == 0 || m.signature != prev.signature {
			conductor = append(conductor, timedMessage{tick: tick, msg: smf.MetaMeter(uint8(m.signature.Numerator), uint8(m.signature.Denominator))})
		}
		prev = m
		start += measureTicks(m.signature, ppq)
	}
	if len(conductor) == 0 {
		conductor = append(conductor, timedMessage{msg: smf.MetaTempo(DefaultTempo.BPM())})
	}
	if err := s.Add(closeTrack(conductor)); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	for _, t := range tracks {
		events := []timedMessage{
			{msg: smf.MetaTrackSequenceName(t.Name)},
			{msg: midi.ProgramChange(t.Channel, t.Instrument.Program)},
		}
		for _, c := range t.Controls {
			events = append(events, timedMessage{msg: midi.ControlChange(t.Channel, c.Controller, c.Value)})
		}
		for _, m := range t.measures {
			for _, pn := range m.notes {
				key, ok := pn.Note.Pitch.MIDI()
				if !ok {
					continue
				}
				start := t.tickPosition(pn.Cursor, ppq)
				hold := int64(pn.Note.Ticks)
				if !pn.Note.HasTicks() || t.ContextAt(0).ppq() != ppq {
					ctx := t.ContextAt(pn.Cursor.MeasureNb)
					hold = int64(math.Round(pn.Note.HoldSeconds(ctx) / ctx.TicksToSeconds(1) * float64(ppq) / float64(ctx.ppq())))
				}
				events = append(events,
					timedMessage{start, midi.NoteOn(t.Channel, key, uint8(pn.Note.Velocity)), 2},
					timedMessage{start + hold, midi.NoteOff(t.Channel, key), 1},
				)
			}
		}
		if err := s.Add(closeTrack(events)); err != nil {
			return nil, fmt.Errorf("failed to add track: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSMFFile exports tracks to a MIDI file.
func WriteSMFFile(tracks []Track, filename string) error {
	data, err := ExportSMF(tracks)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func closeTrack(events []timedMessage) smf.Track {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].rank < events[j].rank
	})
	var track smf.Track
	var cur int64
	for _, ev := range events {
		track.Add(uint32(ev.tick-cur), ev.msg)
		cur = ev.tick
	}
	track.Close(0)
	return track
}
