package score

import "sort"

// Instrument is the General MIDI program a track plays with.
type Instrument struct {
	Program uint8
	Name    string
}

// Control is a MIDI continuous controller value sent before playback.
type Control struct {
	Controller uint8
	Value      uint8
}

// Track is a sequence of measures in playback order, played on one MIDI
// channel with one instrument. A track without measures is valid.
type Track struct {
	Name       string
	Channel    uint8
	Instrument Instrument
	Controls   []Control
	// PPQ is the resolution of tick hints found in the track notes; zero
	// means DefaultPPQ.
	PPQ int

	measures []Measure
}

func NewTrack(channel uint8, instrument Instrument) Track {
	return Track{Channel: channel, Instrument: instrument}
}

// HasMeasures reports whether the track holds at least one measure.
func (t Track) HasMeasures() bool {
	return len(t.measures) > 0
}

// Measures returns a copy of the measure list.
func (t Track) Measures() []Measure {
	return append([]Measure(nil), t.measures...)
}

// WithAddedMeasure returns a copy of t with m appended.
func (t Track) WithAddedMeasure(m Measure) Track {
	measures := make([]Measure, len(t.measures), len(t.measures)+1)
	copy(measures, t.measures)
	t.measures = append(measures, m)
	t.Controls = append([]Control(nil), t.Controls...)
	return t
}

// WithMeasures returns a copy of t holding exactly ms.
func (t Track) WithMeasures(ms []Measure) Track {
	t.measures = append([]Measure(nil), ms...)
	t.Controls = append([]Control(nil), t.Controls...)
	return t
}

// ScheduledNote is a placed note resolved to transport time, in seconds.
type ScheduledNote struct {
	Placed PlacedNote
	Start  float64
	Hold   float64
}

// End is the time at which the note is released.
func (s ScheduledNote) End() float64 {
	return s.Start + s.Hold
}

// measureAt returns the measure governing index i. Indexes past the end of
// the track reuse the last measure; an empty track plays at DefaultTempo in
// common time.
func (t Track) measureAt(i int) Measure {
	switch {
	case i >= 0 && i < len(t.measures):
		return t.measures[i]
	case len(t.measures) > 0:
		return t.measures[len(t.measures)-1]
	}
	return NewMeasure(DefaultTempo, CommonTime)
}

// ContextAt is the resolution context in force at measure measureNb.
func (t Track) ContextAt(measureNb int) Context {
	return t.measureAt(measureNb).Context(t.PPQ)
}

// TransportTime is the absolute time of the start of beat beatNb in
// measure measureNb. Each preceding measure contributes its own length, so
// tempo and signature changes along the track are honoured.
func (t Track) TransportTime(measureNb, beatNb int) float64 {
	var sec float64
	for i := 0; i < measureNb; i++ {
		sec += t.ContextAt(i).MeasureSeconds()
	}
	return sec + float64(beatNb)*t.ContextAt(measureNb).BeatSeconds()
}

// CursorSeconds resolves a cursor to absolute time.
func (t Track) CursorSeconds(c Cursor) float64 {
	return t.TransportTime(c.MeasureNb, c.BeatNb) + c.Offset.Seconds(t.ContextAt(c.MeasureNb))
}

// Seconds is the total length of the track's measures.
func (t Track) Seconds() float64 {
	return t.TransportTime(len(t.measures), 0)
}

// Schedule resolves every placed note of the track, ordered by start time.
// Notes starting together keep their track order.
func (t Track) Schedule() []ScheduledNote {
	var out []ScheduledNote
	for _, m := range t.measures {
		for _, pn := range m.notes {
			out = append(out, ScheduledNote{
				Placed: pn,
				Start:  t.CursorSeconds(pn.Cursor),
				Hold:   pn.Note.HoldSeconds(t.ContextAt(pn.Cursor.MeasureNb)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
