package score

import "fmt"

// Tempo is a playback rate. The usual unit is BPM (quarter notes per
// minute).
type Tempo struct {
	Value float64
	Unit  TempoUnit
}

// DefaultTempo is 120 BPM.
var DefaultTempo = Tempo{Value: 120, Unit: BPM}

// NewTempo returns a tempo of bpm quarter notes per minute.
func NewTempo(bpm float64) Tempo {
	return Tempo{Value: bpm, Unit: BPM}
}

// BPM converts the tempo into quarter notes per minute.
func (t Tempo) BPM() float64 {
	switch t.Unit {
	case Hertz:
		return t.Value * 60
	case Second:
		if t.Value <= 0 {
			return 0
		}
		return 60 / t.Value
	}
	return t.Value
}

// TimeSignature is a meter: Numerator beats of the note value Denominator.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// CommonTime is 4/4.
var CommonTime = TimeSignature{Numerator: 4, Denominator: 4}

// NewTimeSignature checks that the numerator is positive and the
// denominator a power of two.
func NewTimeSignature(numerator, denominator int) (TimeSignature, error) {
	if numerator <= 0 {
		return TimeSignature{}, fmt.Errorf("numerator %d: %w", numerator, ErrInvalidArgument)
	}
	if denominator <= 0 || denominator&(denominator-1) != 0 {
		return TimeSignature{}, fmt.Errorf("denominator %d is not a power of two: %w", denominator, ErrInvalidArgument)
	}
	return TimeSignature{Numerator: numerator, Denominator: denominator}, nil
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Numerator, ts.Denominator)
}

// Measure is an ordered bag of placed notes under one tempo and one time
// signature. Notes keep their insertion order, which is not necessarily
// their temporal order. A Measure is a value: every With method returns a
// new Measure and leaves the receiver untouched.
type Measure struct {
	tempo     Tempo
	signature TimeSignature
	notes     []PlacedNote
}

func NewMeasure(tempo Tempo, signature TimeSignature) Measure {
	return Measure{tempo: tempo, signature: signature}
}

func (m Measure) Tempo() Tempo                 { return m.tempo }
func (m Measure) TimeSignature() TimeSignature { return m.signature }

// PlacedNotes returns a copy of the notes in insertion order.
func (m Measure) PlacedNotes() []PlacedNote {
	return append([]PlacedNote(nil), m.notes...)
}

// Len is the number of placed notes.
func (m Measure) Len() int { return len(m.notes) }

// WithAddedNote returns a copy of m with note appended at cursor.
func (m Measure) WithAddedNote(note Note, cursor Cursor) Measure {
	notes := make([]PlacedNote, len(m.notes), len(m.notes)+1)
	copy(notes, m.notes)
	m.notes = append(notes, PlacedNote{Note: note, Cursor: cursor})
	return m
}

// WithNumerator returns a copy of m with another signature numerator.
func (m Measure) WithNumerator(numerator int) (Measure, error) {
	ts, err := NewTimeSignature(numerator, m.signature.Denominator)
	if err != nil {
		return m, err
	}
	return m.withSignature(ts), nil
}

// WithDenominator returns a copy of m with another signature denominator.
func (m Measure) WithDenominator(denominator int) (Measure, error) {
	ts, err := NewTimeSignature(m.signature.Numerator, denominator)
	if err != nil {
		return m, err
	}
	return m.withSignature(ts), nil
}

// WithTempo returns a copy of m played at tempo.
func (m Measure) WithTempo(tempo Tempo) Measure {
	m.notes = m.PlacedNotes()
	m.tempo = tempo
	return m
}

func (m Measure) withSignature(ts TimeSignature) Measure {
	m.notes = m.PlacedNotes()
	m.signature = ts
	return m
}

// Context is the resolution context of durations inside m.
func (m Measure) Context(ppq int) Context {
	return Context{Tempo: m.tempo, Signature: m.signature, PPQ: ppq}
}

// Seconds is the length of the measure.
func (m Measure) Seconds() float64 {
	return m.Context(DefaultPPQ).MeasureSeconds()
}

// BeatSeconds is the length of one beat of the measure.
func (m Measure) BeatSeconds() float64 {
	return m.Context(DefaultPPQ).BeatSeconds()
}
