package score

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidArgument is returned when a value is built from malformed input.
var ErrInvalidArgument = errors.New("invalid argument")

// Chroma is a pitch class name, or Rest.
type Chroma string

const (
	C      Chroma = "C"
	CSharp Chroma = "C#"
	D      Chroma = "D"
	DSharp Chroma = "D#"
	E      Chroma = "E"
	F      Chroma = "F"
	FSharp Chroma = "F#"
	G      Chroma = "G"
	GSharp Chroma = "G#"
	A      Chroma = "A"
	ASharp Chroma = "A#"
	B      Chroma = "B"
	Rest   Chroma = "rest"
)

var chromas = []Chroma{C, CSharp, D, DSharp, E, F, FSharp, G, GSharp, A, ASharp, B, Rest}

// Chromas returns the fixed set of chroma names, rest last.
func Chromas() []Chroma {
	return append([]Chroma(nil), chromas...)
}

// ParseChroma returns the chroma named s.
func ParseChroma(s string) (Chroma, error) {
	for _, c := range chromas {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown chroma %q: %w", s, ErrInvalidArgument)
}

// semitone is the offset of c above C, or -1 for Rest.
func (c Chroma) semitone() int {
	for i, known := range chromas[:12] {
		if c == known {
			return i
		}
	}
	return -1
}

// Pitch is a chroma with an optional octave.
type Pitch struct {
	chroma    Chroma
	octave    int
	hasOctave bool
}

// NewPitch builds a pitch in the given octave.
func NewPitch(chroma string, octave int) (Pitch, error) {
	c, err := ParseChroma(chroma)
	if err != nil {
		return Pitch{}, err
	}
	return Pitch{chroma: c, octave: octave, hasOctave: true}, nil
}

// NewPitchWithoutOctave builds a pitch that renders without an octave.
func NewPitchWithoutOctave(chroma string) (Pitch, error) {
	c, err := ParseChroma(chroma)
	if err != nil {
		return Pitch{}, err
	}
	return Pitch{chroma: c}, nil
}

// PitchFromMIDI maps a MIDI note number onto a pitch, 60 being C4.
func PitchFromMIDI(n uint8) Pitch {
	return Pitch{chroma: chromas[int(n)%12], octave: int(n)/12 - 1, hasOctave: true}
}

func (p Pitch) Chroma() Chroma { return p.chroma }

// Octave returns the octave and whether one was set.
func (p Pitch) Octave() (int, bool) { return p.octave, p.hasOctave }

func (p Pitch) IsRest() bool { return p.chroma == Rest }

// RenderAbc renders the chroma followed by the octave, if any.
func (p Pitch) RenderAbc() string {
	if !p.hasOctave {
		return string(p.chroma)
	}
	return string(p.chroma) + strconv.Itoa(p.octave)
}

func (p Pitch) String() string {
	return p.RenderAbc()
}

// MIDI returns the MIDI note number of p. Rests and pitches falling outside
// 0..127 report false. A pitch without octave is read in octave 4.
func (p Pitch) MIDI() (uint8, bool) {
	st := p.chroma.semitone()
	if st < 0 {
		return 0, false
	}
	octave := 4
	if p.hasOctave {
		octave = p.octave
	}
	n := (octave+1)*12 + st
	if n < 0 || n > 127 {
		return 0, false
	}
	return uint8(n), true
}
