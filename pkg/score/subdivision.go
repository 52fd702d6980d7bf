// Package score provides the symbolic model of musical time (subdivisions,
// durations, cursors, notes, measures and tracks) and its conversion into
// absolute transport time for an audio scheduler.
package score

import "fmt"

// Subdivision is a note-length category expressed as note-value
// denominators: Base is the plain note value (4 = quarter) and Tie is the
// next-finer value added by a dot, or 0 when the note is not dotted.
type Subdivision struct {
	Base int
	Tie  int
}

var (
	None               = Subdivision{}
	Whole              = Subdivision{Base: 1}
	DottedWhole        = Subdivision{Base: 1, Tie: 2}
	Half               = Subdivision{Base: 2}
	DottedHalf         = Subdivision{Base: 2, Tie: 4}
	Quarter            = Subdivision{Base: 4}
	DottedQuarter      = Subdivision{Base: 4, Tie: 8}
	Eighth             = Subdivision{Base: 8}
	DottedEighth       = Subdivision{Base: 8, Tie: 16}
	Sixteenth          = Subdivision{Base: 16}
	DottedSixteenth    = Subdivision{Base: 16, Tie: 32}
	ThirtySecond       = Subdivision{Base: 32}
	DottedThirtySecond = Subdivision{Base: 32, Tie: 64}
	SixtyFourth        = Subdivision{Base: 64}
)

var subdivisions = []Subdivision{
	None,
	Whole, DottedWhole,
	Half, DottedHalf,
	Quarter, DottedQuarter,
	Eighth, DottedEighth,
	Sixteenth, DottedSixteenth,
	ThirtySecond, DottedThirtySecond,
	SixtyFourth,
}

// Subdivisions returns every named subdivision, coarsest first.
func Subdivisions() []Subdivision {
	return append([]Subdivision(nil), subdivisions...)
}

// IsNone reports whether s carries no duration.
func (s Subdivision) IsNone() bool {
	return s.Base == 0
}

// IsDotted reports whether s has a tie component.
func (s Subdivision) IsDotted() bool {
	return s.Base != 0 && s.Tie != 0
}

// Dotted returns the dotted variant of s. Subdivisions that are already
// dotted, None and the finest subdivision are returned unchanged.
func (s Subdivision) Dotted() Subdivision {
	d := Subdivision{Base: s.Base, Tie: s.Base * 2}
	for _, known := range subdivisions {
		if known == d {
			return d
		}
	}
	return s
}

// Undotted strips the tie component.
func (s Subdivision) Undotted() Subdivision {
	return Subdivision{Base: s.Base}
}

// fraction is the subdivision length as a fraction of a whole note.
func (s Subdivision) fraction() float64 {
	if s.IsNone() {
		return 0
	}
	f := 1 / float64(s.Base)
	if s.Tie != 0 {
		f += 1 / float64(s.Tie)
	}
	return f
}

func (s Subdivision) String() string {
	switch {
	case s.IsNone():
		return "none"
	case s.IsDotted():
		return fmt.Sprintf("%d.", s.Base)
	default:
		return fmt.Sprintf("%d", s.Base)
	}
}
