package score

import (
	"fmt"
	"math"
)

// TempoUnit is the unit in which a duration or a rate is expressed.
type TempoUnit int

const (
	BPM TempoUnit = iota
	Hertz
	Tick
	Second
	Duple
	Triplet
	MeasureUnit
)

// DefaultPPQ is the tick resolution (pulses per quarter note) used when a
// Context does not set one.
const DefaultPPQ = 192

var unitSuffixes = map[TempoUnit]string{
	BPM:         "n",
	Hertz:       "hz",
	Tick:        "i",
	Second:      "s",
	Duple:       "n",
	Triplet:     "t",
	MeasureUnit: "m",
}

// Suffix returns the time-base notation suffix of the unit.
func (u TempoUnit) Suffix() string {
	return unitSuffixes[u]
}

func (u TempoUnit) String() string {
	switch u {
	case BPM:
		return "bpm"
	case Hertz:
		return "hertz"
	case Tick:
		return "tick"
	case Second:
		return "second"
	case Duple:
		return "duple"
	case Triplet:
		return "triplet"
	case MeasureUnit:
		return "measure"
	}
	return fmt.Sprintf("TempoUnit(%d)", int(u))
}

// Context is the tempo and meter in force where a duration is resolved.
type Context struct {
	Tempo     Tempo
	Signature TimeSignature
	PPQ       int
}

// DefaultContext is 120 BPM in 4/4 at DefaultPPQ.
func DefaultContext() Context {
	return Context{Tempo: DefaultTempo, Signature: CommonTime, PPQ: DefaultPPQ}
}

// QuarterSeconds is the length of a quarter note.
func (c Context) QuarterSeconds() float64 {
	bpm := c.Tempo.BPM()
	if bpm <= 0 {
		return 0
	}
	return 60 / bpm
}

// MeasureSeconds is the length of one measure under the context signature.
func (c Context) MeasureSeconds() float64 {
	return float64(c.Signature.Numerator) * c.BeatSeconds()
}

// BeatSeconds is the length of one beat, the note value named by the
// signature denominator.
func (c Context) BeatSeconds() float64 {
	if c.Signature.Denominator <= 0 {
		return 0
	}
	return c.QuarterSeconds() * 4 / float64(c.Signature.Denominator)
}

func (c Context) ppq() int {
	if c.PPQ <= 0 {
		return DefaultPPQ
	}
	return c.PPQ
}

// TicksToSeconds converts a tick count at the context resolution.
func (c Context) TicksToSeconds(ticks int) float64 {
	return float64(ticks) * c.QuarterSeconds() / float64(c.ppq())
}

// Duration is a subdivision read in a tempo unit. The zero Duration has no
// length.
type Duration struct {
	Subdivision Subdivision
	Unit        TempoUnit
}

// NewDuration pairs a subdivision with a unit.
func NewDuration(s Subdivision, unit TempoUnit) Duration {
	return Duration{Subdivision: s, Unit: unit}
}

// IsZero reports whether d resolves to no time at all.
func (d Duration) IsZero() bool {
	return d.Subdivision.IsNone()
}

// Notation renders d in time-base notation: "0" for no duration, "4n" for a
// quarter note and "4n+8n" for a dotted quarter.
func (d Duration) Notation() string {
	s := d.Subdivision
	if s.IsNone() {
		return "0"
	}
	base := fmt.Sprintf("%d%s", s.Base, d.Unit.Suffix())
	if s.Tie == 0 {
		return base
	}
	return fmt.Sprintf("%s+%d%s", base, s.Tie, d.Unit.Suffix())
}

func (d Duration) String() string {
	return d.Notation()
}

// Seconds resolves d against ctx. A dotted subdivision resolves to exactly
// 1.5 times its base, except in the Tick unit where the dotted length is
// rounded to whole ticks as a whole. There it is exact when the resolution
// is a multiple of 16; otherwise both lengths carry their own rounding of
// up to half a tick.
func (d Duration) Seconds(ctx Context) float64 {
	f := d.Subdivision.fraction()
	if f == 0 {
		return 0
	}
	switch d.Unit {
	case BPM, Duple:
		return f * 4 * ctx.QuarterSeconds()
	case Triplet:
		return f * 4 * ctx.QuarterSeconds() * 2 / 3
	case MeasureUnit:
		return f * ctx.MeasureSeconds()
	case Second, Hertz:
		return f
	case Tick:
		return ctx.TicksToSeconds(d.Ticks(ctx))
	}
	return 0
}

// Ticks is the length of d in whole ticks at the context resolution. The
// dotted length is rounded once, after the tie is added.
func (d Duration) Ticks(ctx Context) int {
	return int(math.Round(d.exactTicks(ctx)))
}

func (d Duration) exactTicks(ctx Context) float64 {
	return d.Subdivision.fraction() * 4 * float64(ctx.ppq())
}
