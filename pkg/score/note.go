package score

import "fmt"

// MaxVelocity is the loudest MIDI velocity.
const MaxVelocity = 127

// Note is a playable event: a pitch, a velocity and optional length hints.
// Ticks and Length are both render hints; when both are set Ticks wins as
// it is the exact value read from or written to a MIDI file.
type Note struct {
	Pitch    Pitch
	Velocity int
	Ticks    int
	Length   Duration
}

// NewNote returns a note with no length hint. The velocity must lie in
// 0..MaxVelocity.
func NewNote(pitch Pitch, velocity int) (Note, error) {
	if velocity < 0 || velocity > MaxVelocity {
		return Note{}, fmt.Errorf("velocity %d out of range 0..%d: %w", velocity, MaxVelocity, ErrInvalidArgument)
	}
	return Note{Pitch: pitch, Velocity: velocity}, nil
}

// WithTicks returns a copy of n held for the given number of ticks.
func (n Note) WithTicks(ticks int) Note {
	n.Ticks = ticks
	return n
}

// WithDuration returns a copy of n held for the given duration.
func (n Note) WithDuration(d Duration) Note {
	n.Length = d
	return n
}

// HasTicks reports whether the tick hint is set.
func (n Note) HasTicks() bool { return n.Ticks > 0 }

// DurationNotation renders the length hint in time-base notation, ticks
// taking precedence ("96i").
func (n Note) DurationNotation() string {
	if n.HasTicks() {
		return fmt.Sprintf("%d%s", n.Ticks, Tick.Suffix())
	}
	return n.Length.Notation()
}

// HoldSeconds is how long the note sounds under ctx.
func (n Note) HoldSeconds(ctx Context) float64 {
	if n.HasTicks() {
		return ctx.TicksToSeconds(n.Ticks)
	}
	return n.Length.Seconds(ctx)
}

// Cursor is a position in musical time: a measure, a beat within it and an
// offset within the beat. Cursors are not checked against any track.
type Cursor struct {
	MeasureNb int
	BeatNb    int
	Offset    Duration
}

// NewCursor builds a cursor; negative positions are raised to zero.
func NewCursor(measureNb, beatNb int, offset Duration) Cursor {
	return Cursor{MeasureNb: max(measureNb, 0), BeatNb: max(beatNb, 0), Offset: offset}
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d:%s", c.MeasureNb, c.BeatNb, c.Offset.Notation())
}

// PlacedNote is a note bound to the cursor at which it sounds.
type PlacedNote struct {
	Note   Note
	Cursor Cursor
}
