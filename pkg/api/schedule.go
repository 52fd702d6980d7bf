package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
)

// NoteView is one scheduled note.
type NoteView struct {
	Pitch    string  `json:"pitch"`
	MIDI     int     `json:"midi"`
	Velocity int     `json:"velocity"`
	Cursor   string  `json:"cursor"`
	Duration string  `json:"duration"`
	Start    float64 `json:"start"`
	Hold     float64 `json:"hold"`
}

// TrackView is a track resolved to transport time.
type TrackView struct {
	Name       string     `json:"name"`
	Channel    uint8      `json:"channel"`
	Instrument uint8      `json:"instrument"`
	Measures   int        `json:"measures"`
	Seconds    float64    `json:"seconds"`
	Notes      []NoteView `json:"notes"`
}

// NewTrackView schedules t.
func NewTrackView(t score.Track) TrackView {
	v := TrackView{
		Name:       t.Name,
		Channel:    t.Channel,
		Instrument: t.Instrument.Program,
		Measures:   len(t.Measures()),
		Seconds:    t.Seconds(),
		Notes:      []NoteView{},
	}
	for _, sn := range t.Schedule() {
		n := sn.Placed.Note
		midi := -1
		if m, ok := n.Pitch.MIDI(); ok {
			midi = int(m)
		}
		v.Notes = append(v.Notes, NoteView{
			Pitch:    n.Pitch.String(),
			MIDI:     midi,
			Velocity: n.Velocity,
			Cursor:   sn.Placed.Cursor.String(),
			Duration: n.DurationNotation(),
			Start:    sn.Start,
			Hold:     sn.Hold,
		})
	}
	return v
}

// handleSchedule godoc
// @Summary Schedule a MIDI file
// @Description Upload a MIDI file and receive every note resolved to transport seconds
// @Tags score
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} map[string][]TrackView
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Router /api/v1/schedule [post]
func handleSchedule(c *gin.Context) {
	data, _, ok := readUpload(c)
	if !ok {
		return
	}
	tracks, err := score.ImportSMF(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	views := make([]TrackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, NewTrackView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tracks": views})
}
