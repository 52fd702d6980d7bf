// Package api provides the REST API server for musicng
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/session"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

// @title musicng API
// @version 1.0
// @description API over the musicng devices, soundtracks, settings and score timing
// @host localhost:8080
// @BasePath /api/v1

// maxUpload bounds the size of uploaded MIDI files.
const maxUpload = 8 << 20

// Server serves the API over a running session.
type Server struct {
	session *session.Session
}

// NewRouter returns the gin engine with every route registered.
func NewRouter(sess *session.Session) *gin.Engine {
	s := &Server{session: sess}
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/devices", s.listDevices)
		v1.POST("/devices/:id/mute", s.muteDevice)
		v1.POST("/devices/:id/unmute", s.unmuteDevice)
		v1.GET("/soundtracks", s.listSoundtracks)
		v1.POST("/soundtracks", s.uploadSoundtrack)
		v1.GET("/soundtracks/:id/export", s.exportSoundtrack)
		v1.DELETE("/soundtracks/:id", s.deleteSoundtrack)
		v1.GET("/settings", s.getSettings)
		v1.PUT("/settings", s.putSettings)
		v1.DELETE("/settings", s.deleteSettings)
		v1.POST("/schedule", handleSchedule)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// shutdownTimeout bounds how long in-flight requests may run once the
// server is stopping.
const shutdownTimeout = 5 * time.Second

// StartServer starts the API server on the specified port and stops it
// when ctx is done.
func StartServer(ctx context.Context, port int, sess *session.Session) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return Serve(ctx, ln, sess)
}

// Serve serves the API on ln until ctx is done, then shuts down
// gracefully.
func Serve(ctx context.Context, ln net.Listener, sess *session.Session) error {
	srv := &http.Server{Handler: NewRouter(sess)}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "musicng",
	})
}

func sessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, session.ErrStopped) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// DeviceView is the JSON form of a device.
type DeviceView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Muted       bool   `json:"muted"`
	HasKeyboard bool   `json:"hasKeyboard"`
	HasSynth    bool   `json:"hasSynth"`
}

func newDeviceView(d store.Device) DeviceView {
	return DeviceView{
		ID:          d.ID,
		Name:        d.Name,
		Muted:       d.Muted,
		HasKeyboard: d.Keyboard != nil,
		HasSynth:    d.Synth != nil,
	}
}

// listDevices godoc
// @Summary List connected devices
// @Description Returns the MIDI input devices currently connected
// @Tags devices
// @Produce json
// @Success 200 {object} map[string][]DeviceView
// @Router /api/v1/devices [get]
func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.session.Devices(c.Request.Context())
	if err != nil {
		sessionError(c, err)
		return
	}
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, newDeviceView(d))
	}
	c.JSON(http.StatusOK, gin.H{"devices": views})
}

// muteDevice godoc
// @Summary Mute a device
// @Description Notes from a muted device are not played
// @Tags devices
// @Param id path string true "Device id"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/devices/{id}/mute [post]
func (s *Server) muteDevice(c *gin.Context) {
	s.setMuted(c, true)
}

// unmuteDevice godoc
// @Summary Unmute a device
// @Tags devices
// @Param id path string true "Device id"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/devices/{id}/unmute [post]
func (s *Server) unmuteDevice(c *gin.Context) {
	s.setMuted(c, false)
}

func (s *Server) setMuted(c *gin.Context, muted bool) {
	found, err := s.session.SetMuted(c.Request.Context(), c.Param("id"), muted)
	if err != nil {
		sessionError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown device"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SoundtrackView is the JSON form of a soundtrack.
type SoundtrackView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Tracks  int     `json:"tracks"`
	Seconds float64 `json:"seconds"`
}

func newSoundtrackView(st store.Soundtrack) SoundtrackView {
	v := SoundtrackView{ID: st.ID, Name: st.Name, Tracks: len(st.Tracks)}
	for _, t := range st.Tracks {
		v.Seconds = max(v.Seconds, t.Seconds())
	}
	return v
}

// listSoundtracks godoc
// @Summary List soundtracks
// @Tags soundtracks
// @Produce json
// @Success 200 {object} map[string][]SoundtrackView
// @Router /api/v1/soundtracks [get]
func (s *Server) listSoundtracks(c *gin.Context) {
	soundtracks, err := s.session.Soundtracks(c.Request.Context())
	if err != nil {
		sessionError(c, err)
		return
	}
	views := make([]SoundtrackView, 0, len(soundtracks))
	for _, st := range soundtracks {
		views = append(views, newSoundtrackView(st))
	}
	c.JSON(http.StatusOK, gin.H{"soundtracks": views})
}

// readUpload returns the uploaded file and its name.
func readUpload(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	if len(data) > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File larger than %d bytes", maxUpload)})
		return nil, "", false
	}
	if !score.IsSMF(data) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Not a MIDI file"})
		return nil, "", false
	}
	return data, header.Filename, true
}

// uploadSoundtrack godoc
// @Summary Load a soundtrack
// @Description Upload a MIDI file; it is added under the file name, or the name query parameter
// @Tags soundtracks
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Param name query string false "Soundtrack name"
// @Success 201 {object} SoundtrackView
// @Success 200 {object} SoundtrackView "A soundtrack with that name already exists"
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Router /api/v1/soundtracks [post]
func (s *Server) uploadSoundtrack(c *gin.Context) {
	data, filename, ok := readUpload(c)
	if !ok {
		return
	}
	name := c.DefaultQuery("name", session.SoundtrackName(filename))

	st, added, err := s.session.AddSoundtrack(c.Request.Context(), name, data)
	if err != nil {
		if errors.Is(err, session.ErrStopped) {
			sessionError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, newSoundtrackView(st))
}

// exportSoundtrack godoc
// @Summary Export a soundtrack
// @Description Returns the soundtrack as a Standard MIDI File
// @Tags soundtracks
// @Produce application/octet-stream
// @Param id path string true "Soundtrack id"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Router /api/v1/soundtracks/{id}/export [get]
func (s *Server) exportSoundtrack(c *gin.Context) {
	id := store.NormalizeKey(c.Param("id"))
	data, found, err := s.session.ExportSoundtrack(c.Request.Context(), id)
	if err != nil {
		sessionError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown soundtrack"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.mid", id))
	c.Data(http.StatusOK, "audio/midi", data)
}

// deleteSoundtrack godoc
// @Summary Delete a soundtrack
// @Description Unknown ids are ignored
// @Tags soundtracks
// @Param id path string true "Soundtrack id"
// @Success 204
// @Router /api/v1/soundtracks/{id} [delete]
func (s *Server) deleteSoundtrack(c *gin.Context) {
	if err := s.session.DeleteSoundtrack(c.Request.Context(), c.Param("id")); err != nil {
		sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getSettings godoc
// @Summary Get settings
// @Tags settings
// @Produce json
// @Success 200 {object} store.Settings
// @Router /api/v1/settings [get]
func (s *Server) getSettings(c *gin.Context) {
	settings, err := s.session.Settings(c.Request.Context())
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// putSettings godoc
// @Summary Replace settings
// @Description Fields missing from the body or holding invalid values get their default
// @Tags settings
// @Accept json
// @Produce json
// @Param settings body store.Settings true "Settings"
// @Success 200 {object} store.Settings
// @Failure 400 {object} map[string]string
// @Router /api/v1/settings [put]
func (s *Server) putSettings(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings := store.CleanSettings(raw)
	if err := s.session.SaveSettings(c.Request.Context(), settings); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// deleteSettings godoc
// @Summary Reset settings
// @Tags settings
// @Produce json
// @Success 200 {object} store.Settings
// @Router /api/v1/settings [delete]
func (s *Server) deleteSettings(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.session.ResetSettings(ctx); err != nil {
		sessionError(c, err)
		return
	}
	settings, err := s.session.Settings(ctx)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
