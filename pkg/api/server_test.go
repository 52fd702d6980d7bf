package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stephaneeybert/musicng-sub001/pkg/score"
	"github.com/stephaneeybert/musicng-sub001/pkg/session"
	"github.com/stephaneeybert/musicng-sub001/pkg/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *session.Session) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sess := session.New(session.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewRouter(sess), sess
}

func smfFile(t *testing.T) []byte {
	t.Helper()
	p, _ := score.NewPitch("C", 4)
	n, _ := score.NewNote(p, 100)
	m := score.NewMeasure(score.DefaultTempo, score.CommonTime).
		WithAddedNote(n.WithDuration(score.NewDuration(score.Quarter, score.BPM)), score.NewCursor(0, 1, score.Duration{}))
	tr := score.NewTrack(0, score.Instrument{Program: 1})
	tr.Name = "piano"
	data, err := score.ExportSMF([]score.Track{tr.WithAddedMeasure(m)})
	if err != nil {
		t.Fatalf("ExportSMF() error = %v", err)
	}
	return data
}

func upload(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "healthy") {
			t.Errorf("GET %s body = %s", path, w.Body.String())
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodOptions, "/api/v1/settings", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestDevices(t *testing.T) {
	r, sess := newTestRouter(t)
	if err := sess.Connect(context.Background(), "Device A", nil); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	var got struct {
		Devices []DeviceView `json:"devices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Devices) != 1 || got.Devices[0].ID != "DeviceA" || !got.Devices[0].HasSynth {
		t.Fatalf("devices = %+v", got.Devices)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/devices/DeviceA/mute", http.StatusNoContent},
		{"/api/v1/devices/DeviceA/unmute", http.StatusNoContent},
		{"/api/v1/devices/nope/mute", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(r, httptest.NewRequest(http.MethodPost, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("POST %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestSoundtracks(t *testing.T) {
	r, _ := newTestRouter(t)
	data := smfFile(t)

	w := serve(r, upload(t, "/api/v1/soundtracks", "my tune.mid", data))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d: %s", w.Code, w.Body.String())
	}
	var st SoundtrackView
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ID != "mytune" || st.Tracks != 1 {
		t.Errorf("soundtrack = %+v", st)
	}

	if w := serve(r, upload(t, "/api/v1/soundtracks", "my tune.mid", data)); w.Code != http.StatusOK {
		t.Errorf("second upload = %d, want 200", w.Code)
	}
	if w := serve(r, upload(t, "/api/v1/soundtracks", "notes.txt", []byte("hello"))); w.Code != http.StatusBadRequest {
		t.Errorf("text upload = %d, want 400", w.Code)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/soundtracks/mytune/export", nil))
	if w.Code != http.StatusOK || !score.IsSMF(w.Body.Bytes()) {
		t.Errorf("export = %d, %d bytes", w.Code, w.Body.Len())
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/soundtracks/nope/export", nil)); w.Code != http.StatusNotFound {
		t.Errorf("export unknown = %d, want 404", w.Code)
	}

	if w := serve(r, httptest.NewRequest(http.MethodDelete, "/api/v1/soundtracks/my%20tune", nil)); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/soundtracks", nil))
	if !strings.Contains(w.Body.String(), `"soundtracks":[]`) {
		t.Errorf("list after delete = %s", w.Body.String())
	}
}

func TestSettings(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`{"tempoBpm": 90, "animatedStave": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT = %d: %s", w.Code, w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))
	var got store.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := store.DefaultSettings()
	want.TempoBPM = 90
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	w = serve(r, httptest.NewRequest(http.MethodDelete, "/api/v1/settings", nil))
	got = store.Settings{}
	json.Unmarshal(w.Body.Bytes(), &got)
	if got != store.DefaultSettings() {
		t.Errorf("settings after delete = %+v", got)
	}

	bad := httptest.NewRequest(http.MethodPut, "/api/v1/settings", strings.NewReader(`[1,2]`))
	bad.Header.Set("Content-Type", "application/json")
	if w := serve(r, bad); w.Code != http.StatusBadRequest {
		t.Errorf("PUT list = %d, want 400", w.Code)
	}
}

func TestSchedule(t *testing.T) {
	r, _ := newTestRouter(t)
	w := serve(r, upload(t, "/api/v1/schedule", "tune.mid", smfFile(t)))
	if w.Code != http.StatusOK {
		t.Fatalf("schedule = %d: %s", w.Code, w.Body.String())
	}
	var got struct {
		Tracks []TrackView `json:"tracks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Tracks) != 1 || len(got.Tracks[0].Notes) != 1 {
		t.Fatalf("tracks = %+v", got.Tracks)
	}
	tr := got.Tracks[0]
	n := tr.Notes[0]
	if tr.Name != "piano" || tr.Instrument != 1 {
		t.Errorf("track = %+v", tr)
	}
	if n.MIDI != 60 || n.Start != 0.5 || n.Hold != 0.5 {
		t.Errorf("note = %+v, want C4 at 0.5s for 0.5s", n)
	}

	if w := serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/schedule", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("schedule without file = %d, want 400", w.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	r, _ := newTestRouter(t)
	data := append(smfFile(t), make([]byte, maxUpload)...)

	for _, target := range []string{"/api/v1/soundtracks", "/api/v1/schedule"} {
		w := serve(r, upload(t, target, "big.mid", data))
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("POST %s = %d, want %d", target, w.Code, http.StatusRequestEntityTooLarge)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sess := session.New(session.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sess.Run(ctx) }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, sess) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if _, err := http.Get("http://" + ln.Addr().String() + "/health"); err == nil {
		t.Error("server still answering after shutdown")
	}
}

func TestServeReportsListenerErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ln.Close()
	err = Serve(context.Background(), ln, session.New(session.Options{}))
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Serve() on a closed listener error = %v", err)
	}
}
