package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/pipeline"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/pkg/camera"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tinyJPEG is not a decodable image; the passthrough path never looks at it.
var tinyJPEG = []byte{0xFF, 0xD8, 0xFF}

type staticSource struct {
	data []byte
	err  error
}

func (s *staticSource) Acquire(ctx context.Context) (*camera.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	return camera.NewFrame(320, 240, camera.PixelFormatJPEG, append([]byte(nil), s.data...), nil), nil
}

func (s *staticSource) Close() error { return nil }

type recordingLink struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (l *recordingLink) Send(ctx context.Context, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, string(payload))
	return nil
}

func (l *recordingLink) Close() error { return nil }

type fixture struct {
	server  *Server
	source  *staticSource
	camera  *camera.Exclusive
	gallery *recognition.Gallery
	link    *recordingLink
	state   *control.State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	src := &staticSource{data: tinyJPEG}
	excl := camera.NewExclusive(src)
	pool := imaging.NewPool()
	state := control.NewState(control.Toggles{})
	sensor := camera.NewSimulatedSensor(camera.PixelFormatJPEG)
	gallery := recognition.NewGallery(7)

	det, err := detect.NewEngine(detect.NopBackend{}, detect.DefaultConfig(), logger)
	if err != nil {
		t.Fatal(err)
	}
	rec := recognition.NewEngine(gallery, recognition.NewLandmarkAligner(), state, recognition.DefaultOptions(), logger)
	p := pipeline.New(excl, imaging.NewConverter(pool, nil), det, rec, state, pipeline.DefaultOptions(), logger)

	link := &recordingLink{}
	srv := New(Options{Port: 8080}, Deps{
		Pipeline: p,
		Control:  control.NewSurface(state, sensor, logger),
		Gallery:  gallery,
		Robot:    link,
		Camera:   excl,
		Pool:     pool,
		Logs:     logging.NewRing(logging.RingSize),
	}, logger)

	return &fixture{server: srv, source: src, camera: excl, gallery: gallery, link: link, state: state}
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestCapturePassthrough(t *testing.T) {
	f := newFixture(t)
	w := get(f.server.ControlHandler(), "/capture")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), tinyJPEG) {
		t.Errorf("body = % x, want % x", w.Body.Bytes(), tinyJPEG)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "inline; filename=capture.jpg" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if got := f.camera.Stats(); got.Acquired != 1 || got.Released != 1 {
		t.Errorf("camera stats = %+v", got)
	}
}

func TestCaptureCameraUnavailable(t *testing.T) {
	f := newFixture(t)
	f.source.err = camera.ErrCameraUnavailable

	if w := get(f.server.ControlHandler(), "/capture"); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestControl(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"quality in range", "/control?var=quality&val=15", http.StatusOK},
		{"quality out of range", "/control?var=quality&val=999", http.StatusInternalServerError},
		{"sharpness read only", "/control?var=sharpness&val=1", http.StatusInternalServerError},
		{"unknown key", "/control?var=zoom&val=1", http.StatusNotFound},
		{"missing val", "/control?var=quality", http.StatusNotFound},
		{"missing var", "/control?val=1", http.StatusNotFound},
		{"non-numeric val", "/control?var=quality&val=high", http.StatusNotFound},
		{"toggle", "/control?var=face_recognize&val=1", http.StatusOK},
	}

	f := newFixture(t)
	h := f.server.ControlHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, tt.target)
			if w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.target, w.Code, tt.want)
			}
			if w.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", w.Body.String())
			}
		})
	}

	if got := f.state.Snapshot(); !got.Detection || !got.Recognition {
		t.Errorf("toggles after face_recognize=1 = %+v", got)
	}
}

func TestStatusDocument(t *testing.T) {
	f := newFixture(t)
	h := f.server.ControlHandler()
	get(h, "/control?var=quality&val=15")

	w := get(h, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if strings.ContainsAny(body, "\n") {
		t.Errorf("status is not a single line: %q", body)
	}

	var doc map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if want := len(camera.Params) + 3; len(doc) != want {
		t.Errorf("status has %d keys, want %d", len(doc), want)
	}
	for _, k := range append(control.Keys(), "sharpness") {
		if _, ok := doc[k]; !ok {
			t.Errorf("status lacks %q", k)
		}
	}
	if doc["quality"] != 15 {
		t.Errorf("quality = %d, want 15", doc["quality"])
	}
}

// flakyWriter fails every Write after the first n.
type flakyWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
	writes int
	n      int
}

func (w *flakyWriter) Header() http.Header { return w.header }

func (w *flakyWriter) WriteHeader(code int) { w.status = code }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.writes >= w.n {
		return 0, errors.New("connection reset by peer")
	}
	w.writes++
	return w.body.Write(p)
}

func (w *flakyWriter) Flush() {}

func TestStreamEndsOnSendFailure(t *testing.T) {
	f := newFixture(t)
	w := &flakyWriter{header: http.Header{}, n: 9}
	f.server.StreamHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if w.status != http.StatusOK {
		t.Errorf("status = %d", w.status)
	}
	if ct := w.header.Get("Content-Type"); ct != pipeline.StreamContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.body.String()
	if got := strings.Count(body, "--"+pipeline.Boundary+"\r\n"); got != 3 {
		t.Errorf("boundaries = %d, want 3", got)
	}
	if !strings.HasPrefix(body, "Content-Type: image/jpeg\r\nContent-Length: 3\r\n\r\n") {
		t.Errorf("first part header = %q", body)
	}
	// The fourth frame was acquired and released even though it was not sent.
	if got := f.camera.Stats(); got.Acquired != 4 || got.Released != 4 {
		t.Errorf("camera stats = %+v", got)
	}
}

func TestStreamDetectOnConnect(t *testing.T) {
	f := newFixture(t)
	f.server.opts.DetectOnConnect = true
	// Detection decodes the frame, so it must be a real JPEG.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 24)), nil); err != nil {
		t.Fatal(err)
	}
	f.source.data = buf.Bytes()

	w := &flakyWriter{header: http.Header{}, n: 0}
	f.server.StreamHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if !f.state.Snapshot().Detection {
		t.Error("detection not enabled by stream connect")
	}
}

func TestRobotForwarding(t *testing.T) {
	f := newFixture(t)
	h := f.server.ControlHandler()

	if w := get(h, "/test1"); w.Code != http.StatusNotFound {
		t.Errorf("/test1 without var = %d, want 404", w.Code)
	}
	if w := get(h, "/test1?var=%7B%22go%22%3A1%7D"); w.Code != http.StatusOK {
		t.Errorf("/test1 = %d, want 200", w.Code)
	}
	if len(f.link.sent) != 1 || f.link.sent[0] != `{"go":1}` {
		t.Errorf("sent = %q", f.link.sent)
	}

	f.link.err = errors.New("unplugged")
	if w := get(h, "/test1?var=x"); w.Code != http.StatusInternalServerError {
		t.Errorf("/test1 with broken link = %d, want 500", w.Code)
	}
}

func TestMiscRoutes(t *testing.T) {
	f := newFixture(t)
	h := f.server.ControlHandler()

	if w := get(h, "/test2"); w.Body.String() != "index" {
		t.Errorf("/test2 = %q", w.Body.String())
	}
	if w := get(h, "/"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<html") {
		t.Errorf("/ = %d", w.Code)
	}

	get(h, "/capture")
	var stats Stats
	if err := json.Unmarshal(get(h, "/stats").Body.Bytes(), &stats); err != nil {
		t.Fatalf("/stats: %v", err)
	}
	if stats.Frames != 1 || stats.GalleryCapacity != 7 || stats.Camera == nil || stats.Camera.Acquired != 1 {
		t.Errorf("/stats = %+v", stats)
	}
}

func TestGalleryRoutes(t *testing.T) {
	f := newFixture(t)
	h := f.server.ControlHandler()
	id := f.gallery.Reserve()
	f.gallery.Add(id, []recognition.Embedding{{1, 0}})

	var ids []recognition.Identity
	if err := json.Unmarshal(get(h, "/gallery").Body.Bytes(), &ids); err != nil || len(ids) != 1 || ids[0].ID != id {
		t.Fatalf("/gallery = %+v, %v", ids, err)
	}

	del := func(target string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, target, nil))
		return w.Code
	}
	if code := del("/gallery/1"); code != http.StatusNoContent {
		t.Errorf("DELETE /gallery/1 = %d", code)
	}
	if code := del("/gallery/1"); code != http.StatusNotFound {
		t.Errorf("second DELETE /gallery/1 = %d", code)
	}
	if f.gallery.Len() != 0 {
		t.Errorf("gallery len = %d", f.gallery.Len())
	}
}
