// pkg/camera/mjpegsrc/mjpegsrc.go

// Package mjpegsrc reads frames from an upstream MJPEG-over-HTTP stream,
// such as another camera board's /stream endpoint.
package mjpegsrc

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"net/http"
	"sync"

	"github.com/mattn/go-mjpeg"

	"github.com/AlverezYari/facecam/pkg/camera"
)

// Source decodes parts of a multipart/x-mixed-replace stream. Frames are
// delivered as RGB888 since the decoder hands back decoded images.
type Source struct {
	url    string
	client *http.Client
	sensor *camera.SimulatedSensor

	mu     sync.Mutex
	dec    *mjpeg.Decoder
	res    *http.Response
	closed bool
}

func New(url string, client *http.Client) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{
		url:    url,
		client: client,
		sensor: camera.NewSimulatedSensor(camera.PixelFormatRGB888),
	}
}

// Sensor returns the register file for the upstream camera. Writes are
// recorded but not forwarded.
func (s *Source) Sensor() *camera.SimulatedSensor { return s.sensor }

func (s *Source) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return fmt.Errorf("upstream returned %s", res.Status)
	}
	dec, err := mjpeg.NewDecoderFromResponse(res)
	if err != nil {
		res.Body.Close()
		return err
	}
	s.dec, s.res = dec, res
	return nil
}

func (s *Source) Acquire(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("mjpeg source closed: %w", camera.ErrCameraUnavailable)
	}
	if s.dec == nil {
		// The connection outlives this call, so it is not tied to ctx.
		if err := s.connect(context.WithoutCancel(ctx)); err != nil {
			return nil, fmt.Errorf("connecting to %s: %v: %w", s.url, err, camera.ErrCameraUnavailable)
		}
	}

	img, err := s.dec.Decode()
	if err != nil {
		s.disconnect()
		return nil, fmt.Errorf("decoding upstream frame: %v: %w", err, camera.ErrCameraUnavailable)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	data := make([]byte, 0, b.Dx()*b.Dy()*3)
	for i := 0; i < len(rgba.Pix); i += 4 {
		data = append(data, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
	}
	s.sensor.SetFrameSize(camera.NearestFrameSize(b.Dx(), b.Dy()))
	return camera.NewFrame(b.Dx(), b.Dy(), camera.PixelFormatRGB888, data, nil), nil
}

func (s *Source) disconnect() {
	if s.res != nil {
		s.res.Body.Close()
	}
	s.dec, s.res = nil, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.disconnect()
	return nil
}
