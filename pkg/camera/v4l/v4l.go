//go:build linux

// Package v4l captures MJPEG frames from a Video4Linux device.
package v4l

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/AlverezYari/facecam/pkg/camera"
)

type Source struct {
	dev    *device.Device
	sensor *camera.SimulatedSensor
	width  int
	height int
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Open starts capture on path (for example /dev/video0) at the requested
// size. The driver may pick a nearby size; the negotiated one is used.
func Open(path string, cfg camera.StreamConfig) (*Source, error) {
	opts := []device.Option{
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(cfg.Width),
			Height:      uint32(cfg.Height),
			Field:       v4l2.FieldNone,
		}),
	}
	if cfg.Framerate > 0 {
		opts = append(opts, device.WithFPS(uint32(cfg.Framerate)))
	}

	dev, err := device.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %v: %w", path, err, camera.ErrCameraUnavailable)
	}

	pix, err := dev.GetPixFormat()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("reading pixel format of %s: %w", path, err)
	}
	if pix.PixelFormat != v4l2.PixelFmtMJPEG {
		dev.Close()
		return nil, fmt.Errorf("%s does not deliver MJPEG: %w", path, camera.ErrCameraUnavailable)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("starting capture on %s: %v: %w", path, err, camera.ErrCameraUnavailable)
	}

	s := &Source{
		dev:    dev,
		sensor: camera.NewSimulatedSensor(camera.PixelFormatJPEG),
		width:  int(pix.Width),
		height: int(pix.Height),
		cancel: cancel,
	}
	s.sensor.SetFrameSize(camera.NearestFrameSize(s.width, s.height))
	return s, nil
}

// Sensor returns the register file. Writes are recorded but the driver
// keeps its negotiated settings.
func (s *Source) Sensor() *camera.SimulatedSensor { return s.sensor }

func (s *Source) Acquire(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("v4l source closed: %w", camera.ErrCameraUnavailable)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf, ok := <-s.dev.GetOutput():
		if !ok {
			return nil, fmt.Errorf("capture stopped: %w", camera.ErrCameraUnavailable)
		}
		if len(buf) == 0 {
			return nil, fmt.Errorf("empty capture buffer: %w", camera.ErrCameraUnavailable)
		}
		// The driver reuses its buffers.
		data := make([]byte, len(buf))
		copy(data, buf)
		return camera.NewFrame(s.width, s.height, camera.PixelFormatJPEG, data, nil), nil
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if err := s.dev.Stop(); err != nil {
		s.dev.Close()
		return err
	}
	return s.dev.Close()
}
