// Package cvcam captures from local cameras through OpenCV.
package cvcam

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/AlverezYari/facecam/pkg/camera"
)

// ScanDevices probes the first few capture indices.
func ScanDevices() ([]camera.Device, error) {
	var devices []camera.Device

	// Usually, camera 0 is the built-in webcam
	for i := 0; i < 5; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		opened := vc.IsOpened()
		vc.Close()
		if !opened {
			continue
		}
		name := fmt.Sprintf("Camera %d", i)
		if i == 0 {
			name = "Built-in Camera"
		}
		devices = append(devices, camera.Device{
			ID:          strconv.Itoa(i),
			Name:        name,
			IsAvailable: true,
			DeviceType:  camera.USBCamera,
		})
	}
	return devices, nil
}

// Source reads frames from a VideoCapture. Frames are JPEG when the
// configured format is JPEG and RGB888 otherwise.
type Source struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	sensor *camera.SimulatedSensor
	closed bool

	vflip   bool
	hmirror bool
}

// Open opens deviceID, an index such as "0".
func Open(deviceID string, cfg camera.StreamConfig) (*Source, error) {
	var index int
	if deviceID == "Built-in Camera" {
		index = 0
	} else {
		var err error
		index, err = strconv.Atoi(deviceID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %s", deviceID)
		}
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("error opening camera %s: %v: %w", deviceID, err, camera.ErrCameraUnavailable)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %s is not open: %w", deviceID, camera.ErrCameraUnavailable)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	format := camera.PixelFormatRGB888
	if cfg.PixelFormat == camera.PixelFormatJPEG {
		format = camera.PixelFormatJPEG
	}
	s := &Source{
		vc:     vc,
		mat:    gocv.NewMat(),
		sensor: camera.NewSimulatedSensor(format),
	}
	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))
	s.sensor.SetFrameSize(camera.NearestFrameSize(w, h))
	s.sensor.OnSet = s.apply
	return s, nil
}

func (s *Source) Sensor() *camera.SimulatedSensor { return s.sensor }

// apply forwards register writes that have a VideoCapture equivalent.
// Register values span [-2,2]; OpenCV properties are normalized to [0,1].
func (s *Source) apply(name string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	norm := float64(value+2) / 4
	switch name {
	case "brightness":
		s.vc.Set(gocv.VideoCaptureBrightness, norm)
	case "contrast":
		s.vc.Set(gocv.VideoCaptureContrast, norm)
	case "saturation":
		s.vc.Set(gocv.VideoCaptureSaturation, norm)
	case "framesize":
		w, h := camera.FrameSize(value).Dimensions()
		s.vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
		s.vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	case "vflip":
		s.vflip = value == 1
	case "hmirror":
		s.hmirror = value == 1
	}
}

func (s *Source) Acquire(ctx context.Context) (*camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("camera closed: %w", camera.ErrCameraUnavailable)
	}

	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("failed to read frame: %w", camera.ErrCameraUnavailable)
	}
	s.orient()

	w, h := s.mat.Cols(), s.mat.Rows()
	if s.sensor.PixelFormat() == camera.PixelFormatJPEG {
		quality := jpegQuality(s.sensor.Get("quality"))
		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.mat, []int{gocv.IMWriteJpegQuality, quality})
		if err != nil {
			return nil, fmt.Errorf("failed to encode frame: %v: %w", err, camera.ErrCameraUnavailable)
		}
		defer buf.Close()
		// GetBytes aliases native memory that Close frees.
		data := append([]byte(nil), buf.GetBytes()...)
		return camera.NewFrame(w, h, camera.PixelFormatJPEG, data, nil), nil
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(s.mat, &rgb, gocv.ColorBGRToRGB)
	return camera.NewFrame(w, h, camera.PixelFormatRGB888, rgb.ToBytes(), nil), nil
}

func (s *Source) orient() {
	var code int
	switch {
	case s.vflip && s.hmirror:
		code = -1
	case s.vflip:
		code = 0
	case s.hmirror:
		code = 1
	default:
		return
	}
	gocv.Flip(s.mat, &s.mat, code)
}

// jpegQuality maps the sensor's 0 (best) to 63 (worst) scale onto
// OpenCV's 0 to 100.
func jpegQuality(reg int) int {
	q := 100 - reg*100/63
	if q < 1 {
		q = 1
	}
	return q
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	if err := s.vc.Close(); err != nil {
		return fmt.Errorf("error closing camera: %v", err)
	}
	return nil
}
