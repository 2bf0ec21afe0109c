package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type countingSource struct {
	mu       sync.Mutex
	acquired int
	released int
	fail     error
}

func (c *countingSource) Acquire(ctx context.Context) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.acquired++
	return NewFrame(4, 4, PixelFormatJPEG, []byte{1, 2, 3}, func() {
		c.mu.Lock()
		c.released++
		c.mu.Unlock()
	}), nil
}

func (c *countingSource) Close() error { return nil }

func TestFrameReleaseOnce(t *testing.T) {
	calls := 0
	f := NewFrame(1, 1, PixelFormatGrayscale, []byte{0}, func() { calls++ })

	if err := f.Release(); err != nil {
		t.Fatalf("first Release() = %v", err)
	}
	if err := f.Release(); !errors.Is(err, ErrFrameReleased) {
		t.Fatalf("second Release() = %v, want ErrFrameReleased", err)
	}
	if calls != 1 {
		t.Errorf("release hook ran %d times, want 1", calls)
	}
	if !f.Released() {
		t.Error("Released() = false after Release")
	}
}

func TestExclusiveSecondAcquireFailsFast(t *testing.T) {
	src := &countingSource{}
	ex := NewExclusive(src)
	ctx := context.Background()

	f, err := ex.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() = %v", err)
	}

	if _, err := ex.Acquire(ctx); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("concurrent Acquire() = %v, want ErrCameraUnavailable", err)
	}

	if err := f.Release(); err != nil {
		t.Fatalf("Release() = %v", err)
	}

	g, err := ex.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release = %v", err)
	}
	g.Release()

	stats := ex.Stats()
	if stats.Acquired != 2 || stats.Released != 2 || stats.Rejected != 1 {
		t.Errorf("Stats() = %+v, want acquired=2 released=2 rejected=1", stats)
	}
	if src.released != 2 {
		t.Errorf("inner releases = %d, want 2", src.released)
	}
	if ex.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", ex.Outstanding())
	}
}

func TestExclusiveInnerFailureFreesSlot(t *testing.T) {
	src := &countingSource{fail: ErrCameraUnavailable}
	ex := NewExclusive(src)

	if _, err := ex.Acquire(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Acquire() = %v", err)
	}

	src.fail = nil
	f, err := ex.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after failure = %v", err)
	}
	f.Release()
}

func TestSimulatedSensorRanges(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   int
		wantErr bool
	}{
		{"quality in range", "quality", 15, false},
		{"quality too high", "quality", 999, true},
		{"brightness low edge", "brightness", -2, false},
		{"brightness below", "brightness", -3, true},
		{"sharpness read only", "sharpness", 1, true},
		{"unknown register", "focus", 1, true},
		{"aec value", "aec_value", 1200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulatedSensor(PixelFormatJPEG)
			err := s.Set(tt.param, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%s, %d) error = %v, wantErr %v", tt.param, tt.value, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrParamRejected) {
				t.Errorf("error %v does not wrap ErrParamRejected", err)
			}
			if err == nil && s.Get(tt.param) != tt.value {
				t.Errorf("Get(%s) = %d, want %d", tt.param, s.Get(tt.param), tt.value)
			}
		})
	}
}

func TestFramesizeIgnoredOutsideJPEG(t *testing.T) {
	s := NewSimulatedSensor(PixelFormatRGB565)
	before := s.Get("framesize")
	if err := s.Set("framesize", int(FrameSizeVGA)); err != nil {
		t.Fatalf("Set(framesize) = %v", err)
	}
	if s.Get("framesize") != before {
		t.Errorf("framesize changed to %d for non-JPEG sensor", s.Get("framesize"))
	}
}

func TestPatternSourceFormats(t *testing.T) {
	formats := []PixelFormat{PixelFormatJPEG, PixelFormatRGB888, PixelFormatRGB565, PixelFormatGrayscale, PixelFormatYUV422}
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			sensor := NewSimulatedSensor(format)
			src := NewPatternSource(sensor, 0)
			defer src.Close()

			f, err := src.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire() = %v", err)
			}
			defer f.Release()

			w, h := sensor.Resolution()
			if f.Width != w || f.Height != h {
				t.Errorf("frame %dx%d, want %dx%d", f.Width, f.Height, w, h)
			}
			if bpp := format.BytesPerPixel(); bpp > 0 && f.Len() != w*h*bpp {
				t.Errorf("frame length %d, want %d", f.Len(), w*h*bpp)
			}
			if format == PixelFormatJPEG && (f.Data[0] != 0xFF || f.Data[1] != 0xD8) {
				t.Error("JPEG frame missing SOI marker")
			}
		})
	}
}

func TestPatternSourceClosed(t *testing.T) {
	src := NewPatternSource(NewSimulatedSensor(PixelFormatJPEG), 0)
	src.Close()
	if _, err := src.Acquire(context.Background()); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Acquire() after Close = %v, want ErrCameraUnavailable", err)
	}
}

func TestNearestFrameSize(t *testing.T) {
	if got := NearestFrameSize(640, 480); got != FrameSizeVGA {
		t.Errorf("NearestFrameSize(640,480) = %d, want VGA", got)
	}
	if got := NearestFrameSize(10, 10); got != FrameSize96x96 {
		t.Errorf("NearestFrameSize(10,10) = %d, want 96x96", got)
	}
}
