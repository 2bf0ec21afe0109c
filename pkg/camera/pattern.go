package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// PatternSource renders a moving test card at the sensor's current
// resolution. It stands in for hardware on development machines.
type PatternSource struct {
	sensor   *SimulatedSensor
	interval time.Duration

	mu    sync.Mutex
	tick  int
	last  time.Time
	close chan struct{}
	once  sync.Once
}

func NewPatternSource(sensor *SimulatedSensor, fps int) *PatternSource {
	interval := time.Duration(0)
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &PatternSource{
		sensor:   sensor,
		interval: interval,
		close:    make(chan struct{}),
	}
}

func (p *PatternSource) Acquire(ctx context.Context) (*Frame, error) {
	p.mu.Lock()
	wait := time.Duration(0)
	if p.interval > 0 && !p.last.IsZero() {
		wait = p.interval - time.Since(p.last)
	}
	p.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for frame: %w", ctx.Err())
		case <-p.close:
			return nil, fmt.Errorf("pattern source closed: %w", ErrCameraUnavailable)
		case <-t.C:
		}
	}

	select {
	case <-p.close:
		return nil, fmt.Errorf("pattern source closed: %w", ErrCameraUnavailable)
	default:
	}

	p.mu.Lock()
	p.tick++
	tick := p.tick
	p.last = time.Now()
	p.mu.Unlock()

	w, h := p.sensor.Resolution()
	img := renderPattern(w, h, tick, p.sensor.Get("colorbar") == 1)
	format := p.sensor.PixelFormat()

	data, err := packImage(img, format, p.sensor.Get("quality"))
	if err != nil {
		return nil, fmt.Errorf("rendering test frame: %v: %w", err, ErrCameraUnavailable)
	}
	return NewFrame(w, h, format, data, nil), nil
}

func (p *PatternSource) Close() error {
	p.once.Do(func() { close(p.close) })
	return nil
}

func renderPattern(w, h, tick int, colorbar bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bars := []color.RGBA{
		{255, 255, 255, 255}, {255, 255, 0, 255}, {0, 255, 255, 255}, {0, 255, 0, 255},
		{255, 0, 255, 255}, {255, 0, 0, 255}, {0, 0, 255, 255}, {0, 0, 0, 255},
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if colorbar {
				img.SetRGBA(x, y, bars[x*len(bars)/w])
				continue
			}
			img.SetRGBA(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), uint8(tick), 255})
		}
	}

	size := h / 4
	ox := (tick * 4) % max(w-size, 1)
	oy := (h - size) / 2
	for y := oy; y < oy+size; y++ {
		for x := ox; x < ox+size; x++ {
			img.SetRGBA(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}

// packImage lays img out in the given pixel format. quality uses the
// sensor's 0 (best) to 63 (worst) scale.
func packImage(img *image.RGBA, format PixelFormat, quality int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch format {
	case PixelFormatJPEG:
		var buf bytes.Buffer
		q := 100 - quality*3/2
		if q < 1 {
			q = 1
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case PixelFormatRGB888:
		out := make([]byte, 0, w*h*3)
		for i := 0; i < len(img.Pix); i += 4 {
			out = append(out, img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
		return out, nil

	case PixelFormatRGB565:
		out := make([]byte, 0, w*h*2)
		for i := 0; i < len(img.Pix); i += 4 {
			r, g, bl := uint16(img.Pix[i]), uint16(img.Pix[i+1]), uint16(img.Pix[i+2])
			v := (r>>3)<<11 | (g>>2)<<5 | bl>>3
			out = append(out, byte(v>>8), byte(v))
		}
		return out, nil

	case PixelFormatGrayscale:
		out := make([]byte, 0, w*h)
		for i := 0; i < len(img.Pix); i += 4 {
			y, _, _ := color.RGBToYCbCr(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			out = append(out, y)
		}
		return out, nil

	case PixelFormatYUV422:
		out := make([]byte, 0, w*h*2)
		for i := 0; i+7 < len(img.Pix); i += 8 {
			y0, cb, cr := color.RGBToYCbCr(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			y1, _, _ := color.RGBToYCbCr(img.Pix[i+4], img.Pix[i+5], img.Pix[i+6])
			out = append(out, y0, cb, y1, cr)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported pixel format %v", format)
}
