package imaging

import (
	"image"
	"image/color"
	"sync/atomic"
)

// WorkingImage is a packed RGB888 scratch image, three bytes per pixel in
// row-major order. It implements draw.Image so annotation and resampling
// can operate on it directly. The owner must call Free exactly once.
type WorkingImage struct {
	Width  int
	Height int
	Pix    []byte

	pool  *Pool
	freed atomic.Bool
}

// NewWorkingImage allocates a width×height image from pool.
func NewWorkingImage(pool *Pool, width, height int) *WorkingImage {
	return &WorkingImage{
		Width:  width,
		Height: height,
		Pix:    pool.Alloc(width * height * 3),
		pool:   pool,
	}
}

// Free returns the pixel buffer to its pool.
func (w *WorkingImage) Free() error {
	if !w.freed.CompareAndSwap(false, true) {
		return ErrDoubleFree
	}
	w.pool.Free(w.Pix)
	w.Pix = nil
	return nil
}

func (w *WorkingImage) ColorModel() color.Model { return color.RGBAModel }

func (w *WorkingImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, w.Width, w.Height)
}

func (w *WorkingImage) At(x, y int) color.Color {
	r, g, b := w.RGBAt(x, y)
	return color.RGBA{r, g, b, 0xff}
}

func (w *WorkingImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(w.Bounds())) {
		return
	}
	r, g, b, _ := c.RGBA()
	w.SetRGB(x, y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// RGBAt returns the pixel at (x, y), black when out of bounds.
func (w *WorkingImage) RGBAt(x, y int) (uint8, uint8, uint8) {
	if x < 0 || y < 0 || x >= w.Width || y >= w.Height {
		return 0, 0, 0
	}
	i := (y*w.Width + x) * 3
	return w.Pix[i], w.Pix[i+1], w.Pix[i+2]
}

// SetRGB writes one pixel, ignoring out-of-bounds coordinates.
func (w *WorkingImage) SetRGB(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= w.Width || y >= w.Height {
		return
	}
	i := (y*w.Width + x) * 3
	w.Pix[i], w.Pix[i+1], w.Pix[i+2] = r, g, b
}

// Gray returns the luma plane of the image, one byte per pixel.
func (w *WorkingImage) Gray() []uint8 {
	out := make([]uint8, w.Width*w.Height)
	for i := range out {
		p := i * 3
		out[i] = uint8((299*int(w.Pix[p]) + 587*int(w.Pix[p+1]) + 114*int(w.Pix[p+2])) / 1000)
	}
	return out
}
