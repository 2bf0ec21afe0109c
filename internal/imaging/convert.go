// internal/imaging/convert.go
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"

	"github.com/AlverezYari/facecam/pkg/camera"
)

var (
	ErrConversion = errors.New("pixel format conversion failed")
	ErrEncode     = errors.New("jpeg encode failed")
)

// Quality levels used by callers.
const (
	QualityCapture   = 80
	QualityAnnotated = 90
)

// Codec compresses and decompresses JPEG images.
type Codec interface {
	Encode(w io.Writer, img image.Image, quality int) error
	Decode(data []byte) (image.Image, error)
}

// StdCodec is the image/jpeg codec.
type StdCodec struct{}

func (StdCodec) Encode(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func (StdCodec) Decode(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

// Converter moves pixels between camera frames, working images and JPEG.
// All buffers it creates are accounted to its Pool.
type Converter struct {
	pool  *Pool
	codec Codec
}

// NewConverter returns a Converter using codec, or StdCodec when nil.
func NewConverter(pool *Pool, codec Codec) *Converter {
	if codec == nil {
		codec = StdCodec{}
	}
	return &Converter{pool: pool, codec: codec}
}

func (c *Converter) Pool() *Pool { return c.pool }

// ToRGB decodes f into a freshly allocated WorkingImage. The frame is not
// released; the caller decides when its bytes are no longer needed.
func (c *Converter) ToRGB(f *camera.Frame) (*WorkingImage, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("frame is %dx%d: %w", f.Width, f.Height, ErrConversion)
	}

	if f.Format == camera.PixelFormatJPEG {
		src, err := c.codec.Decode(f.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding jpeg: %v: %w", err, ErrConversion)
		}
		b := src.Bounds()
		img := NewWorkingImage(c.pool, b.Dx(), b.Dy())
		draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
		return img, nil
	}

	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported format %v: %w", f.Format, ErrConversion)
	}
	if need := f.Width * f.Height * bpp; f.Len() < need {
		return nil, fmt.Errorf("%v frame has %d bytes, need %d: %w", f.Format, f.Len(), need, ErrConversion)
	}

	img := NewWorkingImage(c.pool, f.Width, f.Height)
	unpack(img.Pix, f.Data, f.Format, f.Width*f.Height)
	return img, nil
}

func unpack(dst, src []byte, format camera.PixelFormat, pixels int) {
	switch format {
	case camera.PixelFormatRGB888:
		copy(dst, src[:pixels*3])

	case camera.PixelFormatRGB565:
		for i := 0; i < pixels; i++ {
			v := uint16(src[i*2])<<8 | uint16(src[i*2+1])
			r, g, b := v>>11&0x1f, v>>5&0x3f, v&0x1f
			dst[i*3] = uint8(r<<3 | r>>2)
			dst[i*3+1] = uint8(g<<2 | g>>4)
			dst[i*3+2] = uint8(b<<3 | b>>2)
		}

	case camera.PixelFormatGrayscale:
		for i := 0; i < pixels; i++ {
			dst[i*3], dst[i*3+1], dst[i*3+2] = src[i], src[i], src[i]
		}

	case camera.PixelFormatYUV422:
		// YUYV: two pixels share one chroma pair.
		for i := 0; i+1 < pixels; i += 2 {
			y0, u, y1, v := src[i*2], src[i*2+1], src[i*2+2], src[i*2+3]
			dst[i*3], dst[i*3+1], dst[i*3+2] = ycbcr(y0, u, v)
			dst[i*3+3], dst[i*3+4], dst[i*3+5] = ycbcr(y1, u, v)
		}
	}
}

func ycbcr(y, cb, cr uint8) (uint8, uint8, uint8) {
	return color.YCbCrToRGB(y, cb, cr)
}

// ToJPEG encodes img into an Owned buffer.
func (c *Converter) ToJPEG(img image.Image, quality int) (Encoded, error) {
	var buf bytes.Buffer
	if err := c.codec.Encode(&buf, img, clampQuality(quality)); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrEncode)
	}
	return &Owned{data: c.pool.Adopt(buf.Bytes()), pool: c.pool}, nil
}

// View wraps a JPEG frame without copying. Ownership of f moves to the
// returned value.
func (c *Converter) View(f *camera.Frame) (Encoded, error) {
	if f.Format != camera.PixelFormatJPEG {
		return nil, fmt.Errorf("cannot view %v frame as jpeg: %w", f.Format, ErrConversion)
	}
	return &Borrowed{frame: f}, nil
}

// EncodeFrame produces JPEG bytes for f without detection. A JPEG frame is
// returned as a view and ownership moves to the result; any other format is
// converted and encoded, and f stays with the caller.
func (c *Converter) EncodeFrame(f *camera.Frame, quality int) (Encoded, error) {
	if f.Format == camera.PixelFormatJPEG {
		return c.View(f)
	}
	img, err := c.ToRGB(f)
	if err != nil {
		return nil, err
	}
	defer img.Free()
	return c.ToJPEG(img, quality)
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}
