// pkg/camera/camera.go
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrCameraUnavailable is returned when the device is busy (a frame is
	// already checked out) or not ready to deliver a frame.
	ErrCameraUnavailable = errors.New("camera unavailable")

	// ErrFrameReleased is returned by Frame.Release on a second release.
	ErrFrameReleased = errors.New("frame already released")
)

type PixelFormat int

const (
	PixelFormatRGB565 PixelFormat = iota
	PixelFormatYUV422
	PixelFormatGrayscale
	PixelFormatJPEG
	PixelFormatRGB888
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGB565:
		return "rgb565"
	case PixelFormatYUV422:
		return "yuv422"
	case PixelFormatGrayscale:
		return "grayscale"
	case PixelFormatJPEG:
		return "jpeg"
	case PixelFormatRGB888:
		return "rgb888"
	}
	return fmt.Sprintf("pixelformat(%d)", int(p))
}

// ParsePixelFormat maps a config name to a PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for _, p := range []PixelFormat{PixelFormatRGB565, PixelFormatYUV422, PixelFormatGrayscale, PixelFormatJPEG, PixelFormatRGB888} {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format %q", name)
}

// BytesPerPixel returns the packed size of one pixel, or 0 for compressed formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB565, PixelFormatYUV422:
		return 2
	case PixelFormatGrayscale:
		return 1
	case PixelFormatRGB888:
		return 3
	}
	return 0
}

// Frame is one capture backed by a buffer the source owns. Whoever acquired
// it must call Release exactly once; Data must not be used afterwards.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	Timestamp time.Time

	release  func()
	released atomic.Bool
}

// NewFrame wraps data as a frame. release runs on the first Release call and
// may be nil.
func NewFrame(width, height int, format PixelFormat, data []byte, release func()) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Format:    format,
		Data:      data,
		Timestamp: time.Now(),
		release:   release,
	}
}

// Len is the number of valid bytes in Data.
func (f *Frame) Len() int {
	return len(f.Data)
}

// Release hands the buffer back to its source.
func (f *Frame) Release() error {
	if !f.released.CompareAndSwap(false, true) {
		return ErrFrameReleased
	}
	if f.release != nil {
		f.release()
	}
	return nil
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// FrameSource acquires frames on demand.
type FrameSource interface {
	// Acquire blocks until a frame is ready, ctx is done, or the device
	// fails. Failures wrap ErrCameraUnavailable.
	Acquire(ctx context.Context) (*Frame, error)
	Close() error
}

type DeviceType int

const (
	USBCamera DeviceType = iota
	PiCamera
	VirtualCamera
	NetworkCamera
)

type Device struct {
	ID          string
	Name        string
	IsAvailable bool
	DeviceType  DeviceType
}

type StreamConfig struct {
	Width       int
	Height      int
	Framerate   int
	PixelFormat PixelFormat
}
