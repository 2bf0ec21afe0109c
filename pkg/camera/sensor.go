package camera

import (
	"errors"
	"fmt"
	"sync"
)

// ErrParamRejected is returned by a Sensor when a value is outside the
// device range or the parameter cannot be written.
var ErrParamRejected = errors.New("parameter rejected by device")

// Param describes one tunable sensor register.
type Param struct {
	Name     string
	Min      int
	Max      int
	Default  int
	Settable bool
}

// Params lists the sensor registers in status order.
var Params = []Param{
	{Name: "framesize", Min: 0, Max: len(FrameSizes) - 1, Default: int(FrameSizeQVGA), Settable: true},
	{Name: "quality", Min: 0, Max: 63, Default: 10, Settable: true},
	{Name: "brightness", Min: -2, Max: 2, Default: 0, Settable: true},
	{Name: "contrast", Min: -2, Max: 2, Default: 0, Settable: true},
	{Name: "saturation", Min: -2, Max: 2, Default: 0, Settable: true},
	{Name: "sharpness", Min: -2, Max: 2, Default: 0, Settable: false},
	{Name: "special_effect", Min: 0, Max: 6, Default: 0, Settable: true},
	{Name: "wb_mode", Min: 0, Max: 4, Default: 0, Settable: true},
	{Name: "awb", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "awb_gain", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "aec", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "aec2", Min: 0, Max: 1, Default: 0, Settable: true},
	{Name: "ae_level", Min: -2, Max: 2, Default: 0, Settable: true},
	{Name: "aec_value", Min: 0, Max: 1200, Default: 168, Settable: true},
	{Name: "agc", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "agc_gain", Min: 0, Max: 30, Default: 0, Settable: true},
	{Name: "gainceiling", Min: 0, Max: 6, Default: 0, Settable: true},
	{Name: "bpc", Min: 0, Max: 1, Default: 0, Settable: true},
	{Name: "wpc", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "raw_gma", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "lenc", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "vflip", Min: 0, Max: 1, Default: 0, Settable: true},
	{Name: "hmirror", Min: 0, Max: 1, Default: 0, Settable: true},
	{Name: "dcw", Min: 0, Max: 1, Default: 1, Settable: true},
	{Name: "colorbar", Min: 0, Max: 1, Default: 0, Settable: true},
}

// LookupParam finds a register by name.
func LookupParam(name string) (Param, bool) {
	for _, p := range Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Sensor is the tuning surface of a camera driver.
type Sensor interface {
	// Set writes one register. Out-of-range values and read-only registers
	// fail with ErrParamRejected.
	Set(name string, value int) error
	Get(name string) int
	PixelFormat() PixelFormat
}

type FrameSize int

const (
	FrameSize96x96 FrameSize = iota
	FrameSizeQQVGA
	FrameSizeQCIF
	FrameSizeHQVGA
	FrameSize240x240
	FrameSizeQVGA
	FrameSizeCIF
	FrameSizeHVGA
	FrameSizeVGA
	FrameSizeSVGA
	FrameSizeXGA
	FrameSizeHD
	FrameSizeSXGA
	FrameSizeUXGA
)

// FrameSizes maps FrameSize values to pixel dimensions.
var FrameSizes = [...]struct{ Width, Height int }{
	FrameSize96x96:   {96, 96},
	FrameSizeQQVGA:   {160, 120},
	FrameSizeQCIF:    {176, 144},
	FrameSizeHQVGA:   {240, 176},
	FrameSize240x240: {240, 240},
	FrameSizeQVGA:    {320, 240},
	FrameSizeCIF:     {400, 296},
	FrameSizeHVGA:    {480, 320},
	FrameSizeVGA:     {640, 480},
	FrameSizeSVGA:    {800, 600},
	FrameSizeXGA:     {1024, 768},
	FrameSizeHD:      {1280, 720},
	FrameSizeSXGA:    {1280, 1024},
	FrameSizeUXGA:    {1600, 1200},
}

// Dimensions returns the width and height of s, falling back to QVGA for
// unknown values.
func (s FrameSize) Dimensions() (int, int) {
	if s < 0 || int(s) >= len(FrameSizes) {
		s = FrameSizeQVGA
	}
	d := FrameSizes[s]
	return d.Width, d.Height
}

// SimulatedSensor is an in-memory register file with the value ranges of
// the reference sensor. Drivers without native tuning embed it to validate
// and remember writes.
type SimulatedSensor struct {
	mu     sync.RWMutex
	values map[string]int
	format PixelFormat

	// OnSet, when set, is called after a successful write.
	OnSet func(name string, value int)
}

func NewSimulatedSensor(format PixelFormat) *SimulatedSensor {
	s := &SimulatedSensor{
		values: make(map[string]int, len(Params)),
		format: format,
	}
	for _, p := range Params {
		s.values[p.Name] = p.Default
	}
	return s
}

func (s *SimulatedSensor) Set(name string, value int) error {
	p, ok := LookupParam(name)
	if !ok || !p.Settable {
		return fmt.Errorf("%s is not writable: %w", name, ErrParamRejected)
	}
	if value < p.Min || value > p.Max {
		return fmt.Errorf("%s=%d outside [%d,%d]: %w", name, value, p.Min, p.Max, ErrParamRejected)
	}

	s.mu.Lock()
	// framesize only applies to JPEG output; other formats keep their size.
	if name == "framesize" && s.format != PixelFormatJPEG {
		s.mu.Unlock()
		return nil
	}
	s.values[name] = value
	s.mu.Unlock()

	if s.OnSet != nil {
		s.OnSet(name, value)
	}
	return nil
}

func (s *SimulatedSensor) Get(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

func (s *SimulatedSensor) PixelFormat() PixelFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// Resolution is the frame size currently selected by the framesize register.
func (s *SimulatedSensor) Resolution() (int, int) {
	return FrameSize(s.Get("framesize")).Dimensions()
}

// SetFrameSize forces the framesize register regardless of pixel format.
// Drivers use it to report the size negotiated with the hardware.
func (s *SimulatedSensor) SetFrameSize(size FrameSize) {
	s.mu.Lock()
	s.values["framesize"] = int(size)
	s.mu.Unlock()
}

// NearestFrameSize picks the largest FrameSize that fits in width×height.
func NearestFrameSize(width, height int) FrameSize {
	best := FrameSize96x96
	for i, d := range FrameSizes {
		if d.Width <= width && d.Height <= height {
			best = FrameSize(i)
		}
	}
	return best
}
