package control

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/pkg/camera"
)

var (
	ErrUnknownKey       = errors.New("unknown control key")
	ErrRejectedByDevice = errors.New("value rejected by device")
)

// Toggle keys.
const (
	KeyDetect    = "face_detect"
	KeyEnroll    = "face_enroll"
	KeyRecognize = "face_recognize"
)

// Surface applies control writes to the camera sensor and the shared
// pipeline State.
type Surface struct {
	state  *State
	sensor camera.Sensor
	logger *zap.Logger
}

func NewSurface(state *State, sensor camera.Sensor, logger *zap.Logger) *Surface {
	return &Surface{state: state, sensor: sensor, logger: logger}
}

func (s *Surface) State() *State { return s.state }

// Apply writes one key. Unknown keys fail with ErrUnknownKey and values the
// sensor refuses fail with ErrRejectedByDevice.
func (s *Surface) Apply(key string, value int) error {
	switch key {
	case KeyDetect:
		s.state.SetDetection(value != 0)
	case KeyRecognize:
		s.state.SetRecognition(value != 0)
	case KeyEnroll:
		s.state.SetEnrolling(value != 0)
	default:
		if _, ok := camera.LookupParam(key); !ok {
			return fmt.Errorf("%q: %w", key, ErrUnknownKey)
		}
		if err := s.sensor.Set(key, value); err != nil {
			s.logger.Warn("sensor rejected value",
				zap.String("key", key),
				zap.Int("value", value),
				zap.Error(err))
			return fmt.Errorf("%s=%d: %v: %w", key, value, err, ErrRejectedByDevice)
		}
	}

	s.logger.Info("control applied", zap.String("key", key), zap.Int("value", value))
	return nil
}

// Field is one entry of the status document.
type Field struct {
	Name  string
	Value int
}

// Status lists every sensor register followed by the three toggles, in a
// fixed order.
type Status []Field

func (s *Surface) Status() Status {
	out := make(Status, 0, len(camera.Params)+3)
	for _, p := range camera.Params {
		out = append(out, Field{p.Name, s.sensor.Get(p.Name)})
	}
	t := s.state.Snapshot()
	out = append(out,
		Field{KeyDetect, boolInt(t.Detection)},
		Field{KeyEnroll, boolInt(t.Enrolling)},
		Field{KeyRecognize, boolInt(t.Recognition)},
	)
	return out
}

// MarshalJSON renders a single-line object with keys in Status order.
func (st Status) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range st {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.Name))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(f.Value))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Keys lists every key Apply accepts.
func Keys() []string {
	keys := make([]string, 0, len(camera.Params)+3)
	for _, p := range camera.Params {
		if p.Settable {
			keys = append(keys, p.Name)
		}
	}
	return append(keys, KeyDetect, KeyEnroll, KeyRecognize)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
