// internal/detect/detect.go
package detect

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/imaging"
)

// ErrDetectorInternal wraps failures inside a detection backend.
var ErrDetectorInternal = errors.New("detector internal error")

// Landmark indexes into FaceBox.Landmarks.
const (
	LeftEye = iota
	RightEye
	Nose
	MouthLeft
	MouthRight
	NumLandmarks
)

// FaceBox is one detected face in image coordinates.
type FaceBox struct {
	X, Y          int
	Width, Height int
	Score         float64
	Landmarks     [NumLandmarks]image.Point
}

func (b FaceBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// HasLandmarks reports whether any landmark has been set.
func (b FaceBox) HasLandmarks() bool {
	for _, p := range b.Landmarks {
		if p != (image.Point{}) {
			return true
		}
	}
	return false
}

// FaceBoxSet is the result of one detection call. An empty set means no
// face was found.
type FaceBoxSet struct {
	Boxes []FaceBox
}

func (s FaceBoxSet) Len() int    { return len(s.Boxes) }
func (s FaceBoxSet) Empty() bool { return len(s.Boxes) == 0 }

// First returns the highest ranked box.
func (s FaceBoxSet) First() (FaceBox, bool) {
	if len(s.Boxes) == 0 {
		return FaceBox{}, false
	}
	return s.Boxes[0], true
}

// Backend proposes scored face candidates for an image.
type Backend interface {
	Candidates(img *imaging.WorkingImage, cfg Config) ([]FaceBox, error)
	Close() error
}

// Engine runs a Backend and narrows its candidates through the configured
// proposal, refine and output stages.
type Engine struct {
	backend Backend
	cfg     Config
	logger  *zap.Logger
}

func NewEngine(backend Backend, cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{backend: backend, cfg: cfg, logger: logger}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Detect returns the faces in img, strongest first. The set is empty, never
// nil-valued, when nothing passes every stage.
func (e *Engine) Detect(img *imaging.WorkingImage) (FaceBoxSet, error) {
	cands, err := e.backend.Candidates(img, e.cfg)
	if err != nil {
		if errors.Is(err, ErrDetectorInternal) {
			return FaceBoxSet{}, err
		}
		return FaceBoxSet{}, fmt.Errorf("%v: %w", err, ErrDetectorInternal)
	}

	for _, st := range e.cfg.Stages {
		cands = st.apply(cands)
		if len(cands) == 0 {
			break
		}
	}

	for i := range cands {
		if !cands[i].HasLandmarks() {
			cands[i].Landmarks = EstimateLandmarks(cands[i].Rect())
		}
	}

	e.logger.Debug("detection finished",
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("faces", len(cands)))

	return FaceBoxSet{Boxes: cands}, nil
}

func (e *Engine) Close() error {
	return e.backend.Close()
}

func (s Stage) apply(in []FaceBox) []FaceBox {
	out := make([]FaceBox, 0, len(in))
	for _, b := range in {
		if b.Score >= s.ScoreThreshold && b.Width >= s.MinFaceSize && b.Height >= s.MinFaceSize {
			out = append(out, b)
		}
	}
	out = NMS(out, s.NMSThreshold)
	if s.MaxCandidates > 0 && len(out) > s.MaxCandidates {
		out = out[:s.MaxCandidates]
	}
	return out
}

// NMS sorts boxes by descending score and drops any box whose overlap with
// a kept box exceeds threshold (intersection over union).
func NMS(boxes []FaceBox, threshold float64) []FaceBox {
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Score > boxes[j].Score })

	kept := boxes[:0]
	for _, b := range boxes {
		keep := true
		for _, k := range kept {
			if IoU(b.Rect(), k.Rect()) > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, b)
		}
	}
	return kept
}

// IoU is the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

// EstimateLandmarks places the five facial landmarks at their typical
// proportions inside an upright face box.
func EstimateLandmarks(r image.Rectangle) [NumLandmarks]image.Point {
	at := func(fx, fy float64) image.Point {
		return image.Pt(r.Min.X+int(fx*float64(r.Dx())), r.Min.Y+int(fy*float64(r.Dy())))
	}
	return [NumLandmarks]image.Point{
		LeftEye:    at(0.30, 0.38),
		RightEye:   at(0.70, 0.38),
		Nose:       at(0.50, 0.58),
		MouthLeft:  at(0.35, 0.78),
		MouthRight: at(0.65, 0.78),
	}
}

// NopBackend never finds a face.
type NopBackend struct{}

func (NopBackend) Candidates(*imaging.WorkingImage, Config) ([]FaceBox, error) { return nil, nil }
func (NopBackend) Close() error                                                { return nil }
