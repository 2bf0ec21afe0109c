package recognition

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
)

// ErrAlignment means the face pose or position is unusable for recognition.
// It is an expected outcome, not a failure of the system.
var ErrAlignment = errors.New("face not aligned")

// FaceSize is the edge length of the canonical aligned face.
const FaceSize = 56

// Aligner normalizes a detected face and produces its embedding.
type Aligner interface {
	Align(img *imaging.WorkingImage, face detect.FaceBox) (Embedding, error)
}

// LandmarkAligner checks the landmark geometry for a roughly frontal,
// upright face, crops it and resamples it to FaceSize×FaceSize luma.
// The embedding is the zero-mean, unit-norm pixel vector.
type LandmarkAligner struct {
	// MaxRoll is the largest eye-line tilt accepted, as |dy|/dx.
	MaxRoll float64
	// MinCoverage is the fraction of the box that must lie inside the frame.
	MinCoverage float64
}

func NewLandmarkAligner() *LandmarkAligner {
	return &LandmarkAligner{MaxRoll: 0.35, MinCoverage: 0.8}
}

func (a *LandmarkAligner) Align(img *imaging.WorkingImage, face detect.FaceBox) (Embedding, error) {
	box := face.Rect()
	if box.Empty() {
		return nil, fmt.Errorf("empty box: %w", ErrAlignment)
	}
	visible := box.Intersect(img.Bounds())
	if float64(visible.Dx()*visible.Dy()) < a.MinCoverage*float64(box.Dx()*box.Dy()) {
		return nil, fmt.Errorf("face %v mostly outside frame: %w", box, ErrAlignment)
	}

	lm := face.Landmarks
	if !face.HasLandmarks() {
		lm = detect.EstimateLandmarks(box)
	}
	le, re, nose := lm[detect.LeftEye], lm[detect.RightEye], lm[detect.Nose]
	dx := float64(re.X - le.X)
	dy := float64(re.Y - le.Y)
	if dx <= 0 {
		return nil, fmt.Errorf("eyes out of order: %w", ErrAlignment)
	}
	if math.Abs(dy)/dx > a.MaxRoll {
		return nil, fmt.Errorf("face rolled %.2f: %w", dy/dx, ErrAlignment)
	}
	if nose.X <= le.X || nose.X >= re.X {
		return nil, fmt.Errorf("face turned away: %w", ErrAlignment)
	}

	dst := image.NewRGBA(image.Rect(0, 0, FaceSize, FaceSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, visible, draw.Src, nil)

	return pixelEmbedding(luma(dst)), nil
}

// luma flattens an RGBA image to one Rec. 601 luma byte per pixel.
func luma(img *image.RGBA) []uint8 {
	out := make([]uint8, 0, len(img.Pix)/4)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
		out = append(out, uint8((299*r+587*g+114*b)/1000))
	}
	return out
}

func pixelEmbedding(pix []uint8) Embedding {
	var mean float64
	for _, p := range pix {
		mean += float64(p)
	}
	mean /= float64(len(pix))

	out := make(Embedding, len(pix))
	for i, p := range pix {
		out[i] = float32(float64(p) - mean)
	}
	normalize(out)
	return out
}
