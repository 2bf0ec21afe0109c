// Package cvdetect is an OpenCV Haar cascade detection backend.
package cvdetect

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
)

// Backend wraps a gocv CascadeClassifier. Haar cascades report no
// confidence, so every hit is scored 1.
type Backend struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	MinNeighbors int
}

func New(cascadePath string) (*Backend, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("error reading cascade file: %s", cascadePath)
	}
	return &Backend{classifier: classifier, MinNeighbors: 3}, nil
}

func (b *Backend) Candidates(img *imaging.WorkingImage, cfg detect.Config) ([]detect.FaceBox, error) {
	src, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrapping working image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	stage := cfg.Proposal()
	limit := min(img.Width, img.Height)
	maxSize := cfg.MaxFaceSize(limit)

	b.mu.Lock()
	rects := b.classifier.DetectMultiScaleWithParams(gray, 1/stage.PyramidScale, b.MinNeighbors, 0,
		image.Pt(stage.MinFaceSize, stage.MinFaceSize), image.Pt(maxSize, maxSize))
	b.mu.Unlock()

	out := make([]detect.FaceBox, 0, len(rects))
	for _, r := range rects {
		out = append(out, detect.FaceBox{
			X:      r.Min.X,
			Y:      r.Min.Y,
			Width:  r.Dx(),
			Height: r.Dy(),
			Score:  1,
		})
	}
	return out, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.classifier.Close()
}
