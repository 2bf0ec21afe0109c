package detect

import (
	_ "embed"
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/AlverezYari/facecam/internal/imaging"
)

// PigoBackend scans with a pigo pixel-intensity cascade.
type PigoBackend struct {
	classifier *pigo.Pigo

	// QualityScale maps pigo's unbounded detection quality to a [0,1]
	// score: score = min(Q/QualityScale, 1).
	QualityScale float32
	ShiftFactor  float64
	ClusterIoU   float64
}

// facefinder is pigo's frontal face cascade.
//
//go:embed cascade/facefinder
var facefinder []byte

// DefaultPigoBackend uses the embedded facefinder cascade.
func DefaultPigoBackend() (*PigoBackend, error) {
	return NewPigoBackend(facefinder)
}

// LoadPigoBackend reads a cascade file such as pigo's "facefinder".
func LoadPigoBackend(path string) (*PigoBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}
	return NewPigoBackend(data)
}

func NewPigoBackend(cascade []byte) (*PigoBackend, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}
	return &PigoBackend{
		classifier:   classifier,
		QualityScale: 10,
		ShiftFactor:  0.1,
		ClusterIoU:   0.2,
	}, nil
}

func (p *PigoBackend) Candidates(img *imaging.WorkingImage, cfg Config) ([]FaceBox, error) {
	stage := cfg.Proposal()
	limit := img.Width
	if img.Height < limit {
		limit = img.Height
	}
	if limit < stage.MinFaceSize {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     stage.MinFaceSize,
		MaxSize:     cfg.MaxFaceSize(limit),
		ShiftFactor: p.ShiftFactor,
		ScaleFactor: 1 / stage.PyramidScale,
		ImageParams: pigo.ImageParams{
			Pixels: img.Gray(),
			Rows:   img.Height,
			Cols:   img.Width,
			Dim:    img.Width,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.ClusterIoU)

	out := make([]FaceBox, 0, len(dets))
	for _, d := range dets {
		score := float64(d.Q / p.QualityScale)
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		out = append(out, FaceBox{
			X:      d.Col - d.Scale/2,
			Y:      d.Row - d.Scale/2,
			Width:  d.Scale,
			Height: d.Scale,
			Score:  score,
		})
	}
	return out, nil
}

func (p *PigoBackend) Close() error { return nil }
