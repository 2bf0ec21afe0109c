// Package dlib aligns and embeds faces with dlib's ResNet model through
// go-face. The model directory must hold shape_predictor_5_face_landmarks.dat
// and dlib_face_recognition_resnet_model_v1.dat.
package dlib

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	face "github.com/Kagami/go-face"
	"golang.org/x/image/draw"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/recognition"
)

// Aligner crops the detected box with a margin, lets dlib locate the face's
// landmarks inside the crop and returns its 128-d descriptor.
type Aligner struct {
	mu  sync.Mutex
	rec *face.Recognizer

	// Margin is added around the box on every side, as a fraction of its size.
	Margin float64
}

func New(modelDir string) (*Aligner, error) {
	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return &Aligner{rec: rec, Margin: 0.25}, nil
}

func (a *Aligner) Align(img *imaging.WorkingImage, box detect.FaceBox) (recognition.Embedding, error) {
	r := box.Rect()
	mx, my := int(float64(r.Dx())*a.Margin), int(float64(r.Dy())*a.Margin)
	crop := image.Rect(r.Min.X-mx, r.Min.Y-my, r.Max.X+mx, r.Max.Y+my).Intersect(img.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("box %v outside frame: %w", r, recognition.ErrAlignment)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, crop.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encoding face crop: %w", err)
	}

	a.mu.Lock()
	f, err := a.rec.RecognizeSingle(buf.Bytes())
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("no landmarks found in crop: %w", recognition.ErrAlignment)
	}

	out := make(recognition.Embedding, len(f.Descriptor))
	copy(out, f.Descriptor[:])
	return out, nil
}

func (a *Aligner) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.Close()
}
