package recognition

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
)

type StateKind int

const (
	Idle StateKind = iota
	Enrolling
	Recognizing
)

func (k StateKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Enrolling:
		return "enrolling"
	case Recognizing:
		return "recognizing"
	}
	return fmt.Sprintf("state(%d)", int(k))
}

// State is the machine's position. Slot and SamplesRemaining are only
// meaningful while Enrolling.
type State struct {
	Kind             StateKind `json:"kind"`
	Slot             int       `json:"slot,omitempty"`
	SamplesRemaining int       `json:"samples_remaining,omitempty"`
}

type OutcomeKind int

const (
	// OutcomeNone: identity logic did not run this frame.
	OutcomeNone OutcomeKind = iota
	// OutcomeNotAligned: a face was found but could not be aligned.
	OutcomeNotAligned
	OutcomeEnrolling
	OutcomeMatched
	OutcomeNoMatch
)

// Outcome is the identity result for one frame.
type Outcome struct {
	Kind OutcomeKind
	// ID is the matched identity, or the slot being enrolled.
	ID int
	// Sample is the 1-based count of enrollment samples taken so far.
	Sample int
	// Finished is set on the frame that completed an enrollment.
	Finished   bool
	Similarity float64
}

// Code folds the outcome into the signed id used for box colors: the
// identity for a match or enrollment, -1 for no match, 0 otherwise.
func (o Outcome) Code() int {
	switch o.Kind {
	case OutcomeMatched, OutcomeEnrolling:
		return o.ID
	case OutcomeNoMatch:
		return -1
	}
	return 0
}

// Flags is the toggle snapshot an iteration runs with.
type Flags struct {
	Enrolling   bool
	Recognition bool
}

// Toggles receives the end-of-enrollment event.
type Toggles interface {
	FinishEnrollment()
}

type Options struct {
	ConfirmTimes   int
	MatchThreshold float64
}

func DefaultOptions() Options {
	return Options{ConfirmTimes: 5, MatchThreshold: 0.55}
}

// Engine is the enrollment/recognition state machine. Toggle changes are
// external events observed through the Flags passed to Process; the engine
// itself only clears the enrolling toggle, through Toggles, once an
// enrollment completes.
type Engine struct {
	mu      sync.Mutex
	state   State
	samples []Embedding

	gallery *Gallery
	aligner Aligner
	toggles Toggles
	opts    Options
	logger  *zap.Logger
}

func NewEngine(gallery *Gallery, aligner Aligner, toggles Toggles, opts Options, logger *zap.Logger) *Engine {
	if opts.ConfirmTimes < 1 {
		opts.ConfirmTimes = 1
	}
	return &Engine{
		gallery: gallery,
		aligner: aligner,
		toggles: toggles,
		opts:    opts,
		logger:  logger,
	}
}

func (e *Engine) Gallery() *Gallery { return e.gallery }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Process runs identity logic for the first face of a non-empty set.
// Alignment problems are reported as OutcomeNotAligned and never as errors.
func (e *Engine) Process(img *imaging.WorkingImage, faces detect.FaceBoxSet, flags Flags) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !flags.Enrolling && e.state.Kind == Enrolling {
		e.logger.Info("enrollment abandoned",
			zap.Int("slot", e.state.Slot),
			zap.Int("samples_remaining", e.state.SamplesRemaining))
		e.reset()
	}

	face, ok := faces.First()
	if !ok {
		return Outcome{Kind: OutcomeNone}
	}

	switch {
	case flags.Enrolling:
		return e.enroll(img, face)
	case flags.Recognition:
		e.state = State{Kind: Recognizing}
		return e.recognize(img, face)
	}
	e.state = State{Kind: Idle}
	return Outcome{Kind: OutcomeNone}
}

func (e *Engine) enroll(img *imaging.WorkingImage, face detect.FaceBox) Outcome {
	if e.state.Kind != Enrolling {
		e.state = State{
			Kind:             Enrolling,
			Slot:             e.gallery.Reserve(),
			SamplesRemaining: e.opts.ConfirmTimes,
		}
		e.samples = e.samples[:0]
		e.logger.Info("enrolling face", zap.Int("slot", e.state.Slot))
	}

	emb, err := e.align(img, face)
	if err != nil {
		return Outcome{Kind: OutcomeNotAligned, ID: e.state.Slot}
	}

	e.samples = append(e.samples, emb)
	e.state.SamplesRemaining--
	out := Outcome{
		Kind:   OutcomeEnrolling,
		ID:     e.state.Slot,
		Sample: e.opts.ConfirmTimes - e.state.SamplesRemaining,
	}
	e.logger.Debug("enrollment sample",
		zap.Int("slot", out.ID),
		zap.Int("sample", out.Sample))

	if e.state.SamplesRemaining == 0 {
		ident, evicted := e.gallery.Add(e.state.Slot, e.samples)
		if evicted != nil {
			e.logger.Info("gallery full, evicted oldest identity", zap.Int("id", evicted.ID))
		}
		e.logger.Info("enrolled face", zap.Int("id", ident.ID), zap.Int("samples", ident.Samples))
		e.reset()
		if e.toggles != nil {
			e.toggles.FinishEnrollment()
		}
		out.Finished = true
	}
	return out
}

func (e *Engine) recognize(img *imaging.WorkingImage, face detect.FaceBox) Outcome {
	emb, err := e.align(img, face)
	if err != nil {
		return Outcome{Kind: OutcomeNotAligned}
	}

	ident, sim, ok := e.gallery.Match(emb, e.opts.MatchThreshold)
	if !ok {
		e.logger.Debug("no match found", zap.Float64("similarity", sim))
		return Outcome{Kind: OutcomeNoMatch, Similarity: sim}
	}
	e.logger.Debug("matched face", zap.Int("id", ident.ID), zap.Float64("similarity", sim))
	return Outcome{Kind: OutcomeMatched, ID: ident.ID, Similarity: sim}
}

func (e *Engine) align(img *imaging.WorkingImage, face detect.FaceBox) (Embedding, error) {
	emb, err := e.aligner.Align(img, face)
	if err != nil {
		if errors.Is(err, ErrAlignment) {
			e.logger.Debug("face not aligned", zap.Error(err))
		} else {
			e.logger.Warn("alignment failed", zap.Error(err))
		}
		return nil, err
	}
	return emb, nil
}

func (e *Engine) reset() {
	e.state = State{Kind: Idle}
	e.samples = e.samples[:0]
}
