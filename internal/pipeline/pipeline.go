// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AlverezYari/facecam/internal/annotate"
	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/pkg/camera"
)

// ErrTransport means the client could not be written to. It ends a stream.
var ErrTransport = errors.New("transport failed")

// busyWait is how long a stream pauses after the camera was unavailable.
const busyWait = 5 * time.Millisecond

type Detector interface {
	Detect(img *imaging.WorkingImage) (detect.FaceBoxSet, error)
}

type Recognizer interface {
	Process(img *imaging.WorkingImage, faces detect.FaceBoxSet, flags recognition.Flags) recognition.Outcome
}

// Path records which branch an iteration took.
type Path int

const (
	// PathPassthrough forwarded the camera's own JPEG bytes.
	PathPassthrough Path = iota
	// PathEncoded converted a raw frame without detection.
	PathEncoded
	// PathDetectedPassthrough ran detection, found nothing, and forwarded
	// the camera's JPEG.
	PathDetectedPassthrough
	// PathAnnotated ran detection and re-encoded the working image.
	PathAnnotated
)

func (p Path) String() string {
	switch p {
	case PathPassthrough:
		return "passthrough"
	case PathEncoded:
		return "encoded"
	case PathDetectedPassthrough:
		return "detected-passthrough"
	case PathAnnotated:
		return "annotated"
	}
	return fmt.Sprintf("path(%d)", int(p))
}

// Result describes one iteration.
type Result struct {
	Path     Path
	Width    int
	Height   int
	Faces    int
	Score    float64
	Outcome  recognition.Outcome
	Duration time.Duration
}

type Options struct {
	// MaxDetectWidth is the widest frame detection runs on.
	MaxDetectWidth   int
	CaptureQuality   int
	AnnotatedQuality int
	// MaxFPS caps each stream's frame rate; 0 means unlimited.
	MaxFPS          float64
	SmoothingWindow int
}

func DefaultOptions() Options {
	return Options{
		MaxDetectWidth:   400,
		CaptureQuality:   imaging.QualityCapture,
		AnnotatedQuality: imaging.QualityAnnotated,
		SmoothingWindow:  20,
	}
}

// Pipeline turns camera frames into JPEG images, running detection and
// identity logic when the shared toggles ask for it. One Pipeline serves
// every stream and capture request.
type Pipeline struct {
	source     camera.FrameSource
	conv       *imaging.Converter
	detector   Detector
	recognizer Recognizer
	state      *control.State
	opts       Options
	stats      *Stats
	logger     *zap.Logger
}

func New(source camera.FrameSource, conv *imaging.Converter, detector Detector, recognizer Recognizer,
	state *control.State, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source:     source,
		conv:       conv,
		detector:   detector,
		recognizer: recognizer,
		state:      state,
		opts:       opts,
		stats:      NewStats(opts.SmoothingWindow),
		logger:     logger,
	}
}

func (p *Pipeline) Stats() *Stats { return p.stats }

func (p *Pipeline) State() *control.State { return p.state }

// Next runs one iteration and returns the JPEG to send. The caller owns the
// returned Encoded and must Release it. On error nothing is left to release.
func (p *Pipeline) Next(ctx context.Context) (imaging.Encoded, Result, error) {
	start := time.Now()
	enc, res, err := p.next(ctx)
	res.Duration = time.Since(start)
	p.stats.record(res, err)

	if err != nil {
		p.logger.Debug("iteration failed", zap.Error(err))
		return nil, res, err
	}
	p.logger.Debug("frame",
		zap.String("path", res.Path.String()),
		zap.Int("bytes", enc.Len()),
		zap.Duration("took", res.Duration),
		zap.Int("faces", res.Faces),
		zap.Int("id", res.Outcome.Code()))
	return enc, res, nil
}

func (p *Pipeline) next(ctx context.Context) (imaging.Encoded, Result, error) {
	f, err := p.source.Acquire(ctx)
	if err != nil {
		return nil, Result{}, err
	}
	res := Result{Width: f.Width, Height: f.Height}
	toggles := p.state.Snapshot()

	if !toggles.Detection || f.Width > p.opts.MaxDetectWidth {
		if f.Format == camera.PixelFormatJPEG {
			res.Path = PathPassthrough
			enc, err := p.conv.View(f)
			if err != nil {
				f.Release()
				return nil, res, err
			}
			return enc, res, nil
		}
		res.Path = PathEncoded
		enc, err := p.conv.EncodeFrame(f, p.opts.CaptureQuality)
		f.Release()
		return enc, res, err
	}

	return p.detectPath(f, toggles, res)
}

// detectPath owns f. A JPEG frame is held until the zero-faces passthrough
// decision; any other frame is released as soon as it is converted.
func (p *Pipeline) detectPath(f *camera.Frame, toggles control.Toggles, res Result) (imaging.Encoded, Result, error) {
	jpegSource := f.Format == camera.PixelFormatJPEG
	held := f
	releaseHeld := func() {
		if held != nil {
			held.Release()
			held = nil
		}
	}
	defer releaseHeld()

	img, err := p.conv.ToRGB(f)
	if err != nil {
		return nil, res, err
	}
	defer img.Free()
	if !jpegSource {
		releaseHeld()
	}

	faces, err := p.detector.Detect(img)
	if err != nil {
		return nil, res, err
	}
	res.Faces = faces.Len()

	if faces.Empty() {
		if jpegSource {
			res.Path = PathDetectedPassthrough
			enc, err := p.conv.View(held)
			if err != nil {
				return nil, res, err
			}
			held = nil
			return enc, res, nil
		}
	} else {
		first, _ := faces.First()
		res.Score = first.Score
		res.Outcome = p.recognizer.Process(img, faces, recognition.Flags{
			Enrolling:   toggles.Enrolling,
			Recognition: toggles.Recognition,
		})
		p.annotate(img, faces, res.Outcome)
	}
	releaseHeld()

	res.Path = PathAnnotated
	enc, err := p.conv.ToJPEG(img, p.opts.AnnotatedQuality)
	return enc, res, err
}

func (p *Pipeline) annotate(img *imaging.WorkingImage, faces detect.FaceBoxSet, out recognition.Outcome) {
	annotate.DrawBoxes(img, faces, out.Code())
	switch out.Kind {
	case recognition.OutcomeEnrolling:
		annotate.Caption(img, annotate.Cyan, fmt.Sprintf("ID[%d] Sample[%d]", out.ID, out.Sample))
	case recognition.OutcomeMatched:
		annotate.Caption(img, annotate.Green, fmt.Sprintf("Hello Subject %d", out.ID))
	case recognition.OutcomeNoMatch:
		annotate.Caption(img, annotate.Red, "Intruder Alert!")
	}
}

// Capture produces a single image.
func (p *Pipeline) Capture(ctx context.Context) (imaging.Encoded, Result, error) {
	return p.Next(ctx)
}

// Stream sends frames to sink until a write fails or ctx is done. Failed
// iterations are skipped and the loop moves straight to the next frame. A
// failed write returns an error wrapping ErrTransport.
func (p *Pipeline) Stream(ctx context.Context, sink Sink) error {
	session := uuid.NewString()
	logger := p.logger.With(zap.String("session", session))

	p.stats.streamOpened()
	defer p.stats.streamClosed()
	logger.Info("stream opened")

	var limiter *rate.Limiter
	if p.opts.MaxFPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.opts.MaxFPS), 1)
	}

	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("stream closed", zap.Int64("frames", sent), zap.Error(err))
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				logger.Info("stream closed", zap.Int64("frames", sent), zap.Error(err))
				return err
			}
		}

		enc, _, err := p.Next(ctx)
		if err != nil {
			// Failed iterations retry at once, unless another stream
			// holds the camera.
			if errors.Is(err, camera.ErrCameraUnavailable) {
				select {
				case <-ctx.Done():
				case <-time.After(busyWait):
				}
			}
			continue
		}

		werr := sink.WriteFrame(enc.Bytes())
		enc.Release()
		if werr != nil {
			logger.Info("stream closed", zap.Int64("frames", sent), zap.Error(werr))
			return fmt.Errorf("%v: %w", werr, ErrTransport)
		}
		sent++
	}
}
