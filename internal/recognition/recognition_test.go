package recognition

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/AlverezYari/facecam/internal/detect"
	"github.com/AlverezYari/facecam/internal/imaging"
)

// scriptedAligner returns the queued results in order, then repeats the
// last embedding.
type scriptedAligner struct {
	results []error
	emb     Embedding
	calls   int
}

func (s *scriptedAligner) Align(*imaging.WorkingImage, detect.FaceBox) (Embedding, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return nil, s.results[i]
	}
	return s.emb, nil
}

type toggleSpy struct{ finished int }

func (t *toggleSpy) FinishEnrollment() { t.finished++ }

func oneFace() detect.FaceBoxSet {
	return detect.FaceBoxSet{Boxes: []detect.FaceBox{{X: 10, Y: 10, Width: 100, Height: 100, Score: 0.9}}}
}

func newTestEngine(t *testing.T, aligner Aligner, capacity int) (*Engine, *toggleSpy) {
	t.Helper()
	spy := &toggleSpy{}
	e := NewEngine(NewGallery(capacity), aligner, spy, DefaultOptions(), zaptest.NewLogger(t))
	return e, spy
}

func TestEnrollmentWalk(t *testing.T) {
	notAligned := fmt.Errorf("rolled: %w", ErrAlignment)
	aligner := &scriptedAligner{
		// Two alignment failures interleaved with the five samples.
		results: []error{nil, notAligned, nil, nil, notAligned, nil, nil},
		emb:     Embedding{1, 0, 0},
	}
	e, spy := newTestEngine(t, aligner, 7)
	flags := Flags{Enrolling: true}

	wantRemaining := []int{4, 4, 3, 2, 2, 1}
	for i, want := range wantRemaining {
		out := e.Process(nil, oneFace(), flags)
		st := e.State()
		if st.Kind != Enrolling || st.SamplesRemaining != want {
			t.Fatalf("step %d: state = %+v, want Enrolling(_, %d)", i, st, want)
		}
		if aligner.results[i] != nil && out.Kind != OutcomeNotAligned {
			t.Errorf("step %d: outcome = %v, want OutcomeNotAligned", i, out.Kind)
		}
		if out.ID != 1 {
			t.Errorf("step %d: slot = %d, want 1", i, out.ID)
		}
	}

	out := e.Process(nil, oneFace(), flags)
	if !out.Finished || out.Kind != OutcomeEnrolling || out.Sample != 5 {
		t.Fatalf("final outcome = %+v", out)
	}
	if st := e.State(); st.Kind != Idle {
		t.Errorf("state after enrollment = %v, want idle", st.Kind)
	}
	if e.Gallery().Len() != 1 {
		t.Errorf("gallery size = %d, want 1", e.Gallery().Len())
	}
	if spy.finished != 1 {
		t.Errorf("FinishEnrollment called %d times, want 1", spy.finished)
	}
}

func TestEnrollmentAbandoned(t *testing.T) {
	e, spy := newTestEngine(t, &scriptedAligner{emb: Embedding{1}}, 7)

	e.Process(nil, oneFace(), Flags{Enrolling: true})
	e.Process(nil, oneFace(), Flags{Enrolling: true})
	e.Process(nil, oneFace(), Flags{})

	if st := e.State(); st.Kind != Idle {
		t.Errorf("state = %v, want idle", st.Kind)
	}
	if e.Gallery().Len() != 0 {
		t.Error("partial enrollment was committed")
	}
	if spy.finished != 0 {
		t.Error("FinishEnrollment called for abandoned enrollment")
	}

	// A new enrollment gets a fresh slot.
	out := e.Process(nil, oneFace(), Flags{Enrolling: true})
	if out.ID != 2 {
		t.Errorf("slot = %d, want 2", out.ID)
	}
}

func TestNoFacesLeavesState(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedAligner{emb: Embedding{1}}, 7)
	e.Process(nil, oneFace(), Flags{Enrolling: true})

	out := e.Process(nil, detect.FaceBoxSet{}, Flags{Enrolling: true})
	if out.Kind != OutcomeNone {
		t.Errorf("outcome = %v, want OutcomeNone", out.Kind)
	}
	if st := e.State(); st.SamplesRemaining != 4 {
		t.Errorf("samples remaining = %d, want 4", st.SamplesRemaining)
	}
}

func TestRecognition(t *testing.T) {
	tests := []struct {
		name     string
		enrolled Embedding
		probe    Embedding
		alignErr error
		wantKind OutcomeKind
		wantCode int
	}{
		{"match", Embedding{1, 0}, Embedding{0.9, 0.1}, nil, OutcomeMatched, 1},
		{"no match", Embedding{1, 0}, Embedding{0, 1}, nil, OutcomeNoMatch, -1},
		{"not aligned", Embedding{1, 0}, nil, ErrAlignment, OutcomeNotAligned, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGallery(7)
			g.Add(g.Reserve(), []Embedding{tt.enrolled})

			aligner := &scriptedAligner{results: []error{tt.alignErr}, emb: tt.probe}
			e := NewEngine(g, aligner, nil, DefaultOptions(), zaptest.NewLogger(t))

			out := e.Process(nil, oneFace(), Flags{Recognition: true})
			if out.Kind != tt.wantKind {
				t.Fatalf("outcome = %v, want %v", out.Kind, tt.wantKind)
			}
			if out.Code() != tt.wantCode {
				t.Errorf("Code() = %d, want %d", out.Code(), tt.wantCode)
			}
			if e.State().Kind != Recognizing {
				t.Errorf("state = %v, want recognizing", e.State().Kind)
			}
		})
	}
}

func TestRecognitionDisabled(t *testing.T) {
	aligner := &scriptedAligner{emb: Embedding{1}}
	e, _ := newTestEngine(t, aligner, 7)
	if out := e.Process(nil, oneFace(), Flags{}); out.Kind != OutcomeNone {
		t.Errorf("outcome = %v, want OutcomeNone", out.Kind)
	}
	if aligner.calls != 0 {
		t.Error("aligner ran with identity logic off")
	}
}

func TestGalleryFIFO(t *testing.T) {
	g := NewGallery(3)
	for i := 0; i < 5; i++ {
		_, evicted := g.Add(g.Reserve(), []Embedding{{float32(i + 1), 1}})
		if i < 3 && evicted != nil {
			t.Errorf("add %d evicted %d before full", i, evicted.ID)
		}
		if i >= 3 && (evicted == nil || evicted.ID != i-2) {
			t.Errorf("add %d evicted %v, want id %d", i, evicted, i-2)
		}
		if g.Len() > 3 {
			t.Fatalf("gallery grew to %d", g.Len())
		}
	}

	var ids []int
	for _, it := range g.List() {
		ids = append(ids, it.ID)
	}
	if fmt.Sprint(ids) != "[3 4 5]" {
		t.Errorf("ids = %v, want [3 4 5]", ids)
	}
}

func TestGalleryRemove(t *testing.T) {
	g := NewGallery(3)
	g.Add(g.Reserve(), []Embedding{{1}})
	g.Add(g.Reserve(), []Embedding{{1}})

	if !g.Remove(1) {
		t.Fatal("Remove(1) = false")
	}
	if g.Remove(1) {
		t.Error("Remove(1) twice = true")
	}
	if g.Len() != 1 || g.List()[0].ID != 2 {
		t.Errorf("gallery = %+v", g.List())
	}
	if id := g.Reserve(); id != 3 {
		t.Errorf("Reserve() after remove = %d, want 3", id)
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity(Embedding{1, 0}, Embedding{1, 0}); s != 1 {
		t.Errorf("identical = %v", s)
	}
	if s := Similarity(Embedding{1, 0}, Embedding{0, 1}); s != 0 {
		t.Errorf("orthogonal = %v", s)
	}
	if s := Similarity(Embedding{1}, Embedding{1, 0}); s != 0 {
		t.Errorf("length mismatch = %v", s)
	}
}

func TestLandmarkAligner(t *testing.T) {
	pool := imaging.NewPool()
	img := imaging.NewWorkingImage(pool, 200, 200)
	defer img.Free()
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetRGB(x, y, uint8(x), uint8(y), uint8(x+y))
		}
	}

	a := NewLandmarkAligner()
	upright := detect.FaceBox{X: 50, Y: 50, Width: 100, Height: 100}

	emb, err := a.Align(img, upright)
	if err != nil {
		t.Fatalf("Align(upright) = %v", err)
	}
	if len(emb) != FaceSize*FaceSize {
		t.Errorf("embedding length = %d", len(emb))
	}
	if s := Similarity(emb, emb); s < 0.999 {
		t.Errorf("self similarity = %v", s)
	}

	rolled := upright
	rolled.Landmarks = detect.EstimateLandmarks(rolled.Rect())
	rolled.Landmarks[detect.RightEye] = image.Pt(120, 140)
	if _, err := a.Align(img, rolled); !errors.Is(err, ErrAlignment) {
		t.Errorf("Align(rolled) = %v, want ErrAlignment", err)
	}

	outside := detect.FaceBox{X: 150, Y: 150, Width: 100, Height: 100}
	if _, err := a.Align(img, outside); !errors.Is(err, ErrAlignment) {
		t.Errorf("Align(outside) = %v, want ErrAlignment", err)
	}
}

// stripes draws a vertical luma ramp on the left half of a 200×200 image and
// a horizontal ramp on the right half.
func stripes(t *testing.T) *imaging.WorkingImage {
	t.Helper()
	img := imaging.NewWorkingImage(imaging.NewPool(), 200, 200)
	t.Cleanup(func() { img.Free() })
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			v := uint8(y)
			if x >= 100 {
				v = uint8((x - 100) * 2)
			}
			img.SetRGB(x, y, v, v, v)
		}
	}
	return img
}

func TestLandmarkAlignerSeparatesFaces(t *testing.T) {
	img := stripes(t)
	a := NewLandmarkAligner()

	left := detect.FaceBox{X: 0, Y: 50, Width: 100, Height: 100}
	leftLower := detect.FaceBox{X: 0, Y: 90, Width: 100, Height: 100}
	right := detect.FaceBox{X: 100, Y: 50, Width: 100, Height: 100}

	embed := func(box detect.FaceBox) Embedding {
		emb, err := a.Align(img, box)
		if err != nil {
			t.Fatalf("Align(%v) = %v", box.Rect(), err)
		}
		var nonzero int
		for _, v := range emb {
			if v != 0 {
				nonzero++
			}
		}
		if nonzero == 0 {
			t.Fatalf("Align(%v) produced a blank embedding", box.Rect())
		}
		return emb
	}

	l, ll, r := embed(left), embed(leftLower), embed(right)
	same := Similarity(l, ll)
	diff := Similarity(l, r)
	if same < 0.9 {
		t.Errorf("similar crops scored %v", same)
	}
	if diff >= same || diff > 0.5 {
		t.Errorf("different crops scored %v, similar crops %v", diff, same)
	}

	g := NewGallery(7)
	id, _ := g.Add(g.Reserve(), []Embedding{l})
	if got, _, ok := g.Match(ll, DefaultOptions().MatchThreshold); !ok || got.ID != id.ID {
		t.Errorf("Match(similar) = %v, %v", got.ID, ok)
	}
	if _, sim, ok := g.Match(r, DefaultOptions().MatchThreshold); ok {
		t.Errorf("Match(different) matched with similarity %v", sim)
	}
}

func TestEngineRecognizesEnrolledFace(t *testing.T) {
	img := stripes(t)
	e, spy := newTestEngine(t, NewLandmarkAligner(), 7)
	left := detect.FaceBoxSet{Boxes: []detect.FaceBox{{X: 0, Y: 50, Width: 100, Height: 100, Score: 0.9}}}
	right := detect.FaceBoxSet{Boxes: []detect.FaceBox{{X: 100, Y: 50, Width: 100, Height: 100, Score: 0.9}}}

	for i := 0; i < DefaultOptions().ConfirmTimes; i++ {
		e.Process(img, left, Flags{Enrolling: true})
	}
	if spy.finished != 1 || e.Gallery().Len() != 1 {
		t.Fatalf("enrollment finished=%d gallery=%d", spy.finished, e.Gallery().Len())
	}

	if out := e.Process(img, left, Flags{Recognition: true}); out.Kind != OutcomeMatched || out.Code() != 1 {
		t.Errorf("enrolled face: outcome = %+v", out)
	}
	if out := e.Process(img, right, Flags{Recognition: true}); out.Kind != OutcomeNoMatch || out.Code() != -1 {
		t.Errorf("stranger: outcome = %+v", out)
	}
}

func TestEnrollmentIgnoresRecognitionToggle(t *testing.T) {
	for _, recognition := range []bool{false, true} {
		t.Run(fmt.Sprintf("recognition=%v", recognition), func(t *testing.T) {
			e, spy := newTestEngine(t, &scriptedAligner{emb: Embedding{1, 0}}, 7)
			flags := Flags{Enrolling: true, Recognition: recognition}

			for i := 0; i < DefaultOptions().ConfirmTimes; i++ {
				if out := e.Process(nil, oneFace(), flags); out.Kind != OutcomeEnrolling {
					t.Fatalf("sample %d: outcome = %v, want OutcomeEnrolling", i, out.Kind)
				}
			}
			if spy.finished != 1 || e.Gallery().Len() != 1 {
				t.Errorf("finished=%d gallery=%d", spy.finished, e.Gallery().Len())
			}
		})
	}
}
