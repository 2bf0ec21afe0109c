package pipeline

import (
	"sync"
	"time"

	"github.com/AlverezYari/facecam/internal/filter"
)

// Stats aggregates iteration results across all streams.
type Stats struct {
	mu         sync.Mutex
	frames     int64
	errors     int64
	lastError  string
	paths      map[Path]int64
	streams    int
	frameMS    *filter.RunningAverage
	score      *filter.RunningAverage
	similarity *filter.RunningAverage
	smoothed   Snapshot
}

// Snapshot is a copy of the counters, ready for JSON.
type Snapshot struct {
	Frames        int64            `json:"frames"`
	Errors        int64            `json:"errors"`
	LastError     string           `json:"last_error,omitempty"`
	Paths         map[string]int64 `json:"paths"`
	ActiveStreams int              `json:"active_streams"`
	FrameMS       int              `json:"frame_ms"`
	// Score and Similarity are smoothed and scaled by 100.
	Score      int `json:"detection_score"`
	Similarity int `json:"match_similarity"`
}

func NewStats(window int) *Stats {
	return &Stats{
		paths:      make(map[Path]int64),
		frameMS:    filter.New(window),
		score:      filter.New(window),
		similarity: filter.New(window),
	}
}

func (s *Stats) record(res Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.errors++
		s.lastError = err.Error()
		return
	}
	s.frames++
	s.paths[res.Path]++
	s.smoothed.FrameMS = s.frameMS.Push(int(res.Duration / time.Millisecond))
	if res.Faces > 0 {
		s.smoothed.Score = s.score.Push(int(res.Score * 100))
	}
	if res.Outcome.Similarity != 0 {
		s.smoothed.Similarity = s.similarity.Push(int(res.Outcome.Similarity * 100))
	}
}

func (s *Stats) streamOpened() {
	s.mu.Lock()
	s.streams++
	s.mu.Unlock()
}

func (s *Stats) streamClosed() {
	s.mu.Lock()
	s.streams--
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make(map[string]int64, len(s.paths))
	for p, n := range s.paths {
		paths[p.String()] = n
	}
	return Snapshot{
		Frames:        s.frames,
		Errors:        s.errors,
		LastError:     s.lastError,
		Paths:         paths,
		ActiveStreams: s.streams,
		FrameMS:       s.smoothed.FrameMS,
		Score:         s.smoothed.Score,
		Similarity:    s.smoothed.Similarity,
	}
}
