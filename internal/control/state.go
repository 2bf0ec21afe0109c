// internal/control/state.go
package control

import "sync"

// Toggles is a point-in-time copy of the pipeline switches.
type Toggles struct {
	Detection   bool `json:"detection"`
	Recognition bool `json:"recognition"`
	Enrolling   bool `json:"enrolling"`
}

// State holds the pipeline switches shared by the control surface and every
// stream. Each setter applies its cascade under one lock, so a reader never
// sees recognition on with detection off. Readers take a fresh Snapshot per
// frame; a write lands on the next frame boundary.
type State struct {
	mu sync.RWMutex
	t  Toggles
}

func NewState(initial Toggles) *State {
	s := &State{}
	s.SetRecognition(initial.Recognition)
	if !initial.Recognition {
		s.SetDetection(initial.Detection)
	}
	s.SetEnrolling(initial.Enrolling)
	return s
}

func (s *State) Snapshot() Toggles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

// SetDetection switches detection. Turning it off also turns recognition off.
func (s *State) SetDetection(on bool) {
	s.mu.Lock()
	s.t.Detection = on
	if !on {
		s.t.Recognition = false
	}
	s.mu.Unlock()
}

// SetRecognition switches recognition. Turning it on also turns detection on.
func (s *State) SetRecognition(on bool) {
	s.mu.Lock()
	s.t.Recognition = on
	if on {
		s.t.Detection = true
	}
	s.mu.Unlock()
}

func (s *State) SetEnrolling(on bool) {
	s.mu.Lock()
	s.t.Enrolling = on
	s.mu.Unlock()
}

// FinishEnrollment clears the enrolling switch once an identity is committed.
func (s *State) FinishEnrollment() {
	s.SetEnrolling(false)
}
