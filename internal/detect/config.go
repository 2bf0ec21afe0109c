package detect

import (
	"fmt"
	"math"
)

// Stage holds the thresholds of one cascade stage.
type Stage struct {
	Name           string  `json:"name"`
	MinFaceSize    int     `json:"min_face_size"`
	PyramidScale   float64 `json:"pyramid_scale"`
	PyramidLevels  int     `json:"pyramid_levels"`
	ScoreThreshold float64 `json:"score_threshold"`
	NMSThreshold   float64 `json:"nms_threshold"`
	MaxCandidates  int     `json:"max_candidates"`
}

// Config is the three-stage cascade: proposal, refine, output.
type Config struct {
	Stages [3]Stage `json:"stages"`
}

func DefaultConfig() Config {
	base := Stage{MinFaceSize: 80, PyramidScale: 0.707, PyramidLevels: 4, NMSThreshold: 0.7}

	proposal, refine, output := base, base, base
	proposal.Name, proposal.ScoreThreshold, proposal.MaxCandidates = "proposal", 0.6, 20
	refine.Name, refine.ScoreThreshold, refine.MaxCandidates = "refine", 0.7, 10
	output.Name, output.ScoreThreshold, output.MaxCandidates = "output", 0.7, 1

	return Config{Stages: [3]Stage{proposal, refine, output}}
}

func (c Config) Validate() error {
	for i, s := range c.Stages {
		switch {
		case s.MinFaceSize < 1:
			return fmt.Errorf("stage %d: min face size %d", i, s.MinFaceSize)
		case s.PyramidScale <= 0 || s.PyramidScale >= 1:
			return fmt.Errorf("stage %d: pyramid scale %v not in (0,1)", i, s.PyramidScale)
		case s.PyramidLevels < 1:
			return fmt.Errorf("stage %d: pyramid levels %d", i, s.PyramidLevels)
		case s.ScoreThreshold < 0 || s.ScoreThreshold > 1:
			return fmt.Errorf("stage %d: score threshold %v not in [0,1]", i, s.ScoreThreshold)
		case s.NMSThreshold < 0 || s.NMSThreshold > 1:
			return fmt.Errorf("stage %d: nms threshold %v not in [0,1]", i, s.NMSThreshold)
		}
	}
	return nil
}

// Proposal is the first stage, whose size and pyramid settings drive the
// scan.
func (c Config) Proposal() Stage { return c.Stages[0] }

// MaxFaceSize is the largest face the pyramid reaches for the proposal
// stage, bounded by limit.
func (c Config) MaxFaceSize(limit int) int {
	p := c.Proposal()
	size := int(float64(p.MinFaceSize) / math.Pow(p.PyramidScale, float64(p.PyramidLevels)))
	if size > limit {
		size = limit
	}
	if size < p.MinFaceSize {
		size = p.MinFaceSize
	}
	return size
}
