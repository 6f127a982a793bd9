package attack

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Scores are the target model's confidences on known members and non-members.
// Labels and Predictions optionally carry the target model's own test-set
// results for a classification report.
type Scores struct {
	Member      []float64 `yaml:"member" json:"member"`
	NonMember   []float64 `yaml:"non_member" json:"non_member"`
	Labels      []int     `yaml:"labels,omitempty" json:"labels,omitempty"`
	Predictions []int     `yaml:"predictions,omitempty" json:"predictions,omitempty"`
}

// DemoScores returns the confidences of the bundled shadow-model fixture.
func DemoScores() Scores {
	return Scores{
		Member:    []float64{0.95, 0.90, 0.88, 0.92},
		NonMember: []float64{0.60, 0.58, 0.62, 0.55},
	}
}

// LoadScores reads a YAML or JSON score file and rejects values outside [0,1].
func LoadScores(path string) (Scores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scores{}, fmt.Errorf("read scores: %w", err)
	}

	var s Scores
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scores{}, fmt.Errorf("parse scores %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Scores{}, fmt.Errorf("scores %s: %w", path, err)
	}
	return s, nil
}

// Validate checks that every confidence is a probability.
func (s Scores) Validate() error {
	for i, v := range s.Member {
		if !isProbability(v) {
			return fmt.Errorf("member[%d]=%v is outside [0,1]", i, v)
		}
	}
	for i, v := range s.NonMember {
		if !isProbability(v) {
			return fmt.Errorf("non_member[%d]=%v is outside [0,1]", i, v)
		}
	}
	if len(s.Labels) != len(s.Predictions) {
		return fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(s.Labels), len(s.Predictions))
	}
	return nil
}

func isProbability(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
