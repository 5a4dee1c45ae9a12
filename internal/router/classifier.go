package router

import (
	"log"

	"github.com/clipscope/clipscope/internal/capability"
)

// DefaultThreshold is the minimum match score for a worker to be
// considered at all during classification.
const DefaultThreshold = 0.3

// Classifier routes task descriptions to workers using the capability
// registry's keyword scoring.
type Classifier struct {
	registry *capability.Registry
}

func NewClassifier(registry *capability.Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify returns ranked matches for the description, best first.
func (c *Classifier) Classify(description string, threshold float64) []capability.Match {
	if description == "" {
		log.Printf("router: empty task description")
		return nil
	}
	return c.registry.FindMatching(description, threshold)
}

// BestWorker returns the top-ranked worker for the description, or
// false when nothing clears the threshold.
func (c *Classifier) BestWorker(description string, threshold float64) (string, bool) {
	matches := c.Classify(description, threshold)
	if len(matches) == 0 {
		log.Printf("router: no worker matched %q", description)
		return "", false
	}
	return matches[0].Worker, true
}

// Ambiguous reports whether the ranked matches should be treated as an
// ambiguous routing: the top score is below minConf, or the gap to the
// runner-up is smaller than delta. A missing runner-up counts as zero.
func Ambiguous(matches []capability.Match, minConf, delta float64) bool {
	if len(matches) == 0 {
		return true
	}
	top := matches[0].Score
	second := 0.0
	if len(matches) > 1 {
		second = matches[1].Score
	}
	return top < minConf || top-second < delta
}
