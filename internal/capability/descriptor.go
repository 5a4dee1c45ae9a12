package capability

import "strings"

type Category string

const (
	CategoryAudio      Category = "audio"
	CategoryVision     Category = "vision"
	CategoryText       Category = "text"
	CategoryGeneration Category = "generation"
	CategoryAnalysis   Category = "analysis"
)

const (
	keywordWeight  = 0.7
	priorityWeight = 0.3
	maxPriority    = 10
)

// Descriptor documents what a worker can do and how to route to it.
// Immutable after registration.
type Descriptor struct {
	Capabilities []string   `yaml:"capabilities"`
	Keywords     []string   `yaml:"keywords"`
	Categories   []Category `yaml:"categories,omitempty"`
	ExampleTasks []string   `yaml:"example_tasks,omitempty"`
	Priority     int        `yaml:"priority"` // 1-10, higher = preferred on ties
}

// Matches reports whether any keyword appears in the description
// (case-insensitive substring).
func (d Descriptor) Matches(description string) bool {
	lower := strings.ToLower(description)
	for _, kw := range d.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchScore scores the description in [0,1]: zero when no keyword matches,
// otherwise a blend of keyword density and routing priority.
func (d Descriptor) MatchScore(description string) float64 {
	if len(d.Keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(description)
	matched := 0
	for _, kw := range d.Keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	density := float64(matched) / float64(len(d.Keywords))
	priority := float64(d.Priority) / maxPriority
	return keywordWeight*density + priorityWeight*priority
}
