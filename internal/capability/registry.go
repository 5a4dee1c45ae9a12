package capability

import (
	"sort"
	"sync"
)

// Match pairs a worker name with its score for one description.
type Match struct {
	Worker string
	Score  float64
}

// Registry is the static catalogue of worker capability descriptors.
// Built once at startup and read-mostly afterwards, so it is safe to
// share across concurrent orchestration runs.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	descriptors map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// Register upserts a worker's descriptor. Re-registering a name replaces
// the descriptor but keeps its original position in the ranking order.
func (r *Registry) Register(worker string, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[worker]; !exists {
		r.order = append(r.order, worker)
	}
	r.descriptors[worker] = d
}

func (r *Registry) Get(worker string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[worker]
	return d, ok
}

// Names returns worker names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// FindMatching scores every registered descriptor against the description
// and returns those at or above threshold, best first. The sort is stable,
// so equal scores keep registration order.
func (r *Registry) FindMatching(description string, threshold float64) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Match
	for _, name := range r.order {
		score := r.descriptors[name].MatchScore(description)
		if score >= threshold {
			matches = append(matches, Match{Worker: name, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
