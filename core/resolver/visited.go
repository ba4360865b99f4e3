package resolver

import (
	"sort"
	"sync"

	"github.com/willibrandon/gonpm/core"
)

// VisitedSet records which package names have been claimed in a run. It
// only grows: a claimed name is never released, even when its visit fails.
type VisitedSet struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewVisitedSet creates an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{nodes: make(map[string]*Node)}
}

// Claim checks and inserts req.Name in one critical section. It returns
// the node for the name and whether this call claimed it. Only the
// claiming caller may write to the returned node.
func (s *VisitedSet) Claim(req core.DependencyRequest) (*Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[req.Name]; ok {
		return n, false
	}
	n := &Node{Request: req}
	s.nodes[req.Name] = n
	return n, true
}

// Contains reports whether name is claimed.
func (s *VisitedSet) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[name]
	return ok
}

// Len returns the number of claimed names.
func (s *VisitedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Nodes returns the claimed nodes sorted by name. Read them only after
// the run that filled the set has returned.
func (s *VisitedSet) Nodes() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Request.Name < out[j].Request.Name })
	return out
}
