package ruleset

import (
	"sync"

	"github.com/haukened/hydirect/internal/rules/domain"
)

// Set is the fingerprint-keyed collection of unique rules for one run.
// It applies a bloom → map pipeline on insert: a definite bloom negative
// skips the map probe, anything else is decided by the map.
//
// All methods are safe for concurrent use; inserts are mutually exclusive.
type Set struct {
	mu    sync.Mutex
	rules map[string]domain.Rule
	bloom BloomFilter
	stats Stats
}

// New constructs a Set sized for capacity rules.
// When factory is nil no bloom filter is used.
func New(capacity int, factory BloomFactory, fpRate float64) *Set {
	if capacity < 0 {
		capacity = 0
	}
	s := &Set{rules: make(map[string]domain.Rule, capacity)}
	if factory != nil {
		s.bloom = factory.New(uint64(capacity), fpRate)
	}
	return s
}

// Insert adds r unless a rule with the same fingerprint is already present.
// It reports whether r was added. The first inserted casing is kept verbatim.
func (s *Set) Insert(r domain.Rule) bool {
	fp := r.Fingerprint()
	key := []byte(fp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bloom != nil && !s.bloom.MightContain(key) {
		s.stats.BloomNegatives++
	} else if _, ok := s.rules[fp]; ok {
		s.stats.Duplicates++
		return false
	}

	s.rules[fp] = r
	if s.bloom != nil {
		s.bloom.Add(key)
	}
	s.stats.Inserted++
	return true
}

// Contains reports whether a rule with r's fingerprint is present.
func (s *Set) Contains(r domain.Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rules[r.Fingerprint()]
	return ok
}

// Rules returns a snapshot of all unique rules in unspecified order.
func (s *Set) Rules() []domain.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out
}

// Len returns the number of unique rules.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// Stats returns a snapshot of the set counters.
func (s *Set) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Size = len(s.rules)
	return st
}
