package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/hydirect/internal/rules/repos/ruleset"
)

// filter wraps a bits-and-blooms BloomFilter with a read/write lock.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}

// factory implements ruleset.BloomFactory using the sizing formulas in sizer.go.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() ruleset.BloomFactory { return factory{} }

func (factory) New(capacity uint64, fpRate float64) ruleset.BloomFilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

var _ ruleset.BloomFilter = (*filter)(nil)
