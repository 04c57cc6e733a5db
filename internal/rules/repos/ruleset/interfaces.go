package ruleset

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the rule set needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for an expected number of fingerprints.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// Stats reports counters since construction.
type Stats struct {
	Size           int    // unique rules held
	Inserted       uint64 // inserts that added a rule
	Duplicates     uint64 // inserts rejected by fingerprint
	BloomNegatives uint64 // inserts the bloom filter proved new without a map probe
}
