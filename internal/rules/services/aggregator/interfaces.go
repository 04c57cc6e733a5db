package aggregator

import (
	"context"
	"time"

	"github.com/haukened/hydirect/internal/rules/domain"
)

// Fetcher retrieves the raw text of every source.
// payloads[i] must belong to sources[i].
type Fetcher interface {
	FetchAll(ctx context.Context, sources []domain.Source) []domain.Payload
}

// Parser turns one fetched list into rules. It never fails.
type Parser interface {
	Parse(raw string) []domain.Rule
}

// RuleSet is the fingerprint deduplicator for a single run.
type RuleSet interface {
	Insert(r domain.Rule) bool
	Rules() []domain.Rule
	Len() int
}

// RuleSetFactory builds an empty RuleSet sized for capacity rules.
type RuleSetFactory func(capacity int) RuleSet

// Recorder observes pipeline outcomes, e.g. for metrics.
type Recorder interface {
	// RecordSource is called once per source in source-table order.
	RecordSource(label string, ok bool, elapsed time.Duration, parsed int)
	// RecordRun is called once after a successful run.
	RecordRun(total int, at time.Time)
}
