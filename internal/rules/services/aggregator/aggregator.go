package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haukened/hydirect/internal/rules/common/clock"
	"github.com/haukened/hydirect/internal/rules/common/log"
	"github.com/haukened/hydirect/internal/rules/domain"
)

var (
	// ErrEmptyRuleSet is returned when no source contributed a single rule.
	ErrEmptyRuleSet = errors.New("no rules collected from any source")
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing aggregator dependency")
)

// SourceReport is the outcome of one source within a run.
type SourceReport struct {
	Label      string
	Identifier string
	Ok         bool
	StatusCode int
	Elapsed    time.Duration
	Parsed     int // rules the parser emitted
	Added      int // rules that were new to the set
	Err        error
}

// Result is the materialized output of one run.
type Result struct {
	Lines      []string
	Rules      []domain.Rule
	Sources    []SourceReport
	KindCounts map[string]int
	Parsed     int
	Duplicates int
	FinishedAt time.Time
}

// SourcesOK counts the sources that contributed text.
func (r Result) SourcesOK() int {
	n := 0
	for _, s := range r.Sources {
		if s.Ok {
			n++
		}
	}
	return n
}

type Aggregator struct {
	clock      clock.Clock
	fetcher    Fetcher
	logger     log.Logger
	newRuleSet RuleSetFactory
	ordering   domain.Ordering
	parser     Parser
	recorder   Recorder
}

type Options struct {
	Clock      clock.Clock
	Fetcher    Fetcher
	Logger     log.Logger
	NewRuleSet RuleSetFactory
	Ordering   domain.Ordering
	Parser     Parser
	Recorder   Recorder // optional
}

// New builds an Aggregator. Fetcher, Parser and NewRuleSet are required.
func New(opts Options) (*Aggregator, error) {
	switch {
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", ErrMissingDependency)
	case opts.Parser == nil:
		return nil, fmt.Errorf("%w: parser", ErrMissingDependency)
	case opts.NewRuleSet == nil:
		return nil, fmt.Errorf("%w: rule set factory", ErrMissingDependency)
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Aggregator{
		clock:      opts.Clock,
		fetcher:    opts.Fetcher,
		logger:     opts.Logger,
		newRuleSet: opts.NewRuleSet,
		ordering:   opts.Ordering,
		parser:     opts.Parser,
		recorder:   opts.Recorder,
	}, nil
}

// Run fetches every source, folds the parsed rules into a fresh rule set in
// source-table order, and returns the sorted, serialized result.
// It fails only when the final set is empty.
func (a *Aggregator) Run(ctx context.Context, sources []domain.Source) (Result, error) {
	payloads := a.fetcher.FetchAll(ctx, sources)
	if len(payloads) != len(sources) {
		return Result{}, fmt.Errorf("fetcher returned %d payloads for %d sources", len(payloads), len(sources))
	}

	parsed := make([][]domain.Rule, len(payloads))
	reports := make([]SourceReport, len(payloads))
	capacity := 0
	for i, p := range payloads {
		reports[i] = SourceReport{
			Label:      p.Source.Label,
			Identifier: p.Source.Identifier,
			StatusCode: p.StatusCode,
			Elapsed:    p.Elapsed,
			Err:        p.Err,
		}
		if !p.Ok() {
			continue
		}
		rules, err := a.parse(p)
		if err != nil {
			reports[i].Err = err
			continue
		}
		parsed[i] = rules
		capacity += len(rules)
	}

	set := a.newRuleSet(capacity)
	res := Result{KindCounts: map[string]int{}}
	for i := range reports {
		rep := &reports[i]
		if rep.Err == nil {
			rep.Ok = true
			rep.Parsed = len(parsed[i])
			for _, r := range parsed[i] {
				if set.Insert(r) {
					rep.Added++
				}
			}
			res.Parsed += rep.Parsed
		}
		a.report(*rep)
	}
	res.Sources = reports

	res.Rules = set.Rules()
	if len(res.Rules) == 0 {
		a.logger.Error(map[string]any{"sources": len(sources), "sources_ok": res.SourcesOK()}, "no rules collected")
		return res, ErrEmptyRuleSet
	}
	a.ordering.Sort(res.Rules)

	res.Lines = make([]string, len(res.Rules))
	for i, r := range res.Rules {
		res.Lines[i] = r.String()
		res.KindCounts[r.Kind.String()]++
	}
	res.Duplicates = res.Parsed - len(res.Rules)
	res.FinishedAt = a.clock.Now()

	if a.recorder != nil {
		a.recorder.RecordRun(len(res.Lines), res.FinishedAt)
	}
	a.logger.Info(map[string]any{
		"rules":      len(res.Lines),
		"parsed":     res.Parsed,
		"duplicates": res.Duplicates,
		"sources":    len(sources),
		"sources_ok": res.SourcesOK(),
		"order":      a.ordering.String(),
	}, "aggregation complete")
	return res, nil
}

// parse runs the parser on one payload, containing any panic to that source.
func (a *Aggregator) parse(p domain.Payload) (rules []domain.Rule, err error) {
	defer func() {
		if r := recover(); r != nil {
			rules, err = nil, fmt.Errorf("parse %s panicked: %v", p.Source.Identifier, r)
		}
	}()
	return a.parser.Parse(p.Text), nil
}

func (a *Aggregator) report(rep SourceReport) {
	if a.recorder != nil {
		a.recorder.RecordSource(rep.Label, rep.Ok, rep.Elapsed, rep.Parsed)
	}
	fields := map[string]any{
		"label":      rep.Label,
		"identifier": rep.Identifier,
	}
	if !rep.Ok {
		fields["error"] = rep.Err.Error()
		a.logger.Warn(fields, "source failed")
		return
	}
	fields["parsed"] = rep.Parsed
	fields["added"] = rep.Added
	a.logger.Info(fields, "source merged")
}
