package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/hydirect/internal/rules/common/clock"
	"github.com/haukened/hydirect/internal/rules/common/log"
	"github.com/haukened/hydirect/internal/rules/config"
	"github.com/haukened/hydirect/internal/rules/domain"
	"github.com/haukened/hydirect/internal/rules/gateways/fetch"
	"github.com/haukened/hydirect/internal/rules/gateways/listfile"
	"github.com/haukened/hydirect/internal/rules/infra/metrics"
	"github.com/haukened/hydirect/internal/rules/parsers"
	"github.com/haukened/hydirect/internal/rules/repos/history"
	historybolt "github.com/haukened/hydirect/internal/rules/repos/history/bolt"
	"github.com/haukened/hydirect/internal/rules/repos/ruleset"
	"github.com/haukened/hydirect/internal/rules/repos/ruleset/bloom"
	"github.com/haukened/hydirect/internal/rules/repos/sources"
	"github.com/haukened/hydirect/internal/rules/services/aggregator"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "hydirect"

	// bloomFPRate is the false positive target of the rule set pre-filter.
	bloomFPRate = 0.01
)

// Application holds all the components of one aggregation run
type Application struct {
	config     *config.AppConfig
	sources    []domain.Source
	fetcher    *fetch.Fetcher
	aggregator *aggregator.Aggregator
	writer     *listfile.Writer
	history    history.Store     // nil when disabled
	metrics    *metrics.Registry // nil when disabled
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.Log.Level,
		"concurrency": cfg.Fetch.Concurrency,
		"timeout":     cfg.Fetch.Timeout.String(),
		"source_file": cfg.Sources.File,
		"mode":        cfg.Parser.Mode,
		"order":       cfg.Output.Order,
		"output":      cfg.Output.Path,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Error(map[string]any{"error": err}, "Failed to build application")
		log.Sync()
		os.Exit(1)
	}

	// Cancel in-flight fetches on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	_, runErr := app.Run(ctx)
	stop()
	if err := app.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing application")
	}

	if runErr != nil {
		msg := "Run failed"
		if errors.Is(runErr, aggregator.ErrEmptyRuleSet) {
			msg = "No rules generated, output left untouched"
		}
		log.Error(map[string]any{"error": runErr}, msg)
		log.Sync()
		os.Exit(1)
	}

	log.Sync()
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Create shared clock so the header time and history agree
	clk := &clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	table, err := sources.Load(cfg.Sources.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load source table: %w", err)
	}
	srcs, err := table.Sources(cfg.Sources.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sources: %w", err)
	}
	log.Info(map[string]any{
		"file":    cfg.Sources.File,
		"sources": len(srcs),
	}, "Source table loaded")

	fetcher, err := fetch.New(fetch.Options{
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		Proxy:       cfg.Fetch.Proxy,
		CacheSize:   cfg.Fetch.CacheSize,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	writer, err := listfile.New(listfile.Options{
		Path:        cfg.Output.Path,
		Title:       cfg.Output.Title,
		Description: cfg.Output.Description,
		Location:    cfg.Location(),
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create list writer: %w", err)
	}

	app := &Application{
		config:  cfg,
		sources: srcs,
		fetcher: fetcher,
		writer:  writer,
	}

	// A nil *metrics.Registry must not reach the Recorder interface
	var recorder aggregator.Recorder
	if cfg.Metrics.File != "" {
		app.metrics = metrics.New()
		recorder = app.metrics
	}

	if cfg.History.DB != "" {
		app.history, err = historybolt.New(cfg.History.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		st := app.history.Stats()
		log.Info(map[string]any{
			"db":           cfg.History.DB,
			"runs":         st.Runs,
			"last_version": st.Version,
		}, "Run history opened")
	}

	app.aggregator, err = aggregator.New(aggregator.Options{
		Clock:   clk,
		Fetcher: fetcher,
		Logger:  logger,
		NewRuleSet: func(capacity int) aggregator.RuleSet {
			return ruleset.New(capacity, bloom.NewFactory(), bloomFPRate)
		},
		Ordering: cfg.Ordering(),
		Parser:   parsers.New(cfg.AllowList(), logger),
		Recorder: recorder,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	return app, nil
}

// Run performs one aggregation and writes the list file. History and metrics
// failures are logged but never fail a run whose list was written.
func (app *Application) Run(ctx context.Context) (aggregator.Result, error) {
	res, err := app.aggregator.Run(ctx, app.sources)
	if err != nil {
		return res, err
	}

	hits, misses := app.fetcher.CacheStats()
	log.Debug(map[string]any{"hits": hits, "misses": misses}, "Response cache stats")

	if err := app.writer.Write(res.Lines); err != nil {
		return res, fmt.Errorf("failed to write list file: %w", err)
	}

	if app.history != nil {
		v, err := app.history.Record(history.Run{
			FinishedAt:   res.FinishedAt,
			Rules:        len(res.Lines),
			Parsed:       res.Parsed,
			Duplicates:   res.Duplicates,
			SourcesOK:    res.SourcesOK(),
			SourcesTotal: len(res.Sources),
			Kinds:        res.KindCounts,
		})
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Failed to record run history")
		} else {
			log.Debug(map[string]any{"version": v}, "Run recorded")
		}
	}

	if app.metrics != nil {
		if err := app.metrics.WriteToTextfile(app.config.Metrics.File); err != nil {
			log.Warn(map[string]any{"error": err, "file": app.config.Metrics.File}, "Failed to write metrics")
		}
	}

	log.Info(map[string]any{
		"path":       app.writer.Path(),
		"rules":      len(res.Lines),
		"sources_ok": res.SourcesOK(),
		"sources":    len(res.Sources),
	}, "List generated")
	return res, nil
}

// Close releases the history database, if any.
func (app *Application) Close() error {
	if app.history == nil {
		return nil
	}
	err := app.history.Close()
	app.history = nil
	return err
}
