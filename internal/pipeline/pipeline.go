// Package pipeline orchestrates a full ETL run: ingest raw telemetry,
// enforce quality gates, clean and enrich, then derive the daily metrics
// and retention cohort tables and publish the output set.
package pipeline

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gametrics/gametrics/internal/aggregate"
	"github.com/gametrics/gametrics/internal/clean"
	"github.com/gametrics/gametrics/internal/cohort"
	"github.com/gametrics/gametrics/internal/config"
	"github.com/gametrics/gametrics/internal/ingest"
	"github.com/gametrics/gametrics/internal/quality"
	"github.com/gametrics/gametrics/internal/sink"
	"github.com/gametrics/gametrics/internal/storage"
	"github.com/gametrics/gametrics/pkg/types"
)

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	EventsLoaded      int64
	EventsCleaned     int64
	EventsFailed      int64
	DuplicatesRemoved int64

	MetricsDays int
	CohortDays  int

	QualityIssues []string

	ProcessingTime time.Duration
	Throughput     float64 // cleaned events per second

	Output *sink.Output
}

// Pipeline wires the processing stages together.
type Pipeline struct {
	cfg    *config.Config
	logger *log.Logger

	ingestor   *ingest.Ingestor
	validator  *quality.Validator
	cleaner    *clean.Cleaner
	aggregator *aggregate.Aggregator
	cohorts    *cohort.Engine
	sink       *sink.Sink
}

// New builds a pipeline from configuration. Published tables always land
// under cfg.OutputDir; a mirror store is attached when storage is configured
// for S3, or for local with a mirror path.
func New(cfg *config.Config, logger *log.Logger) (*Pipeline, error) {
	s := sink.New(logger)
	switch {
	case cfg.Storage.Type == config.StorageTypeS3:
		store, err := storage.NewS3Store(context.Background(), cfg.Storage.S3.Bucket, storage.S3Options{
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		s = s.WithStore(store, cfg.Storage.S3.Prefix)
	case cfg.Storage.Type == config.StorageTypeLocal && cfg.Storage.Path != "":
		store, err := storage.NewLocalStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		s = s.WithStore(store, "")
	}

	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		ingestor:   ingest.New(cfg.Ingest, logger),
		validator:  quality.New(cfg.Quality, logger),
		cleaner:    clean.New(logger),
		aggregator: aggregate.New(logger, cfg.Ingest.Workers),
		cohorts:    cohort.New(logger),
		sink:       s,
	}, nil
}

// Run executes the full pipeline against one input file and publishes the
// output table set under the configured output directory.
func (p *Pipeline) Run(ctx context.Context, inputPath string) (*RunResult, error) {
	start := time.Now()
	p.logger.Printf("Starting pipeline run: input=%s output=%s", inputPath, p.cfg.OutputDir)

	table, ingestStats, err := p.ingestor.Ingest(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	p.logger.Printf("Ingested %d events (%d lines failed to parse)",
		ingestStats.EventsLoaded, ingestStats.EventsFailed)

	issues, err := p.validator.Enforce(table)
	if err != nil {
		return nil, err
	}

	cleaned, cleanStats := p.cleaner.Clean(table)

	var (
		metrics types.DailyMetricsTable
		rows    types.CohortTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var aggErr error
		metrics, aggErr = p.aggregator.Aggregate(gctx, cleaned)
		return aggErr
	})
	g.Go(func() error {
		rows = p.cohorts.ComputeRetention(cleaned)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := p.sink.Write(ctx, p.cfg.OutputDir, cleaned, metrics, rows)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	result := &RunResult{
		EventsLoaded:      ingestStats.EventsLoaded,
		EventsCleaned:     cleanStats.EventsCleaned,
		EventsFailed:      ingestStats.EventsFailed,
		DuplicatesRemoved: cleanStats.DuplicatesRemoved,
		MetricsDays:       len(metrics),
		CohortDays:        len(rows),
		QualityIssues:     issues,
		ProcessingTime:    elapsed,
		Output:            out,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		result.Throughput = float64(result.EventsCleaned) / secs
	}

	p.logSummary(result)
	return result, nil
}

func (p *Pipeline) logSummary(r *RunResult) {
	p.logger.Printf("==================================================")
	p.logger.Printf("Pipeline run complete")
	p.logger.Printf("  Events loaded:      %d", r.EventsLoaded)
	p.logger.Printf("  Events cleaned:     %d", r.EventsCleaned)
	p.logger.Printf("  Events failed:      %d", r.EventsFailed)
	p.logger.Printf("  Duplicates removed: %d", r.DuplicatesRemoved)
	p.logger.Printf("  Metric days:        %d", r.MetricsDays)
	p.logger.Printf("  Cohort days:        %d", r.CohortDays)
	p.logger.Printf("  Processing time:    %.2fs", r.ProcessingTime.Seconds())
	p.logger.Printf("  Throughput:         %.0f events/sec", r.Throughput)
	if len(r.QualityIssues) > 0 {
		p.logger.Printf("  Quality issues:     %d", len(r.QualityIssues))
		for _, issue := range r.QualityIssues {
			p.logger.Printf("    - %s", issue)
		}
	}
	p.logger.Printf("==================================================")
}
