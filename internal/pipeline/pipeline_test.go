package pipeline

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gametrics/gametrics/internal/config"
	pipeerrors "github.com/gametrics/gametrics/internal/errors"
	"github.com/gametrics/gametrics/internal/gen"
	"github.com/gametrics/gametrics/internal/sink"
)

// writeSyntheticInput produces a deterministic raw telemetry file and
// returns its path.
func writeSyntheticInput(t *testing.T, players, days int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	g := gen.New(gen.Config{
		Players:   players,
		Days:      days,
		Seed:      42,
		StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	n, err := g.WriteJSONL(path)
	require.NoError(t, err)
	require.Positive(t, n)
	return path
}

func testConfig(outputDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.OutputDir = outputDir
	cfg.Quality.MinEvents = 1
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return p
}

func TestRun_EndToEnd(t *testing.T) {
	input := writeSyntheticInput(t, 30, 12)
	outputDir := t.TempDir()

	p := newTestPipeline(t, testConfig(outputDir))
	result, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Positive(t, result.EventsLoaded)
	assert.Equal(t, result.EventsLoaded, result.EventsCleaned)
	assert.Zero(t, result.EventsFailed)
	assert.Zero(t, result.DuplicatesRemoved)
	assert.Positive(t, result.MetricsDays)
	assert.Positive(t, result.CohortDays)
	assert.Positive(t, result.Throughput)

	ctx := context.Background()
	events, err := sink.ReadEvents(ctx, result.Output.EventsPath)
	require.NoError(t, err)
	assert.Equal(t, result.EventsCleaned, int64(len(events)))

	metrics, err := sink.ReadDailyMetrics(ctx, result.Output.MetricsPath)
	require.NoError(t, err)
	require.Len(t, metrics, result.MetricsDays)

	distinct := int64(events.DistinctPlayers())
	for _, row := range metrics {
		assert.LessOrEqual(t, row.DAU, distinct)
		assert.GreaterOrEqual(t, row.ConversionRate, 0.0)
		assert.LessOrEqual(t, row.ConversionRate, 100.0)
		assert.GreaterOrEqual(t, row.LevelSuccessRate, 0.0)
		assert.LessOrEqual(t, row.LevelSuccessRate, 100.0)
	}

	cohorts, err := sink.ReadCohorts(ctx, result.Output.CohortsPath)
	require.NoError(t, err)
	require.Len(t, cohorts, result.CohortDays)
	for _, row := range cohorts {
		assert.LessOrEqual(t, row.D1Active, row.CohortSize)
		assert.GreaterOrEqual(t, row.D1Retention, 0.0)
		assert.LessOrEqual(t, row.D1Retention, 100.0)
	}
}

func TestRun_StrictModeQualityGate(t *testing.T) {
	// 100-odd events against a 1000-event floor under strict mode must fail
	// before any output file exists.
	input := writeSyntheticInput(t, 3, 3)
	outputDir := t.TempDir()

	cfg := testConfig(outputDir)
	cfg.Quality.MinEvents = 100000
	cfg.Quality.StrictMode = true

	p := newTestPipeline(t, cfg)
	_, err := p.Run(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsDataQuality(err))
	assert.NotEmpty(t, pipeerrors.GetIssues(err))

	for _, name := range []string{sink.EventsFile, sink.MetricsFile, sink.CohortsFile} {
		_, statErr := os.Stat(filepath.Join(outputDir, name))
		assert.True(t, os.IsNotExist(statErr), "output %s written despite failed gate", name)
	}
}

func TestRun_WarningsDoNotAbort(t *testing.T) {
	input := writeSyntheticInput(t, 3, 3)
	outputDir := t.TempDir()

	cfg := testConfig(outputDir)
	cfg.Quality.MinEvents = 100000 // unreachable floor, strict mode off

	p := newTestPipeline(t, cfg)
	result, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, result.QualityIssues)
	assert.Positive(t, result.EventsCleaned)
}

func TestRun_MissingInput(t *testing.T) {
	p := newTestPipeline(t, testConfig(t.TempDir()))
	_, err := p.Run(context.Background(), "/nonexistent/events.jsonl")
	require.Error(t, err)
	assert.Equal(t, pipeerrors.ErrCategoryInput, pipeerrors.GetCategory(err))
}

func TestRun_LocalMirror(t *testing.T) {
	input := writeSyntheticInput(t, 10, 5)
	outputDir := t.TempDir()
	mirrorDir := t.TempDir()

	cfg := testConfig(outputDir)
	cfg.Storage.Path = mirrorDir

	p := newTestPipeline(t, cfg)
	_, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	for _, name := range []string{sink.EventsFile, sink.MetricsFile, sink.CohortsFile} {
		_, statErr := os.Stat(filepath.Join(mirrorDir, name))
		assert.NoError(t, statErr, "mirror missing %s", name)
	}
}

func TestRun_Deterministic(t *testing.T) {
	input := writeSyntheticInput(t, 15, 8)

	p1 := newTestPipeline(t, testConfig(t.TempDir()))
	r1, err := p1.Run(context.Background(), input)
	require.NoError(t, err)

	p2 := newTestPipeline(t, testConfig(t.TempDir()))
	r2, err := p2.Run(context.Background(), input)
	require.NoError(t, err)

	ctx := context.Background()
	m1, err := sink.ReadDailyMetrics(ctx, r1.Output.MetricsPath)
	require.NoError(t, err)
	m2, err := sink.ReadDailyMetrics(ctx, r2.Output.MetricsPath)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	c1, err := sink.ReadCohorts(ctx, r1.Output.CohortsPath)
	require.NoError(t, err)
	c2, err := sink.ReadCohorts(ctx, r2.Output.CohortsPath)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}
