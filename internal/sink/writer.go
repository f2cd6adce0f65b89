// Package sink persists the three pipeline output tables as immutable SQLite
// table files. Tables are built in a staging directory and published by
// rename only after the full set succeeds, so a crash mid-write never leaves
// a half-written table visible to downstream consumers.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gametrics/gametrics/internal/bloom"
	pipeerrors "github.com/gametrics/gametrics/internal/errors"
	"github.com/gametrics/gametrics/internal/storage"
	"github.com/gametrics/gametrics/pkg/types"
)

// Output table file names, matching what downstream consumers read.
const (
	EventsFile  = "events_cleaned.sqlite"
	MetricsFile = "daily_metrics.sqlite"
	CohortsFile = "retention_cohorts.sqlite"
)

// playerFilterFPR is the target false positive rate for the player-id bloom
// filter embedded in the events table metadata.
const playerFilterFPR = 0.01

// Output holds the published table paths.
type Output struct {
	EventsPath  string
	MetricsPath string
	CohortsPath string
}

// Paths returns the three published paths in a fixed order.
func (o *Output) Paths() []string {
	return []string{o.EventsPath, o.MetricsPath, o.CohortsPath}
}

// Sink writes and publishes the output table set.
type Sink struct {
	logger *log.Logger

	// store, when non-nil, mirrors published tables to object storage
	store       storage.ObjectStore
	storePrefix string
}

// New creates a Sink without an object store mirror.
func New(logger *log.Logger) *Sink {
	return &Sink{logger: logger}
}

// WithStore configures the sink to mirror published tables to the store
// under the given key prefix.
func (s *Sink) WithStore(store storage.ObjectStore, prefix string) *Sink {
	s.store = store
	s.storePrefix = prefix
	return s
}

// Write persists all three tables under outputDir. Either every table is
// published or none is: builds happen in a staging directory that is removed
// on any failure, and files are renamed into place only after the full set
// has been built.
func (s *Sink) Write(ctx context.Context, outputDir string,
	events types.EventTable, metrics types.DailyMetricsTable, cohorts types.CohortTable) (*Output, error) {

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed,
			fmt.Sprintf("failed to create output directory %s", outputDir), err)
	}

	// Staging lives inside the output directory so the final rename never
	// crosses a filesystem boundary.
	staging := filepath.Join(outputDir, fmt.Sprintf(".staging-%s", uuid.New().String()[:8]))
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed,
			"failed to create staging directory", err)
	}
	defer os.RemoveAll(staging)

	if err := s.writeEvents(ctx, filepath.Join(staging, EventsFile), events); err != nil {
		return nil, err
	}
	s.logger.Printf("Built cleaned events table (%d rows)", len(events))

	if err := s.writeMetrics(ctx, filepath.Join(staging, MetricsFile), metrics); err != nil {
		return nil, err
	}
	s.logger.Printf("Built daily metrics table (%d rows)", len(metrics))

	if err := s.writeCohorts(ctx, filepath.Join(staging, CohortsFile), cohorts); err != nil {
		return nil, err
	}
	s.logger.Printf("Built retention cohorts table (%d rows)", len(cohorts))

	out := &Output{
		EventsPath:  filepath.Join(outputDir, EventsFile),
		MetricsPath: filepath.Join(outputDir, MetricsFile),
		CohortsPath: filepath.Join(outputDir, CohortsFile),
	}

	// Publish: the full set is built, move it into place.
	for _, name := range []string{EventsFile, MetricsFile, CohortsFile} {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(outputDir, name)); err != nil {
			return nil, pipeerrors.NewSinkError(pipeerrors.CodePublishFailed,
				fmt.Sprintf("failed to publish %s", name), err)
		}
	}
	s.logger.Printf("Published output tables to %s", outputDir)

	if s.store != nil {
		if err := s.mirror(ctx, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// mirror uploads the published set to the configured object store.
func (s *Sink) mirror(ctx context.Context, out *Output) error {
	for _, path := range out.Paths() {
		key := filepath.Base(path)
		if s.storePrefix != "" {
			key = s.storePrefix + "/" + key
		}
		if err := s.store.Put(ctx, path, key); err != nil {
			return pipeerrors.NewSinkError(pipeerrors.CodeUploadFailed,
				fmt.Sprintf("failed to mirror %s", key), err)
		}
		s.logger.Printf("Mirrored %s to object storage", key)
	}
	return nil
}

// writeEvents builds the cleaned events table. Properties are stored as a
// snappy-compressed JSON blob per row; a metadata table carries the row
// count, build time, and a bloom filter over player ids for downstream
// pruning.
func (s *Sink) writeEvents(ctx context.Context, path string, events types.EventTable) error {
	return buildTable(ctx, path, func(db *sql.DB) error {
		createSQL := `
			CREATE TABLE events_cleaned (
				event_id TEXT PRIMARY KEY,
				player_id TEXT NOT NULL,
				session_id TEXT,
				event_type TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				event_date TEXT NOT NULL,
				event_hour INTEGER NOT NULL,
				day_of_week INTEGER NOT NULL,
				properties BLOB
			) WITHOUT ROWID
		`
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("failed to create events table: %w", err)
		}

		indexes := []string{
			"CREATE INDEX idx_events_player_date ON events_cleaned(player_id, event_date)",
			"CREATE INDEX idx_events_type_date ON events_cleaned(event_type, event_date)",
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		stmt, err := db.PrepareContext(ctx, `
			INSERT INTO events_cleaned
				(event_id, player_id, session_id, event_type, timestamp, event_date, event_hour, day_of_week, properties)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		filter := bloom.New(len(events), playerFilterFPR)

		for i := range events {
			rec := &events[i]

			var props []byte
			if len(rec.Properties) > 0 {
				raw, err := json.Marshal(rec.Properties)
				if err != nil {
					return fmt.Errorf("failed to marshal properties for %s: %w", rec.EventID, err)
				}
				props = snappy.Encode(nil, raw)
			}

			var sessionID interface{}
			if rec.SessionID != "" {
				sessionID = rec.SessionID
			}

			if _, err := stmt.ExecContext(ctx,
				rec.EventID, rec.PlayerID, sessionID, rec.EventType.String(),
				rec.Timestamp.UnixNano(), rec.EventDate.String(), rec.EventHour,
				int(rec.DayOfWeek), props); err != nil {
				return fmt.Errorf("failed to insert event row: %w", err)
			}

			filter.Add(rec.PlayerID)
		}

		return writeMeta(ctx, db, int64(len(events)), filter.Serialize())
	})
}

// writeMetrics builds the daily metrics table.
func (s *Sink) writeMetrics(ctx context.Context, path string, metrics types.DailyMetricsTable) error {
	return buildTable(ctx, path, func(db *sql.DB) error {
		createSQL := `
			CREATE TABLE daily_metrics (
				event_date TEXT PRIMARY KEY,
				dau INTEGER NOT NULL,
				total_sessions INTEGER NOT NULL,
				avg_session_duration REAL NOT NULL,
				total_levels_played REAL NOT NULL,
				total_purchases INTEGER NOT NULL,
				total_revenue REAL NOT NULL,
				paying_users INTEGER NOT NULL,
				total_ads_watched INTEGER NOT NULL,
				total_level_attempts INTEGER NOT NULL,
				successful_completions INTEGER NOT NULL,
				arpu REAL NOT NULL,
				conversion_rate REAL NOT NULL,
				level_success_rate REAL NOT NULL,
				sessions_per_user REAL NOT NULL
			) WITHOUT ROWID
		`
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("failed to create daily_metrics table: %w", err)
		}

		stmt, err := db.PrepareContext(ctx, `
			INSERT INTO daily_metrics VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range metrics {
			row := &metrics[i]
			if _, err := stmt.ExecContext(ctx,
				row.EventDate.String(), row.DAU, row.TotalSessions, row.AvgSessionDuration,
				row.TotalLevelsPlayed, row.TotalPurchases, row.TotalRevenue, row.PayingUsers,
				row.TotalAdsWatched, row.TotalLevelAttempts, row.SuccessfulCompletions,
				row.ARPU, row.ConversionRate, row.LevelSuccessRate, row.SessionsPerUser); err != nil {
				return fmt.Errorf("failed to insert metrics row: %w", err)
			}
		}

		return writeMeta(ctx, db, int64(len(metrics)), nil)
	})
}

// writeCohorts builds the retention cohorts table.
func (s *Sink) writeCohorts(ctx context.Context, path string, cohorts types.CohortTable) error {
	return buildTable(ctx, path, func(db *sql.DB) error {
		createSQL := `
			CREATE TABLE retention_cohorts (
				install_date TEXT PRIMARY KEY,
				cohort_size INTEGER NOT NULL,
				d1_active INTEGER NOT NULL,
				d7_active INTEGER NOT NULL,
				d30_active INTEGER NOT NULL,
				d1_retention REAL NOT NULL,
				d7_retention REAL NOT NULL,
				d30_retention REAL NOT NULL
			) WITHOUT ROWID
		`
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("failed to create retention_cohorts table: %w", err)
		}

		stmt, err := db.PrepareContext(ctx, `
			INSERT INTO retention_cohorts VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range cohorts {
			row := &cohorts[i]
			if _, err := stmt.ExecContext(ctx,
				row.InstallDate.String(), row.CohortSize,
				row.D1Active, row.D7Active, row.D30Active,
				row.D1Retention, row.D7Retention, row.D30Retention); err != nil {
				return fmt.Errorf("failed to insert cohort row: %w", err)
			}
		}

		return writeMeta(ctx, db, int64(len(cohorts)), nil)
	})
}

// buildTable creates one SQLite table file at path. The file is built in WAL
// mode for write performance, then checkpointed and switched to DELETE
// journal mode so the finished file is a single immutable artifact.
func buildTable(ctx context.Context, path string, build func(db *sql.DB) error) error {
	db, err := sql.Open("sqlite3", filepath.Clean(path))
	if err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed,
			fmt.Sprintf("failed to create table file %s", path), err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed, "failed to set journal mode", err)
	}

	if err := build(db); err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed,
			fmt.Sprintf("failed to build %s", filepath.Base(path)), err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed, "failed to checkpoint WAL", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed, "failed to finalize journal mode", err)
	}

	if err := db.Close(); err != nil {
		return pipeerrors.NewSinkError(pipeerrors.CodeWriteFailed,
			fmt.Sprintf("failed to close table file %s", path), err)
	}
	return nil
}

// writeMeta adds the metadata table every output file carries: row count,
// build timestamp, and an optional serialized player-id bloom filter.
func writeMeta(ctx context.Context, db *sql.DB, rowCount int64, playerFilter []byte) error {
	createSQL := `
		CREATE TABLE _gametrics_meta (
			key TEXT PRIMARY KEY,
			value BLOB
		) WITHOUT ROWID
	`
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	entries := map[string][]byte{
		"row_count":  []byte(fmt.Sprintf("%d", rowCount)),
		"created_at": []byte(time.Now().UTC().Format(time.RFC3339)),
	}
	if playerFilter != nil {
		entries["player_filter"] = playerFilter
	}

	for key, value := range entries {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO _gametrics_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write meta entry %s: %w", key, err)
		}
	}
	return nil
}
