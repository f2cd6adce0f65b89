package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/snappy"

	"github.com/gametrics/gametrics/internal/bloom"
	"github.com/gametrics/gametrics/pkg/types"
)

// ReadEvents loads a published events table back into memory.
func ReadEvents(ctx context.Context, path string) (types.EventTable, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT event_id, player_id, session_id, event_type, timestamp, event_date, event_hour, day_of_week, properties
		FROM events_cleaned ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var table types.EventTable
	for rows.Next() {
		var (
			rec       types.EventRecord
			sessionID sql.NullString
			eventType string
			tsNanos   int64
			dateStr   string
			props     []byte
		)
		if err := rows.Scan(&rec.EventID, &rec.PlayerID, &sessionID, &eventType,
			&tsNanos, &dateStr, &rec.EventHour, &rec.DayOfWeek, &props); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		rec.SessionID = sessionID.String
		rec.EventType, _ = types.ParseEventType(eventType)
		rec.Timestamp = time.Unix(0, tsNanos).UTC()
		rec.EventDate, err = types.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid event_date %q: %w", dateStr, err)
		}

		if len(props) > 0 {
			raw, err := snappy.Decode(nil, props)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress properties for %s: %w", rec.EventID, err)
			}
			if err := json.Unmarshal(raw, &rec.Properties); err != nil {
				return nil, fmt.Errorf("failed to decode properties for %s: %w", rec.EventID, err)
			}
		}

		table = append(table, rec)
	}
	return table, rows.Err()
}

// ReadDailyMetrics loads a published daily metrics table.
func ReadDailyMetrics(ctx context.Context, path string) (types.DailyMetricsTable, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT event_date, dau, total_sessions, avg_session_duration, total_levels_played,
		       total_purchases, total_revenue, paying_users, total_ads_watched,
		       total_level_attempts, successful_completions, arpu, conversion_rate,
		       level_success_rate, sessions_per_user
		FROM daily_metrics ORDER BY event_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily metrics: %w", err)
	}
	defer rows.Close()

	var table types.DailyMetricsTable
	for rows.Next() {
		var (
			row     types.DailyMetricsRow
			dateStr string
		)
		if err := rows.Scan(&dateStr, &row.DAU, &row.TotalSessions, &row.AvgSessionDuration,
			&row.TotalLevelsPlayed, &row.TotalPurchases, &row.TotalRevenue, &row.PayingUsers,
			&row.TotalAdsWatched, &row.TotalLevelAttempts, &row.SuccessfulCompletions,
			&row.ARPU, &row.ConversionRate, &row.LevelSuccessRate, &row.SessionsPerUser); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}
		row.EventDate, err = types.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid event_date %q: %w", dateStr, err)
		}
		table = append(table, row)
	}
	return table, rows.Err()
}

// ReadCohorts loads a published retention cohorts table.
func ReadCohorts(ctx context.Context, path string) (types.CohortTable, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT install_date, cohort_size, d1_active, d7_active, d30_active,
		       d1_retention, d7_retention, d30_retention
		FROM retention_cohorts ORDER BY install_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohorts: %w", err)
	}
	defer rows.Close()

	var table types.CohortTable
	for rows.Next() {
		var (
			row     types.CohortRow
			dateStr string
		)
		if err := rows.Scan(&dateStr, &row.CohortSize, &row.D1Active, &row.D7Active,
			&row.D30Active, &row.D1Retention, &row.D7Retention, &row.D30Retention); err != nil {
			return nil, fmt.Errorf("failed to scan cohort row: %w", err)
		}
		row.InstallDate, err = types.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid install_date %q: %w", dateStr, err)
		}
		table = append(table, row)
	}
	return table, rows.Err()
}

// ReadRowCount returns the row_count metadata entry of a published table.
func ReadRowCount(ctx context.Context, path string) (int64, error) {
	value, err := readMetaValue(ctx, path, "row_count")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(value), 10, 64)
}

// ReadPlayerFilter returns the player-id bloom filter embedded in a
// published events table.
func ReadPlayerFilter(ctx context.Context, path string) (*bloom.Filter, error) {
	value, err := readMetaValue(ctx, path, "player_filter")
	if err != nil {
		return nil, err
	}
	return bloom.Deserialize(value)
}

func readMetaValue(ctx context.Context, path, key string) ([]byte, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var value []byte
	err = db.QueryRowContext(ctx,
		"SELECT value FROM _gametrics_meta WHERE key = ?", key).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta entry %s: %w", key, err)
	}
	return value, nil
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open table file %s: %w", path, err)
	}
	return db, nil
}
