package aggregate

import (
	"context"
	"log"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/gametrics/gametrics/pkg/types"
)

// Property keys consumed by the per-category aggregates.
const (
	propSessionDuration = "session_duration"
	propLevelsPlayed    = "levels_played"
	propPriceUSD        = "price_usd"
)

// dateAccumulator holds every per-category partial aggregate for one event
// date.
type dateAccumulator struct {
	// From session_start
	dau *Partial

	// From session_end
	sessions        *Partial
	sessionDuration *Partial
	levelsPlayed    *Partial

	// From purchase
	purchases   *Partial
	revenue     *Partial
	payingUsers *Partial

	// From ad_watched
	adsWatched *Partial

	// From level_complete/level_fail
	levelAttempts *Partial
	completions   *Partial
}

func newDateAccumulator() *dateAccumulator {
	return &dateAccumulator{
		dau:             NewPartial(AggDistinct),
		sessions:        NewPartial(AggDistinct),
		sessionDuration: NewPartial(AggAvg),
		levelsPlayed:    NewPartial(AggSum),
		purchases:       NewPartial(AggCount),
		revenue:         NewPartial(AggSum),
		payingUsers:     NewPartial(AggDistinct),
		adsWatched:      NewPartial(AggCount),
		levelAttempts:   NewPartial(AggCount),
		completions:     NewPartial(AggCount),
	}
}

// merge folds src into acc, aggregate by aggregate.
func (acc *dateAccumulator) merge(src *dateAccumulator) {
	acc.dau.Merge(src.dau)
	acc.sessions.Merge(src.sessions)
	acc.sessionDuration.Merge(src.sessionDuration)
	acc.levelsPlayed.Merge(src.levelsPlayed)
	acc.purchases.Merge(src.purchases)
	acc.revenue.Merge(src.revenue)
	acc.payingUsers.Merge(src.payingUsers)
	acc.adsWatched.Merge(src.adsWatched)
	acc.levelAttempts.Merge(src.levelAttempts)
	acc.completions.Merge(src.completions)
}

// accumulate routes one cleaned record into the category aggregates for its
// date. The dispatch is exhaustive over the closed event type set; categories
// outside the five sub-selections contribute nothing to daily metrics.
func (acc *dateAccumulator) accumulate(rec *types.EventRecord) {
	switch rec.EventType {
	case types.EventSessionStart:
		acc.dau.AddID(rec.PlayerID)

	case types.EventSessionEnd:
		if rec.SessionID != "" {
			acc.sessions.AddID(rec.SessionID)
		}
		if v, ok := rec.Properties.Float(propSessionDuration); ok {
			acc.sessionDuration.AddValue(v)
		}
		if v, ok := rec.Properties.Float(propLevelsPlayed); ok {
			acc.levelsPlayed.AddValue(v)
		}

	case types.EventPurchase:
		acc.purchases.AddRow()
		acc.payingUsers.AddID(rec.PlayerID)
		// A purchase with no price_usd counts as revenue 0, never as a skip.
		if v, ok := rec.Properties.Float(propPriceUSD); ok {
			acc.revenue.AddValue(v)
		} else {
			acc.revenue.AddValue(0)
		}

	case types.EventAdWatched:
		acc.adsWatched.AddRow()

	case types.EventLevelComplete:
		acc.levelAttempts.AddRow()
		acc.completions.AddRow()

	case types.EventLevelFail:
		acc.levelAttempts.AddRow()

	case types.EventLevelStart, types.EventAchievementUnlocked, types.EventUnknown:
		// Not part of any daily metric.
	}
}

// Aggregator computes the daily metrics table.
type Aggregator struct {
	logger  *log.Logger
	workers int
}

// New creates an Aggregator. workers <= 0 selects GOMAXPROCS.
func New(logger *log.Logger, workers int) *Aggregator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Aggregator{logger: logger, workers: workers}
}

// Aggregate computes one DailyMetricsRow per date with at least one
// session_start. Days carrying only other event types are not emitted; a
// table with zero session_start events yields an empty result, not an error.
// The input table is only read.
func (a *Aggregator) Aggregate(ctx context.Context, table types.EventTable) (types.DailyMetricsTable, error) {
	a.logger.Printf("Calculating daily metrics...")

	merged, err := a.accumulateChunks(ctx, table)
	if err != nil {
		return nil, err
	}

	// The date axis is defined by session_start activity.
	dates := make([]types.Date, 0, len(merged))
	for date, acc := range merged {
		if acc.dau.CountResult() > 0 {
			dates = append(dates, date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	metrics := make(types.DailyMetricsTable, 0, len(dates))
	for _, date := range dates {
		acc := merged[date]

		row := types.DailyMetricsRow{
			EventDate:             date,
			DAU:                   acc.dau.CountResult(),
			TotalSessions:         acc.sessions.CountResult(),
			AvgSessionDuration:    acc.sessionDuration.AvgResult(),
			TotalLevelsPlayed:     acc.levelsPlayed.SumResult(),
			TotalPurchases:        acc.purchases.CountResult(),
			TotalRevenue:          acc.revenue.SumResult(),
			PayingUsers:           acc.payingUsers.CountResult(),
			TotalAdsWatched:       acc.adsWatched.CountResult(),
			TotalLevelAttempts:    acc.levelAttempts.CountResult(),
			SuccessfulCompletions: acc.completions.CountResult(),
		}

		dau := float64(row.DAU)
		row.ARPU = Ratio(row.TotalRevenue, dau, 1)
		row.ConversionRate = Ratio(float64(row.PayingUsers), dau, 100)
		row.LevelSuccessRate = Ratio(float64(row.SuccessfulCompletions), float64(row.TotalLevelAttempts), 100)
		row.SessionsPerUser = Ratio(float64(row.TotalSessions), dau, 1)

		metrics = append(metrics, row)
	}

	a.logger.Printf("Generated metrics for %d days", len(metrics))
	return metrics, nil
}

// accumulateChunks computes per-chunk grouped partials in parallel and merges
// them. Chunks only read the table, so no synchronization beyond the join is
// needed.
func (a *Aggregator) accumulateChunks(ctx context.Context, table types.EventTable) (map[types.Date]*dateAccumulator, error) {
	chunkSize := (len(table) + a.workers - 1) / a.workers
	if chunkSize == 0 {
		chunkSize = 1
	}
	numChunks := (len(table) + chunkSize - 1) / chunkSize

	chunkResults := make([]map[types.Date]*dateAccumulator, numChunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for c := 0; c < numChunks; c++ {
		start := c * chunkSize
		end := start + chunkSize
		if end > len(table) {
			end = len(table)
		}
		chunk := table[start:end]
		idx := c

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			groups := make(map[types.Date]*dateAccumulator)
			for i := range chunk {
				rec := &chunk[i]
				acc, ok := groups[rec.EventDate]
				if !ok {
					acc = newDateAccumulator()
					groups[rec.EventDate] = acc
				}
				acc.accumulate(rec)
			}
			chunkResults[idx] = groups
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[types.Date]*dateAccumulator)
	for _, groups := range chunkResults {
		for date, acc := range groups {
			existing, ok := merged[date]
			if !ok {
				merged[date] = acc
				continue
			}
			existing.merge(acc)
		}
	}
	return merged, nil
}
