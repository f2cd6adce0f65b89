package aggregate

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/gametrics/gametrics/pkg/types"
)

// randomTable derives an event table from integer seeds: the seed picks the
// player, the date, and the event type, so arbitrary slices cover sparse and
// dense category mixes. A purchase is always accompanied by a session_start
// for the same player and date, matching how sessions bracket purchases in
// real telemetry.
func randomTable(seeds []int) types.EventTable {
	eventTypes := []types.EventType{
		types.EventSessionStart,
		types.EventSessionEnd,
		types.EventLevelComplete,
		types.EventLevelFail,
		types.EventPurchase,
		types.EventAdWatched,
	}
	base, _ := types.ParseDate("2026-06-01")

	table := make(types.EventTable, 0, len(seeds))
	for i, s := range seeds {
		et := eventTypes[s%len(eventTypes)]
		date := base.AddDays(s % 5)

		var props types.Properties
		switch et {
		case types.EventSessionEnd:
			props = types.Properties{"session_duration": float64(60 + s%600)}
		case types.EventPurchase:
			props = types.Properties{"price_usd": float64(s%10) + 0.99}
		}

		player := fmt.Sprintf("p%02d", s%13)
		session := fmt.Sprintf("s%03d", s%40)
		ts := date.Time().Add(time.Duration(s%24) * time.Hour)

		if et == types.EventPurchase {
			table = append(table, types.EventRecord{
				EventID:   fmt.Sprintf("e%05d-start", i),
				PlayerID:  player,
				SessionID: session,
				EventType: types.EventSessionStart,
				Timestamp: ts,
				EventDate: date,
			})
		}

		table = append(table, types.EventRecord{
			EventID:    fmt.Sprintf("e%05d", i),
			PlayerID:   player,
			SessionID:  session,
			EventType:  et,
			Timestamp:  ts,
			Properties: props,
			EventDate:  date,
		})
	}
	return table
}

func TestProperty_DailyMetrics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	agg := New(log.New(io.Discard, "", 0), 4)
	ctx := context.Background()

	properties.Property("ratio columns stay within bounds and are never NaN", prop.ForAll(
		func(seeds []int) bool {
			metrics, err := agg.Aggregate(ctx, randomTable(seeds))
			if err != nil {
				return false
			}
			for _, row := range metrics {
				if row.ConversionRate < 0 || row.ConversionRate > 100 {
					return false
				}
				if row.LevelSuccessRate < 0 || row.LevelSuccessRate > 100 {
					return false
				}
				if math.IsNaN(row.ARPU) || math.IsNaN(row.SessionsPerUser) ||
					math.IsNaN(row.AvgSessionDuration) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.Property("dau never exceeds distinct players in the dataset", prop.ForAll(
		func(seeds []int) bool {
			table := randomTable(seeds)
			metrics, err := agg.Aggregate(ctx, table)
			if err != nil {
				return false
			}
			distinct := int64(table.DistinctPlayers())
			for _, row := range metrics {
				if row.DAU > distinct {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.Property("zero level attempts forces zero success rate", prop.ForAll(
		func(seeds []int) bool {
			metrics, err := agg.Aggregate(ctx, randomTable(seeds))
			if err != nil {
				return false
			}
			for _, row := range metrics {
				if row.TotalLevelAttempts == 0 && row.LevelSuccessRate != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}
