package aggregate

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gametrics/gametrics/pkg/types"
)

func testAggregator(workers int) *Aggregator {
	return New(log.New(io.Discard, "", 0), workers)
}

type eventSpec struct {
	player    string
	session   string
	eventType types.EventType
	day       string
	props     types.Properties
}

func buildTable(t *testing.T, specs []eventSpec) types.EventTable {
	t.Helper()
	table := make(types.EventTable, 0, len(specs))
	for i, s := range specs {
		date, err := types.ParseDate(s.day)
		require.NoError(t, err)
		table = append(table, types.EventRecord{
			EventID:    fmt.Sprintf("e%04d", i),
			PlayerID:   s.player,
			SessionID:  s.session,
			EventType:  s.eventType,
			Timestamp:  date.Time().Add(time.Duration(i) * time.Minute),
			Properties: s.props,
			EventDate:  date,
		})
	}
	return table
}

func TestAggregate_SingleDay(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p2", "s2", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s1", types.EventSessionEnd, "2026-06-01", types.Properties{"session_duration": 300.0, "levels_played": 3.0}},
		{"p2", "s2", types.EventSessionEnd, "2026-06-01", types.Properties{"session_duration": 500.0, "levels_played": 5.0}},
		{"p1", "s1", types.EventLevelComplete, "2026-06-01", nil},
		{"p1", "s1", types.EventLevelComplete, "2026-06-01", nil},
		{"p1", "s1", types.EventLevelFail, "2026-06-01", nil},
		{"p2", "s2", types.EventLevelFail, "2026-06-01", nil},
		{"p1", "s1", types.EventPurchase, "2026-06-01", types.Properties{"price_usd": 4.99}},
		{"p1", "s1", types.EventPurchase, "2026-06-01", types.Properties{"price_usd": 0.99}},
		{"p2", "s2", types.EventAdWatched, "2026-06-01", nil},
	})

	metrics, err := testAggregator(2).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	row := metrics[0]
	assert.Equal(t, "2026-06-01", row.EventDate.String())
	assert.Equal(t, int64(2), row.DAU)
	assert.Equal(t, int64(2), row.TotalSessions)
	assert.Equal(t, 400.0, row.AvgSessionDuration)
	assert.Equal(t, 8.0, row.TotalLevelsPlayed)
	assert.Equal(t, int64(2), row.TotalPurchases)
	assert.InDelta(t, 5.98, row.TotalRevenue, 1e-9)
	assert.Equal(t, int64(1), row.PayingUsers)
	assert.Equal(t, int64(1), row.TotalAdsWatched)
	assert.Equal(t, int64(4), row.TotalLevelAttempts)
	assert.Equal(t, int64(2), row.SuccessfulCompletions)

	assert.InDelta(t, 2.99, row.ARPU, 1e-9)
	assert.Equal(t, 50.0, row.ConversionRate)
	assert.Equal(t, 50.0, row.LevelSuccessRate)
	assert.Equal(t, 1.0, row.SessionsPerUser)
}

func TestAggregate_DateAxisFromSessionStarts(t *testing.T) {
	// Day two has purchases but no session_start, so it gets no row.
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s2", types.EventPurchase, "2026-06-02", types.Properties{"price_usd": 9.99}},
	})

	metrics, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "2026-06-01", metrics[0].EventDate.String())
}

func TestAggregate_NoSessionStarts(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventPurchase, "2026-06-01", types.Properties{"price_usd": 9.99}},
		{"p1", "s1", types.EventAdWatched, "2026-06-01", nil},
	})

	metrics, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestAggregate_EmptyTable(t *testing.T) {
	metrics, err := testAggregator(4).Aggregate(context.Background(), types.EventTable{})
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestAggregate_NoPurchases(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p2", "s2", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s1", types.EventSessionEnd, "2026-06-01", types.Properties{"session_duration": 120.0}},
	})

	metrics, err := testAggregator(2).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	row := metrics[0]
	assert.Zero(t, row.TotalRevenue)
	assert.Zero(t, row.PayingUsers)
	assert.Zero(t, row.ARPU)
	assert.Zero(t, row.ConversionRate)
}

func TestAggregate_NoLevelAttempts(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
	})

	metrics, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	assert.Zero(t, metrics[0].TotalLevelAttempts)
	assert.Zero(t, metrics[0].LevelSuccessRate)
}

func TestAggregate_PurchaseWithoutPrice(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s1", types.EventPurchase, "2026-06-01", nil},
		{"p1", "s1", types.EventPurchase, "2026-06-01", types.Properties{"price_usd": 2.99}},
	})

	metrics, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	// Both purchases count; the one with no price adds zero revenue.
	assert.Equal(t, int64(2), metrics[0].TotalPurchases)
	assert.InDelta(t, 2.99, metrics[0].TotalRevenue, 1e-9)
}

func TestAggregate_SessionDurationNullsSkipped(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s1", types.EventSessionEnd, "2026-06-01", types.Properties{"session_duration": 100.0}},
		{"p1", "s2", types.EventSessionEnd, "2026-06-01", nil},
	})

	metrics, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	// Null durations must not drag the mean toward zero.
	assert.Equal(t, 100.0, metrics[0].AvgSessionDuration)
}

func TestAggregate_SortedByDate(t *testing.T) {
	table := buildTable(t, []eventSpec{
		{"p1", "s3", types.EventSessionStart, "2026-06-03", nil},
		{"p1", "s1", types.EventSessionStart, "2026-06-01", nil},
		{"p1", "s2", types.EventSessionStart, "2026-06-02", nil},
	})

	metrics, err := testAggregator(3).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, metrics, 3)

	for i := 1; i < len(metrics); i++ {
		assert.Less(t, metrics[i-1].EventDate, metrics[i].EventDate)
	}
}

func TestAggregate_PurchasersCountTowardDAU(t *testing.T) {
	// Seeds that once produced purchases on dates where the buyers had no
	// session_start, pushing the conversion rate past 100%. Every purchase in
	// randomTable now brings a session_start for the same player and date.
	table := randomTable([]int{7474, 2554, 6654})

	metrics, err := testAggregator(4).Aggregate(context.Background(), table)
	require.NoError(t, err)
	require.NotEmpty(t, metrics)

	for _, row := range metrics {
		assert.LessOrEqual(t, row.PayingUsers, row.DAU)
		assert.LessOrEqual(t, row.ConversionRate, 100.0)
		assert.GreaterOrEqual(t, row.ConversionRate, 0.0)
	}
}

func TestAggregate_WorkerCountInvariant(t *testing.T) {
	var specs []eventSpec
	for i := 0; i < 500; i++ {
		day := fmt.Sprintf("2026-06-%02d", 1+i%10)
		specs = append(specs, eventSpec{
			player:    fmt.Sprintf("p%02d", i%25),
			session:   fmt.Sprintf("s%03d", i),
			eventType: types.EventSessionStart,
			day:       day,
		})
		specs = append(specs, eventSpec{
			player:    fmt.Sprintf("p%02d", i%25),
			session:   fmt.Sprintf("s%03d", i),
			eventType: types.EventSessionEnd,
			day:       day,
			props:     types.Properties{"session_duration": float64(60 + i)},
		})
	}
	table := buildTable(t, specs)

	serial, err := testAggregator(1).Aggregate(context.Background(), table)
	require.NoError(t, err)
	parallel, err := testAggregator(8).Aggregate(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}
