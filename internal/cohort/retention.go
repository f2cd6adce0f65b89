// Package cohort computes install-date cohorts and day-N retention from a
// cleaned event table. Retention is exact-day: a player counts toward dN only
// when active exactly N days after install, not "at least once by day N".
package cohort

import (
	"log"
	"sort"

	"github.com/gametrics/gametrics/internal/aggregate"
	"github.com/gametrics/gametrics/pkg/types"
)

// Horizons are the retention windows reported per cohort, in days.
var Horizons = [3]int{1, 7, 30}

// Engine computes retention cohorts.
type Engine struct {
	logger *log.Logger
}

// New creates a cohort Engine.
func New(logger *log.Logger) *Engine {
	return &Engine{logger: logger}
}

// ComputeRetention returns one CohortRow per install date, sorted ascending.
// A player's install date is the minimum event date among their session_start
// events; activity is the deduplicated set of (player, date) session_start
// pairs. The input table is only read.
func (e *Engine) ComputeRetention(table types.EventTable) types.CohortTable {
	e.logger.Printf("Calculating retention metrics...")

	installDates := installDates(table)
	if len(installDates) == 0 {
		e.logger.Printf("No session_start events; no cohorts to report")
		return types.CohortTable{}
	}

	// Deduplicated (player, date) activity pairs from session_start events.
	type activity struct {
		player string
		date   types.Date
	}
	active := make(map[activity]struct{})
	for i := range table {
		if table[i].EventType != types.EventSessionStart {
			continue
		}
		active[activity{table[i].PlayerID, table[i].EventDate}] = struct{}{}
	}

	// Cohort sizes per install date.
	cohortPlayers := make(map[types.Date]map[string]struct{})
	for player, install := range installDates {
		if cohortPlayers[install] == nil {
			cohortPlayers[install] = make(map[string]struct{})
		}
		cohortPlayers[install][player] = struct{}{}
	}

	// Distinct players active exactly N days after install, per cohort.
	type horizonKey struct {
		install types.Date
		horizon int
	}
	horizonActive := make(map[horizonKey]map[string]struct{})
	for pair := range active {
		install := installDates[pair.player]
		days := pair.date.DaysSince(install)
		for _, n := range Horizons {
			if days != n {
				continue
			}
			key := horizonKey{install, n}
			if horizonActive[key] == nil {
				horizonActive[key] = make(map[string]struct{})
			}
			horizonActive[key][pair.player] = struct{}{}
		}
	}

	cohorts := make(types.CohortTable, 0, len(cohortPlayers))
	for install, players := range cohortPlayers {
		row := types.CohortRow{
			InstallDate: install,
			CohortSize:  int64(len(players)),
			D1Active:    int64(len(horizonActive[horizonKey{install, 1}])),
			D7Active:    int64(len(horizonActive[horizonKey{install, 7}])),
			D30Active:   int64(len(horizonActive[horizonKey{install, 30}])),
		}

		size := float64(row.CohortSize)
		row.D1Retention = aggregate.Ratio(float64(row.D1Active), size, 100)
		row.D7Retention = aggregate.Ratio(float64(row.D7Active), size, 100)
		row.D30Retention = aggregate.Ratio(float64(row.D30Active), size, 100)

		cohorts = append(cohorts, row)
	}

	sort.Slice(cohorts, func(i, j int) bool {
		return cohorts[i].InstallDate < cohorts[j].InstallDate
	})

	e.logger.Printf("Calculated retention for %d cohorts", len(cohorts))
	return cohorts
}

// installDates returns each player's install date: the minimum event date of
// their session_start events. Once computed for a dataset it never changes.
func installDates(table types.EventTable) map[string]types.Date {
	installs := make(map[string]types.Date)
	for i := range table {
		if table[i].EventType != types.EventSessionStart {
			continue
		}
		date := table[i].EventDate
		if existing, ok := installs[table[i].PlayerID]; !ok || date < existing {
			installs[table[i].PlayerID] = date
		}
	}
	return installs
}
