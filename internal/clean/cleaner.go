// Package clean deduplicates and enriches ingested event tables. The pass is
// fully deterministic: derive calendar fields, keep the first occurrence of
// each event id in timestamp order, and sort ascending by timestamp.
package clean

import (
	"log"
	"sort"

	"github.com/gametrics/gametrics/pkg/types"
)

// Stats reports the outcome of one cleaning pass.
type Stats struct {
	// EventsCleaned is the number of rows remaining after deduplication
	EventsCleaned int64 `json:"events_cleaned"`

	// DuplicatesRemoved is the number of rows dropped for a repeated event id
	DuplicatesRemoved int64 `json:"duplicates_removed"`
}

// Cleaner enriches and deduplicates event tables.
type Cleaner struct {
	logger *log.Logger
}

// New creates a Cleaner.
func New(logger *log.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean returns a new table with derived calendar fields attached, exactly
// one row per event id, and rows sorted by timestamp ascending. The input
// table is not modified. Rows are only ever dropped for exact-id duplication;
// everything else passes through, including rows flagged by the validator.
func (c *Cleaner) Clean(table types.EventTable) (types.EventTable, Stats) {
	c.logger.Printf("Cleaning and enriching %d events...", len(table))

	enriched := make(types.EventTable, len(table))
	for i := range table {
		enriched[i] = Enrich(table[i])
	}

	// Stable sort keeps arrival order among equal timestamps, which makes
	// the kept occurrence of a duplicated id deterministic.
	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].Timestamp.Before(enriched[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(enriched))
	cleaned := enriched[:0]
	for i := range enriched {
		id := enriched[i].EventID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cleaned = append(cleaned, enriched[i])
	}

	stats := Stats{
		EventsCleaned:     int64(len(cleaned)),
		DuplicatesRemoved: int64(len(enriched) - len(cleaned)),
	}

	if stats.DuplicatesRemoved > 0 {
		c.logger.Printf("Removed %d duplicate events", stats.DuplicatesRemoved)
	}
	c.logger.Printf("After cleaning: %d events", stats.EventsCleaned)

	return cleaned, stats
}

// Enrich returns a copy of the record with the derived calendar fields
// filled from its timestamp. Ingested fields are never rewritten.
func Enrich(rec types.EventRecord) types.EventRecord {
	ts := rec.Timestamp.UTC()
	rec.EventDate = types.DateOf(ts)
	rec.EventHour = ts.Hour()
	rec.DayOfWeek = ts.Weekday()
	return rec
}
