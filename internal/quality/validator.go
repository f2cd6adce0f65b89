// Package quality runs the data-quality gates over an ingested event table.
// Checks are advisory by default and blocking under strict mode; the package
// never mutates the table it inspects.
package quality

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/gametrics/gametrics/internal/config"
	"github.com/gametrics/gametrics/internal/errors"
	"github.com/gametrics/gametrics/pkg/types"
)

// denseColumns are the declared columns expected to be densely populated.
// Sparse per-event properties are excluded from the null-fraction check.
var denseColumns = []string{"event_id", "player_id", "session_id", "event_type", "timestamp"}

// Validator checks an event table against configured thresholds.
type Validator struct {
	cfg    config.QualityConfig
	logger *log.Logger

	// now is injectable for tests
	now func() time.Time
}

// New creates a Validator with the given thresholds.
func New(cfg config.QualityConfig, logger *log.Logger) *Validator {
	return &Validator{cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the wall clock, for tests of the future-timestamp gate.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate runs every quality check over the table and returns the verdict
// plus one human-readable issue string per violated check. The table is not
// modified.
func (v *Validator) Validate(table types.EventTable) (bool, []string) {
	v.logger.Printf("Running data quality checks...")
	var issues []string

	// Minimum event count
	if len(table) < v.cfg.MinEvents {
		issues = append(issues, fmt.Sprintf("too few events: %d < %d", len(table), v.cfg.MinEvents))
	}

	// Required event types
	if missing := v.missingEventTypes(table); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("missing required event types: %v", missing))
	}

	// Per-column null fraction over dense columns
	issues = append(issues, v.nullFractionIssues(table)...)

	// Future timestamps past the grace period
	if n := v.countFutureEvents(table); n > 0 {
		issues = append(issues, fmt.Sprintf("found %d events with future timestamps", n))
	}

	// Duplicate event ids. Reported as a count; removal happens in the cleaner.
	if n := countDuplicateIDs(table); n > 0 {
		issues = append(issues, fmt.Sprintf("found %d duplicate event IDs", n))
	}

	if len(issues) > 0 {
		v.logger.Printf("Quality check found %d issues:", len(issues))
		for _, issue := range issues {
			v.logger.Printf("  - %s", issue)
		}
		return false, issues
	}

	v.logger.Printf("All quality checks passed")
	return true, nil
}

// Enforce runs Validate and, under strict mode, turns a failing verdict into
// a terminating DataQualityError carrying all issues. Outside strict mode the
// issues are returned as warnings and the pipeline proceeds.
func (v *Validator) Enforce(table types.EventTable) ([]string, error) {
	passed, issues := v.Validate(table)
	if !passed && v.cfg.StrictMode {
		return issues, errors.NewDataQualityError(
			fmt.Sprintf("quality checks failed with %d issues", len(issues)), issues)
	}
	return issues, nil
}

// missingEventTypes returns the configured required types absent from the table.
func (v *Validator) missingEventTypes(table types.EventTable) []string {
	present := table.EventTypes()

	var missing []string
	for _, name := range v.cfg.RequiredEventTypes {
		t, err := types.ParseEventType(name)
		if err != nil {
			// A required type outside the closed set can never be present.
			missing = append(missing, name)
			continue
		}
		if _, ok := present[t]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// nullFractionIssues computes the null fraction for each dense column and
// reports the ones above the threshold.
func (v *Validator) nullFractionIssues(table types.EventTable) []string {
	if len(table) == 0 {
		return nil
	}

	nulls := make(map[string]int, len(denseColumns))
	for i := range table {
		rec := &table[i]
		if rec.EventID == "" {
			nulls["event_id"]++
		}
		if rec.PlayerID == "" {
			nulls["player_id"]++
		}
		if rec.SessionID == "" {
			nulls["session_id"]++
		}
		if rec.EventType == types.EventUnknown {
			nulls["event_type"]++
		}
		if rec.Timestamp.IsZero() {
			nulls["timestamp"]++
		}
	}

	var issues []string
	total := float64(len(table))
	for _, col := range denseColumns {
		pct := float64(nulls[col]) / total
		if pct > v.cfg.MaxNullPercentage {
			issues = append(issues, fmt.Sprintf("column %s has %.1f%% nulls (threshold: %.1f%%)",
				col, pct*100, v.cfg.MaxNullPercentage*100))
		}
	}
	return issues
}

// countFutureEvents counts records whose event date lies past now plus the
// configured grace period. They are a finding, never silently dropped.
func (v *Validator) countFutureEvents(table types.EventTable) int {
	limit := types.DateOf(v.now()).AddDays(v.cfg.MaxFutureDays)
	n := 0
	for i := range table {
		if types.DateOf(table[i].Timestamp) > limit {
			n++
		}
	}
	return n
}

// countDuplicateIDs counts rows beyond the first occurrence of each event id.
func countDuplicateIDs(table types.EventTable) int {
	seen := make(map[string]struct{}, len(table))
	for i := range table {
		seen[table[i].EventID] = struct{}{}
	}
	return len(table) - len(seen)
}
