// Package main implements the gametrics-gen data tool. It writes a
// deterministic synthetic telemetry file in the JSONL format the pipeline
// ingests, useful for load testing and demos.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/gametrics/gametrics/internal/gen"
)

func main() {
	players := flag.Int("players", 5000, "Number of simulated players")
	days := flag.Int("days", 30, "Number of simulated days")
	seed := flag.Int64("seed", 42, "Random seed (same seed yields same events)")
	output := flag.String("output", "data/raw_events", "Output directory")
	flag.Parse()

	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -*days)
	path := filepath.Join(*output, fmt.Sprintf("events_%s.jsonl", start.Format("20060102")))

	log.Printf("Generating events for %d players over %d days (seed %d)...", *players, *days, *seed)

	g := gen.New(gen.Config{
		Players:   *players,
		Days:      *days,
		Seed:      *seed,
		StartDate: start,
	})

	n, err := g.WriteJSONL(path)
	if err != nil {
		log.Fatalf("Failed to write events: %v", err)
	}

	log.Printf("Generated %d events", n)
	log.Printf("Saved to: %s", path)
}
