// Package ingest parses line-delimited JSON event logs into typed in-memory
// tables. Malformed lines are isolated and counted rather than aborting the
// run, up to a hard failure ceiling.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gametrics/gametrics/internal/config"
	"github.com/gametrics/gametrics/internal/errors"
	"github.com/gametrics/gametrics/pkg/types"
)

// maxLineBytes bounds a single input line. Telemetry events are small; a line
// past this size is malformed by definition.
const maxLineBytes = 1 << 20

// Stats reports the outcome of one ingest pass.
type Stats struct {
	EventsLoaded int64 `json:"events_loaded"`
	EventsFailed int64 `json:"events_failed"`
}

// Ingestor reads an event log file into an EventTable.
type Ingestor struct {
	cfg    config.IngestConfig
	logger *log.Logger
}

// New creates an Ingestor with the given tuning parameters.
func New(cfg config.IngestConfig, logger *log.Logger) *Ingestor {
	return &Ingestor{cfg: cfg, logger: logger}
}

// rawEvent mirrors the wire format of one input line. Fields are parsed
// loosely here so presence checks can report precise failures.
type rawEvent struct {
	EventID    string                 `json:"event_id"`
	PlayerID   string                 `json:"player_id"`
	SessionID  string                 `json:"session_id"`
	EventType  string                 `json:"event_type"`
	Timestamp  string                 `json:"timestamp"`
	Properties map[string]interface{} `json:"properties"`
}

// timestampLayouts are accepted in order. Upstream producers emit
// timezone-naive ISO-8601; RFC3339 inputs are accepted as-is.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Ingest reads the file at path and returns the parsed table plus counters.
// A missing or empty file is a fatal input error. Parse and schema failures
// are counted and skipped; if their total exceeds MaxParseFailures the whole
// ingest fails.
func (in *Ingestor) Ingest(ctx context.Context, path string) (types.EventTable, Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stats{}, errors.NewInputError(errors.CodeFileNotFound,
				fmt.Sprintf("input file not found: %s", path), err)
		}
		return nil, Stats{}, errors.NewInputError(errors.CodeFileNotFound,
			fmt.Sprintf("cannot stat input file: %s", path), err)
	}
	if info.Size() == 0 {
		return nil, Stats{}, errors.NewInputError(errors.CodeEmptyFile,
			fmt.Sprintf("input file is empty: %s", path), nil)
	}

	in.logger.Printf("Loading events from %s (%.2f MB)", path, float64(info.Size())/1024/1024)

	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, errors.NewInputError(errors.CodeFileNotFound,
			fmt.Sprintf("cannot open input file: %s", path), err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, Stats{}, errors.NewInputError(errors.CodeFileNotFound,
			fmt.Sprintf("failed to read input file: %s", path), err)
	}

	table, stats, err := in.parseLines(ctx, lines)
	if err != nil {
		return nil, stats, err
	}

	if len(table) == 0 {
		return nil, stats, errors.NewDataQualityError(
			"no valid events found in input file", nil)
	}

	in.logger.Printf("Loaded %d events (%d failed)", stats.EventsLoaded, stats.EventsFailed)
	return table, stats, nil
}

// parseLines parses raw lines into records in parallel chunks. Line parsing
// is stateless, so chunks can proceed independently; results are reassembled
// in arrival order.
func (in *Ingestor) parseLines(ctx context.Context, lines [][]byte) (types.EventTable, Stats, error) {
	workers := in.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunkSize := in.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4096
	}

	numChunks := (len(lines) + chunkSize - 1) / chunkSize
	chunkResults := make([]types.EventTable, numChunks)

	var failed atomic.Int64
	ceiling := int64(in.cfg.MaxParseFailures)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for c := 0; c < numChunks; c++ {
		start := c * chunkSize
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[start:end]
		idx := c

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records := make(types.EventTable, 0, len(chunk))
			for _, line := range chunk {
				rec, err := parseLine(line)
				if err != nil {
					if failed.Add(1) > ceiling {
						return errors.NewIngestError(errors.CodeTooManyFailures,
							fmt.Sprintf("too many failed lines: exceeded ceiling of %d", ceiling))
					}
					continue
				}
				records = append(records, rec)
			}
			chunkResults[idx] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{EventsFailed: failed.Load()}, err
	}

	var table types.EventTable
	for _, chunk := range chunkResults {
		table = append(table, chunk...)
	}

	stats := Stats{
		EventsLoaded: int64(len(table)),
		EventsFailed: failed.Load(),
	}
	return table, stats, nil
}

// parseLine decodes one input line into an EventRecord. Blank lines, invalid
// JSON, missing required fields, unknown event types, and unparseable
// timestamps are all single-record failures.
func parseLine(line []byte) (types.EventRecord, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return types.EventRecord{}, errors.Wrap(errors.ErrCategoryIngest,
			errors.CodeParseFailed, "invalid JSON", err)
	}

	switch {
	case raw.EventID == "":
		return types.EventRecord{}, errors.NewIngestError(errors.CodeMissingField, "missing event_id")
	case raw.PlayerID == "":
		return types.EventRecord{}, errors.NewIngestError(errors.CodeMissingField, "missing player_id")
	case raw.EventType == "":
		return types.EventRecord{}, errors.NewIngestError(errors.CodeMissingField, "missing event_type")
	case raw.Timestamp == "":
		return types.EventRecord{}, errors.NewIngestError(errors.CodeMissingField, "missing timestamp")
	}

	eventType, err := types.ParseEventType(raw.EventType)
	if err != nil {
		return types.EventRecord{}, errors.Wrap(errors.ErrCategoryIngest,
			errors.CodeParseFailed, "unknown event_type", err)
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return types.EventRecord{}, errors.Wrap(errors.ErrCategoryIngest,
			errors.CodeParseFailed, "invalid timestamp", err)
	}

	return types.EventRecord{
		EventID:    raw.EventID,
		PlayerID:   raw.PlayerID,
		SessionID:  raw.SessionID,
		EventType:  eventType,
		Timestamp:  ts,
		Properties: raw.Properties,
	}, nil
}

// parseTimestamp tries each accepted layout in order.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// readLines reads all non-empty lines from r, preserving arrival order.
func readLines(r *os.File) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var lines [][]byte
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
