// Package gen produces synthetic mobile game telemetry in the wire format
// the ingestor consumes. Output is deterministic for a given seed, which
// makes it usable both as a standalone data tool and as a test fixture
// source.
package gen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Event is one raw telemetry line as emitted by a game client.
type Event struct {
	EventID    string                 `json:"event_id"`
	PlayerID   string                 `json:"player_id"`
	SessionID  string                 `json:"session_id"`
	EventType  string                 `json:"event_type"`
	Timestamp  string                 `json:"timestamp"`
	Properties map[string]interface{} `json:"properties"`
}

type engagementTier int

const (
	tierLow engagementTier = iota
	tierMedium
	tierHigh
)

var (
	deviceTypes = []string{"iOS", "Android"}
	countries   = []string{"US", "UK", "DE", "TR", "FR", "JP", "BR"}
	adTypes     = []string{"rewarded", "interstitial", "banner"}
	adRewards   = []interface{}{nil, "coins", "lives"}
	productIDs  = []string{"coins_100", "coins_500", "coins_1000", "remove_ads"}
	prices      = []float64{0.99, 2.99, 4.99, 9.99}
)

// Config controls the shape of the generated population.
type Config struct {
	Players int
	Days    int
	Seed    int64

	// StartDate is the first simulated day. Zero means Days before today.
	StartDate time.Time
}

type player struct {
	id           string
	installDay   int
	device       string
	country      string
	isPayer      bool
	engagement   engagementTier
	currentLevel int
}

// Generator simulates a player population over a date range.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	start   time.Time
	players []*player
}

// New creates a generator. The same Config always yields the same events.
func New(cfg Config) *Generator {
	if cfg.Players <= 0 {
		cfg.Players = 5000
	}
	if cfg.Days <= 0 {
		cfg.Days = 30
	}

	start := cfg.StartDate
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -cfg.Days)
	}

	g := &Generator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		start: start,
	}
	g.players = g.generatePlayers()
	return g
}

func (g *Generator) generatePlayers() []*player {
	players := make([]*player, 0, g.cfg.Players)
	// Installs stop a week before the range ends so every cohort has some
	// observable follow-up days.
	maxInstallDay := g.cfg.Days - 7
	if maxInstallDay < 1 {
		maxInstallDay = 1
	}
	for i := 0; i < g.cfg.Players; i++ {
		players = append(players, &player{
			id:           g.newID(),
			installDay:   g.rng.Intn(maxInstallDay),
			device:       deviceTypes[g.rng.Intn(len(deviceTypes))],
			country:      countries[g.rng.Intn(len(countries))],
			isPayer:      g.rng.Float64() < 0.08,
			engagement:   engagementTier(g.rng.Intn(3)),
			currentLevel: 1,
		})
	}
	return players
}

// Generate produces the full event stream sorted by timestamp.
func (g *Generator) Generate() []Event {
	var events []Event

	for day := 0; day < g.cfg.Days; day++ {
		currentDay := g.start.AddDate(0, 0, day)

		for _, p := range g.players {
			if day < p.installDay {
				continue
			}

			// Churn model: play probability decays with days since
			// install, floored per engagement tier.
			daysSinceInstall := day - p.installDay
			var playProb float64
			switch p.engagement {
			case tierLow:
				playProb = max(0.1, 0.8-float64(daysSinceInstall)*0.05)
			case tierMedium:
				playProb = max(0.3, 0.9-float64(daysSinceInstall)*0.03)
			default:
				playProb = max(0.5, 0.95-float64(daysSinceInstall)*0.01)
			}
			if g.rng.Float64() > playProb {
				continue
			}

			sessions := g.sessionsToday()
			for i := 0; i < sessions; i++ {
				events = append(events, g.generateSession(p, currentDay)...)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}

// sessionsToday picks 1-3 sessions weighted 60/30/10.
func (g *Generator) sessionsToday() int {
	r := g.rng.Float64()
	switch {
	case r < 0.6:
		return 1
	case r < 0.9:
		return 2
	default:
		return 3
	}
}

func (g *Generator) generateSession(p *player, day time.Time) []Event {
	var events []Event
	sessionID := g.newID()

	sessionStart := day.Add(time.Duration(g.rng.Intn(24))*time.Hour +
		time.Duration(g.rng.Intn(60))*time.Minute)

	events = append(events, g.event(p, sessionID, "session_start", sessionStart, map[string]interface{}{
		"device_type": p.device,
		"country":     p.country,
	}))

	var sessionDuration, levelsPlayed int
	switch p.engagement {
	case tierLow:
		sessionDuration = 60 + g.rng.Intn(241)
		levelsPlayed = g.rng.Intn(3)
	case tierMedium:
		sessionDuration = 300 + g.rng.Intn(601)
		levelsPlayed = 1 + g.rng.Intn(5)
	default:
		sessionDuration = 900 + g.rng.Intn(2701)
		levelsPlayed = 3 + g.rng.Intn(8)
	}

	current := sessionStart
	for i := 0; i < levelsPlayed; i++ {
		level := p.currentLevel
		levelDuration := 30 + g.rng.Intn(151)

		events = append(events, g.event(p, sessionID, "level_start", current, map[string]interface{}{
			"level": level,
		}))
		current = current.Add(time.Duration(levelDuration) * time.Second)

		success := g.rng.Float64() > 0.2
		outcome := "level_fail"
		score := 0
		if success {
			outcome = "level_complete"
			score = 1000 + g.rng.Intn(9001)
		}
		events = append(events, g.event(p, sessionID, outcome, current, map[string]interface{}{
			"level":    level,
			"success":  success,
			"duration": levelDuration,
			"score":    score,
		}))

		if success {
			p.currentLevel++
			if g.rng.Float64() < 0.1 {
				events = append(events, g.event(p, sessionID, "achievement_unlocked", current, map[string]interface{}{
					"achievement_id":   fmt.Sprintf("achievement_%d", 1+g.rng.Intn(20)),
					"achievement_name": fmt.Sprintf("Milestone %d", p.currentLevel),
				}))
			}
		}
	}

	// Non-payers see more ads.
	adProb := 0.3
	if p.isPayer {
		adProb = 0.1
	}
	if g.rng.Float64() < adProb {
		events = append(events, g.event(p, sessionID, "ad_watched", current, map[string]interface{}{
			"ad_type": adTypes[g.rng.Intn(len(adTypes))],
			"reward":  adRewards[g.rng.Intn(len(adRewards))],
		}))
		current = current.Add(30 * time.Second)
	}

	if p.isPayer && g.rng.Float64() < 0.25 {
		events = append(events, g.event(p, sessionID, "purchase", current, map[string]interface{}{
			"product_id": productIDs[g.rng.Intn(len(productIDs))],
			"price_usd":  prices[g.rng.Intn(len(prices))],
			"currency":   "USD",
		}))
	}

	sessionEnd := sessionStart.Add(time.Duration(sessionDuration) * time.Second)
	events = append(events, g.event(p, sessionID, "session_end", sessionEnd, map[string]interface{}{
		"session_duration": sessionDuration,
		"levels_played":    levelsPlayed,
	}))

	return events
}

func (g *Generator) event(p *player, sessionID, eventType string, ts time.Time, props map[string]interface{}) Event {
	return Event{
		EventID:    g.newID(),
		PlayerID:   p.id,
		SessionID:  sessionID,
		EventType:  eventType,
		Timestamp:  ts.UTC().Format("2006-01-02T15:04:05"),
		Properties: props,
	}
}

// newID draws UUID bytes from the seeded rng so ids are reproducible.
func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		// math/rand Read never fails
		panic(err)
	}
	return id.String()
}

// WriteJSONL generates the event stream and writes it as JSON lines.
// Returns the number of events written.
func (g *Generator) WriteJSONL(path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	events := g.Generate()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return 0, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close output file: %w", err)
	}
	return len(events), nil
}
