// Package types provides core data types for the Gametrics pipeline.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes a telemetry event. The set is closed: records carrying
// any other value are rejected at ingest time.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventSessionStart
	EventSessionEnd
	EventLevelStart
	EventLevelComplete
	EventLevelFail
	EventPurchase
	EventAdWatched
	EventAchievementUnlocked
)

// eventTypeNames maps each EventType to its wire representation.
var eventTypeNames = map[EventType]string{
	EventSessionStart:        "session_start",
	EventSessionEnd:          "session_end",
	EventLevelStart:          "level_start",
	EventLevelComplete:       "level_complete",
	EventLevelFail:           "level_fail",
	EventPurchase:            "purchase",
	EventAdWatched:           "ad_watched",
	EventAchievementUnlocked: "achievement_unlocked",
}

var eventTypeValues = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTypeNames))
	for t, name := range eventTypeNames {
		m[name] = t
	}
	return m
}()

// ParseEventType converts a wire string into an EventType.
func ParseEventType(s string) (EventType, error) {
	if t, ok := eventTypeValues[s]; ok {
		return t, nil
	}
	return EventUnknown, fmt.Errorf("unknown event type: %q", s)
}

// String returns the wire representation of the event type.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsLevelOutcome reports whether the event type is a level attempt outcome.
func (t EventType) IsLevelOutcome() bool {
	return t == EventLevelComplete || t == EventLevelFail
}

// MarshalJSON encodes the event type as its wire string.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the event type from its wire string.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Properties is the sparse per-event key/value map. The key set varies by
// event type; a key absent on a given record is null for that record, never
// zero.
type Properties map[string]interface{}

// Float returns the value for key as a float64. The second return is false
// when the key is absent, null, or not numeric.
func (p Properties) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// String returns the value for key as a string.
func (p Properties) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value for key as a bool.
func (p Properties) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// EventRecord is a single telemetry event. Records are immutable once
// ingested: enrichment fills the derived calendar fields but never rewrites
// the ingested ones.
type EventRecord struct {
	// EventID is globally unique after cleaning
	EventID string `json:"event_id"`

	// PlayerID identifies the player who emitted the event
	PlayerID string `json:"player_id"`

	// SessionID ties the event to a play session (optional)
	SessionID string `json:"session_id,omitempty"`

	// EventType categorizes the event
	EventType EventType `json:"event_type"`

	// Timestamp is the instant the event occurred (timezone-naive input is
	// interpreted as UTC)
	Timestamp time.Time `json:"timestamp"`

	// Properties holds the event-type-specific key/value payload
	Properties Properties `json:"properties,omitempty"`

	// Derived calendar fields, attached during enrichment
	EventDate Date         `json:"event_date,omitempty"`
	EventHour int          `json:"event_hour,omitempty"`
	DayOfWeek time.Weekday `json:"day_of_week,omitempty"`
}

// EventTable is an in-memory typed table of event records.
type EventTable []EventRecord

// DistinctPlayers returns the number of distinct player ids in the table.
func (t EventTable) DistinctPlayers() int {
	players := make(map[string]struct{})
	for i := range t {
		players[t[i].PlayerID] = struct{}{}
	}
	return len(players)
}

// EventTypes returns the set of event types present in the table.
func (t EventTable) EventTypes() map[EventType]struct{} {
	set := make(map[EventType]struct{})
	for i := range t {
		set[t[i].EventType] = struct{}{}
	}
	return set
}
