package models

import "encoding/json"

// Frame types
const (
	FrameTypeFull  = "full"
	FrameTypeDelta = "delta"
)

// Delta operations
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// Event types with special meaning to the broadcast layer
const (
	EventTypeScore    = "score"
	EventTypeDeath    = "death"
	EventTypeVictory  = "victory"
	EventTypeMatchEnd = "match_end"
)

// Quality is the bandwidth tier a spectator asked for
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality maps a query value onto a Quality, defaulting to high
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityLow:
		return QualityLow
	case QualityMedium:
		return QualityMedium
	default:
		return QualityHigh
	}
}

// GameEvent is a single entry of a match's ordered event log
type GameEvent struct {
	Type      string                 `json:"type"`
	Tick      int64                  `json:"tick"`
	Timestamp int64                  `json:"timestamp"` // Unix milliseconds
	PlayerID  string                 `json:"playerId,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// Highlight marks a notable moment for high bandwidth viewers
type Highlight struct {
	Type        string                 `json:"type"`
	Tick        int64                  `json:"tick"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// DeltaChange is one path-level change between two states
type DeltaChange struct {
	Path     string          `json:"path"`
	Op       string          `json:"op"`
	Value    json.RawMessage `json:"value,omitempty"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
}

// StateDelta lists the changes between two frame ticks
type StateDelta struct {
	FromTick int64         `json:"fromTick"`
	ToTick   int64         `json:"toTick"`
	Changes  []DeltaChange `json:"changes"`
}

// BroadcastFrame is the payload sent to spectators for every state change
type BroadcastFrame struct {
	Type       string          `json:"type"`
	MatchID    string          `json:"matchId"`
	Tick       int64           `json:"tick"`
	Timestamp  int64           `json:"timestamp"`
	State      json.RawMessage `json:"state,omitempty"`
	Delta      *StateDelta     `json:"delta,omitempty"`
	Events     []GameEvent     `json:"events"`
	Highlights []Highlight     `json:"highlights,omitempty"`
}

// Clone returns a copy whose slices can be filtered without touching the original
func (f BroadcastFrame) Clone() BroadcastFrame {
	out := f
	out.Events = append([]GameEvent(nil), f.Events...)
	if out.Events == nil {
		out.Events = []GameEvent{}
	}
	if f.Highlights != nil {
		out.Highlights = append([]Highlight(nil), f.Highlights...)
	}
	return out
}
