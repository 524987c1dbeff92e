package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// Game is the uniform state-machine interface every game title implements.
//
// A host drives it as: Initialize, then any sequence of ApplyAction and Tick
// (draining events after each call), then IsTerminal and Result.
type Game interface {
	// Identification and static configuration
	Info() Info

	// Lifecycle
	Initialize(playerIDs []string, seed uint64) error
	Reset() error
	Destroy()

	// State access. StateForPlayer may redact hidden information but must not
	// mutate the shared state. An empty playerID asks for the spectator view,
	// which hides what is hidden from every player.
	State() interface{}
	StateForPlayer(playerID string) interface{}

	// Actions
	ValidActions(playerID string) []Action
	ValidateAction(playerID string, action Action) bool
	ApplyAction(playerID string, action Action) ActionResult

	// Flow. Tick is a no-op for turn-based titles.
	Tick(dt time.Duration) TickResult

	// Terminal state
	IsTerminal() bool
	Result() (GameResult, error)

	// Serialization and replay
	Serialize() (SerializedState, error)
	Deserialize(state SerializedState) error
	ReplayFrame() (ReplayFrame, error)

	// DrainEvents returns and clears the events emitted since the last drain
	DrainEvents() []models.GameEvent
}

// Factory builds a fresh, uninitialized game
type Factory func() Game

// Info is the static description of a game title
type Info struct {
	GameType      string                 `json:"gameType"`
	SchemaVersion int                    `json:"schemaVersion"`
	MaxPlayers    int                    `json:"maxPlayers"`
	TurnBased     bool                   `json:"turnBased"`
	TickRate      int                    `json:"tickRate"` // ticks per second, 0 for turn-based
	Config        map[string]interface{} `json:"config,omitempty"`
}

// Action is a player command. Two actions are the same when their canonical
// JSON encodings are equal.
type Action struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ActionResult reports the outcome of ApplyAction
type ActionResult struct {
	Success  bool        `json:"success"`
	Error    string      `json:"error,omitempty"`
	NewState interface{} `json:"newState,omitempty"`
}

// TickResult reports the outcome of Tick
type TickResult struct {
	StateChanged bool               `json:"stateChanged"`
	Events       []models.GameEvent `json:"events"`
	AutoActions  []PlayerAction     `json:"autoActions,omitempty"`
}

// PlayerAction is an action attributed to a player, used for auto actions and replay logs
type PlayerAction struct {
	PlayerID string `json:"playerId"`
	Action   Action `json:"action"`
	Tick     int64  `json:"tick"`
}

// End conditions
const (
	EndVictory = "victory"
	EndTimeout = "timeout"
	EndForfeit = "forfeit"
	EndDraw    = "draw"
)

// GameResult is available once a game is terminal
type GameResult struct {
	Winner       *string        `json:"winner"`
	Scores       map[string]int `json:"scores"`
	EndCondition string         `json:"endCondition"`
	Duration     time.Duration  `json:"duration"`
	FinalTick    int64          `json:"finalTick"`
}

// SerializedState is the portable form of a game's state. Hash is the hex
// SHA-256 of the canonical state encoding and is compared across hosts.
type SerializedState struct {
	GameType      string          `json:"gameType"`
	SchemaVersion int             `json:"schemaVersion"`
	Tick          int64           `json:"tick"`
	Seed          uint64          `json:"seed"`
	State         json.RawMessage `json:"state"`
	Hash          string          `json:"hash"`
	Timestamp     int64           `json:"timestamp"`
}

// ReplayFrame is a single recorded step of a match
type ReplayFrame struct {
	Tick      int64              `json:"tick"`
	Timestamp int64              `json:"timestamp"`
	State     json.RawMessage    `json:"state"`
	IsDelta   bool               `json:"isDelta"`
	Actions   []PlayerAction     `json:"actions"`
	Events    []models.GameEvent `json:"events"`
}

var (
	ErrNotInitialized = errors.New("game not initialized")
	ErrNotTerminal    = errors.New("game is not terminal")
	ErrPlayerCount    = errors.New("invalid player count")
	ErrHashMismatch   = errors.New("state hash mismatch")
)

// GameTypeMismatchError is returned by Deserialize when the payload belongs to
// another title. Hosts treat it as fatal.
type GameTypeMismatchError struct {
	Want string
	Got  string
}

func (e *GameTypeMismatchError) Error() string {
	return fmt.Sprintf("game type mismatch: want %s, got %s", e.Want, e.Got)
}

// SchemaVersionError is returned by Deserialize for an unsupported schema version
type SchemaVersionError struct {
	GameType string
	Want     int
	Got      int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("%s schema version %d not supported (want %d)", e.GameType, e.Got, e.Want)
}
