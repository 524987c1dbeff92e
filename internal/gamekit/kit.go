// Package gamekit is the shared helper game titles embed to satisfy the
// bookkeeping half of contracts.Game: tick counting, the per-tick event log,
// seeded randomness, hashing and replay frames.
package gamekit

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/statetree"
)

// Kit holds the title-independent part of a game's state
type Kit struct {
	info        contracts.Info
	players     []string
	seed        uint64
	rng         *rand.Rand
	tick        int64
	initialized bool
	startedAt   time.Time
	now         func() time.Time

	// pending holds events not yet drained by the host
	pending []models.GameEvent
	// tickEvents and tickActions hold everything recorded during the current tick
	tickEvents  []models.GameEvent
	tickActions []contracts.PlayerAction
	// queued holds actions waiting for the next tick to take effect
	queued []contracts.PlayerAction
}

// New returns a kit for a title
func New(info contracts.Info) Kit {
	return Kit{info: info, now: time.Now}
}

// SetClock replaces the time source used for timestamps
func (k *Kit) SetClock(now func() time.Time) {
	k.now = now
}

// Info returns the title description
func (k *Kit) Info() contracts.Info {
	return k.info
}

// Begin resets the kit for a new match
func (k *Kit) Begin(playerIDs []string, seed uint64) error {
	if len(playerIDs) == 0 || (k.info.MaxPlayers > 0 && len(playerIDs) > k.info.MaxPlayers) {
		return fmt.Errorf("%w: %d players for %s (max %d)", contracts.ErrPlayerCount, len(playerIDs), k.info.GameType, k.info.MaxPlayers)
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, id := range playerIDs {
		if id == "" || seen[id] {
			return fmt.Errorf("%w: duplicate or empty player id %q", contracts.ErrPlayerCount, id)
		}
		seen[id] = true
	}

	k.players = append([]string(nil), playerIDs...)
	k.seed = seed
	k.rng = newRand(seed)
	k.tick = 0
	k.initialized = true
	k.startedAt = k.clock()
	k.pending = nil
	k.tickEvents = nil
	k.tickActions = nil
	k.queued = nil
	return nil
}

// Restart re-runs Begin with the current players and seed
func (k *Kit) Restart() error {
	if !k.initialized {
		return contracts.ErrNotInitialized
	}
	return k.Begin(k.players, k.seed)
}

// End discards everything
func (k *Kit) End() {
	k.players = nil
	k.rng = nil
	k.tick = 0
	k.initialized = false
	k.pending = nil
	k.tickEvents = nil
	k.tickActions = nil
	k.queued = nil
}

// Initialized reports whether Begin has run since the last End
func (k *Kit) Initialized() bool {
	return k.initialized
}

// Players returns the match's player ids in seat order
func (k *Kit) Players() []string {
	return append([]string(nil), k.players...)
}

// HasPlayer reports whether id is seated in the match
func (k *Kit) HasPlayer(id string) bool {
	for _, p := range k.players {
		if p == id {
			return true
		}
	}
	return false
}

// Seed returns the seed the match was started with
func (k *Kit) Seed() uint64 {
	return k.seed
}

// Rand returns the match's deterministic random source
func (k *Kit) Rand() *rand.Rand {
	return k.rng
}

// CurrentTick returns the current tick
func (k *Kit) CurrentTick() int64 {
	return k.tick
}

// Elapsed returns the time since Begin
func (k *Kit) Elapsed() time.Duration {
	return k.clock().Sub(k.startedAt)
}

// AdvanceTick moves to the next tick. Events the host did not drain during
// the previous tick are dropped. Queued actions become the new tick's actions.
func (k *Kit) AdvanceTick() int64 {
	k.tick++
	k.pending = nil
	k.tickEvents = nil
	k.tickActions = nil
	for _, a := range k.queued {
		a.Tick = k.tick
		k.tickActions = append(k.tickActions, a)
	}
	k.queued = nil
	return k.tick
}

// Emit appends an event to the current tick's log
func (k *Kit) Emit(eventType string, data map[string]interface{}, playerID string) models.GameEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	ev := models.GameEvent{
		Type:      eventType,
		Tick:      k.tick,
		Timestamp: k.clock().UnixMilli(),
		PlayerID:  playerID,
		Data:      data,
	}
	k.pending = append(k.pending, ev)
	k.tickEvents = append(k.tickEvents, ev)
	return ev
}

// RecordAction logs an applied action for the replay frame of the current tick
func (k *Kit) RecordAction(playerID string, action contracts.Action) {
	k.tickActions = append(k.tickActions, contracts.PlayerAction{PlayerID: playerID, Action: action, Tick: k.tick})
}

// QueueAction logs an action that takes effect on the next tick. It shows up
// in the replay frame of that tick.
func (k *Kit) QueueAction(playerID string, action contracts.Action) {
	k.queued = append(k.queued, contracts.PlayerAction{PlayerID: playerID, Action: action, Tick: k.tick + 1})
}

// DrainEvents returns and clears the undrained events
func (k *Kit) DrainEvents() []models.GameEvent {
	out := k.pending
	k.pending = nil
	if out == nil {
		out = []models.GameEvent{}
	}
	return out
}

// SerializeState builds the portable form of state at the current tick
func (k *Kit) SerializeState(state interface{}) (contracts.SerializedState, error) {
	v, err := statetree.FromAny(state)
	if err != nil {
		return contracts.SerializedState{}, fmt.Errorf("serializing %s: %w", k.info.GameType, err)
	}

	return contracts.SerializedState{
		GameType:      k.info.GameType,
		SchemaVersion: k.info.SchemaVersion,
		Tick:          k.tick,
		Seed:          k.seed,
		State:         v.Canonical(),
		Hash:          v.Hash(),
		Timestamp:     k.clock().UnixMilli(),
	}, nil
}

// OpenSerialized validates a serialized payload against the title and returns
// its state document. A game type mismatch is a *contracts.GameTypeMismatchError.
func (k *Kit) OpenSerialized(s contracts.SerializedState) (json.RawMessage, error) {
	if s.GameType != k.info.GameType {
		return nil, &contracts.GameTypeMismatchError{Want: k.info.GameType, Got: s.GameType}
	}
	if s.SchemaVersion != k.info.SchemaVersion {
		return nil, &contracts.SchemaVersionError{GameType: k.info.GameType, Want: k.info.SchemaVersion, Got: s.SchemaVersion}
	}

	v, err := statetree.Parse(s.State)
	if err != nil {
		return nil, fmt.Errorf("deserializing %s: %w", k.info.GameType, err)
	}
	if s.Hash != "" && v.Hash() != s.Hash {
		return nil, fmt.Errorf("deserializing %s at tick %d: %w", k.info.GameType, s.Tick, contracts.ErrHashMismatch)
	}
	return v.Canonical(), nil
}

// Resume adopts the players, tick and seed of a deserialized payload. The
// random source restarts from the seed; its position at serialization time
// is not carried over.
func (k *Kit) Resume(playerIDs []string, tick int64, seed uint64) {
	k.players = append([]string(nil), playerIDs...)
	k.tick = tick
	k.seed = seed
	k.rng = newRand(seed)
	k.initialized = true
	k.pending = nil
	k.tickEvents = nil
	k.tickActions = nil
	k.queued = nil
}

// BuildReplayFrame captures state plus everything recorded in the current tick
func (k *Kit) BuildReplayFrame(state interface{}) (contracts.ReplayFrame, error) {
	v, err := statetree.FromAny(state)
	if err != nil {
		return contracts.ReplayFrame{}, fmt.Errorf("replay frame for %s: %w", k.info.GameType, err)
	}

	return contracts.ReplayFrame{
		Tick:      k.tick,
		Timestamp: k.clock().UnixMilli(),
		State:     v.Canonical(),
		IsDelta:   false,
		Actions:   append([]contracts.PlayerAction{}, k.tickActions...),
		Events:    append([]models.GameEvent{}, k.tickEvents...),
	}, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (k *Kit) clock() time.Time {
	if k.now == nil {
		return time.Now()
	}
	return k.now()
}
