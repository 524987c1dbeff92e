// Package tug is the real-time reference title: two players pull a rope and
// the first to drag the marker past the threshold wins.
package tug

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/internal/gamekit"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

const (
	GameType      = "tug"
	SchemaVersion = 1

	ActionPull    = "pull"
	ActionForfeit = "forfeit"

	StatusPlaying = "playing"
	StatusWon     = "won"
	StatusTimeout = "timeout"
	StatusForfeit = "forfeit"

	TickRate = 10

	defaultThreshold = 10
	defaultMaxTicks  = 600
	maxStamina       = 5
	regenEvery       = 5 // ticks per recovered stamina point

	// Hidden marks a redacted value in a per-player view
	Hidden = -1
)

// State is the full rope state. Position < 0 favours the first seat.
type State struct {
	Players   []string       `json:"players"`
	Position  int            `json:"position"`
	Threshold int            `json:"threshold"`
	MaxTicks  int64          `json:"maxTicks"`
	Stamina   map[string]int `json:"stamina"`
	Pending   map[string]int `json:"pending"`
	Pulls     map[string]int `json:"pulls"`
	Status    string         `json:"status"`
	Winner    string         `json:"winner,omitempty"`
}

// Game implements contracts.Game
type Game struct {
	gamekit.Kit
	state    State
	duration time.Duration
}

// New returns an uninitialized game
func New() contracts.Game {
	return &Game{
		Kit: gamekit.New(contracts.Info{
			GameType:      GameType,
			SchemaVersion: SchemaVersion,
			MaxPlayers:    2,
			TurnBased:     false,
			TickRate:      TickRate,
			Config: map[string]interface{}{
				"threshold":  defaultThreshold,
				"maxTicks":   defaultMaxTicks,
				"maxStamina": maxStamina,
			},
		}),
	}
}

func (g *Game) Initialize(playerIDs []string, seed uint64) error {
	if len(playerIDs) != 2 {
		return fmt.Errorf("%w: tug needs 2 players, got %d", contracts.ErrPlayerCount, len(playerIDs))
	}
	if err := g.Begin(playerIDs, seed); err != nil {
		return err
	}

	players := g.Players()
	st := State{
		Players:   players,
		Threshold: defaultThreshold,
		MaxTicks:  defaultMaxTicks,
		Stamina:   make(map[string]int, 2),
		Pending:   make(map[string]int, 2),
		Pulls:     make(map[string]int, 2),
		Status:    StatusPlaying,
	}
	for _, p := range players {
		st.Stamina[p] = maxStamina - 1
		st.Pending[p] = 0
		st.Pulls[p] = 0
	}
	// one side starts with a better grip, decided by the seed
	st.Stamina[players[g.Rand().IntN(2)]] = maxStamina

	g.state = st
	g.duration = 0
	return nil
}

func (g *Game) Reset() error {
	if !g.Initialized() {
		return contracts.ErrNotInitialized
	}
	return g.Initialize(g.Players(), g.Seed())
}

func (g *Game) Destroy() {
	g.End()
	g.state = State{}
}

func (g *Game) State() interface{} {
	return g.copyState()
}

// StateForPlayer hides the opponent's stamina and queued pulls. The
// spectator view hides both players'.
func (g *Game) StateForPlayer(playerID string) interface{} {
	st := g.copyState()
	for _, p := range st.Players {
		if p == playerID {
			continue
		}
		st.Stamina[p] = Hidden
		st.Pending[p] = Hidden
	}
	return st
}

func (g *Game) ValidActions(playerID string) []contracts.Action {
	if !g.Initialized() || g.IsTerminal() || !g.HasPlayer(playerID) {
		return nil
	}

	actions := []contracts.Action{{Type: ActionForfeit}}
	if g.state.Stamina[playerID] > 0 {
		actions = append(actions, contracts.Action{Type: ActionPull})
	}
	return actions
}

func (g *Game) ValidateAction(playerID string, action contracts.Action) bool {
	return gamekit.ContainsAction(g.ValidActions(playerID), action)
}

// ApplyAction queues a pull for the next tick or forfeits immediately. A pull
// is logged in the replay frame of the tick that resolves it.
func (g *Game) ApplyAction(playerID string, action contracts.Action) contracts.ActionResult {
	if !g.Initialized() {
		return gamekit.Reject(contracts.ErrNotInitialized.Error())
	}
	if g.IsTerminal() {
		return gamekit.Reject("game is over")
	}
	if !g.ValidateAction(playerID, action) {
		return gamekit.Reject(fmt.Sprintf("invalid action %q for player %s", action.Type, playerID))
	}

	switch action.Type {
	case ActionPull:
		g.QueueAction(playerID, action)
		g.state.Stamina[playerID]--
		g.state.Pending[playerID]++
		g.Emit("pull", map[string]interface{}{"stamina": g.state.Stamina[playerID]}, playerID)
	case ActionForfeit:
		g.RecordAction(playerID, action)
		g.state.Status = StatusForfeit
		g.state.Winner = g.opponent(playerID)
		g.Emit("forfeit", nil, playerID)
		g.finish()
	}

	return gamekit.Accept(g.StateForPlayer(playerID))
}

// Tick resolves queued pulls, regenerates stamina and checks for an end
func (g *Game) Tick(time.Duration) contracts.TickResult {
	if !g.Initialized() || g.IsTerminal() {
		return contracts.TickResult{}
	}

	tick := g.AdvanceTick()
	first, second := g.state.Players[0], g.state.Players[1]

	moved := g.state.Pending[second] - g.state.Pending[first]
	for _, p := range g.state.Players {
		g.state.Pulls[p] += g.state.Pending[p]
		g.state.Pending[p] = 0
	}

	changed := moved != 0
	if changed {
		g.state.Position += moved
		g.Emit("rope_moved", map[string]interface{}{"position": g.state.Position, "by": moved}, "")
	}

	if tick%regenEvery == 0 {
		for _, p := range g.state.Players {
			if g.state.Stamina[p] < maxStamina {
				g.state.Stamina[p]++
				changed = true
			}
		}
	}

	switch {
	case g.state.Position <= -g.state.Threshold:
		g.state.Status = StatusWon
		g.state.Winner = first
		g.finish()
		changed = true
	case g.state.Position >= g.state.Threshold:
		g.state.Status = StatusWon
		g.state.Winner = second
		g.finish()
		changed = true
	case tick >= g.state.MaxTicks:
		g.state.Status = StatusTimeout
		switch {
		case g.state.Position < 0:
			g.state.Winner = first
		case g.state.Position > 0:
			g.state.Winner = second
		}
		g.Emit("timeout", map[string]interface{}{"position": g.state.Position}, "")
		g.finish()
		changed = true
	}

	return contracts.TickResult{StateChanged: changed, Events: g.DrainEvents()}
}

func (g *Game) IsTerminal() bool {
	return g.state.Status != "" && g.state.Status != StatusPlaying
}

func (g *Game) Result() (contracts.GameResult, error) {
	if !g.IsTerminal() {
		return contracts.GameResult{}, contracts.ErrNotTerminal
	}

	res := contracts.GameResult{
		Scores:    make(map[string]int, 2),
		Duration:  g.duration,
		FinalTick: g.CurrentTick(),
	}
	for p, n := range g.state.Pulls {
		res.Scores[p] = n
	}

	switch {
	case g.state.Status == StatusForfeit:
		res.EndCondition = contracts.EndForfeit
	case g.state.Status == StatusTimeout && g.state.Winner == "":
		res.EndCondition = contracts.EndDraw
	case g.state.Status == StatusTimeout:
		res.EndCondition = contracts.EndTimeout
	default:
		res.EndCondition = contracts.EndVictory
	}
	if g.state.Winner != "" {
		winner := g.state.Winner
		res.Winner = &winner
	}
	return res, nil
}

func (g *Game) Serialize() (contracts.SerializedState, error) {
	if !g.Initialized() {
		return contracts.SerializedState{}, contracts.ErrNotInitialized
	}
	return g.SerializeState(g.state)
}

func (g *Game) Deserialize(s contracts.SerializedState) error {
	raw, err := g.OpenSerialized(s)
	if err != nil {
		return err
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decoding tug state: %w", err)
	}
	if len(st.Players) != 2 {
		return fmt.Errorf("decoding tug state: %w", contracts.ErrPlayerCount)
	}

	g.state = st
	g.Resume(st.Players, s.Tick, s.Seed)
	return nil
}

func (g *Game) ReplayFrame() (contracts.ReplayFrame, error) {
	if !g.Initialized() {
		return contracts.ReplayFrame{}, contracts.ErrNotInitialized
	}
	return g.BuildReplayFrame(g.state)
}

func (g *Game) finish() {
	g.duration = g.Elapsed()
	if g.state.Winner == "" {
		return
	}
	g.Emit(models.EventTypeVictory, map[string]interface{}{"condition": g.state.Status}, g.state.Winner)
}

func (g *Game) opponent(playerID string) string {
	for _, p := range g.state.Players {
		if p != playerID {
			return p
		}
	}
	return ""
}

func (g *Game) copyState() State {
	st := g.state
	st.Players = append([]string(nil), g.state.Players...)
	st.Stamina = copyCounts(g.state.Stamina)
	st.Pending = copyCounts(g.state.Pending)
	st.Pulls = copyCounts(g.state.Pulls)
	return st
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
