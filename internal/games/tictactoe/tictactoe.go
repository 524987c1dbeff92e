// Package tictactoe is the turn-based reference title
package tictactoe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/internal/gamekit"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

const (
	GameType      = "tictactoe"
	SchemaVersion = 1

	ActionPlace   = "place"
	ActionForfeit = "forfeit"

	StatusPlaying = "playing"
	StatusWon     = "won"
	StatusDraw    = "draw"
	StatusForfeit = "forfeit"
)

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// State is the full board state
type State struct {
	Board   [9]string `json:"board"` // player id or ""
	Players []string  `json:"players"`
	Turn    string    `json:"turn"`
	Moves   int       `json:"moves"`
	Winner  string    `json:"winner,omitempty"`
	Status  string    `json:"status"`
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
			TurnBased:     true,
		}),
	}
}

func (g *Game) Initialize(playerIDs []string, seed uint64) error {
	if len(playerIDs) != 2 {
		return fmt.Errorf("%w: tictactoe needs 2 players, got %d", contracts.ErrPlayerCount, len(playerIDs))
	}
	if err := g.Begin(playerIDs, seed); err != nil {
		return err
	}

	// the seed decides who moves first
	players := g.Players()
	first := players[g.Rand().IntN(2)]

	g.state = State{Players: players, Turn: first, Status: StatusPlaying}
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

// StateForPlayer returns the full state; tictactoe has no hidden information
func (g *Game) StateForPlayer(string) interface{} {
	return g.copyState()
}

func (g *Game) ValidActions(playerID string) []contracts.Action {
	if !g.Initialized() || g.IsTerminal() || !g.HasPlayer(playerID) {
		return nil
	}

	actions := []contracts.Action{{Type: ActionForfeit}}
	if playerID != g.state.Turn {
		return actions
	}
	for cell, owner := range g.state.Board {
		if owner == "" {
			actions = append(actions, PlaceAction(cell))
		}
	}
	return actions
}

func (g *Game) ValidateAction(playerID string, action contracts.Action) bool {
	return gamekit.ContainsAction(g.ValidActions(playerID), action)
}

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

	g.AdvanceTick()
	g.RecordAction(playerID, action)

	switch action.Type {
	case ActionForfeit:
		g.state.Status = StatusForfeit
		g.state.Winner = g.opponent(playerID)
		g.Emit("forfeit", nil, playerID)
		g.finish()

	case ActionPlace:
		cell := cellOf(action)
		g.state.Board[cell] = playerID
		g.state.Moves++
		g.Emit("move", map[string]interface{}{"cell": cell}, playerID)

		switch {
		case g.wins(playerID):
			g.state.Status = StatusWon
			g.state.Winner = playerID
			g.finish()
		case g.state.Moves == len(g.state.Board):
			g.state.Status = StatusDraw
			g.Emit("draw", nil, "")
			g.duration = g.Elapsed()
		default:
			g.state.Turn = g.opponent(playerID)
		}
	}

	return gamekit.Accept(g.copyState())
}

// Tick is a no-op, tictactoe only moves on actions
func (g *Game) Tick(time.Duration) contracts.TickResult {
	return gamekit.NoTick()
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
	for _, p := range g.state.Players {
		res.Scores[p] = 0
	}

	switch g.state.Status {
	case StatusDraw:
		res.EndCondition = contracts.EndDraw
	case StatusForfeit:
		res.EndCondition = contracts.EndForfeit
	default:
		res.EndCondition = contracts.EndVictory
	}
	if g.state.Winner != "" {
		winner := g.state.Winner
		res.Winner = &winner
		res.Scores[winner] = 1
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
		return fmt.Errorf("decoding tictactoe state: %w", err)
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

// PlaceAction is the action that claims a cell
func PlaceAction(cell int) contracts.Action {
	return contracts.Action{Type: ActionPlace, Params: map[string]interface{}{"cell": cell}}
}

func (g *Game) finish() {
	g.duration = g.Elapsed()
	if g.state.Winner == "" {
		return
	}
	g.Emit(models.EventTypeScore, map[string]interface{}{"scores": map[string]int{g.state.Winner: 1}}, g.state.Winner)
	g.Emit(models.EventTypeVictory, map[string]interface{}{"condition": g.state.Status}, g.state.Winner)
}

func (g *Game) wins(playerID string) bool {
	for _, line := range lines {
		if g.state.Board[line[0]] == playerID &&
			g.state.Board[line[1]] == playerID &&
			g.state.Board[line[2]] == playerID {
			return true
		}
	}
	return false
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
	return st
}

// cellOf reads the cell parameter; ValidateAction has already checked it
func cellOf(action contracts.Action) int {
	switch v := action.Params["cell"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return -1
}
