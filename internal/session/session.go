package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/gamekit"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// Outcome is what a submitted action did
type Outcome struct {
	Result contracts.ActionResult `json:"result"`
	Tick   int64                  `json:"tick,omitempty"`
	Ended  bool                   `json:"ended"`
}

// Summary describes a live match
type Summary struct {
	MatchID   string   `json:"matchId"`
	GameType  string   `json:"gameType"`
	Players   []string `json:"players"`
	TurnBased bool     `json:"turnBased"`
	StartedAt int64    `json:"startedAt"`
}

// View is a player's (or a spectator's) look at a match
type View struct {
	MatchID      string             `json:"matchId"`
	GameType     string             `json:"gameType"`
	Tick         int64              `json:"tick"`
	Hash         string             `json:"hash"`
	State        interface{}        `json:"state"`
	ValidActions []contracts.Action `json:"validActions,omitempty"`
}

// Session is one hosted match. Every game call is serialized by mu; the
// hub is driven from inside the lock, store I/O happens after it.
type Session struct {
	id        string
	game      contracts.Game
	info      contracts.Info
	players   []string
	manager   *Manager
	log       *zap.Logger
	startedAt time.Time

	mu    sync.Mutex
	ended bool
}

func newSession(id string, game contracts.Game, players []string, m *Manager) *Session {
	return &Session{
		id:        id,
		game:      game,
		info:      game.Info(),
		players:   append([]string(nil), players...),
		manager:   m,
		log:       m.log.With(zap.String("match_id", id)),
		startedAt: time.Now(),
	}
}

// ID returns the match id
func (s *Session) ID() string {
	return s.id
}

// Summary describes the session
func (s *Session) Summary() Summary {
	return Summary{
		MatchID:   s.id,
		GameType:  s.info.GameType,
		Players:   append([]string(nil), s.players...),
		TurnBased: s.info.TurnBased,
		StartedAt: s.startedAt.UnixMilli(),
	}
}

// open broadcasts the initial state
func (s *Session) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.manager.hub.Broadcast(s.id, s.game.StateForPlayer(""), s.game.DrainEvents())
	if err != nil {
		return fmt.Errorf("announce match %s: %w", s.id, err)
	}
	return nil
}

// Submit applies one player action. Rejected actions are reported in the
// outcome, never as an error.
func (s *Session) Submit(ctx context.Context, playerID string, action contracts.Action) (Outcome, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return Outcome{}, ErrMatchOver
	}

	res := s.game.ApplyAction(playerID, action)
	events := s.game.DrainEvents()
	if !res.Success {
		s.mu.Unlock()
		return Outcome{Result: res}, nil
	}
	// The host returns its own view instead
	res.NewState = nil

	frame, err := s.broadcastLocked(events)
	result, ended := s.checkTerminalLocked()
	s.mu.Unlock()

	if err != nil {
		return Outcome{}, err
	}
	if ended {
		s.manager.finished(ctx, s, result)
	}
	return Outcome{Result: res, Tick: frame.Tick, Ended: ended}, nil
}

// Run advances a real-time match at its tick rate until it ends or ctx is done
func (s *Session) Run(ctx context.Context) {
	interval := gamekit.TickInterval(s.info.TickRate)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.Step(ctx, interval); done {
				return
			}
		}
	}
}

// Step advances the match by one tick of dt. It reports whether the match
// is over.
func (s *Session) Step(ctx context.Context, dt time.Duration) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return true
	}

	tick := s.game.Tick(dt)
	events := append(tick.Events, s.game.DrainEvents()...)

	var err error
	if tick.StateChanged || len(events) > 0 {
		_, err = s.broadcastLocked(events)
	}
	result, ended := s.checkTerminalLocked()
	s.mu.Unlock()

	if err != nil {
		s.log.Error("tick broadcast failed", zap.Error(err))
	}
	if ended {
		s.manager.finished(ctx, s, result)
	}
	return ended
}

// View returns the state seen by playerID, or the spectator view when
// playerID is empty
func (s *Session) View(playerID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	serialized, err := s.game.Serialize()
	if err != nil {
		return View{}, err
	}

	v := View{
		MatchID:  s.id,
		GameType: s.info.GameType,
		Tick:     serialized.Tick,
		Hash:     serialized.Hash,
		State:    s.game.StateForPlayer(playerID),
	}
	if playerID != "" {
		v.ValidActions = s.game.ValidActions(playerID)
	}
	return v, nil
}

func (s *Session) broadcastLocked(events []models.GameEvent) (models.BroadcastFrame, error) {
	frame, err := s.manager.hub.Broadcast(s.id, s.game.StateForPlayer(""), events, highlightsFor(events)...)
	if err != nil {
		return models.BroadcastFrame{}, fmt.Errorf("broadcast match %s: %w", s.id, err)
	}
	return frame, nil
}

// checkTerminalLocked ends the match on the hub once the game is terminal
func (s *Session) checkTerminalLocked() (models.MatchResultMessage, bool) {
	if !s.game.IsTerminal() {
		return models.MatchResultMessage{}, false
	}

	result, err := s.game.Result()
	if err != nil {
		if !errors.Is(err, contracts.ErrNotTerminal) {
			s.log.Error("terminal game without result", zap.Error(err))
		}
		return models.MatchResultMessage{}, false
	}

	s.ended = true
	if err := s.manager.hub.EndMatch(s.id, result); err != nil {
		s.log.Warn("end match", zap.Error(err))
	}
	s.game.Destroy()

	return resultMessage(s.id, s.info.GameType, s.players, result), true
}

// resultMessage flattens a game result for the results stream. Only
// two-player decisive games get a loser.
func resultMessage(matchID, gameType string, players []string, r contracts.GameResult) models.MatchResultMessage {
	msg := models.MatchResultMessage{
		MatchID:      matchID,
		GameType:     gameType,
		Players:      append([]string(nil), players...),
		EndCondition: r.EndCondition,
		Scores:       r.Scores,
		DurationMs:   r.Duration.Milliseconds(),
		FinalTick:    r.FinalTick,
	}
	if r.Winner == nil {
		return msg
	}

	msg.WinnerID = *r.Winner
	if len(players) == 2 {
		for _, p := range players {
			if p != msg.WinnerID {
				msg.LoserID = p
			}
		}
	}
	return msg
}

// highlightsFor marks decisive moments for high-quality spectators
func highlightsFor(events []models.GameEvent) []models.Highlight {
	var out []models.Highlight
	for _, e := range events {
		var description string
		switch e.Type {
		case models.EventTypeVictory:
			description = fmt.Sprintf("%s wins", e.PlayerID)
		case "forfeit":
			description = fmt.Sprintf("%s forfeits", e.PlayerID)
		default:
			continue
		}
		out = append(out, models.Highlight{
			Type:        e.Type,
			Tick:        e.Tick,
			Description: description,
			Data:        e.Data,
		})
	}
	return out
}
