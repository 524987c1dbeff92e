package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/registry"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/ranking"
)

// finishTimeout bounds the post-match presence and result I/O
const finishTimeout = 30 * time.Second

var (
	ErrSessionNotFound = errors.New("match not found")
	ErrMatchOver       = errors.New("match is over")
)

// Broadcaster is the hub surface a session drives
type Broadcaster interface {
	InitMatch(matchID string)
	Broadcast(matchID string, state interface{}, events []models.GameEvent, highlights ...models.Highlight) (models.BroadcastFrame, error)
	EndMatch(matchID string, result interface{}) error
}

// Presence is the leaderboard surface a session keeps up to date
type Presence interface {
	PlayerData(ctx context.Context, playerID string) (*models.PlayerRating, error)
	SetPlayerData(ctx context.Context, player models.PlayerRating) error
	SetPlayerInMatch(ctx context.Context, playerID, matchID string) error
	ClearPlayerMatch(ctx context.Context, playerID string) error
}

// ResultPublisher receives the result of every finished match
type ResultPublisher interface {
	PublishResult(ctx context.Context, result models.MatchResultMessage) error
}

// StartRequest describes a match to host
type StartRequest struct {
	GameType string            `json:"gameType"`
	Players  []string          `json:"players"`
	BotNames map[string]string `json:"botNames,omitempty"`
	Seed     uint64            `json:"seed"`
}

// Manager hosts matches: it owns every live session and the loops of
// real-time titles
type Manager struct {
	registry *registry.Registry
	hub      Broadcaster
	presence Presence
	results  ResultPublisher
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager
func NewManager(reg *registry.Registry, hub Broadcaster, presence Presence, results ResultPublisher, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: reg,
		hub:      hub,
		presence: presence,
		results:  results,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start creates, initializes and announces a new match. Real-time titles
// start ticking immediately.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Session, error) {
	game, err := m.registry.New(req.GameType)
	if err != nil {
		return nil, err
	}
	if err := game.Initialize(req.Players, req.Seed); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", req.GameType, err)
	}

	for _, id := range req.Players {
		if err := m.ensurePlayer(ctx, id, req.BotNames[id]); err != nil {
			m.log.Warn("could not register player", zap.String("player_id", id), zap.Error(err))
		}
	}

	s := newSession(uuid.NewString(), game, req.Players, m)
	m.hub.InitMatch(s.id)
	if err := s.open(); err != nil {
		game.Destroy()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	for _, id := range req.Players {
		if err := m.presence.SetPlayerInMatch(ctx, id, s.id); err != nil {
			m.log.Warn("could not mark player in match", zap.String("player_id", id), zap.Error(err))
		}
	}

	if !s.info.TurnBased {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			s.Run(m.ctx)
		}()
	}

	m.log.Info("match started",
		zap.String("match_id", s.id),
		zap.String("game_type", req.GameType),
		zap.Strings("players", req.Players))
	return s, nil
}

// Get returns a live session
func (m *Manager) Get(matchID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[matchID]
	return s, ok
}

// Submit applies a player action to a live match
func (m *Manager) Submit(ctx context.Context, matchID, playerID string, action contracts.Action) (Outcome, error) {
	s, ok := m.Get(matchID)
	if !ok {
		return Outcome{}, ErrSessionNotFound
	}
	return s.Submit(ctx, playerID, action)
}

// Active lists live matches ordered by id
func (m *Manager) Active() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// Close stops every real-time loop and waits for them
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// ensurePlayer creates the rating record of a first-time player
func (m *Manager) ensurePlayer(ctx context.Context, playerID, botName string) error {
	existing, err := m.presence.PlayerData(ctx, playerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if botName == "" {
		botName = playerID
	}
	return m.presence.SetPlayerData(ctx, ranking.NewPlayer(playerID, botName))
}

// finished forgets a session and runs the post-match I/O outside its lock.
// The I/O outlives ctx: a caller that goes away after the final action must
// not lose the result.
func (m *Manager) finished(ctx context.Context, s *Session, result models.MatchResultMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	for _, id := range s.players {
		if err := m.presence.ClearPlayerMatch(ctx, id); err != nil {
			m.log.Warn("could not clear player match", zap.String("player_id", id), zap.Error(err))
		}
	}

	if m.results != nil {
		if err := m.results.PublishResult(ctx, result); err != nil {
			m.log.Error("failed to publish match result", zap.String("match_id", s.id), zap.Error(err))
		}
	}

	m.log.Info("match finished",
		zap.String("match_id", s.id),
		zap.String("end_condition", result.EndCondition),
		zap.String("winner", result.WinnerID),
		zap.Int64("final_tick", result.FinalTick))
}
