package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/XavierBriggs/fortuna/services/arena/internal/store"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/ranking"
)

// Store keys
const (
	KeyRatings = "leaderboard:ratings"
	KeyPlayers = "leaderboard:players"
	KeyOnline  = "leaderboard:online"
	KeyInMatch = "leaderboard:inmatch"
	// Members are "matchID/playerID" for every applied rating change
	KeyApplied = "leaderboard:applied"
	// Members are the ids of fully rated matches
	KeyRated = "leaderboard:rated"

	UpdatesChannel = "leaderboard:updates"
)

const (
	defaultCacheTTL  = 5 * time.Second
	snapshotCacheLen = 16
	enrichWorkers    = 8
)

// envelope wraps published updates so an instance can skip its own
type envelope struct {
	Origin string                   `json:"origin"`
	Update models.LeaderboardUpdate `json:"update"`
}

// Option customises a Leaderboard
type Option func(*Leaderboard)

// WithLogger sets the leaderboard logger
func WithLogger(log *zap.Logger) Option {
	return func(l *Leaderboard) { l.log = log }
}

// WithCacheTTL sets how long snapshots are served from cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Leaderboard) { l.cacheTTL = ttl }
}

// WithClock replaces the time source used for update timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Leaderboard) { l.now = now }
}

// WithInstanceID overrides the generated origin id of this instance
func WithInstanceID(id string) Option {
	return func(l *Leaderboard) { l.instanceID = id }
}

// Leaderboard ranks players by rating and tracks their presence on top of a
// store.Store. Instances sharing a store converge through UpdatesChannel.
type Leaderboard struct {
	store      store.Store
	log        *zap.Logger
	now        func() time.Time
	instanceID string
	cacheTTL   time.Duration
	cache      *expirable.LRU[int, models.LeaderboardSnapshot]

	// epoch is bumped on every invalidation; a snapshot read across a
	// bump is not cached
	cacheMu sync.Mutex
	epoch   uint64

	subsMu  sync.RWMutex
	subs    map[uint64]func(models.LeaderboardUpdate)
	nextSub uint64

	unsubscribe func()
}

// New creates a Leaderboard and subscribes it to UpdatesChannel
func New(ctx context.Context, s store.Store, opts ...Option) (*Leaderboard, error) {
	l := &Leaderboard{
		store:      s,
		log:        zap.NewNop(),
		now:        time.Now,
		instanceID: uuid.NewString(),
		cacheTTL:   defaultCacheTTL,
		subs:       make(map[uint64]func(models.LeaderboardUpdate)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cache = expirable.NewLRU[int, models.LeaderboardSnapshot](snapshotCacheLen, nil, l.cacheTTL)

	unsubscribe, err := s.Subscribe(ctx, UpdatesChannel, l.handleRemote)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", UpdatesChannel, err)
	}
	l.unsubscribe = unsubscribe

	return l, nil
}

// InstanceID returns the origin id stamped on this instance's publishes
func (l *Leaderboard) InstanceID() string {
	return l.instanceID
}

// Close drops the channel subscription
func (l *Leaderboard) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
}

// UpdateRating writes a player's rating and invalidates cached snapshots
func (l *Leaderboard) UpdateRating(ctx context.Context, playerID string, rating int) error {
	if err := l.store.ZAdd(ctx, KeyRatings, playerID, float64(rating)); err != nil {
		return fmt.Errorf("update rating of %s: %w", playerID, err)
	}
	l.invalidate()
	return nil
}

func (l *Leaderboard) invalidate() {
	l.cacheMu.Lock()
	l.epoch++
	l.cache.Purge()
	l.cacheMu.Unlock()
}

func (l *Leaderboard) currentEpoch() uint64 {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	return l.epoch
}

// PlayerRank returns the 1-indexed descending rank of a player
func (l *Leaderboard) PlayerRank(ctx context.Context, playerID string) (int, bool, error) {
	rank, ok, err := l.store.ZRevRank(ctx, KeyRatings, playerID)
	if err != nil || !ok {
		return 0, false, err
	}
	return int(rank) + 1, true, nil
}

// PlayerRating returns the ranked rating of a player
func (l *Leaderboard) PlayerRating(ctx context.Context, playerID string) (int, bool, error) {
	score, ok, err := l.store.ZScore(ctx, KeyRatings, playerID)
	if err != nil || !ok {
		return 0, false, err
	}
	return int(score), true, nil
}

// SetPlayerData stores the full rating record of a player
func (l *Leaderboard) SetPlayerData(ctx context.Context, player models.PlayerRating) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", player.PlayerID, err)
	}
	if err := l.store.HSet(ctx, KeyPlayers, player.PlayerID, string(data)); err != nil {
		return fmt.Errorf("store player %s: %w", player.PlayerID, err)
	}
	return nil
}

// PlayerData loads the rating record of a player. A corrupt record is
// logged and reported as absent.
func (l *Leaderboard) PlayerData(ctx context.Context, playerID string) (*models.PlayerRating, error) {
	raw, ok, err := l.store.HGet(ctx, KeyPlayers, playerID)
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", playerID, err)
	}
	if !ok {
		return nil, nil
	}

	var player models.PlayerRating
	if err := json.Unmarshal([]byte(raw), &player); err != nil {
		malformedTotal.WithLabelValues("player_data").Inc()
		l.log.Warn("discarding corrupt player record", zap.String("player_id", playerID), zap.Error(err))
		return nil, nil
	}
	return &player, nil
}

// TopPlayers returns the n highest rated players with metadata and presence
func (l *Leaderboard) TopPlayers(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		return []models.LeaderboardEntry{}, nil
	}

	members, err := l.store.ZRevRangeWithScores(ctx, KeyRatings, 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("read top %d: %w", n, err)
	}

	online, err := l.store.SMembers(ctx, KeyOnline)
	if err != nil {
		return nil, fmt.Errorf("read online players: %w", err)
	}
	isOnline := make(map[string]bool, len(online))
	for _, id := range online {
		isOnline[id] = true
	}

	entries := make([]models.LeaderboardEntry, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichWorkers)
	for i, m := range members {
		g.Go(func() error {
			data, err := l.PlayerData(gctx, m.Member)
			if err != nil {
				return err
			}
			matchID, inMatch, err := l.store.HGet(gctx, KeyInMatch, m.Member)
			if err != nil {
				return fmt.Errorf("read match of %s: %w", m.Member, err)
			}
			entries[i] = buildEntry(i+1, m.Member, int(m.Score), data, isOnline[m.Member], matchID, inMatch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Snapshot returns the top n players, served from a short-lived cache
func (l *Leaderboard) Snapshot(ctx context.Context, n int) (models.LeaderboardSnapshot, error) {
	if snap, ok := l.cache.Get(n); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return snap, nil
	}
	cacheRequests.WithLabelValues("miss").Inc()
	epoch := l.currentEpoch()

	entries, err := l.TopPlayers(ctx, n)
	if err != nil {
		return models.LeaderboardSnapshot{}, err
	}
	total, err := l.store.ZCard(ctx, KeyRatings)
	if err != nil {
		return models.LeaderboardSnapshot{}, fmt.Errorf("count players: %w", err)
	}

	snap := models.LeaderboardSnapshot{
		Entries:      entries,
		TotalPlayers: total,
		LastUpdated:  l.now().UnixMilli(),
	}
	l.cacheMu.Lock()
	if l.epoch == epoch {
		l.cache.Add(n, snap)
	}
	l.cacheMu.Unlock()
	return snap, nil
}

// PlayerEntry assembles one leaderboard row, or nil when the player is unranked
func (l *Leaderboard) PlayerEntry(ctx context.Context, playerID string) (*models.LeaderboardEntry, error) {
	var (
		rank, rating    int
		ranked, rated   bool
		data            *models.PlayerRating
		online, inMatch bool
		matchID         string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rank, ranked, err = l.PlayerRank(gctx, playerID)
		return err
	})
	g.Go(func() (err error) {
		rating, rated, err = l.PlayerRating(gctx, playerID)
		return err
	})
	g.Go(func() (err error) {
		data, err = l.PlayerData(gctx, playerID)
		return err
	})
	g.Go(func() (err error) {
		online, err = l.store.SIsMember(gctx, KeyOnline, playerID)
		return err
	})
	g.Go(func() (err error) {
		matchID, inMatch, err = l.store.HGet(gctx, KeyInMatch, playerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read entry of %s: %w", playerID, err)
	}

	if !ranked || !rated {
		return nil, nil
	}

	entry := buildEntry(rank, playerID, rating, data, online, matchID, inMatch)
	return &entry, nil
}

// MatchRated reports whether every change of a match has been applied
func (l *Leaderboard) MatchRated(ctx context.Context, matchID string) (bool, error) {
	if matchID == "" {
		return false, nil
	}
	rated, err := l.store.SIsMember(ctx, KeyRated, matchID)
	if err != nil {
		return false, fmt.Errorf("check rated %s: %w", matchID, err)
	}
	return rated, nil
}

// ProcessMatchResult applies the rating changes of a finished match, records
// how each player moved and publishes the update to every instance. A change
// already applied for its match and player is not applied again, so a
// partly applied result can be retried.
func (l *Leaderboard) ProcessMatchResult(ctx context.Context, changes []models.EloChange) (models.LeaderboardUpdate, error) {
	update := models.LeaderboardUpdate{
		Type:      models.UpdateTypeLeaderboard,
		Changes:   make([]models.RankChange, 0, len(changes)),
		Timestamp: l.now().UnixMilli(),
	}

	for _, change := range changes {
		rc, err := l.applyChange(ctx, change)
		if err != nil {
			return models.LeaderboardUpdate{}, err
		}
		update.Changes = append(update.Changes, rc)
	}

	if len(changes) > 0 && changes[0].MatchID != "" {
		if err := l.store.SAdd(ctx, KeyRated, changes[0].MatchID); err != nil {
			return models.LeaderboardUpdate{}, fmt.Errorf("mark %s rated: %w", changes[0].MatchID, err)
		}
	}

	payload, err := json.Marshal(envelope{Origin: l.instanceID, Update: update})
	if err != nil {
		return models.LeaderboardUpdate{}, fmt.Errorf("encode leaderboard update: %w", err)
	}
	if err := l.store.Publish(ctx, UpdatesChannel, payload); err != nil {
		// Other instances catch up on their next snapshot read
		l.log.Warn("failed to publish leaderboard update", zap.Error(err))
	} else {
		updatesPublished.Inc()
	}

	l.deliver(update)
	return update, nil
}

func (l *Leaderboard) applyChange(ctx context.Context, change models.EloChange) (models.RankChange, error) {
	oldRank, _, err := l.PlayerRank(ctx, change.PlayerID)
	if err != nil {
		return models.RankChange{}, fmt.Errorf("rank of %s: %w", change.PlayerID, err)
	}

	mark := change.MatchID + "/" + change.PlayerID
	if change.MatchID != "" {
		applied, err := l.store.SIsMember(ctx, KeyApplied, mark)
		if err != nil {
			return models.RankChange{}, fmt.Errorf("check applied %s: %w", mark, err)
		}
		if applied {
			return l.unchangedRank(ctx, change.PlayerID, oldRank)
		}
	}

	newRating := ranking.ClampRating(change.NewRating)
	if err := l.UpdateRating(ctx, change.PlayerID, newRating); err != nil {
		return models.RankChange{}, err
	}

	player, err := l.PlayerData(ctx, change.PlayerID)
	if err != nil {
		return models.RankChange{}, err
	}
	if player == nil {
		p := ranking.NewPlayer(change.PlayerID, change.PlayerID)
		p.Rating = change.OldRating
		p.PeakRating = change.OldRating
		player = &p
	}
	updated := ranking.ApplyChange(*player, change)
	if err := l.SetPlayerData(ctx, updated); err != nil {
		return models.RankChange{}, err
	}
	if change.MatchID != "" {
		if err := l.store.SAdd(ctx, KeyApplied, mark); err != nil {
			return models.RankChange{}, fmt.Errorf("mark applied %s: %w", mark, err)
		}
	}

	newRank, _, err := l.PlayerRank(ctx, change.PlayerID)
	if err != nil {
		return models.RankChange{}, fmt.Errorf("rank of %s: %w", change.PlayerID, err)
	}

	return models.RankChange{
		PlayerID:  change.PlayerID,
		BotName:   updated.BotName,
		OldRank:   oldRank,
		NewRank:   newRank,
		OldRating: change.OldRating,
		NewRating: newRating,
		Direction: direction(oldRank, newRank),
	}, nil
}

// unchangedRank describes a player whose change was applied earlier
func (l *Leaderboard) unchangedRank(ctx context.Context, playerID string, rank int) (models.RankChange, error) {
	rating, _, err := l.PlayerRating(ctx, playerID)
	if err != nil {
		return models.RankChange{}, err
	}
	botName := playerID
	if data, err := l.PlayerData(ctx, playerID); err == nil && data != nil {
		botName = data.BotName
	}
	return models.RankChange{
		PlayerID:  playerID,
		BotName:   botName,
		OldRank:   rank,
		NewRank:   rank,
		OldRating: rating,
		NewRating: rating,
		Direction: models.DirectionUnchanged,
	}, nil
}

// direction compares 1-indexed ranks; 0 means unranked
func direction(oldRank, newRank int) string {
	switch {
	case oldRank == 0:
		return models.DirectionNew
	case newRank < oldRank:
		return models.DirectionUp
	case newRank > oldRank:
		return models.DirectionDown
	default:
		return models.DirectionUnchanged
	}
}

func buildEntry(rank int, playerID string, rating int, data *models.PlayerRating, online bool, matchID string, inMatch bool) models.LeaderboardEntry {
	entry := models.LeaderboardEntry{
		Rank:      rank,
		PlayerID:  playerID,
		BotName:   playerID,
		Rating:    rating,
		Tier:      ranking.RankTier(rating),
		IsOnline:  online,
		IsInMatch: inMatch,
	}
	if inMatch {
		entry.CurrentMatchID = matchID
	}
	if data != nil {
		entry.BotName = data.BotName
		entry.GamesPlayed = data.GamesPlayed
		entry.WinRate = data.WinRate
	}
	return entry
}
