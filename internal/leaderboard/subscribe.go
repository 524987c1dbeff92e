package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// Subscribe registers a local observer of leaderboard updates. Callbacks run
// on the publishing goroutine and must not block.
func (l *Leaderboard) Subscribe(fn func(models.LeaderboardUpdate)) (unsubscribe func()) {
	l.subsMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	subscribersGauge.Inc()
	l.subsMu.Unlock()

	return func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			subscribersGauge.Dec()
		}
	}
}

// Subscribers returns the number of registered local observers
func (l *Leaderboard) Subscribers() int {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()
	return len(l.subs)
}

// SetPlayerOnline marks a player connected
func (l *Leaderboard) SetPlayerOnline(ctx context.Context, playerID string) error {
	if err := l.store.SAdd(ctx, KeyOnline, playerID); err != nil {
		return fmt.Errorf("mark %s online: %w", playerID, err)
	}
	l.notifyStatusChange(ctx, playerID)
	return nil
}

// SetPlayerOffline marks a player disconnected
func (l *Leaderboard) SetPlayerOffline(ctx context.Context, playerID string) error {
	if err := l.store.SRem(ctx, KeyOnline, playerID); err != nil {
		return fmt.Errorf("mark %s offline: %w", playerID, err)
	}
	l.notifyStatusChange(ctx, playerID)
	return nil
}

// SetPlayerInMatch records the match a player is currently playing
func (l *Leaderboard) SetPlayerInMatch(ctx context.Context, playerID, matchID string) error {
	if err := l.store.HSet(ctx, KeyInMatch, playerID, matchID); err != nil {
		return fmt.Errorf("mark %s in match %s: %w", playerID, matchID, err)
	}
	l.notifyStatusChange(ctx, playerID)
	return nil
}

// ClearPlayerMatch records that a player left its match
func (l *Leaderboard) ClearPlayerMatch(ctx context.Context, playerID string) error {
	if err := l.store.HDel(ctx, KeyInMatch, playerID); err != nil {
		return fmt.Errorf("clear match of %s: %w", playerID, err)
	}
	l.notifyStatusChange(ctx, playerID)
	return nil
}

// notifyStatusChange pushes a presence change to local subscribers only
func (l *Leaderboard) notifyStatusChange(ctx context.Context, playerID string) {
	entry, err := l.PlayerEntry(ctx, playerID)
	if err != nil {
		l.log.Debug("presence change without entry", zap.String("player_id", playerID), zap.Error(err))
		return
	}

	change := models.RankChange{
		PlayerID:  playerID,
		BotName:   playerID,
		Direction: models.DirectionUnchanged,
	}
	if entry != nil {
		change.BotName = entry.BotName
		change.OldRank = entry.Rank
		change.NewRank = entry.Rank
		change.OldRating = entry.Rating
		change.NewRating = entry.Rating
	}

	l.deliver(models.LeaderboardUpdate{
		Type:      models.UpdateTypeLeaderboard,
		Changes:   []models.RankChange{change},
		Timestamp: l.now().UnixMilli(),
	})
}

// handleRemote republishes updates received from other instances locally
func (l *Leaderboard) handleRemote(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		malformedTotal.WithLabelValues("pubsub").Inc()
		l.log.Warn("discarding malformed leaderboard update", zap.Error(err))
		return
	}
	if env.Origin == l.instanceID {
		return
	}

	updatesReceived.Inc()
	l.deliver(env.Update)
}

// deliver calls every local subscriber with its own copy of update
func (l *Leaderboard) deliver(update models.LeaderboardUpdate) {
	l.subsMu.RLock()
	fns := make([]func(models.LeaderboardUpdate), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.subsMu.RUnlock()

	for _, fn := range fns {
		u := update
		u.Changes = append([]models.RankChange(nil), update.Changes...)
		fn(u)
	}
}
