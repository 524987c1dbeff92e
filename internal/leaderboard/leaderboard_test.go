package leaderboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/internal/store"
	"github.com/XavierBriggs/fortuna/services/arena/internal/store/memstore"
	"github.com/XavierBriggs/fortuna/services/arena/internal/store/redisstore"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/ranking"
)

func newTestLeaderboard(t *testing.T, s store.Store, opts ...Option) *Leaderboard {
	t.Helper()
	l, err := New(context.Background(), s, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

// collector records every update delivered to a local subscriber
type collector struct {
	mu      sync.Mutex
	updates []models.LeaderboardUpdate
}

func (c *collector) add(u models.LeaderboardUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *collector) last() models.LeaderboardUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates[len(c.updates)-1]
}

func TestRatingRoundTrip(t *testing.T) {
	stores := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return memstore.New() },
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return redisstore.New(client, nil)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newTestLeaderboard(t, newStore(t))

			require.NoError(t, l.UpdateRating(ctx, "p2", 1400))
			require.NoError(t, l.UpdateRating(ctx, "p3", 1600))
			require.NoError(t, l.UpdateRating(ctx, "p1", 1500))

			rating, ok, err := l.PlayerRating(ctx, "p1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 1500, rating)

			tests := []struct {
				player string
				rank   int
			}{
				{"p3", 1},
				{"p1", 2},
				{"p2", 3},
			}
			for _, tt := range tests {
				rank, ok, err := l.PlayerRank(ctx, tt.player)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, tt.rank, rank, tt.player)
			}

			_, ok, err = l.PlayerRank(ctx, "nobody")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPlayerData_CorruptRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	l := newTestLeaderboard(t, s)

	require.NoError(t, s.HSet(ctx, KeyPlayers, "p1", "{not json"))
	player, err := l.PlayerData(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, player)

	want := ranking.NewPlayer("p2", "bravo")
	require.NoError(t, l.SetPlayerData(ctx, want))
	got, err := l.PlayerData(ctx, "p2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestTopPlayers_EnrichesEntries(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New())

	p := ranking.NewPlayer("p1", "alpha")
	p.GamesPlayed = 4
	p.Wins = 3
	p.WinRate = 0.75
	require.NoError(t, l.SetPlayerData(ctx, p))
	require.NoError(t, l.UpdateRating(ctx, "p1", 1950))
	require.NoError(t, l.UpdateRating(ctx, "p2", 1100))
	require.NoError(t, l.SetPlayerOnline(ctx, "p1"))
	require.NoError(t, l.SetPlayerInMatch(ctx, "p2", "match-7"))

	entries, err := l.TopPlayers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, models.LeaderboardEntry{
		Rank:        1,
		PlayerID:    "p1",
		BotName:     "alpha",
		Rating:      1950,
		Tier:        models.TierMaster,
		GamesPlayed: 4,
		WinRate:     0.75,
		IsOnline:    true,
	}, entries[0])

	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, "p2", entries[1].BotName)
	assert.Equal(t, models.TierSilver, entries[1].Tier)
	assert.True(t, entries[1].IsInMatch)
	assert.Equal(t, "match-7", entries[1].CurrentMatchID)

	entries, err = l.TopPlayers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = l.TopPlayers(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSnapshot_CacheKeyedOnCountAndInvalidated(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New(), WithCacheTTL(time.Minute))

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.UpdateRating(ctx, id, 1000+i*100))
	}

	one, err := l.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one.Entries, 1)
	assert.Equal(t, int64(3), one.TotalPlayers)

	three, err := l.Snapshot(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, three.Entries, 3, "a warm cache for another count is not reused")

	// Writes outside the leaderboard are not visible while cached
	require.NoError(t, l.store.ZAdd(ctx, KeyRatings, "d", 2000))
	cached, err := l.Snapshot(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "c", cached.Entries[0].PlayerID)

	// A rating write invalidates
	require.NoError(t, l.UpdateRating(ctx, "e", 2500))
	fresh, err := l.Snapshot(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "e", fresh.Entries[0].PlayerID)
	assert.Equal(t, "d", fresh.Entries[1].PlayerID)
	assert.Equal(t, int64(5), fresh.TotalPlayers)
}

// racingStore runs hook once, right after the first top-N read
type racingStore struct {
	*memstore.Store
	once sync.Once
	hook func()
}

func (s *racingStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]store.ScoredMember, error) {
	members, err := s.Store.ZRevRangeWithScores(ctx, key, start, stop)
	s.once.Do(s.hook)
	return members, err
}

func TestSnapshot_NotCachedAcrossConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	rs := &racingStore{Store: memstore.New()}
	l := newTestLeaderboard(t, rs, WithCacheTTL(time.Minute))

	require.NoError(t, l.UpdateRating(ctx, "a", 1200))
	rs.hook = func() { require.NoError(t, l.UpdateRating(ctx, "b", 1500)) }

	stale, err := l.Snapshot(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, stale.Entries, 1, "read before the write landed")

	fresh, err := l.Snapshot(ctx, 5)
	require.NoError(t, err)
	require.Len(t, fresh.Entries, 2)
	assert.Equal(t, "b", fresh.Entries[0].PlayerID)
}

func TestSnapshot_Expires(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New(), WithCacheTTL(50*time.Millisecond))

	require.NoError(t, l.UpdateRating(ctx, "a", 1200))
	_, err := l.Snapshot(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, l.store.ZAdd(ctx, KeyRatings, "b", 1300))
	assert.Eventually(t, func() bool {
		snap, err := l.Snapshot(ctx, 5)
		return err == nil && len(snap.Entries) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPlayerEntry(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New())

	entry, err := l.PlayerEntry(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, l.SetPlayerData(ctx, ranking.NewPlayer("p1", "alpha")))
	require.NoError(t, l.UpdateRating(ctx, "p1", 1200))
	require.NoError(t, l.SetPlayerOnline(ctx, "p1"))
	require.NoError(t, l.SetPlayerInMatch(ctx, "p1", "m1"))

	entry, err = l.PlayerEntry(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Rank)
	assert.Equal(t, "alpha", entry.BotName)
	assert.True(t, entry.IsOnline)
	assert.True(t, entry.IsInMatch)
	assert.Equal(t, "m1", entry.CurrentMatchID)

	require.NoError(t, l.ClearPlayerMatch(ctx, "p1"))
	require.NoError(t, l.SetPlayerOffline(ctx, "p1"))
	entry, err = l.PlayerEntry(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, entry.IsOnline)
	assert.False(t, entry.IsInMatch)
	assert.Empty(t, entry.CurrentMatchID)
}

func TestPresence_NotifiesLocallyOnly(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	local := newTestLeaderboard(t, s)
	remote := newTestLeaderboard(t, s)

	var localSeen, remoteSeen collector
	local.Subscribe(localSeen.add)
	remote.Subscribe(remoteSeen.add)

	require.NoError(t, local.UpdateRating(ctx, "p1", 1300))
	require.NoError(t, local.SetPlayerOnline(ctx, "p1"))

	require.Equal(t, 1, localSeen.count())
	assert.Equal(t, 0, remoteSeen.count())

	change := localSeen.last().Changes[0]
	assert.Equal(t, models.DirectionUnchanged, change.Direction)
	assert.Equal(t, 1, change.OldRank)
	assert.Equal(t, 1, change.NewRank)
	assert.Equal(t, 1300, change.NewRating)
}

func TestProcessMatchResult_FreshPlayers(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	l := newTestLeaderboard(t, memstore.New(), WithClock(func() time.Time { return at }))

	var seen collector
	l.Subscribe(seen.add)

	winner, loser := ranking.ProcessMatchResult(ranking.MatchOutcome{
		MatchID:      "m1",
		WinnerID:     "p1",
		LoserID:      "p2",
		WinnerRating: ranking.DefaultRating,
		LoserRating:  ranking.DefaultRating,
		At:           at,
	})
	assert.Equal(t, 1232, winner.NewRating)
	assert.Equal(t, 1168, loser.NewRating)

	update, err := l.ProcessMatchResult(ctx, []models.EloChange{winner, loser})
	require.NoError(t, err)

	assert.Equal(t, models.UpdateTypeLeaderboard, update.Type)
	assert.Equal(t, at.UnixMilli(), update.Timestamp)
	require.Len(t, update.Changes, 2)

	assert.Equal(t, models.RankChange{
		PlayerID:  "p1",
		BotName:   "p1",
		OldRank:   0,
		NewRank:   1,
		OldRating: 1200,
		NewRating: 1232,
		Direction: models.DirectionNew,
	}, update.Changes[0])
	assert.Equal(t, models.DirectionNew, update.Changes[1].Direction)
	assert.Equal(t, 2, update.Changes[1].NewRank)

	p1, err := l.PlayerData(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.Equal(t, 1232, p1.Rating)
	assert.Equal(t, 1, p1.GamesPlayed)
	assert.Equal(t, 1, p1.Wins)
	assert.Equal(t, 1, p1.CurrentStreak)
	assert.Equal(t, 1232, p1.PeakRating)

	p2, err := l.PlayerData(ctx, "p2")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, 1168, p2.Rating)
	assert.Equal(t, -1, p2.CurrentStreak)
	assert.Equal(t, 1200, p2.PeakRating)

	require.Equal(t, 1, seen.count())
	assert.Equal(t, update, seen.last())
}

func TestProcessMatchResult_AppliesEachChangeOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New())

	winner, loser := ranking.ProcessMatchResult(ranking.MatchOutcome{
		MatchID:      "m1",
		WinnerID:     "p1",
		LoserID:      "p2",
		WinnerRating: ranking.DefaultRating,
		LoserRating:  ranking.DefaultRating,
	})

	// a result that stopped after the winner's write
	_, err := l.ProcessMatchResult(ctx, []models.EloChange{winner})
	require.NoError(t, err)

	rated, err := l.MatchRated(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, rated, "marked once a call completes")

	update, err := l.ProcessMatchResult(ctx, []models.EloChange{winner, loser})
	require.NoError(t, err)
	require.Len(t, update.Changes, 2)
	assert.Equal(t, models.DirectionUnchanged, update.Changes[0].Direction)
	assert.Equal(t, 1232, update.Changes[0].NewRating)

	p1, err := l.PlayerData(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1232, p1.Rating)
	assert.Equal(t, 1, p1.GamesPlayed)

	p2, err := l.PlayerData(ctx, "p2")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, 1168, p2.Rating)
	assert.Equal(t, 1, p2.GamesPlayed)

	rated, err = l.MatchRated(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, rated)
}

func TestProcessMatchResult_RankMovement(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New())

	require.NoError(t, l.UpdateRating(ctx, "top", 1250))
	require.NoError(t, l.UpdateRating(ctx, "p1", 1200))
	require.NoError(t, l.UpdateRating(ctx, "p2", 1210))

	winner, loser := ranking.ProcessMatchResult(ranking.MatchOutcome{
		MatchID:      "m2",
		WinnerID:     "p1",
		LoserID:      "p2",
		WinnerRating: 1200,
		LoserRating:  1210,
		WinnerGames:  20,
		LoserGames:   20,
	})

	update, err := l.ProcessMatchResult(ctx, []models.EloChange{winner, loser})
	require.NoError(t, err)

	// p1 passes p2 but stays behind top; p2 was already pushed to third
	assert.Equal(t, 3, update.Changes[0].OldRank)
	assert.Equal(t, 2, update.Changes[0].NewRank)
	assert.Equal(t, models.DirectionUp, update.Changes[0].Direction)
	assert.Equal(t, 3, update.Changes[1].OldRank)
	assert.Equal(t, 3, update.Changes[1].NewRank)
	assert.Equal(t, models.DirectionUnchanged, update.Changes[1].Direction)
}

func TestDirection(t *testing.T) {
	tests := []struct {
		oldRank, newRank int
		want             string
	}{
		{0, 4, models.DirectionNew},
		{5, 2, models.DirectionUp},
		{2, 5, models.DirectionDown},
		{3, 3, models.DirectionUnchanged},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, direction(tt.oldRank, tt.newRank))
	}
}

func TestCrossInstanceDeliveredOncePerInstance(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	a := newTestLeaderboard(t, s)
	b := newTestLeaderboard(t, s)
	require.NotEqual(t, a.InstanceID(), b.InstanceID())

	var seenA, seenB collector
	a.Subscribe(seenA.add)
	b.Subscribe(seenB.add)

	winner, loser := ranking.ProcessMatchResult(ranking.MatchOutcome{
		MatchID: "m1", WinnerID: "p1", LoserID: "p2",
		WinnerRating: 1200, LoserRating: 1200,
	})
	update, err := a.ProcessMatchResult(ctx, []models.EloChange{winner, loser})
	require.NoError(t, err)

	assert.Equal(t, 1, seenA.count())
	require.Equal(t, 1, seenB.count())
	assert.Equal(t, update, seenB.last())
}

func TestMalformedPublishIgnored(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	l := newTestLeaderboard(t, s)

	var seen collector
	l.Subscribe(seen.add)

	require.NoError(t, s.Publish(ctx, UpdatesChannel, []byte("garbage")))
	assert.Equal(t, 0, seen.count())
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	l := newTestLeaderboard(t, memstore.New())

	var seen collector
	unsubscribe := l.Subscribe(seen.add)
	require.NoError(t, l.UpdateRating(ctx, "p1", 1200))
	require.NoError(t, l.SetPlayerOnline(ctx, "p1"))
	unsubscribe()
	unsubscribe()
	require.NoError(t, l.SetPlayerOffline(ctx, "p1"))

	assert.Equal(t, 1, seen.count())
}
