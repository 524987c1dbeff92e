package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/ranking"
)

// Ratings is the leaderboard surface the processor writes through
type Ratings interface {
	PlayerData(ctx context.Context, playerID string) (*models.PlayerRating, error)
	ProcessMatchResult(ctx context.Context, changes []models.EloChange) (models.LeaderboardUpdate, error)
	MatchRated(ctx context.Context, matchID string) (bool, error)
}

// Processor turns finished match results into rating changes. Results are
// rated one at a time so each one reads the ratings the previous one wrote.
type Processor struct {
	ratings Ratings
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewProcessor creates a new result processor
func NewProcessor(ratings Ratings, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{ratings: ratings, log: log, now: time.Now}
}

// PublishResult processes a result in-process. It lets the processor stand
// in for the stream publisher on a single instance.
func (p *Processor) PublishResult(ctx context.Context, result models.MatchResultMessage) error {
	_, _, err := p.ProcessResult(ctx, result)
	return err
}

// ProcessResult rates a decided match. Draws, results without both a
// winner and a loser, and matches already rated are skipped and reported as
// rated=false.
func (p *Processor) ProcessResult(ctx context.Context, result models.MatchResultMessage) (models.LeaderboardUpdate, bool, error) {
	if result.WinnerID == "" || result.LoserID == "" || result.WinnerID == result.LoserID {
		p.log.Debug("skipping undecided match",
			zap.String("match_id", result.MatchID),
			zap.String("end_condition", result.EndCondition))
		resultsTotal.WithLabelValues("skipped").Inc()
		return models.LeaderboardUpdate{}, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rated, err := p.ratings.MatchRated(ctx, result.MatchID)
	if err != nil {
		return models.LeaderboardUpdate{}, false, err
	}
	if rated {
		p.log.Debug("skipping rated match", zap.String("match_id", result.MatchID))
		resultsTotal.WithLabelValues("duplicate").Inc()
		return models.LeaderboardUpdate{}, false, nil
	}

	winner, err := p.player(ctx, result.WinnerID)
	if err != nil {
		return models.LeaderboardUpdate{}, false, err
	}
	loser, err := p.player(ctx, result.LoserID)
	if err != nil {
		return models.LeaderboardUpdate{}, false, err
	}

	wc, lc := ranking.ProcessMatchResult(ranking.MatchOutcome{
		MatchID:      result.MatchID,
		WinnerID:     winner.PlayerID,
		LoserID:      loser.PlayerID,
		WinnerRating: winner.Rating,
		LoserRating:  loser.Rating,
		WinnerGames:  winner.GamesPlayed,
		LoserGames:   loser.GamesPlayed,
		At:           p.now(),
	})

	update, err := p.ratings.ProcessMatchResult(ctx, []models.EloChange{wc, lc})
	if err != nil {
		resultsTotal.WithLabelValues("failed").Inc()
		return models.LeaderboardUpdate{}, false, fmt.Errorf("rate match %s: %w", result.MatchID, err)
	}

	resultsTotal.WithLabelValues("rated").Inc()
	p.log.Info("match rated",
		zap.String("match_id", result.MatchID),
		zap.String("winner", wc.PlayerID),
		zap.Int("winner_change", wc.Change),
		zap.String("loser", lc.PlayerID),
		zap.Int("loser_change", lc.Change))
	return update, true, nil
}

// player loads a rating record, starting new players at the default rating
func (p *Processor) player(ctx context.Context, playerID string) (models.PlayerRating, error) {
	data, err := p.ratings.PlayerData(ctx, playerID)
	if err != nil {
		return models.PlayerRating{}, fmt.Errorf("load player %s: %w", playerID, err)
	}
	if data == nil {
		return ranking.NewPlayer(playerID, playerID), nil
	}
	return *data, nil
}
