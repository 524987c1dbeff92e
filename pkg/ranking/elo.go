// Package ranking implements the ELO rating math used by the leaderboard.
// Every function here is pure.
package ranking

import (
	"math"
	"time"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

const (
	// MinRating and MaxRating bound every stored rating
	MinRating = 100
	MaxRating = 3000

	// DefaultRating is assigned to new players
	DefaultRating = 1200

	// ProvisionalGames is the number of completed matches before a player
	// leaves the provisional K-factor
	ProvisionalGames = 10

	provisionalK = 64
	establishedK = 32
)

// ExpectedScore returns the probability that a player rated a beats a player rated b
func ExpectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// KFactor returns the rating sensitivity for a player with the given number of games
func KFactor(gamesPlayed int) int {
	if gamesPlayed < ProvisionalGames {
		return provisionalK
	}
	return establishedK
}

// RatingChange returns the rating deltas for the winner and the loser of a match.
// Each side is rounded independently with its own K-factor, so the deltas only
// mirror each other when both K-factors are equal.
func RatingChange(winnerRating, loserRating, winnerGames, loserGames int) (winnerDelta, loserDelta int) {
	kw := float64(KFactor(winnerGames))
	kl := float64(KFactor(loserGames))

	winnerDelta = int(math.Round(kw * (1 - ExpectedScore(winnerRating, loserRating))))
	loserDelta = int(math.Round(kl * (0 - ExpectedScore(loserRating, winnerRating))))
	return winnerDelta, loserDelta
}

// ClampRating bounds a rating to [MinRating, MaxRating]
func ClampRating(rating int) int {
	if rating < MinRating {
		return MinRating
	}
	if rating > MaxRating {
		return MaxRating
	}
	return rating
}

// MatchOutcome is the input of ProcessMatchResult
type MatchOutcome struct {
	MatchID      string
	WinnerID     string
	LoserID      string
	WinnerRating int
	LoserRating  int
	WinnerGames  int
	LoserGames   int
	At           time.Time // zero means now
}

// ProcessMatchResult builds the two EloChange records of a decided match.
// Both records share one timestamp.
func ProcessMatchResult(o MatchOutcome) (winner, loser models.EloChange) {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UnixMilli()

	wd, ld := RatingChange(o.WinnerRating, o.LoserRating, o.WinnerGames, o.LoserGames)

	winnerNew := ClampRating(o.WinnerRating + wd)
	loserNew := ClampRating(o.LoserRating + ld)

	winner = models.EloChange{
		PlayerID:   o.WinnerID,
		OldRating:  o.WinnerRating,
		NewRating:  winnerNew,
		Change:     winnerNew - o.WinnerRating,
		MatchID:    o.MatchID,
		OpponentID: o.LoserID,
		IsWin:      true,
		Timestamp:  ts,
	}
	loser = models.EloChange{
		PlayerID:   o.LoserID,
		OldRating:  o.LoserRating,
		NewRating:  loserNew,
		Change:     loserNew - o.LoserRating,
		MatchID:    o.MatchID,
		OpponentID: o.WinnerID,
		IsWin:      false,
		Timestamp:  ts,
	}
	return winner, loser
}

// Estimate previews the rating change of a match before it is played
type Estimate struct {
	IfWin  int `json:"ifWin"`
	IfLoss int `json:"ifLoss"`
}

// EstimateChange returns the delta a player would see on a win and on a loss
// against an opponent. The opponent is assumed to share the player's K-factor.
func EstimateChange(playerRating, opponentRating, playerGames int) Estimate {
	k := float64(KFactor(playerGames))
	e := ExpectedScore(playerRating, opponentRating)

	return Estimate{
		IfWin:  ClampRating(playerRating+int(math.Round(k*(1-e)))) - playerRating,
		IfLoss: ClampRating(playerRating+int(math.Round(k*(0-e)))) - playerRating,
	}
}
