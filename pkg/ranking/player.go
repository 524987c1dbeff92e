package ranking

import "github.com/XavierBriggs/fortuna/services/arena/pkg/models"

// NewPlayer returns the rating record of a player who has not played yet
func NewPlayer(playerID, botName string) models.PlayerRating {
	return models.PlayerRating{
		PlayerID:   playerID,
		BotName:    botName,
		Rating:     DefaultRating,
		Tier:       RankTier(DefaultRating),
		PeakRating: DefaultRating,
	}
}

// ApplyChange returns player with the match bookkeeping of change applied
func ApplyChange(player models.PlayerRating, change models.EloChange) models.PlayerRating {
	out := player

	out.Rating = ClampRating(change.NewRating)
	out.Tier = RankTier(out.Rating)
	out.GamesPlayed++
	if change.IsWin {
		out.Wins++
		if out.CurrentStreak >= 0 {
			out.CurrentStreak++
		} else {
			out.CurrentStreak = 1
		}
	} else {
		out.Losses++
		if out.CurrentStreak <= 0 {
			out.CurrentStreak--
		} else {
			out.CurrentStreak = -1
		}
	}

	out.WinRate = float64(out.Wins) / float64(out.GamesPlayed)
	if out.Rating > out.PeakRating {
		out.PeakRating = out.Rating
	}
	out.LastMatchTimestamp = change.Timestamp

	return out
}
