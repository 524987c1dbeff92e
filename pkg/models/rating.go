package models

// Tier is a named rank band derived from rating
type Tier string

const (
	TierBronze      Tier = "bronze"
	TierSilver      Tier = "silver"
	TierGold        Tier = "gold"
	TierPlatinum    Tier = "platinum"
	TierDiamond     Tier = "diamond"
	TierMaster      Tier = "master"
	TierGrandmaster Tier = "grandmaster"
)

// PlayerRating is the rating record of a single player, mutated in place after each match
type PlayerRating struct {
	PlayerID           string  `json:"playerId"`
	BotName            string  `json:"botName"`
	Rating             int     `json:"rating"`
	Tier               Tier    `json:"tier"`
	GamesPlayed        int     `json:"gamesPlayed"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	WinRate            float64 `json:"winRate"`
	PeakRating         int     `json:"peakRating"`
	CurrentStreak      int     `json:"currentStreak"` // positive for wins, negative for losses
	LastMatchTimestamp int64   `json:"lastMatchTimestamp"`
}

// EloChange records the rating movement of one player in one match
type EloChange struct {
	PlayerID   string `json:"playerId"`
	OldRating  int    `json:"oldRating"`
	NewRating  int    `json:"newRating"`
	Change     int    `json:"change"`
	MatchID    string `json:"matchId"`
	OpponentID string `json:"opponentId"`
	IsWin      bool   `json:"isWin"`
	Timestamp  int64  `json:"timestamp"`
}
