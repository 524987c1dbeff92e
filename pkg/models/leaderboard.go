package models

// Leaderboard update types and directions
const (
	UpdateTypeLeaderboard = "leaderboard_update"

	DirectionUp        = "up"
	DirectionDown      = "down"
	DirectionNew       = "new"
	DirectionUnchanged = "unchanged"
)

// LeaderboardEntry is one row of the ranked leaderboard
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"playerId"`
	BotName        string  `json:"botName"`
	Rating         int     `json:"rating"`
	Tier           Tier    `json:"tier"`
	GamesPlayed    int     `json:"gamesPlayed"`
	WinRate        float64 `json:"winRate"`
	IsOnline       bool    `json:"isOnline"`
	IsInMatch      bool    `json:"isInMatch"`
	CurrentMatchID string  `json:"currentMatchId,omitempty"`
}

// LeaderboardSnapshot is a cached read of the top ranked players
type LeaderboardSnapshot struct {
	Entries      []LeaderboardEntry `json:"entries"`
	TotalPlayers int64              `json:"totalPlayers"`
	LastUpdated  int64              `json:"lastUpdated"`
}

// RankChange describes how a single player moved on the leaderboard
type RankChange struct {
	PlayerID  string `json:"playerId"`
	BotName   string `json:"botName"`
	OldRank   int    `json:"oldRank"` // 0 when previously unranked
	NewRank   int    `json:"newRank"`
	OldRating int    `json:"oldRating"`
	NewRating int    `json:"newRating"`
	Direction string `json:"direction"`
}

// LeaderboardUpdate is pushed to leaderboard subscribers
type LeaderboardUpdate struct {
	Type      string       `json:"type"`
	Changes   []RankChange `json:"changes"`
	Timestamp int64        `json:"timestamp"`
}
