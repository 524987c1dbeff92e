package models

// Message types for WebSocket communication
const (
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeRequestFull = "request_full"
	MessageTypeError       = "error"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MatchResultMessage is published to the match results stream when a match ends
type MatchResultMessage struct {
	MatchID      string         `json:"matchId"`
	GameType     string         `json:"gameType"`
	Players      []string       `json:"players"`
	WinnerID     string         `json:"winnerId,omitempty"`
	LoserID      string         `json:"loserId,omitempty"`
	EndCondition string         `json:"endCondition"`
	Scores       map[string]int `json:"scores"`
	DurationMs   int64          `json:"duration"`
	FinalTick    int64          `json:"finalTick"`
}

// ServerMessage is a control message sent to a websocket client
type ServerMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ConnectionStats describes one websocket connection
type ConnectionStats struct {
	ClientID          string  `json:"clientId"`
	MatchID           string  `json:"matchId,omitempty"`
	ConnectedAt       int64   `json:"connectedAt"`
	MessagesSent      int64   `json:"messagesSent"`
	MessagesReceived  int64   `json:"messagesReceived"`
	LastMessageAt     int64   `json:"lastMessageAt"`
	BufferSize        int     `json:"bufferSize"`
	BufferUtilization float64 `json:"bufferUtilization"`
}

// MessageTypeLeaderboardSnapshot is sent to a leaderboard feed on connect
const MessageTypeLeaderboardSnapshot = "leaderboard_snapshot"

// ErrorResponse is the body of every failed HTTP request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
