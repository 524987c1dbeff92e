package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL      string
	Password string
	// "redis" or "memory". The memory backend keeps a single instance
	// self-contained and disables the results stream.
	Backend string
}

// HubConfig holds broadcast tuning
type HubConfig struct {
	FullStateInterval int
	BufferSize        int
	HeartbeatTimeout  time.Duration
	EndedRetention    time.Duration
	SweepInterval     time.Duration
}

// LeaderboardConfig holds leaderboard tuning
type LeaderboardConfig struct {
	CacheTTL     time.Duration
	DefaultLimit int
	MaxLimit     int
}

// StreamConfig defines the match results stream and its consumer group
type StreamConfig struct {
	ResultsStream string
	ConsumerGroup string
	ConsumerID    string
	MaxLen        int64
	RetryAfter    time.Duration // pending results idle this long are retried
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json or console
}

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Hub         HubConfig
	Leaderboard LeaderboardConfig
	Stream      StreamConfig
	Log         LogConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("SERVER_ADDR", ":8080"),
			CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6380"),
			Password: getEnv("REDIS_PASSWORD", ""),
			Backend:  getEnv("STORE_BACKEND", "redis"),
		},
		Hub: HubConfig{
			FullStateInterval: getEnvInt("HUB_FULL_STATE_INTERVAL", 30),
			BufferSize:        getEnvInt("HUB_BUFFER_SIZE", 300),
			HeartbeatTimeout:  getEnvDuration("HUB_HEARTBEAT_TIMEOUT", 30*time.Second),
			EndedRetention:    getEnvDuration("HUB_ENDED_RETENTION", 5*time.Minute),
			SweepInterval:     getEnvDuration("HUB_SWEEP_INTERVAL", 10*time.Second),
		},
		Leaderboard: LeaderboardConfig{
			CacheTTL:     getEnvDuration("LEADERBOARD_CACHE_TTL", 5*time.Second),
			DefaultLimit: getEnvInt("LEADERBOARD_DEFAULT_LIMIT", 50),
			MaxLimit:     getEnvInt("LEADERBOARD_MAX_LIMIT", 500),
		},
		Stream: StreamConfig{
			ResultsStream: getEnv("RESULTS_STREAM", "matches.completed"),
			ConsumerGroup: getEnv("CONSUMER_GROUP", "arena"),
			ConsumerID:    getEnv("CONSUMER_ID", "arena-1"),
			MaxLen:        int64(getEnvInt("RESULTS_STREAM_MAXLEN", 10000)),
			RetryAfter:    getEnvDuration("RESULTS_RETRY_AFTER", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer variable, falling back on absence or garbage
func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultValue
}

// getEnvDuration parses a time.ParseDuration value such as "30s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
