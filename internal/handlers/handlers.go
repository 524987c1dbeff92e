package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/config"
	"github.com/XavierBriggs/fortuna/services/arena/internal/hub"
	"github.com/XavierBriggs/fortuna/services/arena/internal/leaderboard"
	"github.com/XavierBriggs/fortuna/services/arena/internal/registry"
	"github.com/XavierBriggs/fortuna/services/arena/internal/session"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

// Handler manages HTTP endpoints
type Handler struct {
	ctx      context.Context
	hub      *hub.Hub
	board    *leaderboard.Leaderboard
	sessions *session.Manager
	registry *registry.Registry
	limits   config.LeaderboardConfig
	log      *zap.Logger
}

// NewHandler creates a new handler instance. ctx bounds the lifetime of
// websocket connections.
func NewHandler(ctx context.Context, h *hub.Hub, board *leaderboard.Leaderboard, sessions *session.Manager, reg *registry.Registry, limits config.LeaderboardConfig, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 50
	}
	if limits.MaxLimit < limits.DefaultLimit {
		limits.MaxLimit = limits.DefaultLimit
	}
	return &Handler{
		ctx:      ctx,
		hub:      h,
		board:    board,
		sessions: sessions,
		registry: reg,
		limits:   limits,
		log:      log,
	}
}

// Router builds the service routes
func (h *Handler) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(chimiddleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HandleHealth)
	r.Get("/stats", h.HandleStats)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket
	r.Get("/ws/matches/{matchID}", h.HandleSpectate)
	r.Get("/ws/leaderboard", h.HandleLeaderboardFeed)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Get("/games", h.GetGames)

		// Leaderboard
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/players/{playerID}", h.GetPlayer)
		r.Get("/players/{playerID}/estimate", h.GetEstimate)
		r.Post("/players/{playerID}/presence", h.SetOnline)
		r.Delete("/players/{playerID}/presence", h.SetOffline)

		// Matches
		r.Get("/matches", h.ListMatches)
		r.Post("/matches", h.CreateMatch)
		r.Get("/matches/{matchID}", h.GetMatch)
		r.Post("/matches/{matchID}/actions", h.SubmitAction)
		r.Get("/matches/{matchID}/replay", h.GetReplay)
	})

	return r
}

// HandleHealth returns service health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "arena",
		"active_matches": stats.ActiveMatches,
		"spectators":     stats.Spectators,
	})
}

// HandleStats returns hub metrics
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.hub.Stats())
}

// GetGames lists the hosted titles
func (h *Handler) GetGames(w http.ResponseWriter, r *http.Request) {
	infos := h.registry.Infos()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"games": infos,
		"count": len(infos),
	})
}

// requestLogger logs one line per request
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		})
	}
}

// Helper functions

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Debug("error encoding response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		h.log.Error(message, zap.Error(err))
	}

	respondJSON(w, status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
