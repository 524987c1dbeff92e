package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/ranking"
)

// GetLeaderboard returns the cached top-N snapshot
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.clampLimit(parseIntParam(r, "limit", h.limits.DefaultLimit))

	snap, err := h.board.Snapshot(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read leaderboard", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetPlayer returns a player's leaderboard row and rating record
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	ctx := r.Context()

	entry, err := h.board.PlayerEntry(ctx, playerID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read player", err)
		return
	}
	rating, err := h.board.PlayerData(ctx, playerID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read player", err)
		return
	}
	if entry == nil && rating == nil {
		h.respondError(w, http.StatusNotFound, "player not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entry":  entry,
		"rating": rating,
	})
}

// GetEstimate previews the rating change of a match against an opponent
func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	opponentID := r.URL.Query().Get("opponent")
	if opponentID == "" {
		h.respondError(w, http.StatusBadRequest, "opponent is required", nil)
		return
	}

	player, err := h.ratingOf(r, playerID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read player", err)
		return
	}
	opponent, err := h.ratingOf(r, opponentID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read opponent", err)
		return
	}

	est := ranking.EstimateChange(player.Rating, opponent.Rating, player.GamesPlayed)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"playerId":       playerID,
		"opponentId":     opponentID,
		"rating":         player.Rating,
		"opponentRating": opponent.Rating,
		"expectedScore":  ranking.ExpectedScore(player.Rating, opponent.Rating),
		"ifWin":          est.IfWin,
		"ifLoss":         est.IfLoss,
	})
}

// SetOnline marks a player connected
func (h *Handler) SetOnline(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if err := h.board.SetPlayerOnline(r.Context(), playerID); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to update presence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetOffline marks a player disconnected
func (h *Handler) SetOffline(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if err := h.board.SetPlayerOffline(r.Context(), playerID); err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to update presence", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ratingOf returns a stored rating record or a fresh one
func (h *Handler) ratingOf(r *http.Request, playerID string) (models.PlayerRating, error) {
	p, err := h.board.PlayerData(r.Context(), playerID)
	if err != nil {
		return models.PlayerRating{}, err
	}
	if p == nil {
		return ranking.NewPlayer(playerID, playerID), nil
	}
	return *p, nil
}

func (h *Handler) clampLimit(limit int) int {
	if limit <= 0 {
		return h.limits.DefaultLimit
	}
	if limit > h.limits.MaxLimit {
		return h.limits.MaxLimit
	}
	return limit
}
