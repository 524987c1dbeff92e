package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/XavierBriggs/fortuna/services/arena/internal/hub"
	"github.com/XavierBriggs/fortuna/services/arena/internal/registry"
	"github.com/XavierBriggs/fortuna/services/arena/internal/session"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/contracts"
)

// ActionRequest is the body of SubmitAction
type ActionRequest struct {
	PlayerID string           `json:"playerId"`
	Action   contracts.Action `json:"action"`
}

// ListMatches returns the live matches
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches := h.sessions.Active()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

// CreateMatch starts hosting a new match
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s, err := h.sessions.Start(r.Context(), req)
	switch {
	case errors.Is(err, registry.ErrUnknownGameType):
		h.respondError(w, http.StatusNotFound, err.Error(), nil)
		return
	case err != nil:
		// Initialization rejects bad rosters, anything else is a host bug
		var mismatch *contracts.GameTypeMismatchError
		if errors.As(err, &mismatch) {
			h.respondError(w, http.StatusInternalServerError, "game registry misconfigured", err)
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusCreated, s.Summary())
}

// GetMatch returns the public state of a match, or a player's view with
// ?player=
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(chi.URLParam(r, "matchID"))
	if !ok {
		h.respondError(w, http.StatusNotFound, "match not found", nil)
		return
	}

	view, err := s.View(r.URL.Query().Get("player"))
	if err != nil {
		h.respondError(w, http.StatusConflict, "match is over", nil)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// SubmitAction applies one player action
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.PlayerID == "" || req.Action.Type == "" {
		h.respondError(w, http.StatusBadRequest, "playerId and action.type are required", nil)
		return
	}

	out, err := h.sessions.Submit(r.Context(), chi.URLParam(r, "matchID"), req.PlayerID, req.Action)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "match not found", nil)
		return
	case errors.Is(err, session.ErrMatchOver):
		h.respondError(w, http.StatusConflict, "match is over", nil)
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to apply action", err)
		return
	}

	status := http.StatusOK
	if !out.Result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, out)
}

// GetReplay returns buffered frames with tick >= ?from=
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	from := int64(parseIntParam(r, "from", 0))

	frames, err := h.hub.ReplayBuffer(matchID, from)
	if errors.Is(err, hub.ErrMatchNotFound) {
		h.respondError(w, http.StatusNotFound, "match not found", nil)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read replay", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"matchId": matchID,
		"frames":  frames,
		"count":   len(frames),
	})
}
