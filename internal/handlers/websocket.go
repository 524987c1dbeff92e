package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/internal/client"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS layer for the REST API; spectating is public
		return true
	},
}

// HandleSpectate upgrades to a spectator connection of one match
func (h *Handler) HandleSpectate(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if !h.hub.IsActive(matchID) {
		h.respondError(w, http.StatusNotFound, "match not found", nil)
		return
	}
	quality := models.ParseQuality(r.URL.Query().Get("quality"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade error", zap.Error(err))
		return
	}

	c := client.NewSpectator(uuid.NewString(), matchID, quality, conn, h.hub, h.log)

	// Start client pumps (use handler context, not request context)
	go c.WritePump(h.ctx)
	if err := h.hub.AddSpectator(c); err != nil {
		h.log.Debug("spectator rejected", zap.String("match_id", matchID), zap.Error(err))
		c.Close()
		return
	}
	go c.ReadPump(h.ctx)

	h.log.Debug("spectator connected",
		zap.String("conn_id", c.ID()),
		zap.String("match_id", matchID),
		zap.String("quality", string(quality)))
}

// HandleLeaderboardFeed upgrades to a stream of leaderboard updates, starting
// with the current snapshot
func (h *Handler) HandleLeaderboardFeed(w http.ResponseWriter, r *http.Request) {
	limit := h.clampLimit(parseIntParam(r, "limit", h.limits.DefaultLimit))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade error", zap.Error(err))
		return
	}

	c := client.NewFeed(uuid.NewString(), conn, h.log)
	go c.WritePump(h.ctx)

	if snap, err := h.board.Snapshot(h.ctx, limit); err == nil {
		c.SendMessage(models.ServerMessage{
			Type:      models.MessageTypeLeaderboardSnapshot,
			Payload:   snap,
			Timestamp: time.Now().UnixMilli(),
		})
	} else {
		h.log.Warn("leaderboard snapshot for feed", zap.Error(err))
	}

	unsubscribe := h.board.Subscribe(func(u models.LeaderboardUpdate) {
		if err := c.SendUpdate(u); err != nil {
			c.Close()
		}
	})
	c.OnClose(unsubscribe)
	go c.ReadPump(h.ctx)
}
