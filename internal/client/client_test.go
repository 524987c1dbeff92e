package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

type fakeHub struct {
	mu         sync.Mutex
	heartbeats int
	resends    int
	removed    []string
}

func (h *fakeHub) RemoveSpectator(matchID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, matchID+"/"+connID)
	return true
}

func (h *fakeHub) Heartbeat(string, string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heartbeats++
	return true
}

func (h *fakeHub) ResendFullFrame(string, string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resends++
	return nil
}

func (h *fakeHub) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.heartbeats, h.resends, len(h.removed)
}

// serve upgrades one connection into a running spectator client and
// returns the dialed peer
func serve(t *testing.T, hub Hub) (*websocket.Conn, <-chan *Client) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clients := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewSpectator("c1", "m1", models.QualityHigh, conn, hub, nil)
		go c.WritePump(ctx)
		go c.ReadPump(ctx)
		clients <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	return peer, clients
}

func TestSendFrame_DeliveredAsJSON(t *testing.T) {
	peer, clients := serve(t, &fakeHub{})
	c := <-clients

	require.NoError(t, c.SendFrame(models.BroadcastFrame{
		Type:    models.FrameTypeFull,
		MatchID: "m1",
		Tick:    1,
		State:   []byte(`{"a":1}`),
		Events:  []models.GameEvent{},
	}))

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.BroadcastFrame
	require.NoError(t, peer.ReadJSON(&got))
	assert.Equal(t, models.FrameTypeFull, got.Type)
	assert.Equal(t, int64(1), got.Tick)
	assert.JSONEq(t, `{"a":1}`, string(got.State))
}

func TestClientMessages(t *testing.T) {
	hub := &fakeHub{}
	peer, clients := serve(t, hub)
	<-clients

	require.NoError(t, peer.WriteJSON(models.ClientMessage{Type: models.MessageTypeHeartbeat}))
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack models.ServerMessage
	require.NoError(t, peer.ReadJSON(&ack))
	assert.Equal(t, models.MessageTypeHeartbeat, ack.Type)

	require.NoError(t, peer.WriteJSON(models.ClientMessage{Type: models.MessageTypeRequestFull}))
	require.NoError(t, peer.WriteJSON(models.ClientMessage{Type: "bogus"}))

	var errMsg models.ErrorMessage
	require.NoError(t, peer.ReadJSON(&errMsg))
	assert.Equal(t, "unknown_message_type", errMsg.Code)

	heartbeats, resends, _ := hub.counts()
	assert.Equal(t, 1, heartbeats)
	assert.Equal(t, 1, resends)
}

func TestClose_FlushesQueuedThenCloses(t *testing.T) {
	hub := &fakeHub{}
	peer, clients := serve(t, hub)
	c := <-clients

	closed := make(chan struct{})
	c.OnClose(func() { close(closed) })

	require.NoError(t, c.SendFrame(models.BroadcastFrame{Type: models.FrameTypeFull, Tick: -1, Events: []models.GameEvent{}}))
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.SendFrame(models.BroadcastFrame{}), ErrClosed)

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	var terminal models.BroadcastFrame
	require.NoError(t, peer.ReadJSON(&terminal))
	assert.Equal(t, int64(-1), terminal.Tick)

	_, _, err := peer.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not exit")
	}
	_, _, removed := hub.counts()
	assert.Equal(t, 1, removed)
}

func TestTrySend_FailsWhenBufferFull(t *testing.T) {
	// Without a write pump nothing drains the queue
	c := NewFeed("feed", nil, nil)

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.SendUpdate(models.LeaderboardUpdate{Type: models.UpdateTypeLeaderboard}))
	}
	assert.ErrorIs(t, c.SendUpdate(models.LeaderboardUpdate{}), ErrSendBufferFull)

	stats := c.GetStats()
	assert.Equal(t, "feed", stats.ClientID)
	assert.Equal(t, 100.0, stats.BufferUtilization)
	assert.Equal(t, models.QualityHigh, c.Quality())
	assert.Empty(t, c.MatchID())
}
