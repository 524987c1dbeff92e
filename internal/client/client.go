package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffer size for outbound messages
	sendBufferSize = 256
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

// Hub is the part of the broadcast hub a spectator talks back to
type Hub interface {
	RemoveSpectator(matchID, connID string) bool
	Heartbeat(matchID, connID string) bool
	ResendFullFrame(matchID, connID string) error
}

// Client represents a WebSocket client connection. A client with a match id
// is a spectator; one without is a leaderboard feed.
type Client struct {
	id      string
	matchID string
	quality models.Quality
	conn    *websocket.Conn
	hub     Hub
	log     *zap.Logger

	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	onClose   []func()

	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
	lastMessageAt    time.Time
	mu               sync.Mutex
}

// NewSpectator creates a client that follows one match
func NewSpectator(id, matchID string, quality models.Quality, conn *websocket.Conn, hub Hub, log *zap.Logger) *Client {
	c := newClient(id, conn, log)
	c.matchID = matchID
	c.quality = quality
	c.hub = hub
	return c
}

// NewFeed creates a client that receives leaderboard updates
func NewFeed(id string, conn *websocket.Conn, log *zap.Logger) *Client {
	return newClient(id, conn, log)
}

func newClient(id string, conn *websocket.Conn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		id:          id,
		quality:     models.QualityHigh,
		conn:        conn,
		log:         log.With(zap.String("conn_id", id)),
		send:        make(chan interface{}, sendBufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

func (c *Client) ID() string              { return c.id }
func (c *Client) MatchID() string         { return c.matchID }
func (c *Client) Quality() models.Quality { return c.quality }

// SendFrame queues a broadcast frame without blocking
func (c *Client) SendFrame(frame models.BroadcastFrame) error {
	return c.trySend(frame)
}

// SendUpdate queues a leaderboard update without blocking
func (c *Client) SendUpdate(update models.LeaderboardUpdate) error {
	return c.trySend(update)
}

// SendMessage queues a control message without blocking
func (c *Client) SendMessage(msg models.ServerMessage) error {
	return c.trySend(msg)
}

// OnClose registers fn to run once the read pump exits
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Close stops the write pump after it flushes what is already queued.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once Close has been called
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// trySend enqueues msg, failing fast when the client is too slow
func (c *Client) trySend(msg interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		if c.hub != nil {
			c.hub.RemoveSpectator(c.matchID, c.id)
		}
		c.Close()
		c.conn.Close()

		c.mu.Lock()
		callbacks := c.onClose
		c.onClose = nil
		c.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.heartbeat()
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg models.ClientMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.log.Debug("unexpected close", zap.Error(err))
				}
				return
			}

			c.updateReceived()
			c.handleClientMessage(msg)
		}
	}
}

// WritePump pumps queued messages to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return

		case <-c.done:
			c.flush()
			c.writeClose()
			return

		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.log.Debug("write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever was queued before Close
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(message interface{}) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(message); err != nil {
		return err
	}
	c.updateSent()
	return nil
}

func (c *Client) writeClose() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// GetStats returns connection statistics
func (c *Client) GetStats() models.ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	bufferUtilization := float64(len(c.send)) / float64(sendBufferSize) * 100.0

	return models.ConnectionStats{
		ClientID:          c.id,
		MatchID:           c.matchID,
		ConnectedAt:       c.connectedAt.UnixMilli(),
		MessagesSent:      c.messagesSent,
		MessagesReceived:  c.messagesReceived,
		LastMessageAt:     c.lastMessageAt.UnixMilli(),
		BufferSize:        sendBufferSize,
		BufferUtilization: bufferUtilization,
	}
}

// handleClientMessage processes messages from the client
func (c *Client) handleClientMessage(msg models.ClientMessage) {
	switch msg.Type {
	case models.MessageTypeHeartbeat:
		c.heartbeat()
		c.sendHeartbeat()
	case models.MessageTypeRequestFull:
		c.handleRequestFull()
	default:
		c.sendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (c *Client) heartbeat() {
	if c.hub != nil {
		c.hub.Heartbeat(c.matchID, c.id)
	}
}

// handleRequestFull asks the hub for the latest full frame after a gap
func (c *Client) handleRequestFull() {
	if c.hub == nil {
		c.sendError("not_supported", "full state is only available to match spectators")
		return
	}
	if err := c.hub.ResendFullFrame(c.matchID, c.id); err != nil {
		c.log.Debug("full frame resend failed", zap.Error(err))
		c.sendError("resend_failed", err.Error())
	}
}

// sendHeartbeat sends a heartbeat response
func (c *Client) sendHeartbeat() {
	c.trySend(models.ServerMessage{
		Type:      models.MessageTypeHeartbeat,
		Payload:   c.GetStats(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	c.trySend(models.ErrorMessage{
		Type:    models.MessageTypeError,
		Code:    code,
		Message: message,
	})
}

// updateSent increments the sent message counter
func (c *Client) updateSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesSent++
	c.lastMessageAt = time.Now()
}

// updateReceived increments the received message counter
func (c *Client) updateReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesReceived++
	c.lastMessageAt = time.Now()
}
