package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/statetree"
)

var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrMatchEnded        = errors.New("match has ended")
	ErrSpectatorNotFound = errors.New("spectator not found")
	ErrInvalidState      = errors.New("state cannot be encoded")
)

// SpectatorConnection is the outbound side of a spectator, implementable over
// any transport. SendFrame must not block; a returned error evicts the connection.
type SpectatorConnection interface {
	ID() string
	MatchID() string
	Quality() models.Quality
	SendFrame(frame models.BroadcastFrame) error
	Close() error
}

// Config holds the broadcast tuning knobs
type Config struct {
	// A full frame is sent whenever the frame counter is a multiple of this
	FullStateInterval int
	// Frames retained per match for replay
	BufferSize int
	// Connections without a heartbeat for this long are evicted by the sweep
	HeartbeatTimeout time.Duration
	// Ended matches keep their replay buffer this long before the sweep
	// forgets them
	EndedRetention time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		FullStateInterval: 30,
		BufferSize:        300,
		HeartbeatTimeout:  30 * time.Second,
		EndedRetention:    5 * time.Minute,
	}
}

// Option customises a Hub
type Option func(*Hub)

// WithLogger sets the hub logger
func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithClock replaces the hub's time source
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub fans out match state to spectators. Every match is isolated: its own
// lock, frame counter, diff baseline, replay buffer and connections.
type Hub struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	matches map[string]*match

	// Metrics
	totalConnections int64
	totalFrames      int64
	fullFrames       int64
	deltaFrames      int64
	sendFailures     int64
	staleEvictions   int64
	metricsMu        sync.Mutex
}

// NewHub creates a new Hub instance
func NewHub(cfg Config, opts ...Option) *Hub {
	def := DefaultConfig()
	if cfg.FullStateInterval <= 0 {
		cfg.FullStateInterval = def.FullStateInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = def.EndedRetention
	}

	h := &Hub{
		cfg:     cfg,
		log:     zap.NewNop(),
		now:     time.Now,
		matches: make(map[string]*match),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunSweeper evicts stale connections every interval and reports metrics
// until ctx is cancelled, then closes every remaining connection.
func (h *Hub) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = h.cfg.HeartbeatTimeout / 3
	}
	h.log.Info("hub started",
		zap.Int("full_state_interval", h.cfg.FullStateInterval),
		zap.Int("buffer_size", h.cfg.BufferSize),
		zap.Duration("heartbeat_timeout", h.cfg.HeartbeatTimeout))

	sweep := time.NewTicker(interval)
	defer sweep.Stop()
	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-sweep.C:
			if n := h.CleanupStaleConnections(); n > 0 {
				h.log.Info("evicted stale spectators", zap.Int("count", n))
			}
			if n := h.PurgeEnded(); n > 0 {
				h.log.Debug("purged ended matches", zap.Int("count", n))
			}
		case <-report.C:
			s := h.Stats()
			h.log.Info("hub metrics",
				zap.Int("active_matches", s.ActiveMatches),
				zap.Int("spectators", s.Spectators),
				zap.Int64("total_connections", s.TotalConnections),
				zap.Int64("frames", s.FramesBroadcast))
		}
	}
}

// InitMatch makes a match ready for broadcasting. An active match is left
// untouched; an ended match starts over with an empty buffer.
func (h *Hub) InitMatch(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.matches[matchID]; ok {
		m.mu.Lock()
		ended := m.status == statusEnded
		m.mu.Unlock()
		if !ended {
			return
		}
	}

	h.matches[matchID] = newMatch(matchID)
	activeMatches.Inc()
	h.log.Debug("match initialized", zap.String("match_id", matchID))
}

// AddSpectator registers a connection with its match and immediately sends it
// the latest full frame so it does not have to wait for the next one.
func (h *Hub) AddSpectator(conn SpectatorConnection) error {
	m, ok := h.lookup(conn.MatchID())
	if !ok {
		return fmt.Errorf("add spectator %s: %w", conn.ID(), ErrMatchNotFound)
	}

	m.mu.Lock()
	if m.status == statusEnded {
		m.mu.Unlock()
		return fmt.Errorf("add spectator %s: %w", conn.ID(), ErrMatchEnded)
	}

	s := &spectator{conn: conn, lastHeartbeat: h.now()}
	if prev, ok := m.spectators[conn.ID()]; ok && prev.conn != conn {
		defer prev.conn.Close()
	} else if !ok {
		spectatorsGauge.Inc()
	}
	m.spectators[conn.ID()] = s

	var sendErr error
	if m.lastFull != nil {
		sendErr = conn.SendFrame(adaptFrame(*m.lastFull, conn.Quality()))
		if sendErr != nil {
			delete(m.spectators, conn.ID())
			spectatorsGauge.Dec()
		}
	}
	count := len(m.spectators)
	m.mu.Unlock()

	if sendErr != nil {
		h.recordSendFailure()
		conn.Close()
		return fmt.Errorf("catch-up frame for %s: %w", conn.ID(), sendErr)
	}

	h.incrementTotalConnections()
	h.log.Debug("spectator joined",
		zap.String("match_id", conn.MatchID()),
		zap.String("conn_id", conn.ID()),
		zap.String("quality", string(conn.Quality())),
		zap.Int("spectators", count))
	return nil
}

// RemoveSpectator forgets a connection without closing it
func (h *Hub) RemoveSpectator(matchID, connID string) bool {
	m, ok := h.lookup(matchID)
	if !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.spectators[connID]; !ok {
		return false
	}
	delete(m.spectators, connID)
	spectatorsGauge.Dec()
	return true
}

// Heartbeat refreshes a connection's liveness
func (h *Hub) Heartbeat(matchID, connID string) bool {
	m, ok := h.lookup(matchID)
	if !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spectators[connID]
	if !ok {
		return false
	}
	s.lastHeartbeat = h.now()
	return true
}

// CleanupStaleConnections evicts and closes every connection whose last
// heartbeat is older than HeartbeatTimeout. It returns the number evicted.
func (h *Hub) CleanupStaleConnections() int {
	cutoff := h.now().Add(-h.cfg.HeartbeatTimeout)

	var stale []SpectatorConnection
	for _, m := range h.snapshot() {
		m.mu.Lock()
		for id, s := range m.spectators {
			if s.lastHeartbeat.Before(cutoff) {
				stale = append(stale, s.conn)
				delete(m.spectators, id)
				spectatorsGauge.Dec()
			}
		}
		m.mu.Unlock()
	}

	for _, conn := range stale {
		conn.Close()
	}

	if len(stale) > 0 {
		staleEvictionsTotal.Add(float64(len(stale)))
		h.metricsMu.Lock()
		h.staleEvictions += int64(len(stale))
		h.metricsMu.Unlock()
	}
	return len(stale)
}

// PurgeEnded forgets matches that ended more than EndedRetention ago,
// buffer included. It returns the number purged.
func (h *Hub) PurgeEnded() int {
	cutoff := h.now().Add(-h.cfg.EndedRetention)

	h.mu.Lock()
	defer h.mu.Unlock()

	purged := 0
	for id, m := range h.matches {
		m.mu.Lock()
		expired := m.status == statusEnded && m.endedAt.Before(cutoff)
		m.mu.Unlock()
		if expired {
			delete(h.matches, id)
			purged++
		}
	}
	return purged
}

// Broadcast publishes one authoritative state change of a match to all of its
// spectators and to its replay buffer. Per-connection send failures evict
// that connection and are never returned.
func (h *Hub) Broadcast(matchID string, state interface{}, events []models.GameEvent, highlights ...models.Highlight) (models.BroadcastFrame, error) {
	m, ok := h.lookup(matchID)
	if !ok {
		return models.BroadcastFrame{}, fmt.Errorf("broadcast %s: %w", matchID, ErrMatchNotFound)
	}

	value, err := statetree.FromAny(state)
	if err != nil {
		return models.BroadcastFrame{}, fmt.Errorf("broadcast %s: %w: %v", matchID, ErrInvalidState, err)
	}

	m.mu.Lock()
	if m.status == statusEnded {
		m.mu.Unlock()
		return models.BroadcastFrame{}, fmt.Errorf("broadcast %s: %w", matchID, ErrMatchEnded)
	}

	frame := m.nextFrame(value, h.cfg.FullStateInterval, h.now())
	frame.Events = append([]models.GameEvent{}, events...)
	if len(highlights) > 0 {
		frame.Highlights = append([]models.Highlight(nil), highlights...)
	}
	if frame.Type == models.FrameTypeFull {
		full := frame.Clone()
		m.lastFull = &full
	}
	m.push(frame.Clone(), h.cfg.BufferSize)

	failed := m.fanOut(frame)
	m.mu.Unlock()

	h.recordFrame(frame.Type)
	for _, conn := range failed {
		h.recordSendFailure()
		h.log.Warn("spectator send failed, disconnecting",
			zap.String("match_id", matchID),
			zap.String("conn_id", conn.ID()),
			zap.Int64("tick", frame.Tick))
		conn.Close()
	}

	return frame, nil
}

// ResendFullFrame sends the latest full frame to one connection again, for
// clients that detected a gap in delta ticks
func (h *Hub) ResendFullFrame(matchID, connID string) error {
	m, ok := h.lookup(matchID)
	if !ok {
		return ErrMatchNotFound
	}

	m.mu.Lock()
	s, ok := m.spectators[connID]
	if !ok {
		m.mu.Unlock()
		return ErrSpectatorNotFound
	}
	if m.lastFull == nil {
		m.mu.Unlock()
		return nil
	}

	err := s.conn.SendFrame(adaptFrame(*m.lastFull, s.conn.Quality()))
	if err != nil {
		delete(m.spectators, connID)
		spectatorsGauge.Dec()
	}
	m.mu.Unlock()

	if err != nil {
		h.recordSendFailure()
		s.conn.Close()
		return fmt.Errorf("resend full frame to %s: %w", connID, err)
	}
	return nil
}

// EndMatch sends every connection a terminal frame, closes them all and stops
// accepting broadcasts. The replay buffer stays available until ClearBuffer.
func (h *Hub) EndMatch(matchID string, result interface{}) error {
	m, ok := h.lookup(matchID)
	if !ok {
		return fmt.Errorf("end match %s: %w", matchID, ErrMatchNotFound)
	}

	m.mu.Lock()
	if m.status == statusEnded {
		m.mu.Unlock()
		return nil
	}

	now := h.now()
	data := map[string]interface{}{"finalTick": m.counter}
	if result != nil {
		data["result"] = result
	}
	terminal := models.BroadcastFrame{
		Type:      models.FrameTypeFull,
		MatchID:   matchID,
		Tick:      -1,
		Timestamp: now.UnixMilli(),
		Events: []models.GameEvent{{
			Type:      models.EventTypeMatchEnd,
			Tick:      m.counter,
			Timestamp: now.UnixMilli(),
			Data:      data,
		}},
	}

	conns := make([]SpectatorConnection, 0, len(m.spectators))
	for _, s := range m.spectators {
		if err := s.conn.SendFrame(terminal.Clone()); err != nil {
			h.log.Debug("terminal frame not delivered", zap.String("conn_id", s.conn.ID()), zap.Error(err))
		}
		conns = append(conns, s.conn)
	}
	spectatorsGauge.Sub(float64(len(m.spectators)))
	m.spectators = make(map[string]*spectator)
	m.status = statusEnded
	m.endedAt = now
	m.baseline = statetree.Value{}
	m.hasBaseline = false
	m.mu.Unlock()

	activeMatches.Dec()
	for _, conn := range conns {
		conn.Close()
	}

	h.log.Info("match ended",
		zap.String("match_id", matchID),
		zap.Int("spectators_closed", len(conns)))
	return nil
}

// ReplayBuffer returns a copy of the buffered frames with tick >= fromTick
func (h *Hub) ReplayBuffer(matchID string, fromTick int64) ([]models.BroadcastFrame, error) {
	m, ok := h.lookup(matchID)
	if !ok {
		return nil, ErrMatchNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replay(fromTick), nil
}

// ClearBuffer drops a match's buffered frames. For an ended match the whole
// record is forgotten.
func (h *Hub) ClearBuffer(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.matches[matchID]
	if !ok {
		return
	}

	m.mu.Lock()
	m.buffer.Clear()
	ended := m.status == statusEnded
	m.mu.Unlock()

	if ended {
		delete(h.matches, matchID)
	}
}

// IsActive reports whether a match accepts spectators and broadcasts
func (h *Hub) IsActive(matchID string) bool {
	m, ok := h.lookup(matchID)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == statusActive
}

// SpectatorCount returns the number of live connections of a match
func (h *Hub) SpectatorCount(matchID string) int {
	m, ok := h.lookup(matchID)
	if !ok {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spectators)
}

// Stats is an aggregate view of the hub for observability
type Stats struct {
	ActiveMatches     int            `json:"active_matches"`
	EndedMatches      int            `json:"ended_matches"`
	Spectators        int            `json:"spectators"`
	SpectatorsByMatch map[string]int `json:"spectators_by_match"`
	BufferedFrames    int            `json:"buffered_frames"`
	TotalConnections  int64          `json:"total_connections"`
	FramesBroadcast   int64          `json:"frames_broadcast"`
	FullFrames        int64          `json:"full_frames"`
	DeltaFrames       int64          `json:"delta_frames"`
	SendFailures      int64          `json:"send_failures"`
	StaleEvictions    int64          `json:"stale_evictions"`
}

// Stats returns hub metrics
func (h *Hub) Stats() Stats {
	s := Stats{SpectatorsByMatch: make(map[string]int)}

	for _, m := range h.snapshot() {
		m.mu.Lock()
		if m.status == statusActive {
			s.ActiveMatches++
			s.SpectatorsByMatch[m.id] = len(m.spectators)
		} else {
			s.EndedMatches++
		}
		s.Spectators += len(m.spectators)
		s.BufferedFrames += m.buffer.Len()
		m.mu.Unlock()
	}

	h.metricsMu.Lock()
	s.TotalConnections = h.totalConnections
	s.FramesBroadcast = h.totalFrames
	s.FullFrames = h.fullFrames
	s.DeltaFrames = h.deltaFrames
	s.SendFailures = h.sendFailures
	s.StaleEvictions = h.staleEvictions
	h.metricsMu.Unlock()

	return s
}

// lookup finds a match under the read lock
func (h *Hub) lookup(matchID string) (*match, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.matches[matchID]
	return m, ok
}

// snapshot copies the match list so per-match work happens without the hub lock
func (h *Hub) snapshot() []*match {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*match, 0, len(h.matches))
	for _, m := range h.matches {
		out = append(out, m)
	}
	return out
}

// shutdown closes all spectator connections
func (h *Hub) shutdown() {
	var conns []SpectatorConnection
	for _, m := range h.snapshot() {
		m.mu.Lock()
		for id, s := range m.spectators {
			conns = append(conns, s.conn)
			delete(m.spectators, id)
			spectatorsGauge.Dec()
		}
		m.mu.Unlock()
	}

	h.log.Info("shutting down hub", zap.Int("spectators", len(conns)))
	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) recordFrame(frameType string) {
	framesTotal.WithLabelValues(frameType).Inc()

	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalFrames++
	if frameType == models.FrameTypeFull {
		h.fullFrames++
	} else {
		h.deltaFrames++
	}
}

func (h *Hub) recordSendFailure() {
	sendFailuresTotal.Inc()

	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.sendFailures++
}

func (h *Hub) incrementTotalConnections() {
	connectionsTotal.Inc()

	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	h.totalConnections++
}
