package hub

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/XavierBriggs/fortuna/services/arena/pkg/models"
	"github.com/XavierBriggs/fortuna/services/arena/pkg/statetree"
)

type matchStatus int

const (
	statusActive matchStatus = iota
	statusEnded
)

type spectator struct {
	conn          SpectatorConnection
	lastHeartbeat time.Time
}

// match is the per-match broadcast record. All fields are guarded by mu.
type match struct {
	mu sync.Mutex

	id       string
	status   matchStatus
	endedAt  time.Time
	counter  int64
	lastFull *models.BroadcastFrame

	baseline     statetree.Value
	baselineTick int64
	hasBaseline  bool

	buffer     deque.Deque[models.BroadcastFrame]
	spectators map[string]*spectator
}

func newMatch(id string) *match {
	return &match{
		id:         id,
		status:     statusActive,
		spectators: make(map[string]*spectator),
	}
}

// nextFrame advances the counter and builds a full or delta frame for state,
// which becomes the new diff baseline
func (m *match) nextFrame(state statetree.Value, fullInterval int, now time.Time) models.BroadcastFrame {
	m.counter++

	frame := models.BroadcastFrame{
		MatchID:   m.id,
		Tick:      m.counter,
		Timestamp: now.UnixMilli(),
	}

	if !m.hasBaseline || m.counter%int64(fullInterval) == 0 {
		frame.Type = models.FrameTypeFull
		frame.State = state.Canonical()
	} else {
		frame.Type = models.FrameTypeDelta
		frame.Delta = &models.StateDelta{
			FromTick: m.baselineTick,
			ToTick:   m.counter,
			Changes:  statetree.Diff(m.baseline, state),
		}
	}

	m.baseline = state
	m.baselineTick = m.counter
	m.hasBaseline = true
	return frame
}

// push appends to the replay buffer, evicting the oldest frames past limit
func (m *match) push(frame models.BroadcastFrame, limit int) {
	m.buffer.PushBack(frame)
	for m.buffer.Len() > limit {
		m.buffer.PopFront()
	}
}

func (m *match) replay(fromTick int64) []models.BroadcastFrame {
	out := make([]models.BroadcastFrame, 0, m.buffer.Len())
	for i := 0; i < m.buffer.Len(); i++ {
		f := m.buffer.At(i)
		if f.Tick >= fromTick {
			out = append(out, f.Clone())
		}
	}
	return out
}

// fanOut sends frame to every spectator and unregisters those that failed.
// The failed connections are returned so the caller can close them unlocked.
func (m *match) fanOut(frame models.BroadcastFrame) []SpectatorConnection {
	var failed []SpectatorConnection
	for id, s := range m.spectators {
		if err := s.conn.SendFrame(adaptFrame(frame, s.conn.Quality())); err != nil {
			failed = append(failed, s.conn)
			delete(m.spectators, id)
			spectatorsGauge.Dec()
		}
	}
	return failed
}
