// Package collab relays wall snapshots between the live sessions of a draft.
//
// Every publish carries the full wall state, and the last snapshot a session
// receives wins. There is no merge: two editors publishing at the same time may be
// observed in different orders by different sessions. Each session sees messages in
// the order the hub accepted them.
package collab

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"walldraft/internal/domain"
	"walldraft/internal/metrics"
)

// TypeWallUpdate is the message type of a wall snapshot.
const TypeWallUpdate = "wall_update"

// Message is the frame exchanged on a live session.
type Message struct {
	Type     string          `json:"type"`
	WallData json.RawMessage `json:"wallData,omitempty"`
	From     string          `json:"from,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Session is one live connection to a draft.
type Session struct {
	id      uuid.UUID
	draftID string
	level   domain.PermissionLevel
	ch      chan Message
	closed  bool
}

func (s *Session) ID() string                    { return s.id.String() }
func (s *Session) DraftID() string               { return s.draftID }
func (s *Session) Level() domain.PermissionLevel { return s.level }

// Messages is closed when the session is closed.
func (s *Session) Messages() <-chan Message {
	return s.ch
}

// Hub tracks open sessions per draft. A draft with no sessions holds no state.
type Hub struct {
	mu     sync.RWMutex
	drafts map[string]map[uuid.UUID]*Session

	buffer  int
	metrics *metrics.Metrics
	logger  domain.Logger
}

func NewHub(buffer int, m *metrics.Metrics, logger domain.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		drafts:  make(map[string]map[uuid.UUID]*Session),
		buffer:  buffer,
		metrics: m,
		logger:  logger,
	}
}

// Open registers a session at the given level. Requesters without access cannot open.
func (h *Hub) Open(draftID string, level domain.PermissionLevel) (*Session, error) {
	if level == domain.LevelNone || !level.AtLeast(domain.LevelViewer) {
		return nil, domain.ErrForbidden
	}

	s := &Session{
		id:      uuid.New(),
		draftID: draftID,
		level:   level,
		ch:      make(chan Message, h.buffer),
	}

	h.mu.Lock()
	sessions, ok := h.drafts[draftID]
	if !ok {
		sessions = make(map[uuid.UUID]*Session)
		h.drafts[draftID] = sessions
	}
	sessions[s.id] = s
	count := len(sessions)
	h.mu.Unlock()

	h.metrics.SessionOpened()
	h.logger.Debug("Collaboration session opened", "draft_id", draftID, "session_id", s.ID(), "level", level, "sessions", count)
	return s, nil
}

// Publish sends a snapshot from s to every other session on the same draft and
// returns how many sessions received it. Viewers may not publish.
func (h *Hub) Publish(s *Session, wallData json.RawMessage) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if s == nil || s.closed {
		return 0, domain.ErrInvalidSession
	}
	if !s.level.CanEdit() {
		return 0, domain.ErrForbidden
	}

	msg := Message{Type: TypeWallUpdate, WallData: wallData, From: s.ID()}
	return h.fanOutLocked(s.draftID, msg, s.id), nil
}

// Broadcast sends a snapshot to every session on the draft. It is used for writes that
// did not come from a live session.
func (h *Hub) Broadcast(draftID string, wallData json.RawMessage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fanOutLocked(draftID, Message{Type: TypeWallUpdate, WallData: wallData}, uuid.Nil)
}

// fanOutLocked must be called with h.mu held for reading. A session whose queue is
// full misses the message instead of stalling the publisher.
func (h *Hub) fanOutLocked(draftID string, msg Message, skip uuid.UUID) int {
	delivered := 0
	for id, sess := range h.drafts[draftID] {
		if id == skip {
			continue
		}
		select {
		case sess.ch <- msg:
			delivered++
		default:
			h.metrics.Dropped()
			h.logger.Warn("Collaboration session queue full, dropping update", "draft_id", draftID, "session_id", sess.ID())
		}
	}
	h.metrics.Broadcast(delivered)
	return delivered
}

// OnMessage calls fn for each message delivered to s, in order, on a separate
// goroutine. The returned channel is closed after the session closes and fn has
// returned for the last message.
func (h *Hub) OnMessage(s *Session, fn func(Message)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range s.ch {
			fn(msg)
		}
	}()
	return done
}

// Close removes the session. Closing twice is a no-op.
func (h *Hub) Close(s *Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	if s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true
	sessions := h.drafts[s.draftID]
	delete(sessions, s.id)
	remaining := len(sessions)
	if remaining == 0 {
		delete(h.drafts, s.draftID)
	}
	close(s.ch)
	h.mu.Unlock()

	h.metrics.SessionClosed()
	h.logger.Debug("Collaboration session closed", "draft_id", s.draftID, "session_id", s.ID(), "sessions", remaining)
}

// SessionCount reports the open sessions on a draft.
func (h *Hub) SessionCount(draftID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.drafts[draftID])
}
