package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Hub owns every session and room. It is the session registry, the room router
// and the event broadcaster in one place: joins, leaves, disconnects and
// publishes all take effect synchronously under one lock, so MembersOf always
// reflects the latest membership when read right before a fan-out.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	rooms      map[int64]*Room
	sendBuffer int
	closed     bool
	log        *zerolog.Logger
}

// NewHub creates a hub. sendBuffer sizes each session's outbound event channel.
func NewHub(sendBuffer int, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		rooms:      make(map[int64]*Room),
		sendBuffer: sendBuffer,
		log:        logger,
	}
}

// Register admits an authenticated connection and returns its session.
// The caller must pair it with Unregister on every termination path.
func (h *Hub) Register(userID int64, username string) *Session {
	session := newSession(uuid.NewString(), userID, username, h.sendBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(session.Events)
		return session
	}
	h.sessions[session.ID] = session
	h.mu.Unlock()

	h.log.Info().
		Str("session_id", session.ID).
		Int64("user_id", userID).
		Str("username", username).
		Msg("session registered")
	return session
}

// Unregister removes the session from every room it belongs to and closes its
// event channel. It is safe to call more than once.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[session.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, session.ID)
	h.removeFromAllRoomsLocked(session)
	close(session.Events)
	h.mu.Unlock()

	h.log.Info().
		Str("session_id", session.ID).
		Int64("user_id", session.UserID).
		Msg("session unregistered")
}

// Join subscribes the session to a project's room. Joining an already-joined
// room is a no-op. Membership authorization happened in the REST layer that
// rendered the project; the router trusts the authenticated session.
func (h *Hub) Join(session *Session, projectID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[session.ID]; !ok {
		return
	}
	if _, joined := session.rooms[projectID]; joined {
		return
	}

	room, ok := h.rooms[projectID]
	if !ok {
		room = NewRoom(projectID)
		h.rooms[projectID] = room
	}
	room.Add(session)
	session.rooms[projectID] = struct{}{}

	h.log.Debug().
		Str("session_id", session.ID).
		Int64("project_id", projectID).
		Int("room_size", room.Size()).
		Msg("joined room")
}

// Leave unsubscribes the session from a project's room. Leaving a room the
// session is not in is a no-op.
func (h *Hub) Leave(session *Session, projectID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(session, projectID)
}

// MembersOf returns a snapshot of the sessions currently in a project's room.
func (h *Hub) MembersOf(projectID int64) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[projectID]
	if !ok {
		return nil
	}
	members := make([]*Session, 0, room.Size())
	for s := range room.sessions {
		members = append(members, s)
	}
	return members
}

// Publish delivers the event to every session currently in the project's room.
// Called synchronously by the mutation pipeline after the write is committed
// and the payload fully populated. A slow consumer loses the event without
// affecting other recipients; delivery is never retried.
func (h *Hub) Publish(projectID int64, event *Event) {
	h.mu.RLock()
	room, ok := h.rooms[projectID]
	var dropped, size int
	if ok {
		size = room.Size()
		dropped = room.Broadcast(event)
	}
	h.mu.RUnlock()

	if !ok {
		// Nobody is watching this project right now.
		return
	}
	if dropped > 0 {
		h.log.Warn().
			Int64("project_id", projectID).
			Int("kind", int(event.Kind)).
			Int("dropped", dropped).
			Msg("event dropped for slow consumers")
	}
	h.log.Debug().
		Int64("project_id", projectID).
		Int("kind", int(event.Kind)).
		Int("recipients", size-dropped).
		Msg("event published")
}

// DisbandRoom removes every session from a project's room. Used when the
// project itself is deleted; remaining joined would only leak membership.
func (h *Hub) DisbandRoom(projectID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[projectID]
	if !ok {
		return
	}
	for s := range room.sessions {
		delete(s.rooms, projectID)
	}
	delete(h.rooms, projectID)
}

// Shutdown unregisters every session, closing their event channels so
// transport write loops terminate.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, session := range h.sessions {
		h.removeFromAllRoomsLocked(session)
		close(session.Events)
		delete(h.sessions, id)
	}
}

func (h *Hub) leaveLocked(session *Session, projectID int64) {
	if _, joined := session.rooms[projectID]; !joined {
		return
	}
	delete(session.rooms, projectID)

	room, ok := h.rooms[projectID]
	if !ok {
		return
	}
	room.Remove(session)
	if room.Empty() {
		delete(h.rooms, projectID)
	}
}

func (h *Hub) removeFromAllRoomsLocked(session *Session) {
	for projectID := range session.rooms {
		h.leaveLocked(session, projectID)
	}
}
