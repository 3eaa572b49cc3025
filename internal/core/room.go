package core

// Room groups sessions subscribed to one project's events.
// Rooms are created lazily on first join and removed when the last member
// leaves; an empty room is expected, not an error.
type Room struct {
	ProjectID int64
	sessions  map[*Session]struct{}
}

// NewRoom constructs a room with no sessions.
func NewRoom(projectID int64) *Room {
	return &Room{
		ProjectID: projectID,
		sessions:  make(map[*Session]struct{}),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.sessions[s]; exists {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(s *Session) bool {
	if _, exists := r.sessions[s]; !exists {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Broadcast sends an event to all sessions in the room. Delivery to each
// session is independent; a full buffer drops the event for that session only.
// Returns the number of sessions the event could not be queued for.
func (r *Room) Broadcast(event *Event) int {
	dropped := 0
	for session := range r.sessions {
		select {
		case session.Events <- event:
		default:
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.sessions) == 0
}

// Size returns the number of sessions in the room.
func (r *Room) Size() int {
	return len(r.sessions)
}
