package core

// Session is an authenticated push-channel connection as seen by the core layer.
// Sessions are created and destroyed exclusively by the Hub; the transport layer
// drains Events into the socket.
type Session struct {
	ID       string
	UserID   int64
	Username string
	Events   chan *Event

	// rooms is the set of project IDs this session has joined.
	// Guarded by the hub mutex.
	rooms map[int64]struct{}
}

func newSession(id string, userID int64, username string, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Session{
		ID:       id,
		UserID:   userID,
		Username: username,
		Events:   make(chan *Event, sendBuffer),
		rooms:    make(map[int64]struct{}),
	}
}
