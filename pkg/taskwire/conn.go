package taskwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when using a connection after Close.
var ErrClosed = errors.New("connection closed")

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// Conn is the push-channel connection. It dials the server's /ws endpoint
// with the same bearer token used for REST calls, dispatches inbound events
// onto its Bus and re-issues join-project for every active project after a
// transport reconnect, since room membership does not survive a disconnect.
type Conn struct {
	baseURL string
	token   string
	bus     *Bus
	log     *zerolog.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	joined map[int64]struct{}
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the server and starts the receive loop.
func Dial(ctx context.Context, baseURL, token string, bus *Bus, logger *zerolog.Logger) (*Conn, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Conn{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		bus:     bus,
		log:     logger,
		joined:  make(map[int64]struct{}),
		done:    make(chan struct{}),
	}

	ws, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx)

	return c, nil
}

// Bus returns the connection's event bus.
func (c *Conn) Bus() *Bus {
	return c.bus
}

// JoinProject subscribes this connection to a project's events.
// Fire-and-forget; no acknowledgement is expected.
func (c *Conn) JoinProject(projectID int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.joined[projectID] = struct{}{}
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		// Reconnect in progress; the rejoin sweep will cover it.
		return nil
	}
	return c.sendControl(ws, "join-project", projectID)
}

// LeaveProject unsubscribes this connection from a project's events.
func (c *Conn) LeaveProject(projectID int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.joined, projectID)
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	return c.sendControl(ws, "leave-project", projectID)
}

// Close terminates the connection and stops reconnecting.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "closing")
	}
	<-c.done
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.baseURL, err)
	}
	return ws, nil
}

func (c *Conn) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// run reads events until the socket drops, then redials with backoff and
// rejoins every project the client still considers active.
func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		err := c.readLoop(ctx, ws)

		// Drop the dead socket so join/leave defer to the rejoin sweep
		// instead of writing into it.
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Msg("push channel dropped, reconnecting")

		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		var envelope struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *struct {
				Code string `json:"code"`
				Msg  string `json:"msg"`
			} `json:"error"`
		}
		if err := wsjson.Read(ctx, ws, &envelope); err != nil {
			return err
		}

		switch envelope.Type {
		case "event":
			event, err := decodeEvent(envelope.Event, envelope.Data)
			if err != nil {
				c.log.Warn().Err(err).Str("event", envelope.Event).Msg("undecodable event")
				continue
			}
			c.bus.Dispatch(event)
		case "error":
			if envelope.Error != nil {
				c.log.Warn().
					Str("code", envelope.Error.Code).
					Str("msg", envelope.Error.Msg).
					Msg("server error on push channel")
			}
		}
	}
}

func (c *Conn) reconnect(ctx context.Context) bool {
	delay := reconnectMinDelay
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		ws, err := c.dial(ctx)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("reconnect failed")
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close(websocket.StatusNormalClosure, "closing")
			return false
		}
		c.ws = ws
		rejoin := make([]int64, 0, len(c.joined))
		for id := range c.joined {
			rejoin = append(rejoin, id)
		}
		c.mu.Unlock()

		for _, projectID := range rejoin {
			if err := c.sendControl(ws, "join-project", projectID); err != nil {
				c.log.Warn().Err(err).Int64("project_id", projectID).Msg("rejoin failed")
			}
		}
		c.log.Info().Int("rejoined", len(rejoin)).Msg("push channel reconnected")
		return true
	}
}

func (c *Conn) sendControl(ws *websocket.Conn, msgType string, projectID int64) error {
	data, err := json.Marshal(struct {
		ProjectID int64 `json:"project_id"`
	}{ProjectID: projectID})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, ws, struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: msgType, Data: data})
}

// decodeEvent maps a wire event name and payload to the typed union.
func decodeEvent(name string, data json.RawMessage) (*Event, error) {
	event := &Event{Kind: EventKind(name)}
	switch EventKind(name) {
	case EventTaskCreated, EventTaskUpdated:
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		event.Task = &task
	case EventTaskDeleted:
		var deleted TaskDeleted
		if err := json.Unmarshal(data, &deleted); err != nil {
			return nil, err
		}
		event.TaskDeleted = &deleted
	case EventProjectCreated, EventProjectUpdated:
		var project Project
		if err := json.Unmarshal(data, &project); err != nil {
			return nil, err
		}
		event.Project = &project
	case EventProjectDeleted:
		var deleted ProjectDeleted
		if err := json.Unmarshal(data, &deleted); err != nil {
			return nil, err
		}
		event.ProjectDeleted = &deleted
	case EventMemberAdded:
		var added MemberAdded
		if err := json.Unmarshal(data, &added); err != nil {
			return nil, err
		}
		event.MemberAdded = &added
	case EventMemberRemoved:
		var removed MemberRemoved
		if err := json.Unmarshal(data, &removed); err != nil {
			return nil, err
		}
		event.MemberRemoved = &removed
	default:
		return nil, fmt.Errorf("unknown event kind %q", name)
	}
	return event, nil
}
