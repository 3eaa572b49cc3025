package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/taskwire/taskwire-server/internal/auth"
	"github.com/taskwire/taskwire-server/internal/config"
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/proto"
	"github.com/taskwire/taskwire-server/internal/service/projects"
	"github.com/taskwire/taskwire-server/internal/service/tasks"
	"github.com/taskwire/taskwire-server/internal/store/sqlite"
)

// testServer wires the full stack over a throwaway database.
type testServer struct {
	t   *testing.T
	ts  *httptest.Server
	hub *core.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	cfg := config.Default()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}

	nop := zerolog.Nop()
	authService := auth.NewService(st, jwtConfig)
	hub := core.NewHub(cfg.SendBuffer, &nop)
	projectService := projects.NewService(st, hub, &nop)
	taskService := tasks.NewService(st, hub, &nop)

	srv := NewServer(hub, authService, projectService, taskService, st, cfg, &nop)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		hub.Shutdown()
		st.Close()
	})

	return &testServer{t: t, ts: ts, hub: hub}
}

// do sends an authenticated JSON request and decodes the response into out.
func (s *testServer) do(method, path, token string, body, out any) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := stdhttp.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		s.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.ts.Client().Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// register creates a user and returns their token.
func (s *testServer) register(username string) string {
	s.t.Helper()

	var resp AuthResponse
	code := s.do(stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Password: "secret123",
	}, &resp)
	if code != stdhttp.StatusCreated {
		s.t.Fatalf("register %s: status %d", username, code)
	}
	return resp.Token
}

// createProject creates a project and returns its wire payload.
func (s *testServer) createProject(token, name string) proto.ProjectPayload {
	s.t.Helper()

	var resp proto.ProjectPayload
	code := s.do(stdhttp.MethodPost, "/api/projects", token, ProjectRequest{Name: name, Color: "#00ff00"}, &resp)
	if code != stdhttp.StatusCreated {
		s.t.Fatalf("create project %s: status %d", name, code)
	}
	return resp
}

// createTask creates a task in a project and returns its wire payload.
func (s *testServer) createTask(token string, projectID int64, title string) proto.TaskPayload {
	s.t.Helper()

	var resp proto.TaskPayload
	code := s.do(stdhttp.MethodPost, "/api/projects/"+itoa(projectID)+"/tasks", token,
		CreateTaskRequest{Title: title}, &resp)
	if code != stdhttp.StatusCreated {
		s.t.Fatalf("create task %s: status %d", title, code)
	}
	return resp
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// wsDial opens an authenticated WebSocket connection.
func (s *testServer) wsDial(token string) *websocket.Conn {
	s.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		s.t.Fatalf("ws dial: %v", err)
	}
	s.t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// wsFrame mirrors the outbound envelope for decoding in tests.
type wsFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func sendControl(t *testing.T, conn *websocket.Conn, msgType string, projectID int64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := wsjson.Write(ctx, conn, map[string]any{
		"type": msgType,
		"data": map[string]any{"project_id": projectID},
	})
	if err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frame wsFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func mustEventFrame(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()

	frame := readFrame(t, conn)
	if frame.Type != proto.OutboundTypeEvent || frame.Event != event {
		t.Fatalf("expected %s event, got %+v", event, frame)
	}
	return frame
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var frame wsFrame
	if err := wsjson.Read(ctx, conn, &frame); err == nil {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

// waitForMembers polls until the room has the expected session count. Control
// messages are processed asynchronously, so tests sync on room state before
// triggering a broadcast.
func (s *testServer) waitForMembers(projectID int64, n int) {
	s.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.hub.MembersOf(projectID)) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.t.Fatalf("room %d never reached %d members", projectID, n)
}
