package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/taskwire/taskwire-server/internal/proto"
)

func TestWSHandshakeRequiresValidToken(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	base := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	if _, _, err := websocket.Dial(ctx, base, nil); err == nil {
		t.Fatal("expected handshake rejection without token")
	}
	if _, _, err := websocket.Dial(ctx, base+"?token=garbage", nil); err == nil {
		t.Fatal("expected handshake rejection with bad token")
	}
}

func TestWSHandshakeAcceptsBearerHeader(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	base := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, base, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial with bearer header: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestTaskEventsReachJoinedRoomOnly(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register("alice")
	bobToken := s.register("bob")
	carolToken := s.register("carol")

	project := s.createProject(aliceToken, "board")

	// bob becomes a member; carol stays outside the room.
	var bobUser struct {
		Members []proto.UserPayload `json:"members"`
	}
	code := s.do(stdhttp.MethodPost, "/api/projects/"+itoa(project.ID)+"/members", aliceToken,
		AddMemberRequest{UserID: 2}, &bobUser)
	if code != stdhttp.StatusOK {
		t.Fatalf("add member: status %d", code)
	}

	aliceWS := s.wsDial(aliceToken)
	bobWS := s.wsDial(bobToken)
	carolWS := s.wsDial(carolToken)

	sendControl(t, aliceWS, proto.InboundTypeJoinProject, project.ID)
	sendControl(t, bobWS, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 2)

	created := s.createTask(aliceToken, project.ID, "write docs")

	for _, conn := range []*websocket.Conn{aliceWS, bobWS} {
		frame := mustEventFrame(t, conn, proto.EventTaskCreated)

		var payload proto.TaskPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			t.Fatalf("decode task payload: %v", err)
		}
		// Broadcast payload and REST response are the same shape.
		if payload.ID != created.ID || payload.Title != created.Title ||
			payload.Project.ID != created.Project.ID || payload.CreatedBy != created.CreatedBy {
			t.Fatalf("broadcast diverges from response: %+v vs %+v", payload, created)
		}
	}
	expectNoFrame(t, carolWS)
}

func TestLeaveStopsDelivery(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register("alice")
	project := s.createProject(aliceToken, "board")
	task := s.createTask(aliceToken, project.ID, "initial")

	aliceWS := s.wsDial(aliceToken)
	otherWS := s.wsDial(aliceToken) // second device of the same user

	sendControl(t, aliceWS, proto.InboundTypeJoinProject, project.ID)
	sendControl(t, otherWS, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 2)

	sendControl(t, otherWS, proto.InboundTypeLeaveProject, project.ID)
	s.waitForMembers(project.ID, 1)

	status := "done"
	var updated proto.TaskPayload
	code := s.do(stdhttp.MethodPut, "/api/tasks/"+itoa(task.ID), aliceToken,
		UpdateTaskRequest{Status: &status}, &updated)
	if code != stdhttp.StatusOK {
		t.Fatalf("update task: status %d", code)
	}

	frame := mustEventFrame(t, aliceWS, proto.EventTaskUpdated)
	var payload proto.TaskPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode task payload: %v", err)
	}
	if payload.Status != "done" {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
	expectNoFrame(t, otherWS)
}

func TestTaskDeletedBroadcastsTombstone(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register("alice")
	project := s.createProject(aliceToken, "board")
	task := s.createTask(aliceToken, project.ID, "doomed")

	conn := s.wsDial(aliceToken)
	sendControl(t, conn, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 1)

	code := s.do(stdhttp.MethodDelete, "/api/tasks/"+itoa(task.ID), aliceToken, nil, nil)
	if code != stdhttp.StatusOK {
		t.Fatalf("delete task: status %d", code)
	}

	frame := mustEventFrame(t, conn, proto.EventTaskDeleted)
	var payload proto.TaskDeletedPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode tombstone: %v", err)
	}
	if payload.TaskID != task.ID || payload.ProjectID != project.ID {
		t.Fatalf("unexpected tombstone: %+v", payload)
	}
}

func TestProjectDeletedDisbandsRoom(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register("alice")
	project := s.createProject(aliceToken, "board")

	conn := s.wsDial(aliceToken)
	sendControl(t, conn, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 1)

	code := s.do(stdhttp.MethodDelete, "/api/projects/"+itoa(project.ID), aliceToken, nil, nil)
	if code != stdhttp.StatusOK {
		t.Fatalf("delete project: status %d", code)
	}

	frame := mustEventFrame(t, conn, proto.EventProjectDeleted)
	var payload proto.ProjectDeletedPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ProjectID != project.ID {
		t.Fatalf("unexpected project id: %d", payload.ProjectID)
	}

	s.waitForMembers(project.ID, 0)
}

func TestMemberAddedCarriesFullProject(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register("alice")
	s.register("bob")
	project := s.createProject(aliceToken, "board")

	conn := s.wsDial(aliceToken)
	sendControl(t, conn, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 1)

	code := s.do(stdhttp.MethodPost, "/api/projects/"+itoa(project.ID)+"/members", aliceToken,
		AddMemberRequest{UserID: 2}, nil)
	if code != stdhttp.StatusOK {
		t.Fatalf("add member: status %d", code)
	}

	frame := mustEventFrame(t, conn, proto.EventMemberAdded)
	var payload proto.MemberAddedPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.NewMember.Username != "bob" {
		t.Fatalf("unexpected new member: %+v", payload.NewMember)
	}
	if len(payload.Project.Members) != 2 {
		t.Fatalf("expected full member list, got %+v", payload.Project.Members)
	}
}

func TestMalformedControlMessages(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")
	conn := s.wsDial(token)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Missing project_id.
	if err := wsjson.Write(ctx, conn, map[string]any{
		"type": proto.InboundTypeJoinProject,
		"data": map[string]any{},
	}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != proto.OutboundTypeError || frame.Error == nil || frame.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request error, got %+v", frame)
	}

	// Unknown message type.
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Type != proto.OutboundTypeError || frame.Error == nil {
		t.Fatalf("expected error frame, got %+v", frame)
	}

	// The connection survives protocol errors.
	project := s.createProject(token, "board")
	sendControl(t, conn, proto.InboundTypeJoinProject, project.ID)
	s.waitForMembers(project.ID, 1)
}
