package http

import (
	stdhttp "net/http"
	"testing"

	"github.com/taskwire/taskwire-server/internal/proto"
)

func TestRegisterAndLoginEndpoints(t *testing.T) {
	s := newTestServer(t)

	var resp AuthResponse
	code := s.do(stdhttp.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "secret123"}, &resp)
	if code != stdhttp.StatusCreated || resp.Token == "" {
		t.Fatalf("register: status %d, token %q", code, resp.Token)
	}

	code = s.do(stdhttp.MethodPost, "/api/register", "", RegisterRequest{Username: "alice", Password: "secret123"}, nil)
	if code != stdhttp.StatusConflict {
		t.Fatalf("duplicate register: status %d", code)
	}

	code = s.do(stdhttp.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "secret123"}, &resp)
	if code != stdhttp.StatusOK || resp.Token == "" {
		t.Fatalf("login: status %d", code)
	}

	code = s.do(stdhttp.MethodPost, "/api/login", "", LoginRequest{Username: "alice", Password: "wrong"}, nil)
	if code != stdhttp.StatusUnauthorized {
		t.Fatalf("bad login: status %d", code)
	}

	code = s.do(stdhttp.MethodPost, "/api/register", "", RegisterRequest{Username: "x", Password: "secret123"}, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("short username: status %d", code)
	}
}

func TestAuthMiddlewareGuardsAPI(t *testing.T) {
	s := newTestServer(t)

	if code := s.do(stdhttp.MethodGet, "/api/projects", "", nil, nil); code != stdhttp.StatusUnauthorized {
		t.Fatalf("no token: status %d", code)
	}
	if code := s.do(stdhttp.MethodGet, "/api/projects", "garbage", nil, nil); code != stdhttp.StatusUnauthorized {
		t.Fatalf("bad token: status %d", code)
	}
}

func TestProjectEndpoints(t *testing.T) {
	s := newTestServer(t)
	aliceToken := s.register("alice")
	bobToken := s.register("bob")

	project := s.createProject(aliceToken, "board")
	if project.Owner.Username != "alice" || len(project.Members) != 1 {
		t.Fatalf("unexpected project payload: %+v", project)
	}

	// Non-members cannot see the project.
	code := s.do(stdhttp.MethodGet, "/api/projects/"+itoa(project.ID), bobToken, nil, nil)
	if code != stdhttp.StatusForbidden {
		t.Fatalf("non-member get: status %d", code)
	}

	var updated proto.ProjectPayload
	code = s.do(stdhttp.MethodPut, "/api/projects/"+itoa(project.ID), aliceToken,
		ProjectRequest{Name: "renamed", Color: "#123456"}, &updated)
	if code != stdhttp.StatusOK || updated.Name != "renamed" {
		t.Fatalf("update: status %d, payload %+v", code, updated)
	}

	var withTasks ProjectWithTasksResponse
	code = s.do(stdhttp.MethodGet, "/api/projects/"+itoa(project.ID), aliceToken, nil, &withTasks)
	if code != stdhttp.StatusOK || withTasks.Project.Name != "renamed" {
		t.Fatalf("get: status %d, payload %+v", code, withTasks)
	}

	var listing []ProjectSummary
	code = s.do(stdhttp.MethodGet, "/api/projects", aliceToken, nil, &listing)
	if code != stdhttp.StatusOK || len(listing) != 1 {
		t.Fatalf("list: status %d, %d entries", code, len(listing))
	}

	// Nonexistent projects look like non-membership; existence is not leaked.
	code = s.do(stdhttp.MethodGet, "/api/projects/999", aliceToken, nil, nil)
	if code != stdhttp.StatusForbidden {
		t.Fatalf("missing project: status %d", code)
	}
	code = s.do(stdhttp.MethodGet, "/api/projects/abc", aliceToken, nil, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("bad project id: status %d", code)
	}
}

func TestMembershipEndpoints(t *testing.T) {
	s := newTestServer(t)
	aliceToken := s.register("alice")
	bobToken := s.register("bob")

	project := s.createProject(aliceToken, "board")

	var withBob proto.ProjectPayload
	code := s.do(stdhttp.MethodPost, "/api/projects/"+itoa(project.ID)+"/members", aliceToken,
		AddMemberRequest{UserID: 2}, &withBob)
	if code != stdhttp.StatusOK || len(withBob.Members) != 2 {
		t.Fatalf("add member: status %d, payload %+v", code, withBob)
	}

	// Only the owner can delete; the owner cannot be removed.
	code = s.do(stdhttp.MethodDelete, "/api/projects/"+itoa(project.ID), bobToken, nil, nil)
	if code != stdhttp.StatusForbidden {
		t.Fatalf("non-owner delete: status %d", code)
	}
	code = s.do(stdhttp.MethodDelete, "/api/projects/"+itoa(project.ID)+"/members/1", aliceToken, nil, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("owner removal: status %d", code)
	}

	// Members can remove themselves.
	var withoutBob proto.ProjectPayload
	code = s.do(stdhttp.MethodDelete, "/api/projects/"+itoa(project.ID)+"/members/2", bobToken, nil, &withoutBob)
	if code != stdhttp.StatusOK || len(withoutBob.Members) != 1 {
		t.Fatalf("self removal: status %d, payload %+v", code, withoutBob)
	}
}

func TestTaskEndpoints(t *testing.T) {
	s := newTestServer(t)
	aliceToken := s.register("alice")
	bobToken := s.register("bob")

	project := s.createProject(aliceToken, "board")
	task := s.createTask(aliceToken, project.ID, "write docs")
	if task.Status != "todo" || task.Priority != "medium" {
		t.Fatalf("defaults not applied: %+v", task)
	}
	if task.Project.ID != project.ID || task.CreatedBy.Username != "alice" {
		t.Fatalf("references not resolved: %+v", task)
	}

	// Assignee outside the project is rejected.
	outsider := int64(2)
	code := s.do(stdhttp.MethodPost, "/api/projects/"+itoa(project.ID)+"/tasks", aliceToken,
		CreateTaskRequest{Title: "bad", AssigneeID: &outsider}, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("outside assignee: status %d", code)
	}

	// Non-members cannot touch the project's tasks.
	code = s.do(stdhttp.MethodGet, "/api/projects/"+itoa(project.ID)+"/tasks", bobToken, nil, nil)
	if code != stdhttp.StatusForbidden {
		t.Fatalf("non-member list: status %d", code)
	}
	badStatus := "archived"
	code = s.do(stdhttp.MethodPut, "/api/tasks/"+itoa(task.ID), bobToken,
		UpdateTaskRequest{Status: &badStatus}, nil)
	if code != stdhttp.StatusForbidden {
		t.Fatalf("non-member update: status %d", code)
	}

	code = s.do(stdhttp.MethodPut, "/api/tasks/"+itoa(task.ID), aliceToken,
		UpdateTaskRequest{Status: &badStatus}, nil)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("bad status: status %d", code)
	}

	var deleted proto.TaskDeletedPayload
	code = s.do(stdhttp.MethodDelete, "/api/tasks/"+itoa(task.ID), aliceToken, nil, &deleted)
	if code != stdhttp.StatusOK || deleted.TaskID != task.ID {
		t.Fatalf("delete: status %d, payload %+v", code, deleted)
	}
	code = s.do(stdhttp.MethodDelete, "/api/tasks/"+itoa(task.ID), aliceToken, nil, nil)
	if code != stdhttp.StatusNotFound {
		t.Fatalf("double delete: status %d", code)
	}
}

func TestUserSearchEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.register("alice")
	s.register("albert")
	s.register("bob")

	var results []proto.UserPayload
	code := s.do(stdhttp.MethodGet, "/api/users/search?q=al", token, nil, &results)
	if code != stdhttp.StatusOK || len(results) != 2 {
		t.Fatalf("search: status %d, %d results", code, len(results))
	}

	code = s.do(stdhttp.MethodGet, "/api/users/search?q=", token, nil, &results)
	if code != stdhttp.StatusOK || len(results) != 0 {
		t.Fatalf("empty search: status %d, %d results", code, len(results))
	}
}
