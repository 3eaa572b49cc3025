package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/store"
	"github.com/taskwire/taskwire-server/internal/store/sqlite"
)

type testEnv struct {
	store *sqlite.SQLiteStore
	hub   *core.Hub
	svc   *Service
	alice *store.User
	bob   *store.User
	carol *store.User
	board *store.Project
}

// newTestEnv builds a service over a real store with alice owning a board,
// bob as a member and carol outside the project.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	carol, err := s.CreateUser(ctx, "carol", "hash")
	if err != nil {
		t.Fatalf("create carol: %v", err)
	}

	board, err := s.CreateProject(ctx, "board", "#ff0000", alice.ID)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := s.AddMember(ctx, board.ID, bob.ID); err != nil {
		t.Fatalf("add bob: %v", err)
	}

	hub := core.NewHub(8, nil)
	nop := zerolog.Nop()
	return &testEnv{
		store: s,
		hub:   hub,
		svc:   NewService(s, hub, &nop),
		alice: alice,
		bob:   bob,
		carol: carol,
		board: board,
	}
}

// subscribe registers a hub session joined to the board room.
func (e *testEnv) subscribe(t *testing.T, userID int64, username string) *core.Session {
	t.Helper()

	sess := e.hub.Register(userID, username)
	e.hub.Join(sess, e.board.ID)
	return sess
}

func mustEvent(t *testing.T, ch <-chan *core.Event, kind core.EventKind) *core.Event {
	t.Helper()

	select {
	case ev := <-ch:
		if ev == nil || ev.Kind != kind {
			t.Fatalf("unexpected event: %+v", ev)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event kind %v not received", kind)
		return nil
	}
}

func mustNoEvent(t *testing.T, ch <-chan *core.Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCreatePublishesFullPayload(t *testing.T) {
	env := newTestEnv(t)
	sess := env.subscribe(t, env.bob.ID, "bob")

	detail, err := env.svc.Create(context.Background(), env.alice.ID, env.board.ID, CreateInput{
		Title:      "write docs",
		AssigneeID: &env.bob.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if detail.Status != store.TaskStatusTodo || detail.Priority != store.TaskPriorityMedium {
		t.Fatalf("defaults not applied: %+v", detail)
	}

	ev := mustEvent(t, sess.Events, core.EventTaskCreated)
	if ev.Task != detail {
		t.Fatal("broadcast payload is not the returned entity")
	}
	if ev.Task.ProjectName != "board" || ev.Task.Assignee == nil {
		t.Fatalf("payload references not resolved: %+v", ev.Task)
	}
}

func TestCreateRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	sess := env.subscribe(t, env.alice.ID, "alice")

	_, err := env.svc.Create(context.Background(), env.carol.ID, env.board.ID, CreateInput{Title: "nope"})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected not member, got %v", err)
	}
	mustNoEvent(t, sess.Events)
}

func TestCreateValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "   "}); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected invalid title, got %v", err)
	}
	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "t", Status: "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "t", Priority: "urgent"}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected invalid priority, got %v", err)
	}
	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "t", AssigneeID: &env.carol.ID}); !errors.Is(err, ErrAssigneeNotMember) {
		t.Fatalf("expected assignee not member, got %v", err)
	}
}

func TestUpdateAppliesPartialChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{
		Title:      "initial",
		AssigneeID: &env.bob.ID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sess := env.subscribe(t, env.bob.ID, "bob")

	done := store.TaskStatusDone
	detail, err := env.svc.Update(ctx, env.bob.ID, created.ID, UpdateInput{
		Status:   &done,
		Unassign: true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if detail.Title != "initial" {
		t.Fatalf("untouched field changed: %+v", detail)
	}
	if detail.Status != store.TaskStatusDone || detail.Assignee != nil {
		t.Fatalf("update not applied: %+v", detail)
	}

	ev := mustEvent(t, sess.Events, core.EventTaskUpdated)
	if ev.Task != detail {
		t.Fatal("broadcast payload is not the returned entity")
	}
}

func TestUpdateRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "hijacked"
	if _, err := env.svc.Update(ctx, env.carol.ID, created.ID, UpdateInput{Title: &title}); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected not member, got %v", err)
	}
}

func TestUpdateMissingTask(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.Update(context.Background(), env.alice.ID, 999, UpdateInput{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteBroadcastsIdentifiersOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sess := env.subscribe(t, env.bob.ID, "bob")

	projectID, err := env.svc.Delete(ctx, env.alice.ID, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if projectID != env.board.ID {
		t.Fatalf("unexpected project id: %d", projectID)
	}

	ev := mustEvent(t, sess.Events, core.EventTaskDeleted)
	if ev.TaskID != created.ID || ev.ProjectID != env.board.ID {
		t.Fatalf("unexpected tombstone: %+v", ev)
	}
	if ev.Task != nil {
		t.Fatal("deletion event must not carry the full task")
	}

	if _, err := env.svc.List(ctx, env.alice.ID, env.board.ID); err != nil {
		t.Fatalf("list after delete: %v", err)
	}
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	env := newTestEnv(t)
	sess := env.subscribe(t, env.alice.ID, "alice")
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{
		Title:      "t",
		AssigneeID: &env.carol.ID,
	}); err == nil {
		t.Fatal("expected create to fail")
	}
	if _, err := env.svc.Delete(ctx, env.alice.ID, 999); err == nil {
		t.Fatal("expected delete to fail")
	}

	mustNoEvent(t, sess.Events)
}

func TestListRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, env.alice.ID, env.board.ID, CreateInput{Title: "t"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := env.svc.List(ctx, env.bob.ID, env.board.ID)
	if err != nil {
		t.Fatalf("list as member: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	if _, err := env.svc.List(ctx, env.carol.ID, env.board.ID); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected not member, got %v", err)
	}
}
