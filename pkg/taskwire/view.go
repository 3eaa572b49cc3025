package taskwire

import (
	"context"
	"fmt"
	"sync"
)

// ViewState is the lifecycle state of a project view.
type ViewState int

const (
	ViewUnloaded ViewState = iota
	ViewLoading
	ViewReady
)

// RoomJoiner issues room membership control messages for a project.
type RoomJoiner interface {
	JoinProject(projectID int64) error
	LeaveProject(projectID int64) error
}

// ProjectFetcher loads a project and its tasks from the REST API.
type ProjectFetcher interface {
	FetchProject(ctx context.Context, projectID int64) (*Project, []Task, error)
}

// ProjectView reconciles pushed events and REST responses into one ordered,
// duplicate-free task list for a single project. The primary store is a map
// keyed by task ID; the ordered sequence is derived from it, so the
// no-duplicate invariant is structural. All mutations go through this type;
// the bus only invokes its listeners.
type ProjectView struct {
	mu        sync.Mutex
	state     ViewState
	gen       uint64
	projectID int64
	project   *Project
	tasks     map[int64]Task
	order     []int64

	// pending buffers events that arrive between join and snapshot load;
	// they are replayed through the normal reconciliation rules once the
	// fetch resolves.
	pending []*Event

	bus     *Bus
	joiner  RoomJoiner
	fetcher ProjectFetcher
	subs    []*Subscription
	joined  bool
}

// NewProjectView creates an unloaded view for one project.
func NewProjectView(projectID int64, bus *Bus, joiner RoomJoiner, fetcher ProjectFetcher) *ProjectView {
	return &ProjectView{
		state:     ViewUnloaded,
		projectID: projectID,
		tasks:     make(map[int64]Task),
		bus:       bus,
		joiner:    joiner,
		fetcher:   fetcher,
	}
}

// Open registers listeners, joins the project's room and then loads the
// project and its tasks. The join precedes the fetch: a mutation committed
// after the server builds the snapshot is broadcast to the already-joined
// session and folded in by the reconciliation rules, so the event/snapshot
// overlap is absorbed instead of lost. A fetch that resolves after the view
// has been closed or reopened is discarded rather than applied to a stale
// list.
func (v *ProjectView) Open(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.state = ViewLoading
	v.pending = nil
	v.registerListenersLocked()
	v.mu.Unlock()

	if err := v.joiner.JoinProject(v.projectID); err != nil {
		v.teardown(gen)
		return fmt.Errorf("join project %d: %w", v.projectID, err)
	}
	v.mu.Lock()
	if v.gen != gen {
		// Closed while the join was in flight; undo it.
		v.mu.Unlock()
		_ = v.joiner.LeaveProject(v.projectID)
		return nil
	}
	v.joined = true
	v.mu.Unlock()

	project, tasks, err := v.fetcher.FetchProject(ctx, v.projectID)

	v.mu.Lock()
	if v.gen != gen || v.state != ViewLoading {
		// The view moved on while the fetch was in flight.
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		v.mu.Unlock()
		v.teardown(gen)
		return fmt.Errorf("fetch project %d: %w", v.projectID, err)
	}

	v.project = project
	v.tasks = make(map[int64]Task, len(tasks))
	v.order = make([]int64, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := v.tasks[t.ID]; dup {
			continue
		}
		v.tasks[t.ID] = t
		v.order = append(v.order, t.ID)
	}
	pending := v.pending
	v.pending = nil
	for _, e := range pending {
		v.applyLocked(e)
	}
	v.state = ViewReady
	v.mu.Unlock()
	return nil
}

// Close leaves the room, removes all listeners and discards the task list.
func (v *ProjectView) Close() {
	v.mu.Lock()
	subs, joined := v.resetLocked()
	v.mu.Unlock()

	for _, sub := range subs {
		v.bus.Off(sub)
	}
	if joined {
		_ = v.joiner.LeaveProject(v.projectID)
	}
}

// teardown closes the view only if it is still the given generation.
func (v *ProjectView) teardown(gen uint64) {
	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return
	}
	subs, joined := v.resetLocked()
	v.mu.Unlock()

	for _, sub := range subs {
		v.bus.Off(sub)
	}
	if joined {
		_ = v.joiner.LeaveProject(v.projectID)
	}
}

// resetLocked clears all view state and invalidates the current generation.
// The returned subscriptions and join flag must be released outside the lock.
func (v *ProjectView) resetLocked() ([]*Subscription, bool) {
	subs := v.subs
	v.subs = nil
	joined := v.joined
	v.joined = false
	v.state = ViewUnloaded
	v.gen++
	v.project = nil
	v.tasks = make(map[int64]Task)
	v.order = nil
	v.pending = nil
	return subs, joined
}

// State returns the current lifecycle state.
func (v *ProjectView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Project returns a copy of the viewed project, or nil before Ready.
func (v *ProjectView) Project() *Project {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.project == nil {
		return nil
	}
	p := *v.project
	p.Members = append([]User(nil), v.project.Members...)
	return &p
}

// Tasks returns the reconciled task list in order.
func (v *ProjectView) Tasks() []Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(func(Task) bool { return true })
}

// FilterByStatus returns tasks with the given status. Pure projection; the
// underlying list is never mutated.
func (v *ProjectView) FilterByStatus(status string) []Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(func(t Task) bool { return t.Status == status })
}

// FilterByAssignee returns tasks assigned to the given user.
func (v *ProjectView) FilterByAssignee(userID int64) []Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(func(t Task) bool {
		return t.Assignee != nil && t.Assignee.ID == userID
	})
}

// ApplyLocal folds the REST response of a locally initiated create or update
// into the list: replace if present, prepend otherwise. Applying both the
// REST response and the broadcast echo of the same mutation, in either order,
// yields the same list as applying either once.
func (v *ProjectView) ApplyLocal(task Task) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != ViewReady || task.Project.ID != v.projectID {
		return
	}
	v.upsertLocked(task)
}

// ApplyLocalDelete folds the REST response of a locally initiated delete.
// The tombstone is keyed on its owning project, so a late response from a
// previously viewed project cannot remove an identically numbered task here.
func (v *ProjectView) ApplyLocalDelete(deleted TaskDeleted) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != ViewReady || deleted.ProjectID != v.projectID {
		return
	}
	v.removeLocked(deleted.TaskID)
}

// registerListenersLocked subscribes the view to the bus. The guard performs
// the staleness check and the mutation under one lock hold, so a Close racing
// a dispatch can never interleave between check and apply.
func (v *ProjectView) registerListenersLocked() {
	gen := v.gen
	guard := func(fn func(*Event)) Callback {
		return func(e *Event) {
			v.mu.Lock()
			defer v.mu.Unlock()
			if v.gen != gen || e.ProjectID() != v.projectID {
				return
			}
			switch v.state {
			case ViewLoading:
				v.pending = append(v.pending, e)
			case ViewReady:
				fn(e)
			}
		}
	}

	// Project deletion tears the view down; the listener removal and room
	// leave happen outside the lock, after the generation is invalidated.
	onDeleted := func(e *Event) {
		v.mu.Lock()
		if v.gen != gen || e.ProjectID() != v.projectID {
			v.mu.Unlock()
			return
		}
		subs, joined := v.resetLocked()
		v.mu.Unlock()

		for _, sub := range subs {
			v.bus.Off(sub)
		}
		if joined {
			_ = v.joiner.LeaveProject(v.projectID)
		}
	}

	v.subs = []*Subscription{
		v.bus.On(EventTaskCreated, guard(v.onTaskCreatedLocked)),
		v.bus.On(EventTaskUpdated, guard(v.onTaskUpdatedLocked)),
		v.bus.On(EventTaskDeleted, guard(v.onTaskDeletedLocked)),
		v.bus.On(EventProjectUpdated, guard(v.onProjectChangedLocked)),
		v.bus.On(EventProjectDeleted, onDeleted),
		v.bus.On(EventMemberAdded, guard(v.onMemberAddedLocked)),
		v.bus.On(EventMemberRemoved, guard(v.onMemberRemovedLocked)),
	}
}

// applyLocked routes a buffered event through the same rules live dispatch
// uses.
func (v *ProjectView) applyLocked(e *Event) {
	switch e.Kind {
	case EventTaskCreated:
		v.onTaskCreatedLocked(e)
	case EventTaskUpdated:
		v.onTaskUpdatedLocked(e)
	case EventTaskDeleted:
		v.onTaskDeletedLocked(e)
	case EventProjectUpdated:
		v.onProjectChangedLocked(e)
	case EventMemberAdded:
		v.onMemberAddedLocked(e)
	case EventMemberRemoved:
		v.onMemberRemovedLocked(e)
	}
}

func (v *ProjectView) onTaskCreatedLocked(e *Event) {
	if e.Task == nil {
		return
	}
	// Prepend only if absent: the local REST response may have inserted the
	// task before the broadcast echo arrived.
	if _, exists := v.tasks[e.Task.ID]; exists {
		return
	}
	v.tasks[e.Task.ID] = *e.Task
	v.order = append([]int64{e.Task.ID}, v.order...)
}

func (v *ProjectView) onTaskUpdatedLocked(e *Event) {
	if e.Task == nil {
		return
	}
	// Replace only if present; an absent task is a no-op, not an error.
	if _, exists := v.tasks[e.Task.ID]; !exists {
		return
	}
	v.tasks[e.Task.ID] = *e.Task
}

func (v *ProjectView) onTaskDeletedLocked(e *Event) {
	if e.TaskDeleted == nil {
		return
	}
	v.removeLocked(e.TaskDeleted.TaskID)
}

func (v *ProjectView) onProjectChangedLocked(e *Event) {
	if e.Project == nil {
		return
	}
	project := *e.Project
	v.project = &project
}

func (v *ProjectView) onMemberAddedLocked(e *Event) {
	if e.MemberAdded == nil {
		return
	}
	project := e.MemberAdded.Project
	v.project = &project
}

func (v *ProjectView) onMemberRemovedLocked(e *Event) {
	if e.MemberRemoved == nil {
		return
	}
	project := e.MemberRemoved.Project
	v.project = &project
}

func (v *ProjectView) upsertLocked(task Task) {
	if _, exists := v.tasks[task.ID]; exists {
		v.tasks[task.ID] = task
		return
	}
	v.tasks[task.ID] = task
	v.order = append([]int64{task.ID}, v.order...)
}

func (v *ProjectView) removeLocked(taskID int64) {
	if _, exists := v.tasks[taskID]; !exists {
		return
	}
	delete(v.tasks, taskID)
	for i, id := range v.order {
		if id == taskID {
			v.order = append(v.order[:i:i], v.order[i+1:]...)
			break
		}
	}
}

func (v *ProjectView) snapshotLocked(keep func(Task) bool) []Task {
	out := make([]Task, 0, len(v.order))
	for _, id := range v.order {
		t, ok := v.tasks[id]
		if !ok || !keep(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
