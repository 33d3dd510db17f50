package uptodate

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskTracker reports whether critical build tasks are still queued for the project
type TaskTracker interface {
	IsCriticalTaskPending() bool
}

// ProjectVersionSource reports the project host's current project version
type ProjectVersionSource interface {
	CurrentProjectVersion() int64
}

// TaskQueue tracks in-flight critical tasks by id
type TaskQueue struct {
	mu      sync.Mutex
	pending map[string]string
}

// Task is a pending critical task
type Task struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Start registers a critical task and returns its id
func (q *TaskQueue) Start(name string) string {
	id := uuid.NewString()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		q.pending = make(map[string]string)
	}
	q.pending[id] = name
	return id
}

// Finish completes the task with id; false when it is unknown or already finished
func (q *TaskQueue) Finish(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	return true
}

// Begin registers an unnamed critical task and returns the function that completes it.
// Calling the returned function more than once has no further effect.
func (q *TaskQueue) Begin() func() {
	id := q.Start("")
	return func() { q.Finish(id) }
}

// Pending lists the tasks still running, ordered by name then id
func (q *TaskQueue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := make([]Task, 0, len(q.pending))
	for id, name := range q.pending {
		tasks = append(tasks, Task{ID: id, Name: name})
	}
	slices.SortFunc(tasks, func(a, b Task) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return tasks
}

func (q *TaskQueue) IsCriticalTaskPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

// VersionCounter is a monotonically increasing project version
type VersionCounter struct {
	v atomic.Int64
}

// Bump increments the version and returns the new value
func (c *VersionCounter) Bump() int64 {
	return c.v.Add(1)
}

// Set raises the version to v; lower values are ignored
func (c *VersionCounter) Set(v int64) {
	for {
		cur := c.v.Load()
		if v <= cur || c.v.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (c *VersionCounter) CurrentProjectVersion() int64 {
	return c.v.Load()
}
