package download

import (
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/ytget/yt-web-downloader/internal/model"
)

// ErrTaskNotFound is returned for lookups of unknown or already-reclaimed
// task identifiers
var ErrTaskNotFound = errors.New("task not found")

// record is one registry entry: the task data plus exclusive ownership of
// the child process and the event stream. Mutable task fields are only
// touched under mu.
type record struct {
	mu   sync.Mutex
	task *model.Task

	cmd      *exec.Cmd
	events   chan model.Event
	procDone chan struct{} // closed once cmd.Wait has returned
	reclaim  sync.Once
}

// snapshot returns a copy of the task data taken under the record lock
func (r *record) snapshot() model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.task
}

// setStatus applies a status change if it is a legal transition and
// reports whether it was applied
func (r *record) setStatus(next model.TaskStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.task.Status.CanTransition(next) {
		return false
	}
	r.task.Status = next
	return true
}

// setError records a failure description; the first writer wins
func (r *record) setError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task.LastError == "" {
		r.task.LastError = message
	}
}

// setArtifact records the detected output location
func (r *record) setArtifact(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task.ArtifactPath = path
}

// setFinished stamps the completion time
func (r *record) setFinished(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.task.FinishedAt = at
}

// processExited reports whether the child process has been waited on
func (r *record) processExited() bool {
	select {
	case <-r.procDone:
		return true
	default:
		return false
	}
}

// Registry is the concurrency-safe mapping from task identifier to record.
// It is the only structure shared between the feeder goroutines, the
// delivery path and the HTTP handlers.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewRegistry creates an empty task registry
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*record),
	}
}

// add registers a record under its task ID
func (r *Registry) add(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.task.ID] = rec
}

// get returns the record for a task ID
func (r *Registry) get(id string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, exists := r.records[id]
	return rec, exists
}

// remove deletes the record for a task ID
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Snapshot returns a copy of the task data for an ID
func (r *Registry) Snapshot(id string) (model.Task, error) {
	rec, exists := r.get(id)
	if !exists {
		return model.Task{}, ErrTaskNotFound
	}
	return rec.snapshot(), nil
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
