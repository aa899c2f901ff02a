package download

import (
	"log"
	"os"
	"time"
)

// Reclaim constants
const (
	ProcessExitWait = 5 * time.Second
)

// CleanupManager releases everything a task owns: the child process, the
// working directory, and the registry entry. The three reclamations happen
// together, exactly once per task.
type CleanupManager struct {
	registry *Registry
}

// NewCleanupManager creates a cleanup manager over the task registry
func NewCleanupManager(registry *Registry) *CleanupManager {
	return &CleanupManager{registry: registry}
}

// Reclaim releases a task's resources. It is idempotent and safe to call
// concurrently; reclaiming an unknown or already-reclaimed ID is a no-op.
// After Reclaim returns, lookups of the ID report not found.
func (m *CleanupManager) Reclaim(id string) error {
	rec, exists := m.registry.get(id)
	if !exists {
		return nil
	}

	rec.reclaim.Do(func() {
		m.stopProcess(rec)

		task := rec.snapshot()
		if err := os.RemoveAll(task.WorkDir); err != nil && !os.IsNotExist(err) {
			log.Printf("Task %s: failed to remove working directory: %v", id, err)
		}

		m.registry.remove(id)
		log.Printf("Task %s reclaimed", id)
	})

	return nil
}

// stopProcess terminates the child process if it is still alive and waits
// a bounded time for the run loop to observe its exit
func (m *CleanupManager) stopProcess(rec *record) {
	if rec.processExited() {
		return
	}

	if err := rec.cmd.Process.Kill(); err != nil {
		log.Printf("Task %s: failed to kill download process: %v", rec.task.ID, err)
	}

	select {
	case <-rec.procDone:
	case <-time.After(ProcessExitWait):
		log.Printf("Task %s: download process did not exit within %v", rec.task.ID, ProcessExitWait)
	}
}
