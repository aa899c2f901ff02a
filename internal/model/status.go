package model

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	// TaskStatusRunning means the download process is active
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted means the task finished and produced an artifact
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed means the task terminated without a usable artifact
	TaskStatusFailed TaskStatus = "failed"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsFinished returns true if the task is in a terminal state
func (ts TaskStatus) IsFinished() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed
}

// CanTransition reports whether moving to next is a legal status change.
// Permitted: running->completed, running->failed, and failed->completed
// (fallback recovery when the tool exited cleanly but destination
// detection missed the output file).
func (ts TaskStatus) CanTransition(next TaskStatus) bool {
	switch ts {
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	case TaskStatusFailed:
		return next == TaskStatusCompleted
	default:
		return false
	}
}
