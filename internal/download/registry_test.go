package download

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ytget/yt-web-downloader/internal/model"
)

func newRecord(id string) *record {
	return &record{
		task: &model.Task{
			ID:        id,
			Status:    model.TaskStatusRunning,
			StartedAt: time.Now(),
		},
		events:   make(chan model.Event, EventBufferSize),
		procDone: make(chan struct{}),
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	registry := NewRegistry()
	rec := newRecord("task-1")

	registry.add(rec)
	if registry.Len() != 1 {
		t.Fatalf("Len() = %d, expected 1", registry.Len())
	}

	got, exists := registry.get("task-1")
	if !exists || got != rec {
		t.Fatal("expected to retrieve the registered record")
	}

	registry.remove("task-1")
	if _, exists := registry.get("task-1"); exists {
		t.Error("record still present after remove")
	}
}

func TestRegistry_SnapshotUnknownTask(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Snapshot("missing"); err != ErrTaskNotFound {
		t.Errorf("Snapshot(missing) error = %v, expected ErrTaskNotFound", err)
	}
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	registry := NewRegistry()
	rec := newRecord("task-1")
	registry.add(rec)

	snap, err := registry.Snapshot("task-1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	snap.Status = model.TaskStatusFailed
	if rec.snapshot().Status != model.TaskStatusRunning {
		t.Error("mutating a snapshot must not affect the record")
	}
}

func TestRecord_StatusTransitions(t *testing.T) {
	rec := newRecord("task-1")

	if !rec.setStatus(model.TaskStatusFailed) {
		t.Fatal("running -> failed should be permitted")
	}
	if !rec.setStatus(model.TaskStatusCompleted) {
		t.Fatal("failed -> completed fallback reversal should be permitted")
	}
	if rec.setStatus(model.TaskStatusFailed) {
		t.Fatal("completed -> failed must be rejected")
	}
	if rec.snapshot().Status != model.TaskStatusCompleted {
		t.Errorf("status = %s, expected completed", rec.snapshot().Status)
	}
}

func TestRecord_FirstErrorWins(t *testing.T) {
	rec := newRecord("task-1")

	rec.setError("specific tool error")
	rec.setError("generic fallback error")

	if got := rec.snapshot().LastError; got != "specific tool error" {
		t.Errorf("LastError = %q, expected the first message to win", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	rec := newRecord("task-1")
	registry.add(rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				rec.setError("error")
				rec.setArtifact("/tmp/a")
			} else {
				_, _ = registry.Snapshot("task-1")
			}
		}(i)
	}
	wg.Wait()
}

func TestGenerateTaskID(t *testing.T) {
	first := generateTaskID()
	second := generateTaskID()

	if first == second {
		t.Error("task IDs must be unique")
	}
	if !strings.HasPrefix(first, TaskIDPrefix) {
		t.Errorf("task ID %q missing prefix %q", first, TaskIDPrefix)
	}
}
