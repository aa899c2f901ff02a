package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
)

// parseOutputDir extracts the working directory from the -o template
// argument, shared by every fake tool script
const parseOutputDir = `out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
dir=$(dirname "$out")
`

// writeFakeTool writes a shell script standing in for the download tool
func writeFakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-yt-dlp")
	script := "#!/bin/sh\n" + parseOutputDir + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write fake tool: %v", err)
	}
	return path
}

func newTestService(t *testing.T, toolBody string) (*Service, *Registry, string) {
	t.Helper()
	registry := NewRegistry()
	workRoot := t.TempDir()
	service := NewService(registry, workRoot, writeFakeTool(t, toolBody))
	return service, registry, workRoot
}

// drainEvents reads the subscriber stream until it closes
func drainEvents(t *testing.T, events <-chan model.Event) []model.Event {
	t.Helper()
	var collected []model.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case event, open := <-events:
			if !open {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatal("timed out waiting for the event stream to close")
		}
	}
}

func terminalEvent(t *testing.T, events []model.Event) model.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	last := events[len(events)-1]
	if !last.IsTerminal() {
		t.Fatalf("last event %+v is not terminal", last)
	}
	return last
}

func TestSubmit_MissingInput(t *testing.T) {
	service, _, _ := newTestService(t, "exit 0\n")

	if _, err := service.Submit("", "best"); err == nil {
		t.Error("expected error for missing url")
	}
	if _, err := service.Submit("https://example.com/v", ""); err == nil {
		t.Error("expected error for missing format_id")
	}
}

func TestSubmit_SpawnFailureNeverRegisters(t *testing.T) {
	registry := NewRegistry()
	workRoot := t.TempDir()
	service := NewService(registry, workRoot, filepath.Join(workRoot, "no-such-binary"))

	if _, err := service.Submit("https://example.com/v", "best"); err == nil {
		t.Fatal("expected spawn failure")
	}

	if registry.Len() != 0 {
		t.Error("task must not enter the registry on spawn failure")
	}

	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("Failed to read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Error("working directory must be removed on spawn failure")
	}
}

func TestRun_SuccessWithDestination(t *testing.T) {
	service, _, _ := newTestService(t, `echo "[youtube] abc: Downloading webpage"
echo "[download] Destination: $dir/video.mp4"
printf 'data' > "$dir/video.mp4"
echo "[download] 100% of 4.00B at 4.00B/s ETA 00:00"
exit 0
`)

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, err := service.Subscribe(task.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	collected := drainEvents(t, events)
	terminal := terminalEvent(t, collected)

	if terminal.Type != model.EventComplete || terminal.Status != "success" {
		t.Fatalf("terminal = %+v, expected complete/success", terminal)
	}
	if terminal.Filename != "video.mp4" {
		t.Errorf("terminal filename = %q, expected video.mp4", terminal.Filename)
	}

	sawProgress := false
	for _, event := range collected {
		if event.Type == model.EventProgress {
			sawProgress = true
			if event.Percent != 100 {
				t.Errorf("progress percent = %v, expected 100", event.Percent)
			}
			if len(event.Elapsed) != 8 {
				t.Errorf("elapsed %q not in HH:MM:SS form", event.Elapsed)
			}
		}
	}
	if !sawProgress {
		t.Error("expected a progress event on the stream")
	}

	final, err := service.Task(task.ID)
	if err != nil {
		t.Fatalf("Task lookup failed: %v", err)
	}
	if final.Status != model.TaskStatusCompleted {
		t.Errorf("status = %s, expected completed", final.Status)
	}
	if !platform.IsWithinDirectory(final.WorkDir, final.ArtifactPath) {
		t.Errorf("artifact %q escaped working directory %q", final.ArtifactPath, final.WorkDir)
	}
}

func TestRun_NonZeroExitDefaultMessage(t *testing.T) {
	service, _, _ := newTestService(t, "exit 1\n")

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	terminal := terminalEvent(t, drainEvents(t, events))

	if terminal.Type != model.EventError || terminal.Status != "error" {
		t.Fatalf("terminal = %+v, expected error", terminal)
	}
	if !strings.HasPrefix(terminal.Message, "Download process failed with exit code 1") {
		t.Errorf("message = %q, expected default exit-code message", terminal.Message)
	}
}

func TestRun_ToolErrorMessageWins(t *testing.T) {
	service, _, _ := newTestService(t, `echo "ERROR: Video unavailable" 1>&2
exit 1
`)

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	terminal := terminalEvent(t, drainEvents(t, events))

	if terminal.Message != "Video unavailable" {
		t.Errorf("message = %q, expected the captured tool error to win", terminal.Message)
	}
}

func TestRun_FallbackRecoversArtifact(t *testing.T) {
	service, _, _ := newTestService(t, `printf 'data' > "$dir/video.mp4"
exit 0
`)

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	terminal := terminalEvent(t, drainEvents(t, events))

	if terminal.Type != model.EventComplete {
		t.Fatalf("terminal = %+v, expected fallback scan to recover completion", terminal)
	}
	if terminal.Filename != "video.mp4" {
		t.Errorf("filename = %q, expected video.mp4", terminal.Filename)
	}

	final, _ := service.Task(task.ID)
	if final.Status != model.TaskStatusCompleted {
		t.Errorf("status = %s, expected completed after recovery", final.Status)
	}
}

func TestRun_CleanExitWithoutArtifactFails(t *testing.T) {
	service, _, _ := newTestService(t, "exit 0\n")

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	terminal := terminalEvent(t, drainEvents(t, events))

	if terminal.Type != model.EventError {
		t.Fatalf("terminal = %+v, expected error for empty working directory", terminal)
	}
	if terminal.Message != ArtifactNotFoundError {
		t.Errorf("message = %q, expected artifact-not-found", terminal.Message)
	}
}

func TestRun_EscapingDestinationIgnored(t *testing.T) {
	service, _, _ := newTestService(t, `echo "[download] Destination: /etc/passwd"
printf 'data' > "$dir/safe.mp4"
exit 0
`)

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	drainEvents(t, events)

	final, _ := service.Task(task.ID)
	if final.ArtifactPath == "/etc/passwd" {
		t.Fatal("escaping destination must never become the artifact")
	}
	if !platform.IsWithinDirectory(final.WorkDir, final.ArtifactPath) {
		t.Errorf("artifact %q escaped working directory", final.ArtifactPath)
	}
}

func TestCancel_KillsRunningProcess(t *testing.T) {
	// exec so the kill signal reaches the process holding the pipes
	service, _, _ := newTestService(t, "exec sleep 30\n")

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	events, _ := service.Subscribe(task.ID)
	service.Cancel(task.ID)

	terminal := terminalEvent(t, drainEvents(t, events))
	if terminal.Type != model.EventError {
		t.Errorf("terminal = %+v, expected error after cancellation", terminal)
	}

	final, _ := service.Task(task.ID)
	if final.Status != model.TaskStatusFailed {
		t.Errorf("status = %s, expected failed", final.Status)
	}
}

func TestRun_AbandonedStreamTerminatesProcess(t *testing.T) {
	// More lines than the event buffer holds, then a long sleep: with no
	// subscriber draining, delivery stalls and the process must be killed.
	service, _, _ := newTestService(t, `i=0
while [ $i -lt 400 ]; do
  echo "[info] chunk $i"
  i=$((i+1))
done
exec sleep 60
`)
	service.SetSendTimeout(100 * time.Millisecond)

	task, err := service.Submit("https://example.com/v", "best")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		final, err := service.Task(task.ID)
		if err != nil {
			t.Fatalf("Task lookup failed: %v", err)
		}
		if final.Status.IsFinished() {
			if final.Status != model.TaskStatusFailed {
				t.Errorf("status = %s, expected failed after abandonment", final.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned task never reached a terminal state")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
