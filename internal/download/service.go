package download

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
)

// Delivery constants
const (
	DefaultSendTimeout = 30 * time.Second
	EventBufferSize    = 256
)

// Task ID constants
const (
	TaskIDPrefix = "task-"
)

// Error message templates
const (
	ProcessFailedTemplate = "Download process failed with exit code %d. The URL may be invalid or the format unavailable."
	ArtifactNotFoundError = "Download finished but no output file was found in the working directory."
)

// Tool error line marker on stderr
const (
	ToolErrorPrefix = "ERROR:"
)

// Service is the task lifecycle controller: it spawns the download
// process, relays its merged output through the line parser into the task
// record and the subscriber stream, and resolves the terminal state.
type Service struct {
	registry         *Registry
	workRoot         string
	binary           string
	filenameTemplate string
	sendTimeout      time.Duration
}

// NewService creates a lifecycle controller writing task directories under
// workRoot and invoking the given tool binary
func NewService(registry *Registry, workRoot, binary string) *Service {
	return &Service{
		registry:         registry,
		workRoot:         workRoot,
		binary:           binary,
		filenameTemplate: "%(title)s.%(ext)s",
		sendTimeout:      DefaultSendTimeout,
	}
}

// SetFilenameTemplate sets the output filename template passed to the tool
func (s *Service) SetFilenameTemplate(template string) {
	if template != "" {
		s.filenameTemplate = template
	}
}

// SetSendTimeout sets how long an event delivery may block before the
// subscriber is considered gone
func (s *Service) SetSendTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.sendTimeout = timeout
	}
}

// Submit creates a task for the URL/format pair and starts its download
// process. On spawn failure the working directory is removed and the task
// never enters the registry.
func (s *Service) Submit(url, formatID string) (model.Task, error) {
	if url == "" {
		return model.Task{}, fmt.Errorf("url is required")
	}
	if formatID == "" {
		return model.Task{}, fmt.Errorf("format_id is required")
	}

	id := generateTaskID()
	workDir := filepath.Join(s.workRoot, id)
	if err := platform.CreateDirectoryIfNotExists(workDir); err != nil {
		return model.Task{}, fmt.Errorf("failed to create working directory: %w", err)
	}

	cmd := exec.Command(s.binary, s.buildArgs(url, formatID, workDir)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(workDir)
		return model.Task{}, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(workDir)
		return model.Task{}, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.RemoveAll(workDir)
		return model.Task{}, fmt.Errorf("failed to start download process: %w", err)
	}

	rec := &record{
		task: &model.Task{
			ID:        id,
			URL:       url,
			FormatID:  formatID,
			Status:    model.TaskStatusRunning,
			WorkDir:   workDir,
			StartedAt: time.Now(),
		},
		cmd:      cmd,
		events:   make(chan model.Event, EventBufferSize),
		procDone: make(chan struct{}),
	}
	s.registry.add(rec)

	go s.run(rec, platform.MergeLines(stdout, stderr))

	return rec.snapshot(), nil
}

// Task returns a copy of the task data for an ID
func (s *Service) Task(id string) (model.Task, error) {
	return s.registry.Snapshot(id)
}

// Subscribe returns the live event stream of a task. The channel is closed
// after the terminal event.
func (s *Service) Subscribe(id string) (<-chan model.Event, error) {
	rec, exists := s.registry.get(id)
	if !exists {
		return nil, ErrTaskNotFound
	}
	return rec.events, nil
}

// Cancel forcibly terminates the download process of a task. Used when the
// live-progress consumer disconnects; resource reclamation stays with the
// cleanup manager.
func (s *Service) Cancel(id string) {
	rec, exists := s.registry.get(id)
	if !exists {
		return
	}
	s.terminate(rec)
}

// buildArgs assembles the download invocation writing into the task's
// working directory
func (s *Service) buildArgs(url, formatID, workDir string) []string {
	return []string{
		"-f", formatID,
		"--newline",
		"--no-playlist",
		"-o", filepath.Join(workDir, s.filenameTemplate),
		url,
	}
}

// run drains the merged line channel of one task. The loop ends only when
// both feeders have signalled end and every buffered line was consumed;
// only then is the process waited on and the terminal state resolved.
func (s *Service) run(rec *record, lines <-chan platform.StreamLine) {
	task := rec.snapshot()
	parser := platform.NewLineParser(task.WorkDir, task.StartedAt)
	endMarkers := 0
	abandoned := false

	for line := range lines {
		if line.EOF {
			endMarkers++
			continue
		}

		text := strings.TrimSpace(line.Text)
		if strings.HasPrefix(text, ToolErrorPrefix) {
			rec.setError(strings.TrimSpace(strings.TrimPrefix(text, ToolErrorPrefix)))
		}

		event, ok := parser.Parse(text)
		if !ok {
			continue
		}
		if event.Type == model.EventDestination {
			rec.setArtifact(event.Path)
		}

		if !abandoned && !s.forward(rec, event) {
			abandoned = true
			s.terminate(rec)
		}
	}

	if endMarkers != 2 {
		log.Printf("Task %s: expected 2 end markers, saw %d", task.ID, endMarkers)
	}

	waitErr := rec.cmd.Wait()
	close(rec.procDone)

	s.finalize(rec, waitErr, abandoned)
}

// forward delivers one event to the subscriber stream. A delivery that
// blocks past the send timeout means nobody is reading; the caller then
// treats the task as abandoned.
func (s *Service) forward(rec *record, event model.Event) bool {
	select {
	case rec.events <- event:
		return true
	case <-time.After(s.sendTimeout):
		log.Printf("Task %s: no subscriber draining events, terminating download", rec.task.ID)
		return false
	}
}

// terminate kills the download process. Failure to kill is logged, never
// fatal to the delivery path.
func (s *Service) terminate(rec *record) {
	if rec.processExited() {
		return
	}
	if err := rec.cmd.Process.Kill(); err != nil {
		log.Printf("Task %s: failed to kill download process: %v", rec.task.ID, err)
	}
}

// finalize resolves the terminal status from the process exit and verifies
// the artifact, then emits the terminal event and closes the stream.
//
// Completion verification is deliberately lenient: a clean exit with no
// usable artifact is first downgraded to failed, then the fallback scan
// may restore completed with the newest non-empty file in the working
// directory. This is the only place the failed->completed reversal occurs.
func (s *Service) finalize(rec *record, waitErr error, abandoned bool) {
	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	if exitCode == 0 {
		rec.setStatus(model.TaskStatusCompleted)
		s.verifyArtifact(rec)
	} else {
		rec.setStatus(model.TaskStatusFailed)
		rec.setError(fmt.Sprintf(ProcessFailedTemplate, exitCode))
	}
	rec.setFinished(time.Now())

	final := rec.snapshot()
	log.Printf("Task %s finished: status=%s artifact=%q", final.ID, final.Status, final.ArtifactPath)

	var terminal model.Event
	if final.Status == model.TaskStatusCompleted {
		terminal = model.CompleteEvent(final.ArtifactName())
	} else {
		terminal = model.ErrorEvent(final.LastError)
	}
	if !abandoned {
		s.forward(rec, terminal)
	}
	close(rec.events)
}

// verifyArtifact checks that a completed task actually produced its
// artifact, running the fallback scan when it did not
func (s *Service) verifyArtifact(rec *record) {
	task := rec.snapshot()

	if task.ArtifactPath != "" && fileExists(task.ArtifactPath) {
		return
	}

	rec.setStatus(model.TaskStatusFailed)

	newest, err := platform.FindNewestNonEmptyFile(task.WorkDir)
	if err != nil {
		log.Printf("Task %s: fallback scan found nothing: %v", task.ID, err)
		rec.setError(ArtifactNotFoundError)
		return
	}

	log.Printf("Task %s: destination not detected, recovered artifact %s", task.ID, newest)
	rec.setArtifact(newest)
	rec.setStatus(model.TaskStatusCompleted)
}

// fileExists checks that a path exists and is a regular file
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// generateTaskID generates a unique task ID using UUID v7 for better
// uniqueness and time ordering
func generateTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to timestamp if UUID generation fails
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
