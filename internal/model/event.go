package model

// EventType classifies a parsed line from the download process output
type EventType string

const (
	// EventProgress carries download percentage and transfer stats
	EventProgress EventType = "progress"

	// EventDestination announces the final output file location
	EventDestination EventType = "destination"

	// EventInfo is an informational pass-through line
	EventInfo EventType = "info"

	// EventComplete is the terminal event of a successful task
	EventComplete EventType = "complete"

	// EventError is the terminal event of a failed task
	EventError EventType = "error"
)

// ValueUnknown is emitted for progress fields absent from the source line
const ValueUnknown = "N/A"

// Event is one structured update on a task's live stream. Only the fields
// relevant to Type are populated; the rest are omitted from JSON.
type Event struct {
	Type      EventType `json:"type"`
	Percent   float64   `json:"percent,omitempty"`
	TotalSize string    `json:"total_size,omitempty"`
	Speed     string    `json:"speed,omitempty"`
	ETA       string    `json:"eta,omitempty"`
	Elapsed   string    `json:"elapsed,omitempty"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status,omitempty"`
	Filename  string    `json:"filename,omitempty"`
}

// IsTerminal returns true for the events that end a task's stream
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// CompleteEvent builds the terminal event for a successful task
func CompleteEvent(filename string) Event {
	return Event{Type: EventComplete, Status: "success", Filename: filename}
}

// ErrorEvent builds the terminal event for a failed task
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Status: "error", Message: message}
}
