package platform

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/yt-web-downloader/internal/model"
)

// Progress line limits
const (
	MinPercent = 0.0
	MaxPercent = 100.0
)

// Time formatting constants
const (
	SecondsPerHour   = 3600
	SecondsPerMinute = 60
)

// Line patterns of the yt-dlp output contract. Progress lines carry a
// percentage plus optional size/speed/ETA columns; destination lines
// announce the output file in one of three shapes.
var (
	progressPattern = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%(?:\s+of\s+~?\s*(\S+))?(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)

	destinationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\[download\]\s+Destination:\s+(.+)$`),
		regexp.MustCompile(`^\[Merger\]\s+Merging formats into\s+"(.+)"$`),
		regexp.MustCompile(`^\[download\]\s+(.+?)\s+has already been downloaded`),
	}

	infoPattern = regexp.MustCompile(`^\[([A-Za-z][\w:+.-]*)\]\s*(.*)$`)
)

// LineParser classifies raw output lines of one task into structured
// events. It is stateless across lines; the destination side effect on the
// task record is applied by the caller.
type LineParser struct {
	workDir   string
	startedAt time.Time
	now       func() time.Time
}

// NewLineParser creates a parser bound to one task's working directory and
// start time
func NewLineParser(workDir string, startedAt time.Time) *LineParser {
	return &LineParser{
		workDir:   workDir,
		startedAt: startedAt,
		now:       time.Now,
	}
}

// Parse classifies one output line. The second return value is false for
// lines that produce no event: blank lines, tool-internal chatter, and
// destination paths escaping the working directory.
func (p *LineParser) Parse(line string) (model.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Event{}, false
	}

	if event, ok := p.parseProgress(line); ok {
		return event, true
	}

	if event, ok := p.parseDestination(line); ok {
		return event, true
	}

	return p.parseInfo(line)
}

// parseProgress extracts percentage and optional transfer stats from a
// download progress line
func (p *LineParser) parseProgress(line string) (model.Event, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return model.Event{}, false
	}

	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return model.Event{}, false
	}
	if percent < MinPercent {
		percent = MinPercent
	}
	if percent > MaxPercent {
		percent = MaxPercent
	}

	return model.Event{
		Type:      model.EventProgress,
		Percent:   percent,
		TotalSize: orUnknown(match[2]),
		Speed:     orUnknown(match[3]),
		ETA:       orUnknown(match[4]),
		Elapsed:   formatElapsed(p.now().Sub(p.startedAt)),
	}, true
}

// parseDestination matches the output-location announcements. Paths are
// resolved against the working directory and rejected when they escape it.
func (p *LineParser) parseDestination(line string) (model.Event, bool) {
	for _, pattern := range destinationPatterns {
		match := pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		path := strings.TrimSpace(match[1])
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.workDir, path)
		}
		path = filepath.Clean(path)

		if !IsWithinDirectory(p.workDir, path) {
			log.Printf("Discarding destination outside working directory: %s", path)
			return model.Event{}, false
		}

		return model.Event{Type: model.EventDestination, Path: path}, true
	}
	return model.Event{}, false
}

// parseInfo passes through bracket-tagged stage lines. Untagged lines and
// leftover [download] chatter are dropped so subscribers are not flooded.
func (p *LineParser) parseInfo(line string) (model.Event, bool) {
	match := infoPattern.FindStringSubmatch(line)
	if match == nil || match[1] == "download" {
		return model.Event{}, false
	}
	return model.Event{Type: model.EventInfo, Message: line}, true
}

// orUnknown substitutes the N/A placeholder for fields absent from the line
func orUnknown(value string) string {
	if value == "" {
		return model.ValueUnknown
	}
	return value
}

// formatElapsed formats a duration as zero-padded HH:MM:SS
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / SecondsPerHour
	minutes := (total % SecondsPerHour) / SecondsPerMinute
	seconds := total % SecondsPerMinute
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
