package platform

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timeout constants
const (
	DefaultProbeTimeout = 60 * time.Second
)

// Format table markers
const (
	HeaderIDColumn  = "ID"
	HeaderExtColumn = "EXT"
)

// Description tags that keep an otherwise-filtered format
const (
	TagAudioOnly = "audio only"
	TagVideoOnly = "video only"
)

// Manifest-only and preview containers filtered from format listings
var (
	FilteredExtensions = []string{"mhtml", "m3u8", "m3u8_native"}
)

// Format row patterns: a fixed columnar regex with a whitespace-split
// fallback for rows it does not match
var (
	formatRowPattern  = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(.+)$`)
	resolutionPattern = regexp.MustCompile(`(\d+)x(\d+)`)
	heightPattern     = regexp.MustCompile(`\b(\d+)p\b`)
	bitratePattern    = regexp.MustCompile(`\b(\d+)k\b`)
	separatorPattern  = regexp.MustCompile(`^[-\s]+$`)
)

// runCommand executes the tool and captures standard output
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Format is one selectable entry from the tool's format listing
type Format struct {
	FormatID    string `json:"format_id"`
	Ext         string `json:"ext"`
	Description string `json:"description"`
}

// CommandRunner abstracts process invocation so the prober can be tested
// without the external tool installed
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FormatProber lists the available formats for a URL by invoking the
// download tool and parsing its table output
type FormatProber struct {
	binary  string
	timeout time.Duration
	run     CommandRunner
}

// NewFormatProber creates a prober for the given tool binary
func NewFormatProber(binary string) *FormatProber {
	return &FormatProber{
		binary:  binary,
		timeout: DefaultProbeTimeout,
		run:     runCommand,
	}
}

// SetTimeout sets the timeout for listing invocations
func (f *FormatProber) SetTimeout(timeout time.Duration) {
	f.timeout = timeout
}

// SetRunner overrides process invocation, for tests
func (f *FormatProber) SetRunner(run CommandRunner) {
	f.run = run
}

// List invokes the format-listing command and returns the filtered, sorted
// format table for the URL
func (f *FormatProber) List(ctx context.Context, url string) ([]Format, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	output, err := f.run(ctx, f.binary, "--no-playlist", "-F", url)
	if err != nil {
		return nil, fmt.Errorf("failed to list formats: %w", err)
	}

	return ParseFormatTable(string(output)), nil
}

// ParseFormatTable parses the newline-delimited format table. Rows before
// the ID/EXT header are ignored; manifest-only rows are filtered unless
// tagged audio only or video only; the result is sorted best-first by a
// resolution/bitrate heuristic, best effort.
func ParseFormatTable(output string) []Format {
	var formats []Format
	headerSeen := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if !headerSeen {
			headerSeen = isHeaderLine(trimmed)
			continue
		}
		if separatorPattern.MatchString(trimmed) {
			continue
		}

		format, ok := parseFormatRow(trimmed)
		if !ok {
			continue
		}
		if isFilteredFormat(format) {
			continue
		}
		formats = append(formats, format)
	}

	sort.SliceStable(formats, func(i, j int) bool {
		return qualityScore(formats[i].Description) > qualityScore(formats[j].Description)
	})

	return formats
}

// isHeaderLine detects the column header introducing the format table
func isHeaderLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	return fields[0] == HeaderIDColumn && fields[1] == HeaderExtColumn
}

// parseFormatRow splits one table row into id/ext/description, falling back
// to a plain whitespace split when the columnar pattern does not match
func parseFormatRow(line string) (Format, bool) {
	if match := formatRowPattern.FindStringSubmatch(line); match != nil {
		return Format{
			FormatID:    match[1],
			Ext:         match[2],
			Description: strings.TrimSpace(match[3]),
		}, true
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Format{}, false
	}
	return Format{
		FormatID:    fields[0],
		Ext:         fields[1],
		Description: strings.Join(fields[2:], " "),
	}, true
}

// isFilteredFormat drops storyboard and adaptive-manifest entries that are
// not directly downloadable, keeping explicitly tagged audio/video tracks
func isFilteredFormat(format Format) bool {
	description := strings.ToLower(format.Description)
	if strings.Contains(description, TagAudioOnly) || strings.Contains(description, TagVideoOnly) {
		return false
	}
	if strings.Contains(description, "storyboard") {
		return true
	}
	ext := strings.ToLower(format.Ext)
	for _, filtered := range FilteredExtensions {
		if ext == filtered {
			return true
		}
	}
	return false
}

// qualityScore extracts a sortable quality figure from a format
// description: NxM height first, then a bare Np height, then a bitrate.
// Rows yielding no figure score zero and keep their relative order.
func qualityScore(description string) int {
	if match := resolutionPattern.FindStringSubmatch(description); match != nil {
		if height, err := strconv.Atoi(match[2]); err == nil {
			return height * 1000
		}
	}
	if match := heightPattern.FindStringSubmatch(description); match != nil {
		if height, err := strconv.Atoi(match[1]); err == nil {
			return height * 1000
		}
	}
	if match := bitratePattern.FindStringSubmatch(description); match != nil {
		if bitrate, err := strconv.Atoi(match[1]); err == nil {
			return bitrate
		}
	}
	return 0
}
