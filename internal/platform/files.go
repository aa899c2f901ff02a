package platform

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// File extensions to skip during the fallback scan (partial downloads and
// resume metadata left behind by the tool)
var (
	SkippedExtensions = []string{".part", ".ytdl", ".temp"}
)

// CreateDirectoryIfNotExists creates a directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// IsWithinDirectory reports whether path lies inside dir after resolving
// both to absolute form. The directory itself does not count as inside.
func IsWithinDirectory(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FindNewestNonEmptyFile returns the most recently modified non-empty file
// under dir, ignoring partial-download leftovers. Used as the fallback scan
// when the tool exited cleanly but never announced a destination.
func FindNewestNonEmptyFile(dir string) (string, error) {
	var newestPath string
	var newestTime time.Time

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if isSkippedExtension(path) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.Size() == 0 {
			return nil
		}

		if newestPath == "" || info.ModTime().After(newestTime) {
			newestPath = path
			newestTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	if newestPath == "" {
		return "", fmt.Errorf("no non-empty files found in %s", dir)
	}
	return newestPath, nil
}

// isSkippedExtension checks if the file is a partial-download leftover
func isSkippedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, skipped := range SkippedExtensions {
		if ext == skipped {
			return true
		}
	}
	return false
}
