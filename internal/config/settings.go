package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultListenAddr       = ":8080"
	DefaultToolBinary       = "yt-dlp"
	DefaultFilenameTemplate = "%(title)s.%(ext)s"
	DefaultProbeTimeoutSec  = 60
	DefaultSendTimeoutSec   = 30
	DefaultWorkRootName     = "yt-web-downloader"
)

// Settings holds the service configuration loaded from a yaml file.
// Every field falls back to a default when absent.
type Settings struct {
	ListenAddr       string `yaml:"listen_addr"`
	WorkRoot         string `yaml:"work_root"`
	ToolBinary       string `yaml:"tool_binary"`
	FilenameTemplate string `yaml:"filename_template"`
	ProbeTimeoutSec  int    `yaml:"probe_timeout_seconds"`
	SendTimeoutSec   int    `yaml:"send_timeout_seconds"`
}

// Default returns settings with every field at its default value
func Default() *Settings {
	settings := &Settings{}
	settings.applyDefaults()
	return settings
}

// Load reads settings from a yaml file. A missing file is not an error:
// defaults are returned so the service can run unconfigured.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	settings.applyDefaults()
	return settings, nil
}

// applyDefaults fills empty fields with default values
func (s *Settings) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.WorkRoot == "" {
		s.WorkRoot = filepath.Join(os.TempDir(), DefaultWorkRootName)
	}
	if s.ToolBinary == "" {
		s.ToolBinary = DefaultToolBinary
	}
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = DefaultFilenameTemplate
	}
	if s.ProbeTimeoutSec <= 0 {
		s.ProbeTimeoutSec = DefaultProbeTimeoutSec
	}
	if s.SendTimeoutSec <= 0 {
		s.SendTimeoutSec = DefaultSendTimeoutSec
	}
}

// ProbeTimeout returns the format-listing timeout as a duration
func (s *Settings) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSec) * time.Second
}

// SendTimeout returns the subscriber delivery timeout as a duration
func (s *Settings) SendTimeout() time.Duration {
	return time.Duration(s.SendTimeoutSec) * time.Second
}
