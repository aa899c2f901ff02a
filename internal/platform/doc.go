package platform

// Package platform contains external tooling glue: the output-stream
// multiplexer, the yt-dlp line parser, format discovery, and filesystem
// helpers for the per-task working directories.
