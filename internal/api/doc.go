package api

// Package api maps the HTTP surface onto the task core: submission,
// server-sent progress events, artifact retrieval and format discovery.
// Handlers stay thin; all lifecycle decisions live in internal/download.
