package model

// Package model defines domain data structures used across the service:
// download tasks, status enums with explicit state transitions, and the
// structured events streamed to progress subscribers.
