package download

// Package download implements the asynchronous task core: the registry of
// in-flight tasks, the lifecycle controller that spawns the external tool
// and turns its output streams into structured events, and the cleanup
// manager that reclaims process, working directory and registry entry
// exactly once per task.
