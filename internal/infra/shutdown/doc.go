// Package shutdown coordinates graceful process termination.
//
// Hooks registered with OnShutdown run in reverse order of registration once
// the process receives SIGINT or SIGTERM, or when Trigger is called after an
// unrecoverable error. All hooks share one deadline.
package shutdown
