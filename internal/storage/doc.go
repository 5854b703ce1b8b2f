// Package storage persists driver samples and display cycles.
//
// Backends:
//   - "file": JSON Lines files next to the configured path prefix
//   - "sqlite": one SQLite database (build with -tags sqlite)
//
// Driver "none" (or empty) disables persistence; Open then returns a nil
// Store and callers skip recording.
package storage
