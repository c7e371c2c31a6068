// Package defaults provides centralized configuration constants for catalogsnap.
//
// This package defines timeout values and polling intervals used across the
// codebase.
//
// # Timeout Categories
//
//   - Capture timeouts: For compiler runs
//   - Store timeouts: For the per-host capture lock
//
// # Usage
//
// Import and use constants directly:
//
//	import "github.com/catalogsnap/catalogsnap/pkg/defaults"
//
//	runner := &capture.Runner{Timeout: defaults.CaptureTimeout}
//
// # Timeout Guidelines
//
//   - Compiles: 10m default, 0 disables the bound
//   - Lock waits: 15m, longer than a typical compile of the same host
//   - Stale locks: 30m without a refresh, after which a lock left by a crashed
//     run is reclaimed; held locks are refreshed every 5m
package defaults

import "time"

// Capture timeouts.
const (
	// CaptureTimeout bounds a single compiler run.
	CaptureTimeout = 10 * time.Minute

	// CaptureWaitDelay bounds how long output is still collected after the
	// compiler has been killed.
	CaptureWaitDelay = 5 * time.Second
)

// Store timeouts.
const (
	// LockTimeout is how long a capture waits for another capture of the same host.
	LockTimeout = 15 * time.Minute

	// LockStaleAfter is the age after which a lock file is considered abandoned.
	LockStaleAfter = 30 * time.Minute

	// LockRefreshInterval is how often a held lock is touched. It must stay
	// well below LockStaleAfter.
	LockRefreshInterval = 5 * time.Minute

	// LockPollInterval is the delay between lock attempts.
	LockPollInterval = 50 * time.Millisecond
)
