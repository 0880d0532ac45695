package lifecycle

import "sync/atomic"

// shuttingDown flips once when the process receives SIGTERM/SIGINT and never
// flips back in production; tests reset it.
var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. While set, subscription
// intake refuses new registrations and the health endpoint reports
// shutting-down, so the orchestrator stops routing traffic before the alert
// loops are cancelled.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
