// Package lifecycle holds process-wide lifecycle state shared by handlers.
package lifecycle

import "sync/atomic"

// Lifecycle tracks whether the gateway is draining. While draining, new
// calls are refused and live sessions are warned so clients can hang up
// cleanly before shutdown completes.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
