// Package monitoring holds the process-wide request counters surfaced by
// the admin API's GET /monitoring route (spec.md §6, supplemented from
// original_source/src/core/monitoring.rs).
package monitoring

import (
	"sync/atomic"
	"time"
)

// Monitor accumulates request counters updated by the request-handler
// entry point (§4.Q step 1) and read by the admin monitoring route.
type Monitor struct {
	startedAt      time.Time
	requestsServed int64
	inProgress     int64
}

// New creates a Monitor stamped with the current process start time.
func New() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

// BeginRequest increments the in-flight counter; call Done on the returned
// value when the request completes.
func (m *Monitor) BeginRequest() (done func()) {
	atomic.AddInt64(&m.inProgress, 1)
	atomic.AddInt64(&m.requestsServed, 1)
	return func() {
		atomic.AddInt64(&m.inProgress, -1)
	}
}

// Snapshot is the point-in-time view returned to the admin API.
type Snapshot struct {
	RequestsServed    int64
	RequestsPerSec    float64
	RequestsInProgress int64
	UptimeSeconds     float64
}

// Snapshot computes the current counters.
func (m *Monitor) Snapshot() Snapshot {
	uptime := time.Since(m.startedAt).Seconds()
	served := atomic.LoadInt64(&m.requestsServed)
	rps := 0.0
	if uptime > 0 {
		rps = float64(served) / uptime
	}
	return Snapshot{
		RequestsServed:     served,
		RequestsPerSec:     rps,
		RequestsInProgress: atomic.LoadInt64(&m.inProgress),
		UptimeSeconds:      uptime,
	}
}
