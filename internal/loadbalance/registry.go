// Package loadbalance implements the round-robin upstream selection used
// by the proxy processor (spec.md §4.I): one rotation counter per
// processor id, shared across all requests routed to that processor.
//
// Grounded on the teacher's internal/model/upstream.go
// (ValidLoadBalanceMethods enum, Upstream list shape), generalized from a
// config-validation enum into a live runtime registry; atomic rotation
// counter follows the mutex-guarded-counter idiom used throughout the
// teacher's internal/scheduler package.
package loadbalance

import (
	"sync"
	"sync/atomic"
)

// Registry holds one rotation counter per processor id.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{counters: make(map[string]*uint64)}
}

// Next returns the next upstream server for processorID from servers,
// round-robin. Returns "", false if servers is empty.
func (r *Registry) Next(processorID string, servers []string) (string, bool) {
	if len(servers) == 0 {
		return "", false
	}
	counter := r.counterFor(processorID)
	n := atomic.AddUint64(counter, 1) - 1
	return servers[int(n%uint64(len(servers)))], true
}

func (r *Registry) counterFor(processorID string) *uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[processorID]
	if !ok {
		c = new(uint64)
		r.counters[processorID] = c
	}
	return c
}

// Reset clears the rotation counter for processorID, restarting rotation
// from the first server. internal/runstate does not call it: each
// reload builds a fresh Registry.
func (r *Registry) Reset(processorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, processorID)
}
