// Package health tracks per-node health state for one diagnostic session.
package health

import (
	"fmt"
	"sync"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/errdefs"
)

// NodeState is the health classification of one node.
type NodeState string

const (
	StateUnknown     NodeState = "Unknown"
	StateHealthy     NodeState = "Healthy"
	StateUnhealthy   NodeState = "Unhealthy"
	StateQuarantined NodeState = "Quarantined"
)

// Counts aggregates the per-state node totals.
type Counts struct {
	Unknown     int `json:"unknown"`
	Healthy     int `json:"healthy"`
	Unhealthy   int `json:"unhealthy"`
	Quarantined int `json:"quarantined"`
	Total       int `json:"total"`
}

// Registry is the concurrency-safe store of per-node health state.
// All mutations serialize through one lock; it is the single
// synchronization point shared by concurrent bisection branches.
//
// States only move along Unknown -> {Healthy, Unhealthy} -> Quarantined.
// Healthy and Unhealthy may flip as later groups implicate or clear a
// node; Quarantined is terminal for the session.
type Registry struct {
	mu     sync.RWMutex
	states map[string]NodeState
}

func NewRegistry(nodes []string) *Registry {
	states := make(map[string]NodeState, len(nodes))
	for _, node := range nodes {
		states[node] = StateUnknown
	}
	return &Registry{states: states}
}

// Update applies a state transition. Re-applying the current state is a
// no-op, so concurrent branches can independently clear the same node.
// Invalid transitions return ErrRegistryConflict.
func (r *Registry) Update(node string, state NodeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.states[node]
	if !ok {
		return fmt.Errorf("%w: unknown node %q", errdefs.ErrRegistryConflict, node)
	}

	if cur == state { // idempotent
		return nil
	}

	switch {
	case state == StateUnknown:
		return fmt.Errorf("%w: node %q cannot return to %s", errdefs.ErrRegistryConflict, node, StateUnknown)
	case cur == StateQuarantined:
		return fmt.Errorf("%w: node %q is quarantined", errdefs.ErrRegistryConflict, node)
	}

	r.states[node] = state
	updateStateMetrics(r.countsLocked())
	return nil
}

// Get returns the current state of the node.
func (r *Registry) Get(node string) (NodeState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[node]
	return state, ok
}

// Snapshot returns a point-in-time copy of all node states.
func (r *Registry) Snapshot() map[string]NodeState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]NodeState, len(r.states))
	for node, state := range r.states {
		snap[node] = state
	}
	return snap
}

// Counts returns the aggregate per-state totals.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.countsLocked()
}

func (r *Registry) countsLocked() Counts {
	c := Counts{Total: len(r.states)}
	for _, state := range r.states {
		switch state {
		case StateHealthy:
			c.Healthy++
		case StateUnhealthy:
			c.Unhealthy++
		case StateQuarantined:
			c.Quarantined++
		default:
			c.Unknown++
		}
	}
	return c
}
