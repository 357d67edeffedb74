// Package loadbalance provides load balancing strategies for
// distributing outbound messages across multiple dispatcher instances
// for the same server id.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless dispatchers, equal-capacity instances
//   - WeightedRandom:  Heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  Stateful dispatchers requiring connection affinity
package loadbalance

import "myproto-go/registry"

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each send to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every send — must be goroutine-safe.
	Pick(instances []registry.DispatcherInstance) (*registry.DispatcherInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
