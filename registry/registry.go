// Package registry defines the service discovery interface and data
// types for locating the dispatchers behind a given server id.
//
// Service discovery solves the problem of "how does the client find the
// server?" Instead of hardcoding IP:port, dispatchers register
// themselves in a central registry (etcd), and clients query the
// registry to find available instances for the server id they want to
// talk to.
package registry

// DispatcherInstance represents a single running instance of a
// dispatcher, addressable over TCP by a client transport.
type DispatcherInstance struct {
	Addr    string // Network address, e.g., "127.0.0.1:8080"
	Weight  int    // Weight for load balancing (higher = more traffic)
	Version string // Dispatcher build version, for canary rollouts
}

// Registry is the interface for dispatcher registration and discovery,
// keyed by the protocol's server id (Head.Server).
type Registry interface {
	// Register adds a dispatcher instance to the registry under the
	// given server id, with a TTL lease. The instance is automatically
	// removed if KeepAlive stops (e.g., the process crashes).
	Register(server uint16, instance DispatcherInstance, ttl int64) error

	// Deregister removes a dispatcher instance from the registry.
	// Called during graceful shutdown before closing the listener.
	Deregister(server uint16, addr string) error

	// Discover returns all currently registered instances for a server id.
	// The client calls this to get the instance list for load balancing.
	Discover(server uint16) ([]DispatcherInstance, error)

	// Watch returns a channel that emits updated instance lists whenever
	// a server id's instances change (new instances, removals, etc.).
	Watch(server uint16) <-chan []DispatcherInstance
}
