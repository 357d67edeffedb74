// Package registry provides the etcd-based implementation of the
// Registry interface.
//
// etcd is a distributed key-value store that provides strong
// consistency (Raft protocol). It is used here as a "distributed
// phonebook" for dispatchers:
//
//	Key:   /myproto/{server}/{Addr}
//	Value: JSON-encoded DispatcherInstance
//
// Registration uses TTL-based leases: if the process crashes, the
// lease expires and the entry is automatically removed, preventing
// "ghost" instances.
package registry

import (
	"context"
	"encoding/json"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

func prefixFor(server uint16) string {
	return "/myproto/" + strconv.Itoa(int(server)) + "/"
}

// Register adds a dispatcher instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// Note: leaseID is a local variable, NOT stored on the struct.
// This prevents a data race when multiple dispatchers share one
// EtcdRegistry instance.
func (r *EtcdRegistry) Register(server uint16, instance DispatcherInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, prefixFor(server)+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a dispatcher instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(server uint16, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, prefixFor(server)+addr)
	return err
}

// Watch monitors a server id's prefix in etcd and emits updated
// instance lists whenever changes occur.
//
// Uses etcd's Watch API (server-push), which is more efficient than polling.
func (r *EtcdRegistry) Watch(server uint16) <-chan []DispatcherInstance {
	ctx := context.TODO()
	ch := make(chan []DispatcherInstance, 1)
	prefix := prefixFor(server)

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			// (simpler than parsing individual watch events)
			instances, _ := r.Discover(server)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a server id.
func (r *EtcdRegistry) Discover(server uint16) ([]DispatcherInstance, error) {
	ctx := context.TODO()
	prefix := prefixFor(server)

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]DispatcherInstance, 0)
	for _, kv := range resp.Kvs {
		var instance DispatcherInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
