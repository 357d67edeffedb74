// Package client implements the sending side: service discovery, load
// balancing, and a shared transport pool for multiplexed connections,
// wired to the reliability manager for at-least-once delivery.
//
// Send flow:
//
//	Send(server, body)
//	  → Registry.Discover(server)   → get instance list from etcd
//	  → Balancer.Pick(instances)    → select one address
//	  → getTransport(addr)          → get a shared transport (round-robin)
//	  → transport.Send()            → hand off to the reliability manager
//
// Delivery itself is not synchronous: Send returns once the message has
// a sequence number and has been written once. Retransmission and
// dedup on the far end are handled by reliability.Manager, not here.
package client

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"myproto-go/loadbalance"
	"myproto-go/protocol"
	"myproto-go/registry"
	"myproto-go/reliability"
	"myproto-go/transport"
)

// Client manages the full send lifecycle: service discovery → load
// balancing → transport → reliability manager.
type Client struct {
	registry   registry.Registry                      // service discovery (etcd or mock)
	balancer   loadbalance.Balancer                    // load balancing strategy
	manager    *reliability.Manager                    // shared by every transport this client owns
	transports map[string][]*transport.ClientTransport // per-address transport pool (shared, not borrowed)
	pools      map[string]*transport.ConnPool          // per-address exclusive-connection pools, for SendExclusive
	onData     func(msg *protocol.Message)             // optional: inbound data pushed back by a dispatcher
	mu         sync.Mutex                              // protects transports/pools maps (not the connections themselves)
	poolSize   int                                     // number of transports (or exclusive connections) per address
	counter    uint64                                  // atomic counter for round-robin transport selection
	excCounter uint64                                  // atomic counter for SendExclusive sequence numbers
}

// NewClient creates a client with the given registry, load balancer,
// and pool size.
//
// poolSize determines how many TCP connections are maintained per
// address. Each connection is driven by the shared reliability
// manager, so even poolSize=1 handles concurrent sends. Larger pools
// reduce write lock contention under very high concurrency.
//
// onData, if non-nil, is called for every data frame a dispatcher
// pushes back on any of this client's connections, after dedup.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, poolSize int, onData func(msg *protocol.Message)) *Client {
	return &Client{
		registry:   reg,
		balancer:   bal,
		manager:    reliability.NewManager(),
		transports: make(map[string][]*transport.ClientTransport),
		pools:      make(map[string]*transport.ConnPool),
		onData:     onData,
		poolSize:   poolSize,
	}
}

// getTransport returns a shared transport for the given address using
// round-robin selection.
//
// Design: transports are SHARED, not borrowed/returned. The transport
// is only "used" during Send() (a few microseconds), not for the
// whole delivery (which, under retransmission, can span seconds).
// Shared access avoids idle time from exclusive holding.
//
// Lock strategy: mu protects the transports map only. net.Dial runs
// inside the lock solely on first access (pool creation); subsequent
// calls just read the map and select via the atomic counter.
func (c *Client) getTransport(addr string) (*transport.ClientTransport, error) {
	n := atomic.AddUint64(&c.counter, 1)

	c.mu.Lock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make([]*transport.ClientTransport, c.poolSize)
		c.transports[addr] = pool
		for i := 0; i < c.poolSize; i++ {
			nc, err := net.Dial("tcp", addr)
			if err != nil {
				c.mu.Unlock()
				return nil, err
			}
			pool[i] = transport.NewClientTransport(nc, c.manager, c.onData)
		}
	}
	c.mu.Unlock()

	return pool[n%uint64(c.poolSize)], nil
}

// Send discovers an instance for server, picks one via the load
// balancer, and hands body off to the reliability manager through a
// shared transport. It returns the assigned sequence number.
func (c *Client) Send(server uint16, body []byte) (uint32, error) {
	instances, err := c.registry.Discover(server)
	if err != nil {
		return 0, err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return 0, err
	}

	t, err := c.getTransport(instance.Addr)
	if err != nil {
		return 0, err
	}

	seq := t.Send(server, body)
	if seq == 0 {
		return 0, fmt.Errorf("client: send to %s failed, connection unavailable", instance.Addr)
	}
	return seq, nil
}

// getPool returns the exclusive-connection pool for addr, creating it
// on first access.
func (c *Client) getPool(addr string) *transport.ConnPool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, ok := c.pools[addr]
	if !ok {
		pool = transport.NewConnPool(addr, c.poolSize, func() (net.Conn, error) {
			return net.Dial("tcp", addr)
		})
		c.pools[addr] = pool
	}
	return pool
}

// SendExclusive discovers an instance the same way Send does, but
// writes the frame over a connection borrowed exclusively from a
// per-address ConnPool instead of the shared multiplexed transport,
// and blocks until that frame's ack arrives on the same connection.
// Use this when a caller wants sole use of a connection for the
// duration of one request rather than manager-multiplexed delivery.
func (c *Client) SendExclusive(server uint16, body []byte, timeout time.Duration) (uint32, error) {
	instances, err := c.registry.Discover(server)
	if err != nil {
		return 0, err
	}

	instance, err := c.balancer.Pick(instances)
	if err != nil {
		return 0, err
	}

	pool := c.getPool(instance.Addr)
	pc, err := pool.Get()
	if err != nil {
		return 0, err
	}

	seq := uint32(atomic.AddUint64(&c.excCounter, 1))
	msg := protocol.NewDataMessage(server, body)
	msg.Head.Sequence = seq

	data, err := protocol.Encode(msg)
	if err != nil {
		pc.MarkUnusable()
		pool.Put(pc)
		return 0, err
	}

	pc.SetDeadline(time.Now().Add(timeout))
	if _, err := pc.Write(data); err != nil {
		pc.MarkUnusable()
		pool.Put(pc)
		return 0, err
	}

	decoder := protocol.NewDecoder()
	buf := make([]byte, 256)
	for decoder.Empty() {
		n, err := pc.Read(buf)
		if err != nil {
			pc.MarkUnusable()
			pool.Put(pc)
			return 0, err
		}
		if err := decoder.Feed(buf[:n]); err != nil {
			pc.MarkUnusable()
			pool.Put(pc)
			return 0, err
		}
	}

	pc.SetDeadline(time.Time{})
	pool.Put(pc)

	ack, _ := decoder.Front()
	if ack.Head.Type != protocol.TypeAck || ack.Head.Sequence != seq {
		return 0, fmt.Errorf("client: unexpected response for exclusive send to %s, seq=%d", instance.Addr, seq)
	}
	return seq, nil
}
