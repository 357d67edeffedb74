package client

import (
	"net"
	"testing"
	"time"

	"myproto-go/loadbalance"
	"myproto-go/protocol"
	"myproto-go/registry"
)

type memRegistry struct {
	instances []registry.DispatcherInstance
}

func (m *memRegistry) Register(server uint16, instance registry.DispatcherInstance, ttl int64) error {
	return nil
}
func (m *memRegistry) Deregister(server uint16, addr string) error { return nil }
func (m *memRegistry) Discover(server uint16) ([]registry.DispatcherInstance, error) {
	return m.instances, nil
}
func (m *memRegistry) Watch(server uint16) <-chan []registry.DispatcherInstance {
	ch := make(chan []registry.DispatcherInstance)
	close(ch)
	return ch
}

func acceptOnce(t *testing.T, ln net.Listener, out chan<- []byte) {
	t.Helper()
	nc, err := ln.Accept()
	if err != nil {
		return
	}
	buf := make([]byte, 4096)
	n, _ := nc.Read(buf)
	out <- buf[:n]
}

func TestSendReachesDiscoveredInstance(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go acceptOnce(t, ln, received)

	reg := &memRegistry{instances: []registry.DispatcherInstance{{Addr: ln.Addr().String(), Weight: 1}}}
	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, 1, nil)

	seq, err := c.Send(9, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if seq == 0 {
		t.Fatal("expected a non-zero sequence")
	}

	select {
	case data := <-received:
		decoder := protocol.NewDecoder()
		if err := decoder.Feed(data); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoder.Empty() {
			t.Fatal("expected a decodable frame")
		}
		msg, _ := decoder.Front()
		if msg.Head.Server != 9 {
			t.Fatalf("expected server=9, got %d", msg.Head.Server)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the listener to receive a frame")
	}
}

func TestSendNoInstancesReturnsError(t *testing.T) {
	reg := &memRegistry{}
	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, 1, nil)

	if _, err := c.Send(9, []byte(`{}`)); err == nil {
		t.Fatal("expected an error when no instances are registered")
	}
}

func TestSendReusesTransportForSameAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 4096)
				for {
					if _, err := nc.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	reg := &memRegistry{instances: []registry.DispatcherInstance{{Addr: ln.Addr().String(), Weight: 1}}}
	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, 1, nil)

	if _, err := c.Send(1, []byte(`{}`)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := c.Send(1, []byte(`{}`)); err != nil {
		t.Fatalf("second send: %v", err)
	}

	c.mu.Lock()
	numPools := len(c.transports)
	c.mu.Unlock()
	if numPools != 1 {
		t.Fatalf("expected exactly one transport pool to be created, got %d", numPools)
	}
}

func TestSendExclusiveRoundTripsOverBorrowedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()

		decoder := protocol.NewDecoder()
		buf := make([]byte, 4096)
		for decoder.Empty() {
			n, err := nc.Read(buf)
			if err != nil {
				return
			}
			if err := decoder.Feed(buf[:n]); err != nil {
				return
			}
		}
		msg, _ := decoder.Front()

		ack := protocol.NewAck(msg.Head.Sequence)
		data, err := protocol.Encode(ack)
		if err != nil {
			return
		}
		nc.Write(data)
	}()

	reg := &memRegistry{instances: []registry.DispatcherInstance{{Addr: ln.Addr().String(), Weight: 1}}}
	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, 1, nil)

	seq, err := c.SendExclusive(3, []byte(`{"x":1}`), time.Second)
	if err != nil {
		t.Fatalf("SendExclusive: %v", err)
	}
	if seq == 0 {
		t.Fatal("expected a non-zero sequence")
	}

	c.mu.Lock()
	numPools := len(c.pools)
	c.mu.Unlock()
	if numPools != 1 {
		t.Fatalf("expected exactly one exclusive-connection pool to be created, got %d", numPools)
	}
}

func TestSendExclusiveNoInstancesReturnsError(t *testing.T) {
	reg := &memRegistry{}
	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, 1, nil)

	if _, err := c.SendExclusive(3, []byte(`{}`), time.Second); err == nil {
		t.Fatal("expected an error when no instances are registered")
	}
}
