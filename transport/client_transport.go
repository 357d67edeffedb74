// Package transport implements the client-side transport: a single
// TCP connection driven by the reliability manager, with a background
// goroutine decoding inbound frames and routing them.
//
// ClientTransport implements reliability.Connection so the manager can
// Send through it and track its pending retransmissions without
// knowing anything about net.Conn.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ dispatcher
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: reads frames off the wire, hands acks to the manager and
//	data frames to onData after manager dedup.
package transport

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"myproto-go/protocol"
	"myproto-go/reliability"
)

// ClientTransport manages a single connection and satisfies
// reliability.Connection.
type ClientTransport struct {
	conn    net.Conn
	id      string
	manager *reliability.Manager
	onData  func(msg *protocol.Message) // inbound data pushed by the remote, after dedup

	sending sync.Mutex // serializes writes so frames never interleave on the wire
	closed  atomic.Bool
	decoder *protocol.Decoder
}

// NewClientTransport wraps conn, starts its recvLoop, and returns a
// transport ready to Send through manager. onData may be nil if the
// caller never expects the remote to push data frames back.
func NewClientTransport(conn net.Conn, manager *reliability.Manager, onData func(msg *protocol.Message)) *ClientTransport {
	t := &ClientTransport{
		conn:    conn,
		id:      conn.RemoteAddr().String() + "->" + conn.LocalAddr().String(),
		manager: manager,
		onData:  onData,
		decoder: protocol.NewDecoder(),
	}
	go t.recvLoop()
	return t
}

// ID implements reliability.Connection.
func (t *ClientTransport) ID() string { return t.id }

// Connected implements reliability.Connection.
func (t *ClientTransport) Connected() bool { return !t.closed.Load() }

// Write implements reliability.Connection. Thread safety: the sending
// mutex ensures the entire frame is written atomically — without this
// lock, concurrent writes would interleave bytes from different
// messages and corrupt the stream.
func (t *ClientTransport) Write(b []byte) error {
	if t.closed.Load() {
		return fmt.Errorf("transport: connection %s is closed", t.id)
	}
	t.sending.Lock()
	defer t.sending.Unlock()
	_, err := t.conn.Write(b)
	return err
}

// Send hands body to the reliability manager for delivery to server.
// It returns the assigned sequence number, or 0 if the connection is
// already closed.
func (t *ClientTransport) Send(server uint16, body json.RawMessage) uint32 {
	msg := protocol.NewDataMessage(server, body)
	return t.manager.Send(t, msg)
}

// recvLoop runs in a dedicated goroutine, continuously reading frames
// from the connection and routing them. Why a single goroutine for
// reading? TCP is a byte stream — reads must stay sequential to parse
// frame boundaries correctly. Multiple readers would corrupt the
// stream.
func (t *ClientTransport) recvLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			if feedErr := t.decoder.Feed(buf[:n]); feedErr != nil {
				log.Printf("transport: parse error on %s, closing: %v", t.id, feedErr)
				t.Close()
				return
			}
			for !t.decoder.Empty() {
				msg, _ := t.decoder.Front()
				t.decoder.Pop()
				t.route(msg)
			}
		}
		if err != nil {
			t.Close()
			return
		}
	}
}

func (t *ClientTransport) route(msg *protocol.Message) {
	if msg.Head.Type == protocol.TypeAck {
		t.manager.OnAck(t, msg)
		return
	}
	if t.manager.OnData(t, msg) && t.onData != nil {
		t.onData(msg)
	}
}

// Close marks the transport disconnected, cleans up manager state for
// it, and closes the underlying connection.
func (t *ClientTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.manager.CleanupConnection(t.id)
	return t.conn.Close()
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}
