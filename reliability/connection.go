package reliability

import "myproto-go/protocol"

// Connection is the minimal transport surface the reliability manager
// needs: a stable identity and a non-blocking write. It is satisfied
// by both transport.ClientTransport and the server-side net.Conn
// wrapper used by the conn package — the manager never depends on
// net.Conn directly so it can be driven by tests with a fake.
type Connection interface {
	// ID returns a string identifying this connection for its full
	// lifetime. Stable across reads/writes, used as the key into all
	// per-connection manager state.
	ID() string
	// Connected reports whether the connection can currently accept
	// writes. A disconnected connection must never be written to.
	Connected() bool
	// Write sends raw bytes. Expected to be non-blocking (buffered by
	// the underlying transport).
	Write(b []byte) error
}

// weakHandle is this repo's stand-in for the source's
// std::weak_ptr<TcpConnection>: it lets the manager remember a
// connection without being the thing that keeps it alive. Since Go
// has no generic weak pointer, the contract is implemented with an
// explicit liveness check (Connected()) on every upgrade attempt
// rather than a runtime weak reference.
type weakHandle struct {
	conn Connection
}

// upgrade returns the live connection, or false if it has gone away.
// A connection that reports Connected()==false is treated the same as
// one that no longer exists: the caller should drop whatever it was
// about to do with it.
func (w weakHandle) upgrade() (Connection, bool) {
	if w.conn == nil || !w.conn.Connected() {
		return nil, false
	}
	return w.conn, true
}

func writeMessage(conn Connection, msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return conn.Write(data)
}
