// Package reliability implements at-least-once delivery on top of the
// protocol package's frame codec: sequence assignment, unacked-send
// tracking with bounded retransmission, and receiver-side
// deduplication.
//
// This is a Go rendering of the original ReliableMsgManager — same
// lock, same per-connection maps, same retry budget — generalized from
// muduo's TcpConnectionPtr/weak_ptr pair to the Connection interface
// above.
package reliability

import (
	"log"
	"sync"
	"time"

	"myproto-go/protocol"
)

// MaxRetryCount and RetryInterval are the fixed retry budget: a
// pending entry is retransmitted at most this many times, spaced at
// least this far apart, before being given up on.
const (
	MaxRetryCount = 3
	RetryInterval = time.Second
)

// suspectTypes are single-byte Type values that are almost certainly
// JSON punctuation read after framing slipped out of sync, a
// defensive check the CRC should make unnecessary once framing is
// fully trusted end to end, but kept as a second line of defense.
var suspectTypes = map[byte]struct{}{
	'{': {}, '}': {}, '[': {}, ']': {},
}

func isSuspectType(t byte) bool {
	_, ok := suspectTypes[t]
	return ok
}

// pendingEntry is a single unacknowledged outbound data frame.
type pendingEntry struct {
	msg        *protocol.Message
	sendTime   time.Time
	retryCount int
	handle     weakHandle
}

// connState is the per-connection state the manager keeps: unacked
// sends and the set of sequences already delivered to business logic.
type connState struct {
	pending map[uint32]*pendingEntry
	dedup   map[uint32]struct{}
}

func newConnState() *connState {
	return &connState{
		pending: make(map[uint32]*pendingEntry),
		dedup:   make(map[uint32]struct{}),
	}
}

// Manager is the reliability layer: it assigns sequence numbers to
// outbound data, tracks them until acked or retry-exhausted, and
// deduplicates inbound data by sequence. One Manager is shared across
// every connection in a process; per-server-id partitioning, if
// wanted, belongs in the registry layer above it.
//
// The dedup set for a connection is never pruned short of
// CleanupConnection — it grows for as long as the connection lives.
// Bounding it would require a sliding window over acked sequences or
// a wrapped sequence space; neither is implemented here.
type Manager struct {
	mu           sync.Mutex
	nextSequence uint32
	conns        map[string]*connState
}

// NewManager returns a Manager with its sequence counter starting at 1.
func NewManager() *Manager {
	return &Manager{
		nextSequence: 1,
		conns:        make(map[string]*connState),
	}
}

// Send assigns a fresh sequence number to msg, stamps version and
// type, records it as pending, and writes it to conn. It returns 0
// without any side effect if conn is not currently connected.
func (m *Manager) Send(conn Connection, msg *protocol.Message) uint32 {
	if conn == nil || !conn.Connected() {
		return 0
	}

	m.mu.Lock()
	seq := m.nextSequence
	m.nextSequence++

	msg.Head.Sequence = seq
	msg.Head.Version = protocol.CurrentVersion
	msg.Head.Type = protocol.TypeData

	state := m.stateFor(conn.ID())
	state.pending[seq] = &pendingEntry{
		msg:      msg,
		sendTime: time.Now(),
		handle:   weakHandle{conn: conn},
	}
	m.mu.Unlock()

	if err := writeMessage(conn, msg); err != nil {
		log.Printf("reliability: send seq=%d to %s failed: %v", seq, conn.ID(), err)
	}
	return seq
}

// OnAck removes the pending entry matching msg's connection and
// sequence, if any. An ack for an unknown sequence is silently
// dropped — it may be a duplicate ack, or a delayed ack for an entry
// this connection already gave up on.
func (m *Manager) OnAck(conn Connection, msg *protocol.Message) {
	if conn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.conns[conn.ID()]
	if !ok {
		return
	}
	delete(state.pending, msg.Head.Sequence)
	if len(state.pending) == 0 && len(state.dedup) == 0 {
		delete(m.conns, conn.ID())
	}
}

// OnData validates and deduplicates an inbound data frame, always
// acking frames it accepts as well-formed (new or duplicate), and
// reports whether the frame is new and should be dispatched to
// business logic.
func (m *Manager) OnData(conn Connection, msg *protocol.Message) bool {
	if conn == nil || !conn.Connected() {
		return false
	}

	if msg.Head.Version != 0 && msg.Head.Version != 1 {
		return false
	}
	if isSuspectType(byte(msg.Head.Type)) {
		return false
	}
	if msg.Head.Len < protocol.MinFrameLen || msg.Head.Len > protocol.MaxFrameLen {
		return false
	}

	m.mu.Lock()
	state := m.stateFor(conn.ID())
	seq := msg.Head.Sequence

	if _, seen := state.dedup[seq]; seen {
		m.mu.Unlock()
		m.sendAck(conn, seq)
		return false
	}
	state.dedup[seq] = struct{}{}
	m.mu.Unlock()

	m.sendAck(conn, seq)
	return true
}

// SweepTimeouts walks every pending entry across every connection and
// retransmits any that have been outstanding longer than
// RetryInterval, up to MaxRetryCount times, dropping entries whose
// connection has gone away or whose budget is exhausted. Intended to
// be invoked periodically by a timer.Sweeper.
func (m *Manager) SweepTimeouts() {
	now := time.Now()

	m.mu.Lock()
	type retransmission struct {
		conn Connection
		msg  *protocol.Message
		seq  uint32
	}
	var toSend []retransmission

	for connID, state := range m.conns {
		for seq, entry := range state.pending {
			if now.Sub(entry.sendTime) <= RetryInterval {
				continue
			}
			if entry.retryCount >= MaxRetryCount {
				delete(state.pending, seq)
				continue
			}
			conn, ok := entry.handle.upgrade()
			if !ok {
				delete(state.pending, seq)
				continue
			}
			entry.retryCount++
			entry.sendTime = now
			entry.msg.Head.Version = protocol.CurrentVersion
			toSend = append(toSend, retransmission{conn: conn, msg: entry.msg, seq: seq})
		}
		if len(state.pending) == 0 && len(state.dedup) == 0 {
			delete(m.conns, connID)
		}
	}
	m.mu.Unlock()

	for _, r := range toSend {
		if err := writeMessage(r.conn, r.msg); err != nil {
			log.Printf("reliability: retry seq=%d to %s failed: %v", r.seq, r.conn.ID(), err)
		}
	}
}

// CleanupConnection removes all pending entries, the dedup set, and
// the weak connection handle for connID. Called when a connection
// closes.
func (m *Manager) CleanupConnection(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

func (m *Manager) sendAck(conn Connection, sequence uint32) {
	ack := protocol.NewAck(sequence)
	if err := writeMessage(conn, ack); err != nil {
		log.Printf("reliability: ack seq=%d to %s failed: %v", sequence, conn.ID(), err)
	}
}

// stateFor returns the connState for connID, creating it if absent.
// Must be called with mu held.
func (m *Manager) stateFor(connID string) *connState {
	state, ok := m.conns[connID]
	if !ok {
		state = newConnState()
		m.conns[connID] = state
	}
	return state
}
