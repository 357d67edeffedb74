// Package conn implements the Connection Handler: the glue between a
// raw byte stream, the protocol codec, and the reliability manager.
// It holds no sequence or retry state of its own — it is purely a
// router, same as the source's ConnectionHandler::onMessage.
package conn

import (
	"log"
	"sync"

	"myproto-go/protocol"
	"myproto-go/reliability"
)

// Dispatcher is the business-handler injection point: a callback
// registered per service id, invoked after a data frame is accepted
// and deduplicated.
type Dispatcher func(conn reliability.Connection, msg *protocol.Message)

// Handler drives one connection's decoder and routes completed frames
// to the reliability manager and, for new data frames, to the
// registered business dispatcher.
type Handler struct {
	manager     *reliability.Manager
	dispatchers map[uint16]Dispatcher

	mu      sync.Mutex
	decoder *protocol.Decoder
}

// NewHandler builds a Handler backed by the given manager and
// dispatch table. The dispatch table is read-only from the Handler's
// point of view — register everything before wiring connections to it.
func NewHandler(manager *reliability.Manager, dispatchers map[uint16]Dispatcher) *Handler {
	return &Handler{
		manager:     manager,
		dispatchers: dispatchers,
		decoder:     protocol.NewDecoder(),
	}
}

// OnBytes feeds newly-received bytes to the decoder and routes every
// frame it completes. It returns false if the decoder hit a fatal
// parse error, in which case the caller must close the connection —
// the handler does not attempt to resynchronize mid-stream.
func (h *Handler) OnBytes(c reliability.Connection, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.decoder.Feed(data); err != nil {
		log.Printf("conn: parse error on %s, closing: %v", c.ID(), err)
		return false
	}

	for !h.decoder.Empty() {
		msg, _ := h.decoder.Front()
		h.decoder.Pop()
		h.route(c, msg)
	}
	return true
}

func (h *Handler) route(c reliability.Connection, msg *protocol.Message) {
	if msg.Head.Type == protocol.TypeAck {
		h.manager.OnAck(c, msg)
		return
	}

	if !h.manager.OnData(c, msg) {
		return
	}

	dispatch, ok := h.dispatchers[msg.Head.Server]
	if !ok {
		log.Printf("conn: no dispatcher registered for server=%d", msg.Head.Server)
		return
	}
	dispatch(c, msg)
}

// OnClosed cleans up the manager's per-connection state and notifies
// observer, if non-nil, that this connection has gone away.
func (h *Handler) OnClosed(c reliability.Connection, observer func(reliability.Connection)) {
	h.manager.CleanupConnection(c.ID())
	if observer != nil {
		observer(c)
	}
}
