package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"myproto-go/conn"
	"myproto-go/middleware"
	"myproto-go/protocol"
	"myproto-go/reliability"
)

// serverConn adapts a net.Conn into reliability.Connection so the
// manager and conn.Handler can drive it without knowing about
// sockets.
type serverConn struct {
	nc     net.Conn
	id     string
	closed atomic.Bool
}

func newServerConn(nc net.Conn) *serverConn {
	return &serverConn{nc: nc, id: nc.RemoteAddr().String()}
}

func (c *serverConn) ID() string       { return c.id }
func (c *serverConn) Connected() bool  { return !c.closed.Load() }
func (c *serverConn) Write(b []byte) error {
	_, err := c.nc.Write(b)
	return err
}

func (c *serverConn) close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

// buildDispatcher wraps a middleware-chained business handler into the
// conn.Dispatcher signature the connection handler routes data frames
// to. Each message is run on its own goroutine, tracked by wg, so a
// slow handler on one message never blocks the next message on the
// same connection from being read and dispatched. If the chain
// produces a response, it is sent back through the reliability
// manager.
func buildDispatcher(manager *reliability.Manager, wg *sync.WaitGroup, handler middleware.HandlerFunc) conn.Dispatcher {
	return func(c reliability.Connection, msg *protocol.Message) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := handler(context.Background(), c, msg)
			if resp != nil {
				manager.Send(c, resp)
			}
		}()
	}
}
