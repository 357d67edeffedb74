// Package server implements the accept loop, per-server-id business
// dispatch table, and graceful shutdown wiring around the reliability
// manager and connection handler.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → conn.Handler routes acks to the manager, dedups data frames
//	    → buildDispatcher goroutine (parallel processing) → Middleware Chain
//	      → businessHandler → reliability.Manager.Send(response)
package server

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"myproto-go/conn"
	"myproto-go/middleware"
	"myproto-go/reliability"
	"myproto-go/registry"
	"myproto-go/timer"
)

// Server accepts connections, dedups and acks inbound data through a
// reliability.Manager, and dispatches each message to the business
// handler registered for its server id.
type Server struct {
	manager *reliability.Manager

	handlers    map[uint16]middleware.HandlerFunc // registered business handlers, pre-middleware
	middlewares []middleware.Middleware

	listener net.Listener
	wg       sync.WaitGroup // tracks in-flight dispatches for graceful shutdown
	shutdown atomic.Bool

	sweeper *timer.Sweeper

	registry      registry.Registry
	advertiseAddr string
}

// NewServer creates a server with its own reliability manager and an
// empty handler table.
func NewServer() *Server {
	return &Server{
		manager:  reliability.NewManager(),
		handlers: make(map[uint16]middleware.HandlerFunc),
	}
}

// Register binds a business handler to a server id. Call before Serve.
func (svr *Server) Register(server uint16, handler middleware.HandlerFunc) {
	svr.handlers[server] = handler
}

// Use registers a middleware. Middlewares are applied in the order
// they are added, outermost first.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve starts the server: listens on the given address, optionally
// registers every handled server id with reg, starts the reliability
// manager's timeout sweeper, and enters the accept loop.
//
// advertiseAddr is the address registered in the registry (e.g.
// "127.0.0.1:8080") — it differs from the listen address because
// ":8080" resolves to "[::]:8080" locally, which is not routable.
// Pass a nil reg to skip service discovery.
func (svr *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener

	chain := middleware.Chain(svr.middlewares...)
	dispatchers := make(map[uint16]conn.Dispatcher, len(svr.handlers))
	for server, handler := range svr.handlers {
		dispatchers[server] = buildDispatcher(svr.manager, &svr.wg, chain(handler))
	}
	svr.sweeper = timer.NewSweeper(timer.DefaultInterval, svr.manager.SweepTimeouts)

	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for server := range svr.handlers {
			if err := reg.Register(server, registry.DispatcherInstance{Addr: advertiseAddr}, 10); err != nil {
				log.Printf("server: failed to register server id %d: %v", server, err)
			}
		}
	}

	for {
		nc, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(nc, conn.NewHandler(svr.manager, dispatchers))
	}
}

// handleConn runs a read loop for one connection in its own goroutine
// (reads must stay sequential to parse frame boundaries), feeding raw
// bytes to that connection's own handler. Business dispatch itself is
// parallelized inside buildDispatcher, not here.
func (svr *Server) handleConn(nc net.Conn, connHandler *conn.Handler) {
	sc := newServerConn(nc)
	defer func() {
		sc.close()
		connHandler.OnClosed(sc, nil)
	}()

	buf := make([]byte, 64*1024)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			if !connHandler.OnBytes(sc, buf[:n]) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister every handled server id from the registry first, so
//     clients stop routing new messages here.
//  2. Set the shutdown flag before closing the listener, so the
//     resulting Accept error is recognized as intentional.
//  3. Stop the timeout sweeper.
//  4. Wait for in-flight dispatches to finish, bounded by timeout.
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		for server := range svr.handlers {
			svr.registry.Deregister(server, svr.advertiseAddr)
		}
	}

	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	if svr.sweeper != nil {
		svr.sweeper.Stop()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing dispatches to finish")
	}
}
