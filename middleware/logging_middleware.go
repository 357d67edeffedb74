package middleware

import (
	"context"
	"log"
	"time"

	"myproto-go/protocol"
	"myproto-go/reliability"
)

// LoggingMiddleware records the connection id, server id, sequence, and
// duration for each dispatched message. It captures the start time
// before calling next, and logs the elapsed time after next returns.
//
// Example output (after the log package's timestamp prefix):
//
//	conn=127.0.0.1:50312 server=7 sequence=42 duration=38µs
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn reliability.Connection, msg *protocol.Message) *protocol.Message {
			start := time.Now()

			resp := next(ctx, conn, msg)

			duration := time.Since(start)
			log.Printf("conn=%s server=%d sequence=%d duration=%s", conn.ID(), msg.Head.Server, msg.Head.Sequence, duration)
			return resp
		}
	}
}
