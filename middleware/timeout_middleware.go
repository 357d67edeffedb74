package middleware

import (
	"context"
	"time"

	"myproto-go/protocol"
	"myproto-go/reliability"
)

// TimeOutMiddleware enforces a maximum duration for each dispatched
// message. If the handler doesn't complete within the timeout, it
// returns an error response immediately.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running
// in the background. The timeout only controls when the caller gives
// up waiting. For true cancellation, the handler must check ctx.Done()
// internally.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn reliability.Connection, msg *protocol.Message) *protocol.Message {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *protocol.Message, 1) // buffered: prevents a goroutine leak if the timeout fires first
			go func() {
				done <- next(ctx, conn, msg)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return errorResponse(msg, "request timed out")
			}
		}
	}
}
