// Package pgconn implements the asynchronous core of a PostgreSQL
// frontend/backend wire-protocol (v3) client: a connection multiplexer, the
// extended-query request lifecycles, a recursive catalog-driven
// type-resolution engine, and the connection establishment pipeline
// (socket → TLS → startup → auth → ready).
//
// Byte-level message-body codecs live in internal/protocol, SCRAM exchange
// in internal/scram, and type resolution in internal/typeinfo; this package
// wires them to one goroutine per connection and exposes Client as the
// caller-facing handle.
package pgconn

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hexdbio/pgconn/internal/protocol"
	"github.com/hexdbio/pgconn/internal/typeinfo"
)

// Client is a cheaply cloneable handle to one connection's request queue
// (§3). Multiple goroutines may share a Client; requests are pipelined onto
// a single connection task in the order their submit calls return.
type Client struct {
	conn     *conn
	resolver *typeinfo.Resolver
	log      *slog.Logger

	catalog catalogCache

	// cancelHost/cancelPort are the address CancelQuery dials — the host
	// that actually succeeded during Connect's host-failover loop, not
	// necessarily the first configured host (§4.2 cancel_query).
	cancelHost string
	cancelPort int
}

// catalogCache holds the cached handles to the six introspection statements
// (§3 Client handle data model) and which fallback variant each resolved to.
type catalogCache struct {
	mu sync.Mutex

	typeinfoStmt     *Statement
	typeinfoFallback bool

	enumStmt     *Statement
	enumFallback bool

	compositeStmt *Statement
}

// newClient wraps an established conn (past the startup/auth handshake) as
// a Client handle.
func newClient(c *conn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	cl := &Client{conn: c, log: log}
	cl.resolver = typeinfo.NewResolver(cl)
	return cl
}

// Param returns the last ParameterStatus value the backend sent for key
// (e.g. "server_version", "TimeZone").
func (c *Client) Param(key string) (string, bool) {
	return c.conn.Param(key)
}

// Closed reports whether the underlying connection has terminated.
func (c *Client) Closed() bool {
	select {
	case <-c.conn.Done():
		return true
	default:
		return false
	}
}

// Close requests a clean shutdown of the connection: the request queue is
// closed, and once all in-flight requests complete, the task tears down the
// transport (§4.1 clean-shutdown trigger). Close does not wait for
// shutdown to finish; use Done to observe completion.
func (c *Client) Close() {
	c.conn.shutdown()
}

// Done returns a channel closed once the connection task has fully exited.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Err returns the terminal error recorded when the connection task exited,
// or nil if it is still running.
func (c *Client) Err() error {
	return c.conn.Err()
}

// TypeCacheSize reports how many non-builtin OIDs this connection's
// typeinfo resolver has cached (§8 type-cache monotonicity, exposed for
// metrics/debug surfaces).
func (c *Client) TypeCacheSize() int {
	return c.resolver.CacheSize()
}

// recv waits for the next message on req's response channel, translating a
// closed channel or an in-band terminal error into the appropriate Error,
// and honoring ctx cancellation.
func (c *Client) recv(ctx context.Context, req *request) (protocol.Frame, error) {
	select {
	case msg, ok := <-req.resp:
		if !ok {
			return protocol.Frame{}, ErrClosed
		}
		if msg.err != nil {
			return protocol.Frame{}, msg.err
		}
		return msg.frame, nil
	case <-ctx.Done():
		return protocol.Frame{}, wrapErr(KindIO, "waiting for response", ctx.Err())
	}
}

// drainToReady consumes req's response channel until ReadyForQuery, used
// after an in-band db error to reach the synchronization boundary before
// returning it to the caller (§7 propagation rule).
func (c *Client) drainToReady(ctx context.Context, req *request) error {
	for {
		f, err := c.recv(ctx, req)
		if err != nil {
			return err
		}
		if f.Type == protocol.MsgReadyForQuery {
			return nil
		}
	}
}
