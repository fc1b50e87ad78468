package pgconn

import (
	"context"
	"runtime"
	"weak"

	"github.com/hexdbio/pgconn/internal/protocol"
	"github.com/hexdbio/pgconn/internal/typeinfo"
)

// Column describes one column of a Statement's result set (§3).
type Column struct {
	Name     string
	TableOID uint32
	AttNum   int16
	Type     *typeinfo.Type
	Format   int16
}

// Statement is a prepared, server-side named statement (§3). It is shared;
// once the last reference is collected, its Close is enqueued best-effort
// via a weak back-reference to the Client, never blocking the collector.
type Statement struct {
	name       string
	paramTypes []*typeinfo.Type
	columns    []Column
}

// Name is the server-side statement name ("s<n>").
func (s *Statement) Name() string { return s.name }

// ParamTypes returns the resolved type of each parameter, in order.
func (s *Statement) ParamTypes() []*typeinfo.Type { return s.paramTypes }

// Columns returns the resolved result-row column descriptors.
func (s *Statement) Columns() []Column { return s.columns }

// registerStatementCleanup attaches a close-on-drop cleanup (§4.3) to stmt:
// a weak.Pointer[Client] back-reference, promoted only when the garbage
// collector has determined stmt is unreachable. runtime.AddCleanup (not
// SetFinalizer) is used because it supports attaching independent cleanups
// without resurrecting stmt, matching "close is fire-and-forget, never
// blocks, never revives the handle."
func registerStatementCleanup(c *Client, stmt *Statement) {
	weakClient := weak.Make(c)
	name := stmt.name
	runtime.AddCleanup(stmt, func(wc weak.Pointer[Client]) {
		closeNamedOnDrop(wc, protocol.CloseStatement, name)
	}, weakClient)
}

// Portal is a server-side cursor bound to a Statement (§3). It holds a
// strong reference to its owning Statement (keeping its parameter/column
// descriptors alive); close-on-drop goes through a weak back-reference to
// the Client held by the cleanup registerPortalCleanup attaches.
type Portal struct {
	name string
	stmt *Statement
}

// Name is the server-side portal name ("p<n>").
func (p *Portal) Name() string { return p.name }

// Statement returns the Statement this portal was bound from.
func (p *Portal) Statement() *Statement { return p.stmt }

func registerPortalCleanup(c *Client, portal *Portal) {
	weakClient := weak.Make(c)
	name := portal.name
	runtime.AddCleanup(portal, func(wc weak.Pointer[Client]) {
		closeNamedOnDrop(wc, protocol.ClosePortal, name)
	}, weakClient)
}

// closeNamedOnDrop promotes wc and, if the Client is still alive, enqueues a
// best-effort Close+Sync with no response channel. If the client is gone
// the close is silently skipped (§4.3, §9).
func closeNamedOnDrop(wc weak.Pointer[Client], kind byte, name string) {
	c := wc.Value()
	if c == nil {
		return
	}
	payload := append(protocol.CloseMessage(kind, name), protocol.SyncMessage()...)
	// Best-effort: submit may fail if the connection already closed, which
	// is exactly the "silently skipped" case §4.3 calls for.
	_ = c.conn.submit(fireAndForget(payload))
}

// CloseStatement and ClosePortal are the explicit, non-drop-triggered
// variants of §4.2's close_statement/close_portal: best-effort, ignored if
// the connection has already closed. Callers that want a named
// statement/portal released deterministically (rather than waiting on the
// garbage collector to run its close-on-drop cleanup) call these directly.
func (c *Client) CloseStatement(ctx context.Context, stmt *Statement) error {
	return c.closeNamed(ctx, protocol.CloseStatement, stmt.name)
}

func (c *Client) ClosePortal(ctx context.Context, portal *Portal) error {
	return c.closeNamed(ctx, protocol.ClosePortal, portal.name)
}

func (c *Client) closeNamed(ctx context.Context, kind byte, name string) error {
	payload := append(protocol.CloseMessage(kind, name), protocol.SyncMessage()...)
	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil // already closed: best-effort per §4.2
	}
	for {
		select {
		case msg, ok := <-req.resp:
			if !ok {
				return nil
			}
			if msg.err != nil {
				return nil
			}
			switch msg.frame.Type {
			case protocol.MsgErrorResponse:
				// Drain to ReadyForQuery; best-effort close ignores the error.
				continue
			case protocol.MsgReadyForQuery:
				return nil
			default:
				continue
			}
		case <-ctx.Done():
			return nil
		}
	}
}
