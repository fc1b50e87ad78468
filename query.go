package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// Query binds params to an anonymous portal against stmt and returns a lazy
// row sequence (§4.2 query).
func (c *Client) Query(ctx context.Context, stmt *Statement, params []any) (*Rows, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	payload := protocol.BindMessage("", stmt.name, allText(len(encoded)), encoded, allText(len(stmt.columns)))
	payload = append(payload, protocol.ExecuteMessage("", 0)...)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil, err
	}
	return &Rows{ctx: ctx, client: c, req: req, columns: stmt.columns}, nil
}

// QueryPortal executes an already-bound portal, yielding at most maxRows
// rows before PortalSuspended (0 means no limit) (§4.2 query_portal).
func (c *Client) QueryPortal(ctx context.Context, portal *Portal, maxRows int32) (*Rows, error) {
	payload := protocol.ExecuteMessage(portal.name, maxRows)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil, err
	}
	return &Rows{ctx: ctx, client: c, req: req, columns: portal.stmt.columns}, nil
}
