package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// allText builds a format-code slice for n params/columns, all text format
// (format code 0) — the module carries no binary codec for column values
// (spec.md §1 scope), so every wire value is exchanged as text.
func allText(n int) []int16 {
	f := make([]int16, n)
	return f
}

// Bind sends Bind+Sync, binding params to a fresh named portal against
// stmt (§4.2 bind).
func (c *Client) Bind(ctx context.Context, stmt *Statement, params []any) (*Portal, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	name := nextPortalName()
	payload := protocol.BindMessage(name, stmt.name, allText(len(encoded)), encoded, allText(len(stmt.columns)))
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil, err
	}

	for {
		f, err := c.recv(ctx, req)
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case protocol.MsgBindComplete:
			continue
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				return nil, wrapErr(KindParse, "error response", perr)
			}
			if derr := c.drainToReady(ctx, req); derr != nil {
				return nil, derr
			}
			return nil, dbErr(ef)
		case protocol.MsgReadyForQuery:
			portal := &Portal{name: name, stmt: stmt}
			registerPortalCleanup(c, portal)
			return portal, nil
		default:
			return nil, newErr(KindUnexpectedMessage, "unexpected message during bind")
		}
	}
}
