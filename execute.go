package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// Execute binds params to an anonymous portal and runs stmt to completion,
// returning the row count parsed from CommandComplete (§4.2 execute).
func (c *Client) Execute(ctx context.Context, stmt *Statement, params []any) (int64, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return 0, err
	}
	payload := protocol.BindMessage("", stmt.name, allText(len(encoded)), encoded, allText(len(stmt.columns)))
	payload = append(payload, protocol.ExecuteMessage("", 0)...)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return 0, err
	}

	var count int64
	for {
		f, err := c.recv(ctx, req)
		if err != nil {
			return 0, err
		}
		switch f.Type {
		case protocol.MsgBindComplete, protocol.MsgDataRow:
			continue
		case protocol.MsgCommandComplete:
			tag, perr := protocol.ParseCommandComplete(f.Body)
			if perr != nil {
				return 0, wrapErr(KindParse, "command complete", perr)
			}
			count = rowCount(tag)
		case protocol.MsgEmptyQueryResponse:
			count = 0
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				return 0, wrapErr(KindParse, "error response", perr)
			}
			if derr := c.drainToReady(ctx, req); derr != nil {
				return 0, derr
			}
			return 0, dbErr(ef)
		case protocol.MsgReadyForQuery:
			return count, nil
		default:
			return 0, newErr(KindUnexpectedMessage, "unexpected message during execute")
		}
	}
}
