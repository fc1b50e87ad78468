package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// CancelQuery opens a fresh connection to the same host this Client
// connected to and sends CancelRequest with the remembered process id and
// secret key (§4.2 cancel_query). It is never routed through the existing
// connection, and the cancel connection is closed immediately after
// sending the request — PostgreSQL does not reply to CancelRequest.
func (c *Client) CancelQuery(ctx context.Context) error {
	pid, secret := c.conn.BackendKey()
	raw, err := dialSocket(ctx, c.cancelHost, c.cancelPort, 0, 0)
	if err != nil {
		return wrapErr(KindIO, "dialing cancel connection", err)
	}
	defer raw.Close()

	if _, err := raw.Write(protocol.CancelRequestMessage(pid, secret)); err != nil {
		return wrapErr(KindIO, "sending cancel request", err)
	}
	return nil
}
