package pgconn

import "context"

// Transaction runs BEGIN, then body, then COMMIT on success or ROLLBACK on
// failure (§4.2 transaction, §8 transaction-wrapping invariant). If ROLLBACK
// itself errors, the original body error is returned — not the rollback
// failure.
func (c *Client) Transaction(ctx context.Context, body func(ctx context.Context) error) error {
	if err := c.execSimple(ctx, "BEGIN"); err != nil {
		return err
	}

	bodyErr := body(ctx)
	if bodyErr == nil {
		return c.execSimple(ctx, "COMMIT")
	}

	_ = c.execSimple(ctx, "ROLLBACK")
	return bodyErr
}

// execSimple runs sql via simple_query and drains it to completion,
// surfacing the first error encountered.
func (c *Client) execSimple(ctx context.Context, sql string) error {
	rows := c.SimpleQuery(ctx, sql)
	for rows.NextResultSet() {
		for rows.NextRow() {
		}
	}
	return rows.Err()
}
