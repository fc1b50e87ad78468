package pgconn

import (
	"context"
	"strconv"
	"strings"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// Row is one DataRow's values, in column order; a nil element is SQL NULL.
// Decoding raw bytes into Go types is out of core (spec.md §1) — Row hands
// back exactly what the server sent.
type Row [][]byte

// Rows is a lazy sequence of result rows for an executed statement or
// portal (§4.2 query/query_portal). Next pulls the next backend message,
// blocking until one is available; it returns false once ReadyForQuery is
// observed (Err distinguishes clean completion from failure).
type Rows struct {
	ctx     context.Context
	client  *Client
	req     *request
	columns []Column

	cur Row
	err error
	done bool
}

// Columns returns the result-set column descriptors.
func (r *Rows) Columns() []Column { return r.columns }

// Next advances to the next row, returning false when the row sequence is
// exhausted (successfully or due to an error — check Err).
func (r *Rows) Next() bool {
	if r.done {
		return false
	}
	for {
		f, err := r.client.recv(r.ctx, r.req)
		if err != nil {
			r.err = err
			r.done = true
			return false
		}
		switch f.Type {
		case protocol.MsgDataRow:
			vals, perr := protocol.ParseDataRow(f.Body)
			if perr != nil {
				r.err = wrapErr(KindParse, "data row", perr)
				r.done = true
				return false
			}
			r.cur = Row(vals)
			return true
		case protocol.MsgCommandComplete:
			continue
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				r.err = wrapErr(KindParse, "error response", perr)
			} else {
				r.err = dbErr(ef)
			}
			_ = r.client.drainToReady(r.ctx, r.req)
			r.done = true
			return false
		case protocol.MsgPortalSuspended:
			r.done = true
			return false
		case protocol.MsgReadyForQuery:
			r.done = true
			return false
		default:
			r.err = newErr(KindUnexpectedMessage, "unexpected message during row fetch")
			r.done = true
			return false
		}
	}
}

// Values returns the row most recently produced by Next.
func (r *Rows) Values() Row { return r.cur }

// Err returns the error that ended iteration, or nil on clean completion.
func (r *Rows) Err() error { return r.err }

// rowCount parses the trailing decimal token of a CommandComplete tag, 0 if
// none is present (§4.2 execute, §8 row-count-parsing invariant).
func rowCount(tag string) int64 {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
