package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// SimpleRows iterates the result of a simple_query (§4.2): zero or more
// result sets, each either a row-producing statement (RowDescription +
// DataRow*) or a command-only statement (CommandComplete only), terminated
// by ReadyForQuery.
type SimpleRows struct {
	ctx    context.Context
	client *Client
	req    *request

	columns []Column
	cur     Row
	tag     string
	hasRows bool

	err  error
	done bool
}

// SimpleQuery sends sql via the simple Query protocol message (§4.2
// simple_query): no parameters, no binary format, any number of
// semicolon-separated statements.
func (c *Client) SimpleQuery(ctx context.Context, sql string) *SimpleRows {
	req := newRequest(protocol.QueryMessage(sql), c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return &SimpleRows{err: err, done: true}
	}
	return &SimpleRows{ctx: ctx, client: c, req: req}
}

// NextResultSet advances to the next statement's result. It returns false
// once ReadyForQuery ends the whole sequence or an error occurred — check
// Err to tell the two apart.
func (r *SimpleRows) NextResultSet() bool {
	if r.done {
		return false
	}
	r.columns = nil
	r.tag = ""
	r.hasRows = false

	for {
		f, err := r.client.recv(r.ctx, r.req)
		if err != nil {
			r.err = err
			r.done = true
			return false
		}
		switch f.Type {
		case protocol.MsgRowDescription:
			fields, perr := protocol.ParseRowDescription(f.Body)
			if perr != nil {
				r.fail(wrapErr(KindParse, "row description", perr))
				return false
			}
			cols := make([]Column, len(fields))
			for i, fld := range fields {
				t, terr := r.client.resolver.Resolve(r.ctx, fld.TypeOID)
				if terr != nil {
					r.fail(wrapErr(KindParse, "resolving column type", terr))
					return false
				}
				cols[i] = Column{Name: fld.Name, TableOID: fld.TableOID, AttNum: fld.ColumnAttNum, Type: t, Format: fld.FormatCode}
			}
			r.columns = cols
			r.hasRows = true
			return true
		case protocol.MsgCommandComplete:
			tag, perr := protocol.ParseCommandComplete(f.Body)
			if perr != nil {
				r.fail(wrapErr(KindParse, "command complete", perr))
				return false
			}
			r.tag = tag
			return true
		case protocol.MsgEmptyQueryResponse:
			return true
		case protocol.MsgErrorResponse:
			r.failFromWire(f)
			return false
		case protocol.MsgReadyForQuery:
			r.done = true
			return false
		default:
			r.fail(newErr(KindUnexpectedMessage, "unexpected message during simple query"))
			return false
		}
	}
}

// NextRow advances to the next row of the current result set (only
// meaningful after a NextResultSet call that returned true for a
// row-producing statement).
func (r *SimpleRows) NextRow() bool {
	if r.done || !r.hasRows {
		return false
	}
	for {
		f, err := r.client.recv(r.ctx, r.req)
		if err != nil {
			r.err = err
			r.done = true
			r.hasRows = false
			return false
		}
		switch f.Type {
		case protocol.MsgDataRow:
			vals, perr := protocol.ParseDataRow(f.Body)
			if perr != nil {
				r.fail(wrapErr(KindParse, "data row", perr))
				r.hasRows = false
				return false
			}
			r.cur = Row(vals)
			return true
		case protocol.MsgCommandComplete:
			tag, perr := protocol.ParseCommandComplete(f.Body)
			if perr != nil {
				r.fail(wrapErr(KindParse, "command complete", perr))
				r.hasRows = false
				return false
			}
			r.tag = tag
			r.hasRows = false
			return false
		case protocol.MsgErrorResponse:
			r.failFromWire(f)
			r.hasRows = false
			return false
		default:
			r.fail(newErr(KindUnexpectedMessage, "unexpected message during simple query row fetch"))
			r.hasRows = false
			return false
		}
	}
}

func (r *SimpleRows) fail(err error) {
	r.err = err
	r.done = true
}

func (r *SimpleRows) failFromWire(f protocol.Frame) {
	ef, perr := protocol.ParseErrorFields(f.Body)
	if perr != nil {
		r.err = wrapErr(KindParse, "error response", perr)
	} else {
		r.err = dbErr(ef)
	}
	_ = r.client.drainToReady(r.ctx, r.req)
	r.done = true
}

// Columns returns the current result set's column descriptors, nil for a
// command-only result set.
func (r *SimpleRows) Columns() []Column { return r.columns }

// Values returns the row most recently produced by NextRow.
func (r *SimpleRows) Values() Row { return r.cur }

// Tag returns the current result set's CommandComplete tag once NextRow has
// finished (or immediately, for a command-only result set).
func (r *SimpleRows) Tag() string { return r.tag }

// Err returns the error that ended iteration, or nil on clean completion.
func (r *SimpleRows) Err() error { return r.err }
