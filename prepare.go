package pgconn

import (
	"context"

	"github.com/hexdbio/pgconn/internal/protocol"
	"github.com/hexdbio/pgconn/internal/typeinfo"
)

// Prepare sends Parse+Describe+Sync for query and resolves the parameter
// and column types (§4.2 prepare). paramOIDs may contain zero entries,
// letting the server infer the type.
func (c *Client) Prepare(ctx context.Context, query string, paramOIDs []uint32) (*Statement, error) {
	name := nextStatementName()
	payload := protocol.ParseMessage(name, query, paramOIDs)
	payload = append(payload, protocol.DescribeMessage(protocol.DescribeStatement, name)...)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil, err
	}

	var outParamOIDs []uint32
	var fields []protocol.Field
	sawNoData := false

	for {
		f, err := c.recv(ctx, req)
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case protocol.MsgParseComplete:
			continue
		case protocol.MsgParameterDescription:
			oids, err := protocol.ParseParameterDescription(f.Body)
			if err != nil {
				return nil, wrapErr(KindParse, "parameter description", err)
			}
			outParamOIDs = oids
		case protocol.MsgRowDescription:
			fs, err := protocol.ParseRowDescription(f.Body)
			if err != nil {
				return nil, wrapErr(KindParse, "row description", err)
			}
			fields = fs
		case protocol.MsgNoData:
			sawNoData = true
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
			return c.buildStatement(ctx, name, outParamOIDs, fields, sawNoData)
		default:
			return nil, newErr(KindUnexpectedMessage, "unexpected message during prepare")
		}
	}
}

// buildStatement resolves every parameter and column OID (recursively, via
// the typeinfo resolver) and constructs the Statement handle, registering
// its close-on-drop cleanup.
func (c *Client) buildStatement(ctx context.Context, name string, paramOIDs []uint32, fields []protocol.Field, noData bool) (*Statement, error) {
	paramTypes := make([]*typeinfo.Type, len(paramOIDs))
	for i, oid := range paramOIDs {
		t, err := c.resolver.Resolve(ctx, oid)
		if err != nil {
			return nil, wrapErr(KindParse, "resolving parameter type", err)
		}
		paramTypes[i] = t
	}

	var columns []Column
	if !noData {
		columns = make([]Column, len(fields))
		for i, f := range fields {
			t, err := c.resolver.Resolve(ctx, f.TypeOID)
			if err != nil {
				return nil, wrapErr(KindParse, "resolving column type", err)
			}
			columns[i] = Column{
				Name:     f.Name,
				TableOID: f.TableOID,
				AttNum:   f.ColumnAttNum,
				Type:     t,
				Format:   f.FormatCode,
			}
		}
	}

	stmt := &Statement{name: name, paramTypes: paramTypes, columns: columns}
	registerStatementCleanup(c, stmt)
	return stmt, nil
}
