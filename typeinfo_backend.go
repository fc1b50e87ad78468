package pgconn

import (
	"context"
	"errors"
	"strconv"

	"github.com/hexdbio/pgconn/internal/typeinfo"
)

// oidTypeOID is the well-known OID of the built-in "oid" type, used as the
// parameter type for every catalog statement — each takes exactly one OID.
const oidTypeOID = 26

// Client implements typeinfo.Backend on top of its own Prepare/Query
// machinery: the six introspection statements (§3, §4.4) are themselves
// ordinary prepared statements, cached once per connection and reused.

// FetchTypeinfo implements typeinfo.Backend (§4.4 steps 3–4).
func (c *Client) FetchTypeinfo(ctx context.Context, oid uint32) (typeinfo.TypeinfoRow, error) {
	stmt, err := c.ensureTypeinfoStatement(ctx)
	if err != nil {
		return typeinfo.TypeinfoRow{}, err
	}
	rows, err := c.queryCatalogRows(ctx, stmt, oid)
	if err != nil {
		return typeinfo.TypeinfoRow{}, err
	}
	if len(rows) == 0 {
		return typeinfo.TypeinfoRow{}, newErr(KindDB, "type oid not found in pg_type")
	}
	return decodeTypeinfoRow(rows[0])
}

// FetchEnumLabels implements typeinfo.Backend (§4.4.1).
func (c *Client) FetchEnumLabels(ctx context.Context, oid uint32) ([]string, error) {
	stmt, err := c.ensureEnumStatement(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.queryCatalogRows(ctx, stmt, oid)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		labels = append(labels, string(row[0]))
	}
	return labels, nil
}

// FetchCompositeFields implements typeinfo.Backend (§4.4.2).
func (c *Client) FetchCompositeFields(ctx context.Context, relid uint32) ([]typeinfo.CompositeAttr, error) {
	stmt, err := c.ensureCompositeStatement(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.queryCatalogRows(ctx, stmt, relid)
	if err != nil {
		return nil, err
	}
	attrs := make([]typeinfo.CompositeAttr, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		oid, err := parseOID(row[1])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, typeinfo.CompositeAttr{Name: string(row[0]), TypeOID: oid})
	}
	return attrs, nil
}

// ensureTypeinfoStatement prepares the primary pg_type/pg_range join,
// falling back to the no-range query on SQLSTATE 42P01 (§4.4 step 3).
func (c *Client) ensureTypeinfoStatement(ctx context.Context) (*Statement, error) {
	c.catalog.mu.Lock()
	defer c.catalog.mu.Unlock()
	if c.catalog.typeinfoStmt != nil {
		return c.catalog.typeinfoStmt, nil
	}

	stmt, err := c.Prepare(ctx, typeinfo.TypeinfoQuery, []uint32{oidTypeOID})
	if isSQLState(err, typeinfo.SQLStateUndefinedTable) {
		stmt, err = c.Prepare(ctx, typeinfo.TypeinfoFallbackQuery, []uint32{oidTypeOID})
		if err == nil {
			c.catalog.typeinfoFallback = true
		}
	}
	if err != nil {
		return nil, err
	}
	c.catalog.typeinfoStmt = stmt
	return stmt, nil
}

// ensureEnumStatement prepares the sort-ordered pg_enum query, falling back
// to ORDER BY oid on SQLSTATE 42703 (§4.4.1).
func (c *Client) ensureEnumStatement(ctx context.Context) (*Statement, error) {
	c.catalog.mu.Lock()
	defer c.catalog.mu.Unlock()
	if c.catalog.enumStmt != nil {
		return c.catalog.enumStmt, nil
	}

	stmt, err := c.Prepare(ctx, typeinfo.EnumQuery, []uint32{oidTypeOID})
	if isSQLState(err, typeinfo.SQLStateUndefinedColumn) {
		stmt, err = c.Prepare(ctx, typeinfo.EnumFallbackQuery, []uint32{oidTypeOID})
		if err == nil {
			c.catalog.enumFallback = true
		}
	}
	if err != nil {
		return nil, err
	}
	c.catalog.enumStmt = stmt
	return stmt, nil
}

// ensureCompositeStatement prepares the pg_attribute query. §4.4.2 defines
// no version-fallback trigger for it.
func (c *Client) ensureCompositeStatement(ctx context.Context) (*Statement, error) {
	c.catalog.mu.Lock()
	defer c.catalog.mu.Unlock()
	if c.catalog.compositeStmt != nil {
		return c.catalog.compositeStmt, nil
	}

	stmt, err := c.Prepare(ctx, typeinfo.CompositeQuery, []uint32{oidTypeOID})
	if err != nil {
		return nil, err
	}
	c.catalog.compositeStmt = stmt
	return stmt, nil
}

// queryCatalogRows runs stmt with a single OID parameter and collects every
// row — catalog result sets are small enough that buffering beats the
// complexity of exposing Rows across the Backend interface.
func (c *Client) queryCatalogRows(ctx context.Context, stmt *Statement, oid uint32) ([]Row, error) {
	rows, err := c.Query(ctx, stmt, []any{oid})
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		out = append(out, rows.Values())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isSQLState reports whether err is a db error carrying the given SQLSTATE.
func isSQLState(err error, code string) bool {
	var pgErr *Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Kind == KindDB && pgErr.DB != nil && pgErr.DB.Code == code
}

// decodeTypeinfoRow maps one pg_type/pg_range row onto typeinfo.TypeinfoRow.
// Column order is typname, typtype, typelem, rngsubtype, typbasetype,
// nspname, typrelid (§6 catalog SQL) — the fallback query returns the same
// seven columns with rngsubtype forced to NULL.
func decodeTypeinfoRow(row Row) (typeinfo.TypeinfoRow, error) {
	if len(row) < 7 {
		return typeinfo.TypeinfoRow{}, newErr(KindParse, "typeinfo row has too few columns")
	}
	var typtype byte
	if len(row[1]) > 0 {
		typtype = row[1][0]
	}
	typelem, err := parseOID(row[2])
	if err != nil {
		return typeinfo.TypeinfoRow{}, err
	}
	typbasetype, err := parseOID(row[4])
	if err != nil {
		return typeinfo.TypeinfoRow{}, err
	}
	typrelid, err := parseOID(row[6])
	if err != nil {
		return typeinfo.TypeinfoRow{}, err
	}

	out := typeinfo.TypeinfoRow{
		Typname:     string(row[0]),
		Typtype:     typtype,
		Typelem:     typelem,
		Typbasetype: typbasetype,
		Nspname:     string(row[5]),
		Typrelid:    typrelid,
	}
	if row[3] != nil {
		sub, err := parseOID(row[3])
		if err != nil {
			return typeinfo.TypeinfoRow{}, err
		}
		out.HasRngSubtype = true
		out.RngSubtype = sub
	}
	return out, nil
}

func parseOID(b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return 0, wrapErr(KindParse, "parsing oid column", err)
	}
	return uint32(n), nil
}
