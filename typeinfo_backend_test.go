package pgconn

import (
	"context"
	"net"
	"testing"

	"github.com/hexdbio/pgconn/internal/protocol"
	"github.com/hexdbio/pgconn/internal/typeinfo"
)

func TestDecodeTypeinfoRowParsesColumns(t *testing.T) {
	row := Row{
		[]byte("int4"), []byte("b"), []byte("0"), nil, []byte("0"), []byte("pg_catalog"), []byte("0"),
	}
	got, err := decodeTypeinfoRow(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := typeinfo.TypeinfoRow{
		Typname: "int4",
		Typtype: 'b',
		Nspname: "pg_catalog",
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDecodeTypeinfoRowWithRangeSubtype(t *testing.T) {
	row := Row{
		[]byte("int4range"), []byte("r"), []byte("0"), []byte("23"), []byte("0"), []byte("pg_catalog"), []byte("0"),
	}
	got, err := decodeTypeinfoRow(row)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.HasRngSubtype || got.RngSubtype != 23 {
		t.Fatalf("expected range subtype 23, got %+v", got)
	}
}

func TestDecodeTypeinfoRowTooFewColumns(t *testing.T) {
	_, err := decodeTypeinfoRow(Row{[]byte("int4")})
	if err == nil {
		t.Fatal("expected an error for a short catalog row")
	}
}

func TestParseOID(t *testing.T) {
	if n, err := parseOID(nil); err != nil || n != 0 {
		t.Fatalf("expected 0, nil for an empty column, got %d, %v", n, err)
	}
	if n, err := parseOID([]byte("1043")); err != nil || n != 1043 {
		t.Fatalf("expected 1043, nil, got %d, %v", n, err)
	}
	if _, err := parseOID([]byte("not-a-number")); err == nil {
		t.Fatal("expected an error parsing a non-numeric oid column")
	}
}

func TestIsSQLState(t *testing.T) {
	err := &Error{Kind: KindDB, DB: &PgError{Code: "42P01"}}
	if !isSQLState(err, typeinfo.SQLStateUndefinedTable) {
		t.Fatal("expected isSQLState to match on 42P01")
	}
	if isSQLState(err, typeinfo.SQLStateUndefinedColumn) {
		t.Fatal("expected isSQLState not to match a different SQLSTATE")
	}
	if isSQLState(ErrClosed, typeinfo.SQLStateUndefinedTable) {
		t.Fatal("expected isSQLState to reject a non-db error")
	}
}

// TestFetchTypeinfoFallsBackOnUndefinedTable drives the §4.4 version-fallback
// path: the primary pg_type/pg_range join fails with 42P01 (no pg_range on
// older servers), and ensureTypeinfoStatement retries with the no-range
// fallback query before resolving the row.
func TestFetchTypeinfoFallsBackOnUndefinedTable(t *testing.T) {
	client := dialTestClient(t, func(conn net.Conn) {
		r := protocol.NewReader(conn)

		for i := 0; i < 3; i++ { // Parse, Describe, Sync (primary query)
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
		fields := append([]byte{'S'}, cstring("ERROR")...)
		fields = append(fields, 'C')
		fields = append(fields, cstring(typeinfo.SQLStateUndefinedTable)...)
		fields = append(fields, 'M')
		fields = append(fields, cstring("relation \"pg_range\" does not exist")...)
		fields = append(fields, 0)
		_ = writeFrame(conn, protocol.MsgErrorResponse, fields)
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})

		for i := 0; i < 3; i++ { // Parse, Describe, Sync (fallback query)
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
		_ = writeFrame(conn, protocol.MsgParseComplete, nil)
		_ = writeFrame(conn, protocol.MsgParameterDescription, []byte{0, 1, 0, 0, 0, 26})
		_ = writeFrame(conn, protocol.MsgRowDescription, rowDescBody(
			rowDescField("typname", 25),
			rowDescField("typtype", 25),
			rowDescField("typelem", 26),
			rowDescField("rngsubtype", 26),
			rowDescField("typbasetype", 26),
			rowDescField("nspname", 25),
			rowDescField("typrelid", 26),
		))
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})

		for i := 0; i < 3; i++ { // Bind, Execute, Sync
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
		_ = writeFrame(conn, protocol.MsgBindComplete, nil)
		_ = writeFrame(conn, protocol.MsgDataRow, dataRowBody(
			[]byte("int4"), []byte("b"), []byte("0"), nil, []byte("0"), []byte("pg_catalog"), []byte("0"),
		))
		_ = writeFrame(conn, protocol.MsgCommandComplete, cstring("SELECT 1"))
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})
	})

	row, err := client.FetchTypeinfo(context.Background(), 23)
	if err != nil {
		t.Fatalf("fetch typeinfo: %v", err)
	}
	if row.Typname != "int4" || row.Typtype != 'b' {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !client.catalog.typeinfoFallback {
		t.Error("expected the fallback query to be recorded as active")
	}
}
