package protocol

import (
	"bytes"
	"testing"
)

func TestStartupMessageRoundTrip(t *testing.T) {
	msg := StartupMessage(map[string]string{"user": "alice", "database": "db1"})
	if len(msg) < 4 {
		t.Fatalf("message too short: %d bytes", len(msg))
	}
	// No type byte: first 4 bytes are the length, covering the whole message.
	length := int(msg[0])<<24 | int(msg[1])<<16 | int(msg[2])<<8 | int(msg[3])
	if length != len(msg) {
		t.Fatalf("length field %d does not match actual message length %d", length, len(msg))
	}
	if !bytes.Contains(msg, []byte("user\x00alice\x00")) {
		t.Errorf("expected encoded user param, got %q", msg)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	wire := frame(MsgQuery, []byte("SELECT 1\x00"))
	r := NewReader(bytes.NewReader(wire))
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != MsgQuery {
		t.Errorf("type = %q, want %q", f.Type, MsgQuery)
	}
	if string(f.Body) != "SELECT 1\x00" {
		t.Errorf("body = %q", f.Body)
	}
}

func TestParseRowDescriptionAndDataRow(t *testing.T) {
	// Build a RowDescription with one text column "x".
	body := []byte{0, 1}
	body = append(body, 'x', 0)
	body = append(body, 0, 0, 0, 0) // table oid
	body = append(body, 0, 0)       // attnum
	body = append(body, 0, 0, 0, 25) // text oid
	body = append(body, 0xFF, 0xFF)  // typlen -1
	body = append(body, 0, 0, 0, 0)  // typmod
	body = append(body, 0, 0)        // format text

	fields, err := ParseRowDescription(body)
	if err != nil {
		t.Fatalf("ParseRowDescription: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "x" || fields[0].TypeOID != 25 {
		t.Fatalf("unexpected fields: %+v", fields)
	}

	row := []byte{0, 1, 0, 0, 0, 3, '7', '7', '7'}
	cols, err := ParseDataRow(row)
	if err != nil {
		t.Fatalf("ParseDataRow: %v", err)
	}
	if len(cols) != 1 || string(cols[0]) != "777" {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestParseCommandCompleteTag(t *testing.T) {
	tag, err := ParseCommandComplete([]byte("INSERT 0 3\x00"))
	if err != nil {
		t.Fatalf("ParseCommandComplete: %v", err)
	}
	if tag != "INSERT 0 3" {
		t.Errorf("tag = %q", tag)
	}
}

func TestParseErrorFields(t *testing.T) {
	body := append([]byte{'S'}, []byte("ERROR\x00")...)
	body = append(body, 'C')
	body = append(body, []byte("42P01\x00")...)
	body = append(body, 0)

	fields, err := ParseErrorFields(body)
	if err != nil {
		t.Fatalf("ParseErrorFields: %v", err)
	}
	if len(fields) != 2 || fields[1].Value != "42P01" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}
