package pgconn

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// writeFrame writes one backend message: type byte + int32 length + body.
func writeFrame(conn net.Conn, typ byte, body []byte) error {
	buf := make([]byte, 1+4+len(body))
	buf[0] = typ
	binary.BigEndian.PutUint32(buf[1:5], uint32(4+len(body)))
	copy(buf[5:], body)
	_, err := conn.Write(buf)
	return err
}

func cstring(s string) []byte {
	return append([]byte(s), 0)
}

// readStartupMessage consumes the client's raw (untyped) StartupMessage body
// and returns it so callers that care (e.g. checking "user") can parse it.
func readStartupMessage(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:])) - 4
	rest := make([]byte, n)
	_, err := io.ReadFull(conn, rest)
	return rest, err
}

// trustHandshake consumes a StartupMessage and replies with the minimal
// trust-auth sequence (AuthenticationOk, BackendKeyData, ReadyForQuery).
func trustHandshake(conn net.Conn) error {
	if _, err := readStartupMessage(conn); err != nil {
		return err
	}
	if err := writeFrame(conn, protocol.MsgAuthentication, []byte{0, 0, 0, 0}); err != nil {
		return err
	}
	if err := writeFrame(conn, protocol.MsgBackendKeyData, []byte{0, 0, 0, 1, 0, 0, 0, 2}); err != nil {
		return err
	}
	return writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})
}

// listenAndServe starts a one-shot TCP listener that hands each accepted
// connection to serve in its own goroutine, returning the dialable address.
func listenAndServe(t *testing.T, serve func(net.Conn)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// readFrames drains typed frames off conn into ch until it errors or the
// stop channel fires; used by server goroutines that need to observe what
// the client writes (Parse/Bind/Execute/Sync/Close/Terminate) alongside
// sending canned replies.
func readFrames(conn net.Conn, ch chan<- protocol.Frame) {
	r := protocol.NewReader(conn)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			close(ch)
			return
		}
		ch <- f
	}
}

// dialTestClient performs a real Connect against a fresh listener whose
// fake backend runs trustHandshake followed by afterHandshake, returning a
// live *Client to exercise request lifecycles against.
func dialTestClient(t *testing.T, afterHandshake func(conn net.Conn)) *Client {
	t.Helper()
	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if err := trustHandshake(conn); err != nil {
			return
		}
		afterHandshake(conn)
	})

	client, err := newTestConnectClient(host, port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func newTestConnectClient(host string, port int) (*Client, error) {
	return Connect(context.Background(), ConnectParams{
		Hosts:   []string{host},
		Ports:   []int{port},
		User:    "tester",
		TLSMode: TLSDisable,
	})
}

// rowDescField builds one RowDescription field descriptor: name, then
// table oid/attnum/type oid/typlen/typmod/format code, all text format.
func rowDescField(name string, typeOID uint32) []byte {
	f := cstring(name)
	f = append(f, 0, 0, 0, 0) // table oid
	f = append(f, 0, 0)       // column attnum
	f = append(f, byte(typeOID>>24), byte(typeOID>>16), byte(typeOID>>8), byte(typeOID))
	f = append(f, 0xff, 0xff)             // typlen -1
	f = append(f, 0xff, 0xff, 0xff, 0xff) // typmod -1
	f = append(f, 0, 0)                   // format text
	return f
}

// rowDescBody assembles a full RowDescription body from field descriptors.
func rowDescBody(fields ...[]byte) []byte {
	body := []byte{0, byte(len(fields))}
	for _, f := range fields {
		body = append(body, f...)
	}
	return body
}

// dataRowBody assembles a DataRow body from column values; nil means SQL
// NULL.
func dataRowBody(cols ...[]byte) []byte {
	body := []byte{0, byte(len(cols))}
	lenBuf := make([]byte, 4)
	for _, c := range cols {
		if c == nil {
			body = append(body, 0xff, 0xff, 0xff, 0xff)
			continue
		}
		binary.BigEndian.PutUint32(lenBuf, uint32(len(c)))
		body = append(body, lenBuf...)
		body = append(body, c...)
	}
	return body
}
