package pgconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hexdbio/pgconn/internal/protocol"
)

func TestConnectTrustAuth(t *testing.T) {
	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if err := trustHandshake(conn); err != nil {
			return
		}
		<-time.After(50 * time.Millisecond)
	})

	client, err := Connect(context.Background(), ConnectParams{
		Hosts:   []string{host},
		Ports:   []int{port},
		User:    "tester",
		TLSMode: TLSDisable,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if client.Closed() {
		t.Fatal("expected a freshly connected client to be open")
	}
}

func TestConnectCleartextPassword(t *testing.T) {
	var gotPassword string
	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if _, err := readStartupMessage(conn); err != nil {
			return
		}
		if err := writeFrame(conn, protocol.MsgAuthentication, []byte{0, 0, 0, 3}); err != nil {
			return
		}
		r := protocol.NewReader(conn)
		f, err := r.ReadFrame()
		if err != nil || f.Type != protocol.MsgPassword {
			return
		}
		gotPassword = string(f.Body[:len(f.Body)-1])
		_ = writeFrame(conn, protocol.MsgAuthentication, []byte{0, 0, 0, 0})
		_ = writeFrame(conn, protocol.MsgBackendKeyData, []byte{0, 0, 0, 1, 0, 0, 0, 2})
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})
		<-time.After(50 * time.Millisecond)
	})

	client, err := Connect(context.Background(), ConnectParams{
		Hosts:    []string{host},
		Ports:    []int{port},
		User:     "tester",
		Password: "s3cret",
		TLSMode:  TLSDisable,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if gotPassword != "s3cret" {
		t.Errorf("expected cleartext password %q, got %q", "s3cret", gotPassword)
	}
}

func TestConnectMD5Password(t *testing.T) {
	salt := []byte{1, 2, 3, 4}
	var gotHash string
	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if _, err := readStartupMessage(conn); err != nil {
			return
		}
		body := append([]byte{0, 0, 0, 5}, salt...)
		if err := writeFrame(conn, protocol.MsgAuthentication, body); err != nil {
			return
		}
		r := protocol.NewReader(conn)
		f, err := r.ReadFrame()
		if err != nil || f.Type != protocol.MsgPassword {
			return
		}
		gotHash = string(f.Body[:len(f.Body)-1])
		_ = writeFrame(conn, protocol.MsgAuthentication, []byte{0, 0, 0, 0})
		_ = writeFrame(conn, protocol.MsgBackendKeyData, []byte{0, 0, 0, 1, 0, 0, 0, 2})
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})
		<-time.After(50 * time.Millisecond)
	})

	client, err := Connect(context.Background(), ConnectParams{
		Hosts:    []string{host},
		Ports:    []int{port},
		User:     "tester",
		Password: "s3cret",
		TLSMode:  TLSDisable,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	want := computeMD5Password("tester", "s3cret", salt)
	if gotHash != want {
		t.Errorf("expected md5 hash %q, got %q", want, gotHash)
	}
}

func TestConnectHostFailover(t *testing.T) {
	// First host: a listener that is immediately closed, so dialing it fails
	// (connection refused) and the pipeline must fall through to the second.
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := deadLn.Addr().(*net.TCPAddr)
	deadLn.Close()

	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if err := trustHandshake(conn); err != nil {
			return
		}
		<-time.After(50 * time.Millisecond)
	})

	client, err := Connect(context.Background(), ConnectParams{
		Hosts:   []string{deadAddr.IP.String(), host},
		Ports:   []int{deadAddr.Port, port},
		User:    "tester",
		TLSMode: TLSDisable,
	})
	if err != nil {
		t.Fatalf("expected failover to the second host to succeed, got: %v", err)
	}
	defer client.Close()
}

func TestConnectAllHostsFail(t *testing.T) {
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := deadLn.Addr().(*net.TCPAddr)
	deadLn.Close()

	_, err = Connect(context.Background(), ConnectParams{
		Hosts:   []string{deadAddr.IP.String()},
		Ports:   []int{deadAddr.Port},
		User:    "tester",
		TLSMode: TLSDisable,
	})
	if err == nil {
		t.Fatal("expected connect to fail when every host is unreachable")
	}
	var pgErr *Error
	if !asError(err, &pgErr) || pgErr.Kind != KindConnect {
		t.Errorf("expected KindConnect, got %v", err)
	}
}

func TestConnectTargetReadWriteRejectsReadOnly(t *testing.T) {
	host, port := listenAndServe(t, func(conn net.Conn) {
		defer conn.Close()
		if err := trustHandshake(conn); err != nil {
			return
		}
		r := protocol.NewReader(conn)
		f, err := r.ReadFrame()
		if err != nil || f.Type != protocol.MsgQuery {
			return
		}
		field := cstring("transaction_read_only")
		field = append(field, 0, 0, 0, 0) // table oid
		field = append(field, 0, 0)       // column attnum
		field = append(field, 0, 0, 0, 25) // type oid (text)
		field = append(field, 0xff, 0xff)  // typlen -1 (variable)
		field = append(field, 0xff, 0xff, 0xff, 0xff) // typmod -1
		field = append(field, 0, 0)                   // format text
		rowDesc := append([]byte{0, 1}, field...)
		_ = writeFrame(conn, protocol.MsgRowDescription, rowDesc)
		_ = writeFrame(conn, protocol.MsgDataRow, []byte{0, 1, 0, 0, 0, 2, 'o', 'n'})
		_ = writeFrame(conn, protocol.MsgCommandComplete, cstring("SHOW"))
		_ = writeFrame(conn, protocol.MsgReadyForQuery, []byte{'I'})
		<-time.After(50 * time.Millisecond)
	})

	_, err := Connect(context.Background(), ConnectParams{
		Hosts:              []string{host},
		Ports:              []int{port},
		User:               "tester",
		TLSMode:            TLSDisable,
		TargetSessionAttrs: TargetReadWrite,
	})
	if err == nil {
		t.Fatal("expected connect to reject a read-only session")
	}
}

// asError unwraps err into an *Error, the way callers outside this package
// would via errors.As; defined locally to avoid importing errors just for
// this one assertion helper.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
