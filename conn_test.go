package pgconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// newTestConn builds a conn directly over a net.Pipe, bypassing the
// connect handshake entirely — conn.go has no knowledge of startup/auth,
// so tests exercising its FIFO routing and lifecycle don't need it either.
func newTestConn(t *testing.T) (*conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := newConn(client, nil, 8, nil)
	t.Cleanup(func() { server.Close() })
	return c, server
}

func TestConnRoutesResponsesFIFO(t *testing.T) {
	c, server := newTestConn(t)

	req1 := newRequest(protocol.QueryMessage("SELECT 1"), c.idleCounter)
	req2 := newRequest(protocol.QueryMessage("SELECT 2"), c.idleCounter)
	if err := c.submit(req1); err != nil {
		t.Fatalf("submit req1: %v", err)
	}
	if err := c.submit(req2); err != nil {
		t.Fatalf("submit req2: %v", err)
	}

	serverReader := protocol.NewReader(server)

	// Drain both queued requests off the wire before replying, matching the
	// task's drainQueue-then-flush behavior.
	for i := 0; i < 2; i++ {
		if _, err := serverReader.ReadFrame(); err != nil {
			t.Fatalf("reading request %d: %v", i, err)
		}
	}

	// Reply to the first in-flight request with a tagged CommandComplete,
	// then ReadyForQuery to pop it.
	if err := writeFrame(server, protocol.MsgCommandComplete, cstring("SELECT 1")); err != nil {
		t.Fatalf("writing reply 1: %v", err)
	}
	if err := writeFrame(server, protocol.MsgReadyForQuery, []byte{'I'}); err != nil {
		t.Fatalf("writing ready 1: %v", err)
	}

	msg1 := <-req1.resp
	if msg1.err != nil || msg1.frame.Type != protocol.MsgCommandComplete {
		t.Fatalf("expected req1 to see CommandComplete, got %+v", msg1)
	}
	if _, ok := <-req1.resp; ok {
		t.Fatal("expected req1's response channel to be closed after ReadyForQuery")
	}

	select {
	case msg2 := <-req2.resp:
		t.Fatalf("req2 should not see a response before its own ReadyForQuery, got %+v", msg2)
	case <-time.After(20 * time.Millisecond):
	}

	if err := writeFrame(server, protocol.MsgCommandComplete, cstring("SELECT 2")); err != nil {
		t.Fatalf("writing reply 2: %v", err)
	}
	if err := writeFrame(server, protocol.MsgReadyForQuery, []byte{'I'}); err != nil {
		t.Fatalf("writing ready 2: %v", err)
	}

	msg2 := <-req2.resp
	if msg2.err != nil || msg2.frame.Type != protocol.MsgCommandComplete {
		t.Fatalf("expected req2 to see CommandComplete, got %+v", msg2)
	}
}

func TestConnCleanShutdown(t *testing.T) {
	c, server := newTestConn(t)
	go func() {
		r := protocol.NewReader(server)
		for {
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
	}()

	c.shutdown()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected conn to finish a clean shutdown with nothing in flight")
	}
	if err := c.Err(); err != ErrClosed {
		t.Errorf("expected ErrClosed after a clean shutdown, got %v", err)
	}
}

func TestConnShutdownIsIdempotent(t *testing.T) {
	c, server := newTestConn(t)
	go func() {
		r := protocol.NewReader(server)
		for {
			if _, err := r.ReadFrame(); err != nil {
				return
			}
		}
	}()
	c.shutdown()
	c.shutdown() // must not panic
	<-c.Done()
}

func TestConnFailAbortsInFlightRequests(t *testing.T) {
	c, server := newTestConn(t)

	req := newRequest(protocol.QueryMessage("SELECT 1"), c.idleCounter)
	if err := c.submit(req); err != nil {
		t.Fatalf("submit: %v", err)
	}

	serverReader := protocol.NewReader(server)
	if _, err := serverReader.ReadFrame(); err != nil {
		t.Fatalf("reading request: %v", err)
	}

	// Close the server side: the client's read loop observes EOF, which
	// must fail the connection and abort every in-flight request.
	server.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected conn to tear down after a read error")
	}

	msg, ok := <-req.resp
	if !ok {
		t.Fatal("expected the aborted request's channel to deliver a terminal error before closing")
	}
	if msg.err == nil {
		t.Fatal("expected a non-nil terminal error")
	}

	if err := c.Err(); err == nil {
		t.Fatal("expected conn.Err() to report the terminal error")
	}
}

func TestClientRecvHonorsContextCancellation(t *testing.T) {
	c, _ := newTestConn(t)
	client := newClient(c, nil)

	req := newRequest(protocol.QueryMessage("SELECT 1"), c.idleCounter)
	// Deliberately not submitted to conn.reqCh: recv must still respect ctx.

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.recv(ctx, req)
	if err == nil {
		t.Fatal("expected recv to return an error once ctx is done")
	}
}
