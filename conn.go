package pgconn

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hexdbio/pgconn/internal/idle"
	"github.com/hexdbio/pgconn/internal/protocol"
)

// transport is the byte-stream contract the connection task runs over — a
// raw net.Conn or a TLS-wrapped one satisfy it directly. Tests substitute a
// net.Pipe or io.Pipe pair, the same layer the teacher fakes in
// pool_test.go and proxy/pg_relay_test.go rather than mocking the protocol
// itself.
type transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// noticeHandler and notificationHandler are out-of-core sinks (spec.md §4.1
// step 1) — when nil, the corresponding backend message is logged and
// dropped rather than silently discarded, matching the teacher's habit of
// always emitting a structured log line for anything it doesn't otherwise
// act on.
type noticeHandler func(fields []protocol.ErrorField)
type notificationHandler func(pid uint32, channel, payload string)

// conn is the connection task of spec.md §4.1: a single goroutine that owns
// the transport, routes inbound backend messages to the head in-flight
// request in FIFO order, and writes outbound request payloads. It is never
// touched directly by callers — Client is the handle they use, communicating
// with conn only through reqCh.
type conn struct {
	tr     transport
	reader *protocol.Reader
	writer *protocol.Writer

	reqCh chan *request

	inbound chan protocol.Frame
	readErr chan error

	inflight []*request

	idleCounter *idle.Counter

	mu         sync.RWMutex
	params     map[string]string
	backendPID uint32
	backendKey uint32

	onNotice       noticeHandler
	onNotification notificationHandler

	closed  atomic.Bool
	termErr error
	done    chan struct{}

	log *slog.Logger
}

// newConn builds a conn over tr and starts its reader and task goroutines.
// reader must be the same *protocol.Reader the caller used (if any) to read
// the startup/auth handshake off tr — constructing a second buffered reader
// over the same transport would strand any bytes the first one already
// buffered. queueDepth bounds the request queue (spec.md §4.1 backpressure).
func newConn(tr transport, reader *protocol.Reader, queueDepth int, log *slog.Logger) *conn {
	if log == nil {
		log = slog.Default()
	}
	if reader == nil {
		reader = protocol.NewReader(tr)
	}
	c := &conn{
		tr:          tr,
		reader:      reader,
		writer:      protocol.NewWriter(tr),
		reqCh:       make(chan *request, queueDepth),
		inbound:     make(chan protocol.Frame, 64),
		readErr:     make(chan error, 1),
		idleCounter: &idle.Counter{},
		params:      make(map[string]string),
		done:        make(chan struct{}),
		log:         log,
	}
	go c.readLoop()
	go c.run()
	return c
}

func (c *conn) readLoop() {
	for {
		f, err := c.reader.ReadFrame()
		if err != nil {
			c.readErr <- err
			close(c.inbound)
			return
		}
		c.inbound <- f
	}
}

// run is the cooperative loop of spec.md §4.1: poll inbound, poll the
// request queue, flush the write side.
func (c *conn) run() {
	reqClosed := false
	for {
		select {
		case f, ok := <-c.inbound:
			if !ok {
				err := <-c.readErr
				c.fail(wrapErr(KindIO, "reading from connection", err))
				return
			}
			c.handleFrame(f)
			if reqClosed && len(c.inflight) == 0 {
				c.closeClean()
				return
			}

		case r, ok := <-requestChanOrNil(c.reqCh, reqClosed):
			if !ok {
				reqClosed = true
				if len(c.inflight) == 0 && !c.writer.Buffered() {
					c.closeClean()
					return
				}
				continue
			}
			c.enqueue(r)
			c.drainQueue(&reqClosed)
			if err := c.writer.Flush(); err != nil {
				c.fail(wrapErr(KindIO, "writing to connection", err))
				return
			}
		}
	}
}

// requestChanOrNil returns nil once the queue has been observed closed, so
// the select stops re-firing the closed-channel case every iteration.
func requestChanOrNil(ch chan *request, closed bool) chan *request {
	if closed {
		return nil
	}
	return ch
}

// drainQueue opportunistically pulls any requests already queued without
// blocking, so a burst of concurrent enqueues is written in one flush
// instead of one syscall per request.
func (c *conn) drainQueue(reqClosed *bool) {
	for {
		select {
		case r, ok := <-c.reqCh:
			if !ok {
				*reqClosed = true
				return
			}
			c.enqueue(r)
		default:
			return
		}
	}
}

func (c *conn) enqueue(r *request) {
	if !r.continuation {
		c.inflight = append(c.inflight, r)
	}
	c.writer.Queue(r.payload)
}

func (c *conn) handleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.MsgParameterStatus:
		if key, val, err := protocol.ParseParameterStatus(f.Body); err == nil {
			c.setParam(key, val)
		}
		return
	case protocol.MsgBackendKeyData:
		if pid, secret, err := protocol.ParseBackendKeyData(f.Body); err == nil {
			c.mu.Lock()
			c.backendPID, c.backendKey = pid, secret
			c.mu.Unlock()
		}
		return
	case protocol.MsgNoticeResponse:
		fields, err := protocol.ParseErrorFields(f.Body)
		if err == nil && c.onNotice != nil {
			c.onNotice(fields)
		} else if err == nil {
			c.log.Debug("notice response", "fields", fields)
		}
		return
	case protocol.MsgNotificationResponse:
		pid, channel, payload, err := protocol.ParseNotificationResponse(f.Body)
		if err == nil && c.onNotification != nil {
			c.onNotification(pid, channel, payload)
		} else if err == nil {
			c.log.Debug("notification", "pid", pid, "channel", channel)
		}
		return
	}
	c.routeToHead(f)
}

// routeToHead implements spec.md §4.1 step 1's "otherwise" branch:
// everything not handled above goes to the head in-flight request;
// ReadyForQuery closes and pops it.
func (c *conn) routeToHead(f protocol.Frame) {
	if len(c.inflight) == 0 {
		c.fail(newErr(KindUnexpectedMessage, "backend message with no in-flight request"))
		return
	}
	head := c.inflight[0]
	if head.resp != nil {
		head.resp <- backendMsg{frame: f}
	}
	if f.Type == protocol.MsgReadyForQuery {
		if head.resp != nil {
			close(head.resp)
		}
		head.guard.Release()
		c.inflight = c.inflight[1:]
	}
}

// fail terminates the connection task: every in-flight and still-queued
// request observes ErrClosed (KindClosed), while the underlying cause is
// kept as termErr for Client.Err.
func (c *conn) fail(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.termErr = err

	for _, r := range c.inflight {
		c.abort(r, ErrClosed)
	}
	c.inflight = nil

drain:
	for {
		select {
		case r, ok := <-c.reqCh:
			if !ok {
				break drain
			}
			c.abort(r, ErrClosed)
		default:
			break drain
		}
	}

	_ = c.tr.Close()
	close(c.done)
}

func (c *conn) abort(r *request, err error) {
	if r.resp != nil {
		r.resp <- backendMsg{err: err}
		close(r.resp)
	}
	r.guard.Release()
}

// closeClean implements spec.md §4.1's clean-shutdown trigger: the request
// queue is closed, nothing is in flight, and nothing is buffered.
func (c *conn) closeClean() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.termErr = ErrClosed
	_ = c.tr.Close()
	close(c.done)
}

func (c *conn) setParam(key, val string) {
	c.mu.Lock()
	c.params[key] = val
	c.mu.Unlock()
}

// Param returns the last ParameterStatus value observed for key.
func (c *conn) Param(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.params[key]
	return v, ok
}

// BackendKey returns the process id and secret key for CancelRequest.
func (c *conn) BackendKey() (pid, secret uint32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backendPID, c.backendKey
}

// submit enqueues r, observing backpressure if the bounded queue is full,
// or returning ErrClosed if the connection has already terminated.
func (c *conn) submit(r *request) error {
	select {
	case c.reqCh <- r:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Err returns the terminal error once the connection task has exited, or
// nil while it is still running.
func (c *conn) Err() error {
	select {
	case <-c.done:
		return c.termErr
	default:
		return nil
	}
}

// Done reports the channel closed when the connection task exits.
func (c *conn) Done() <-chan struct{} {
	return c.done
}

// shutdown closes the request queue, signalling the task to drain and
// perform a clean shutdown once all in-flight work completes.
func (c *conn) shutdown() {
	defer func() {
		// Closing an already-closed channel panics; the task may have
		// already failed and torn everything down concurrently.
		recover()
	}()
	close(c.reqCh)
}
