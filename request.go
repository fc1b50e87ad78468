package pgconn

import (
	"strconv"
	"sync/atomic"

	"github.com/hexdbio/pgconn/internal/idle"
	"github.com/hexdbio/pgconn/internal/protocol"
)

// backendMsg is one decoded message handed from the connection task to a
// request's response channel, or a terminal signal (err set, frame zero
// value) when the connection is going away.
type backendMsg struct {
	frame protocol.Frame
	err   error
}

// request is one outbound unit of work: a pre-encoded byte sequence to
// write, and the channel its responses are routed to in FIFO order. resp is
// nil for fire-and-forget requests (close-on-drop) — the
// connection task still drains their responses, it just has nowhere to
// send them.
//
// continuation marks a request that writes onto the wire without starting
// a new logical round trip — used to stream CopyData frames mid-copy, so
// they ride along on the still-head request's eventual ReadyForQuery
// instead of each waiting on one of their own.
type request struct {
	payload      []byte
	resp         chan backendMsg
	guard        *idle.Guard
	continuation bool
}

// newRequest builds a request carrying a response channel sized to hold a
// handful of buffered messages before the state machine catches up —
// mirroring the bounded-channel backpressure spec.md §4.1/§5 requires
// without risking an unbounded backlog if a caller stalls mid-read.
func newRequest(payload []byte, counter *idle.Counter) *request {
	return &request{
		payload: payload,
		resp:    make(chan backendMsg, 16),
		guard:   counter.Acquire(),
	}
}

// fireAndForget builds a request with no response channel, used for
// best-effort Close messages issued from a drop site that must never block.
// Unlike a continuation chunk, its payload ends with its own Sync and is a
// complete round trip.
func fireAndForget(payload []byte) *request {
	return &request{payload: payload}
}

// continuationChunk builds a request that writes payload onto the wire
// without occupying its own inflight slot — it rides along behind whatever
// request is currently at the head of the queue. Used by CopyIn to stream
// CopyData frames without buffering the whole source in memory first.
func continuationChunk(payload []byte) *request {
	return &request{payload: payload, continuation: true}
}

var nameCounter atomic.Uint64

// nextStatementName returns the next process-wide statement name, "s<n>".
func nextStatementName() string {
	return "s" + strconv.FormatUint(nameCounter.Add(1), 10)
}

// nextPortalName returns the next process-wide portal name, "p<n>".
func nextPortalName() string {
	return "p" + strconv.FormatUint(nameCounter.Add(1), 10)
}
