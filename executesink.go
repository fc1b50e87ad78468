package pgconn

import (
	"context"
	"sync"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// ExecuteSink is an optional bulk-execute helper (spec.md §9 Open Question,
// resolved in SPEC_FULL.md §4.2): each Send maps its params to a
// Bind+Execute+Sync request against stmt and pipelines it onto the
// connection without waiting for the response; Close drains every pending
// acknowledgement. A request-local db error from one Send does not poison
// the sink or the connection (§7) — it surfaces from Close, which returns
// the first error among the pending requests.
type ExecuteSink struct {
	client *Client
	stmt   *Statement

	mu      sync.Mutex
	pending []*request
	closed  bool
}

// ExecuteSink returns a bulk-execute sink bound to stmt.
func (c *Client) ExecuteSink(stmt *Statement) *ExecuteSink {
	return &ExecuteSink{client: c, stmt: stmt}
}

// Send encodes params, binds them to an anonymous portal, and enqueues the
// Bind+Execute+Sync request. It does not wait for the server's response.
func (s *ExecuteSink) Send(params []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	encoded, err := encodeParams(params)
	if err != nil {
		return err
	}
	payload := protocol.BindMessage("", s.stmt.name, allText(len(encoded)), encoded, allText(len(s.stmt.columns)))
	payload = append(payload, protocol.ExecuteMessage("", 0)...)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, s.client.conn.idleCounter)
	if err := s.client.conn.submit(req); err != nil {
		return err
	}
	s.pending = append(s.pending, req)
	return nil
}

// Close drains every pending Send's acknowledgement and returns the first
// error encountered, if any.
func (s *ExecuteSink) Close(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.closed = true
	s.mu.Unlock()

	var firstErr error
	for _, req := range pending {
		if err := s.drain(ctx, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ExecuteSink) drain(ctx context.Context, req *request) error {
	var dbError error
	for {
		f, err := s.client.recv(ctx, req)
		if err != nil {
			return err
		}
		switch f.Type {
		case protocol.MsgBindComplete, protocol.MsgCommandComplete, protocol.MsgDataRow, protocol.MsgEmptyQueryResponse:
			continue
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				dbError = wrapErr(KindParse, "error response", perr)
			} else {
				dbError = dbErr(ef)
			}
		case protocol.MsgReadyForQuery:
			return dbError
		default:
			return newErr(KindUnexpectedMessage, "unexpected message in execute sink")
		}
	}
}
