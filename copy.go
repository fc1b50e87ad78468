package pgconn

import (
	"context"
	"io"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// copyChunkSize bounds how much of source is read per CopyData frame.
const copyChunkSize = 64 * 1024

// CopyIn runs a COPY ... FROM STDIN statement, streaming source as CopyData
// frames in bounded chunks as they're read — never buffering the whole
// source in memory — and sending CopyDone on a clean EOF or CopyFail if
// source errors or ctx is cancelled mid-stream (§4.2 copy_in). Returns the
// row count from CommandComplete.
func (c *Client) CopyIn(ctx context.Context, stmt *Statement, params []any, source io.Reader) (int64, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return 0, err
	}
	payload := protocol.BindMessage("", stmt.name, allText(len(encoded)), encoded, nil)
	payload = append(payload, protocol.ExecuteMessage("", 0)...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return 0, err
	}

	if err := c.streamCopyData(ctx, req, source); err != nil {
		return 0, err
	}

	var count int64
	for {
		f, err := c.recv(ctx, req)
		if err != nil {
			return 0, err
		}
		switch f.Type {
		case protocol.MsgBindComplete, protocol.MsgCopyInResponse:
			continue
		case protocol.MsgCommandComplete:
			tag, perr := protocol.ParseCommandComplete(f.Body)
			if perr != nil {
				return 0, wrapErr(KindParse, "command complete", perr)
			}
			count = rowCount(tag)
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				return 0, wrapErr(KindParse, "error response", perr)
			}
			if derr := c.drainToReady(ctx, req); derr != nil {
				return 0, derr
			}
			return 0, dbErr(ef)
		case protocol.MsgReadyForQuery:
			return count, nil
		default:
			return 0, newErr(KindUnexpectedMessage, "unexpected message during copy in")
		}
	}
}

// streamCopyData reads source in bounded chunks, writing each as a
// continuation CopyData frame riding on req's still-open round trip rather
// than buffering the whole source in memory, and checks ctx between reads
// so a cancellation is noticed without waiting on a blocking Read. It
// finishes with CopyDone on a clean EOF, or CopyFail if source errors or
// ctx is cancelled first, always followed by Sync.
func (c *Client) streamCopyData(ctx context.Context, req *request, source io.Reader) error {
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			fail := append(protocol.CopyFailMessage(err.Error()), protocol.SyncMessage()...)
			return c.conn.submit(continuationChunk(fail))
		}

		n, rerr := source.Read(buf)
		if n > 0 {
			if err := c.conn.submit(continuationChunk(protocol.CopyDataMessage(buf[:n]))); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			done := append(protocol.CopyDoneMessage(), protocol.SyncMessage()...)
			return c.conn.submit(continuationChunk(done))
		}
		if rerr != nil {
			fail := append(protocol.CopyFailMessage(rerr.Error()), protocol.SyncMessage()...)
			return c.conn.submit(continuationChunk(fail))
		}
	}
}

// CopyOutStream yields raw CopyData payloads from a COPY ... TO STDOUT
// statement (§4.2 copy_out).
type CopyOutStream struct {
	ctx    context.Context
	client *Client
	req    *request

	cur  []byte
	err  error
	done bool
}

// CopyOut runs a COPY ... TO STDOUT statement and returns a stream of raw
// row payloads.
func (c *Client) CopyOut(ctx context.Context, stmt *Statement, params []any) (*CopyOutStream, error) {
	encoded, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	payload := protocol.BindMessage("", stmt.name, allText(len(encoded)), encoded, nil)
	payload = append(payload, protocol.ExecuteMessage("", 0)...)
	payload = append(payload, protocol.SyncMessage()...)

	req := newRequest(payload, c.conn.idleCounter)
	if err := c.conn.submit(req); err != nil {
		return nil, err
	}
	return &CopyOutStream{ctx: ctx, client: c, req: req}, nil
}

// Next advances to the next CopyData payload, returning false once
// CopyDone/CommandComplete/ReadyForQuery ends the stream or an error occurs.
func (s *CopyOutStream) Next() bool {
	if s.done {
		return false
	}
	for {
		f, err := s.client.recv(s.ctx, s.req)
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		switch f.Type {
		case protocol.MsgBindComplete, protocol.MsgCopyOutResponse, protocol.MsgCopyDone, protocol.MsgCommandComplete:
			continue
		case protocol.MsgCopyData:
			s.cur = f.Body
			return true
		case protocol.MsgErrorResponse:
			ef, perr := protocol.ParseErrorFields(f.Body)
			if perr != nil {
				s.err = wrapErr(KindParse, "error response", perr)
			} else {
				s.err = dbErr(ef)
			}
			_ = s.client.drainToReady(s.ctx, s.req)
			s.done = true
			return false
		case protocol.MsgReadyForQuery:
			s.done = true
			return false
		default:
			s.err = newErr(KindUnexpectedMessage, "unexpected message during copy out")
			s.done = true
			return false
		}
	}
}

// Data returns the payload most recently produced by Next.
func (s *CopyOutStream) Data() []byte { return s.cur }

// Err returns the error that ended the stream, or nil on clean completion.
func (s *CopyOutStream) Err() error { return s.err }
