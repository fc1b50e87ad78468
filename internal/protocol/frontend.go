package protocol

import "encoding/binary"

// SSLRequestCode and CancelRequestCode are the magic protocol-version
// values that mark a startup-phase message as something other than a
// StartupMessage (§4.5, §6).
const (
	SSLRequestCode    uint32 = 80877103
	CancelRequestCode uint32 = 80877102
	ProtocolVersion3  uint32 = 3 << 16
)

// frame prefixes body with a 4-byte big-endian length (itself included)
// and, if typ is non-zero, a leading type byte. Startup-phase messages
// (Startup, SSLRequest, CancelRequest) have no type byte.
func frame(typ byte, body []byte) []byte {
	n := 4 + len(body)
	out := make([]byte, 0, n+1)
	if typ != 0 {
		out = append(out, typ)
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(n))
	out = append(out, lenBuf...)
	out = append(out, body...)
	return out
}

// StartupMessage builds the initial frontend message: protocol version
// followed by null-terminated key/value pairs and a final null byte.
// params should include at least "user"; "database", "application_name",
// "replication", and "client_encoding" are set by the caller as needed.
func StartupMessage(params map[string]string) []byte {
	body := make([]byte, 0, 64)
	verBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(verBuf, ProtocolVersion3)
	body = append(body, verBuf...)
	for k, v := range params {
		body = append(body, k...)
		body = append(body, 0)
		body = append(body, v...)
		body = append(body, 0)
	}
	body = append(body, 0)
	return frame(0, body)
}

// SSLRequestMessage builds the fixed 8-byte SSLRequest.
func SSLRequestMessage() []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, SSLRequestCode)
	return frame(0, body)
}

// CancelRequestMessage builds the fixed 16-byte CancelRequest for the
// given backend process id and secret key (§4.2 cancel_query).
func CancelRequestMessage(pid, secret uint32) []byte {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], CancelRequestCode)
	binary.BigEndian.PutUint32(body[4:8], pid)
	binary.BigEndian.PutUint32(body[8:12], secret)
	return frame(0, body)
}

// PasswordMessage builds a cleartext or pre-hashed (MD5) password response.
func PasswordMessage(password string) []byte {
	body := append([]byte(password), 0)
	return frame(MsgPassword, body)
}

// SASLInitialResponseMessage builds the first SASL frontend message,
// naming the chosen mechanism and carrying its initial client data.
func SASLInitialResponseMessage(mechanism string, data []byte) []byte {
	body := make([]byte, 0, len(mechanism)+5+len(data))
	body = append(body, mechanism...)
	body = append(body, 0)
	lenBuf := make([]byte, 4)
	if data == nil {
		binary.BigEndian.PutUint32(lenBuf, 0xFFFFFFFF) // -1: no initial data
	} else {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	}
	body = append(body, lenBuf...)
	body = append(body, data...)
	return frame(MsgPassword, body)
}

// SASLResponseMessage builds a subsequent SASL frontend message (the
// client-final-message in SCRAM).
func SASLResponseMessage(data []byte) []byte {
	return frame(MsgPassword, data)
}

// ParseMessage builds a Parse message: statement name (empty for the
// unnamed statement), query text, and explicit parameter type OIDs
// (0 lets the backend infer the type).
func ParseMessage(name, query string, paramOIDs []uint32) []byte {
	body := make([]byte, 0, len(name)+len(query)+2+2+4*len(paramOIDs))
	body = append(body, name...)
	body = append(body, 0)
	body = append(body, query...)
	body = append(body, 0)
	nBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(nBuf, uint16(len(paramOIDs)))
	body = append(body, nBuf...)
	oidBuf := make([]byte, 4)
	for _, oid := range paramOIDs {
		binary.BigEndian.PutUint32(oidBuf, oid)
		body = append(body, oidBuf...)
	}
	return frame(MsgParse, body)
}

// BindMessage builds a Bind message binding statement to portal with the
// given parameter values (already wire-encoded by the caller) and format
// codes. A single format code applies to all params/results if len==1.
func BindMessage(portal, statement string, paramFormats []int16, params [][]byte, resultFormats []int16) []byte {
	body := make([]byte, 0, 64)
	body = append(body, portal...)
	body = append(body, 0)
	body = append(body, statement...)
	body = append(body, 0)

	body = appendInt16Slice(body, paramFormats)

	nBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(nBuf, uint16(len(params)))
	body = append(body, nBuf...)
	lenBuf := make([]byte, 4)
	for _, p := range params {
		if p == nil {
			binary.BigEndian.PutUint32(lenBuf, 0xFFFFFFFF) // NULL
			body = append(body, lenBuf...)
			continue
		}
		binary.BigEndian.PutUint32(lenBuf, uint32(len(p)))
		body = append(body, lenBuf...)
		body = append(body, p...)
	}

	body = appendInt16Slice(body, resultFormats)
	return frame(MsgBind, body)
}

func appendInt16Slice(body []byte, vals []int16) []byte {
	nBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(nBuf, uint16(len(vals)))
	body = append(body, nBuf...)
	vBuf := make([]byte, 2)
	for _, v := range vals {
		binary.BigEndian.PutUint16(vBuf, uint16(v))
		body = append(body, vBuf...)
	}
	return body
}

// Describe target kinds.
const (
	DescribeStatement byte = 'S'
	DescribePortal    byte = 'P'
)

// DescribeMessage builds a Describe message for a statement or portal.
func DescribeMessage(kind byte, name string) []byte {
	body := make([]byte, 0, len(name)+2)
	body = append(body, kind)
	body = append(body, name...)
	body = append(body, 0)
	return frame(MsgDescribe, body)
}

// ExecuteMessage builds an Execute message. maxRows of 0 requests all rows.
func ExecuteMessage(portal string, maxRows int32) []byte {
	body := make([]byte, 0, len(portal)+5)
	body = append(body, portal...)
	body = append(body, 0)
	nBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(nBuf, uint32(maxRows))
	body = append(body, nBuf...)
	return frame(MsgExecute, body)
}

// Close target kinds, shared with Describe.
const (
	CloseStatement byte = 'S'
	ClosePortal    byte = 'P'
)

// CloseMessage builds a Close message for a statement or portal.
func CloseMessage(kind byte, name string) []byte {
	body := make([]byte, 0, len(name)+2)
	body = append(body, kind)
	body = append(body, name...)
	body = append(body, 0)
	return frame(MsgClose, body)
}

// SyncMessage builds the Sync synchronization boundary message.
func SyncMessage() []byte {
	return frame(MsgSync, nil)
}

// QueryMessage builds a simple-query Query message.
func QueryMessage(sql string) []byte {
	body := append([]byte(sql), 0)
	return frame(MsgQuery, body)
}

// TerminateMessage builds the Terminate message.
func TerminateMessage() []byte {
	return frame(MsgTerminate, nil)
}

// CopyDataMessage wraps a chunk of COPY payload bytes.
func CopyDataMessage(data []byte) []byte {
	return frame(MsgCopyData, data)
}

// CopyDoneMessage signals the end of a copy-in stream.
func CopyDoneMessage() []byte {
	return frame(MsgCopyDone, nil)
}

// CopyFailMessage aborts a copy-in stream with a client-supplied reason.
func CopyFailMessage(reason string) []byte {
	body := append([]byte(reason), 0)
	return frame(MsgCopyFail, body)
}
