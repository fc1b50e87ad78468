package pgconn

import (
	"fmt"

	"github.com/hexdbio/pgconn/internal/protocol"
)

// Kind classifies an Error by recovery semantics (§7): request-local kinds
// leave the connection usable; terminal kinds mean the connection task has
// torn down and every other in-flight caller will also observe Closed.
type Kind int

const (
	KindClosed Kind = iota
	KindIO
	KindTLS
	KindDB
	KindParse
	KindUnexpectedMessage
	KindToSQL
	KindFromSQL
	KindColumn
	KindConfig
	KindConnect
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindClosed:
		return "closed"
	case KindIO:
		return "io"
	case KindTLS:
		return "tls"
	case KindDB:
		return "db"
	case KindParse:
		return "parse"
	case KindUnexpectedMessage:
		return "unexpected_message"
	case KindToSQL:
		return "to_sql"
	case KindFromSQL:
		return "from_sql"
	case KindColumn:
		return "column"
	case KindConfig:
		return "config"
	case KindConnect:
		return "connect"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// PgError is the full SQLSTATE field set carried by ErrorResponse (§7,
// §8). Field names and set follow jackc/pgx's pgconn.PgError, the closest
// idiomatic-Go precedent for this taxonomy in the example corpus.
type PgError struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         int32
	InternalPosition int32
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             int32
	Routine          string
}

func (pe *PgError) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", pe.Severity, pe.Message, pe.Code)
}

// errorFieldCodes from the ErrorResponse/NoticeResponse wire format.
const (
	fieldSeverity         = 'S'
	fieldCode             = 'C'
	fieldMessage          = 'M'
	fieldDetail           = 'D'
	fieldHint             = 'H'
	fieldPosition         = 'P'
	fieldInternalPosition = 'p'
	fieldInternalQuery    = 'q'
	fieldWhere            = 'W'
	fieldSchemaName       = 's'
	fieldTableName        = 't'
	fieldColumnName       = 'c'
	fieldDataTypeName     = 'd'
	fieldConstraintName   = 'n'
	fieldFile             = 'F'
	fieldLine             = 'L'
	fieldRoutine          = 'R'
)

// pgErrorFromFields builds a PgError from the decoded ErrorResponse fields.
func pgErrorFromFields(fields []protocol.ErrorField) *PgError {
	pe := &PgError{}
	for _, f := range fields {
		switch f.Code {
		case fieldSeverity:
			pe.Severity = f.Value
		case fieldCode:
			pe.Code = f.Value
		case fieldMessage:
			pe.Message = f.Value
		case fieldDetail:
			pe.Detail = f.Value
		case fieldHint:
			pe.Hint = f.Value
		case fieldPosition:
			pe.Position = parseInt32(f.Value)
		case fieldInternalPosition:
			pe.InternalPosition = parseInt32(f.Value)
		case fieldInternalQuery:
			pe.InternalQuery = f.Value
		case fieldWhere:
			pe.Where = f.Value
		case fieldSchemaName:
			pe.SchemaName = f.Value
		case fieldTableName:
			pe.TableName = f.Value
		case fieldColumnName:
			pe.ColumnName = f.Value
		case fieldDataTypeName:
			pe.DataTypeName = f.Value
		case fieldConstraintName:
			pe.ConstraintName = f.Value
		case fieldFile:
			pe.File = f.Value
		case fieldLine:
			pe.Line = parseInt32(f.Value)
		case fieldRoutine:
			pe.Routine = f.Value
		}
	}
	return pe
}

func parseInt32(s string) int32 {
	var n int32
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int32(r-'0')
	}
	return n
}

// Error is the error type returned by every pgconn operation (§7).
type Error struct {
	Kind  Kind
	Msg   string
	DB    *PgError // set when Kind == KindDB
	Cause error
}

func (e *Error) Error() string {
	if e.DB != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.DB.Error())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func dbErr(fields []protocol.ErrorField) *Error {
	return &Error{Kind: KindDB, Msg: "server error", DB: pgErrorFromFields(fields)}
}

// ErrClosed is returned by any in-flight operation whose connection has
// gone away (EOF, I/O error, or explicit close) before or while the
// request was handled.
var ErrClosed = newErr(KindClosed, "connection closed")

// connectErr wraps a connect-pipeline failure (§4.5, §7 Kind.connect).
func connectErr(cause error) *Error {
	return &Error{Kind: KindConnect, Msg: "connect failed", Cause: cause}
}
