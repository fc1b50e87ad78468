package protocol

import (
	"encoding/binary"
	"fmt"
)

// Authentication sub-message type codes carried in the first 4 bytes of an
// Authentication ('R') frame's body (§4.5 step 4).
const (
	AuthOK                uint32 = 0
	AuthCleartextPassword uint32 = 3
	AuthMD5Password       uint32 = 5
	AuthSASL              uint32 = 10
	AuthSASLContinue      uint32 = 11
	AuthSASLFinal         uint32 = 12
)

// ParseAuthentication splits an Authentication frame body into its
// sub-message code and trailing payload (salt bytes, SASL mechanism list,
// or SASL server message, depending on the code).
func ParseAuthentication(body []byte) (code uint32, rest []byte, err error) {
	if len(body) < 4 {
		return 0, nil, fmt.Errorf("authentication message too short")
	}
	return binary.BigEndian.Uint32(body[:4]), body[4:], nil
}

// ParseParameterStatus splits a ParameterStatus body into its key/value.
func ParseParameterStatus(body []byte) (key, value string, err error) {
	k, v, ok := splitCString(body)
	if !ok {
		return "", "", fmt.Errorf("malformed ParameterStatus body")
	}
	val, _, ok := splitCString(v)
	if !ok {
		return "", "", fmt.Errorf("malformed ParameterStatus body")
	}
	return k, val, nil
}

// ParseBackendKeyData extracts the backend process id and cancellation
// secret key.
func ParseBackendKeyData(body []byte) (pid, secret uint32, err error) {
	if len(body) < 8 {
		return 0, 0, fmt.Errorf("BackendKeyData too short")
	}
	return binary.BigEndian.Uint32(body[0:4]), binary.BigEndian.Uint32(body[4:8]), nil
}

// ReadyForQuery transaction status bytes.
const (
	TxIdle       byte = 'I'
	TxInBlock    byte = 'T'
	TxFailed     byte = 'E'
)

// ParseReadyForQuery extracts the transaction status byte.
func ParseReadyForQuery(body []byte) (status byte, err error) {
	if len(body) < 1 {
		return 0, fmt.Errorf("ReadyForQuery too short")
	}
	return body[0], nil
}

// Field describes one result column, as reported by RowDescription.
type Field struct {
	Name         string
	TableOID     uint32
	ColumnAttNum int16
	TypeOID      uint32
	TypeLen      int16
	TypeMod      int32
	FormatCode   int16
}

// ParseRowDescription decodes a RowDescription body into its field list.
func ParseRowDescription(body []byte) ([]Field, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("RowDescription too short")
	}
	n := int(binary.BigEndian.Uint16(body[:2]))
	fields := make([]Field, 0, n)
	pos := 2
	for i := 0; i < n; i++ {
		name, rest, ok := splitCString(body[pos:])
		if !ok {
			return nil, fmt.Errorf("RowDescription: truncated field name")
		}
		pos = len(body) - len(rest)
		if len(body)-pos < 18 {
			return nil, fmt.Errorf("RowDescription: truncated field descriptor")
		}
		f := Field{
			Name:         name,
			TableOID:     binary.BigEndian.Uint32(body[pos : pos+4]),
			ColumnAttNum: int16(binary.BigEndian.Uint16(body[pos+4 : pos+6])),
			TypeOID:      binary.BigEndian.Uint32(body[pos+6 : pos+10]),
			TypeLen:      int16(binary.BigEndian.Uint16(body[pos+10 : pos+12])),
			TypeMod:      int32(binary.BigEndian.Uint32(body[pos+12 : pos+16])),
			FormatCode:   int16(binary.BigEndian.Uint16(body[pos+16 : pos+18])),
		}
		pos += 18
		fields = append(fields, f)
	}
	return fields, nil
}

// ParseParameterDescription decodes a ParameterDescription body into its
// ordered list of parameter type OIDs.
func ParseParameterDescription(body []byte) ([]uint32, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("ParameterDescription too short")
	}
	n := int(binary.BigEndian.Uint16(body[:2]))
	if len(body) < 2+4*n {
		return nil, fmt.Errorf("ParameterDescription truncated")
	}
	oids := make([]uint32, n)
	for i := 0; i < n; i++ {
		oids[i] = binary.BigEndian.Uint32(body[2+4*i : 6+4*i])
	}
	return oids, nil
}

// ParseDataRow decodes a DataRow body into its column values. A nil
// element denotes SQL NULL.
func ParseDataRow(body []byte) ([][]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("DataRow too short")
	}
	n := int(binary.BigEndian.Uint16(body[:2]))
	cols := make([][]byte, n)
	pos := 2
	for i := 0; i < n; i++ {
		if pos+4 > len(body) {
			return nil, fmt.Errorf("DataRow truncated at column %d", i)
		}
		l := int32(binary.BigEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if l < 0 {
			cols[i] = nil
			continue
		}
		if pos+int(l) > len(body) {
			return nil, fmt.Errorf("DataRow truncated column value %d", i)
		}
		cols[i] = body[pos : pos+int(l)]
		pos += int(l)
	}
	return cols, nil
}

// ParseCommandComplete returns the raw command tag (e.g. "INSERT 0 3").
func ParseCommandComplete(body []byte) (tag string, err error) {
	s, _, ok := splitCString(body)
	if !ok {
		return "", fmt.Errorf("malformed CommandComplete body")
	}
	return s, nil
}

// ParseNotificationResponse decodes an async NOTIFY delivery.
func ParseNotificationResponse(body []byte) (pid uint32, channel, payload string, err error) {
	if len(body) < 4 {
		return 0, "", "", fmt.Errorf("NotificationResponse too short")
	}
	pid = binary.BigEndian.Uint32(body[:4])
	ch, rest, ok := splitCString(body[4:])
	if !ok {
		return 0, "", "", fmt.Errorf("malformed NotificationResponse")
	}
	pl, _, ok := splitCString(rest)
	if !ok {
		return 0, "", "", fmt.Errorf("malformed NotificationResponse")
	}
	return pid, ch, pl, nil
}

// CopyFormat describes the overall and per-column format of a COPY stream.
type CopyFormat struct {
	OverallFormat int8
	ColumnFormats []int16
}

// ParseCopyResponse decodes a CopyInResponse or CopyOutResponse body
// (identical shape for both).
func ParseCopyResponse(body []byte) (CopyFormat, error) {
	if len(body) < 3 {
		return CopyFormat{}, fmt.Errorf("copy response too short")
	}
	overall := int8(body[0])
	n := int(binary.BigEndian.Uint16(body[1:3]))
	if len(body) < 3+2*n {
		return CopyFormat{}, fmt.Errorf("copy response truncated")
	}
	cols := make([]int16, n)
	for i := 0; i < n; i++ {
		cols[i] = int16(binary.BigEndian.Uint16(body[3+2*i : 5+2*i]))
	}
	return CopyFormat{OverallFormat: overall, ColumnFormats: cols}, nil
}

// ErrorField is one SQLSTATE-style field code from an ErrorResponse or
// NoticeResponse (§7, §8 end-to-end scenario grounding).
type ErrorField struct {
	Code  byte
	Value string
}

// ParseErrorFields decodes the repeated (code byte, value string) pairs
// shared by ErrorResponse and NoticeResponse bodies, terminated by a zero
// byte.
func ParseErrorFields(body []byte) ([]ErrorField, error) {
	var fields []ErrorField
	pos := 0
	for pos < len(body) {
		code := body[pos]
		if code == 0 {
			return fields, nil
		}
		pos++
		val, rest, ok := splitCString(body[pos:])
		if !ok {
			return nil, fmt.Errorf("malformed error field %q", code)
		}
		fields = append(fields, ErrorField{Code: code, Value: val})
		pos = len(body) - len(rest)
	}
	return fields, nil
}

// splitCString splits off the first NUL-terminated string in data,
// returning it (without the NUL) and the remainder after the NUL.
func splitCString(data []byte) (s string, rest []byte, ok bool) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), data[i+1:], true
		}
	}
	return "", nil, false
}
