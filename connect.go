package pgconn

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hexdbio/pgconn/internal/protocol"
	"github.com/hexdbio/pgconn/internal/scram"
)

// TLSMode selects how the connect pipeline negotiates TLS (§4.5).
type TLSMode int

const (
	TLSDisable TLSMode = iota
	TLSPrefer
	TLSRequire
)

// ChannelBindingMode selects how SCRAM channel binding is offered (§6
// "Channel binding").
type ChannelBindingMode int

const (
	ChannelBindingPrefer ChannelBindingMode = iota
	ChannelBindingDisable
	ChannelBindingRequire
)

// TargetSessionAttrs gates whether the connect pipeline verifies the
// session accepts writes (§4.5 step 6).
type TargetSessionAttrs int

const (
	TargetAny TargetSessionAttrs = iota
	TargetReadWrite
)

const defaultQueueDepth = 64

// ConnectParams is the fully-resolved input to Connect (§4.5). Parsing a
// DSN/connection string into this shape is out of core (spec.md §1); see
// the config package for one such parser (env vars + optional profile
// file).
type ConnectParams struct {
	Hosts []string
	Ports []int // length 1 (applies to every host) or len(Hosts)

	User     string
	Password string
	Database string

	ApplicationName string

	TLSMode        TLSMode
	TLSConfig      *tls.Config
	ChannelBinding ChannelBindingMode

	TargetSessionAttrs TargetSessionAttrs

	ConnectTimeout time.Duration
	KeepAlive      time.Duration

	// RuntimeParams are sent as additional StartupMessage parameters
	// (e.g. "options" for PGOPTIONS) alongside user/database/client_encoding.
	RuntimeParams map[string]string

	QueueDepth int
	Logger     *slog.Logger
}

// Connect runs the connect pipeline (§4.5) against each configured host in
// turn, surfacing only the last error on exhaustion (§4.5 host failover,
// §8 host-failover invariant).
func Connect(ctx context.Context, p ConnectParams) (*Client, error) {
	if len(p.Hosts) == 0 {
		return nil, connectErr(newErr(KindConfig, "no hosts configured"))
	}
	ports := p.Ports
	if len(ports) == 0 {
		ports = []int{5432}
	}
	if len(ports) != 1 && len(ports) != len(p.Hosts) {
		return nil, connectErr(newErr(KindConfig, "ports must have length 1 or match hosts"))
	}

	var lastErr error
	for i, host := range p.Hosts {
		port := ports[0]
		if len(ports) == len(p.Hosts) {
			port = ports[i]
		}
		client, err := connectOne(ctx, p, host, port)
		if err == nil {
			return client, nil
		}
		lastErr = err
	}
	return nil, connectErr(lastErr)
}

func connectOne(ctx context.Context, p ConnectParams, host string, port int) (*Client, error) {
	raw, err := dialSocket(ctx, host, port, p.ConnectTimeout, p.KeepAlive)
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", host, port, err)
	}

	tr, cbData, err := negotiateTLS(ctx, raw, p.TLSMode, p.TLSConfig)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls negotiation with %s:%d: %w", host, port, err)
	}

	startupParams := map[string]string{
		"user":            p.User,
		"client_encoding": "UTF8",
	}
	if p.Database != "" {
		startupParams["database"] = p.Database
	}
	if p.ApplicationName != "" {
		startupParams["application_name"] = p.ApplicationName
	}
	for k, v := range p.RuntimeParams {
		startupParams[k] = v
	}
	if _, err := tr.Write(protocol.StartupMessage(startupParams)); err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("sending startup message: %w", err)
	}

	reader := protocol.NewReader(tr)

	if err := authenticate(ctx, tr, reader, p.User, p.Password, p.ChannelBinding, cbData); err != nil {
		_ = tr.Close()
		return nil, err
	}

	paramStatus, backendPID, backendKey, err := readUntilReady(reader)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}

	c := newConn(tr, reader, queueDepthOr(p.QueueDepth), p.Logger)
	for k, v := range paramStatus {
		c.setParam(k, v)
	}
	c.mu.Lock()
	c.backendPID, c.backendKey = backendPID, backendKey
	c.mu.Unlock()

	client := newClient(c, p.Logger)
	client.cancelHost, client.cancelPort = host, port

	if p.TargetSessionAttrs == TargetReadWrite {
		if err := checkReadWrite(ctx, client); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

func queueDepthOr(n int) int {
	if n <= 0 {
		return defaultQueueDepth
	}
	return n
}

// dialSocket resolves and connects host:port, or a Unix socket when host
// contains a path separator — mirroring the teacher's net.Dialer-with-
// KeepAlive dial style (pool.go's dial), generalized to accept either
// transport.
func dialSocket(ctx context.Context, host string, port int, timeout, keepAlive time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout, KeepAlive: keepAlive}
	if strings.Contains(host, "/") {
		return d.DialContext(ctx, "unix", host)
	}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// negotiateTLS implements §4.5 step 2: send SSLRequest, read one response
// byte, upgrade or fall back per mode. It returns the resulting transport
// and, when upgraded, the tls-server-end-point channel-binding data (§6
// TLS boundary, RFC 5929) for SCRAM-SHA-256-PLUS.
func negotiateTLS(ctx context.Context, raw net.Conn, mode TLSMode, cfg *tls.Config) (transport, []byte, error) {
	if mode == TLSDisable {
		return raw, nil, nil
	}
	if _, err := raw.Write(protocol.SSLRequestMessage()); err != nil {
		return nil, nil, fmt.Errorf("sending SSLRequest: %w", err)
	}
	var resp [1]byte
	if _, err := io.ReadFull(raw, resp[:]); err != nil {
		return nil, nil, fmt.Errorf("reading SSLRequest response: %w", err)
	}
	switch resp[0] {
	case 'N':
		if mode == TLSRequire {
			return nil, nil, fmt.Errorf("server does not support TLS and mode is Require")
		}
		return raw, nil, nil
	case 'S':
		if cfg == nil {
			cfg = &tls.Config{}
		}
		tlsConn := tls.Client(raw, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("TLS handshake: %w", err)
		}
		return tlsConn, channelBindingData(tlsConn), nil
	default:
		return nil, nil, fmt.Errorf("unexpected SSLRequest response byte %q", resp[0])
	}
}

// channelBindingData computes the tls-server-end-point channel-binding
// value (RFC 5929 §4.1): a hash of the server's end-entity certificate.
// SHA-256 is used unconditionally, matching the common case where the
// certificate's signature algorithm hashes with SHA-256 or a weaker
// algorithm (RFC 5929 upgrades MD5/SHA-1 signatures to SHA-256); it is not
// re-derived per the certificate's actual signature hash.
func channelBindingData(tlsConn *tls.Conn) []byte {
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	sum := sha256.Sum256(state.PeerCertificates[0].Raw)
	return sum[:]
}

// authenticate implements §4.5 step 4, handling AuthenticationOk,
// CleartextPassword, MD5Password (the teacher's exact
// md5(md5(pass+user)+salt) formula from pool.go's computeMD5Password), and
// SASL/SCRAM-SHA-256(-PLUS).
func authenticate(ctx context.Context, tr transport, reader *protocol.Reader, user, password string, cbMode ChannelBindingMode, cbData []byte) error {
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			return fmt.Errorf("reading authentication message: %w", err)
		}
		if f.Type == protocol.MsgErrorResponse {
			ef, _ := protocol.ParseErrorFields(f.Body)
			return dbErr(ef)
		}
		if f.Type != protocol.MsgAuthentication {
			return newErr(KindUnexpectedMessage, "expected authentication message")
		}
		code, rest, err := protocol.ParseAuthentication(f.Body)
		if err != nil {
			return wrapErr(KindParse, "authentication message", err)
		}
		switch code {
		case protocol.AuthOK:
			return nil
		case protocol.AuthCleartextPassword:
			if _, err := tr.Write(protocol.PasswordMessage(password)); err != nil {
				return wrapErr(KindIO, "sending cleartext password", err)
			}
		case protocol.AuthMD5Password:
			if len(rest) < 4 {
				return newErr(KindParse, "MD5 authentication message too short")
			}
			hashed := computeMD5Password(user, password, rest[:4])
			if _, err := tr.Write(protocol.PasswordMessage(hashed)); err != nil {
				return wrapErr(KindIO, "sending MD5 password", err)
			}
		case protocol.AuthSASL:
			if err := authenticateSASL(reader, tr, user, password, rest, cbMode, cbData); err != nil {
				return wrapErr(KindAuthentication, "SCRAM authentication", err)
			}
			// The SASL exchange itself consumes the final AuthenticationOk.
			return nil
		default:
			return newErr(KindAuthentication, fmt.Sprintf("unsupported authentication method %d", code))
		}
	}
}

// computeMD5Password is PostgreSQL's MD5 password hash: "md5" +
// md5(md5(password+user)+salt) — the teacher's exact formula
// (pool.go:computeMD5Password).
func computeMD5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}

// authenticateSASL drives the SCRAM-SHA-256(-PLUS) exchange to completion.
func authenticateSASL(reader *protocol.Reader, tr transport, user, password string, mechList []byte, cbMode ChannelBindingMode, cbData []byte) error {
	offered := splitMechanisms(mechList)

	var bindData []byte
	if cbMode != ChannelBindingDisable {
		bindData = cbData
	}
	if cbMode == ChannelBindingRequire && len(bindData) == 0 {
		return fmt.Errorf("channel binding required but no TLS channel-binding data available")
	}

	mechanism, err := scram.SelectMechanism(offered, bindData)
	if err != nil {
		return err
	}
	client, err := scram.NewClient(mechanism, user, password, bindData)
	if err != nil {
		return err
	}

	if _, err := tr.Write(protocol.SASLInitialResponseMessage(mechanism, client.InitialResponse())); err != nil {
		return fmt.Errorf("sending SASL initial response: %w", err)
	}

	f, err := reader.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading SASL continue: %w", err)
	}
	if f.Type == protocol.MsgErrorResponse {
		ef, _ := protocol.ParseErrorFields(f.Body)
		return dbErr(ef)
	}
	code, rest, err := protocol.ParseAuthentication(f.Body)
	if err != nil || code != protocol.AuthSASLContinue {
		return fmt.Errorf("expected AuthenticationSASLContinue")
	}
	clientFinal, err := client.HandleServerFirst(rest)
	if err != nil {
		return err
	}

	if _, err := tr.Write(protocol.SASLResponseMessage(clientFinal)); err != nil {
		return fmt.Errorf("sending SASL response: %w", err)
	}

	f, err = reader.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading SASL final: %w", err)
	}
	if f.Type == protocol.MsgErrorResponse {
		ef, _ := protocol.ParseErrorFields(f.Body)
		return dbErr(ef)
	}
	code, rest, err = protocol.ParseAuthentication(f.Body)
	if err != nil || code != protocol.AuthSASLFinal {
		return fmt.Errorf("expected AuthenticationSASLFinal")
	}
	if err := client.VerifyServerFinal(rest); err != nil {
		return err
	}

	f, err = reader.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading post-SASL message: %w", err)
	}
	if f.Type == protocol.MsgErrorResponse {
		ef, _ := protocol.ParseErrorFields(f.Body)
		return dbErr(ef)
	}
	code, _, err = protocol.ParseAuthentication(f.Body)
	if err != nil || code != protocol.AuthOK {
		return fmt.Errorf("expected AuthenticationOk after SCRAM exchange")
	}
	return nil
}

func splitMechanisms(data []byte) []string {
	var mechs []string
	for _, part := range strings.Split(string(data), "\x00") {
		if part != "" {
			mechs = append(mechs, part)
		}
	}
	return mechs
}

// readUntilReady accumulates ParameterStatus/BackendKeyData until
// ReadyForQuery (§4.5 step 5).
func readUntilReady(reader *protocol.Reader) (map[string]string, uint32, uint32, error) {
	params := make(map[string]string)
	var pid, secret uint32
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			return nil, 0, 0, fmt.Errorf("reading connection setup: %w", err)
		}
		switch f.Type {
		case protocol.MsgParameterStatus:
			if k, v, err := protocol.ParseParameterStatus(f.Body); err == nil {
				params[k] = v
			}
		case protocol.MsgBackendKeyData:
			if p, s, err := protocol.ParseBackendKeyData(f.Body); err == nil {
				pid, secret = p, s
			}
		case protocol.MsgErrorResponse:
			ef, _ := protocol.ParseErrorFields(f.Body)
			return nil, 0, 0, dbErr(ef)
		case protocol.MsgReadyForQuery:
			return params, pid, secret, nil
		}
	}
}

// checkReadWrite implements §4.5 step 6: run SHOW transaction_read_only via
// simple_query and reject the connection if the server answers "on".
func checkReadWrite(ctx context.Context, c *Client) error {
	rows := c.SimpleQuery(ctx, "SHOW transaction_read_only")
	if !rows.NextResultSet() {
		if err := rows.Err(); err != nil {
			return connectErr(err)
		}
		return connectErr(newErr(KindConnect, "no response to read-write check"))
	}
	if rows.NextRow() {
		vals := rows.Values()
		if len(vals) > 0 && string(vals[0]) == "on" {
			return connectErr(newErr(KindConnect, "database does not allow writes"))
		}
	}
	if err := rows.Err(); err != nil {
		return connectErr(err)
	}
	return nil
}
