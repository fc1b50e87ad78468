// Package scram implements the client side of the SASL SCRAM-SHA-256 and
// SCRAM-SHA-256-PLUS exchange used by PostgreSQL authentication (§4.5 step
// 4). Unlike a socket-driven implementation, Client exposes one method per
// exchange step so the connection task can interleave it with other
// protocol message delivery instead of blocking a dedicated goroutine on
// raw reads — the state lives in the Client value, not on a call stack.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism names as advertised by AuthenticationSASL.
const (
	MechanismSHA256     = "SCRAM-SHA-256"
	MechanismSHA256Plus = "SCRAM-SHA-256-PLUS"
)

// gs2CBName is the channel-binding name PostgreSQL expects for
// SCRAM-SHA-256-PLUS (RFC 5929 tls-server-end-point).
const gs2CBName = "tls-server-end-point"

// SelectMechanism picks SCRAM-SHA-256-PLUS when the server offers it and
// channel-binding data is available (TLS in use), else SCRAM-SHA-256. An
// error is returned if the server offers neither, or offers only
// SCRAM-SHA-256-PLUS while no channel-binding data is available.
func SelectMechanism(offered []string, channelBindingData []byte) (string, error) {
	hasPlus := contains(offered, MechanismSHA256Plus)
	hasPlain := contains(offered, MechanismSHA256)
	if hasPlus && channelBindingData != nil {
		return MechanismSHA256Plus, nil
	}
	if hasPlain {
		return MechanismSHA256, nil
	}
	if hasPlus {
		// Server only offers the channel-bound variant but we have no TLS
		// channel to bind to.
		return "", fmt.Errorf("server requires %s but no TLS channel binding is available", MechanismSHA256Plus)
	}
	return "", fmt.Errorf("server does not support SCRAM-SHA-256, offered: %v", offered)
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// Client drives one SCRAM authentication exchange.
type Client struct {
	username  string
	password  string
	mechanism string
	cbData    []byte // channel-binding data as passed to NewClient; used only by the -PLUS variant

	clientNonce     string
	gs2Header       string
	clientFirstBare string

	saltedPassword []byte
	authMessage    string
}

// NewClient constructs a Client for the given mechanism (from
// SelectMechanism) and, for the -PLUS variant, the TLS channel-binding
// data supplied by the TLS adapter (§6).
func NewClient(mechanism, username, password string, channelBindingData []byte) (*Client, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generating client nonce: %w", err)
	}
	c := &Client{
		username:    username,
		password:    password,
		mechanism:   mechanism,
		cbData:      channelBindingData,
		clientNonce: nonce,
	}
	switch mechanism {
	case MechanismSHA256Plus:
		c.gs2Header = "p=" + gs2CBName + ",,"
	case MechanismSHA256:
		c.gs2Header = "n,,"
	default:
		return nil, fmt.Errorf("unsupported SCRAM mechanism %q", mechanism)
	}
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeUsername(username), nonce)
	return c, nil
}

func generateNonce() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// InitialResponse returns the client-first-message to send as the
// SASLInitialResponse payload.
func (c *Client) InitialResponse() []byte {
	return []byte(c.gs2Header + c.clientFirstBare)
}

// HandleServerFirst consumes the server-first-message and returns the
// client-final-message to send as the SASLResponse payload.
func (c *Client) HandleServerFirst(serverFirst []byte) ([]byte, error) {
	nonce, salt, iterations, err := parseServerFirst(string(serverFirst))
	if err != nil {
		return nil, fmt.Errorf("parsing server-first-message: %w", err)
	}
	if !strings.HasPrefix(nonce, c.clientNonce) {
		return nil, fmt.Errorf("server nonce does not start with client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	cbind := c.gs2Header
	if c.mechanism == MechanismSHA256Plus {
		cbind += string(c.cbData)
	}
	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(cbind))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, nonce)

	c.authMessage = c.clientFirstBare + "," + string(serverFirst) + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// VerifyServerFinal checks the server's signature in the
// AuthenticationSASLFinal payload. A mismatch means the exchange must be
// treated as an authentication failure.
func (c *Client) VerifyServerFinal(serverFinal []byte) error {
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(c.authMessage))
	expected := "v=" + base64.StdEncoding.EncodeToString(expectedSig)
	if string(serverFinal) != expected {
		return fmt.Errorf("server SCRAM signature mismatch")
	}
	return nil
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

// escapeUsername replaces "=" with "=3D" and "," with "=2C" per RFC 5802.
func escapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
