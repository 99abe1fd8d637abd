package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/corehttp/corehttp/headers"
)

// acceptGUID is the fixed RFC 6455 magic string combined with the client's
// Sec-WebSocket-Key to compute Sec-WebSocket-Accept.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func fillRandom(b []byte) {
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// fall back to a fixed, deterministic byte pattern.
		for i := range b {
			b[i] = byte(i * 31)
		}
	}
}

// NewClientKey generates a fresh Sec-WebSocket-Key value (16 random bytes,
// base64-encoded).
func NewClientKey() string {
	var raw [16]byte
	fillRandom(raw[:])
	return base64.StdEncoding.EncodeToString(raw[:])
}

// AcceptValue computes the Sec-WebSocket-Accept value for clientKey.
func AcceptValue(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ExtensionOffer is the permessage-deflate offer this client makes, per
// RFC 7692. The framework negotiates it transparently; callers never see
// Sec-WebSocket-Extensions on the request (§4.7).
type ExtensionOffer struct {
	PermessageDeflate bool
}

// BuildUpgradeHeaders fills h with the handshake headers for an outgoing
// WebSocket upgrade request and returns the Sec-WebSocket-Key it generated
// (callers must verify the echoed Sec-WebSocket-Accept against it).
func BuildUpgradeHeaders(h *headers.Headers, offer ExtensionOffer) string {
	key := NewClientKey()
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set("Sec-WebSocket-Key", key)
	h.Set("Sec-WebSocket-Version", "13")
	if offer.PermessageDeflate {
		// Always request no_context_takeover on both directions: it keeps
		// the codec stateless across messages, which this client's deflate
		// wrapper relies on (see permessageDeflate).
		h.Set("Sec-WebSocket-Extensions", "permessage-deflate; client_no_context_takeover; server_no_context_takeover")
	}
	return key
}

// Extensions describes the permessage-deflate parameters negotiated by the
// server's response, or the zero value if the server declined.
type Extensions struct {
	PermessageDeflate   bool
	ClientNoContextTakeover bool
	ServerNoContextTakeover bool
	ClientMaxWindowBits int // 0 means unspecified (defaults to 15)
	ServerMaxWindowBits int
}

// StatusSwitchingProtocols is the status code a successful upgrade
// response must carry.
const StatusSwitchingProtocols = 101

// ValidateHandshakeResponse checks a 101 response against RFC 6455/7692
// and returns the negotiated extensions. h is the response's header list.
func ValidateHandshakeResponse(statusCode int, h *headers.Headers, clientKey string) (Extensions, error) {
	if statusCode != StatusSwitchingProtocols {
		return Extensions{}, fmt.Errorf("websocket: expected 101 Switching Protocols, got %d", statusCode)
	}
	upgrade, _ := h.Get("Upgrade")
	if !strings.EqualFold(upgrade, "websocket") {
		return Extensions{}, fmt.Errorf("websocket: missing Upgrade: websocket")
	}
	conn, _ := h.Get("Connection")
	if !headerContainsToken(conn, "upgrade") {
		return Extensions{}, fmt.Errorf("websocket: missing Connection: Upgrade")
	}
	want := AcceptValue(clientKey)
	got, _ := h.Get("Sec-WebSocket-Accept")
	if got != want {
		return Extensions{}, fmt.Errorf("websocket: Sec-WebSocket-Accept mismatch")
	}
	extHeader, _ := h.Get("Sec-WebSocket-Extensions")
	return parseExtensions(extHeader)
}

func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// parseExtensions rejects any permessage-deflate parameter it does not
// recognize, and any max-window-bits value outside [8,15] (§4.7).
func parseExtensions(value string) (Extensions, error) {
	if value == "" {
		return Extensions{}, nil
	}
	var ext Extensions
	for _, offer := range strings.Split(value, ",") {
		params := strings.Split(offer, ";")
		name := strings.TrimSpace(params[0])
		if name != "permessage-deflate" {
			return Extensions{}, fmt.Errorf("websocket: unknown extension %q", name)
		}
		ext.PermessageDeflate = true
		for _, p := range params[1:] {
			p = strings.TrimSpace(p)
			key, val, _ := strings.Cut(p, "=")
			key = strings.TrimSpace(key)
			val = strings.Trim(strings.TrimSpace(val), `"`)
			switch key {
			case "client_no_context_takeover":
				ext.ClientNoContextTakeover = true
			case "server_no_context_takeover":
				ext.ServerNoContextTakeover = true
			case "client_max_window_bits":
				bits, err := parseWindowBits(val)
				if err != nil {
					return Extensions{}, err
				}
				ext.ClientMaxWindowBits = bits
			case "server_max_window_bits":
				bits, err := parseWindowBits(val)
				if err != nil {
					return Extensions{}, err
				}
				ext.ServerMaxWindowBits = bits
			default:
				return Extensions{}, fmt.Errorf("websocket: unknown permessage-deflate parameter %q", key)
			}
		}
	}
	return ext, nil
}

func parseWindowBits(val string) (int, error) {
	if val == "" {
		return 15, nil
	}
	var bits int
	if _, err := fmt.Sscanf(val, "%d", &bits); err != nil {
		return 0, fmt.Errorf("websocket: malformed window-bits value %q", val)
	}
	if bits < 8 || bits > 15 {
		return 0, fmt.Errorf("websocket: window-bits %d out of range [8,15]", bits)
	}
	return bits, nil
}
