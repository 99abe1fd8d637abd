package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/headers"
)

func TestAcceptValueKnownVector(t *testing.T) {
	// RFC 6455 §1.3 worked example.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptValue("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestBuildUpgradeHeadersAndValidateRoundTrip(t *testing.T) {
	h := headers.New()
	key := BuildUpgradeHeaders(h, ExtensionOffer{PermessageDeflate: true})

	up, _ := h.Get("Upgrade")
	assert.Equal(t, "websocket", up)
	conn, _ := h.Get("Connection")
	assert.Equal(t, "Upgrade", conn)
	ver, _ := h.Get("Sec-WebSocket-Version")
	assert.Equal(t, "13", ver)

	respHeader := headers.New()
	respHeader.Set("Upgrade", "websocket")
	respHeader.Set("Connection", "Upgrade")
	respHeader.Set("Sec-WebSocket-Accept", AcceptValue(key))
	respHeader.Set("Sec-WebSocket-Extensions", "permessage-deflate; client_no_context_takeover; server_no_context_takeover")

	ext, err := ValidateHandshakeResponse(StatusSwitchingProtocols, respHeader, key)
	require.NoError(t, err)
	assert.True(t, ext.PermessageDeflate)
	assert.True(t, ext.ClientNoContextTakeover)
	assert.True(t, ext.ServerNoContextTakeover)
}

func TestValidateHandshakeResponseRejectsAcceptMismatch(t *testing.T) {
	respHeader := headers.New()
	respHeader.Set("Upgrade", "websocket")
	respHeader.Set("Connection", "Upgrade")
	respHeader.Set("Sec-WebSocket-Accept", "wrong-value")
	_, err := ValidateHandshakeResponse(StatusSwitchingProtocols, respHeader, "some-key")
	assert.Error(t, err)
}

func TestParseExtensionsRejectsUnknownParameter(t *testing.T) {
	_, err := parseExtensions("permessage-deflate; bogus_param")
	assert.Error(t, err)
}

func TestParseExtensionsRejectsOutOfRangeWindowBits(t *testing.T) {
	_, err := parseExtensions("permessage-deflate; client_max_window_bits=20")
	assert.Error(t, err)
	_, err = parseExtensions("permessage-deflate; server_max_window_bits=7")
	assert.Error(t, err)
}

func TestParseExtensionsRejectsUnknownExtension(t *testing.T) {
	_, err := parseExtensions("permessage-bogus")
	assert.Error(t, err)
}
