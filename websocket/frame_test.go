package websocket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHelloFrameMatchesSeedBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.rng = func(b []byte) { copy(b, []byte{0x60, 0xb4, 0x20, 0xbb}) }
	require.NoError(t, w.WriteFrame(Frame{Fin: true, Opcode: OpText, Payload: []byte("Hello")}))

	want := []byte{0x81, 0x85, 0x60, 0xb4, 0x20, 0xbb, 0x28, 0xd1, 0x4c, 0xd7, 0x0f}
	assert.Equal(t, want, buf.Bytes())
}

func TestServerDecodesClientHelloBytes(t *testing.T) {
	wire := []byte{0x81, 0x85, 0x60, 0xb4, 0x20, 0xbb, 0x28, 0xd1, 0x4c, 0xd7, 0x0f}
	r := NewReader(bytes.NewReader(wire), true)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, OpText, f.Opcode)
	assert.Equal(t, "Hello", string(f.Payload))
}

func TestFrameRoundTripUnmasked(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	require.NoError(t, w.WriteFrame(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("payload bytes")}))
	r := NewReader(&buf, false)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, OpBinary, f.Opcode)
	assert.Equal(t, "payload bytes", string(f.Payload))
}

func TestReaderRejectsUnmaskedClientFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false) // server-mode (unmasked) writer
	require.NoError(t, w.WriteFrame(Frame{Fin: true, Opcode: OpText, Payload: []byte("x")}))
	r := NewReader(&buf, true) // expects masked (client) frames
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestReaderRejectsOversizedControlFrame(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 126)
	var buf bytes.Buffer
	buf.WriteByte(0x80 | byte(OpPing))
	buf.WriteByte(126)
	buf.Write([]byte{0x00, 0x7e})
	buf.Write(payload)
	r := NewReader(&buf, false)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestReaderRejectsReservedCloseCode(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	require.NoError(t, w.WriteFrame(Frame{Fin: true, Opcode: OpClose, Payload: closePayload(1005, "")}))
	r := NewReader(&buf, false)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestReaderRequiresContinuationAfterFragment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	require.NoError(t, w.WriteFrame(Frame{Fin: false, Opcode: OpText, Payload: []byte("a")}))
	require.NoError(t, w.WriteFrame(Frame{Fin: true, Opcode: OpBinary, Payload: []byte("b")}))
	r := NewReader(&buf, false)
	_, err := r.ReadFrame()
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.Error(t, err, "a data frame opcode mid-message must be rejected; only CONTINUATION is allowed")
}

func TestValidCloseCode(t *testing.T) {
	assert.True(t, ValidCloseCode(1000))
	assert.True(t, ValidCloseCode(4999))
	assert.False(t, ValidCloseCode(1004))
	assert.False(t, ValidCloseCode(1005))
	assert.False(t, ValidCloseCode(1006))
	assert.False(t, ValidCloseCode(1015))
	assert.False(t, ValidCloseCode(2999))
	assert.False(t, ValidCloseCode(999))
	assert.False(t, ValidCloseCode(5000))
}
