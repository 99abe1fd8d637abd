package h2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(FrameHeader{Type: FrameData, Flags: FlagEndStream, StreamID: 3}, []byte("hello")))

	fr := NewFrameReader(&buf, DefaultMaxFrameSize)
	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FrameData, f.Type)
	assert.Equal(t, uint32(3), f.StreamID)
	assert.Equal(t, FlagEndStream, f.Flags)
	assert.Equal(t, "hello", string(f.Payload))
}

func TestFrameReaderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(FrameHeader{Type: FrameData, StreamID: 1}, make([]byte, 100)))

	fr := NewFrameReader(&buf, 10)
	_, err := fr.ReadFrame()
	require.Error(t, err)
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeFrameSize, ce.Code)
}

func TestSettingsPayloadRoundTrip(t *testing.T) {
	in := []Setting{{SettingHeaderTableSize, 4096}, {SettingEnablePush, 0}}
	payload := EncodeSettingsPayload(in)
	out, err := DecodeSettingsPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	payload := EncodeWindowUpdate(1000)
	n, err := DecodeWindowUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), n)
}

func TestGoAwayRoundTrip(t *testing.T) {
	payload := EncodeGoAway(7, ErrCodeCancel, []byte("bye"))
	last, code, debug, err := DecodeGoAway(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), last)
	assert.Equal(t, ErrCodeCancel, code)
	assert.Equal(t, "bye", string(debug))
}

func TestSettingValidRejectsBadEnablePush(t *testing.T) {
	s := Setting{ID: SettingEnablePush, Val: 2}
	require.Error(t, s.Valid())
}
