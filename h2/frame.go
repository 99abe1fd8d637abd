// Package h2 implements the HTTP/2 multiplexed connection (§4.5): frame
// reader/writer, stream state machine, HPACK header compression, flow
// control, PING timing, GOAWAY handling, and server-push observation.
package h2

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ClientPreface is the connection preface sent by clients only.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// FrameType identifies one of the frame kinds used by this implementation.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

// Flags, shared across frame types (bit meaning depends on FrameType).
const (
	FlagEndStream  uint8 = 0x1
	FlagAck        uint8 = 0x1
	FlagEndHeaders uint8 = 0x4
	FlagPadded     uint8 = 0x8
	FlagPriority   uint8 = 0x20
)

// DefaultMaxFrameSize is the minimum legal SETTINGS_MAX_FRAME_SIZE.
const DefaultMaxFrameSize = 16384

// MaxFrameSizeLimit is the largest legal SETTINGS_MAX_FRAME_SIZE (2^24-1).
const MaxFrameSizeLimit = 1<<24 - 1

// FrameHeader is the 9-byte header preceding every frame: 24-bit length,
// 8-bit type, 8-bit flags, 1 reserved bit + 31-bit stream id.
type FrameHeader struct {
	Length   uint32 // 24 bits
	Type     FrameType
	Flags    uint8
	StreamID uint32 // 31 bits
}

func (h FrameHeader) encode() [9]byte {
	var b [9]byte
	b[0] = byte(h.Length >> 16)
	b[1] = byte(h.Length >> 8)
	b[2] = byte(h.Length)
	b[3] = byte(h.Type)
	b[4] = h.Flags
	binary.BigEndian.PutUint32(b[5:9], h.StreamID&0x7fffffff)
	return b
}

func decodeFrameHeader(b []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     FrameType(b[3]),
		Flags:    b[4],
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff,
	}
}

// Frame is a decoded frame: header plus an opaque payload. Higher-level
// code (Connection) interprets Payload according to Type.
type Frame struct {
	FrameHeader
	Payload []byte
}

// FrameReader reads length-prefixed HTTP/2 frames, enforcing the
// configured max frame size.
type FrameReader struct {
	r           io.Reader
	maxFrameSz  uint32
	headerBuf   [9]byte
}

// NewFrameReader wraps r; maxFrameSize bounds accepted frame payloads
// (SETTINGS_MAX_FRAME_SIZE, default 16384).
func NewFrameReader(r io.Reader, maxFrameSize uint32) *FrameReader {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxFrameSz: maxFrameSize}
}

// ReadFrame reads and returns the next frame.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.headerBuf[:]); err != nil {
		return nil, err
	}
	h := decodeFrameHeader(fr.headerBuf[:])
	if h.Length > fr.maxFrameSz {
		return nil, &ConnectionError{Code: ErrCodeFrameSize, Msg: fmt.Sprintf("frame length %d exceeds max %d", h.Length, fr.maxFrameSz)}
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, err
	}
	return &Frame{FrameHeader: h, Payload: payload}, nil
}

// SetMaxFrameSize updates the accepted payload bound (called when the
// local SETTINGS_MAX_FRAME_SIZE changes).
func (fr *FrameReader) SetMaxFrameSize(n uint32) { fr.maxFrameSz = n }

// FrameWriter writes length-prefixed HTTP/2 frames. Callers external to
// this package (Connection) are responsible for serializing writes with a
// single lock (§5: "writes are serialized by a single connection writer
// lock").
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: w} }

// WriteFrame writes h's 9-byte header followed by payload.
func (fw *FrameWriter) WriteFrame(h FrameHeader, payload []byte) error {
	h.Length = uint32(len(payload))
	hb := h.encode()
	if _, err := fw.w.Write(hb[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := fw.w.Write(payload)
	return err
}

// WriteClientPreface writes the fixed client connection preface.
func (fw *FrameWriter) WriteClientPreface() error {
	_, err := io.WriteString(fw.w, ClientPreface)
	return err
}

// ConnectionError is a connection-level HTTP/2 error (terminates the
// connection with GOAWAY).
type ConnectionError struct {
	Code ErrCode
	Msg  string
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("http2: connection error %s: %s", e.Code, e.Msg) }

// StreamError is a stream-level HTTP/2 error (RST_STREAM, connection
// survives).
type StreamError struct {
	StreamID uint32
	Code     ErrCode
	Msg      string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("http2: stream %d error %s: %s", e.StreamID, e.Code, e.Msg)
}

// ErrCode is an HTTP/2 error code (RFC 7540 §7).
type ErrCode uint32

const (
	ErrCodeNo                 ErrCode = 0x0
	ErrCodeProtocol           ErrCode = 0x1
	ErrCodeInternal           ErrCode = 0x2
	ErrCodeFlowControl        ErrCode = 0x3
	ErrCodeSettingsTimeout    ErrCode = 0x4
	ErrCodeStreamClosed       ErrCode = 0x5
	ErrCodeFrameSize          ErrCode = 0x6
	ErrCodeRefusedStream      ErrCode = 0x7
	ErrCodeCancel             ErrCode = 0x8
	ErrCodeCompression        ErrCode = 0x9
	ErrCodeConnect            ErrCode = 0xa
	ErrCodeEnhanceYourCalm    ErrCode = 0xb
	ErrCodeInadequateSecurity ErrCode = 0xc
	ErrCodeHTTP11Required     ErrCode = 0xd
)

func (c ErrCode) String() string {
	names := [...]string{"NO_ERROR", "PROTOCOL_ERROR", "INTERNAL_ERROR", "FLOW_CONTROL_ERROR",
		"SETTINGS_TIMEOUT", "STREAM_CLOSED", "FRAME_SIZE_ERROR", "REFUSED_STREAM", "CANCEL",
		"COMPRESSION_ERROR", "CONNECT_ERROR", "ENHANCE_YOUR_CALM", "INADEQUATE_SECURITY", "HTTP_1_1_REQUIRED"}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("ERROR_0x%x", uint32(c))
}

// SettingID is an HTTP/2 SETTINGS parameter identifier.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting is one (ID, value) SETTINGS parameter.
type Setting struct {
	ID  SettingID
	Val uint32
}

// Valid reports whether s's value is within RFC 7540 §6.5.2's bounds.
func (s Setting) Valid() error {
	switch s.ID {
	case SettingEnablePush:
		if s.Val != 0 && s.Val != 1 {
			return &ConnectionError{Code: ErrCodeProtocol, Msg: "ENABLE_PUSH must be 0 or 1"}
		}
	case SettingInitialWindowSize:
		if s.Val > 1<<31-1 {
			return &ConnectionError{Code: ErrCodeFlowControl, Msg: "INITIAL_WINDOW_SIZE too large"}
		}
	case SettingMaxFrameSize:
		if s.Val < DefaultMaxFrameSize || s.Val > MaxFrameSizeLimit {
			return &ConnectionError{Code: ErrCodeProtocol, Msg: "MAX_FRAME_SIZE out of range"}
		}
	}
	return nil
}

// EncodeSettingsPayload serializes settings as a SETTINGS frame payload
// (6 bytes per entry: 2-byte id, 4-byte value).
func EncodeSettingsPayload(settings []Setting) []byte {
	buf := make([]byte, 0, len(settings)*6)
	for _, s := range settings {
		var entry [6]byte
		binary.BigEndian.PutUint16(entry[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(entry[2:6], s.Val)
		buf = append(buf, entry[:]...)
	}
	return buf
}

// DecodeSettingsPayload parses a SETTINGS frame payload.
func DecodeSettingsPayload(payload []byte) ([]Setting, error) {
	if len(payload)%6 != 0 {
		return nil, &ConnectionError{Code: ErrCodeFrameSize, Msg: "SETTINGS payload not a multiple of 6"}
	}
	var out []Setting
	for i := 0; i < len(payload); i += 6 {
		s := Setting{
			ID:  SettingID(binary.BigEndian.Uint16(payload[i : i+2])),
			Val: binary.BigEndian.Uint32(payload[i+2 : i+6]),
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultClientSettings are the settings a client sends on connection
// startup, per §4.5.
func DefaultClientSettings() []Setting {
	return []Setting{
		{SettingHeaderTableSize, 4096},
		{SettingEnablePush, 0},
		{SettingInitialWindowSize, 65535},
		{SettingMaxFrameSize, DefaultMaxFrameSize},
	}
}

// EncodeWindowUpdate serializes a WINDOW_UPDATE payload.
func EncodeWindowUpdate(increment uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], increment&0x7fffffff)
	return b[:]
}

// DecodeWindowUpdate parses a WINDOW_UPDATE payload.
func DecodeWindowUpdate(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, &ConnectionError{Code: ErrCodeFrameSize, Msg: "WINDOW_UPDATE payload must be 4 bytes"}
	}
	return binary.BigEndian.Uint32(payload) & 0x7fffffff, nil
}

// EncodeRSTStream serializes an RST_STREAM payload.
func EncodeRSTStream(code ErrCode) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(code))
	return b[:]
}

// DecodeRSTStream parses an RST_STREAM payload.
func DecodeRSTStream(payload []byte) (ErrCode, error) {
	if len(payload) != 4 {
		return 0, &ConnectionError{Code: ErrCodeFrameSize, Msg: "RST_STREAM payload must be 4 bytes"}
	}
	return ErrCode(binary.BigEndian.Uint32(payload)), nil
}

// EncodeGoAway serializes a GOAWAY payload.
func EncodeGoAway(lastStreamID uint32, code ErrCode, debug []byte) []byte {
	b := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(b[0:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(b[4:8], uint32(code))
	copy(b[8:], debug)
	return b
}

// DecodeGoAway parses a GOAWAY payload.
func DecodeGoAway(payload []byte) (lastStreamID uint32, code ErrCode, debug []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, &ConnectionError{Code: ErrCodeFrameSize, Msg: "GOAWAY payload too short"}
	}
	lastStreamID = binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff
	code = ErrCode(binary.BigEndian.Uint32(payload[4:8]))
	debug = payload[8:]
	return
}

// EncodePing serializes an 8-byte PING payload.
func EncodePing(data [8]byte) []byte { return data[:] }

// DecodePing parses an 8-byte PING payload.
func DecodePing(payload []byte) ([8]byte, error) {
	var out [8]byte
	if len(payload) != 8 {
		return out, &ConnectionError{Code: ErrCodeFrameSize, Msg: "PING payload must be 8 bytes"}
	}
	copy(out[:], payload)
	return out, nil
}
