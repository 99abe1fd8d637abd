package h2

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/corehttp/corehttp/headers"
)

// PushObserver is notified of server-initiated PUSH_PROMISE streams. The
// default client configuration (§6) has no push consumer; implementing
// this interface lets a caller opt in to accepting (or immediately
// RST_STREAM(REFUSED_STREAM)-ing) pushed resources.
type PushObserver interface {
	// OnPush is called with the promised request's pseudo/regular headers
	// and the new (server-initiated, even-numbered) Stream carrying the
	// pushed response. Returning false causes the Connection to reject the
	// push with RST_STREAM(REFUSED_STREAM).
	OnPush(promisedStreamID uint32, pseudo map[string]string, h *headers.Headers, stream *Stream) bool
}

// Connection is one HTTP/2 multiplexed connection (§4.5): a single
// TCP/TLS socket carrying any number of concurrent streams, with a
// dedicated read loop and a single writer lock serializing frame
// emission.
type Connection struct {
	conn net.Conn
	fr   *FrameReader
	fw   *FrameWriter

	writeMu sync.Mutex

	nextStreamID uint32 // odd, client-initiated

	mu             sync.Mutex
	streams        map[uint32]*Stream
	closed         bool
	closeErr       error
	goAwayReceived bool
	lastPeerStream uint32

	localSettings  []Setting
	peerMaxFrame   uint32
	peerInitialWin uint32

	connSendFlow *flowController
	connRecvFlow *flowController

	enc *Encoder
	dec *Decoder

	pingMu      sync.Mutex
	pingWaiters map[[8]byte]chan struct{}

	push PushObserver

	onIdle func()
}

// DialConfig configures a new client Connection.
type DialConfig struct {
	Push           PushObserver
	Settings       []Setting
	OnBecomeIdle   func() // invoked whenever TransmitterCount transitions to 0
}

// NewConnection wraps an already-established (and, for TLS, already
// ALPN-negotiated "h2") net.Conn without writing to it: the client preface
// and initial SETTINGS exchange are left to the caller via Handshake, per
// §4.5's separation of connect-time negotiation from steady-state framing.
func NewConnection(conn net.Conn, cfg DialConfig) *Connection {
	settings := cfg.Settings
	if settings == nil {
		settings = DefaultClientSettings()
	}
	c := &Connection{
		conn:           conn,
		fr:             NewFrameReader(conn, DefaultMaxFrameSize),
		fw:             NewFrameWriter(conn),
		nextStreamID:   1,
		streams:        make(map[uint32]*Stream),
		localSettings:  settings,
		peerMaxFrame:   DefaultMaxFrameSize,
		peerInitialWin: DefaultInitialWindowSize,
		connSendFlow:   newFlowController(DefaultInitialWindowSize),
		connRecvFlow:   newFlowController(DefaultInitialWindowSize),
		enc:            NewEncoder(4096),
		dec:            NewDecoder(4096),
		pingWaiters:    make(map[[8]byte]chan struct{}),
		push:           cfg.Push,
		onIdle:         cfg.OnBecomeIdle,
	}
	return c
}

// Handshake writes the client preface and initial SETTINGS frame, then
// starts the background read loop. Callers must call Handshake exactly
// once before opening streams.
func (c *Connection) Handshake() error {
	if err := c.fw.WriteClientPreface(); err != nil {
		return err
	}
	if err := c.writeFrameLocked(FrameHeader{Type: FrameSettings}, EncodeSettingsPayload(c.localSettings)); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

func (c *Connection) writeFrameLocked(h FrameHeader, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.fw.WriteFrame(h, payload)
}

// OpenStream allocates a new client-initiated stream id and registers it.
func (c *Connection) OpenStream() *Stream {
	c.mu.Lock()
	id := c.nextStreamID
	c.nextStreamID += 2
	s := newStream(id, c, c.peerInitialWin, DefaultInitialWindowSize)
	c.streams[id] = s
	c.mu.Unlock()
	return s
}

func (c *Connection) writeHeadersFrame(s *Stream, fields []HeaderField, endStream bool) error {
	block := c.enc.EncodeFields(nil, fields)
	flags := FlagEndHeaders
	if endStream {
		flags |= FlagEndStream
	}
	// CONTINUATION fragmentation against peerMaxFrame, per §4.5/RFC 7540
	// §6.10: oversized header blocks are split, with END_HEADERS only on
	// the final fragment.
	max := int(c.peerMaxFrame)
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	first := block
	rest := []byte(nil)
	if len(block) > max {
		first = block[:max]
		rest = block[max:]
		flags &^= FlagEndHeaders
	}
	if err := c.writeFrameLocked(FrameHeader{Type: FrameHeaders, Flags: flags, StreamID: s.id}, first); err != nil {
		return err
	}
	for len(rest) > 0 {
		chunk := rest
		contFlags := uint8(0)
		if len(chunk) > max {
			chunk = rest[:max]
		} else {
			contFlags = FlagEndHeaders
			if endStream {
				// END_STREAM already set on the HEADERS frame above.
			}
		}
		if err := c.writeFrameLocked(FrameHeader{Type: FrameContinuation, Flags: contFlags, StreamID: s.id}, chunk); err != nil {
			return err
		}
		rest = rest[len(chunk):]
	}
	return nil
}

// writeData emits p as one or more DATA frames honoring both the
// connection and stream flow-control windows plus peerMaxFrame.
func (c *Connection) writeData(s *Stream, p []byte, endStream bool) (int, error) {
	if len(p) == 0 {
		flags := uint8(0)
		if endStream {
			flags = FlagEndStream
		}
		return 0, c.writeFrameLocked(FrameHeader{Type: FrameData, Flags: flags, StreamID: s.id}, nil)
	}
	written := 0
	for written < len(p) {
		remaining := p[written:]
		grant, ok := s.sendFlow.consume(int64(len(remaining)))
		if !ok {
			return written, fmt.Errorf("h2: stream %d closed while writing body", s.id)
		}
		connGrant, ok := c.connSendFlow.consume(grant)
		if !ok {
			return written, fmt.Errorf("h2: connection closed while writing body")
		}
		chunk := remaining[:connGrant]
		max := int(c.peerMaxFrame)
		if max <= 0 {
			max = DefaultMaxFrameSize
		}
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		flags := uint8(0)
		isLast := written+len(chunk) == len(p)
		if endStream && isLast {
			flags = FlagEndStream
		}
		if err := c.writeFrameLocked(FrameHeader{Type: FrameData, Flags: flags, StreamID: s.id}, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

func (c *Connection) writeRSTStream(streamID uint32, code ErrCode) error {
	return c.writeFrameLocked(FrameHeader{Type: FrameRSTStream, StreamID: streamID}, EncodeRSTStream(code))
}

// Ping sends a PING frame and blocks until the ack arrives or timeout
// elapses (§4.5 "PING timing" for RTT measurement and liveness checks).
func (c *Connection) Ping(data [8]byte, timeout time.Duration) error {
	wait := make(chan struct{})
	c.pingMu.Lock()
	c.pingWaiters[data] = wait
	c.pingMu.Unlock()
	if err := c.writeFrameLocked(FrameHeader{Type: FramePing}, EncodePing(data)); err != nil {
		return err
	}
	select {
	case <-wait:
		return nil
	case <-time.After(timeout):
		c.pingMu.Lock()
		delete(c.pingWaiters, data)
		c.pingMu.Unlock()
		return fmt.Errorf("h2: PING timed out after %s", timeout)
	}
}

// GoAway sends a GOAWAY frame announcing the last stream id this side
// will process, and marks the connection as not accepting new streams.
func (c *Connection) GoAway(code ErrCode, debug []byte) error {
	c.mu.Lock()
	last := c.lastPeerStream
	c.closed = true
	c.mu.Unlock()
	return c.writeFrameLocked(FrameHeader{Type: FrameGoAway}, EncodeGoAway(last, code, debug))
}

// Close tears down the underlying socket and fails all open streams.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = io.ErrClosedPipe
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		s.onRemoteReset(ErrCodeCancel)
	}
	c.connSendFlow.close()
	c.connRecvFlow.close()
	return c.conn.Close()
}

// Multiplexed reports true: any number of calls may share an HTTP/2
// Connection, satisfying pool.Codec structurally.
func (c *Connection) Multiplexed() bool { return true }

// TransmitterCount returns the number of streams currently open.
func (c *Connection) TransmitterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.streams {
		if s.State() != StreamClosed {
			n++
		}
	}
	return n
}

// Protocol returns "h2", satisfying pool.Codec.
func (c *Connection) Protocol() string { return "h2" }

// IsHealthy reports whether the connection can still accept new streams:
// not closed and no GOAWAY received.
func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.goAwayReceived
}

func (c *Connection) removeStream(id uint32) {
	c.mu.Lock()
	delete(c.streams, id)
	becameIdle := len(c.streams) == 0
	c.mu.Unlock()
	if becameIdle && c.onIdle != nil {
		c.onIdle()
	}
}

// readLoop is the single goroutine reading frames off the wire and
// dispatching them to streams or connection-level state, per §5: "a
// single read goroutine demultiplexes incoming frames by stream id."
func (c *Connection) readLoop() {
	for {
		f, err := c.fr.ReadFrame()
		if err != nil {
			c.failAll(err)
			return
		}
		if err := c.handleFrame(f); err != nil {
			if ce, ok := err.(*ConnectionError); ok {
				_ = c.GoAway(ce.Code, []byte(ce.Msg))
				c.failAll(err)
				return
			}
			if se, ok := err.(*StreamError); ok {
				_ = c.writeRSTStream(se.StreamID, se.Code)
				continue
			}
			c.failAll(err)
			return
		}
	}
}

func (c *Connection) failAll(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()
	for _, s := range streams {
		s.onRemoteReset(ErrCodeInternal)
	}
}

func (c *Connection) handleFrame(f *Frame) error {
	switch f.Type {
	case FrameSettings:
		return c.handleSettings(f)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(f)
	case FramePing:
		return c.handlePing(f)
	case FrameGoAway:
		return c.handleGoAway(f)
	case FrameHeaders:
		return c.handleHeaders(f)
	case FrameContinuation:
		return c.handleContinuation(f)
	case FrameData:
		return c.handleData(f)
	case FrameRSTStream:
		return c.handleRSTStream(f)
	case FramePushPromise:
		return c.handlePushPromise(f)
	case FramePriority:
		return nil // priority scheduling is not implemented; frame is accepted and ignored
	default:
		return nil // unknown frame types are ignored per RFC 7540 §4.1
	}
}

func (c *Connection) handleSettings(f *Frame) error {
	if f.Flags&FlagAck != 0 {
		return nil
	}
	settings, err := DecodeSettingsPayload(f.Payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, s := range settings {
		if err := s.Valid(); err != nil {
			c.mu.Unlock()
			return err
		}
		switch s.ID {
		case SettingMaxFrameSize:
			c.peerMaxFrame = s.Val
		case SettingInitialWindowSize:
			c.peerInitialWin = s.Val
		case SettingHeaderTableSize:
			c.enc.SetMaxDynamicTableSize(int(s.Val))
		}
	}
	c.mu.Unlock()
	return c.writeFrameLocked(FrameHeader{Type: FrameSettings, Flags: FlagAck}, nil)
}

func (c *Connection) handleWindowUpdate(f *Frame) error {
	increment, err := DecodeWindowUpdate(f.Payload)
	if err != nil {
		return err
	}
	if f.StreamID == 0 {
		c.connSendFlow.replenish(increment)
		return nil
	}
	s := c.lookupStream(f.StreamID)
	if s == nil {
		return nil // window update for a closed/unknown stream is harmless
	}
	s.sendFlow.replenish(increment)
	return nil
}

func (c *Connection) handlePing(f *Frame) error {
	data, err := DecodePing(f.Payload)
	if err != nil {
		return err
	}
	if f.Flags&FlagAck != 0 {
		c.pingMu.Lock()
		if wait, ok := c.pingWaiters[data]; ok {
			delete(c.pingWaiters, data)
			close(wait)
		}
		c.pingMu.Unlock()
		return nil
	}
	return c.writeFrameLocked(FrameHeader{Type: FramePing, Flags: FlagAck}, EncodePing(data))
}

func (c *Connection) handleGoAway(f *Frame) error {
	lastStreamID, code, _, err := DecodeGoAway(f.Payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.goAwayReceived = true
	var toFail []*Stream
	for id, s := range c.streams {
		if id > lastStreamID {
			toFail = append(toFail, s)
		}
	}
	c.mu.Unlock()
	for _, s := range toFail {
		s.onRemoteReset(code)
	}
	return nil
}

func (c *Connection) handleRSTStream(f *Frame) error {
	code, err := DecodeRSTStream(f.Payload)
	if err != nil {
		return err
	}
	s := c.lookupStream(f.StreamID)
	if s == nil {
		return nil
	}
	s.onRemoteReset(code)
	c.removeStream(f.StreamID)
	return nil
}

func (c *Connection) handleHeaders(f *Frame) error {
	s := c.lookupStream(f.StreamID)
	if s == nil {
		return &ConnectionError{Code: ErrCodeProtocol, Msg: fmt.Sprintf("HEADERS for unknown stream %d", f.StreamID)}
	}
	isTrailer := s.respHeadersDelivered()
	block := stripPadding(f.Flags, f.Payload)
	if f.Flags&FlagEndHeaders == 0 {
		s.pendingHeaderBlock = append(s.pendingHeaderBlock[:0], block...)
		return nil
	}
	pseudo, h := decodeHeaderBlock(c.dec, block)
	c.deliverHeaderFields(s, pseudo, h, isTrailer, f.Flags&FlagEndStream != 0)
	return nil
}

func (c *Connection) handleContinuation(f *Frame) error {
	s := c.lookupStream(f.StreamID)
	if s == nil {
		return &ConnectionError{Code: ErrCodeProtocol, Msg: fmt.Sprintf("CONTINUATION for unknown stream %d", f.StreamID)}
	}
	isTrailer := s.respHeadersDelivered()
	s.pendingHeaderBlock = append(s.pendingHeaderBlock, f.Payload...)
	if f.Flags&FlagEndHeaders == 0 {
		return nil
	}
	block := s.pendingHeaderBlock
	s.pendingHeaderBlock = nil
	pseudo, h := decodeHeaderBlock(c.dec, block)
	c.deliverHeaderFields(s, pseudo, h, isTrailer, f.Flags&FlagEndStream != 0)
	return nil
}

func (c *Connection) deliverHeaderFields(s *Stream, pseudo map[string]string, h *headers.Headers, isTrailer, endStream bool) {
	if isTrailer {
		s.trailer = h
	} else {
		s.deliverHeaders(pseudo, h, nil)
	}
	if endStream {
		s.setState(streamAfterRemoteHalfClose(s.State()))
		s.closeBody(io.EOF)
		c.removeStream(s.id)
	}
}

func (c *Connection) handleData(f *Frame) error {
	s := c.lookupStream(f.StreamID)
	if s == nil {
		return &ConnectionError{Code: ErrCodeProtocol, Msg: fmt.Sprintf("DATA for unknown stream %d", f.StreamID)}
	}
	payload := stripPadding(f.Flags, f.Payload)
	if len(payload) > 0 {
		s.deliverData(payload)
		s.recvFlow.debit(int64(len(payload)))
		c.connRecvFlow.debit(int64(len(payload)))
		// Replenish eagerly so the peer never stalls waiting on our
		// application to read (§4.5): the window is restored as soon as
		// DATA arrives, not paced off actual consumption.
		_ = c.writeFrameLocked(FrameHeader{Type: FrameWindowUpdate, StreamID: f.StreamID}, EncodeWindowUpdate(uint32(len(payload))))
		_ = c.writeFrameLocked(FrameHeader{Type: FrameWindowUpdate, StreamID: 0}, EncodeWindowUpdate(uint32(len(payload))))
	}
	if f.Flags&FlagEndStream != 0 {
		s.setState(streamAfterRemoteHalfClose(s.State()))
		s.closeBody(io.EOF)
		c.removeStream(s.id)
	}
	return nil
}

func (c *Connection) handlePushPromise(f *Frame) error {
	if c.push == nil {
		return c.writeRSTStream(f.StreamID, ErrCodeRefusedStream)
	}
	// Minimal support: decode the promised stream id and headers, hand off
	// to the observer. CONTINUATION frames are not reassembled for push: a
	// PUSH_PROMISE without END_HEADERS is rejected as a connection error.
	if len(f.Payload) < 4 {
		return &ConnectionError{Code: ErrCodeFrameSize, Msg: "PUSH_PROMISE payload too short"}
	}
	if f.Flags&FlagEndHeaders == 0 {
		return &ConnectionError{Code: ErrCodeProtocol, Msg: "PUSH_PROMISE spanning CONTINUATION frames is not supported"}
	}
	promisedID := (uint32(f.Payload[0])<<24 | uint32(f.Payload[1])<<16 | uint32(f.Payload[2])<<8 | uint32(f.Payload[3])) & 0x7fffffff
	block := stripPadding(f.Flags, f.Payload[4:])
	pseudo, h := decodeHeaderBlock(c.dec, block)
	pushStream := newStream(promisedID, c, c.peerInitialWin, DefaultInitialWindowSize)
	c.mu.Lock()
	c.streams[promisedID] = pushStream
	if promisedID > c.lastPeerStream {
		c.lastPeerStream = promisedID
	}
	c.mu.Unlock()
	if !c.push.OnPush(promisedID, pseudo, h, pushStream) {
		return c.writeRSTStream(promisedID, ErrCodeRefusedStream)
	}
	return nil
}

func (c *Connection) lookupStream(id uint32) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[id]
}

func streamAfterRemoteHalfClose(cur StreamState) StreamState {
	if cur == StreamHalfClosedLocal {
		return StreamClosed
	}
	return StreamHalfClosedRemote
}

func stripPadding(flags uint8, payload []byte) []byte {
	if flags&FlagPadded == 0 || len(payload) == 0 {
		return payload
	}
	padLen := int(payload[0])
	body := payload[1:]
	if padLen > len(body) {
		return nil
	}
	return body[:len(body)-padLen]
}

func decodeHeaderBlock(dec *Decoder, block []byte) (map[string]string, *headers.Headers) {
	var fields []HeaderField
	_ = dec.DecodeFields(block, func(f HeaderField) { fields = append(fields, f) })
	return headersFromFields(fields)
}
