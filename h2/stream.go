package h2

import (
	"io"
	"sync"

	"github.com/corehttp/corehttp/headers"
)

// StreamState is one point in the per-stream state machine of RFC 7540
// §5.1.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

// Stream is one HTTP/2 request/response exchange multiplexed over a
// shared Connection (§4.5).
type Stream struct {
	id   uint32
	conn *Connection

	sendFlow *flowController
	recvFlow *flowController

	mu    sync.Mutex
	state StreamState

	headersReady chan struct{}
	pseudo       map[string]string
	respHeaders  *headers.Headers
	headersErr   error
	headersOnce  sync.Once

	bodyR *io.PipeReader
	bodyW *io.PipeWriter

	trailer *headers.Headers

	pendingHeaderBlock []byte

	resetCode ErrCode
	resetErr  error
}

// respHeadersDelivered reports whether the response HEADERS frame has
// already been processed, so a later HEADERS frame on the same stream is
// known to carry trailers instead.
func (s *Stream) respHeadersDelivered() bool {
	select {
	case <-s.headersReady:
		return true
	default:
		return false
	}
}

func newStream(id uint32, conn *Connection, sendInitial, recvInitial uint32) *Stream {
	pr, pw := io.Pipe()
	return &Stream{
		id:           id,
		conn:         conn,
		state:        StreamIdle,
		sendFlow:     newFlowController(sendInitial),
		recvFlow:     newFlowController(recvInitial),
		headersReady: make(chan struct{}),
		bodyR:        pr,
		bodyW:        pw,
	}
}

// ID returns the stream's identifier.
func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the stream's current state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResponseHeaders blocks until the response HEADERS frame (and any
// CONTINUATIONs) complete, then returns the pseudo-headers (":status"
// etc.) and regular headers.
func (s *Stream) ResponseHeaders() (pseudo map[string]string, h *headers.Headers, err error) {
	<-s.headersReady
	return s.pseudo, s.respHeaders, s.headersErr
}

func (s *Stream) deliverHeaders(pseudo map[string]string, h *headers.Headers, err error) {
	s.headersOnce.Do(func() {
		s.pseudo = pseudo
		s.respHeaders = h
		s.headersErr = err
		close(s.headersReady)
	})
}

// Body returns a reader for the response DATA payload, in arrival order.
func (s *Stream) Body() io.Reader { return s.bodyR }

func (s *Stream) deliverData(p []byte) {
	_, _ = s.bodyW.Write(p)
}

func (s *Stream) closeBody(err error) {
	_ = s.bodyW.CloseWithError(err)
}

// Trailer returns trailing headers delivered in a post-DATA HEADERS
// frame, once the body reader has returned io.EOF.
func (s *Stream) Trailer() *headers.Headers { return s.trailer }

// WriteRequest sends the HEADERS (and CONTINUATION, if needed) frames
// opening the stream. endStream is true for bodyless requests (GET,
// HEAD, or any method with no body).
func (s *Stream) WriteRequest(pseudo []HeaderField, h *headers.Headers, sensitive map[string]bool, endStream bool) error {
	s.setState(StreamOpen)
	if endStream {
		s.setState(StreamHalfClosedLocal)
	}
	fields := fieldsFromHeaders(pseudo, h, sensitive)
	return s.conn.writeHeadersFrame(s, fields, endStream)
}

// Write sends a chunk of the request body as one or more DATA frames,
// respecting flow control and MAX_FRAME_SIZE (§4.5/§5).
func (s *Stream) Write(p []byte) (int, error) {
	return s.conn.writeData(s, p, false)
}

// CloseWrite sends an empty DATA frame with END_STREAM set and
// half-closes the stream locally.
func (s *Stream) CloseWrite() error {
	_, err := s.conn.writeData(s, nil, true)
	s.setState(advanceLocalHalfClose(s.State()))
	return err
}

func advanceLocalHalfClose(cur StreamState) StreamState {
	if cur == StreamHalfClosedRemote {
		return StreamClosed
	}
	return StreamHalfClosedLocal
}

// RST sends RST_STREAM with code and marks the stream closed locally
// (used by the transport when writing a request body fails).
func (s *Stream) RST(code ErrCode) error {
	s.setState(StreamClosed)
	s.closeBody(&StreamError{StreamID: s.id, Code: code, Msg: "reset by local peer"})
	return s.conn.writeRSTStream(s.id, code)
}

func (s *Stream) onRemoteReset(code ErrCode) {
	s.mu.Lock()
	s.resetCode = code
	s.resetErr = &StreamError{StreamID: s.id, Code: code, Msg: "reset by remote peer"}
	s.state = StreamClosed
	s.mu.Unlock()
	s.deliverHeaders(nil, nil, s.resetErr)
	s.closeBody(s.resetErr)
}
