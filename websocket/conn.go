package websocket

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

// DefaultMaxQueueSize is the default outgoing queue budget in bytes
// (§4.7 "Outgoing queue").
const DefaultMaxQueueSize = 16 << 20

// Listener receives inbound WebSocket events. Methods are invoked from the
// connection's single reader goroutine; implementations must not block.
type Listener interface {
	OnText(message string)
	OnBinary(message []byte)
	OnClosing(code int, reason string)
	OnClosed(code int, reason string)
	OnFailure(err error)
}

// Config configures a Conn.
type Config struct {
	// IsClient selects client-mode framing (masked outgoing, unmasked
	// expected incoming) versus server-mode.
	IsClient bool
	// Extensions is the permessage-deflate negotiation result, or the
	// zero value if no extension was negotiated.
	Extensions Extensions
	// MaxQueueSize bounds outgoing queued bytes; 0 uses DefaultMaxQueueSize.
	MaxQueueSize int64
	// PingInterval, if > 0, sends an automatic ping on this cadence and
	// closes the connection with a timeout if no pong arrives before the
	// next tick.
	PingInterval time.Duration
	Listener     Listener
}

type outgoingMessage struct {
	frame Frame
	done  chan error
}

// Conn drives one upgraded WebSocket exchange: a reader goroutine decoding
// frames from rw, and a single writer goroutine serializing frames back
// (§4.7 "single writer task").
type Conn struct {
	rw       io.ReadWriter
	reader   *Reader
	writer   *Writer
	cfg      Config
	deflate  *permessageDeflate

	mu         sync.Mutex
	queueBytes int64
	closed     bool
	closeErr   error

	sendCh chan outgoingMessage
	done   chan struct{}

	pongCh chan struct{}

	fragType    Opcode
	fragPayload []byte
}

// NewConn wraps rw (already upgraded to the WebSocket protocol) and starts
// its reader and writer goroutines.
func NewConn(rw io.ReadWriter, cfg Config) *Conn {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	c := &Conn{
		rw:     rw,
		reader: NewReader(rw, !cfg.IsClient),
		writer: NewWriter(rw, cfg.IsClient),
		cfg:    cfg,
		sendCh: make(chan outgoingMessage, 64),
		done:   make(chan struct{}),
		pongCh: make(chan struct{}, 1),
	}
	if cfg.Extensions.PermessageDeflate {
		c.deflate = newPermessageDeflate()
	}
	go c.writeLoop()
	go c.readLoop()
	if cfg.PingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

// SendText enqueues a text message. Returns false if the outgoing queue is
// full (§4.7 "send() returns false once overflowing").
func (c *Conn) SendText(s string) bool {
	return c.enqueue(OpText, []byte(s))
}

// SendBinary enqueues a binary message.
func (c *Conn) SendBinary(p []byte) bool {
	return c.enqueue(OpBinary, p)
}

func (c *Conn) enqueue(op Opcode, payload []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	rsv1 := false
	if c.deflate != nil {
		compressed, err := c.deflate.compress(payload)
		if err == nil {
			payload = compressed
			rsv1 = true
		}
	}
	if c.queueBytes+int64(len(payload)) > c.cfg.MaxQueueSize {
		c.mu.Unlock()
		return false
	}
	c.queueBytes += int64(len(payload))
	c.mu.Unlock()

	select {
	case c.sendCh <- outgoingMessage{frame: Frame{Fin: true, RSV1: rsv1, Opcode: op, Payload: payload}}:
		return true
	case <-c.done:
		return false
	}
}

// Close sends a CLOSE frame with code/reason and returns once it has been
// written; the writer goroutine then stops and the Conn is marked closed
// without waiting for the peer's CLOSE reply. The reader goroutine keeps
// running until the peer's CLOSE arrives or a read fails.
func (c *Conn) Close(code int, reason string) error {
	payload := closePayload(code, reason)
	errCh := make(chan error, 1)
	select {
	case c.sendCh <- outgoingMessage{frame: Frame{Fin: true, Opcode: OpClose, Payload: payload}, done: errCh}:
	case <-c.done:
		return c.closeErr
	}
	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return c.closeErr
	}
}

func closePayload(code int, reason string) []byte {
	if code == 0 {
		return nil
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return payload
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			err := c.writer.WriteFrame(msg.frame)
			if msg.frame.Opcode != OpClose {
				c.mu.Lock()
				c.queueBytes -= int64(len(msg.frame.Payload))
				c.mu.Unlock()
			}
			if msg.done != nil {
				msg.done <- err
			}
			if err != nil || msg.frame.Opcode == OpClose {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case c.sendCh <- outgoingMessage{frame: Frame{Fin: true, Opcode: OpPing}}:
			case <-c.done:
				return
			}
			select {
			case <-c.pongCh:
			case <-time.After(c.cfg.PingInterval):
				c.shutdown(errors.New("websocket: ping timeout"))
				return
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		f, err := c.reader.ReadFrame()
		if err != nil {
			c.shutdown(err)
			if c.cfg.Listener != nil {
				c.cfg.Listener.OnFailure(err)
			}
			return
		}
		if err := c.handleFrame(f); err != nil {
			c.shutdown(err)
			if c.cfg.Listener != nil {
				c.cfg.Listener.OnFailure(err)
			}
			return
		}
	}
}

func (c *Conn) handleFrame(f Frame) error {
	switch f.Opcode {
	case OpPing:
		select {
		case c.sendCh <- outgoingMessage{frame: Frame{Fin: true, Opcode: OpPong, Payload: f.Payload}}:
		case <-c.done:
		}
		return nil
	case OpPong:
		select {
		case c.pongCh <- struct{}{}:
		default:
		}
		return nil
	case OpClose:
		code, reason := 1005, ""
		if len(f.Payload) >= 2 {
			code = int(binary.BigEndian.Uint16(f.Payload[:2]))
			reason = string(f.Payload[2:])
		}
		if c.cfg.Listener != nil {
			c.cfg.Listener.OnClosing(code, reason)
		}
		select {
		case c.sendCh <- outgoingMessage{frame: Frame{Fin: true, Opcode: OpClose, Payload: f.Payload}}:
		case <-c.done:
		}
		if c.cfg.Listener != nil {
			c.cfg.Listener.OnClosed(code, reason)
		}
		return errClosedByPeer
	case OpText, OpBinary, OpContinuation:
		return c.handleDataFrame(f)
	default:
		return nil
	}
}

var errClosedByPeer = errors.New("websocket: closed by peer")

func (c *Conn) handleDataFrame(f Frame) error {
	if f.Opcode != OpContinuation {
		c.fragType = f.Opcode
		c.fragPayload = append(c.fragPayload[:0], f.Payload...)
	} else {
		c.fragPayload = append(c.fragPayload, f.Payload...)
	}
	if !f.Fin {
		return nil
	}

	payload := c.fragPayload
	c.fragPayload = nil
	if f.RSV1 && c.deflate != nil {
		decompressed, err := c.deflate.decompress(payload)
		if err != nil {
			return err
		}
		payload = decompressed
	}

	if c.cfg.Listener == nil {
		return nil
	}
	switch c.fragType {
	case OpText:
		c.cfg.Listener.OnText(string(payload))
	case OpBinary:
		c.cfg.Listener.OnBinary(payload)
	}
	return nil
}

func (c *Conn) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	c.mu.Unlock()
	close(c.done)
}
