package h1

import (
	"bufio"
	"net"
	"sync"
)

// Connection wraps one HTTP/1.x socket as a pool.Codec: exclusive use
// (Multiplexed reports false), with a single outstanding exchange
// enforced by Acquire/Release rather than the Codec's own state machine,
// which only tracks one exchange's framing.
type Connection struct {
	conn net.Conn
	Exchange *Codec

	mu     sync.Mutex
	busy   bool
	closed bool
}

// NewConnection wraps conn for HTTP/1.x exchanges.
func NewConnection(conn net.Conn) *Connection {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	return &Connection{conn: conn, Exchange: New(r, w)}
}

// Acquire claims the connection for one exchange. Returns false if another
// exchange already holds it or it is closed.
func (c *Connection) Acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.busy {
		return false
	}
	c.busy = true
	return true
}

// Release frees the connection after an exchange. keepAlive false closes
// the underlying socket immediately (h1.KeepAlive returned false).
func (c *Connection) Release(keepAlive bool) {
	c.mu.Lock()
	c.busy = false
	shouldClose := !keepAlive && !c.closed
	if shouldClose {
		c.closed = true
	}
	c.mu.Unlock()
	if shouldClose {
		_ = c.conn.Close()
	}
}

func (c *Connection) Multiplexed() bool { return false }

func (c *Connection) TransmitterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 1
	}
	return 0
}

func (c *Connection) Protocol() string { return "http/1.1" }

// Conn returns the underlying socket, for callers that need to bound a read
// with a deadline (AwaitExpectContinue) rather than the Codec's reader alone.
func (c *Connection) Conn() net.Conn { return c.conn }

func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
