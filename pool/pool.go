// Package pool implements the shared connection pool (§4.3): HTTP/2
// connections are multiplexable (any number of calls may share one), HTTP/1
// connections are exclusive (count=1), and idle connections are evicted by
// max-idle-time and max-idle-count.
package pool

import (
	"net"
	"sync"
	"time"

	"github.com/corehttp/corehttp/route"
)

const (
	// DefaultKeepAlive is how long an idle connection may sit in the pool
	// before PruneAndNextEvictionNanos evicts it.
	DefaultKeepAlive = 5 * time.Minute
	// DefaultMaxIdleConnections bounds total idle connections pool-wide.
	DefaultMaxIdleConnections = 5
)

// Codec is the minimal surface a transport-level connection exposes to the
// pool: whether it can serve another exchange, how many it is currently
// serving, and how to close it.
type Codec interface {
	// Multiplexed reports whether this connection can carry more than one
	// concurrent exchange (true for HTTP/2, false for HTTP/1).
	Multiplexed() bool
	// TransmitterCount is the number of calls currently registered
	// against this connection.
	TransmitterCount() int
	// Protocol is "http/1.1", "h2", or "h2c".
	Protocol() string
	// IsHealthy reports whether the connection is still usable (not
	// closed, not GOAWAY'd with no room for new streams).
	IsHealthy() bool
	// Close tears the connection down.
	Close() error
}

// Connection is one pooled entry: a Codec plus the Route it was
// established over and idle-accounting state.
type Connection struct {
	Codec     Codec
	RouteInfo *route.Route
	conn      net.Conn

	mu          sync.Mutex
	idleSince   time.Time
	isIdle      bool
}

// NewConnection wraps codec/conn/r as a freshly-established, non-idle pool
// entry.
func NewConnection(codec Codec, conn net.Conn, r *route.Route) *Connection {
	return &Connection{Codec: codec, conn: conn, RouteInfo: r}
}

func (c *Connection) markIdleIfUnused(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Codec.TransmitterCount() == 0 {
		if !c.isIdle {
			c.isIdle = true
			c.idleSince = now
		}
	} else {
		c.isIdle = false
	}
}

func (c *Connection) idleDuration(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isIdle {
		return 0, false
	}
	return now.Sub(c.idleSince), true
}

// Protocol returns the connection's negotiated protocol, satisfying
// call.Connection structurally.
func (c *Connection) Protocol() string { return c.Codec.Protocol() }

// Route returns c.RouteInfo as an `any`, satisfying call.Connection's
// Route() any method without importing the call package (which would
// create an import cycle: call -> pool -> call).
func (c *Connection) Route() any { return c.RouteInfo }

// Pool holds connections keyed by address, with idle eviction.
type Pool struct {
	keepAlive  time.Duration
	maxIdle    int

	mu    sync.Mutex
	byKey map[string][]*Connection
}

// New builds a Pool. keepAlive and maxIdle fall back to package defaults
// when zero/negative.
func New(keepAlive time.Duration, maxIdle int) *Pool {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConnections
	}
	return &Pool{keepAlive: keepAlive, maxIdle: maxIdle, byKey: make(map[string][]*Connection)}
}

// Put registers a newly established connection.
func (p *Pool) Put(c *Connection) {
	key := c.RouteInfo.Address.Key()
	p.mu.Lock()
	p.byKey[key] = append(p.byKey[key], c)
	p.mu.Unlock()
}

// AcquireMultiplexed returns an existing, healthy, multiplexed connection
// for key, or nil if none exists (§4.3 acquisition step 2).
func (p *Pool) AcquireMultiplexed(addressKey string) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.byKey[addressKey] {
		if c.Codec.Multiplexed() && c.Codec.IsHealthy() {
			return c
		}
	}
	return nil
}

// AcquireIdleExclusive returns an idle (TransmitterCount==0), non-
// multiplexed connection for key (§4.3 acquisition step 3). The connection
// stays in the pool and is not reserved; the caller claims exclusive use
// through its codec.
func (p *Pool) AcquireIdleExclusive(addressKey string) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.byKey[addressKey] {
		if !c.Codec.Multiplexed() && c.Codec.IsHealthy() && c.Codec.TransmitterCount() == 0 {
			return c
		}
	}
	return nil
}

// Remove evicts c from the pool (it has been closed or deemed unusable).
func (p *Pool) Remove(c *Connection) {
	key := c.RouteInfo.Address.Key()
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.byKey[key]
	for i, e := range list {
		if e == c {
			p.byKey[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(p.byKey[key]) == 0 {
		delete(p.byKey, key)
	}
}

// Size returns the total number of pooled connections across all
// addresses.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.byKey {
		n += len(l)
	}
	return n
}

// PruneAndNextEvictionNanos closes connections idle longer than keepAlive
// and, if the pool holds more idle connections than maxIdle, evicts the
// oldest-idle-first until compliant. It returns the delay until the next
// connection would become eligible for eviction (for a scheduler to sleep
// on), or 0 if no idle connections remain.
func (p *Pool) PruneAndNextEvictionNanos(now time.Time) time.Duration {
	p.mu.Lock()
	var allIdle []*Connection
	for key, list := range p.byKey {
		var kept []*Connection
		for _, c := range list {
			c.markIdleIfUnused(now)
			if !c.Codec.IsHealthy() {
				_ = c.Codec.Close()
				continue
			}
			if d, idle := c.idleDuration(now); idle && d >= p.keepAlive {
				_ = c.Codec.Close()
				continue
			}
			kept = append(kept, c)
			if _, idle := c.idleDuration(now); idle {
				allIdle = append(allIdle, c)
			}
		}
		if len(kept) == 0 {
			delete(p.byKey, key)
		} else {
			p.byKey[key] = kept
		}
	}

	if len(allIdle) > p.maxIdle {
		sortOldestFirst(allIdle, now)
		toEvict := allIdle[:len(allIdle)-p.maxIdle]
		for _, c := range toEvict {
			_ = c.Codec.Close()
			p.removeLocked(c)
		}
		allIdle = allIdle[len(allIdle)-p.maxIdle:]
	}

	var next time.Duration = -1
	for _, c := range allIdle {
		if d, idle := c.idleDuration(now); idle {
			remain := p.keepAlive - d
			if next == -1 || remain < next {
				next = remain
			}
		}
	}
	p.mu.Unlock()
	if next == -1 {
		return 0
	}
	return next
}

func (p *Pool) removeLocked(c *Connection) {
	key := c.RouteInfo.Address.Key()
	list := p.byKey[key]
	for i, e := range list {
		if e == c {
			p.byKey[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(p.byKey[key]) == 0 {
		delete(p.byKey, key)
	}
}

func sortOldestFirst(conns []*Connection, now time.Time) {
	// insertion sort; pools are small (bounded by maxIdle + in-flight).
	for i := 1; i < len(conns); i++ {
		for j := i; j > 0; j-- {
			di, _ := conns[j].idleDuration(now)
			dj, _ := conns[j-1].idleDuration(now)
			if di <= dj {
				break
			}
			conns[j], conns[j-1] = conns[j-1], conns[j]
		}
	}
}
