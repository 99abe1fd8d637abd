package call

import "time"

// Interceptor is one link in the call execution pipeline. Implementations
// read chain.Request(), optionally mutate it, call chain.Proceed to run
// the rest of the chain, and may inspect/transform the resulting Response.
type Interceptor interface {
	Intercept(chain *Chain) (*Response, error)
}

// InterceptorFunc adapts a plain function to the Interceptor interface.
type InterceptorFunc func(chain *Chain) (*Response, error)

func (f InterceptorFunc) Intercept(chain *Chain) (*Response, error) { return f(chain) }

// Connection is the minimal surface the call-server and connect
// interceptors expose back up the chain via Chain.Connection. It is
// satisfied structurally by pool.Connection without either package
// importing the other.
type Connection interface {
	Protocol() string
	Route() any
}

// Chain threads a single integer index through an immutable interceptor
// list (§9: "the chain threads an integer index instead of recursive
// closures to avoid stack growth proportional to chain length").
type Chain struct {
	interceptors []Interceptor
	index        int
	request      *Request

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	callTimeout    time.Duration

	conn Connection

	call *Call
}

// NewChain builds the initial chain for a call, positioned before the
// first interceptor.
func NewChain(interceptors []Interceptor, req *Request, c *Call, connect, read, write, callT time.Duration) *Chain {
	return &Chain{
		interceptors:   interceptors,
		index:          0,
		request:        req,
		connectTimeout: connect,
		readTimeout:    read,
		writeTimeout:   write,
		callTimeout:    callT,
		call:           c,
	}
}

// Request returns the request as seen at this position in the chain.
func (c *Chain) Request() *Request { return c.request }

// Call returns the owning Call, giving interceptors access to cancellation
// state.
func (c *Chain) Call() *Call { return c.call }

// Connection returns the connection established by a prior (inner)
// interceptor, or nil if none has connected yet.
func (c *Chain) Connection() Connection { return c.conn }

// ConnectTimeout, ReadTimeout, WriteTimeout, CallTimeout expose the four
// independent timeout budgets (§4.1) to interceptors that perform I/O.
func (c *Chain) ConnectTimeout() time.Duration { return c.connectTimeout }
func (c *Chain) ReadTimeout() time.Duration    { return c.readTimeout }
func (c *Chain) WriteTimeout() time.Duration   { return c.writeTimeout }
func (c *Chain) CallTimeout() time.Duration    { return c.callTimeout }

// WithConnectTimeout returns a chain copy with a different connect budget
// (interceptors may tighten or widen it per exchange).
func (c *Chain) WithConnectTimeout(d time.Duration) *Chain {
	n := *c
	n.connectTimeout = d
	return &n
}

func (c *Chain) WithReadTimeout(d time.Duration) *Chain {
	n := *c
	n.readTimeout = d
	return &n
}

func (c *Chain) WithWriteTimeout(d time.Duration) *Chain {
	n := *c
	n.writeTimeout = d
	return &n
}

// WithConnection returns a chain copy carrying conn, so interceptors
// further down (and the caller inspecting the final chain via
// Chain.Connection) can see which connection served the exchange.
func (c *Chain) WithConnection(conn Connection) *Chain {
	n := *c
	n.conn = conn
	return &n
}

// Proceed runs the next interceptor in the chain against req. Each call
// starts a fresh chain positioned at the next interceptor, so an
// interceptor may call it more than once (the retry/redirect and auth
// interceptors do). It panics when called past the end of the list.
func (c *Chain) Proceed(req *Request) (*Response, error) {
	if c.index >= len(c.interceptors) {
		panic("call: Chain.Proceed called past the end of the interceptor list")
	}
	if c.call != nil && c.call.IsCanceled() {
		return nil, c.call.canceledError()
	}
	next := &Chain{
		interceptors:   c.interceptors,
		index:          c.index + 1,
		request:        req,
		connectTimeout: c.connectTimeout,
		readTimeout:    c.readTimeout,
		writeTimeout:   c.writeTimeout,
		callTimeout:    c.callTimeout,
		conn:           c.conn,
		call:           c.call,
	}
	return c.interceptors[c.index].Intercept(next)
}
