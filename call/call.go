package call

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/corehttp/corehttp/cherr"
)

// Callback receives the outcome of an enqueued (asynchronous) call.
type Callback interface {
	OnResponse(c *Call, resp *Response)
	OnFailure(c *Call, err error)
}

// CallbackFunc adapts two plain functions to the Callback interface.
type CallbackFunc struct {
	Response func(c *Call, resp *Response)
	Failure  func(c *Call, err error)
}

func (f CallbackFunc) OnResponse(c *Call, resp *Response) {
	if f.Response != nil {
		f.Response(c, resp)
	}
}

func (f CallbackFunc) OnFailure(c *Call, err error) {
	if f.Failure != nil {
		f.Failure(c, err)
	}
}

// Config is the subset of client configuration a Call needs to build its
// interceptor chain and timeout budgets.
type Config struct {
	Interceptors  []Interceptor
	ConnectTimeout, ReadTimeout, WriteTimeout, CallTimeout time.Duration
}

// Call is a one-shot execution of a Request. It must not be reused: create
// a new Call (via Client.NewCall in the wiring layer) per attempt.
type Call struct {
	original *Request
	cfg      Config

	canceled  atomic.Bool
	executed  atomic.Bool
	mu        sync.Mutex
	conn      Connection
}

// New constructs a Call for req using cfg's interceptor chain and timeouts.
func New(req *Request, cfg Config) *Call {
	return &Call{original: req, cfg: cfg}
}

// Request returns the original, unmodified request.
func (c *Call) Request() *Request { return c.original }

// IsCanceled reports whether Cancel has been called.
func (c *Call) IsCanceled() bool { return c.canceled.Load() }

// Cancel marks the call canceled. Idempotent. If the call is connected,
// the connect/call-server interceptors observe IsCanceled() at their next
// suspension point and tear the exchange down (RST_STREAM for HTTP/2,
// socket close for HTTP/1).
func (c *Call) Cancel() {
	c.canceled.Store(true)
}

func (c *Call) canceledError() error {
	return cherr.Canceled()
}

// Execute runs the call synchronously, blocking until response headers are
// ready. The caller must close the returned response's body. Execute may
// be called at most once per Call.
func (c *Call) Execute() (*Response, error) {
	if c.executed.Swap(true) {
		panic("call: Execute (or Enqueue) already called on this Call")
	}
	if c.canceled.Load() {
		return nil, c.canceledError()
	}
	chain := NewChain(c.cfg.Interceptors, c.original, c, c.cfg.ConnectTimeout, c.cfg.ReadTimeout, c.cfg.WriteTimeout, c.cfg.CallTimeout)
	return chain.Proceed(c.original)
}

// SetConnection records which connection this call is pinned to, so a
// subsequent acquisition attempt (§4.3 acquisition order, step 1) can try
// to reuse it first.
func (c *Call) SetConnection(conn Connection) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// PinnedConnection returns the connection this call was last bound to, or
// nil.
func (c *Call) PinnedConnection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
