package corehttp

import (
	"fmt"
	"time"

	"github.com/corehttp/corehttp/auth"
	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/diskcache"
	"github.com/corehttp/corehttp/dispatcher"
	"github.com/corehttp/corehttp/pool"
	"github.com/corehttp/corehttp/route"
)

// Client is one coherent HTTP client built from a Config: a shared
// connection pool, route planner, dispatcher, and the full interceptor
// chain from §4.1 (retry/redirect, bridge, decode, caller interceptors,
// cache, auth, network — outermost to innermost).
type Client struct {
	cfg        Config
	pool       *pool.Pool
	planner    *route.Planner
	dispatcher *dispatcher.Dispatcher
	cache      *diskcache.Cache
	chain      []call.Interceptor
}

// NewClient wires cfg's components together into a Client.
func NewClient(cfg Config) (*Client, error) {
	p := pool.New(cfg.ConnectionKeepAlive, cfg.MaxIdleConnections)
	planner := route.NewPlanner(cfg.Selector, cfg.Resolver)

	var diskCache *diskcache.Cache
	var cacheInterceptor *call.CacheInterceptor
	if cfg.CacheDir != "" {
		maxBytes := cfg.CacheMaxBytes
		if maxBytes <= 0 {
			maxBytes = DefaultCacheMaxBytes
		}
		c, err := diskcache.Open(cfg.CacheDir, "1", maxBytes)
		if err != nil {
			return nil, fmt.Errorf("corehttp: opening cache dir %s: %w", cfg.CacheDir, err)
		}
		diskCache = c
		cacheInterceptor = &call.CacheInterceptor{Cache: diskcache.NewStore(c)}
	}

	tp := newTransport(cfg, planner, p)

	chain := make([]call.Interceptor, 0, 6+len(cfg.Interceptors))
	chain = append(chain, &call.RetryRedirectInterceptor{
		RetryOnConnectionFailure: cfg.RetryOnConnectionFailure,
		FollowRedirects:          cfg.FollowRedirects,
		FollowSSLRedirects:       cfg.FollowSSLRedirects,
	})
	chain = append(chain, &call.BridgeInterceptor{UserAgent: cfg.UserAgent, Jar: cfg.Jar})
	chain = append(chain, &call.DecodeInterceptor{MaxBodySize: cfg.MaxBodySize, CharsetDetectDisabled: cfg.CharsetDetectDisabled})
	chain = append(chain, cfg.Interceptors...)
	if cacheInterceptor != nil {
		chain = append(chain, cacheInterceptor)
	}
	if cfg.UserAuthenticator != nil || cfg.ProxyAuthenticator != nil {
		chain = append(chain, &auth.Interceptor{User: cfg.UserAuthenticator, Proxy: cfg.ProxyAuthenticator})
	}
	chain = append(chain, tp)

	return &Client{
		cfg:        cfg,
		pool:       p,
		planner:    planner,
		dispatcher: dispatcher.New(cfg.MaxConcurrentCalls, cfg.MaxConcurrentPerHost),
		cache:      diskCache,
		chain:      chain,
	}, nil
}

// NewCall builds a Call for req using the client's interceptor chain and
// timeout budgets. The returned Call must be executed or enqueued exactly
// once.
func (c *Client) NewCall(req *call.Request) *call.Call {
	return call.New(req, call.Config{
		Interceptors:   c.chain,
		ConnectTimeout: c.cfg.ConnectTimeout,
		ReadTimeout:    c.cfg.ReadTimeout,
		WriteTimeout:   c.cfg.WriteTimeout,
		CallTimeout:    c.cfg.CallTimeout,
	})
}

// Do executes req synchronously, blocking until response headers arrive.
// The caller must close the returned response's body.
func (c *Client) Do(req *call.Request) (*call.Response, error) {
	return c.NewCall(req).Execute()
}

// Enqueue schedules req for asynchronous execution on the client's
// dispatcher; cb fires on completion.
func (c *Client) Enqueue(req *call.Request, cb call.Callback) {
	c.dispatcher.Enqueue(c.NewCall(req), req.URL.Host, cb)
}

// PruneIdleConnections evicts pool connections idle beyond the configured
// keep-alive and enforces the max-idle-connections bound, returning the
// delay until the next connection becomes eligible for eviction.
func (c *Client) PruneIdleConnections() time.Duration {
	return c.pool.PruneAndNextEvictionNanos(time.Now())
}

// Close shuts down the dispatcher (waiting for in-flight calls) and the
// on-disk cache, if any.
func (c *Client) Close(drain time.Duration) error {
	c.dispatcher.Shutdown(drain)
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
