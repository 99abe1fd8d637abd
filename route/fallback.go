package route

import (
	"context"
	"net"
	"time"
)

// Dialer opens a raw TCP connection to addr.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// netDialer adapts *net.Dialer.
type netDialer struct{ d *net.Dialer }

func (n netDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return n.d.DialContext(ctx, network, addr)
}

// NewDialer wraps a *net.Dialer (or nil, for defaults) as a Dialer.
func NewDialer(d *net.Dialer) Dialer {
	if d == nil {
		d = &net.Dialer{Timeout: 30 * time.Second}
	}
	return netDialer{d}
}

// fallbackResult carries one attempt's outcome back to the coordinator.
type fallbackResult struct {
	conn net.Conn
	addr string
	err  error
}

// ConnectFastFallback launches staggered connect attempts (one every gap,
// default 250ms) across routes, in order, canceling the losers once the
// first attempt succeeds. The connection pool is not consulted: the
// winner is always returned, even if a compatible pooled connection
// became available meanwhile, and the transport does not check for one.
func ConnectFastFallback(ctx context.Context, dialer Dialer, routes []*Route, gap time.Duration) (net.Conn, *Route, error) {
	if gap <= 0 {
		gap = 250 * time.Millisecond
	}
	if len(routes) == 0 {
		return nil, nil, errNoRoutes{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fallbackResult, len(routes))
	launched := 0
	ticker := time.NewTicker(gap)
	defer ticker.Stop()

	launch := func(r *Route) {
		launched++
		go func(r *Route) {
			conn, err := dialer.DialContext(ctx, "tcp", r.SocketAddr)
			results <- fallbackResult{conn: conn, addr: r.SocketAddr, err: err}
		}(r)
	}

	launch(routes[0])
	next := 1
	pending := 1
	var firstErr error

	for pending > 0 {
		select {
		case res := <-results:
			pending--
			if res.err == nil {
				cancel()
				// Drain any other winners that race in and close them.
				go func() {
					for extra := range drainRemaining(results, pending) {
						if extra.conn != nil {
							_ = extra.conn.Close()
						}
					}
				}()
				route := findRoute(routes, res.addr)
				return res.conn, route, nil
			}
			if firstErr == nil {
				firstErr = res.err
			}
			if next < len(routes) {
				launch(routes[next])
				next++
				pending++
			}
		case <-ctx.Done():
			// Attempts still in flight may yet succeed after we give up on
			// them here; close whatever they return instead of leaking the
			// socket.
			go func() {
				for extra := range drainRemaining(results, pending) {
					if extra.conn != nil {
						_ = extra.conn.Close()
					}
				}
			}()
			return nil, nil, ctx.Err()
		case <-ticker.C:
			if next < len(routes) {
				launch(routes[next])
				next++
				pending++
			}
		}
	}
	if firstErr == nil {
		firstErr = errAllRoutesFailed{}
	}
	return nil, nil, firstErr
}

func drainRemaining(results chan fallbackResult, n int) chan fallbackResult {
	out := make(chan fallbackResult, n)
	go func() {
		for i := 0; i < n; i++ {
			out <- <-results
		}
		close(out)
	}()
	return out
}

func findRoute(routes []*Route, socketAddr string) *Route {
	for _, r := range routes {
		if r.SocketAddr == socketAddr {
			return r
		}
	}
	return routes[0]
}

type errNoRoutes struct{}

func (errNoRoutes) Error() string { return "route: no candidate routes" }

type errAllRoutesFailed struct{}

func (errAllRoutesFailed) Error() string { return "route: all candidate routes failed to connect" }
