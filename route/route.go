// Package route implements the route planner (§4.3): proxy resolution, DNS
// lookup with IPv4/IPv6 interleaving, and fast-fallback ("happy eyeballs")
// connection establishment across candidate socket addresses.
package route

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/corehttp/corehttp/url"
)

// ProxyKind distinguishes how a Route's proxy (if any) is used.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyHTTP           // CONNECT tunnel
	ProxySOCKS
)

// Proxy describes a single proxy hop.
type Proxy struct {
	Kind ProxyKind
	Addr string // host:port
}

// Address identifies a pool-compatible destination by host, port, TLS
// config, protocol preference and proxy. It does not carry a DNS
// resolver, socket options, connection specs or a proxy authenticator.
// Key compares host, port, whether TLS is used, and the proxy (§3).
type Address struct {
	Host      string
	Port      int
	TLSConfig *tls.Config // nil for plaintext
	Protocols []string    // ordered preference, e.g. ["h2", "http/1.1"]
	Proxy     *Proxy
}

// Key returns a string uniquely identifying pool-compatible Addresses.
func (a *Address) Key() string {
	tlsTag := "plain"
	if a.TLSConfig != nil {
		tlsTag = "tls"
	}
	proxyTag := "direct"
	if a.Proxy != nil {
		proxyTag = fmt.Sprintf("%d:%s", a.Proxy.Kind, a.Proxy.Addr)
	}
	return fmt.Sprintf("%s:%d|%s|%s", a.Host, a.Port, tlsTag, proxyTag)
}

// Route is a (address, socket-address, proxy) tuple identifying where and
// how to connect.
type Route struct {
	Address      *Address
	SocketAddr   string // resolved ip:port
	Proxy        *Proxy
}

// Selector resolves a proxy for a given URL, mirroring a user-supplied
// per-URL proxy selector (§6). Returning (nil, nil) means direct.
type Selector interface {
	Select(u *url.URL) (*Proxy, error)
}

// DirectSelector always returns no proxy.
type DirectSelector struct{}

func (DirectSelector) Select(*url.URL) (*Proxy, error) { return nil, nil }

// StaticSelector always returns the same proxy (or none, if Proxy is nil).
type StaticSelector struct{ Proxy *Proxy }

func (s StaticSelector) Select(*url.URL) (*Proxy, error) { return s.Proxy, nil }

// Resolver performs DNS lookups. net.DefaultResolver satisfies this
// interface; DNS resolution itself is an external collaborator per §1.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Planner resolves a URL to an ordered sequence of candidate Routes and
// connects with fast-fallback, preferring previously-successful routes.
type Planner struct {
	Selector Selector
	Resolver Resolver

	successMu sync.Mutex
	success   map[string]string // address key -> socket addr, guarded by successMu
	FallbackGap time.Duration     // default 250ms
}

// NewPlanner builds a Planner. A nil Selector defaults to direct
// connections; a nil Resolver defaults to net.DefaultResolver.
func NewPlanner(sel Selector, res Resolver) *Planner {
	if sel == nil {
		sel = DirectSelector{}
	}
	if res == nil {
		res = net.DefaultResolver
	}
	return &Planner{Selector: sel, Resolver: res, success: make(map[string]string), FallbackGap: 250 * time.Millisecond}
}

// Plan resolves u into an ordered list of candidate Routes: proxy
// resolution, then per-candidate address resolution, with any previously
// successful route moved to the front.
func (p *Planner) Plan(ctx context.Context, u *url.URL, protocols []string) ([]*Route, error) {
	px, err := p.Selector.Select(u)
	if err != nil {
		return nil, fmt.Errorf("route: proxy selector: %w", err)
	}

	addr := &Address{Host: u.Host, Port: u.Port, Protocols: protocols, Proxy: px}
	if u.Scheme.IsTLS() {
		addr.TLSConfig = &tls.Config{ServerName: u.Host}
	}

	var socketAddrs []string
	switch {
	case px != nil && (px.Kind == ProxyHTTP || px.Kind == ProxySOCKS):
		// For an HTTP CONNECT proxy or a SOCKS proxy, the socket address is
		// the proxy's own address; DNS for the origin happens inside the
		// tunnel (CONNECT) or at the SOCKS server itself.
		socketAddrs = []string{px.Addr}
	default:
		ips, err := p.Resolver.LookupIPAddr(ctx, u.Host)
		if err != nil {
			return nil, fmt.Errorf("route: dns lookup %s: %w", u.Host, err)
		}
		socketAddrs = interleaveIPv6IPv4(ips, u.Port)
	}

	routes := make([]*Route, 0, len(socketAddrs))
	for _, sa := range socketAddrs {
		routes = append(routes, &Route{Address: addr, SocketAddr: sa, Proxy: px})
	}

	p.successMu.Lock()
	preferred, ok := p.success[addr.Key()]
	p.successMu.Unlock()
	if ok {
		sortPreferred(routes, preferred)
	}
	return routes, nil
}

// MarkSuccess records that route connected successfully, so future Plan
// calls for the same Address prefer it first.
func (p *Planner) MarkSuccess(r *Route) {
	p.successMu.Lock()
	p.success[r.Address.Key()] = r.SocketAddr
	p.successMu.Unlock()
}

func sortPreferred(routes []*Route, preferredAddr string) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].SocketAddr == preferredAddr && routes[j].SocketAddr != preferredAddr
	})
}

// interleaveIPv6IPv4 orders resolved addresses alternating address
// families (IPv6 first), matching "IPv6/IPv4 interleaved" from §4.3.
func interleaveIPv6IPv4(ips []net.IPAddr, port int) []string {
	var v6, v4 []string
	for _, ip := range ips {
		addr := net.JoinHostPort(ip.IP.String(), fmt.Sprint(port))
		if ip.IP.To4() == nil {
			v6 = append(v6, addr)
		} else {
			v4 = append(v4, addr)
		}
	}
	out := make([]string, 0, len(v6)+len(v4))
	for i := 0; i < len(v6) || i < len(v4); i++ {
		if i < len(v6) {
			out = append(out, v6[i])
		}
		if i < len(v4) {
			out = append(out, v4[i])
		}
	}
	return out
}

// SOCKSDialer returns a proxy.Dialer for px, using golang.org/x/net/proxy
// (the domain dependency backing §6's "SOCKS" proxy kind).
func SOCKSDialer(px *Proxy, forward proxy.Dialer) (proxy.Dialer, error) {
	return proxy.SOCKS5("tcp", px.Addr, nil, forward)
}
