package corehttp

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/cherr"
	"github.com/corehttp/corehttp/h1"
	"github.com/corehttp/corehttp/h2"
	"github.com/corehttp/corehttp/headers"
	"github.com/corehttp/corehttp/listener"
	"github.com/corehttp/corehttp/pool"
	"github.com/corehttp/corehttp/route"
	"github.com/corehttp/corehttp/tlsdial"
	"github.com/corehttp/corehttp/url"
)

// transport is the innermost interceptor (§4.1): it plans a route,
// acquires or establishes a pooled connection, performs the exchange over
// it, and returns the raw network response. Nothing downstream of it calls
// chain.Proceed again.
type transport struct {
	planner  *route.Planner
	pool     *pool.Pool
	dialer   tlsdial.Dialer
	pinner   *tlsdial.Pinner
	listener listener.Listener
	protocols []string

	nextCallID atomic.Uint64
}

func newTransport(cfg Config, planner *route.Planner, p *pool.Pool) *transport {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &tlsdial.UDialer{}
	}
	lis := cfg.Listener
	if lis == nil {
		lis = listener.NopListener{}
	}
	return &transport{
		planner:   planner,
		pool:      p,
		dialer:    dialer,
		pinner:    cfg.Pinner,
		listener:  lis,
		protocols: cfg.protocols(),
	}
}

// h2Codec and h1Codec attach the TLS handshake record (if any) to a
// pool.Codec without widening the pool.Codec interface itself.
type h2Codec struct {
	*h2.Connection
	record tlsdial.Record
	hasTLS bool
}

type h1Codec struct {
	*h1.Connection
	record tlsdial.Record
	hasTLS bool
}

func (t *transport) Intercept(chain *call.Chain) (*call.Response, error) {
	req := chain.Request()
	callID := t.nextCallID.Add(1)
	t.listener.CallStart(callID, listener.CallRequestInfo{Method: req.Method, URL: toNetURL(req.URL)})

	start := time.Now()
	resp, err := t.exchange(chain, req, callID)
	if err != nil {
		t.listener.CallFailed(callID, err)
		return nil, err
	}
	t.listener.CallEnd(callID, time.Since(start))
	return resp, nil
}

func (t *transport) exchange(chain *call.Chain, req *call.Request, callID uint64) (*call.Response, error) {
	ctx := req.Context()
	addrKey := addressKeyFor(req.URL, t.protocols)

	// §4.3 acquisition order: pinned connection, then a shared multiplexed
	// connection, then an idle exclusive one, then dial fresh.
	if pinned := chain.Call().PinnedConnection(); pinned != nil {
		if pc, ok := pinned.(*pool.Connection); ok && pc.Codec.IsHealthy() {
			return t.runExchange(chain, req, pc, callID)
		}
	}
	if pc := t.pool.AcquireMultiplexed(addrKey); pc != nil {
		return t.runExchange(chain, req, pc, callID)
	}
	if pc := t.pool.AcquireIdleExclusive(addrKey); pc != nil {
		return t.runExchange(chain, req, pc, callID)
	}

	t.listener.DNSStart(callID, req.URL.Host)
	routes, err := t.planner.Plan(ctx, req.URL, t.protocols)
	if err != nil {
		t.listener.DNSEnd(callID, req.URL.Host, nil, err)
		return nil, err
	}
	t.listener.DNSEnd(callID, req.URL.Host, nil, nil)

	pc, r, err := t.establish(ctx, chain, routes, callID)
	if err != nil {
		return nil, err
	}
	t.planner.MarkSuccess(r)
	t.pool.Put(pc)
	return t.runExchange(chain, req, pc, callID)
}

// establish picks how to turn a planned route list into a live
// pool.Connection: raced fast-fallback across same-Address candidates
// (§4.3 "happy eyeballs") when there's no proxy hop to keep in lockstep,
// sequential attempts otherwise (proxy/SOCKS routes share one socket
// address per hop, so there's nothing to race).
func (t *transport) establish(ctx context.Context, chain *call.Chain, routes []*route.Route, callID uint64) (*pool.Connection, *route.Route, error) {
	if len(routes) > 1 && routes[0].Proxy == nil {
		return t.establishFastFallback(ctx, chain, routes, callID)
	}
	return t.establishSequential(ctx, chain, routes, callID)
}

func (t *transport) establishFastFallback(ctx context.Context, chain *call.Chain, routes []*route.Route, callID uint64) (*pool.Connection, *route.Route, error) {
	dialCtx, cancel := connectContext(ctx, chain)
	defer cancel()

	raddr := dialTarget(routes[0])
	t.listener.ConnectStart(callID, raddr)

	conn, r, err := route.ConnectFastFallback(dialCtx, route.NewDialer(nil), routes, t.planner.FallbackGap)
	if err != nil {
		t.listener.ConnectEnd(callID, raddr, "", err)
		return nil, nil, cherr.New(cherr.KindConnect, "dial failed", err)
	}
	pc, err := t.finishConnect(dialCtx, conn, r, callID)
	if err != nil {
		return nil, nil, err
	}
	return pc, r, nil
}

// establishSequential tries routes in order, the only strategy available
// when a proxy hop is involved (CONNECT tunnel or SOCKS): each attempt
// also performs the TLS handshake and codec setup before the next
// candidate is tried, since there's no shared raw dial step to race.
func (t *transport) establishSequential(ctx context.Context, chain *call.Chain, routes []*route.Route, callID uint64) (*pool.Connection, *route.Route, error) {
	var lastErr error
	for _, r := range routes {
		pc, err := t.connect(ctx, chain, r, callID)
		if err != nil {
			lastErr = err
			if !cherr.Retryable(err, false) {
				return nil, nil, err
			}
			continue
		}
		return pc, r, nil
	}
	if lastErr == nil {
		lastErr = cherr.New(cherr.KindConnect, "no routes available", nil)
	}
	return nil, nil, lastErr
}

func connectContext(ctx context.Context, chain *call.Chain) (context.Context, context.CancelFunc) {
	connectDeadline := chain.ConnectTimeout()
	if connectDeadline <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, connectDeadline)
}

// connect dials r (direct, SOCKS, or CONNECT-tunneled), performs TLS when
// the address calls for it, and wraps the result as a pool.Connection
// carrying either an h2Codec or an h1Codec depending on negotiated
// protocol.
func (t *transport) connect(ctx context.Context, chain *call.Chain, r *route.Route, callID uint64) (*pool.Connection, error) {
	dialCtx, cancel := connectContext(ctx, chain)
	defer cancel()

	raddr := dialTarget(r)
	t.listener.ConnectStart(callID, raddr)

	conn, err := t.dialTCP(dialCtx, r)
	if err != nil {
		t.listener.ConnectEnd(callID, raddr, "", err)
		return nil, cherr.New(cherr.KindConnect, "dial failed", err)
	}

	return t.finishConnect(dialCtx, conn, r, callID)
}

// finishConnect performs the TLS handshake (if the address calls for
// one), decides the negotiated protocol, and wraps conn as a pooled
// h2Codec or h1Codec.
func (t *transport) finishConnect(dialCtx context.Context, conn net.Conn, r *route.Route, callID uint64) (*pool.Connection, error) {
	raddr := dialTarget(r)
	protocol := "http/1.1"
	var rec tlsdial.Record
	hasTLS := r.Address.TLSConfig != nil
	if hasTLS {
		cfg := &tlsdial.Config{
			ServerName: r.Address.Host,
			NextProtos: r.Address.Protocols,
			Pinner:     t.pinner,
		}
		tlsConn, record, err := t.dialer.Handshake(dialCtx, conn, cfg)
		if err != nil {
			_ = conn.Close()
			t.listener.ConnectEnd(callID, raddr, "", err)
			return nil, err
		}
		conn = tlsConn
		rec = record
		if rec.NegotiatedProtocol == "h2" {
			protocol = "h2"
		}
	}

	var codec pool.Codec
	if protocol == "h2" {
		h2conn := h2.NewConnection(conn, h2.DialConfig{})
		if err := h2conn.Handshake(); err != nil {
			_ = conn.Close()
			t.listener.ConnectEnd(callID, raddr, protocol, err)
			return nil, cherr.New(cherr.KindProtocol, "h2 handshake failed", err)
		}
		codec = &h2Codec{Connection: h2conn, record: rec, hasTLS: hasTLS}
	} else {
		codec = &h1Codec{Connection: h1.NewConnection(conn), record: rec, hasTLS: hasTLS}
	}

	t.listener.ConnectEnd(callID, raddr, protocol, nil)
	return pool.NewConnection(codec, conn, r), nil
}

// dialTarget reports the socket address ConnectStart/ConnectEnd observe:
// the proxy's address for a tunneled route, the origin's otherwise.
func dialTarget(r *route.Route) net.Addr {
	addr := r.SocketAddr
	if r.Proxy != nil && (r.Proxy.Kind == route.ProxyHTTP || r.Proxy.Kind == route.ProxySOCKS) {
		addr = r.Proxy.Addr
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return &net.TCPAddr{}
	}
	port, _ := strconv.Atoi(portStr)
	return &net.TCPAddr{IP: net.ParseIP(host), Port: port}
}

func (t *transport) dialTCP(ctx context.Context, r *route.Route) (net.Conn, error) {
	var d net.Dialer
	if r.Proxy == nil {
		return d.DialContext(ctx, "tcp", r.SocketAddr)
	}
	switch r.Proxy.Kind {
	case route.ProxySOCKS:
		dialer, err := route.SOCKSDialer(r.Proxy, &d)
		if err != nil {
			return nil, err
		}
		target := net.JoinHostPort(r.Address.Host, strconv.Itoa(r.Address.Port))
		return dialer.Dial("tcp", target)
	case route.ProxyHTTP:
		return t.dialViaConnect(ctx, r, &d)
	default:
		return d.DialContext(ctx, "tcp", r.SocketAddr)
	}
}

// dialViaConnect establishes a TCP connection to the CONNECT proxy, then
// tunnels to the origin via an HTTP CONNECT request.
func (t *transport) dialViaConnect(ctx context.Context, r *route.Route, d *net.Dialer) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", r.Proxy.Addr)
	if err != nil {
		return nil, err
	}
	target := net.JoinHostPort(r.Address.Host, strconv.Itoa(r.Address.Port))
	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", target, target); err != nil {
		_ = conn.Close()
		return nil, err
	}
	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if len(line) < 12 || line[9] != '2' {
		_ = conn.Close()
		return nil, fmt.Errorf("corehttp: CONNECT proxy refused tunnel: %q", line)
	}
	for {
		l, err := br.ReadString('\n')
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if l == "\r\n" || l == "\n" {
			break
		}
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn surfaces bytes the CONNECT handshake's bufio.Reader already
// read past the blank line terminating the proxy's response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

func (t *transport) runExchange(chain *call.Chain, req *call.Request, pc *pool.Connection, callID uint64) (*call.Response, error) {
	chain.Call().SetConnection(pc)
	switch codec := pc.Codec.(type) {
	case *h2Codec:
		return t.runH2(chain, req, pc, codec, callID)
	case *h1Codec:
		return t.runH1(chain, req, pc, codec, callID)
	default:
		return nil, fmt.Errorf("corehttp: unknown pooled codec type %T", pc.Codec)
	}
}

func (t *transport) runH2(chain *call.Chain, req *call.Request, pc *pool.Connection, codec *h2Codec, callID uint64) (*call.Response, error) {
	stream := codec.Connection.OpenStream()

	pseudo := []h2.HeaderField{
		{Name: ":method", Value: req.Method},
		{Name: ":scheme", Value: string(req.URL.Scheme.HTTPEquivalent())},
		{Name: ":authority", Value: req.URL.Authority()},
		{Name: ":path", Value: req.URL.RequestTarget()},
	}

	size := req.Body.ByteSize()
	endStream := size == 0 && !req.Body.IsDuplex()
	if err := stream.WriteRequest(pseudo, req.Headers, nil, endStream); err != nil {
		return nil, cherr.New(cherr.KindIO, "h2 write request headers", err)
	}
	if !endStream {
		if err := req.Body.WriteTo(stream); err != nil {
			_ = stream.RST(h2.ErrCodeCancel)
			return nil, cherr.New(cherr.KindIO, "h2 write request body", err)
		}
		if err := stream.CloseWrite(); err != nil {
			return nil, cherr.New(cherr.KindIO, "h2 close request body", err)
		}
	}
	t.listener.RequestHeadersEnd(callID)

	pseudoResp, h, err := stream.ResponseHeaders()
	if err != nil {
		return nil, cherr.New(cherr.KindProtocol, "h2 read response headers", err)
	}
	status, _ := strconv.Atoi(pseudoResp[":status"])
	t.listener.ResponseHeadersEnd(callID, status)

	resp := &call.Response{
		Request:          req,
		Protocol:         "h2",
		StatusCode:       status,
		Headers:          h,
		Body:             streamBody{stream},
		Handshake:        handshakeFrom(codec.record, codec.hasTLS),
		ReceivedAtMillis: time.Now().UnixMilli(),
	}
	return resp, nil
}

type streamBody struct{ s *h2.Stream }

func (b streamBody) Read(p []byte) (int, error) { return b.s.Body().Read(p) }
func (b streamBody) Close() error                { return nil }

func (t *transport) runH1(chain *call.Chain, req *call.Request, pc *pool.Connection, codec *h1Codec, callID uint64) (*call.Response, error) {
	if !codec.Connection.Acquire() {
		return nil, cherr.New(cherr.KindIO, "h1 connection already in use", nil)
	}
	exchange := codec.Connection.Exchange

	target := req.URL.RequestTarget()
	authority := req.URL.Authority()
	if err := exchange.WriteRequest(req.Method, target, authority, req.Headers); err != nil {
		codec.Connection.Release(false)
		return nil, cherr.New(cherr.KindIO, "h1 write request line", err)
	}

	size := req.Body.ByteSize()
	t.listener.RequestHeadersEnd(callID)

	// Expect: 100-continue (§4.4): flush headers, wait for the server's
	// interim response before committing to send the body. A non-100
	// status line read here is the actual response; skip writing the body.
	var earlyStatusLine string
	if expect, ok := req.Headers.Get("Expect"); ok && strings.EqualFold(expect, "100-continue") && size != 0 {
		if err := exchange.Flush(); err != nil {
			codec.Connection.Release(false)
			return nil, cherr.New(cherr.KindIO, "h1 flush expect-continue headers", err)
		}
		writeTimeout := chain.WriteTimeout()
		if writeTimeout <= 0 {
			writeTimeout = time.Second
		}
		outcome, line, err := h1.AwaitExpectContinue(codec.Connection.Conn(), exchange.Reader(), writeTimeout)
		if err != nil {
			codec.Connection.Release(false)
			return nil, cherr.New(cherr.KindIO, "h1 await 100-continue", err)
		}
		if outcome == h1.ContinueSkipBody {
			earlyStatusLine = line
		}
	}

	var status int
	var msg string
	var err error
	if earlyStatusLine != "" {
		_, _, status, msg, err = h1.ParseStatusLine(earlyStatusLine)
		if err != nil {
			codec.Connection.Release(false)
			return nil, cherr.New(cherr.KindProtocol, "h1 parse early status line", err)
		}
	} else {
		bw := exchange.NewRequestBodyWriter(size)
		if size != 0 {
			if werr := req.Body.WriteTo(bw); werr != nil {
				codec.Connection.Release(false)
				return nil, cherr.New(cherr.KindIO, "h1 write request body", werr)
			}
		}
		if cerr := bw.Close(); cerr != nil {
			codec.Connection.Release(false)
			return nil, cherr.New(cherr.KindIO, "h1 flush request", cerr)
		}
		_, _, status, msg, err = exchange.ReadStatusLine()
		if err != nil {
			codec.Connection.Release(false)
			return nil, cherr.New(cherr.KindIO, "h1 read status line", err)
		}
	}
	h, err := exchange.ReadHeaders()
	if err != nil {
		codec.Connection.Release(false)
		return nil, cherr.New(cherr.KindIO, "h1 read response headers", err)
	}
	t.listener.ResponseHeadersEnd(callID, status)

	kind, length := h1.ChooseResponseBodyKind(req.Method, status, h)
	rawBody := exchange.NewResponseBodyReader(kind, length)
	reusable := kind != h1.BodyUntilClose

	resp := &call.Response{
		Request:          req,
		Protocol:         "http/1.1",
		StatusCode:       status,
		StatusMessage:    msg,
		Headers:          h,
		Body:             &h1ResponseBody{r: rawBody, conn: codec.Connection, reqHeaders: req.Headers, respHeaders: h, reusable: reusable},
		Handshake:        handshakeFrom(codec.record, codec.hasTLS),
		ReceivedAtMillis: time.Now().UnixMilli(),
	}
	return resp, nil
}

// h1ResponseBody tracks whether the body was drained cleanly so Close can
// decide whether the underlying connection may return to the pool
// (h1.KeepAlive, §4.4).
type h1ResponseBody struct {
	r           io.ReadCloser
	conn        *h1.Connection
	reqHeaders  *headers.Headers
	respHeaders *headers.Headers
	reusable    bool
	fullyRead   bool
	ioErr       error
}

func (b *h1ResponseBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.fullyRead = true
	} else if err != nil {
		b.ioErr = err
	}
	return n, err
}

func (b *h1ResponseBody) Close() error {
	_ = b.r.Close()
	keepAlive := b.reusable && h1.KeepAlive(b.reqHeaders, b.respHeaders, b.fullyRead, b.ioErr)
	b.conn.Release(keepAlive)
	return nil
}

func handshakeFrom(rec tlsdial.Record, present bool) *call.Handshake {
	if !present {
		return nil
	}
	peerCerts := make([][]byte, len(rec.PeerCertificates))
	for i, c := range rec.PeerCertificates {
		peerCerts[i] = certRaw(c)
	}
	return &call.Handshake{
		TLSVersion:  tlsVersionName(rec.Version),
		CipherSuite: cipherSuiteName(rec.CipherSuite),
		PeerCerts:   peerCerts,
	}
}

func certRaw(c *x509.Certificate) []byte {
	if c == nil {
		return nil
	}
	return c.Raw
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("0x%04x", v)
	}
}

func cipherSuiteName(id uint16) string {
	return tls.CipherSuiteName(id)
}

// addressKeyFor builds the pool key route.Address.Key gives a direct
// (proxy-less) route to u; connections reached through a proxy are keyed
// with the proxy and are not found under it.
func addressKeyFor(u *url.URL, protocols []string) string {
	tlsTag := "plain"
	if u.Scheme.IsTLS() {
		tlsTag = "tls"
	}
	return fmt.Sprintf("%s:%d|%s|direct", u.Host, u.Port, tlsTag)
}

// toNetURL converts the client's own url.URL into the stdlib net/url.URL
// that the listener package's CallRequestInfo uses, so listener stays
// decoupled from this module's custom URL type.
func toNetURL(u *url.URL) *neturl.URL {
	parsed, err := neturl.Parse(u.String())
	if err != nil {
		return &neturl.URL{Host: u.Host, Path: u.Path}
	}
	return parsed
}
