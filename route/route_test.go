package route

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	net.Conn
	closed atomic.Bool
}

func (f *fakeConn) Close() error { f.closed.Store(true); return nil }

type scriptedDialer struct {
	delays map[string]time.Duration
	fail   map[string]bool
}

func (s scriptedDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := s.delays[addr]
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.fail[addr] {
		return nil, errors.New("refused")
	}
	return &fakeConn{}, nil
}

func TestFastFallbackPrefersFirstRouteWhenFast(t *testing.T) {
	routes := []*Route{{SocketAddr: "10.0.0.1:443"}, {SocketAddr: "10.0.0.2:443"}}
	d := scriptedDialer{delays: map[string]time.Duration{"10.0.0.1:443": time.Millisecond}}
	conn, r, err := ConnectFastFallback(context.Background(), d, routes, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:443", r.SocketAddr)
	assert.NotNil(t, conn)
}

func TestFastFallbackFallsBackWhenFirstSlow(t *testing.T) {
	routes := []*Route{{SocketAddr: "10.0.0.1:443"}, {SocketAddr: "10.0.0.2:443"}}
	d := scriptedDialer{delays: map[string]time.Duration{
		"10.0.0.1:443": 500 * time.Millisecond,
		"10.0.0.2:443": time.Millisecond,
	}}
	conn, r, err := ConnectFastFallback(context.Background(), d, routes, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:443", r.SocketAddr)
	assert.NotNil(t, conn)
}

func TestFastFallbackAllFail(t *testing.T) {
	routes := []*Route{{SocketAddr: "10.0.0.1:443"}}
	d := scriptedDialer{fail: map[string]bool{"10.0.0.1:443": true}}
	_, _, err := ConnectFastFallback(context.Background(), d, routes, 20*time.Millisecond)
	require.Error(t, err)
}

func TestInterleaveIPv6IPv4(t *testing.T) {
	ips := []net.IPAddr{
		{IP: net.ParseIP("1.2.3.4")},
		{IP: net.ParseIP("::1")},
		{IP: net.ParseIP("1.2.3.5")},
	}
	out := interleaveIPv6IPv4(ips, 443)
	require.Len(t, out, 3)
	assert.Contains(t, out[0], "::1")
}
