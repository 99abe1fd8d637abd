// Package listener defines the event observer hooks a client can attach to
// a call for tracing/metrics, mirroring the external interface's "event
// listener" surface (§6).
package listener

import (
	"net"
	"net/url"
	"time"
)

// Listener receives lifecycle events for one call. Every method has a
// no-op default via NopListener; implementations should embed it to stay
// forward-compatible with new hooks.
type Listener interface {
	CallStart(callID uint64, req CallRequestInfo)
	DNSStart(callID uint64, host string)
	DNSEnd(callID uint64, host string, addrs []net.IP, err error)
	ConnectStart(callID uint64, addr net.Addr)
	ConnectEnd(callID uint64, addr net.Addr, protocol string, err error)
	RequestHeadersEnd(callID uint64)
	ResponseHeadersEnd(callID uint64, statusCode int)
	CallEnd(callID uint64, elapsed time.Duration)
	CallFailed(callID uint64, err error)
}

// CallRequestInfo carries the subset of request data useful to a listener
// without coupling this package to call.Request.
type CallRequestInfo struct {
	Method string
	URL    *url.URL
}

// NopListener implements Listener with no-ops; embed it to pick only the
// hooks you need.
type NopListener struct{}

func (NopListener) CallStart(uint64, CallRequestInfo)                {}
func (NopListener) DNSStart(uint64, string)                          {}
func (NopListener) DNSEnd(uint64, string, []net.IP, error)           {}
func (NopListener) ConnectStart(uint64, net.Addr)                    {}
func (NopListener) ConnectEnd(uint64, net.Addr, string, error)       {}
func (NopListener) RequestHeadersEnd(uint64)                         {}
func (NopListener) ResponseHeadersEnd(uint64, int)                   {}
func (NopListener) CallEnd(uint64, time.Duration)                    {}
func (NopListener) CallFailed(uint64, error)                         {}

// Multi fans a single set of events out to several listeners in order.
type Multi []Listener

func (m Multi) CallStart(id uint64, info CallRequestInfo) {
	for _, l := range m {
		l.CallStart(id, info)
	}
}
func (m Multi) DNSStart(id uint64, host string) {
	for _, l := range m {
		l.DNSStart(id, host)
	}
}
func (m Multi) DNSEnd(id uint64, host string, addrs []net.IP, err error) {
	for _, l := range m {
		l.DNSEnd(id, host, addrs, err)
	}
}
func (m Multi) ConnectStart(id uint64, addr net.Addr) {
	for _, l := range m {
		l.ConnectStart(id, addr)
	}
}
func (m Multi) ConnectEnd(id uint64, addr net.Addr, protocol string, err error) {
	for _, l := range m {
		l.ConnectEnd(id, addr, protocol, err)
	}
}
func (m Multi) RequestHeadersEnd(id uint64) {
	for _, l := range m {
		l.RequestHeadersEnd(id)
	}
}
func (m Multi) ResponseHeadersEnd(id uint64, statusCode int) {
	for _, l := range m {
		l.ResponseHeadersEnd(id, statusCode)
	}
}
func (m Multi) CallEnd(id uint64, elapsed time.Duration) {
	for _, l := range m {
		l.CallEnd(id, elapsed)
	}
}
func (m Multi) CallFailed(id uint64, err error) {
	for _, l := range m {
		l.CallFailed(id, err)
	}
}
