package call

import (
	"io"

	"github.com/corehttp/corehttp/headers"
)

// Handshake carries TLS connection details, surfaced on Response per the
// data model ("handshake?"). Kept minimal here; tlsdial.Handshake
// satisfies this via duck typing at the wiring layer.
type Handshake struct {
	TLSVersion  string
	CipherSuite string
	PeerCerts   [][]byte
}

// Response is one HTTP response, possibly chained to the prior response in
// a redirect sequence or to the cache/network response it was derived from.
type Response struct {
	Request       *Request
	Protocol      string // "http/1.1", "h2", "h2c"
	StatusCode    int
	StatusMessage string
	Headers       *headers.Headers
	Body          io.ReadCloser

	Handshake *Handshake

	SentAtMillis     int64
	ReceivedAtMillis int64

	CacheResponse   *Response
	NetworkResponse *Response
	PriorResponse   *Response
}

// IsSuccessful reports whether StatusCode is in [200, 300).
func (r *Response) IsSuccessful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports whether StatusCode is one of the follow-up codes.
func (r *Response) IsRedirect() bool {
	switch r.StatusCode {
	case 300, 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

// HeaderValue is a convenience accessor over Headers.Get.
func (r *Response) HeaderValue(name string) (string, bool) {
	return r.Headers.Get(name)
}

// Close closes the response body, guarding against a nil body (which
// occurs for HEAD responses and redirects the call synthesizes itself).
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// WithBody returns a shallow copy of r with a different body, used by the
// bridge interceptor when substituting a gunzip reader.
func (r *Response) WithBody(b io.ReadCloser) *Response {
	c := *r
	c.Body = b
	return &c
}

// WithHeaders returns a shallow copy of r with a different header list.
func (r *Response) WithHeaders(h *headers.Headers) *Response {
	c := *r
	c.Headers = h
	return &c
}
