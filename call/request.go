// Package call implements the call execution pipeline: the Request and
// Response data model, the Chain/Interceptor machinery, and the
// application-facing Call type (execute / enqueue / cancel).
package call

import (
	"context"

	"github.com/corehttp/corehttp/body"
	"github.com/corehttp/corehttp/headers"
	"github.com/corehttp/corehttp/url"
)

// Request is one HTTP request: method, URL, headers and an optional body.
type Request struct {
	Method  string
	URL     *url.URL
	Headers *headers.Headers
	Body    body.Body

	// tags carries per-call metadata (deadlines, cache control overrides,
	// listener correlation IDs) set with Tag.
	tags map[any]any
}

// NewRequest builds a Request with an empty header list and no body.
func NewRequest(method string, u *url.URL) *Request {
	return &Request{Method: method, URL: u, Headers: headers.New(), Body: body.Empty}
}

// WithBody returns a copy of r carrying b as its body.
func (r *Request) WithBody(b body.Body) *Request {
	c := r.clone()
	c.Body = b
	return c
}

// WithURL returns a copy of r retargeted at u (used by the redirect
// interceptor).
func (r *Request) WithURL(u *url.URL) *Request {
	c := r.clone()
	c.URL = u
	return c
}

// WithMethod returns a copy of r with a different method (e.g. the 303
// See-Other -> GET conversion).
func (r *Request) WithMethod(method string) *Request {
	c := r.clone()
	c.Method = method
	return c
}

// WithHeaders returns a copy of r with h as its header list.
func (r *Request) WithHeaders(h *headers.Headers) *Request {
	c := r.clone()
	c.Headers = h
	return c
}

func (r *Request) clone() *Request {
	c := *r
	c.Headers = r.Headers.Clone()
	if r.tags != nil {
		c.tags = make(map[any]any, len(r.tags))
		for k, v := range r.tags {
			c.tags[k] = v
		}
	}
	return &c
}

// Tag attaches an arbitrary value under key, returning a copy of r.
func (r *Request) Tag(key, value any) *Request {
	c := r.clone()
	if c.tags == nil {
		c.tags = make(map[any]any)
	}
	c.tags[key] = value
	return c
}

// TagValue retrieves a value previously attached with Tag.
func (r *Request) TagValue(key any) (any, bool) {
	if r.tags == nil {
		return nil, false
	}
	v, ok := r.tags[key]
	return v, ok
}

// IsReplayable reports whether the request body can be resent: required
// before honoring a 307/308 redirect or retrying after a connect failure.
func (r *Request) IsReplayable() bool {
	return r.Body == nil || !r.Body.IsOneShot()
}

type ctxKey int

const requestContextKey ctxKey = 0

// WithContext attaches ctx to the request, retrievable with Context.
func (r *Request) WithContext(ctx context.Context) *Request {
	return r.Tag(requestContextKey, ctx)
}

// Context returns the request's context, or context.Background() if none
// was attached.
func (r *Request) Context() context.Context {
	if v, ok := r.TagValue(requestContextKey); ok {
		return v.(context.Context)
	}
	return context.Background()
}
