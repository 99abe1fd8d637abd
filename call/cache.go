package call

import (
	"io"
	"time"

	"github.com/corehttp/corehttp/headers"
)

// Cache is the interface the cache interceptor uses to consult and
// populate the disk LRU cache (diskcache.Store satisfies this at the
// wiring layer, keeping the call package free of a diskcache import).
type Cache interface {
	Get(key string) (*Response, bool)
	Put(key string, resp *Response) (io.WriteCloser, error)
	Remove(key string)
}

// Strategy is the outcome of consulting the cache for a request, per
// §4.6's "Cache interceptor policy": serve from cache, validate
// conditionally, forward to network, or refuse (cache-only miss).
type Strategy struct {
	NetworkRequest *Request
	CacheResponse  *Response
}

// CacheInterceptor implements the RFC 7234 subset described in §4.6: GET
// and QUERY are cacheable; POST/PATCH/PUT/DELETE/MOVE invalidate the
// cached entry for the URL.
type CacheInterceptor struct {
	Cache Cache
	Now   func() time.Time
}

func (ci *CacheInterceptor) now() time.Time {
	if ci.Now != nil {
		return ci.Now()
	}
	return time.Now()
}

func cacheKey(req *Request) string {
	return req.Method + " " + req.URL.String()
}

func isCacheable(method string) bool {
	switch method {
	case "GET", "QUERY":
		return true
	default:
		return false
	}
}

func invalidates(method string) bool {
	switch method {
	case "POST", "PATCH", "PUT", "DELETE", "MOVE":
		return true
	default:
		return false
	}
}

func (ci *CacheInterceptor) Intercept(chain *Chain) (*Response, error) {
	req := chain.Request()
	if ci.Cache == nil {
		return chain.Proceed(req)
	}

	key := cacheKey(req)
	if invalidates(req.Method) {
		ci.Cache.Remove(key)
		return chain.Proceed(req)
	}
	if !isCacheable(req.Method) {
		return chain.Proceed(req)
	}

	cached, hit := ci.Cache.Get(key)
	strategy := computeStrategy(req, cached, hit, ci.now())

	if strategy.NetworkRequest == nil {
		if strategy.CacheResponse != nil {
			resp := *strategy.CacheResponse
			resp.CacheResponse = strategy.CacheResponse
			resp.NetworkResponse = nil
			return &resp, nil
		}
		return gatewayTimeoutResponse(req), nil
	}

	netResp, err := chain.Proceed(strategy.NetworkRequest)
	if err != nil {
		if strategy.CacheResponse != nil {
			return strategy.CacheResponse, nil
		}
		return nil, err
	}

	if netResp.StatusCode == 304 && strategy.CacheResponse != nil {
		merged := mergeHeaders(strategy.CacheResponse, netResp)
		ci.store(key, merged)
		merged.NetworkResponse = netResp
		merged.CacheResponse = strategy.CacheResponse
		return merged, nil
	}

	netResp.NetworkResponse = stripBody(netResp)
	ci.store(key, netResp)
	return netResp, nil
}

func (ci *CacheInterceptor) store(key string, resp *Response) {
	w, err := ci.Cache.Put(key, resp)
	if err != nil || w == nil {
		return
	}
	if resp.Body != nil {
		teed := io.TeeReader(resp.Body, w)
		resp.Body = teeCloser{teed, resp.Body, w}
	} else {
		_ = w.Close()
	}
}

// computeStrategy decides whether to serve from cache, revalidate, or go to
// network, per §4.6.
func computeStrategy(req *Request, cached *Response, hit bool, now time.Time) Strategy {
	onlyIfCached := false
	if cc, ok := req.Headers.Get("Cache-Control"); ok && containsDirective(cc, "only-if-cached") {
		onlyIfCached = true
	}
	noCache := false
	if cc, ok := req.Headers.Get("Cache-Control"); ok && containsDirective(cc, "no-cache") {
		noCache = true
	}

	if !hit || cached == nil {
		if onlyIfCached {
			return Strategy{}
		}
		return Strategy{NetworkRequest: req}
	}

	if noCache {
		return Strategy{NetworkRequest: conditionalRequest(req, cached), CacheResponse: cached}
	}

	freshness := freshnessOf(cached, now)
	if freshness && !onlyIfCached {
		return Strategy{CacheResponse: cached}
	}
	if onlyIfCached {
		return Strategy{CacheResponse: cached}
	}
	return Strategy{NetworkRequest: conditionalRequest(req, cached), CacheResponse: cached}
}

func conditionalRequest(req *Request, cached *Response) *Request {
	h := req.Headers.Clone()
	if etag, ok := cached.Headers.Get("ETag"); ok {
		h.Set("If-None-Match", etag)
	}
	if lm, ok := cached.Headers.Get("Last-Modified"); ok {
		h.Set("If-Modified-Since", lm)
	}
	return req.WithHeaders(h)
}

func freshnessOf(resp *Response, now time.Time) bool {
	dateStr, ok := resp.Headers.Get("Date")
	if !ok {
		return false
	}
	date, err := time.Parse(time.RFC1123, dateStr)
	if err != nil {
		return false
	}
	age := now.Sub(date)

	if cc, ok := resp.Headers.Get("Cache-Control"); ok {
		if maxAge, ok := directiveValue(cc, "max-age"); ok {
			if d, err := time.ParseDuration(maxAge + "s"); err == nil {
				return age < d
			}
		}
		if containsDirective(cc, "no-store") || containsDirective(cc, "no-cache") {
			return false
		}
	}
	if expiresStr, ok := resp.Headers.Get("Expires"); ok {
		if expires, err := time.Parse(time.RFC1123, expiresStr); err == nil {
			return now.Before(expires)
		}
	}
	return false
}

func containsDirective(cc, name string) bool {
	for _, part := range splitComma(cc) {
		if part == name || hasPrefixDirective(part, name) {
			return true
		}
	}
	return false
}

func hasPrefixDirective(part, name string) bool {
	return len(part) > len(name) && part[:len(name)] == name && part[len(name)] == '='
}

func directiveValue(cc, name string) (string, bool) {
	for _, part := range splitComma(cc) {
		if hasPrefixDirective(part, name) {
			return part[len(name)+1:], true
		}
	}
	return "", false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			part := trimSpace(s[start:i])
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func mergeHeaders(cached, network *Response) *Response {
	merged := *cached
	h := cached.Headers.Clone()
	hopByHop := map[string]bool{
		"Connection": true, "Keep-Alive": true, "Proxy-Authenticate": true,
		"Proxy-Authorization": true, "Te": true, "Trailers": true,
		"Transfer-Encoding": true, "Upgrade": true,
	}
	network.Headers.Range(func(name, value string) {
		if hopByHop[name] {
			return
		}
		h.Remove(name)
	})
	network.Headers.Range(func(name, value string) {
		if hopByHop[name] {
			return
		}
		h.Add(name, value)
	})
	merged.Headers = h
	return &merged
}

func gatewayTimeoutResponse(req *Request) *Response {
	return &Response{
		Request:       req,
		Protocol:      "http/1.1",
		StatusCode:    504,
		StatusMessage: "Gateway Timeout",
		Headers:       headers.New(),
	}
}

// teeCloser tees reads into the in-progress cache editor write stream,
// closing both the original body and the editor when the caller is done.
type teeCloser struct {
	io.Reader
	body io.Closer
	w    io.WriteCloser
}

func (t teeCloser) Close() error {
	werr := t.w.Close()
	berr := t.body.Close()
	if berr != nil {
		return berr
	}
	return werr
}
