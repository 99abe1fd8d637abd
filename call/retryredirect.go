package call

import (
	"strings"

	"github.com/corehttp/corehttp/cherr"
)

// MaxFollowUps is the limit on redirects/retries combined, per §4.1.
const MaxFollowUps = 20

// RouteFailureProbe reports whether another route exists for the request's
// address, and whether the current route's failure was a proxy-selector
// failure — both are retry preconditions in §4.1.
type RouteFailureProbe interface {
	AnotherRouteExists(req *Request) bool
	WasProxySelectorFailure(err error) bool
}

// RetryRedirectInterceptor implements §4.1's retry and redirect policy: it
// retries recoverable connect/first-read failures on another route, and
// follows 300/301/302/303/307/308 responses, honoring MaxFollowUps,
// replayability, and cross-scheme/cross-host rules.
type RetryRedirectInterceptor struct {
	RetryOnConnectionFailure bool
	FollowRedirects          bool
	FollowSSLRedirects       bool // allow https->http or http->https
	Probe                    RouteFailureProbe
}

func (ri *RetryRedirectInterceptor) Intercept(chain *Chain) (*Response, error) {
	req := chain.Request()
	followUps := 0
	var priorResponse *Response

	for {
		if chain.Call() != nil && chain.Call().IsCanceled() {
			return nil, cherr.Canceled()
		}

		resp, err := chain.Proceed(req)
		if err != nil {
			if ri.shouldRetryAfterFailure(req, err) && followUps < MaxFollowUps {
				followUps++
				continue
			}
			return nil, err
		}

		if priorResponse != nil {
			resp.PriorResponse = priorResponse
		}

		ok, nextReq := ri.followUp(req, resp)
		if !ok {
			return resp, nil
		}
		followUps++
		if followUps > MaxFollowUps {
			return nil, cherr.New(cherr.KindProtocol, "too many follow-ups", nil)
		}
		priorResponse = stripBody(resp)
		req = nextReq
	}
}

func (ri *RetryRedirectInterceptor) shouldRetryAfterFailure(req *Request, err error) bool {
	if !ri.RetryOnConnectionFailure {
		return false
	}
	if !req.IsReplayable() {
		return false
	}
	sentBytes := false // connect/first-read failures, by definition, precede any bytes sent
	if !cherr.Retryable(err, sentBytes) {
		return false
	}
	if ri.Probe == nil {
		return true
	}
	return ri.Probe.AnotherRouteExists(req) || ri.Probe.WasProxySelectorFailure(err)
}

// followUp returns the request to reissue for a redirect response, or nil
// if resp should be returned as-is.
func (ri *RetryRedirectInterceptor) followUp(req *Request, resp *Response) (bool, *Request) {
	if !ri.FollowRedirects || !resp.IsRedirect() {
		return false, nil
	}
	location, ok := resp.Headers.Get("Location")
	if !ok {
		return false, nil
	}
	newURL, err := req.URL.ResolveReference(location)
	if err != nil {
		return false, nil
	}

	if newURL.Scheme.IsTLS() != req.URL.Scheme.IsTLS() && !ri.FollowSSLRedirects {
		return false, nil
	}

	method := req.Method
	var newBody = req.Body
	switch resp.StatusCode {
	case 303:
		if method != "PROPFIND" {
			method = "GET"
			newBody = nil
		}
	case 307, 308:
		if !req.IsReplayable() {
			return false, nil
		}
	default:
		if method == "POST" {
			method = "GET"
			newBody = nil
		}
	}

	nreq := req.WithURL(newURL).WithMethod(method)
	if newBody == nil {
		nreq = nreq.WithBody(nil)
	}

	if !strings.EqualFold(newURL.Host, req.URL.Host) {
		h := nreq.Headers.Clone()
		h.Remove("Authorization")
		nreq = nreq.WithHeaders(h)
	}

	return true, nreq
}

func stripBody(resp *Response) *Response {
	c := *resp
	c.Body = nil
	return &c
}
