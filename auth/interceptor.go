package auth

import (
	"github.com/corehttp/corehttp/call"
)

// maxAuthAttempts bounds retries per exchange so a server that keeps
// re-challenging can't loop the call forever.
const maxAuthAttempts = 3

// Interceptor retries a 401 (or 407, when Proxy is set) response with
// credentials from Authenticator, mirroring the retry-interceptor pattern
// used elsewhere in the call pipeline.
type Interceptor struct {
	User  Authenticator
	Proxy Authenticator
}

func (i *Interceptor) Intercept(chain *call.Chain) (*call.Response, error) {
	req := chain.Request()
	resp, err := chain.Proceed(req)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		var authenticator Authenticator
		var headerField string
		switch resp.StatusCode {
		case 401:
			authenticator, headerField = i.User, "WWW-Authenticate"
		case 407:
			authenticator, headerField = i.Proxy, "Proxy-Authenticate"
		default:
			return resp, nil
		}
		if authenticator == nil {
			return resp, nil
		}

		challenges := ParseChallenges(resp.Headers.Values(headerField))
		if len(challenges) == 0 {
			return resp, nil
		}
		creds, ok := authenticator.Authenticate(challenges, Request{Method: req.Method, URI: req.URL.RequestTarget()}, resp.StatusCode == 407)
		if !ok {
			return resp, nil
		}

		h := req.Headers.Clone()
		h.Set(creds.Header, creds.Value)
		retryReq := req.WithHeaders(h)

		_ = resp.Close()
		resp, err = chain.Proceed(retryReq)
		if err != nil {
			return nil, err
		}
		req = retryReq
	}
	return resp, nil
}
