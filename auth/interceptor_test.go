package auth

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/headers"
	"github.com/corehttp/corehttp/url"
)

func mustURL(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

type challengeOnceServer struct {
	authorized bool
}

func (s *challengeOnceServer) Intercept(chain *call.Chain) (*call.Response, error) {
	req := chain.Request()
	if _, ok := req.Headers.Get("Authorization"); ok {
		s.authorized = true
		return &call.Response{Request: req, StatusCode: 200, Headers: headers.New(), Body: io.NopCloser(strings.NewReader("ok"))}, nil
	}
	h := headers.New()
	h.Add("WWW-Authenticate", `Basic realm="realm"`)
	return &call.Response{Request: req, StatusCode: 401, Headers: h, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func TestInterceptorRetriesWithBasicCredentials(t *testing.T) {
	srv := &challengeOnceServer{}
	i := &Interceptor{User: NewBasic("alice", "secret")}
	c := call.New(call.NewRequest("GET", mustURL(t, "https://example.com/")), call.Config{Interceptors: []call.Interceptor{i, srv}})

	resp, err := c.Execute()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, srv.authorized)
}

func TestInterceptorPassesThroughNonChallengeResponses(t *testing.T) {
	net := call.InterceptorFunc(func(chain *call.Chain) (*call.Response, error) {
		return &call.Response{Request: chain.Request(), StatusCode: 200, Headers: headers.New(), Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})
	i := &Interceptor{User: NewBasic("a", "b")}
	c := call.New(call.NewRequest("GET", mustURL(t, "https://example.com/")), call.Config{Interceptors: []call.Interceptor{i, net}})
	resp, err := c.Execute()
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestInterceptorGivesUpWithoutAuthenticator(t *testing.T) {
	srv := &challengeOnceServer{}
	i := &Interceptor{}
	c := call.New(call.NewRequest("GET", mustURL(t, "https://example.com/")), call.Config{Interceptors: []call.Interceptor{i, srv}})
	resp, err := c.Execute()
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.False(t, srv.authorized)
}
