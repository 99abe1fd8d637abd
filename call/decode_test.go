package call

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/headers"
)

func TestDecodeInterceptorLimitsBodySize(t *testing.T) {
	net := &fakeNetwork{status: 200, body: strings.Repeat("x", 100)}
	d := &DecodeInterceptor{MaxBodySize: 10, CharsetDetectDisabled: true}
	c := New(NewRequest("GET", mustURL(t, "https://example.com/")), Config{Interceptors: []Interceptor{d, net}})
	resp, err := c.Execute()
	require.NoError(t, err)
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 10)
}

func TestDecodeInterceptorSkipsHeadResponses(t *testing.T) {
	net := &fakeNetwork{status: 200, body: ""}
	d := &DecodeInterceptor{CharsetDetectDisabled: true}
	c := New(NewRequest("HEAD", mustURL(t, "https://example.com/")), Config{Interceptors: []Interceptor{d, net}})
	resp, err := c.Execute()
	require.NoError(t, err)
	defer resp.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestDecodeInterceptorTranscodesDeclaredCharset(t *testing.T) {
	// UTF-8 input with a charset explicitly declared still round-trips.
	h := headers.New().Add("Content-Type", "text/plain; charset=utf-8")
	net := &fakeNetwork{status: 200, headers: h, body: "hello"}
	d := &DecodeInterceptor{}
	c := New(NewRequest("GET", mustURL(t, "https://example.com/")), Config{Interceptors: []Interceptor{d, net}})
	resp, err := c.Execute()
	require.NoError(t, err)
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}
