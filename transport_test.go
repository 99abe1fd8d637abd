package corehttp

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/route"
	"github.com/corehttp/corehttp/tlsdial"
	"github.com/corehttp/corehttp/url"
)

func TestDialTargetDirectRoute(t *testing.T) {
	r := &route.Route{SocketAddr: "93.184.216.34:443"}
	addr := dialTarget(r)
	assert.Equal(t, "93.184.216.34:443", addr.String())
}

func TestDialTargetProxiedRouteUsesProxyAddr(t *testing.T) {
	r := &route.Route{
		SocketAddr: "93.184.216.34:443",
		Proxy:      &route.Proxy{Kind: route.ProxyHTTP, Addr: "10.0.0.1:8080"},
	}
	addr := dialTarget(r)
	assert.Equal(t, "10.0.0.1:8080", addr.String())
}

func TestAddressKeyForDistinguishesTLS(t *testing.T) {
	httpsURL, err := url.Parse("https://example.com/")
	require.NoError(t, err)
	httpURL, err := url.Parse("http://example.com/")
	require.NoError(t, err)

	keyTLS := addressKeyFor(httpsURL, nil)
	keyPlain := addressKeyFor(httpURL, nil)
	assert.NotEqual(t, keyTLS, keyPlain)
}

func TestToNetURLPreservesHostAndPath(t *testing.T) {
	u, err := url.Parse("https://example.com/a/b?x=1")
	require.NoError(t, err)
	nu := toNetURL(u)
	assert.Equal(t, "example.com", nu.Host)
	assert.Equal(t, "/a/b", nu.Path)
}

func TestTLSVersionName(t *testing.T) {
	assert.Equal(t, "TLS1.3", tlsVersionName(tls.VersionTLS13))
	assert.Equal(t, "TLS1.2", tlsVersionName(tls.VersionTLS12))
}

func TestCipherSuiteNameDelegatesToStdlib(t *testing.T) {
	name := cipherSuiteName(tls.TLS_AES_128_GCM_SHA256)
	assert.Equal(t, tls.CipherSuiteName(tls.TLS_AES_128_GCM_SHA256), name)
}

func TestHandshakeFromAbsentReturnsNil(t *testing.T) {
	assert.Nil(t, handshakeFrom(tlsdial.Record{}, false))
}

func TestHandshakeFromPresent(t *testing.T) {
	rec := tlsdial.Record{Version: tls.VersionTLS13, CipherSuite: tls.TLS_AES_128_GCM_SHA256}
	hs := handshakeFrom(rec, true)
	require.NotNil(t, hs)
	assert.Equal(t, "TLS1.3", hs.TLSVersion)
}

func TestCertRawNilCertificate(t *testing.T) {
	assert.Nil(t, certRaw(nil))
}
