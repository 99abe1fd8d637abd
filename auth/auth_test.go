package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallengesBasic(t *testing.T) {
	cs := ParseChallenges([]string{`Basic realm="Protected Area"`})
	require.Len(t, cs, 1)
	assert.Equal(t, "Basic", cs[0].Scheme)
	assert.Equal(t, "Protected Area", cs[0].Realm)
}

func TestParseChallengesDigest(t *testing.T) {
	cs := ParseChallenges([]string{`Digest realm="api", nonce="abc123", qop="auth", opaque="xyz"`})
	require.Len(t, cs, 1)
	assert.Equal(t, "Digest", cs[0].Scheme)
	assert.Equal(t, "api", cs[0].Params["realm"])
	assert.Equal(t, "abc123", cs[0].Params["nonce"])
	assert.Equal(t, "auth", cs[0].Params["qop"])
	assert.Equal(t, "xyz", cs[0].Params["opaque"])
}

func TestBasicAuthenticateEncodesCredentials(t *testing.T) {
	b := NewBasic("alice", "wonderland")
	creds, ok := b.Authenticate([]Challenge{{Scheme: "Basic", Realm: "r"}}, Request{}, false)
	require.True(t, ok)
	assert.Equal(t, "Authorization", creds.Header)
	assert.Equal(t, "Basic YWxpY2U6d29uZGVybGFuZA==", creds.Value)
}

func TestBasicAuthenticateDeclinesUnknownScheme(t *testing.T) {
	b := NewBasic("a", "b")
	_, ok := b.Authenticate([]Challenge{{Scheme: "Digest"}}, Request{}, false)
	assert.False(t, ok)
}

func TestDigestAuthenticateProducesResponseHash(t *testing.T) {
	d := NewDigest("alice", "secret")
	challenge := Challenge{Scheme: "Digest", Params: map[string]string{
		"realm": "api", "nonce": "n1", "qop": "auth",
	}}
	creds, ok := d.Authenticate([]Challenge{challenge}, Request{Method: "GET", URI: "/resource"}, false)
	require.True(t, ok)
	assert.Equal(t, "Authorization", creds.Header)
	assert.Contains(t, creds.Value, `username="alice"`)
	assert.Contains(t, creds.Value, `nonce="n1"`)
	assert.Contains(t, creds.Value, "nc=00000001")
	assert.Contains(t, creds.Value, `response="`)
}

func TestDigestNonceCounterIncrementsOnRepeatedNonce(t *testing.T) {
	d := NewDigest("alice", "secret")
	challenge := Challenge{Scheme: "Digest", Params: map[string]string{"realm": "api", "nonce": "same", "qop": "auth"}}
	first, _ := d.Authenticate([]Challenge{challenge}, Request{Method: "GET", URI: "/a"}, false)
	second, _ := d.Authenticate([]Challenge{challenge}, Request{Method: "GET", URI: "/a"}, false)
	assert.Contains(t, first.Value, "nc=00000001")
	assert.Contains(t, second.Value, "nc=00000002")
}

func TestNoneDeclines(t *testing.T) {
	_, ok := None{}.Authenticate([]Challenge{{Scheme: "Basic"}}, Request{}, false)
	assert.False(t, ok)
}
