package url

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"https://example.com/a/b?x=1&y=2#frag",
		"http://example.com:8080/",
		"https://EXAMPLE.com/Path",
		"ws://example.com/socket",
	}
	for _, s := range cases {
		u, err := Parse(s)
		require.NoError(t, err, s)
		u2, err := Parse(u.String())
		require.NoError(t, err)
		assert.Equal(t, u.String(), u2.String(), "round-trip must be stable for %q", s)
	}
}

func TestCanonicalHostLowercased(t *testing.T) {
	u, err := Parse("https://EXAMPLE.COM/x")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)
}

func TestQueryOrderPreserved(t *testing.T) {
	u, err := Parse("https://example.com/?b=2&a=1&b=3")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, u.Query.Names())
	assert.Equal(t, []string{"2", "3"}, u.Query.All("b"))
	assert.Equal(t, "b=2&a=1&b=3", u.Query.Encode())
}

func TestDefaultPortOmittedFromAuthority(t *testing.T) {
	u, err := Parse("https://example.com:443/x")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Authority())
	assert.NotContains(t, u.String(), ":443")
}

func TestSchemeHelpers(t *testing.T) {
	assert.True(t, HTTPS.IsTLS())
	assert.True(t, WSS.IsTLS())
	assert.False(t, HTTP.IsTLS())
	assert.Equal(t, HTTP, WS.HTTPEquivalent())
	assert.Equal(t, HTTPS, WSS.HTTPEquivalent())
}

func TestResolveReferenceAbsolutePath(t *testing.T) {
	base, err := Parse("https://example.com/a/b?x=1")
	require.NoError(t, err)
	next, err := base.ResolveReference("/c/d")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/c/d", next.String())
}
