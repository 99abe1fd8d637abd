package cookiejar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSetCookieBasic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := ParseSetCookie("session=abc123; Path=/app; HttpOnly", "example.com", "/app/login", now)
	require.NoError(t, err)
	assert.Equal(t, "session", c.Name)
	assert.Equal(t, "abc123", c.Value)
	assert.Equal(t, "/app", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.HostOnly)
}

func TestParseSetCookieDomainAttribute(t *testing.T) {
	now := time.Now()
	c, err := ParseSetCookie("a=b; Domain=example.com", "www.example.com", "/", now)
	require.NoError(t, err)
	assert.Equal(t, "example.com", c.Domain)
	assert.False(t, c.HostOnly)
}

func TestParseSetCookieRejectsDomainMismatch(t *testing.T) {
	_, err := ParseSetCookie("a=b; Domain=evil.com", "example.com", "/", time.Now())
	assert.Error(t, err)
}

func TestParseSetCookieRejectsPublicSuffixDomain(t *testing.T) {
	_, err := ParseSetCookie("a=b; Domain=com", "example.com", "/", time.Now())
	assert.Error(t, err)
}

func TestParseSetCookieMaxAgeZeroExpiresImmediately(t *testing.T) {
	now := time.Now()
	c, err := ParseSetCookie("a=b; Max-Age=0", "example.com", "/", now)
	require.NoError(t, err)
	assert.True(t, c.expired(now))
}

func TestJarSaveAndLoadRoundTrip(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://example.com/login", []string{"session=abc123; Path=/"})
	got := j.LoadForRequest("https://example.com/dashboard")
	assert.Equal(t, "session=abc123", got)
}

func TestJarSecureCookieNotSentOverPlainHTTP(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://example.com/", []string{"session=abc123; Secure"})
	assert.Equal(t, "session=abc123", j.LoadForRequest("https://example.com/"))
	assert.Equal(t, "", j.LoadForRequest("http://example.com/"))
}

func TestJarHostOnlyCookieNotSentToSubdomain(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://example.com/", []string{"a=b"})
	assert.Equal(t, "", j.LoadForRequest("https://sub.example.com/"))
}

func TestJarDomainCookieSentToSubdomain(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://www.example.com/", []string{"a=b; Domain=example.com"})
	assert.Equal(t, "a=b", j.LoadForRequest("https://shop.example.com/"))
}

func TestJarPathScoping(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://example.com/app/", []string{"a=b; Path=/app"})
	assert.Equal(t, "a=b", j.LoadForRequest("https://example.com/app/page"))
	assert.Equal(t, "", j.LoadForRequest("https://example.com/other"))
}

func TestJarExpiredCookieNotReturned(t *testing.T) {
	j := New()
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC1123)
	j.SaveFromResponse("https://example.com/", []string{"a=b; Expires=" + past})
	assert.Equal(t, "", j.LoadForRequest("https://example.com/"))
}

func TestJarMultipleCookiesLongerPathFirst(t *testing.T) {
	j := New()
	j.SaveFromResponse("https://example.com/", []string{"a=1; Path=/"})
	j.SaveFromResponse("https://example.com/app/", []string{"b=2; Path=/app"})
	assert.Equal(t, "b=2; a=1", j.LoadForRequest("https://example.com/app/page"))
}
