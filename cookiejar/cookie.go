// Package cookiejar implements the pluggable cookie jar from §6: cookie
// parsing per RFC 6265, storage keyed by domain/path, and public-suffix
// aware domain validation (so a server can't set a cookie for an entire
// public suffix like "com" or "github.io").
package cookiejar

import (
	"strconv"
	"strings"
	"time"

	"github.com/corehttp/corehttp/psl"
)

// Cookie is one parsed Set-Cookie value (RFC 6265 §4.1).
type Cookie struct {
	Name, Value string
	Domain      string
	Path        string
	Expires     time.Time // zero means session cookie
	Secure      bool
	HttpOnly    bool
	HostOnly    bool // true when no Domain attribute was present
	creation    time.Time
}

// ParseSetCookie parses one Set-Cookie header value, defaulting Domain and
// Path from requestHost/requestPath when the cookie omits them.
func ParseSetCookie(value, requestHost, requestPath string, now time.Time) (*Cookie, error) {
	parts := strings.Split(value, ";")
	if len(parts) == 0 {
		return nil, errEmptyCookie
	}
	nv := strings.TrimSpace(parts[0])
	name, val, ok := strings.Cut(nv, "=")
	if !ok {
		return nil, errEmptyCookie
	}
	c := &Cookie{
		Name:     strings.TrimSpace(name),
		Value:    strings.TrimSpace(val),
		Domain:   requestHost,
		Path:     defaultPath(requestPath),
		HostOnly: true,
		creation: now,
	}

	var maxAge int
	hasMaxAge := false

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		key, v, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "domain":
			d := strings.TrimSpace(v)
			d = strings.TrimPrefix(d, ".")
			if d != "" {
				c.Domain = strings.ToLower(d)
				c.HostOnly = false
			}
		case "path":
			if p := strings.TrimSpace(v); strings.HasPrefix(p, "/") {
				c.Path = p
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HttpOnly = true
		case "max-age":
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				maxAge = n
				hasMaxAge = true
			}
		case "expires":
			if t, err := time.Parse(time.RFC1123, strings.TrimSpace(v)); err == nil {
				c.Expires = t
			} else if t, err := time.Parse(time.RFC850, strings.TrimSpace(v)); err == nil {
				c.Expires = t
			}
		}
	}

	// Max-Age takes priority over Expires when both are present (RFC 6265
	// §5.2.2).
	if hasMaxAge {
		if maxAge <= 0 {
			c.Expires = time.Unix(0, 0)
		} else {
			c.Expires = now.Add(time.Duration(maxAge) * time.Second)
		}
	}

	if !c.HostOnly && !domainMatches(c.Domain, requestHost) {
		return nil, errDomainMismatch
	}
	if !c.HostOnly && isPublicSuffix(c.Domain) {
		return nil, errPublicSuffixDomain
	}

	return c, nil
}

func defaultPath(requestPath string) string {
	i := strings.LastIndex(requestPath, "/")
	if i <= 0 {
		return "/"
	}
	return requestPath[:i]
}

// domainMatches reports whether cookieDomain (already normalized, without
// a leading dot) is requestHost itself or a parent domain of it (RFC 6265
// §5.1.3).
func domainMatches(cookieDomain, requestHost string) bool {
	requestHost = strings.ToLower(requestHost)
	if cookieDomain == requestHost {
		return true
	}
	return strings.HasSuffix(requestHost, "."+cookieDomain)
}

// isPublicSuffix rejects a Domain attribute that names an entire public
// suffix (§6: "embedded ... list consulted for cookie-domain validation"),
// e.g. a server at foo.github.io may not set Domain=github.io.
func isPublicSuffix(domain string) bool {
	return psl.Default().PublicSuffix(domain) == domain
}

func (c *Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// pathMatches implements RFC 6265 §5.1.4.
func pathMatches(cookiePath, requestPath string) bool {
	if cookiePath == requestPath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		if len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/' {
			return true
		}
	}
	return false
}

// String renders the cookie as a "name=value" pair for a Cookie request
// header.
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}
