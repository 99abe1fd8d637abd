package cookiejar

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	errEmptyCookie        = errors.New("cookiejar: empty cookie-pair")
	errDomainMismatch     = errors.New("cookiejar: Domain attribute does not match request host")
	errPublicSuffixDomain = errors.New("cookiejar: Domain attribute names a public suffix")
)

// Jar is an RFC 6265 cookie store, satisfying call.CookieJar. The zero
// value is not usable; construct with New.
type Jar struct {
	mu      sync.Mutex
	entries map[string]*Cookie // key: domain|path|name
	now     func() time.Time
}

// New builds an empty Jar.
func New() *Jar {
	return &Jar{entries: make(map[string]*Cookie), now: time.Now}
}

func entryKey(domain, path, name string) string {
	return domain + "|" + path + "|" + name
}

// SaveFromResponse stores the cookies named in setCookieHeaders (one
// Set-Cookie header value each), scoped to u.
func (j *Jar) SaveFromResponse(u string, setCookieHeaders []string) {
	host, path := hostAndPath(u)
	if host == "" {
		return
	}
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, raw := range setCookieHeaders {
		c, err := ParseSetCookie(raw, host, path, now)
		if err != nil {
			continue
		}
		key := entryKey(c.Domain, c.Path, c.Name)
		if c.expired(now) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = c
	}
}

// LoadForRequest returns the Cookie header value (semicolon-joined
// name=value pairs) applicable to u, per RFC 6265 §5.4: domain-matching,
// path-matching, Secure-scoped, and not expired; longer paths sort first.
func (j *Jar) LoadForRequest(u string) string {
	host, path := hostAndPath(u)
	if host == "" {
		return ""
	}
	secure := strings.HasPrefix(strings.ToLower(u), "https://")
	now := j.now()

	j.mu.Lock()
	var matches []*Cookie
	var stale []string
	for key, c := range j.entries {
		if c.expired(now) {
			stale = append(stale, key)
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if c.HostOnly {
			if !strings.EqualFold(c.Domain, host) {
				continue
			}
		} else if !domainMatches(c.Domain, host) {
			continue
		}
		if !pathMatches(c.Path, path) {
			continue
		}
		matches = append(matches, c)
	}
	for _, key := range stale {
		delete(j.entries, key)
	}
	j.mu.Unlock()

	if len(matches) == 0 {
		return ""
	}
	sort.SliceStable(matches, func(i, k int) bool {
		if len(matches[i].Path) != len(matches[k].Path) {
			return len(matches[i].Path) > len(matches[k].Path)
		}
		return matches[i].creation.Before(matches[k].creation)
	})

	parts := make([]string, len(matches))
	for i, c := range matches {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}

// hostAndPath extracts host and path from a URL string by hand, so this
// package stays usable independent of any particular URL type.
func hostAndPath(u string) (host, path string) {
	rest := u
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		host = rest[:i]
		rest = rest[i:]
	} else {
		host = rest
		rest = "/"
	}
	if i := strings.IndexByte(host, '@'); i >= 0 {
		host = host[i+1:]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	if p := strings.IndexAny(rest, "?#"); p >= 0 {
		rest = rest[:p]
	}
	if rest == "" {
		rest = "/"
	}
	return strings.ToLower(host), rest
}
