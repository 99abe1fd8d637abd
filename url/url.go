// Package url implements the client's URL data model: scheme, canonicalized
// host, port, encoded path, an insertion-ordered query multimap and a
// fragment. Canonical form is stable under round-trip parse/serialize.
package url

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Scheme is one of the four schemes the client understands.
type Scheme string

const (
	HTTP  Scheme = "http"
	HTTPS Scheme = "https"
	WS    Scheme = "ws"
	WSS   Scheme = "wss"
)

// defaultPorts maps a scheme to its default port.
var defaultPorts = map[Scheme]int{
	HTTP: 80, HTTPS: 443, WS: 80, WSS: 443,
}

// IsTLS reports whether the scheme negotiates TLS.
func (s Scheme) IsTLS() bool { return s == HTTPS || s == WSS }

// IsWebSocket reports whether the scheme is a WebSocket scheme.
func (s Scheme) IsWebSocket() bool { return s == WS || s == WSS }

// HTTPEquivalent returns the http/https scheme this URL would use for the
// underlying TCP connection (ws->http, wss->https).
func (s Scheme) HTTPEquivalent() Scheme {
	switch s {
	case WS:
		return HTTP
	case WSS:
		return HTTPS
	default:
		return s
	}
}

// URL is the parsed, canonicalized request target.
type URL struct {
	Scheme   Scheme
	Host     string // canonicalized, punycode-encoded if needed
	Port     int
	Path     string // encoded, always begins with "/"
	Query    *Query
	Fragment string
}

// Parse parses s into a canonical URL. Canonicalization is idempotent:
// Parse(u.String()).String() == u.String().
func Parse(s string) (*URL, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return nil, fmt.Errorf("url: missing scheme in %q", s)
	}
	sch := Scheme(strings.ToLower(scheme))
	switch sch {
	case HTTP, HTTPS, WS, WSS:
	default:
		return nil, fmt.Errorf("url: unsupported scheme %q", scheme)
	}

	authority, pathQueryFrag := splitAuthority(rest)
	host, port, err := splitHostPort(authority, defaultPorts[sch])
	if err != nil {
		return nil, err
	}
	host, err = canonicalizeHost(host)
	if err != nil {
		return nil, err
	}

	path, queryFrag := pathQueryFrag, ""
	if i := strings.IndexAny(pathQueryFrag, "?#"); i >= 0 {
		path, queryFrag = pathQueryFrag[:i], pathQueryFrag[i:]
	}
	if path == "" {
		path = "/"
	}
	path, err = encodePath(path)
	if err != nil {
		return nil, err
	}

	query, fragment := "", ""
	if strings.HasPrefix(queryFrag, "?") {
		rest := queryFrag[1:]
		if i := strings.IndexByte(rest, '#'); i >= 0 {
			query, fragment = rest[:i], rest[i+1:]
		} else {
			query = rest
		}
	} else if strings.HasPrefix(queryFrag, "#") {
		fragment = queryFrag[1:]
	}

	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	return &URL{
		Scheme:   sch,
		Host:     host,
		Port:     port,
		Path:     path,
		Query:    q,
		Fragment: fragment,
	}, nil
}

func splitAuthority(rest string) (authority, pathQueryFrag string) {
	i := strings.IndexByte(rest, '/')
	j := strings.IndexAny(rest, "?#")
	switch {
	case i < 0 && j < 0:
		return rest, "/"
	case i < 0:
		return rest[:j], rest[j:]
	case j < 0 || i < j:
		return rest[:i], rest[i:]
	default:
		return rest[:j], rest[j:]
	}
}

func splitHostPort(authority string, defaultPort int) (host string, port int, err error) {
	// strip userinfo; cookies/auth jar handles credentials separately.
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		authority = authority[i+1:]
	}
	if strings.HasPrefix(authority, "[") {
		// IPv6 literal
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("url: unterminated IPv6 literal in %q", authority)
		}
		host = authority[:end+1]
		rest := authority[end+1:]
		if strings.HasPrefix(rest, ":") {
			p, err := strconv.Atoi(rest[1:])
			if err != nil {
				return "", 0, fmt.Errorf("url: bad port in %q: %w", authority, err)
			}
			return host, p, nil
		}
		return host, defaultPort, nil
	}
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		p, err := strconv.Atoi(authority[i+1:])
		if err != nil {
			return "", 0, fmt.Errorf("url: bad port in %q: %w", authority, err)
		}
		return authority[:i], p, nil
	}
	return authority, defaultPort, nil
}

// canonicalizeHost lower-cases and applies IDNA ToASCII, per the IDN +
// public-suffix-adjacent canonicalization invariant of the spec's data
// model. IPv6 literals pass through unchanged.
func canonicalizeHost(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("url: empty host")
	}
	if strings.HasPrefix(host, "[") {
		return strings.ToLower(host), nil
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		// Fall back to the lower-cased host: some internal hostnames
		// (e.g. "localhost", single-label dev names) are rejected by
		// strict IDNA lookup rules.
		return strings.ToLower(host), nil
	}
	return ascii, nil
}

var pathEscape = strings.NewReplacer(" ", "%20", "\"", "%22", "<", "%3C", ">", "%3E", "`", "%60")

func encodePath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return pathEscape.Replace(p), nil
}

// String renders the canonical form of u.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(string(u.Scheme))
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != defaultPorts[u.Scheme] {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	b.WriteString(u.Path)
	if u.Query != nil && u.Query.Len() > 0 {
		b.WriteByte('?')
		b.WriteString(u.Query.Encode())
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Authority returns "host" or "host:port" suitable for the Host header /
// HTTP-2 :authority pseudo-header.
func (u *URL) Authority() string {
	if u.Port == defaultPorts[u.Scheme] {
		return u.Host
	}
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

// RequestTarget returns the encoded path and query, as sent on the wire for
// an origin-form request line or the HTTP/2 :path pseudo-header.
func (u *URL) RequestTarget() string {
	if u.Query == nil || u.Query.Len() == 0 {
		return u.Path
	}
	return u.Path + "?" + u.Query.Encode()
}

// Clone returns a deep copy of u.
func (u *URL) Clone() *URL {
	c := *u
	c.Query = u.Query.Clone()
	return &c
}

// ResolveReference resolves a redirect Location header (possibly relative)
// against u, returning the new absolute URL.
func (u *URL) ResolveReference(ref string) (*URL, error) {
	if strings.Contains(ref, "://") {
		return Parse(ref)
	}
	if strings.HasPrefix(ref, "//") {
		return Parse(string(u.Scheme) + ":" + ref)
	}
	base := u.Clone()
	if strings.HasPrefix(ref, "/") {
		path, queryFrag := ref, ""
		if i := strings.IndexAny(ref, "?#"); i >= 0 {
			path, queryFrag = ref[:i], ref[i:]
		}
		p, err := encodePath(path)
		if err != nil {
			return nil, err
		}
		base.Path = p
		q, frag := "", ""
		if strings.HasPrefix(queryFrag, "?") {
			r := queryFrag[1:]
			if j := strings.IndexByte(r, '#'); j >= 0 {
				q, frag = r[:j], r[j+1:]
			} else {
				q = r
			}
		} else if strings.HasPrefix(queryFrag, "#") {
			frag = queryFrag[1:]
		}
		qq, err := parseQuery(q)
		if err != nil {
			return nil, err
		}
		base.Query = qq
		base.Fragment = frag
		return base, nil
	}
	// relative path resolution against the directory of u.Path
	dir := base.Path
	if i := strings.LastIndexByte(dir, '/'); i >= 0 {
		dir = dir[:i+1]
	}
	return base.ResolveReference(dir + ref)
}
