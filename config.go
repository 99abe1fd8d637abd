package corehttp

import (
	"time"

	"github.com/corehttp/corehttp/auth"
	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/listener"
	"github.com/corehttp/corehttp/route"
	"github.com/corehttp/corehttp/tlsdial"
)

// Config is the "one coherent client builder" surface from §6: every knob
// a caller can set before NewClient wires the pipeline together.
type Config struct {
	// Timeouts, one independent budget each (§4.1).
	ConnectTimeout time.Duration `yaml:"connect-timeout"`
	ReadTimeout    time.Duration `yaml:"read-timeout"`
	WriteTimeout   time.Duration `yaml:"write-timeout"`
	CallTimeout    time.Duration `yaml:"call-timeout"`

	// PingInterval is decoded by LoadConfig but not read by the Client:
	// connections it opens send no app-level PING whatever its value.
	PingInterval time.Duration `yaml:"ping-interval"`

	// RetryOnConnectionFailure enables the retry-on-another-route policy
	// of the retry/redirect interceptor (§4.1).
	RetryOnConnectionFailure bool `yaml:"retry-on-connection-failure"`
	// FollowRedirects/FollowSSLRedirects gate the redirect half of the
	// same interceptor.
	FollowRedirects    bool `yaml:"follow-redirects"`
	FollowSSLRedirects bool `yaml:"follow-ssl-redirects"`

	// Protocols is the ordered ALPN preference list, e.g. ["h2",
	// "http/1.1"].
	Protocols []string `yaml:"protocols"`

	// UserAgent is sent by the bridge interceptor when the caller's
	// request doesn't already set one.
	UserAgent string `yaml:"user-agent"`

	// MaxBodySize caps how many response bytes a call reads before giving
	// up, mirroring the teacher's fetcher.maxBodySize. Zero means
	// DefaultMaxBodySize.
	MaxBodySize int64 `yaml:"max-body-size"`

	// CharsetDetectDisabled turns off best-effort response charset
	// sniffing/transcoding to UTF-8 (golang.org/x/net/html/charset),
	// which is otherwise applied the way the teacher's fetcher.Do does.
	CharsetDetectDisabled bool `yaml:"charset-detect-disabled"`

	// Dispatcher bounds (§4.2).
	MaxConcurrentCalls   int `yaml:"max-concurrent-calls"`
	MaxConcurrentPerHost int `yaml:"max-concurrent-per-host"`

	// Pool bounds (§4.3).
	ConnectionKeepAlive time.Duration `yaml:"connection-keep-alive"`
	MaxIdleConnections  int           `yaml:"max-idle-connections"`

	// CacheDir, if non-empty, enables the on-disk HTTP cache (§4.6) rooted
	// there. CacheMaxBytes bounds it, defaulting to 10MiB.
	CacheDir      string `yaml:"cache-dir"`
	CacheMaxBytes int64  `yaml:"cache-max-bytes"`

	// Jar is the pluggable cookie jar (§6). Nil disables cookie handling.
	Jar call.CookieJar `yaml:"-"`

	// Selector chooses a proxy per request URL (§6). Nil means direct.
	Selector route.Selector `yaml:"-"`
	// Resolver performs DNS lookups. Nil defaults to net.DefaultResolver.
	Resolver route.Resolver `yaml:"-"`

	// TLS dialing and certificate pinning (§6).
	Dialer tlsdial.Dialer  `yaml:"-"`
	Pinner *tlsdial.Pinner `yaml:"-"`

	// User/Proxy authenticators for 401/407 challenges (§6).
	UserAuthenticator  auth.Authenticator `yaml:"-"`
	ProxyAuthenticator auth.Authenticator `yaml:"-"`

	// Interceptors are spliced in right after the decode interceptor
	// (which follows the bridge interceptor), before the cache, auth and
	// network interceptors — the place a caller-supplied interceptor
	// observes the fully bridged, not-yet-sent request (§4.1's "pluggable
	// interceptors" list).
	Interceptors []call.Interceptor `yaml:"-"`

	// Listener observes call lifecycle events (§6).
	Listener listener.Listener `yaml:"-"`
}

const (
	// DefaultCacheMaxBytes is used when CacheDir is set but CacheMaxBytes
	// is zero.
	DefaultCacheMaxBytes int64 = 10 << 20
	// DefaultPingInterval matches the teacher's health-check cadence.
	DefaultPingInterval = 0 // disabled unless explicitly configured
)

// defaultProtocols is the ALPN preference list used when Config.Protocols
// is empty.
var defaultProtocols = []string{"h2", "http/1.1"}

func (c Config) protocols() []string {
	if len(c.Protocols) == 0 {
		return defaultProtocols
	}
	return c.Protocols
}
