package corehttp

import (
	"fmt"
	"io"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// rawConfig mirrors Config's yaml-tagged fields but leaves durations,
// sizes, and booleans loosely typed, the way a hand-edited YAML file (or a
// value merged in from an env-var override) actually supplies them: a
// duration might arrive as "30s" or as a bare integer of nanoseconds, a
// bool as "true" or 1.
type rawConfig struct {
	ConnectTimeout any `yaml:"connect-timeout"`
	ReadTimeout    any `yaml:"read-timeout"`
	WriteTimeout   any `yaml:"write-timeout"`
	CallTimeout    any `yaml:"call-timeout"`
	PingInterval   any `yaml:"ping-interval"`

	RetryOnConnectionFailure any `yaml:"retry-on-connection-failure"`
	FollowRedirects           any `yaml:"follow-redirects"`
	FollowSSLRedirects        any `yaml:"follow-ssl-redirects"`

	Protocols []string `yaml:"protocols"`
	UserAgent string   `yaml:"user-agent"`

	MaxBodySize           any `yaml:"max-body-size"`
	CharsetDetectDisabled any `yaml:"charset-detect-disabled"`

	MaxConcurrentCalls   any `yaml:"max-concurrent-calls"`
	MaxConcurrentPerHost any `yaml:"max-concurrent-per-host"`

	ConnectionKeepAlive any `yaml:"connection-keep-alive"`
	MaxIdleConnections  any `yaml:"max-idle-connections"`

	CacheDir      string `yaml:"cache-dir"`
	CacheMaxBytes any    `yaml:"cache-max-bytes"`
}

// LoadConfig decodes a YAML document into a Config, the way a host process
// loads a client config from disk (§6): gopkg.in/yaml.v3 does the parse,
// github.com/spf13/cast does the loose coercion from whatever concrete
// type each field arrived as into the Duration/int64/bool Config expects.
// Non-serializable fields (Dialer, Jar, Selector, Interceptors, Listener,
// ...) aren't part of the YAML surface and must be set on the result
// afterward.
func LoadConfig(r io.Reader) (Config, error) {
	var raw rawConfig
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("corehttp: decoding config: %w", err)
	}

	var cfg Config
	var err error

	if cfg.ConnectTimeout, err = cast.ToDurationE(orZero(raw.ConnectTimeout)); err != nil {
		return Config{}, fmt.Errorf("corehttp: connect-timeout: %w", err)
	}
	if cfg.ReadTimeout, err = cast.ToDurationE(orZero(raw.ReadTimeout)); err != nil {
		return Config{}, fmt.Errorf("corehttp: read-timeout: %w", err)
	}
	if cfg.WriteTimeout, err = cast.ToDurationE(orZero(raw.WriteTimeout)); err != nil {
		return Config{}, fmt.Errorf("corehttp: write-timeout: %w", err)
	}
	if cfg.CallTimeout, err = cast.ToDurationE(orZero(raw.CallTimeout)); err != nil {
		return Config{}, fmt.Errorf("corehttp: call-timeout: %w", err)
	}
	if cfg.PingInterval, err = cast.ToDurationE(orZero(raw.PingInterval)); err != nil {
		return Config{}, fmt.Errorf("corehttp: ping-interval: %w", err)
	}
	if cfg.ConnectionKeepAlive, err = cast.ToDurationE(orZero(raw.ConnectionKeepAlive)); err != nil {
		return Config{}, fmt.Errorf("corehttp: connection-keep-alive: %w", err)
	}

	cfg.RetryOnConnectionFailure = cast.ToBool(raw.RetryOnConnectionFailure)
	cfg.FollowRedirects = cast.ToBool(raw.FollowRedirects)
	cfg.FollowSSLRedirects = cast.ToBool(raw.FollowSSLRedirects)
	cfg.CharsetDetectDisabled = cast.ToBool(raw.CharsetDetectDisabled)

	cfg.MaxBodySize = cast.ToInt64(raw.MaxBodySize)
	cfg.MaxConcurrentCalls = cast.ToInt(raw.MaxConcurrentCalls)
	cfg.MaxConcurrentPerHost = cast.ToInt(raw.MaxConcurrentPerHost)
	cfg.MaxIdleConnections = cast.ToInt(raw.MaxIdleConnections)
	cfg.CacheMaxBytes = cast.ToInt64(raw.CacheMaxBytes)

	cfg.Protocols = raw.Protocols
	cfg.UserAgent = raw.UserAgent
	cfg.CacheDir = raw.CacheDir

	return cfg, nil
}

// orZero substitutes 0 for a nil raw field so cast.ToDurationE sees an
// int rather than an untyped nil (which it would otherwise reject).
func orZero(v any) any {
	if v == nil {
		return 0
	}
	return v
}
