package corehttp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCoercesDurationStrings(t *testing.T) {
	doc := `
connect-timeout: 30s
read-timeout: 1m
retry-on-connection-failure: true
follow-redirects: "true"
max-body-size: "2097152"
max-concurrent-calls: 64
protocols: ["h2", "http/1.1"]
user-agent: corehttp-test
cache-dir: /tmp/corehttp-cache
`
	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.ReadTimeout)
	assert.True(t, cfg.RetryOnConnectionFailure)
	assert.True(t, cfg.FollowRedirects)
	assert.Equal(t, int64(2097152), cfg.MaxBodySize)
	assert.Equal(t, 64, cfg.MaxConcurrentCalls)
	assert.Equal(t, []string{"h2", "http/1.1"}, cfg.Protocols)
	assert.Equal(t, "corehttp-test", cfg.UserAgent)
	assert.Equal(t, "/tmp/corehttp-cache", cfg.CacheDir)
}

func TestLoadConfigDurationAsBareNanoseconds(t *testing.T) {
	doc := `connect-timeout: 5000000000`
	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestLoadConfigEmptyDocumentIsZeroConfig(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfigRejectsUnparsableDuration(t *testing.T) {
	doc := `connect-timeout: "not-a-duration"`
	_, err := LoadConfig(strings.NewReader(doc))
	require.Error(t, err)
}
