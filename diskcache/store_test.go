package diskcache

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/headers"
	"github.com/corehttp/corehttp/url"
)

func TestStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c.Close()
	store := NewStore(c)

	u, _ := url.Parse("https://example.com/resource")
	req := call.NewRequest("GET", u)
	key := req.Method + " " + req.URL.String()

	h := headers.New()
	h.Add("Content-Type", "text/plain")
	resp := &call.Response{
		Protocol:      "http/1.1",
		StatusCode:    200,
		StatusMessage: "OK",
		Headers:       h,
	}

	w, err := store.Put(key, resp)
	require.NoError(t, err)
	_, err = io.WriteString(w, "cached payload")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, "OK", got.StatusMessage)
	ct, ok := got.Headers.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)

	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "cached payload", string(body))
	require.NoError(t, got.Body.Close())
}

func TestStoreRemove(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c.Close()
	store := NewStore(c)

	u, _ := url.Parse("https://example.com/gone")
	req := call.NewRequest("GET", u)
	key := req.Method + " " + req.URL.String()

	resp := &call.Response{Protocol: "http/1.1", StatusCode: 200, Headers: headers.New()}
	w, err := store.Put(key, resp)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, ok := store.Get(key)
	require.True(t, ok)

	store.Remove(key)
	_, ok = store.Get(key)
	assert.False(t, ok)
}
