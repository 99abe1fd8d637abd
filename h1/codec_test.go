package h1

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/headers"
)

func TestWriteRequestAddsHostWhenMissing(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	c := New(bufio.NewReader(&bytes.Buffer{}), w)
	require.NoError(t, c.WriteRequest("GET", "/x", "example.com", headers.New().Add("Accept", "*/*")))
	w.Flush()
	assert.Contains(t, buf.String(), "GET /x HTTP/1.1\r\n")
	assert.Contains(t, buf.String(), "Host: example.com\r\n")
}

func TestChunkedRoundTripWithTrailer(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	cw := &chunkedWriter{w: w, onClose: func() error { return w.Flush() }}
	_, err := cw.Write([]byte("hello"))
	require.NoError(t, err)
	cw.SetTrailer(headers.New().Add("X-Digest", "abc"))
	require.NoError(t, cw.Close())

	r := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	cr := &chunkedReader{r: r, onClose: func() error { return nil }}
	data, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NotNil(t, cr.Trailer())
	v, ok := cr.Trailer().Get("X-Digest")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestChunkedReaderZeroChunksPreservesTrailers(t *testing.T) {
	raw := "0\r\nX-Trailer: val\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	cr := &chunkedReader{r: r, onClose: func() error { return nil }}
	data, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Empty(t, data)
	v, ok := cr.Trailer().Get("X-Trailer")
	assert.True(t, ok)
	assert.Equal(t, "val", v)
}

func TestFixedWriterRejectsOverrun(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	fw := &fixedWriter{w: w, remaining: 3, onClose: func() error { return nil }}
	_, err := fw.Write([]byte("toolong"))
	require.Error(t, err)
}

func TestChooseResponseBodyKind(t *testing.T) {
	k, _ := ChooseResponseBodyKind("GET", 204, headers.New())
	assert.Equal(t, BodyNone, k)

	k, n := ChooseResponseBodyKind("GET", 200, headers.New().Add("Content-Length", "5"))
	assert.Equal(t, BodyFixed, k)
	assert.Equal(t, int64(5), n)

	k, _ = ChooseResponseBodyKind("GET", 200, headers.New().Add("Transfer-Encoding", "chunked"))
	assert.Equal(t, BodyChunked, k)

	k, _ = ChooseResponseBodyKind("GET", 200, headers.New())
	assert.Equal(t, BodyUntilClose, k)
}

func TestKeepAliveFalseOnConnectionClose(t *testing.T) {
	req := headers.New()
	resp := headers.New().Add("Connection", "close")
	assert.False(t, KeepAlive(req, resp, true, nil))
	assert.True(t, KeepAlive(req, headers.New(), true, nil))
}
