package call

import (
	"io"

	"golang.org/x/net/html/charset"
)

// DecodeInterceptor caps response body size and, unless disabled,
// transcodes the body to UTF-8 using the declared or sniffed charset —
// the teacher's fetcher.Do behavior (io.LimitReader + charset.NewReader).
type DecodeInterceptor struct {
	MaxBodySize           int64
	CharsetDetectDisabled bool
}

func (d *DecodeInterceptor) Intercept(chain *Chain) (*Response, error) {
	resp, err := chain.Proceed(chain.Request())
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Request.Method == "HEAD" {
		return resp, nil
	}

	limit := d.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	limited := limitedReadCloser{r: io.LimitReader(resp.Body, limit), c: resp.Body}

	if d.CharsetDetectDisabled {
		return resp.WithBody(limited), nil
	}
	contentType, _ := resp.Headers.Get("Content-Type")
	decoded, err := charset.NewReader(limited, contentType)
	if err != nil {
		return nil, err
	}
	return resp.WithBody(transcodedReadCloser{Reader: decoded, orig: limited}), nil
}

// DefaultMaxBodySize matches the teacher's fetcher.maxBodySize default.
const DefaultMaxBodySize int64 = 1024 * 1024 * 1024

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l limitedReadCloser) Close() error                { return l.c.Close() }

type transcodedReadCloser struct {
	io.Reader
	orig io.Closer
}

func (t transcodedReadCloser) Close() error { return t.orig.Close() }
