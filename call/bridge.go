package call

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
)

// CookieJar is the pluggable jar interface from §6 ("Cookies"); satisfied
// by *cookiejar.Jar (package github.com/corehttp/corehttp/cookiejar) or
// any RFC 6265-compliant store.
type CookieJar interface {
	SaveFromResponse(u string, cookies []string)
	LoadForRequest(u string) string
}

// BridgeInterceptor adds the default headers spec.md §4.1 names
// (Content-Type, Content-Length/Transfer-Encoding, Host, Connection,
// Accept-Encoding, Cookie, User-Agent) and, on the way back, transparently
// gunzips the body when it added "Accept-Encoding: gzip" itself. Other
// encodings are passed through undecoded.
type BridgeInterceptor struct {
	UserAgent string
	Jar       CookieJar
}

func (b *BridgeInterceptor) Intercept(chain *Chain) (*Response, error) {
	req := chain.Request()
	h := req.Headers.Clone()

	userRequestedEncoding := false
	if _, ok := h.Get("Accept-Encoding"); ok {
		userRequestedEncoding = true
	}
	if _, ok := h.Get("Range"); ok {
		userRequestedEncoding = true
	}
	transparentGzip := false
	if !userRequestedEncoding {
		h.Set("Accept-Encoding", "gzip")
		transparentGzip = true
	}

	if _, ok := h.Get("Host"); !ok {
		h.Set("Host", req.URL.Authority())
	}
	if _, ok := h.Get("Connection"); !ok {
		h.Set("Connection", "Keep-Alive")
	}

	if req.Body != nil && req.Body.ByteSize() != 0 {
		if ct := req.Body.ContentType(); ct != "" {
			if _, ok := h.Get("Content-Type"); !ok {
				h.Set("Content-Type", ct)
			}
		}
		if size := req.Body.ByteSize(); size >= 0 {
			if _, ok := h.Get("Content-Length"); !ok {
				h.Set("Content-Length", strconv.FormatInt(size, 10))
			}
		} else if _, ok := h.Get("Transfer-Encoding"); !ok {
			h.Set("Transfer-Encoding", "chunked")
		}
	}

	if b.UserAgent != "" {
		if _, ok := h.Get("User-Agent"); !ok {
			h.Set("User-Agent", b.UserAgent)
		}
	}

	if b.Jar != nil {
		if cookie := b.Jar.LoadForRequest(req.URL.String()); cookie != "" {
			if _, ok := h.Get("Cookie"); !ok {
				h.Set("Cookie", cookie)
			}
		}
	}

	networkReq := req.WithHeaders(h)
	resp, err := chain.Proceed(networkReq)
	if err != nil {
		return nil, err
	}

	if b.Jar != nil {
		if setCookies := resp.Headers.Values("Set-Cookie"); len(setCookies) > 0 {
			b.Jar.SaveFromResponse(req.URL.String(), setCookies)
		}
	}

	if transparentGzip {
		if encoding, ok := resp.Headers.Get("Content-Encoding"); ok && strings.EqualFold(encoding, "gzip") && bodyHasBytes(resp) {
			decoded, err := gzip.NewReader(resp.Body)
			if err != nil {
				return nil, err
			}
			rh := resp.Headers.Clone()
			rh.Remove("Content-Encoding")
			rh.Remove("Content-Length")
			resp = resp.WithHeaders(rh).WithBody(gzipCloser{decoded, resp.Body})
		}
	}

	return resp, nil
}

func bodyHasBytes(resp *Response) bool {
	return resp.Body != nil && resp.StatusCode != 204 && resp.StatusCode != 304
}

type gzipCloser struct {
	*gzip.Reader
	orig io.Closer
}

func (g gzipCloser) Close() error {
	g.Reader.Close()
	return g.orig.Close()
}

// DecodeBody decodes a response body given its Content-Encoding header
// value, supporting the "gzip, deflate, br" chain the teacher's
// fetch.Do/utils.DecodeReader supports. br decompression is delegated to
// andybalholm/brotli (§1: Brotli decompression is explicitly out of scope
// to reimplement).
func DecodeBody(encoding string, r io.Reader) (io.Reader, error) {
	out := r
	var err error
	for _, enc := range strings.Split(encoding, ",") {
		switch strings.TrimSpace(strings.ToLower(enc)) {
		case "gzip":
			out, err = gzip.NewReader(out)
		case "deflate":
			out, err = zlib.NewReader(out)
		case "br":
			out = brotli.NewReader(out)
		case "":
		default:
			err = fmt.Errorf("call: unsupported content-encoding %q", enc)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
