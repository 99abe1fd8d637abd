// Package h1 implements the HTTP/1.x exchange codec (§4.4): request-line
// and header emission, fixed/chunked body framing in both directions, and
// the state machine governing when a connection may be reused.
package h1

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/corehttp/corehttp/headers"
)

// State is one point in the per-exchange state machine of §4.4.
type State int

const (
	StateIdle State = iota
	StateOpenRequestBody
	StateWritingRequestBody
	StateReadResponseHeaders
	StateOpenResponseBody
	StateReadingResponseBody
	StateClosed
)

// Codec drives one HTTP/1.x exchange over a bufio-wrapped byte stream. It
// is exclusive per connection: at most one outstanding exchange at a time
// (§3 Connection invariants).
type Codec struct {
	w     *bufio.Writer
	r     *bufio.Reader
	state State
}

// New wraps a ReadWriter for one exchange.
func New(r *bufio.Reader, w *bufio.Writer) *Codec {
	return &Codec{w: w, r: r, state: StateIdle}
}

// WriteRequest writes the request line and headers, adding a Host header
// from authority when h has none. Body framing headers (Content-Length or
// Transfer-Encoding: chunked) must already be set in h, by the bridge
// interceptor.
func (c *Codec) WriteRequest(method, target, authority string, h *headers.Headers) error {
	if c.state != StateIdle {
		return fmt.Errorf("h1: WriteRequest called in state %v", c.state)
	}
	if _, err := fmt.Fprintf(c.w, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}
	wroteHost := false
	err := writeHeaderLines(c.w, h, &wroteHost)
	if err != nil {
		return err
	}
	if !wroteHost {
		if _, err := fmt.Fprintf(c.w, "Host: %s\r\n", authority); err != nil {
			return err
		}
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	c.state = StateOpenRequestBody
	return nil
}

// Flush forces buffered request-line/header bytes onto the wire without
// writing a body, so a caller can implement Expect: 100-continue (wait for
// the server's interim response before committing to send the body).
func (c *Codec) Flush() error { return c.w.Flush() }

// Reader exposes the underlying buffered reader so a caller can drive
// AwaitExpectContinue before ReadStatusLine.
func (c *Codec) Reader() *bufio.Reader { return c.r }

func writeHeaderLines(w *bufio.Writer, h *headers.Headers, wroteHost *bool) error {
	var err error
	h.Range(func(name, value string) {
		if err != nil {
			return
		}
		if strings.EqualFold(name, "Host") {
			*wroteHost = true
		}
		_, err = fmt.Fprintf(w, "%s: %s\r\n", name, value)
	})
	return err
}

// NewRequestBodyWriter returns a writer for the request body: fixed-length
// if size >= 0 (rejecting overruns), chunked if size < 0.
func (c *Codec) NewRequestBodyWriter(size int64) io.WriteCloser {
	c.state = StateWritingRequestBody
	if size >= 0 {
		return &fixedWriter{w: c.w, remaining: size, onClose: c.flushAfterBody}
	}
	return &chunkedWriter{w: c.w, onClose: c.flushAfterBody}
}

func (c *Codec) flushAfterBody() error {
	c.state = StateReadResponseHeaders
	return c.w.Flush()
}

// fixedWriter rejects overruns of a known Content-Length.
type fixedWriter struct {
	w         *bufio.Writer
	remaining int64
	onClose   func() error
}

func (f *fixedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > f.remaining {
		return 0, fmt.Errorf("h1: request body write exceeds Content-Length by %d bytes", int64(len(p))-f.remaining)
	}
	n, err := f.w.Write(p)
	f.remaining -= int64(n)
	return n, err
}

func (f *fixedWriter) Close() error { return f.onClose() }

// chunkedWriter emits RFC 7230 chunked framing.
type chunkedWriter struct {
	w       *bufio.Writer
	onClose func() error
	trailer *headers.Headers
}

func (c *chunkedWriter) SetTrailer(h *headers.Headers) { c.trailer = h }

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

func (c *chunkedWriter) Close() error {
	if _, err := c.w.WriteString("0\r\n"); err != nil {
		return err
	}
	if c.trailer != nil {
		if err := writeHeaderLines(c.w, c.trailer, new(bool)); err != nil {
			return err
		}
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.onClose()
}

// ReadStatusLine reads "HTTP/1.1 200 OK" and returns the status code and
// message.
func (c *Codec) ReadStatusLine() (protoMajor, protoMinor, status int, message string, err error) {
	line, err := readLine(c.r)
	if err != nil {
		return 0, 0, 0, "", err
	}
	return ParseStatusLine(line)
}

// ParseStatusLine parses an already-read status line, e.g. one consumed by
// AwaitExpectContinue ahead of the usual ReadStatusLine call.
func ParseStatusLine(line string) (protoMajor, protoMinor, status int, message string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, 0, 0, "", fmt.Errorf("h1: malformed status line %q", line)
	}
	proto := parts[0]
	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, "", fmt.Errorf("h1: malformed status code in %q: %w", line, err)
	}
	if len(parts) == 3 {
		message = parts[2]
	}
	major, minor := 1, 1
	if proto == "HTTP/1.0" {
		minor = 0
	}
	return major, minor, status, message, nil
}

// ReadHeaders reads header lines until a blank line.
func (c *Codec) ReadHeaders() (*headers.Headers, error) {
	h := headers.New()
	for {
		line, err := readLine(c.r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("h1: malformed header line %q", line)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ResponseBodyKind chooses the response body framing per §4.4's ordered
// rules.
type ResponseBodyKind int

const (
	BodyNone ResponseBodyKind = iota
	BodyChunked
	BodyFixed
	BodyUntilClose
)

// ChooseResponseBodyKind implements the ordered rules: 1xx/204/304/HEAD ->
// none; Transfer-Encoding: chunked -> chunked; Content-Length -> fixed;
// otherwise -> unknown-length (connection not reusable).
func ChooseResponseBodyKind(method string, status int, h *headers.Headers) (kind ResponseBodyKind, length int64) {
	if status/100 == 1 || status == 204 || status == 304 || method == "HEAD" {
		return BodyNone, 0
	}
	if te, ok := h.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		return BodyChunked, -1
	}
	if cl, ok := h.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n >= 0 {
			return BodyFixed, n
		}
	}
	return BodyUntilClose, -1
}

// NewResponseBodyReader returns a reader implementing kind's framing.
func (c *Codec) NewResponseBodyReader(kind ResponseBodyKind, length int64) io.ReadCloser {
	c.state = StateOpenResponseBody
	switch kind {
	case BodyNone:
		return &noBodyReader{onClose: c.finishResponse}
	case BodyFixed:
		return &fixedReader{r: c.r, remaining: length, onClose: c.finishResponse}
	case BodyChunked:
		return &chunkedReader{r: c.r, onClose: c.finishResponse}
	default:
		return &untilCloseReader{r: c.r, onClose: c.finishResponse}
	}
}

func (c *Codec) finishResponse() error {
	c.state = StateClosed
	return nil
}

// KeepAlive reports whether, given the request/response Connection
// headers and whether the body was fully consumed without an I/O error,
// this connection may be returned to the pool.
func KeepAlive(reqHeaders, respHeaders *headers.Headers, bodyFullyConsumed bool, ioErr error) bool {
	if ioErr != nil || !bodyFullyConsumed {
		return false
	}
	if connClose(reqHeaders) || connClose(respHeaders) {
		return false
	}
	return true
}

func connClose(h *headers.Headers) bool {
	v, ok := h.Get("Connection")
	return ok && strings.EqualFold(strings.TrimSpace(v), "close")
}

type noBodyReader struct{ onClose func() error }

func (n *noBodyReader) Read([]byte) (int, error) { return 0, io.EOF }
func (n *noBodyReader) Close() error             { return n.onClose() }

type fixedReader struct {
	r         *bufio.Reader
	remaining int64
	onClose   func() error
}

func (f *fixedReader) Read(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.r.Read(p)
	f.remaining -= int64(n)
	return n, err
}

func (f *fixedReader) Close() error { return f.onClose() }

type untilCloseReader struct {
	r       *bufio.Reader
	onClose func() error
}

func (u *untilCloseReader) Read(p []byte) (int, error) { return u.r.Read(p) }
func (u *untilCloseReader) Close() error                { return u.onClose() }

// chunkedReader accepts trailers after the terminal chunk.
type chunkedReader struct {
	r        *bufio.Reader
	onClose  func() error
	remain   int64
	trailer  *headers.Headers
	finished bool
}

// Trailer returns the trailers read after the terminal chunk, available
// once Read has returned io.EOF.
func (c *chunkedReader) Trailer() *headers.Headers { return c.trailer }

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.finished {
		return 0, io.EOF
	}
	if c.remain == 0 {
		line, err := readLine(c.r)
		if err != nil {
			return 0, err
		}
		sizeStr, _, _ := strings.Cut(line, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil {
			return 0, fmt.Errorf("h1: bad chunk size %q: %w", line, err)
		}
		if size == 0 {
			trailer := headers.New()
			for {
				tl, err := readLine(c.r)
				if err != nil {
					return 0, err
				}
				if tl == "" {
					break
				}
				name, value, ok := strings.Cut(tl, ":")
				if ok {
					trailer.Add(strings.TrimSpace(name), strings.TrimSpace(value))
				}
			}
			c.trailer = trailer
			c.finished = true
			return 0, io.EOF
		}
		c.remain = size
	}
	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}
	n, err := c.r.Read(p)
	c.remain -= int64(n)
	if err != nil {
		return n, err
	}
	if c.remain == 0 {
		// consume trailing CRLF after chunk data
		if _, err := readLine(c.r); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *chunkedReader) Close() error { return c.onClose() }
