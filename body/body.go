// Package body implements the polymorphic request/response body capability
// set described in the data model: contentType, byteSize (-1 = unknown),
// writeTo(sink), isDuplex, isOneShot. Concrete variants: byte-string
// (Bytes, String), file-path (File), streamed (Stream) and duplex
// (Duplex); there is no multipart variant.
package body

import (
	"bytes"
	"io"
	"os"
)

// Body is the capability set every request or response payload exposes.
type Body interface {
	// ContentType returns the media type to send as Content-Type, or ""
	// if the caller did not specify one.
	ContentType() string
	// ByteSize returns the exact size in bytes, or -1 if unknown (in which
	// case the HTTP/1 codec must use chunked framing).
	ByteSize() int64
	// WriteTo streams the body to sink. May be called more than once
	// unless IsOneShot reports true.
	WriteTo(sink io.Writer) error
	// IsDuplex reports whether the body may still be writing while the
	// response is being read (true streaming, e.g. gRPC-style or
	// WebSocket upgrade bodies).
	IsDuplex() bool
	// IsOneShot reports whether WriteTo may be called at most once,
	// making the body non-replayable for retries/redirects.
	IsOneShot() bool
}

// Bytes returns a Body backed by an in-memory byte slice. It is replayable
// (not one-shot) since WriteTo can be called repeatedly.
func Bytes(contentType string, data []byte) Body {
	return &bytesBody{contentType: contentType, data: data}
}

type bytesBody struct {
	contentType string
	data        []byte
}

func (b *bytesBody) ContentType() string         { return b.contentType }
func (b *bytesBody) ByteSize() int64             { return int64(len(b.data)) }
func (b *bytesBody) IsDuplex() bool              { return false }
func (b *bytesBody) IsOneShot() bool             { return false }
func (b *bytesBody) WriteTo(sink io.Writer) error {
	_, err := io.Copy(sink, bytes.NewReader(b.data))
	return err
}

// String returns a Body backed by a string.
func String(contentType, s string) Body {
	return Bytes(contentType, []byte(s))
}

// File returns a Body backed by a path on disk, re-opened for every
// WriteTo call so it is replayable across retries/redirects.
func File(contentType, path string) Body {
	return &fileBody{contentType: contentType, path: path}
}

type fileBody struct {
	contentType string
	path        string
}

func (b *fileBody) ContentType() string { return b.contentType }

func (b *fileBody) ByteSize() int64 {
	fi, err := os.Stat(b.path)
	if err != nil {
		return -1
	}
	return fi.Size()
}

func (b *fileBody) IsDuplex() bool  { return false }
func (b *fileBody) IsOneShot() bool { return false }

func (b *fileBody) WriteTo(sink io.Writer) error {
	f, err := os.Open(b.path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(sink, f)
	return err
}

// Stream returns a Body that drains open by calling src exactly once. Since
// an io.Reader cannot be rewound in general, streamed bodies are one-shot:
// they cannot be replayed by the retry or redirect interceptors.
func Stream(contentType string, size int64, src func() (io.Reader, error)) Body {
	return &streamBody{contentType: contentType, size: size, src: src}
}

type streamBody struct {
	contentType string
	size        int64
	src         func() (io.Reader, error)
	used        bool
}

func (b *streamBody) ContentType() string { return b.contentType }
func (b *streamBody) ByteSize() int64     { return b.size }
func (b *streamBody) IsDuplex() bool      { return false }
func (b *streamBody) IsOneShot() bool     { return true }

func (b *streamBody) WriteTo(sink io.Writer) error {
	if b.used {
		return io.ErrClosedPipe
	}
	b.used = true
	r, err := b.src()
	if err != nil {
		return err
	}
	_, err = io.Copy(sink, r)
	return err
}

// Duplex returns a one-shot, duplex-capable Body for use-cases like
// WebSocket-over-HTTP/2 or gRPC streaming where writer and reader run
// concurrently against the same exchange.
func Duplex(contentType string, writeFn func(sink io.Writer) error) Body {
	return &duplexBody{contentType: contentType, writeFn: writeFn}
}

type duplexBody struct {
	contentType string
	writeFn     func(sink io.Writer) error
}

func (b *duplexBody) ContentType() string          { return b.contentType }
func (b *duplexBody) ByteSize() int64              { return -1 }
func (b *duplexBody) IsDuplex() bool               { return true }
func (b *duplexBody) IsOneShot() bool              { return true }
func (b *duplexBody) WriteTo(sink io.Writer) error { return b.writeFn(sink) }

// Empty is the canonical zero-length, replayable body used for requests
// with no payload (GET, HEAD, DELETE without a body).
var Empty Body = Bytes("", nil)
