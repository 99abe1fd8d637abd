package diskcache

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/corehttp/corehttp/call"
	"github.com/corehttp/corehttp/headers"
)

// Store wraps a Cache to satisfy call.Cache: it serializes a
// *call.Response's status line and headers into value 0 and streams the
// body into value 1, content-addressing entries by the SHA-256 of the
// request key (method + URL) so keys always satisfy ValidKey.
type Store struct {
	cache *Cache
}

// NewStore wraps cache for use as a call.Cache.
func NewStore(cache *Cache) *Store { return &Store{cache: cache} }

func diskKey(requestKey string) string {
	sum := sha256.Sum256([]byte(requestKey))
	return hex.EncodeToString(sum[:])
}

// Get implements call.Cache.
func (s *Store) Get(key string) (*call.Response, bool) {
	snap, err := s.cache.Get(diskKey(key))
	if err != nil {
		return nil, false
	}
	resp, err := decodeMetadata(snap.Reader(0))
	if err != nil {
		snap.Close()
		return nil, false
	}
	resp.Body = snapshotBody{snap: snap, r: snap.Reader(1)}
	return resp, true
}

// Put implements call.Cache. The returned writer receives the raw response
// body bytes as they stream past the cache interceptor's tee.
func (s *Store) Put(key string, resp *call.Response) (io.WriteCloser, error) {
	dk := diskKey(key)
	ed, err := s.cache.Edit(dk)
	if err != nil {
		return nil, err
	}

	metaW, err := ed.NewWriter(0)
	if err != nil {
		ed.Abort()
		return nil, err
	}
	if err := encodeMetadata(metaW, resp); err != nil {
		metaW.Close()
		ed.Abort()
		return nil, err
	}
	if err := metaW.Close(); err != nil {
		ed.Abort()
		return nil, err
	}

	bodyW, err := ed.NewWriter(1)
	if err != nil {
		ed.Abort()
		return nil, err
	}
	return editCommitter{ed: ed, w: bodyW}, nil
}

// Remove implements call.Cache.
func (s *Store) Remove(key string) {
	_ = s.cache.Remove(diskKey(key))
}

type editCommitter struct {
	ed *Editor
	w  io.WriteCloser
}

func (c editCommitter) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c editCommitter) Close() error {
	if err := c.w.Close(); err != nil {
		c.ed.Abort()
		return err
	}
	return c.ed.Commit()
}

type snapshotBody struct {
	snap *Snapshot
	r    io.Reader
}

func (b snapshotBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b snapshotBody) Close() error               { return b.snap.Close() }

// encodeMetadata writes the status line and headers in a simple plain-text
// form, one "Name: value" header per line, terminated by a blank line
// (mirroring the teacher's plain-text header serialization idiom).
func encodeMetadata(w io.Writer, resp *call.Response) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s %d %s\n", resp.Protocol, resp.StatusCode, resp.StatusMessage); err != nil {
		return err
	}
	for i := 0; i < resp.Headers.Len(); i++ {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", resp.Headers.NameAt(i), resp.Headers.ValueAt(i)); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func decodeMetadata(r io.Reader) (*call.Response, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 8*1024), 1<<20)
	if !sc.Scan() {
		return nil, fmt.Errorf("diskcache: empty metadata")
	}
	statusLine := sc.Text()
	fields := strings.SplitN(statusLine, " ", 3)
	if len(fields) < 2 {
		return nil, fmt.Errorf("diskcache: malformed status line %q", statusLine)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("diskcache: malformed status code %q: %w", fields[1], err)
	}
	msg := ""
	if len(fields) == 3 {
		msg = fields[2]
	}

	h := headers.New()
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		h.Add(name, value)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return &call.Response{
		Protocol:      fields[0],
		StatusCode:    code,
		StatusMessage: msg,
		Headers:       h,
	}, nil
}
