package diskcache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ValueCount is the number of values stored per entry: index 0 holds the
// serialized response metadata (status line, headers), index 1 holds the
// response body (§4.6).
const ValueCount = 2

var (
	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("diskcache: closed")
	// ErrEditConflict is returned by Edit when the key already has an
	// editor in flight or an open Snapshot, and by Remove when the key has
	// an editor in flight.
	ErrEditConflict = errors.New("diskcache: edit already in progress")
	// ErrNotFound is returned when a Snapshot or Edit target has no entry.
	ErrNotFound = errors.New("diskcache: not found")
)

// Cache is a journaled, size-bounded, key/value store on disk implementing
// LRU eviction by byte size, mirroring OkHttp's DiskLruCache (§4.6).
type Cache struct {
	mu          sync.Mutex
	dir         string
	maxSize     int64
	j           *journal
	entries     map[string]*entry
	size        int64
	closed      bool
	nextSeq     int64
	lruOrder    []string // most-recently-touched last
}

// Open opens or creates a cache rooted at dir, with room for maxSize bytes
// of value data. appVersion changes invalidate any on-disk cache built by
// a different cache-format version.
func Open(dir string, appVersion string, maxSize int64) (*Cache, error) {
	j, entries, err := openJournal(dir, appVersion, ValueCount)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		dir:     dir,
		maxSize: maxSize,
		j:       j,
		entries: entries,
		nextSeq: j.nextSeq,
	}
	var total int64
	for key, e := range entries {
		total += e.totalSize()
		c.lruOrder = append(c.lruOrder, key)
	}
	c.size = total
	c.trimToSizeLocked()
	return c, nil
}

func (c *Cache) touch(key string) {
	for i, k := range c.lruOrder {
		if k == key {
			c.lruOrder = append(c.lruOrder[:i], c.lruOrder[i+1:]...)
			break
		}
	}
	c.lruOrder = append(c.lruOrder, key)
}

// Snapshot is a consistent, read-only view of one entry's values. It must
// be Closed to release its readers count.
type Snapshot struct {
	c       *Cache
	key     string
	lengths []int64
	files   [ValueCount]*os.File
}

// Get returns a Snapshot for key, or ErrNotFound (also for an entry that
// is being edited or was zombied by Remove). An open snapshot keeps
// reading its files even if a Remove races with it (§4.6 "concurrency").
func (c *Cache) Get(key string) (*Snapshot, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("diskcache: invalid key %q", key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e, ok := c.entries[key]
	if !ok || e.dirty || e.zombie {
		return nil, ErrNotFound
	}

	snap := &Snapshot{c: c, key: key, lengths: append([]int64(nil), e.cleanLengths...)}
	for i := 0; i < ValueCount; i++ {
		f, err := os.Open(c.valuePath(key, i))
		if err != nil {
			for j := 0; j < i; j++ {
				snap.files[j].Close()
			}
			return nil, err
		}
		snap.files[i] = f
	}
	e.readers++
	_ = c.j.writeLine(opRead, key)
	c.touch(key)
	c.maybeRebuildLocked()
	return snap, nil
}

// Reader returns an io.Reader over value index; Close the Snapshot to
// release it.
func (s *Snapshot) Reader(index int) io.Reader { return s.files[index] }

// Length returns the byte length of value index.
func (s *Snapshot) Length(index int) int64 { return s.lengths[index] }

// Close releases the snapshot's file handles and, if the underlying entry
// was zombied by a concurrent Remove while this snapshot was the last
// reader, finishes deleting its files (§4.6 "zombie entries").
func (s *Snapshot) Close() error {
	for _, f := range s.files {
		if f != nil {
			f.Close()
		}
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[s.key]
	if !ok {
		return nil
	}
	e.readers--
	if e.readers == 0 && e.zombie {
		s.c.deleteEntryFilesLocked(s.key, e)
		delete(s.c.entries, s.key)
	}
	return nil
}

// Editor lets a caller write fresh values for key. Only one Editor per key
// may be outstanding at a time (§4.6).
type Editor struct {
	c        *Cache
	key      string
	e        *entry
	files    [ValueCount]*os.File
	lengths  [ValueCount]int64
	written  [ValueCount]bool
	done     bool
}

// Edit begins writing a new value set for key. If an editor is already in
// flight for key, or any Snapshot of key is still open, returns
// ErrEditConflict: an entry is not rewritten while it is being read.
func (c *Cache) Edit(key string) (*Editor, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("diskcache: invalid key %q", key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	e, ok := c.entries[key]
	if ok && (e.editor != nil || e.readers > 0) {
		return nil, ErrEditConflict
	}
	if !ok {
		e = newEntry(key, ValueCount)
		c.entries[key] = e
	}
	e.dirty = true
	ed := &Editor{c: c, key: key, e: e}
	e.editor = ed
	if err := c.j.writeLine(opDirty, key); err != nil {
		e.editor = nil
		return nil, err
	}
	return ed, nil
}

func (c *Cache) valuePath(key string, index int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%d", key, index))
}

func (c *Cache) tempPath(key string, index int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%d.tmp", key, index))
}

// NewWriter opens value index for writing. The write lands at the final
// path only once Commit succeeds (§4.6 "atomic commits via rename").
func (ed *Editor) NewWriter(index int) (io.WriteCloser, error) {
	if ed.done {
		return nil, ErrClosed
	}
	f, err := os.Create(ed.c.tempPath(ed.key, index))
	if err != nil {
		return nil, err
	}
	ed.files[index] = f
	return &countingWriteCloser{w: f, ed: ed, index: index}, nil
}

type countingWriteCloser struct {
	w     *os.File
	ed    *Editor
	index int
	n     int64
}

func (cw *countingWriteCloser) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriteCloser) Close() error {
	cw.ed.lengths[cw.index] = cw.n
	cw.ed.written[cw.index] = true
	return cw.w.Close()
}

// Commit publishes all written values atomically and records a CLEAN
// journal line. Any value index never written keeps its previous clean
// value, mirroring DiskLruCache's partial-edit tolerance.
func (ed *Editor) Commit() error {
	if ed.done {
		return ErrClosed
	}
	ed.done = true
	c := ed.c
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < ValueCount; i++ {
		if !ed.written[i] {
			continue
		}
		tmp := c.tempPath(ed.key, i)
		final := c.valuePath(ed.key, i)
		if _, err := os.Stat(tmp); err != nil {
			ed.abortLocked()
			return fmt.Errorf("diskcache: commit missing value %d: %w", i, err)
		}
		if err := os.Rename(tmp, final); err != nil {
			ed.abortLocked()
			return err
		}
	}

	e := ed.e
	oldSize := e.totalSize()
	for i := 0; i < ValueCount; i++ {
		if ed.written[i] {
			e.cleanLengths[i] = ed.lengths[i]
		}
	}
	e.dirty = false
	e.editor = nil
	e.sequence = c.nextSeq
	c.nextSeq++
	c.size += e.totalSize() - oldSize
	c.touch(ed.key)

	args := make([]string, 0, ValueCount)
	for _, l := range e.cleanLengths {
		args = append(args, fmt.Sprintf("%d", l))
	}
	if err := c.j.writeLine(opClean, ed.key, args...); err != nil {
		return err
	}
	c.trimToSizeLocked()
	c.maybeRebuildLocked()
	return nil
}

// Abort discards the edit, deleting any temp files written so far.
func (ed *Editor) Abort() error {
	if ed.done {
		return nil
	}
	ed.done = true
	ed.c.mu.Lock()
	defer ed.c.mu.Unlock()
	ed.abortLocked()
	return nil
}

func (ed *Editor) abortLocked() {
	c := ed.c
	for i := 0; i < ValueCount; i++ {
		_ = os.Remove(c.tempPath(ed.key, i))
	}
	e := ed.e
	e.editor = nil
	if e.sequence == 0 && e.totalSize() == 0 {
		delete(c.entries, ed.key)
		_ = c.j.writeLine(opRemove, ed.key)
		return
	}
	// The previous clean values are untouched: make them readable again.
	e.dirty = false
	args := make([]string, 0, ValueCount)
	for _, l := range e.cleanLengths {
		args = append(args, fmt.Sprintf("%d", l))
	}
	_ = c.j.writeLine(opClean, ed.key, args...)
}

// Remove deletes key's entry. If a Snapshot is currently reading it, the
// entry is zombied and its files are deleted once the last reader closes
// (§4.6 "zombie entries").
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if e.editor != nil {
		return ErrEditConflict
	}
	if err := c.j.writeLine(opRemove, key); err != nil {
		return err
	}
	c.size -= e.totalSize()
	if e.readers > 0 {
		e.zombie = true
		return nil
	}
	c.deleteEntryFilesLocked(key, e)
	delete(c.entries, key)
	c.maybeRebuildLocked()
	return nil
}

func (c *Cache) deleteEntryFilesLocked(key string, e *entry) {
	for i := 0; i < ValueCount; i++ {
		_ = os.Remove(c.valuePath(key, i))
	}
}

// trimToSizeLocked evicts the least-recently-touched clean entries until
// total size is within maxSize (§4.6 "byte-size LRU eviction").
func (c *Cache) trimToSizeLocked() {
	if c.maxSize <= 0 {
		return
	}
	for c.size > c.maxSize && len(c.lruOrder) > 0 {
		key := c.lruOrder[0]
		e, ok := c.entries[key]
		if !ok || e.editor != nil || e.readers > 0 {
			c.lruOrder = c.lruOrder[1:]
			continue
		}
		c.lruOrder = c.lruOrder[1:]
		c.size -= e.totalSize()
		c.deleteEntryFilesLocked(key, e)
		delete(c.entries, key)
		_ = c.j.writeLine(opRemove, key)
	}
}

// maybeRebuildLocked compacts the journal once it has accumulated too
// many redundant lines (§4.6 "rebuild after 2000 entries").
func (c *Cache) maybeRebuildLocked() {
	if !c.j.needsRebuild() {
		return
	}
	if err := c.j.rewriteAndOpen(c.entries); err != nil {
		// leave the existing journal in place; it is still valid, just
		// not yet compacted
		return
	}
}

// Size returns the current total size in bytes of all clean values.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close flushes and closes the journal.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.j.close()
}
