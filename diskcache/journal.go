// Package diskcache implements the disk LRU response cache (§4.6): a
// content-addressed, journaled, crash-safe key/value store with byte-size
// LRU eviction, grounded on the freshness/conditional-validation semantics
// of the teacher's HTTP cache transport but replacing its in-memory Cache
// interface with a real on-disk journal.
package diskcache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	journalMagic   = "libcore.io.DiskLruCache"
	journalVersion = "1"

	journalFile     = "journal"
	journalFileTemp = "journal.tmp"
	journalFileBkp  = "journal.bkp"

	// rebuildThreshold is the number of journal lines (redundant entries
	// included) after which a rebuild compacts the journal to just the
	// live CLEAN lines.
	rebuildThreshold = 2000
)

const (
	opDirty  = "DIRTY"
	opClean  = "CLEAN"
	opRemove = "REMOVE"
	opRead   = "READ"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,120}$`)

// ValidKey reports whether key is a legal on-disk cache key (§4.6).
func ValidKey(key string) bool { return keyPattern.MatchString(key) }

// entry is the in-memory record for one cache key: which value lengths it
// currently has on disk, whether an editor or readers are using it, and
// whether it has been zombified by a concurrent remove.
type entry struct {
	key          string
	cleanLengths []int64
	dirty        bool
	readers      int
	editor       *Editor
	zombie       bool
	sequence     int64
}

func newEntry(key string, valueCount int) *entry {
	return &entry{key: key, cleanLengths: make([]int64, valueCount)}
}

func (e *entry) totalSize() int64 {
	var n int64
	for _, l := range e.cleanLengths {
		n += l
	}
	return n
}

// journal owns the append-only log file; the in-memory entry index it
// was replayed into is held by the Cache.
type journal struct {
	dir        string
	valueCount int
	appVersion string

	file       *os.File
	w          *bufio.Writer
	lineCount  int
	nextSeq    int64
}

func openJournal(dir, appVersion string, valueCount int) (*journal, map[string]*entry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	bkp := filepath.Join(dir, journalFileBkp)
	main := filepath.Join(dir, journalFile)
	if _, err := os.Stat(bkp); err == nil {
		if _, err := os.Stat(main); os.IsNotExist(err) {
			if err := os.Rename(bkp, main); err != nil {
				return nil, nil, err
			}
		} else {
			_ = os.Remove(bkp)
		}
	}

	entries := make(map[string]*entry)
	j := &journal{dir: dir, valueCount: valueCount, appVersion: appVersion}

	f, err := os.Open(main)
	switch {
	case os.IsNotExist(err):
		// fresh cache directory
	case err != nil:
		return nil, nil, err
	default:
		ok, lines := readJournalBody(f, appVersion, valueCount)
		f.Close()
		if !ok {
			if err := wipeDir(dir); err != nil {
				return nil, nil, err
			}
		} else {
			replayLines(entries, lines)
			j.lineCount = len(lines)
			j.nextSeq = maxSequence(entries) + 1
			pruneDanglingDirty(dir, entries, valueCount)
		}
	}

	if err := j.rewriteAndOpen(entries); err != nil {
		return nil, nil, err
	}
	return j, entries, nil
}

func wipeDir(dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// readJournalBody validates the 5-line header and returns the body lines
// if valid.
func readJournalBody(f *os.File, appVersion string, valueCount int) (ok bool, lines []string) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	header := make([]string, 0, 5)
	for len(header) < 5 && sc.Scan() {
		header = append(header, sc.Text())
	}
	if len(header) != 5 ||
		header[0] != journalMagic ||
		header[1] != journalVersion ||
		header[2] != appVersion ||
		header[3] != strconv.Itoa(valueCount) ||
		header[4] != "" {
		return false, nil
	}
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return true, lines
}

func replayLines(entries map[string]*entry, lines []string) {
	for _, line := range lines {
		fields := strings.Split(line, " ")
		if len(fields) < 2 {
			continue
		}
		op, key := fields[0], fields[1]
		switch op {
		case opDirty:
			e := entries[key]
			if e == nil {
				e = newEntry(key, 0)
				entries[key] = e
			}
			e.dirty = true
		case opClean:
			e := entries[key]
			if e == nil {
				e = newEntry(key, len(fields)-2)
				entries[key] = e
			}
			e.dirty = false
			lens := fields[2:]
			e.cleanLengths = make([]int64, len(lens))
			for i, s := range lens {
				n, _ := strconv.ParseInt(s, 10, 64)
				e.cleanLengths[i] = n
			}
		case opRemove:
			delete(entries, key)
		case opRead:
			// no state change; READ lines only count toward the rebuild
			// threshold
		}
	}
}

func maxSequence(entries map[string]*entry) int64 {
	var max int64
	for _, e := range entries {
		if e.sequence > max {
			max = e.sequence
		}
	}
	return max
}

// pruneDanglingDirty deletes on-disk files for any key left DIRTY with no
// subsequent CLEAN/REMOVE (§4.6 "Startup recovery").
func pruneDanglingDirty(dir string, entries map[string]*entry, valueCount int) {
	for key, e := range entries {
		if !e.dirty {
			continue
		}
		for i := 0; i < valueCount; i++ {
			_ = os.Remove(filepath.Join(dir, fmt.Sprintf("%s.%d", key, i)))
			_ = os.Remove(filepath.Join(dir, fmt.Sprintf("%s.%d.tmp", key, i)))
		}
		delete(entries, key)
	}
}

// rewriteAndOpen writes a fresh journal containing a CLEAN line for each
// clean entry and a DIRTY line for each entry with an edit in flight,
// backs up any previous journal first, then opens the new file for
// appending.
func (j *journal) rewriteAndOpen(entries map[string]*entry) error {
	tmp := filepath.Join(j.dir, journalFileTemp)
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, journalMagic)
	fmt.Fprintln(w, journalVersion)
	fmt.Fprintln(w, j.appVersion)
	fmt.Fprintln(w, j.valueCount)
	fmt.Fprintln(w)
	lines := 0
	for key, e := range entries {
		if e.dirty {
			fmt.Fprintf(w, "%s %s\n", opDirty, key)
			lines++
			continue
		}
		fmt.Fprintf(w, "%s %s", opClean, key)
		for _, l := range e.cleanLengths {
			fmt.Fprintf(w, " %d", l)
		}
		fmt.Fprintln(w)
		lines++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	main := filepath.Join(j.dir, journalFile)
	if _, err := os.Stat(main); err == nil {
		bkp := filepath.Join(j.dir, journalFileBkp)
		if err := os.Rename(main, bkp); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, main); err != nil {
		return err
	}
	_ = os.Remove(filepath.Join(j.dir, journalFileBkp))

	out, err := os.OpenFile(main, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if j.file != nil {
		_ = j.file.Close()
	}
	j.file = out
	j.w = bufio.NewWriter(out)
	j.lineCount = lines
	return nil
}

func (j *journal) writeLine(op, key string, extra ...string) error {
	parts := append([]string{op, key}, extra...)
	if _, err := j.w.WriteString(strings.Join(parts, " ") + "\n"); err != nil {
		return err
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	j.lineCount++
	return nil
}

func (j *journal) needsRebuild() bool { return j.lineCount >= rebuildThreshold }

func (j *journal) close() error {
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
