package diskcache

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEditCommitGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ed, err := c.Edit("entrykey")
	require.NoError(t, err)
	w0, err := ed.NewWriter(0)
	require.NoError(t, err)
	_, err = io.WriteString(w0, "meta")
	require.NoError(t, err)
	require.NoError(t, w0.Close())
	w1, err := ed.NewWriter(1)
	require.NoError(t, err)
	_, err = io.WriteString(w1, "body-bytes")
	require.NoError(t, err)
	require.NoError(t, w1.Close())
	require.NoError(t, ed.Commit())

	snap, err := c.Get("entrykey")
	require.NoError(t, err)
	defer snap.Close()
	meta, err := io.ReadAll(snap.Reader(0))
	require.NoError(t, err)
	assert.Equal(t, "meta", string(meta))
	body, err := io.ReadAll(snap.Reader(1))
	require.NoError(t, err)
	assert.Equal(t, "body-bytes", string(body))
}

func TestCacheEditConflict(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ed, err := c.Edit("k")
	require.NoError(t, err)
	_, err = c.Edit("k")
	assert.ErrorIs(t, err, ErrEditConflict)
	require.NoError(t, ed.Abort())

	_, err = c.Edit("k")
	require.NoError(t, err)
}

func TestCacheRemoveZombiesActiveSnapshot(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ed, err := c.Edit("z")
	require.NoError(t, err)
	w0, _ := ed.NewWriter(0)
	w0.Close()
	w1, _ := ed.NewWriter(1)
	w1.Close()
	require.NoError(t, ed.Commit())

	snap, err := c.Get("z")
	require.NoError(t, err)

	require.NoError(t, c.Remove("z"))
	_, err = c.Get("z")
	assert.ErrorIs(t, err, ErrNotFound, "removed entry must not be gettable even while a snapshot is outstanding")

	require.NoError(t, snap.Close())
	_, err = os.Stat(c.valuePath("z", 0))
	assert.True(t, os.IsNotExist(err), "zombie entry files must be deleted once the last reader closes")
}

func TestCacheReopenRecoversFromJournal(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	ed, err := c.Edit("persisted")
	require.NoError(t, err)
	w0, _ := ed.NewWriter(0)
	io.WriteString(w0, "m")
	w0.Close()
	w1, _ := ed.NewWriter(1)
	io.WriteString(w1, "b")
	w1.Close()
	require.NoError(t, ed.Commit())
	require.NoError(t, c.Close())

	c2, err := Open(dir, "1", 1<<20)
	require.NoError(t, err)
	defer c2.Close()
	snap, err := c2.Get("persisted")
	require.NoError(t, err)
	defer snap.Close()
	body, err := io.ReadAll(snap.Reader(1))
	require.NoError(t, err)
	assert.Equal(t, "b", string(body))
}

func TestCacheTrimToSizeEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, "1", 5) // tiny budget
	require.NoError(t, err)
	defer c.Close()

	write := func(key, val string) {
		ed, err := c.Edit(key)
		require.NoError(t, err)
		w0, _ := ed.NewWriter(0)
		w0.Close()
		w1, _ := ed.NewWriter(1)
		io.WriteString(w1, val)
		w1.Close()
		require.NoError(t, ed.Commit())
	}
	write("first", "abc")
	write("second", "xyz")

	_, err = c.Get("first")
	assert.ErrorIs(t, err, ErrNotFound, "oldest entry should have been evicted under the tiny size budget")
	snap, err := c.Get("second")
	require.NoError(t, err)
	snap.Close()
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("abc-123_x"))
	assert.False(t, ValidKey("UPPER"))
	assert.False(t, ValidKey(""))
}
