package dir

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minfs/minfs/block"
	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/inode"
	"github.com/minfs/minfs/super"
)

// testFs builds a table with a root directory at ROOTINUM.
func testFs(t *testing.T) (*inode.Table, *inode.Inode) {
	t.Helper()
	sb, err := super.ComputeLayout(512, 200, 16)
	require.NoError(t, err)
	tbl := inode.NewTable(block.New(disk.NewMemDisk(512, 200), sb))
	inum, err := tbl.Alloc(common.FTDir)
	require.NoError(t, err)
	require.Equal(t, common.ROOTINUM, inum)
	root, err := tbl.Get(inum)
	require.NoError(t, err)
	return tbl, root
}

func mkFile(t *testing.T, tbl *inode.Table) common.Inum {
	t.Helper()
	inum, err := tbl.Alloc(common.FTFile)
	require.NoError(t, err)
	return inum
}

func TestEntryCodec(t *testing.T) {
	assert := assert.New(t)
	buf := encodeEntry(7, "hello")
	assert.Len(buf, int(common.DirEntSize))
	assert.Equal(Entry{Inum: 7, Name: "hello"}, decodeEntry(buf))

	long := strings.Repeat("a", int(common.NameMax))
	assert.Equal(long, decodeEntry(encodeEntry(1, long)).Name, "max-width name has no terminator")
}

func TestInsertLookup(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)
	f := mkFile(t, tbl)

	require.NoError(t, Insert(tbl, root, "readme", f))
	got, err := Lookup(tbl, root, "readme")
	require.NoError(t, err)
	assert.Equal(f, got)

	_, err = Lookup(tbl, root, "nope")
	assert.ErrorIs(err, ErrNotFound)

	ino, err := tbl.Get(f)
	require.NoError(t, err)
	assert.Equal(uint64(1), ino.Nlink, "insert bumps the link count")
}

func TestInsertExists(t *testing.T) {
	tbl, root := testFs(t)
	f := mkFile(t, tbl)
	require.NoError(t, Insert(tbl, root, "x", f))
	assert.ErrorIs(t, Insert(tbl, root, "x", f), ErrExists)
}

func TestInsertBadNames(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)
	f := mkFile(t, tbl)

	long := strings.Repeat("a", int(common.NameMax)+1)
	assert.ErrorIs(Insert(tbl, root, long, f), ErrNameTooLong)
	assert.ErrorIs(Insert(tbl, root, "", f), ErrBadName)
	assert.ErrorIs(Insert(tbl, root, "a/b", f), ErrBadName)
	assert.ErrorIs(Insert(tbl, root, "a\x00b", f), ErrBadName)
}

func TestInsertFreeTarget(t *testing.T) {
	tbl, root := testFs(t)
	assert.ErrorIs(t, Insert(tbl, root, "ghost", 9), inode.ErrInvalidInode)
}

func TestNotADirectory(t *testing.T) {
	assert := assert.New(t)
	tbl, _ := testFs(t)
	f := mkFile(t, tbl)
	fino, err := tbl.Get(f)
	require.NoError(t, err)

	_, err = Lookup(tbl, fino, "x")
	assert.ErrorIs(err, ErrNotDir)
	assert.ErrorIs(Insert(tbl, fino, "x", f), ErrNotDir)
	assert.ErrorIs(Remove(tbl, fino, "x"), ErrNotDir)
}

func TestRemove(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)
	f := mkFile(t, tbl)

	require.NoError(t, Insert(tbl, root, "f", f))
	require.NoError(t, Remove(tbl, root, "f"))
	_, err := Lookup(tbl, root, "f")
	assert.ErrorIs(err, ErrNotFound)
	assert.ErrorIs(Remove(tbl, root, "f"), ErrNotFound)

	ino, err := tbl.Get(f)
	require.NoError(t, err)
	assert.Equal(uint64(0), ino.Nlink, "remove drops the link count")
}

func TestFreeSlotReuse(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)
	a, b, c := mkFile(t, tbl), mkFile(t, tbl), mkFile(t, tbl)

	require.NoError(t, Insert(tbl, root, "a", a))
	require.NoError(t, Insert(tbl, root, "b", b))
	size := root.Size

	require.NoError(t, Remove(tbl, root, "a"))
	require.NoError(t, Insert(tbl, root, "c", c))
	assert.Equal(size, root.Size, "freed slot reused instead of growing")

	entries, err := List(tbl, root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal("c", entries[0].Name, "slot order preserved")
	assert.Equal("b", entries[1].Name)
}

func TestListSkipsFreeSlots(t *testing.T) {
	tbl, root := testFs(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, Insert(tbl, root, fmt.Sprintf("f%d", i), mkFile(t, tbl)))
	}
	require.NoError(t, Remove(tbl, root, "f2"))
	entries, err := List(tbl, root)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestResolve(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)

	sub, err := tbl.Alloc(common.FTDir)
	require.NoError(t, err)
	require.NoError(t, Insert(tbl, root, "etc", sub))

	subIno, err := tbl.Get(sub)
	require.NoError(t, err)
	f := mkFile(t, tbl)
	require.NoError(t, Insert(tbl, subIno, "passwd", f))

	got, err := Resolve(tbl, common.ROOTINUM, "etc/passwd")
	require.NoError(t, err)
	assert.Equal(f, got)

	got, err = Resolve(tbl, common.ROOTINUM, "/etc//passwd/")
	require.NoError(t, err)
	assert.Equal(f, got, "separators collapse")

	got, err = Resolve(tbl, common.ROOTINUM, "")
	require.NoError(t, err)
	assert.Equal(common.ROOTINUM, got, "empty path is the root")

	_, err = Resolve(tbl, common.ROOTINUM, "etc/shadow")
	assert.ErrorIs(err, ErrNotFound)

	_, err = Resolve(tbl, common.ROOTINUM, "etc/passwd/deeper")
	assert.ErrorIs(err, ErrNotDir, "file as intermediate component")
}

func TestDirGrowsAcrossBlocks(t *testing.T) {
	assert := assert.New(t)
	tbl, root := testFs(t)
	f := mkFile(t, tbl)

	// 512/32 = 16 entries per block; cross into a second block
	for i := 0; i < 20; i++ {
		require.NoError(t, Insert(tbl, root, fmt.Sprintf("name%02d", i), f))
	}
	for i := 0; i < 20; i++ {
		got, err := Lookup(tbl, root, fmt.Sprintf("name%02d", i))
		require.NoError(t, err)
		assert.Equal(f, got)
	}
	ino, err := tbl.Get(f)
	require.NoError(t, err)
	assert.Equal(uint64(20), ino.Nlink)
}
