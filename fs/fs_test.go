package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/dir"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/super"
)

func testDisk(t *testing.T) disk.Disk {
	t.Helper()
	return disk.NewMemDisk(512, 400)
}

func TestMkfsMount(t *testing.T) {
	assert := assert.New(t)
	d := testDisk(t)

	fsys, err := Mkfs(d, 32)
	require.NoError(t, err)
	require.NoError(t, fsys.Unmount())

	fsys, err = Mount(d)
	require.NoError(t, err)
	sb := fsys.Super()
	assert.Equal(uint64(512), sb.BlockSize)
	assert.Equal(uint64(400), sb.NBlocks)
	assert.Equal(uint64(32), sb.NInodes)
	assert.NotEqual([16]byte{}, [16]byte(sb.VolumeID))

	root, err := fsys.Root()
	require.NoError(t, err)
	assert.Equal(common.FTDir, root.Ftype)
	assert.Equal(uint64(1), root.Nlink)
	assert.Equal(uint64(0), root.Size)
}

func TestMountUnformatted(t *testing.T) {
	_, err := Mount(testDisk(t))
	assert.ErrorIs(t, err, super.ErrBadMagic)
}

func TestMountCorrupted(t *testing.T) {
	d := testDisk(t)
	_, err := Mkfs(d, 32)
	require.NoError(t, err)

	blk, err := d.Read(0)
	require.NoError(t, err)
	blk[16] ^= 0xff
	require.NoError(t, d.Write(0, blk))

	_, err = Mount(d)
	assert.ErrorIs(t, err, super.ErrBadChecksum)
}

func TestMountGeometryMismatch(t *testing.T) {
	d := testDisk(t)
	_, err := Mkfs(d, 32)
	require.NoError(t, err)

	// replay the formatted image onto a smaller device
	small := disk.NewMemDisk(512, 100)
	for a := uint64(0); a < 100; a++ {
		blk, err := d.Read(a)
		require.NoError(t, err)
		require.NoError(t, small.Write(a, blk))
	}
	_, err = Mount(small)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestCreateWriteRead(t *testing.T) {
	assert := assert.New(t)
	fsys, err := Mkfs(testDisk(t), 32)
	require.NoError(t, err)

	_, err = fsys.Mkdir("", "etc")
	require.NoError(t, err)
	_, err = fsys.Create("etc", "motd")
	require.NoError(t, err)

	msg := []byte("welcome\n")
	n, err := fsys.WriteFile("etc/motd", 0, msg)
	require.NoError(t, err)
	assert.Equal(uint64(len(msg)), n)

	got, err := fsys.ReadFile("/etc/motd", 0, 100)
	require.NoError(t, err)
	assert.Equal(msg, got)

	entries, err := fsys.List("etc")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal("motd", entries[0].Name)
}

func TestCreateRollsBackOnExists(t *testing.T) {
	assert := assert.New(t)
	fsys, err := Mkfs(testDisk(t), 32)
	require.NoError(t, err)

	a, err := fsys.Create("", "f")
	require.NoError(t, err)
	_, err = fsys.Create("", "f")
	assert.ErrorIs(err, dir.ErrExists)

	// the failed create's inode was released: the next one reuses it
	require.NoError(t, fsys.Unlink("", "f"))
	b, err := fsys.Create("", "g")
	require.NoError(t, err)
	assert.Equal(a, b)
}

func TestUnlinkFreesFile(t *testing.T) {
	assert := assert.New(t)
	fsys, err := Mkfs(testDisk(t), 32)
	require.NoError(t, err)

	inum, err := fsys.Create("", "data")
	require.NoError(t, err)
	_, err = fsys.WriteFile("data", 0, make([]byte, 3*512))
	require.NoError(t, err)

	free0, err := fsys.Inodes().Store().NumFree()
	require.NoError(t, err)
	require.NoError(t, fsys.Unlink("", "data"))

	ino, err := fsys.Inodes().Get(inum)
	require.NoError(t, err)
	assert.Equal(common.FTFree, ino.Ftype)

	free1, err := fsys.Inodes().Store().NumFree()
	require.NoError(t, err)
	assert.Equal(free0+3, free1, "data blocks returned on last unlink")

	_, err = fsys.Resolve("data")
	assert.ErrorIs(err, dir.ErrNotFound)
}

func TestUnlinkKeepsHardLinkedFile(t *testing.T) {
	assert := assert.New(t)
	fsys, err := Mkfs(testDisk(t), 32)
	require.NoError(t, err)

	inum, err := fsys.Create("", "a")
	require.NoError(t, err)
	root, err := fsys.Root()
	require.NoError(t, err)
	require.NoError(t, dir.Insert(fsys.Inodes(), root, "b", inum))

	require.NoError(t, fsys.Unlink("", "a"))
	ino, err := fsys.Inodes().Get(inum)
	require.NoError(t, err)
	assert.Equal(common.FTFile, ino.Ftype, "second link keeps the inode live")

	got, err := fsys.Resolve("b")
	require.NoError(t, err)
	assert.Equal(inum, got.Inum)
}

func TestPersistenceAcrossRemount(t *testing.T) {
	assert := assert.New(t)
	d := testDisk(t)
	fsys, err := Mkfs(d, 32)
	require.NoError(t, err)

	_, err = fsys.Mkdir("", "home")
	require.NoError(t, err)
	_, err = fsys.Create("home", "note")
	require.NoError(t, err)
	_, err = fsys.WriteFile("home/note", 0, []byte("still here"))
	require.NoError(t, err)
	require.NoError(t, fsys.Unmount())

	fsys, err = Mount(d)
	require.NoError(t, err)
	got, err := fsys.ReadFile("home/note", 0, 100)
	require.NoError(t, err)
	assert.Equal([]byte("still here"), got)
}
