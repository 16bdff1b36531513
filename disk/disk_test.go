package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoundTrip(t *testing.T, d Disk) {
	assert := assert.New(t)

	v := make(Block, d.BlockSize())
	v[0] = 1
	v[len(v)-1] = 0xff
	require.NoError(t, d.Write(3, v))

	got, err := d.Read(3)
	require.NoError(t, err)
	assert.Equal(v, got)

	zero, err := d.Read(4)
	require.NoError(t, err)
	assert.Equal(make(Block, d.BlockSize()), zero, "untouched block reads zeros")
}

func testBounds(t *testing.T, d Disk) {
	assert := assert.New(t)

	_, err := d.Read(d.Size())
	assert.ErrorIs(err, ErrOutOfBounds)

	err = d.Write(d.Size(), make(Block, d.BlockSize()))
	assert.ErrorIs(err, ErrOutOfBounds)

	err = d.Write(0, make(Block, d.BlockSize()-1))
	assert.ErrorIs(err, ErrBadBlock)
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(512, 10)
	assert.Equal(t, uint64(10), d.Size())
	assert.Equal(t, uint64(512), d.BlockSize())
	testRoundTrip(t, d)
	testBounds(t, d)
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 512, 10)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(10), d.Size())
	testRoundTrip(t, d)
	testBounds(t, d)
	require.NoError(t, d.Barrier())
}

func TestFileDiskReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 512, 10)
	require.NoError(t, err)

	v := make(Block, 512)
	copy(v, []byte("persisted"))
	require.NoError(t, d.Write(7, v))
	require.NoError(t, d.Barrier())
	require.NoError(t, d.Close())

	d2, err := NewFileDisk(path, 512, 10)
	require.NoError(t, err)
	defer d2.Close()
	got, err := d2.Read(7)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}
