// fs composes the layers into a mountable file system: formatting,
// mounting with superblock verification, and path-level conveniences
// over the directory layer.
package fs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/minfs/minfs/block"
	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/dir"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/inode"
	"github.com/minfs/minfs/super"
	"github.com/minfs/minfs/util"
)

var (
	// ErrMismatch is returned by Mount when the superblock's geometry
	// does not match the device it was read from.
	ErrMismatch = errors.New("superblock does not match device")

	// ErrNoRoot is returned by Mount when the root inode is not a
	// directory.
	ErrNoRoot = errors.New("root inode is not a directory")
)

// FS is one mounted volume.
type FS struct {
	d   disk.Disk
	sb  super.SuperBlock
	tbl *inode.Table
}

// Mkfs formats the device: superblock in block 0, zeroed inode table
// and bitmap, and a root directory at common.ROOTINUM. It returns the
// freshly mounted file system.
func Mkfs(d disk.Disk, nInodes uint64) (*FS, error) {
	sb, err := super.ComputeLayout(d.BlockSize(), d.Size(), nInodes)
	if err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	sb.VolumeID = uuid.New()

	zero := make(disk.Block, sb.BlockSize)
	for a := sb.InodeStart; a < sb.DataStart; a++ {
		if err := d.Write(a, zero); err != nil {
			return nil, fmt.Errorf("mkfs: %w", err)
		}
	}
	blk, err := sb.Encode()
	if err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	if err := d.Write(0, blk); err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}

	tbl := inode.NewTable(block.New(d, sb))
	inum, err := tbl.Alloc(common.FTDir)
	if err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	if inum != common.ROOTINUM {
		return nil, fmt.Errorf("mkfs: root allocated as inode %d: %w", inum, inode.ErrInvalidInode)
	}
	root, err := tbl.Get(inum)
	if err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	root.Nlink = 1
	if err := tbl.Put(root); err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	if err := d.Barrier(); err != nil {
		return nil, fmt.Errorf("mkfs: %w", err)
	}
	util.DPrintf(1, "mkfs: %d blocks, %d inodes, volume %v\n", sb.NBlocks, sb.NInodes, sb.VolumeID)
	return &FS{d: d, sb: sb, tbl: tbl}, nil
}

// Mount reads and verifies the superblock and checks that its geometry
// fits the device.
func Mount(d disk.Disk) (*FS, error) {
	blk, err := d.Read(0)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	sb, err := super.Decode(blk)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if !sb.Valid() {
		return nil, fmt.Errorf("mount: %w", super.ErrInvalid)
	}
	if sb.BlockSize != d.BlockSize() || sb.NBlocks > d.Size() {
		return nil, fmt.Errorf("mount: volume %dx%d on device %dx%d: %w",
			sb.NBlocks, sb.BlockSize, d.Size(), d.BlockSize(), ErrMismatch)
	}
	fs := &FS{d: d, sb: sb, tbl: inode.NewTable(block.New(d, sb))}
	root, err := fs.Root()
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if root.Ftype != common.FTDir {
		return nil, fmt.Errorf("mount: %w", ErrNoRoot)
	}
	util.DPrintf(1, "mount: volume %v\n", sb.VolumeID)
	return fs, nil
}

// Unmount flushes the device. The caller still owns the device and
// closes it.
func (fs *FS) Unmount() error {
	if err := fs.d.Barrier(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	util.DPrintf(1, "unmount: volume %v\n", fs.sb.VolumeID)
	return nil
}

// Super returns the mounted superblock.
func (fs *FS) Super() super.SuperBlock {
	return fs.sb
}

// Inodes exposes the inode layer.
func (fs *FS) Inodes() *inode.Table {
	return fs.tbl
}

// Root returns a handle on the root directory.
func (fs *FS) Root() (*inode.Inode, error) {
	return fs.tbl.Get(common.ROOTINUM)
}

// Resolve walks path from the root and returns the inode it names.
func (fs *FS) Resolve(path string) (*inode.Inode, error) {
	inum, err := dir.Resolve(fs.tbl, common.ROOTINUM, path)
	if err != nil {
		return nil, err
	}
	return fs.tbl.Get(inum)
}

// resolveDir returns a directory handle for path.
func (fs *FS) resolveDir(path string) (*inode.Inode, error) {
	dp, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	if dp.Ftype != common.FTDir {
		return nil, fmt.Errorf("%q: %w", path, dir.ErrNotDir)
	}
	return dp, nil
}

// create allocates an inode of type ft and links it as name in the
// directory at dirPath. A failed link releases the inode again.
func (fs *FS) create(dirPath, name string, ft common.Ftype) (common.Inum, error) {
	dp, err := fs.resolveDir(dirPath)
	if err != nil {
		return common.NULLINUM, err
	}
	inum, err := fs.tbl.Alloc(ft)
	if err != nil {
		return common.NULLINUM, err
	}
	if err := dir.Insert(fs.tbl, dp, name, inum); err != nil {
		if ferr := fs.tbl.Free(inum); ferr != nil {
			return common.NULLINUM, ferr
		}
		return common.NULLINUM, err
	}
	return inum, nil
}

// Create makes an empty file called name in the directory at dirPath.
func (fs *FS) Create(dirPath, name string) (common.Inum, error) {
	return fs.create(dirPath, name, common.FTFile)
}

// Mkdir makes an empty directory called name in the directory at
// dirPath.
func (fs *FS) Mkdir(dirPath, name string) (common.Inum, error) {
	return fs.create(dirPath, name, common.FTDir)
}

// Unlink removes name from the directory at dirPath and frees the
// target once its last link is gone.
func (fs *FS) Unlink(dirPath, name string) error {
	dp, err := fs.resolveDir(dirPath)
	if err != nil {
		return err
	}
	inum, err := dir.Lookup(fs.tbl, dp, name)
	if err != nil {
		return err
	}
	if err := dir.Remove(fs.tbl, dp, name); err != nil {
		return err
	}
	target, err := fs.tbl.Get(inum)
	if err != nil {
		return err
	}
	if target.Nlink == 0 {
		return fs.tbl.Free(inum)
	}
	return nil
}

// WriteFile writes data at offset off of the file at path.
func (fs *FS) WriteFile(path string, off uint64, data []byte) (uint64, error) {
	ino, err := fs.Resolve(path)
	if err != nil {
		return 0, err
	}
	return fs.tbl.Write(ino, off, data)
}

// ReadFile reads up to n bytes at offset off of the file at path.
func (fs *FS) ReadFile(path string, off, n uint64) ([]byte, error) {
	ino, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	return fs.tbl.Read(ino, off, n)
}

// List returns the live entries of the directory at path.
func (fs *FS) List(path string) ([]dir.Entry, error) {
	dp, err := fs.resolveDir(path)
	if err != nil {
		return nil, err
	}
	return dir.List(fs.tbl, dp)
}
