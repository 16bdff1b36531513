// common holds the scalar types and on-disk constants shared by every
// layer of the file system.
package common

const (
	// InodeSize is the on-disk size of one inode slot, in bytes. The
	// DInode codec packs to exactly this size.
	InodeSize uint64 = 128

	// NDirect is the number of direct block pointers per inode. One
	// additional indirect pointer extends a file by BlockSize/8 blocks.
	NDirect uint64 = 12

	// NameMax is the fixed width of a directory entry's name field.
	NameMax uint64 = 24

	// DirEntSize is the on-disk size of one directory entry: an 8-byte
	// inode number followed by a NUL-padded name.
	DirEntSize uint64 = 8 + NameMax

	// Magic identifies a formatted volume ("minfsv1\0" little-endian).
	Magic uint64 = 0x00317673666e696d
)

type Inum uint64
type Bnum = uint64

const (
	// NULLINUM is never a valid inode; directory entries with this inode
	// number are free slots.
	NULLINUM Inum = 0
	// ROOTINUM is the root directory, allocated by mkfs.
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)

// Ftype is the file type stored in an on-disk inode. A zeroed slot is
// free, so a freshly zeroed inode table is entirely unallocated.
type Ftype uint64

const (
	FTFree Ftype = iota
	FTFile
	FTDir
)

func (t Ftype) String() string {
	switch t {
	case FTFree:
		return "free"
	case FTFile:
		return "file"
	case FTDir:
		return "dir"
	default:
		return "invalid"
	}
}
