// inode implements the fixed-size inode table and byte-granularity
// reads and writes through an inode's block pointers.
package inode

import (
	"errors"

	"github.com/tchajed/marshal"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/disk"
)

var (
	// ErrNoFreeInodes is returned by Alloc when the table has no free
	// slot.
	ErrNoFreeInodes = errors.New("no free inodes")

	// ErrInvalidInode is returned for inode numbers outside the table
	// and for operations on slots that are already free.
	ErrInvalidInode = errors.New("invalid inode")

	// ErrFileTooLarge is returned when a write would extend a file past
	// the direct plus indirect pointer capacity.
	ErrFileTooLarge = errors.New("file too large")
)

// DInode is the on-disk inode record. It packs to exactly
// common.InodeSize bytes: type, link count, size, twelve direct block
// pointers and one indirect pointer, all 8-byte little-endian.
//
// A pointer holds an absolute block address; common.NULLBNUM marks an
// unallocated slot. Size is consistent with the populated pointers:
// every file block below RoundUp(Size, BlockSize) is allocated (writes
// are never sparse).
type DInode struct {
	Ftype    common.Ftype
	Nlink    uint64
	Size     uint64
	Direct   [common.NDirect]common.Bnum
	Indirect common.Bnum
}

// Encode packs the inode into the InodeSize bytes at blk[off:].
func (di *DInode) Encode(blk disk.Block, off uint64) {
	enc := marshal.NewEnc(common.InodeSize)
	enc.PutInt(uint64(di.Ftype))
	enc.PutInt(di.Nlink)
	enc.PutInt(di.Size)
	enc.PutInts(di.Direct[:])
	enc.PutInt(di.Indirect)
	copy(blk[off:off+common.InodeSize], enc.Finish())
}

// DecodeDInode unpacks an inode from the InodeSize bytes at blk[off:].
func DecodeDInode(blk disk.Block, off uint64) DInode {
	dec := marshal.NewDec(blk[off : off+common.InodeSize])
	di := DInode{
		Ftype: common.Ftype(dec.GetInt()),
		Nlink: dec.GetInt(),
		Size:  dec.GetInt(),
	}
	copy(di.Direct[:], dec.GetInts(common.NDirect))
	di.Indirect = dec.GetInt()
	return di
}

// Inode is the in-memory handle for one inode slot. Mutations are
// local to the handle until Table.Put writes them back; persistence
// points stay explicit.
type Inode struct {
	Inum common.Inum
	DInode
}

func NewInode(inum common.Inum, di DInode) *Inode {
	return &Inode{Inum: inum, DInode: di}
}
