package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/minfs/minfs/block"
	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/util"
)

// Table is the inode layer: it maps inode numbers to slots in the
// on-disk inode table and moves file bytes through the block layer.
type Table struct {
	s *block.Store
}

func NewTable(s *block.Store) *Table {
	return &Table{s: s}
}

// Store exposes the underlying block layer.
func (t *Table) Store() *block.Store {
	return t.s
}

// PtrsPerBlock reports how many block pointers the indirect block
// holds.
func (t *Table) PtrsPerBlock() uint64 {
	return t.s.Super().BlockSize / 8
}

// MaxFileSize is the largest representable file: all direct pointers
// plus one indirect block's worth.
func (t *Table) MaxFileSize() uint64 {
	return (common.NDirect + t.PtrsPerBlock()) * t.s.Super().BlockSize
}

// slot locates inode inum: the inode-table block holding it and the
// byte offset of its record inside that block.
func (t *Table) slot(inum common.Inum) (common.Bnum, uint64) {
	sb := t.s.Super()
	ipb := sb.InodesPerBlock()
	return sb.InodeStart + uint64(inum)/ipb, (uint64(inum) % ipb) * common.InodeSize
}

// Get loads inode inum from its backing block.
func (t *Table) Get(inum common.Inum) (*Inode, error) {
	if uint64(inum) >= t.s.Super().NInodes {
		return nil, fmt.Errorf("inode get %d of %d: %w", inum, t.s.Super().NInodes, ErrInvalidInode)
	}
	a, off := t.slot(inum)
	blk, err := t.s.Get(a)
	if err != nil {
		return nil, fmt.Errorf("inode get %d: %w", inum, err)
	}
	return NewInode(inum, DecodeDInode(blk, off)), nil
}

// Put writes the in-memory inode back to its backing block. Callers
// invoke it explicitly after mutating a handle; nothing is persisted
// implicitly.
func (t *Table) Put(ino *Inode) error {
	if uint64(ino.Inum) >= t.s.Super().NInodes {
		return fmt.Errorf("inode put %d of %d: %w", ino.Inum, t.s.Super().NInodes, ErrInvalidInode)
	}
	a, off := t.slot(ino.Inum)
	blk, err := t.s.Get(a)
	if err != nil {
		return fmt.Errorf("inode put %d: %w", ino.Inum, err)
	}
	ino.DInode.Encode(blk, off)
	if err := t.s.Put(a, blk); err != nil {
		return fmt.Errorf("inode put %d: %w", ino.Inum, err)
	}
	return nil
}

// Alloc claims the first free inode slot, initializes it with the
// given type, zero size and no block pointers, and persists it.
// Slot 0 is reserved (common.NULLINUM).
func (t *Table) Alloc(ft common.Ftype) (common.Inum, error) {
	for inum := common.Inum(1); uint64(inum) < t.s.Super().NInodes; inum++ {
		ino, err := t.Get(inum)
		if err != nil {
			return common.NULLINUM, err
		}
		if ino.Ftype != common.FTFree {
			continue
		}
		ino.DInode = DInode{Ftype: ft}
		if err := t.Put(ino); err != nil {
			return common.NULLINUM, err
		}
		util.DPrintf(5, "inode alloc: %d (%v)\n", inum, ft)
		return inum, nil
	}
	return common.NULLINUM, fmt.Errorf("inode alloc: %w", ErrNoFreeInodes)
}

// Free releases every data block the inode references and marks the
// slot free. Freeing a slot that is already free fails.
func (t *Table) Free(inum common.Inum) error {
	if inum == common.NULLINUM {
		return fmt.Errorf("inode free %d: %w", inum, ErrInvalidInode)
	}
	ino, err := t.Get(inum)
	if err != nil {
		return err
	}
	if ino.Ftype == common.FTFree {
		return fmt.Errorf("inode free %d: already free: %w", inum, ErrInvalidInode)
	}
	if err := t.release(ino); err != nil {
		return err
	}
	ino.DInode = DInode{}
	util.DPrintf(5, "inode free: %d\n", inum)
	return t.Put(ino)
}

// Trunc releases the inode's data blocks and resets its size to zero,
// keeping the slot allocated. The handle is persisted.
func (t *Table) Trunc(ino *Inode) error {
	if err := t.release(ino); err != nil {
		return err
	}
	ino.Size = 0
	ino.Direct = [common.NDirect]common.Bnum{}
	ino.Indirect = common.NULLBNUM
	return t.Put(ino)
}

// release frees the direct blocks, the indirect targets, and the
// indirect block itself. The handle is not persisted.
func (t *Table) release(ino *Inode) error {
	sb := t.s.Super()
	for i := uint64(0); i < common.NDirect; i++ {
		if ino.Direct[i] == common.NULLBNUM {
			continue
		}
		if err := t.s.Free(ino.Direct[i] - sb.DataStart); err != nil {
			return fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
	}
	if ino.Indirect == common.NULLBNUM {
		return nil
	}
	iblk, err := t.s.Get(ino.Indirect)
	if err != nil {
		return fmt.Errorf("inode %d: %w", ino.Inum, err)
	}
	for i := uint64(0); i < t.PtrsPerBlock(); i++ {
		ptr := bnumGet(iblk, i*8)
		if ptr == common.NULLBNUM {
			continue
		}
		if err := t.s.Free(ptr - sb.DataStart); err != nil {
			return fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
	}
	if err := t.s.Free(ino.Indirect - sb.DataStart); err != nil {
		return fmt.Errorf("inode %d: %w", ino.Inum, err)
	}
	return nil
}

// bnumGet reads the 8-byte block pointer at byte offset off.
func bnumGet(blk []byte, off uint64) common.Bnum {
	dec := marshal.NewDec(blk[off : off+8])
	return common.Bnum(dec.GetInt())
}

// bnumPut writes the 8-byte block pointer at byte offset off.
func bnumPut(blk []byte, off uint64, v common.Bnum) {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(v))
	copy(blk[off:off+8], enc.Finish())
}
