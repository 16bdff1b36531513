package inode

import (
	"fmt"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/util"
)

// bmap resolves file block fbn of ino to an absolute block address,
// walking the direct pointers first and the indirect block after them.
// With grow set, missing blocks (and the indirect block) are allocated;
// allocated blocks come back zero-filled from the block layer. The
// returned flag reports whether the handle was mutated and needs a Put.
func (t *Table) bmap(ino *Inode, fbn uint64, grow bool) (common.Bnum, bool, error) {
	sb := t.s.Super()
	if fbn < common.NDirect {
		if ino.Direct[fbn] != common.NULLBNUM {
			return ino.Direct[fbn], false, nil
		}
		if !grow {
			return common.NULLBNUM, false, nil
		}
		i, err := t.s.Alloc()
		if err != nil {
			return common.NULLBNUM, false, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
		ino.Direct[fbn] = sb.DataStart + i
		return ino.Direct[fbn], true, nil
	}

	ifbn := fbn - common.NDirect
	if ifbn >= t.PtrsPerBlock() {
		return common.NULLBNUM, false, fmt.Errorf("inode %d block %d: %w", ino.Inum, fbn, ErrFileTooLarge)
	}
	var dirty bool
	if ino.Indirect == common.NULLBNUM {
		if !grow {
			return common.NULLBNUM, false, nil
		}
		i, err := t.s.Alloc()
		if err != nil {
			return common.NULLBNUM, false, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
		ino.Indirect = sb.DataStart + i
		dirty = true
	}
	iblk, err := t.s.Get(ino.Indirect)
	if err != nil {
		return common.NULLBNUM, dirty, fmt.Errorf("inode %d: %w", ino.Inum, err)
	}
	ptr := bnumGet(iblk, ifbn*8)
	if ptr == common.NULLBNUM && grow {
		i, err := t.s.Alloc()
		if err != nil {
			return common.NULLBNUM, dirty, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
		ptr = sb.DataStart + i
		bnumPut(iblk, ifbn*8, ptr)
		if err := t.s.Put(ino.Indirect, iblk); err != nil {
			return common.NULLBNUM, dirty, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
	}
	return ptr, dirty, nil
}

// Read returns up to n bytes of the file starting at byte offset off.
// Reads past Size are clamped; an offset at or past Size reads nothing.
func (t *Table) Read(ino *Inode, off uint64, n uint64) ([]byte, error) {
	bs := t.s.Super().BlockSize
	if off >= ino.Size {
		return nil, nil
	}
	n = util.Min(n, ino.Size-off)
	data := make([]byte, 0, n)
	for n > 0 {
		boff := off % bs
		frag := util.Min(bs-boff, n)
		ptr, _, err := t.bmap(ino, off/bs, false)
		if err != nil {
			return nil, err
		}
		if ptr == common.NULLBNUM {
			// never-sparse invariant says this cannot happen below
			// Size; tolerate a hole as zeros rather than corrupting
			data = append(data, make([]byte, frag)...)
		} else {
			blk, err := t.s.Get(ptr)
			if err != nil {
				return nil, fmt.Errorf("inode %d: %w", ino.Inum, err)
			}
			data = append(data, blk[boff:boff+frag]...)
		}
		off += frag
		n -= frag
	}
	return data, nil
}

// Write stores data at byte offset off, allocating blocks as the range
// extends past the allocated ones and zero-filling any gap between the
// old size and off. Size grows to cover the write. A write that
// mutates the handle (allocation or size change) persists it before
// returning, so every bitmap bit set here is reachable from the table;
// other metadata edits still need an explicit Put.
func (t *Table) Write(ino *Inode, off uint64, data []byte) (uint64, error) {
	bs := t.s.Super().BlockSize
	end := off + uint64(len(data))
	if end < off || end > t.MaxFileSize() {
		return 0, fmt.Errorf("inode %d write at %d (%d bytes): %w", ino.Inum, off, len(data), ErrFileTooLarge)
	}
	if len(data) == 0 {
		return 0, nil
	}

	var dirty bool
	// materialize gap blocks between the current size and the write,
	// then every block the write touches
	for fbn := util.Min(ino.Size, off) / bs; fbn <= (end-1)/bs; fbn++ {
		_, grew, err := t.bmap(ino, fbn, true)
		dirty = dirty || grew
		if err != nil {
			if dirty {
				// keep already-allocated blocks reachable
				if perr := t.Put(ino); perr != nil {
					return 0, perr
				}
			}
			return 0, err
		}
	}
	// persist the new pointers before any data goes out, so a failure
	// below cannot strand a bitmap bit without an on-disk reference
	if dirty {
		if err := t.Put(ino); err != nil {
			return 0, err
		}
		dirty = false
	}

	for nwritten := uint64(0); nwritten < uint64(len(data)); {
		cur := off + nwritten
		boff := cur % bs
		frag := util.Min(bs-boff, uint64(len(data))-nwritten)
		ptr, _, err := t.bmap(ino, cur/bs, false)
		if err != nil {
			return nwritten, err
		}
		blk, err := t.s.Get(ptr)
		if err != nil {
			return nwritten, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
		copy(blk[boff:boff+frag], data[nwritten:nwritten+frag])
		if err := t.s.Put(ptr, blk); err != nil {
			return nwritten, fmt.Errorf("inode %d: %w", ino.Inum, err)
		}
		nwritten += frag
	}

	if end > ino.Size {
		ino.Size = end
		dirty = true
	}
	if dirty {
		if err := t.Put(ino); err != nil {
			return uint64(len(data)), err
		}
	}
	util.DPrintf(5, "inode write: %d [%d, %d)\n", ino.Inum, off, end)
	return uint64(len(data)), nil
}
