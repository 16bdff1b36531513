// block is the lowest file-system layer: raw block access plus the
// free-bitmap allocator for the data region.
//
// Get and Put take absolute device addresses; Alloc, Free and Zero work
// in data-region-relative indices (bit n of the bitmap tracks data
// block n, at absolute address DataStart+n). Every bitmap mutation is a
// read-modify-write cycle on the containing bitmap block, written
// through before the call returns; nothing is cached across calls.
package block

import (
	"errors"
	"fmt"
	"sync"

	"github.com/minfs/minfs/alloc"
	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/super"
	"github.com/minfs/minfs/util"
)

var (
	// ErrDiskFull is returned by Alloc when no free data block exists.
	ErrDiskFull = errors.New("no free data blocks")

	// ErrDoubleFree is returned by Free when the block is already free.
	ErrDoubleFree = errors.New("data block already free")

	// ErrOutOfBounds is returned when a data-region index is past the
	// data region.
	ErrOutOfBounds = errors.New("data block index out of bounds")
)

// Store serves block I/O for one mounted volume.
type Store struct {
	d  disk.Disk
	sb super.SuperBlock

	// mu serializes bitmap read-modify-write cycles, which are not
	// split-safe across concurrent callers.
	mu sync.Mutex
}

func New(d disk.Disk, sb super.SuperBlock) *Store {
	return &Store{d: d, sb: sb}
}

// Super returns the superblock this store was mounted with.
func (s *Store) Super() super.SuperBlock {
	return s.sb
}

// Get reads the block at absolute address a.
func (s *Store) Get(a common.Bnum) (disk.Block, error) {
	blk, err := s.d.Read(a)
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	return blk, nil
}

// Put writes blk at absolute address a.
func (s *Store) Put(a common.Bnum, blk disk.Block) error {
	if err := s.d.Write(a, blk); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	return nil
}

// Zero overwrites data block i (data-region relative) with zeros.
func (s *Store) Zero(i uint64) error {
	if i >= s.sb.NData {
		return fmt.Errorf("block zero %d of %d: %w", i, s.sb.NData, ErrOutOfBounds)
	}
	return s.Put(s.sb.DataStart+i, make(disk.Block, s.sb.BlockSize))
}

// bitmapBlock returns the bitmap block covering data block i, its
// address, and i's bit offset within it.
func (s *Store) bitmapBlock(i uint64) (disk.Block, common.Bnum, uint64, error) {
	a := s.sb.BitmapStart + i/s.sb.BitsPerBlock()
	blk, err := s.Get(a)
	if err != nil {
		return nil, 0, 0, err
	}
	return blk, a, i % s.sb.BitsPerBlock(), nil
}

// Alloc claims the first free data block, zero-fills it, and returns
// its data-region-relative index. The bit is set and written through
// before the block is handed out.
func (s *Store) Alloc() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for bb := uint64(0); bb < s.sb.NBitmapBlocks(); bb++ {
		nbits := util.Min(s.sb.BitsPerBlock(), s.sb.NData-bb*s.sb.BitsPerBlock())
		a := s.sb.BitmapStart + bb
		blk, err := s.Get(a)
		if err != nil {
			return 0, err
		}
		bit, ok := alloc.FindFree(blk, nbits)
		if !ok {
			continue
		}
		alloc.SetBit(blk, bit)
		if err := s.Put(a, blk); err != nil {
			return 0, err
		}
		i := bb*s.sb.BitsPerBlock() + bit
		util.DPrintf(5, "block alloc: %d\n", i)
		if err := s.Zero(i); err != nil {
			return 0, err
		}
		return i, nil
	}
	return 0, fmt.Errorf("block alloc: %w", ErrDiskFull)
}

// Free releases data block i.
func (s *Store) Free(i uint64) error {
	if i >= s.sb.NData {
		return fmt.Errorf("block free %d of %d: %w", i, s.sb.NData, ErrOutOfBounds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blk, a, bit, err := s.bitmapBlock(i)
	if err != nil {
		return err
	}
	if !alloc.TestBit(blk, bit) {
		return fmt.Errorf("block free %d: %w", i, ErrDoubleFree)
	}
	alloc.FreeBit(blk, bit)
	util.DPrintf(5, "block free: %d\n", i)
	return s.Put(a, blk)
}

// NumFree counts the free data blocks by scanning the bitmap.
func (s *Store) NumFree() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var used uint64
	for bb := uint64(0); bb < s.sb.NBitmapBlocks(); bb++ {
		nbits := util.Min(s.sb.BitsPerBlock(), s.sb.NData-bb*s.sb.BitsPerBlock())
		blk, err := s.Get(s.sb.BitmapStart + bb)
		if err != nil {
			return 0, err
		}
		used += alloc.CountSet(blk, nbits)
	}
	return s.sb.NData - used, nil
}
