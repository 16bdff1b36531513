// super defines the superblock: the single on-disk record describing
// the volume layout. Block 0 holds the superblock; every other layer
// derives its bounds from it.
//
// On-disk layout (tchajed/marshal encoding, always at offset 0 of
// block 0):
//
//	magic      uint64
//	blockSize  uint64
//	nBlocks    uint64
//	nInodes    uint64
//	nData      uint64
//	inodeStart uint64
//	bitmapStart uint64
//	dataStart  uint64
//	volumeID   [16]byte
//	checksum   [32]byte   blake3 of all preceding bytes
package super

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"
	"github.com/zeebo/blake3"

	"github.com/minfs/minfs/common"
	"github.com/minfs/minfs/disk"
	"github.com/minfs/minfs/util"
)

// encodedSize is the number of superblock bytes at the front of block 0.
const encodedSize uint64 = 8*8 + 16 + 32

// MinBlockSize keeps one inode slot (and the superblock record itself)
// inside a single block.
const MinBlockSize uint64 = common.InodeSize

var (
	ErrInvalid     = errors.New("superblock is not valid")
	ErrBadMagic    = errors.New("bad superblock magic")
	ErrBadChecksum = errors.New("superblock checksum mismatch")
	ErrTooSmall    = errors.New("device too small for requested layout")
)

// SuperBlock describes the on-disk layout of one volume.
type SuperBlock struct {
	BlockSize uint64 // bytes per block
	NBlocks   uint64 // total blocks on the device
	NInodes   uint64 // inode slots in the inode table
	NData     uint64 // blocks in the data region

	InodeStart  uint64 // first block of the inode table
	BitmapStart uint64 // first block of the free bitmap
	DataStart   uint64 // first block of the data region

	VolumeID uuid.UUID
}

// InodesPerBlock reports how many inode slots fit in one block.
func (sb *SuperBlock) InodesPerBlock() uint64 {
	return sb.BlockSize / common.InodeSize
}

// NInodeBlocks reports the size of the inode table, in blocks.
func (sb *SuperBlock) NInodeBlocks() uint64 {
	return util.RoundUp(sb.NInodes, sb.InodesPerBlock())
}

// BitsPerBlock reports how many data blocks one bitmap block tracks.
func (sb *SuperBlock) BitsPerBlock() uint64 {
	return sb.BlockSize * 8
}

// NBitmapBlocks reports the size of the free bitmap, in blocks.
func (sb *SuperBlock) NBitmapBlocks() uint64 {
	return util.RoundUp(sb.NData, sb.BitsPerBlock())
}

// Valid reports whether the regions fit on the device, in order and
// without overlap: superblock, inode table, bitmap, data.
func (sb *SuperBlock) Valid() bool {
	if sb.BlockSize < MinBlockSize {
		return false
	}
	if sb.NInodes == 0 || sb.NData == 0 {
		return false
	}
	if !(0 < sb.InodeStart && sb.InodeStart < sb.BitmapStart && sb.BitmapStart < sb.DataStart) {
		return false
	}
	if sb.InodeStart+sb.NInodeBlocks() > sb.BitmapStart {
		return false
	}
	if sb.BitmapStart+sb.NBitmapBlocks() > sb.DataStart {
		return false
	}
	if sb.DataStart+sb.NData > sb.NBlocks {
		return false
	}
	return true
}

func (sb *SuperBlock) encodeFields() []byte {
	enc := marshal.NewEnc(encodedSize - 32)
	enc.PutInt(common.Magic)
	enc.PutInt(sb.BlockSize)
	enc.PutInt(sb.NBlocks)
	enc.PutInt(sb.NInodes)
	enc.PutInt(sb.NData)
	enc.PutInt(sb.InodeStart)
	enc.PutInt(sb.BitmapStart)
	enc.PutInt(sb.DataStart)
	enc.PutBytes(sb.VolumeID[:])
	return enc.Finish()
}

func checksum(fields []byte) []byte {
	h := blake3.New()
	h.Write(fields)
	return h.Sum(nil)
}

// Encode serializes the superblock into a fresh block-sized buffer.
func (sb *SuperBlock) Encode() (disk.Block, error) {
	if sb.BlockSize < encodedSize {
		return nil, fmt.Errorf("encode superblock: %w", ErrInvalid)
	}
	fields := sb.encodeFields()
	blk := make(disk.Block, sb.BlockSize)
	copy(blk, fields)
	copy(blk[len(fields):], checksum(fields))
	return blk, nil
}

// Decode reads a superblock back out of block 0's contents, verifying
// the magic and the checksum.
func Decode(blk disk.Block) (SuperBlock, error) {
	if uint64(len(blk)) < encodedSize {
		return SuperBlock{}, fmt.Errorf("decode superblock: short block: %w", ErrInvalid)
	}
	dec := marshal.NewDec(blk[:encodedSize-32])
	if magic := dec.GetInt(); magic != common.Magic {
		return SuperBlock{}, fmt.Errorf("decode superblock: magic %#x: %w", magic, ErrBadMagic)
	}
	sb := SuperBlock{
		BlockSize:   dec.GetInt(),
		NBlocks:     dec.GetInt(),
		NInodes:     dec.GetInt(),
		NData:       dec.GetInt(),
		InodeStart:  dec.GetInt(),
		BitmapStart: dec.GetInt(),
		DataStart:   dec.GetInt(),
	}
	copy(sb.VolumeID[:], dec.GetBytes(16))
	sum := blk[encodedSize-32 : encodedSize]
	if !bytes.Equal(sum, checksum(sb.encodeFields())) {
		return SuperBlock{}, fmt.Errorf("decode superblock: %w", ErrBadChecksum)
	}
	return sb, nil
}

// ComputeLayout lays out a volume on a device of nBlocks blocks: block
// 0 for the superblock, then the inode table, then a bitmap just large
// enough for the data blocks that remain, then the data region.
func ComputeLayout(blockSize, nBlocks, nInodes uint64) (SuperBlock, error) {
	sb := SuperBlock{
		BlockSize: blockSize,
		NBlocks:   nBlocks,
		NInodes:   nInodes,
	}
	if blockSize < MinBlockSize || nInodes == 0 {
		return SuperBlock{}, fmt.Errorf("layout: %w", ErrInvalid)
	}
	sb.InodeStart = 1
	sb.BitmapStart = sb.InodeStart + sb.NInodeBlocks()
	rest := nBlocks
	if sb.BitmapStart+2 > rest {
		return SuperBlock{}, fmt.Errorf("layout: %d blocks: %w", nBlocks, ErrTooSmall)
	}
	rest -= sb.BitmapStart
	// One bitmap block covers BitsPerBlock data blocks; grow the bitmap
	// until the remaining data blocks fit.
	nBitmap := uint64(1)
	for nBitmap*sb.BitsPerBlock() < rest-nBitmap {
		nBitmap++
	}
	if rest <= nBitmap {
		return SuperBlock{}, fmt.Errorf("layout: %d blocks: %w", nBlocks, ErrTooSmall)
	}
	sb.DataStart = sb.BitmapStart + nBitmap
	sb.NData = rest - nBitmap
	if !sb.Valid() {
		return SuperBlock{}, fmt.Errorf("layout: %w", ErrInvalid)
	}
	return sb, nil
}
