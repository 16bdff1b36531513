package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

func TestBitOps(t *testing.T) {
	assert := assert.New(t)
	blk := make([]byte, 2)

	assert.False(TestBit(blk, 9))
	SetBit(blk, 9)
	assert.True(TestBit(blk, 9))
	assert.Equal(byte(0), blk[0], "neighboring byte untouched")
	assert.Equal(byte(2), blk[1])

	FreeBit(blk, 9)
	assert.False(TestBit(blk, 9))
	assert.Equal(byte(0), blk[1])
}

func TestFindFree(t *testing.T) {
	assert := assert.New(t)
	blk := make([]byte, 2)

	n, ok := FindFree(blk, 16)
	assert.True(ok)
	assert.Equal(uint64(0), n, "first-fit starts at bit 0")

	for i := uint64(0); i < 11; i++ {
		SetBit(blk, i)
	}
	n, ok = FindFree(blk, 16)
	assert.True(ok)
	assert.Equal(uint64(11), n, "skips the full first byte")

	for i := uint64(11); i < 16; i++ {
		SetBit(blk, i)
	}
	_, ok = FindFree(blk, 16)
	assert.False(ok, "no free bit left")
}

func TestFindFreeRespectsLimit(t *testing.T) {
	assert := assert.New(t)
	blk := make([]byte, 1)
	for i := uint64(0); i < 5; i++ {
		SetBit(blk, i)
	}
	// bits 5..7 are clear but only 5 bits are in range
	_, ok := FindFree(blk, 5)
	assert.False(ok)
}

func TestCountSet(t *testing.T) {
	assert := assert.New(t)
	blk := make([]byte, 2)
	assert.Equal(uint64(0), CountSet(blk, 16))

	SetBit(blk, 0)
	SetBit(blk, 7)
	SetBit(blk, 12)
	assert.Equal(uint64(3), CountSet(blk, 16))
	assert.Equal(uint64(2), CountSet(blk, 12), "bit 12 out of range")
}
