// alloc manipulates free bitmaps stored in raw block buffers. Bit n of
// a buffer tracks one allocation unit; the block layer decides which
// disk block each bit stands for and performs the read-modify-write
// cycle around these helpers.
package alloc

// TestBit reports whether bit n is set in blk.
func TestBit(blk []byte, n uint64) bool {
	return blk[n/8]&(1<<(n%8)) != 0
}

// SetBit sets bit n in blk.
func SetBit(blk []byte, n uint64) {
	blk[n/8] = blk[n/8] | (1 << (n % 8))
}

// FreeBit clears bit n in blk.
func FreeBit(blk []byte, n uint64) {
	blk[n/8] = blk[n/8] & ^(1 << (n % 8))
}

// FindFree returns the first clear bit among the low nbits of blk,
// scanning byte-at-a-time and skipping full bytes.
func FindFree(blk []byte, nbits uint64) (uint64, bool) {
	for i := uint64(0); i*8 < nbits; i++ {
		if blk[i] == 0xff {
			continue
		}
		var bit uint64
		for blk[i]&(1<<bit) != 0 {
			bit++
		}
		n := i*8 + bit
		if n >= nbits {
			break
		}
		return n, true
	}
	return 0, false
}

func popCnt(b byte) uint64 {
	var count uint64
	for i := uint64(0); i < 8; i++ {
		if b&(1<<i) != 0 {
			count++
		}
	}
	return count
}

// CountSet returns how many of the low nbits of blk are set.
func CountSet(blk []byte, nbits uint64) uint64 {
	var count uint64
	for i := uint64(0); i*8 < nbits; i++ {
		b := blk[i]
		if rem := nbits - i*8; rem < 8 {
			b &= (1 << rem) - 1
		}
		count += popCnt(b)
	}
	return count
}
