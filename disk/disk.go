// disk provides access to a logical block-based disk with a
// configurable block size.
package disk

import "errors"

// Block is a byte buffer of exactly the disk's block size.
type Block = []byte

var (
	// ErrOutOfBounds is returned when a block address is at or past the
	// end of the disk.
	ErrOutOfBounds = errors.New("block address out of bounds")

	// ErrBadBlock is returned when a buffer passed to Write is not
	// block-sized.
	ErrBadBlock = errors.New("buffer is not block-sized")
)

// Disk provides access to fixed-size blocks addressed by index.
//
// A Write is durable before the call returns; Barrier additionally
// orders writes issued through buffered implementations. No component
// above this interface touches storage directly.
type Disk interface {
	// Read reads the block at address a.
	//
	// Fails with ErrOutOfBounds when a >= Size().
	Read(a uint64) (Block, error)

	// Write updates the block at address a.
	//
	// Fails with ErrOutOfBounds when a >= Size() and with ErrBadBlock
	// when len(v) != BlockSize().
	Write(a uint64, v Block) error

	// BlockSize reports the size of one block, in bytes.
	BlockSize() uint64

	// Size reports how big the disk is, in blocks.
	Size() uint64

	// Barrier ensures all outstanding writes are durably on disk.
	Barrier() error

	// Close releases any resources used by the disk and makes it
	// unusable.
	Close() error
}
