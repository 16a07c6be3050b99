package layout

import (
	"fmt"

	"github.com/keks/chainfs"
)

// PayloadSize is the number of file bytes a data block of blockSize
// bytes carries.
func PayloadSize(blockSize int) int {
	return blockSize - chainfs.PointerSize
}

// DataBlock is one link of a file chain.
//
// On disk a next pointer of 0 ends the chain; block 0 is the root
// directory and is never part of a chain. In memory the end is always
// spelled chainfs.NoBlock.
type DataBlock struct {
	Payload []byte
	Next    chainfs.BlockID
}

// NewDataBlock returns an empty, unlinked block.
func NewDataBlock(blockSize int) *DataBlock {
	return &DataBlock{
		Payload: make([]byte, PayloadSize(blockSize)),
		Next:    chainfs.NoBlock,
	}
}

// Last reports whether this block ends its chain.
func (blk *DataBlock) Last() bool {
	return blk.Next == chainfs.NoBlock
}

// Encode serialises the block. The payload must be exactly
// PayloadSize(blockSize) bytes.
func (blk *DataBlock) Encode(blockSize int) ([]byte, error) {
	if len(blk.Payload) != PayloadSize(blockSize) {
		return nil, fmt.Errorf("payload is %d bytes, want %d: %w", len(blk.Payload), PayloadSize(blockSize), chainfs.ErrInvalid)
	}

	buf := make([]byte, blockSize)
	copy(buf, blk.Payload)

	switch {
	case blk.Next == chainfs.NoBlock:
		// zero pointer
	case blk.Next == chainfs.RootBlock || !blk.Next.Valid():
		return nil, fmt.Errorf("block %d cannot continue a chain: %w", blk.Next, chainfs.ErrInvalid)
	default:
		putBlockID(buf[PayloadSize(blockSize):], blk.Next)
	}

	return buf, nil
}

// DecodeData parses a data block. The payload aliases buf.
func DecodeData(buf []byte) (*DataBlock, error) {
	if len(buf) <= chainfs.PointerSize {
		return nil, fmt.Errorf("data block of %d bytes too short: %w", len(buf), chainfs.ErrInvalid)
	}

	next, err := getBlockID(buf[PayloadSize(len(buf)):])
	if err != nil {
		return nil, err
	}
	if next == chainfs.RootBlock {
		next = chainfs.NoBlock
	}

	return &DataBlock{
		Payload: buf[:PayloadSize(len(buf))],
		Next:    next,
	}, nil
}
