package blkfile

import (
	"fmt"

	"github.com/keks/chainfs"
)

// FirstDataBlock is the lowest index the allocator hands out. Block 0
// belongs to the root directory.
const FirstDataBlock chainfs.BlockID = 1

// MinBlockSize is the smallest block size that still fits one entry of
// every record type alongside its header.
const MinBlockSize = 64

// Geometry describes how an image is cut into blocks.
//
//	[ root | data ... data | bitmap ... bitmap ]
//	  0      1 .. T-K-1      T-K .. T-1
type Geometry struct {
	BlockSize    int
	TotalBlocks  int64
	BitmapBlocks int64
}

// NewGeometry computes the layout of an image of imageSize bytes. The
// bitmap gets one bit per block of the image and is rounded up to whole
// blocks.
func NewGeometry(imageSize int64, blockSize int) (Geometry, error) {
	if blockSize < MinBlockSize {
		return Geometry{}, fmt.Errorf("block size %d below minimum %d: %w", blockSize, MinBlockSize, chainfs.ErrInvalid)
	}
	if imageSize <= 0 || imageSize%int64(blockSize) != 0 {
		return Geometry{}, fmt.Errorf("image size %d is not a positive multiple of block size %d: %w", imageSize, blockSize, chainfs.ErrInvalid)
	}

	total := imageSize / int64(blockSize)
	bitsPerBlock := int64(blockSize) * 8
	geo := Geometry{
		BlockSize:    blockSize,
		TotalBlocks:  total,
		BitmapBlocks: (total + bitsPerBlock - 1) / bitsPerBlock,
	}

	if geo.DataLimit() <= int64(FirstDataBlock) {
		return Geometry{}, fmt.Errorf("image of %d blocks has no room for data: %w", total, chainfs.ErrInvalid)
	}

	return geo, nil
}

// ImageSize is the size of the image in bytes.
func (geo Geometry) ImageSize() int64 {
	return geo.TotalBlocks * int64(geo.BlockSize)
}

// DataLimit is one past the highest allocatable block index.
func (geo Geometry) DataLimit() int64 {
	return geo.TotalBlocks - geo.BitmapBlocks
}

// DataBlocks is the number of blocks the allocator can hand out.
func (geo Geometry) DataBlocks() int64 {
	return geo.DataLimit() - int64(FirstDataBlock)
}

// BitmapOffset is the byte offset of the bitmap region.
func (geo Geometry) BitmapOffset() int64 {
	return geo.DataLimit() * int64(geo.BlockSize)
}

// Contains reports whether id addresses a block inside the image.
func (geo Geometry) Contains(id chainfs.BlockID) bool {
	return id.Valid() && int64(id) < geo.TotalBlocks
}

// IsData reports whether id lies in the allocatable range.
func (geo Geometry) IsData(id chainfs.BlockID) bool {
	return id >= FirstDataBlock && int64(id) < geo.DataLimit()
}

// PayloadSize is the number of file bytes one data block carries.
func (geo Geometry) PayloadSize() int {
	return geo.BlockSize - chainfs.PointerSize
}
