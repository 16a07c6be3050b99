package blkfile

import (
	"fmt"

	"github.com/keks/chainfs"
)

// Format writes an empty filesystem onto rwa: a zeroed root block (no
// directories) and a bitmap with only the root block marked. Data
// blocks are left alone; the image must already be geo.ImageSize()
// bytes long.
func Format(rwa chainfs.ReadWriterAt, geo Geometry) error {
	blks := New(rwa, geo)

	if err := blks.WriteBlock(chainfs.RootBlock, make([]byte, geo.BlockSize)); err != nil {
		return fmt.Errorf("formatting root block: %w", err)
	}

	zero := make([]byte, geo.BlockSize)
	for i := int64(0); i < geo.BitmapBlocks; i++ {
		bid := chainfs.BlockID(geo.DataLimit() + i)
		if err := blks.WriteBlock(bid, zero); err != nil {
			return fmt.Errorf("formatting bitmap: %w", err)
		}
	}

	bm := NewBitmap(rwa, geo, NewCursor())
	if err := bm.SetAllocated(chainfs.RootBlock, true); err != nil {
		return fmt.Errorf("reserving root block: %w", err)
	}

	return nil
}
