package blkfile

import (
	"fmt"
	"io"

	"github.com/keks/chainfs"
)

// Blocks reads and writes whole blocks of an image. It keeps no state
// besides the geometry; every call goes straight to the lower layer.
type Blocks struct {
	lower chainfs.ReadWriterAt
	geo   Geometry
}

// New returns a block store over rwa.
func New(rwa chainfs.ReadWriterAt, geo Geometry) *Blocks {
	return &Blocks{
		lower: rwa,
		geo:   geo,
	}
}

// Geometry returns the layout the store was created with.
func (blks *Blocks) Geometry() Geometry {
	return blks.geo
}

func (blks *Blocks) get(bid chainfs.BlockID) (*region, error) {
	if !blks.geo.Contains(bid) {
		return nil, fmt.Errorf("block %d outside image of %d blocks: %w", bid, blks.geo.TotalBlocks, chainfs.ErrInvalid)
	}

	return &region{
		off:   int64(bid) * int64(blks.geo.BlockSize),
		size:  int64(blks.geo.BlockSize),
		lower: blks.lower,
	}, nil
}

// ReadBlock returns a fresh copy of block bid.
func (blks *Blocks) ReadBlock(bid chainfs.BlockID) ([]byte, error) {
	blk, err := blks.get(bid)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, blks.geo.BlockSize)
	n, err := blk.ReadAt(buf, 0)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading block %d (got %d bytes): %w", bid, n, err)
	}

	return buf, nil
}

// WriteBlock replaces block bid with buf, which must be exactly one
// block long.
func (blks *Blocks) WriteBlock(bid chainfs.BlockID, buf []byte) error {
	if len(buf) != blks.geo.BlockSize {
		return fmt.Errorf("writing block %d: buffer is %d bytes, want %d: %w", bid, len(buf), blks.geo.BlockSize, chainfs.ErrInvalid)
	}

	blk, err := blks.get(bid)
	if err != nil {
		return err
	}

	if _, err := blk.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("writing block %d: %w", bid, err)
	}

	return nil
}
