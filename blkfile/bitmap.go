package blkfile

import (
	"fmt"
	"math/bits"

	"github.com/keks/chainfs"
)

// Cursor is the allocator's scan position. Blocks are never freed, so
// nothing below the cursor can become free again and the cursor only
// ever moves forward.
//
// A Cursor is plain mutable state; callers sharing one between
// goroutines must serialise access themselves.
type Cursor struct {
	next chainfs.BlockID
}

// NewCursor returns a cursor positioned at the first data block.
func NewCursor() *Cursor {
	return &Cursor{next: FirstDataBlock}
}

// Position is the lowest index not yet known to be allocated.
func (c *Cursor) Position() chainfs.BlockID {
	return c.next
}

func (c *Cursor) advance(bid chainfs.BlockID) {
	if bid > c.next {
		c.next = bid
	}
}

// Bitmap tracks allocated blocks, one bit per block, most significant
// bit first. It lives in the trailing blocks of the image.
type Bitmap struct {
	bits   *region
	geo    Geometry
	cursor *Cursor
}

// NewBitmap opens the bitmap region of rwa. The cursor carries the
// scan position across calls and must not be nil.
func NewBitmap(rwa chainfs.ReadWriterAt, geo Geometry, cursor *Cursor) *Bitmap {
	return &Bitmap{
		bits: &region{
			off:   geo.BitmapOffset(),
			size:  geo.BitmapBlocks * int64(geo.BlockSize),
			lower: rwa,
		},
		geo:    geo,
		cursor: cursor,
	}
}

func bitMask(bid chainfs.BlockID) byte {
	return 0x80 >> uint(bid%8)
}

func (bm *Bitmap) check(bid chainfs.BlockID) error {
	if bid < 0 || int64(bid) >= bm.geo.DataLimit() {
		return fmt.Errorf("bitmap index %d outside [0, %d): %w", bid, bm.geo.DataLimit(), chainfs.ErrInvalid)
	}
	return nil
}

func (bm *Bitmap) readByte(bid chainfs.BlockID) (byte, error) {
	var b [1]byte
	if _, err := bm.bits.ReadAt(b[:], int64(bid/8)); err != nil {
		return 0, fmt.Errorf("reading bitmap byte for block %d: %w", bid, err)
	}
	return b[0], nil
}

// IsAllocated reports whether bid is marked in use.
func (bm *Bitmap) IsAllocated(bid chainfs.BlockID) (bool, error) {
	if err := bm.check(bid); err != nil {
		return false, err
	}

	b, err := bm.readByte(bid)
	if err != nil {
		return false, err
	}

	return b&bitMask(bid) != 0, nil
}

// SetAllocated marks bid as used or unused.
func (bm *Bitmap) SetAllocated(bid chainfs.BlockID, allocated bool) error {
	if err := bm.check(bid); err != nil {
		return err
	}

	b, err := bm.readByte(bid)
	if err != nil {
		return err
	}

	if allocated {
		b |= bitMask(bid)
	} else {
		b &^= bitMask(bid)
	}

	if _, err := bm.bits.WriteAt([]byte{b}, int64(bid/8)); err != nil {
		return fmt.Errorf("writing bitmap byte for block %d: %w", bid, err)
	}

	return nil
}

// scan calls fn for every free block at or after the cursor until fn
// returns false or the data range is exhausted.
func (bm *Bitmap) scan(fn func(chainfs.BlockID) bool) error {
	var (
		cur     byte
		curByte int64 = -1
	)

	for bid := bm.cursor.Position(); int64(bid) < bm.geo.DataLimit(); bid++ {
		if idx := int64(bid / 8); idx != curByte {
			b, err := bm.readByte(bid)
			if err != nil {
				return err
			}
			cur, curByte = b, idx
		}

		if cur&bitMask(bid) == 0 && !fn(bid) {
			return nil
		}
	}

	return nil
}

// FindNextFree returns the first unallocated block at or after the
// cursor and moves the cursor there. It does not mark the block; the
// caller is expected to do so right away.
func (bm *Bitmap) FindNextFree() (chainfs.BlockID, error) {
	found := chainfs.NoBlock
	err := bm.scan(func(bid chainfs.BlockID) bool {
		found = bid
		return false
	})
	if err != nil {
		return chainfs.NoBlock, err
	}

	if found == chainfs.NoBlock {
		return chainfs.NoBlock, fmt.Errorf("bitmap exhausted: %w", chainfs.ErrNoSpace)
	}

	bm.cursor.advance(found)
	return found, nil
}

// Allocate finds a free block and marks it.
func (bm *Bitmap) Allocate() (chainfs.BlockID, error) {
	bid, err := bm.FindNextFree()
	if err != nil {
		return chainfs.NoBlock, err
	}

	if err := bm.SetAllocated(bid, true); err != nil {
		return chainfs.NoBlock, err
	}

	return bid, nil
}

// Reserve finds n free blocks without marking them or moving the
// cursor. If fewer than n are left it returns ErrNoSpace, so callers can
// check for room before touching anything else.
func (bm *Bitmap) Reserve(n int) ([]chainfs.BlockID, error) {
	if n <= 0 {
		return nil, nil
	}

	ids := make([]chainfs.BlockID, 0, n)
	err := bm.scan(func(bid chainfs.BlockID) bool {
		ids = append(ids, bid)
		return len(ids) < n
	})
	if err != nil {
		return nil, err
	}

	if len(ids) < n {
		return nil, fmt.Errorf("need %d blocks, %d free: %w", n, len(ids), chainfs.ErrNoSpace)
	}

	return ids, nil
}

// Claim marks blocks previously returned by Reserve and moves the
// cursor past them.
func (bm *Bitmap) Claim(ids []chainfs.BlockID) error {
	for _, bid := range ids {
		if err := bm.SetAllocated(bid, true); err != nil {
			return err
		}
		bm.cursor.advance(bid)
	}

	return nil
}

// CountAllocated returns the number of marked blocks, including the
// root block.
func (bm *Bitmap) CountAllocated() (int64, error) {
	nbytes := (bm.geo.DataLimit() + 7) / 8
	buf := make([]byte, nbytes)
	if _, err := bm.bits.ReadAt(buf, 0); err != nil {
		return 0, fmt.Errorf("reading bitmap: %w", err)
	}

	// bits past the data range are never set, but mask them anyway
	if rem := bm.geo.DataLimit() % 8; rem != 0 {
		buf[len(buf)-1] &= ^byte(0xff >> uint(rem))
	}

	var count int64
	for _, b := range buf {
		count += int64(bits.OnesCount8(b))
	}

	return count, nil
}
