package blkfile

import (
	"bytes"
	"testing"

	"github.com/keks/chainfs"
	"github.com/stretchr/testify/require"
)

type op interface {
	Do(*testing.T, chainfs.ReadWriterAt)
}

type formatOp struct {
	geo Geometry

	expErr error
}

func (op formatOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	err := Format(rwa, op.geo)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type cursorResetOp struct {
	cursor *Cursor
}

func (op cursorResetOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	*op.cursor = *NewCursor()
}

type cursorOp struct {
	cursor *Cursor

	exp chainfs.BlockID
}

func (op cursorOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	require.Equal(t, op.exp, op.cursor.Position(), "cursor position")
}

type rgnWriteOp struct {
	data []byte
	off  int64

	rgnOff  int64
	rgnSize int64

	expN   int
	expErr string
}

func (op rgnWriteOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	r := require.New(t)

	rgn := &region{
		lower: rwa,
		off:   op.rgnOff,
		size:  op.rgnSize,
	}

	n, err := rgn.WriteAt(op.data, op.off)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	r.Equal(op.expN, n)
	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
}

type rgnReadOp struct {
	off     int64
	readlen int

	rgnOff  int64
	rgnSize int64

	exp    []byte
	expN   int
	expErr string
}

func (op rgnReadOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	rgn := &region{
		lower: rwa,
		off:   op.rgnOff,
		size:  op.rgnSize,
	}

	buf := make([]byte, op.readlen)
	n, err := rgn.ReadAt(buf, op.off)
	t.Logf("readOp, n: %d, err: %v", n, err)

	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
	r.Equal(op.expN, n)
	r.True(bytes.Equal(buf[:op.expN], op.exp), "buffer contents %q", buf[:op.expN])
}

type blockWriteOp struct {
	geo  Geometry
	bid  chainfs.BlockID
	data []byte

	expErr error
}

func (op blockWriteOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	err := New(rwa, op.geo).WriteBlock(op.bid, op.data)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type blockReadOp struct {
	geo Geometry
	bid chainfs.BlockID

	exp    []byte
	expErr error
}

func (op blockReadOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	buf, err := New(rwa, op.geo).ReadBlock(op.bid)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}

	require.NoError(t, err)
	require.Equal(t, op.exp, buf)
}

type allocOp struct {
	geo    Geometry
	cursor *Cursor

	expBid chainfs.BlockID
	expErr error
}

func (op allocOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	bid, err := NewBitmap(rwa, op.geo, op.cursor).Allocate()
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		require.Equal(t, chainfs.NoBlock, bid)
		return
	}

	require.NoError(t, err)
	require.Equal(t, op.expBid, bid, "block id returned by allocate")
}

type findFreeOp struct {
	geo    Geometry
	cursor *Cursor

	expBid chainfs.BlockID
	expErr error
}

func (op findFreeOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	bid, err := NewBitmap(rwa, op.geo, op.cursor).FindNextFree()
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}

	require.NoError(t, err)
	require.Equal(t, op.expBid, bid, "block id returned by find")
}

type setOp struct {
	geo       Geometry
	bid       chainfs.BlockID
	allocated bool

	expErr error
}

func (op setOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	err := NewBitmap(rwa, op.geo, NewCursor()).SetAllocated(op.bid, op.allocated)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type isAllocatedOp struct {
	geo Geometry
	bid chainfs.BlockID

	exp bool
}

func (op isAllocatedOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	got, err := NewBitmap(rwa, op.geo, NewCursor()).IsAllocated(op.bid)
	require.NoError(t, err)
	require.Equal(t, op.exp, got, "allocation state of block %d", op.bid)
}

type reserveOp struct {
	geo    Geometry
	cursor *Cursor
	n      int
	claim  bool

	exp    []chainfs.BlockID
	expErr error
}

func (op reserveOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	bm := NewBitmap(rwa, op.geo, op.cursor)
	ids, err := bm.Reserve(op.n)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		require.Empty(t, ids)
		return
	}

	require.NoError(t, err)
	require.Equal(t, op.exp, ids)

	if op.claim {
		require.NoError(t, bm.Claim(ids))
	}
}

type countOp struct {
	geo Geometry

	exp int64
}

func (op countOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	n, err := NewBitmap(rwa, op.geo, NewCursor()).CountAllocated()
	require.NoError(t, err)
	require.Equal(t, op.exp, n, "allocated blocks")
}

type bitmapByteOp struct {
	geo Geometry
	idx int64

	exp byte
}

func (op bitmapByteOp) Do(t *testing.T, rwa chainfs.ReadWriterAt) {
	var b [1]byte
	_, err := rwa.ReadAt(b[:], op.geo.BitmapOffset()+op.idx)
	require.NoError(t, err)
	require.Equal(t, op.exp, b[0], "bitmap byte %d: %08b", op.idx, b[0])
}
