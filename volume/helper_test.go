package volume

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
	"github.com/stretchr/testify/require"
)

type memImage struct {
	buf []byte

	opens, closes int
}

func (img *memImage) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(img.buf)) {
		return 0, io.EOF
	}

	n := copy(buf, img.buf[off:])
	if n < len(buf) {
		return n, io.EOF
	}

	return n, nil
}

func (img *memImage) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(data)) > int64(len(img.buf)) {
		// images do not grow
		return 0, io.ErrShortWrite
	}

	return copy(img.buf[off:], data), nil
}

func (img *memImage) Open() (chainfs.Image, error) {
	img.opens++
	return img, nil
}

func (img *memImage) Close() error {
	img.closes++
	return nil
}

// next returns the raw next pointer stored in block bid.
func (img *memImage) next(bid chainfs.BlockID) uint64 {
	end := (int64(bid) + 1) * 512
	return binary.LittleEndian.Uint64(img.buf[end-chainfs.PointerSize : end])
}

func (img *memImage) setNext(bid chainfs.BlockID, next uint64) {
	end := (int64(bid) + 1) * 512
	binary.LittleEndian.PutUint64(img.buf[end-chainfs.PointerSize:end], next)
}

// newTestVolume formats an in-memory image of the given number of
// 512-byte blocks.
func newTestVolume(t *testing.T, blocks int64) (*Volume, *memImage) {
	t.Helper()

	img := &memImage{buf: make([]byte, blocks*512)}
	geo, err := blkfile.NewGeometry(int64(len(img.buf)), 512)
	require.NoError(t, err)
	require.NoError(t, blkfile.Format(img, geo))

	vol, err := New(img, int64(len(img.buf)), Options{})
	require.NoError(t, err)

	return vol, img
}

// pattern returns n bytes that differ from block to block.
func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = seed + byte(i*7) + byte(i/504)
	}
	return buf
}

func usedBlocks(t *testing.T, vol *Volume) int64 {
	t.Helper()

	usage, err := vol.Usage()
	require.NoError(t, err)
	return usage.UsedBlocks
}
