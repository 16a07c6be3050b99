package blkfile

import (
	"io"
	"io/ioutil"
	"os"
	"testing"

	"github.com/keks/chainfs"
	"github.com/stretchr/testify/require"
)

// memImage is an in-memory image that grows on write, like a sparse
// file.
type memImage struct {
	buf []byte
}

func (img *memImage) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off != int64(int(off)) {
		return 0, io.EOF
	}

	if int(off) >= len(img.buf) {
		return 0, io.EOF
	}

	max := len(img.buf) - int(off)
	var err error
	if max < len(buf) {
		buf = buf[:max]
		err = io.EOF
	}

	copy(buf, img.buf[int(off):])

	return len(buf), err
}

func (img *memImage) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off != int64(int(off)) {
		return 0, io.EOF
	}

	if int(off)+len(data) > len(img.buf) {
		img.buf = append(img.buf, make([]byte, int(off)+len(data)-len(img.buf))...)
	}

	copy(img.buf[int(off):], data)

	return len(data), nil
}

// testImages returns a fresh in-memory image and a fresh temporary
// file, both size bytes long, so every test runs against both.
func testImages(t *testing.T, size int64) map[string]chainfs.ReadWriterAt {
	f, err := ioutil.TempFile("", "chainfs-blkfile-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		f.Close()
		os.Remove(f.Name())
	})
	require.NoError(t, f.Truncate(size))

	return map[string]chainfs.ReadWriterAt{
		"memory": &memImage{buf: make([]byte, size)},
		"file":   f,
	}
}

// testGeometry is 64 blocks of 512 bytes: root, 62 data blocks, one
// bitmap block.
func testGeometry(t *testing.T) Geometry {
	geo, err := NewGeometry(64*512, 512)
	require.NoError(t, err)
	return geo
}
