package volume

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
	"github.com/keks/chainfs/layout"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	type testcase struct {
		in string

		exp    Path
		expErr error
	}

	tcs := []testcase{
		{in: "/", exp: RootPath},
		{in: "/docs", exp: Path{Kind: KindDir, Dir: "docs"}},
		{in: "/docs/", exp: Path{Kind: KindDir, Dir: "docs"}},
		{in: "/docs/a.txt", exp: Path{Kind: KindFile, Dir: "docs", Name: "a", Ext: "txt"}},
		{in: "/12345678/12345678.123", exp: Path{Kind: KindFile, Dir: "12345678", Name: "12345678", Ext: "123"}},
		{in: "/d/a.b.c", exp: Path{Kind: KindFile, Dir: "d", Name: "a", Ext: "b.c"}},
		{in: "", expErr: chainfs.ErrInvalid},
		{in: "docs", expErr: chainfs.ErrInvalid},
		{in: "/docs//a.txt", expErr: chainfs.ErrInvalid},
		{in: "/docs/a", expErr: chainfs.ErrInvalid},
		{in: "/docs/a.", expErr: chainfs.ErrInvalid},
		{in: "/docs/.txt", expErr: chainfs.ErrInvalid},
		{in: "/a/b/c.d", expErr: chainfs.ErrInvalid},
		{in: "/123456789", expErr: chainfs.ErrNameTooLong},
		{in: "/123456789/a.txt", expErr: chainfs.ErrNameTooLong},
		{in: "/docs/123456789.txt", expErr: chainfs.ErrNameTooLong},
		{in: "/docs/a.text", expErr: chainfs.ErrNameTooLong},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			p, err := ParsePath(tc.in)
			if tc.expErr != nil {
				require.ErrorIs(t, err, tc.expErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.exp, p)
		})
	}
}

// Block size 512 leaves 504 payload bytes per block, so 1000 bytes
// take exactly two blocks.
func TestWriteThousandBytes(t *testing.T) {
	r := require.New(t)
	vol, img := newTestVolume(t, 128)

	r.NoError(vol.Mkdir("/docs"))
	r.NoError(vol.Mknod("/docs/a.txt"))

	data := bytes.Repeat([]byte{0xAB}, 1000)
	n, err := vol.Write("/docs/a.txt", data, 0)
	r.NoError(err)
	r.Equal(1000, n)

	attr, err := vol.Stat("/docs/a.txt")
	r.NoError(err)
	r.Equal(Attr{Size: 1000}, attr)

	// docs is block 1, a.txt starts at block 2 and continues in 3
	r.Equal(uint64(3), img.next(2))
	r.Equal(uint64(0), img.next(3))
	r.Equal(bytes.Repeat([]byte{0xAB}, 504), img.buf[2*512:2*512+504])
	r.Equal(bytes.Repeat([]byte{0xAB}, 496), img.buf[3*512:3*512+496])
	r.Equal(make([]byte, 8), img.buf[3*512+496:3*512+504], "unused payload stays zero")
	r.Equal(int64(3), usedBlocks(t, vol))

	got, err := vol.Read("/docs/a.txt", 1000, 0)
	r.NoError(err)
	r.Equal(data, got)

	got, err = vol.Read("/docs/a.txt", 50, 1000)
	r.NoError(err)
	r.Empty(got)

	_, err = vol.Write("/docs/a.txt", []byte{1}, 1001)
	r.ErrorIs(err, chainfs.ErrFileTooLarge)
}

func TestRoundTrip(t *testing.T) {
	const payload = 504

	for _, size := range []int{1, 100, payload - 1, payload, payload + 1, 2 * payload, 3*payload + 17, 10 * payload} {
		size := size
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			r := require.New(t)
			vol, _ := newTestVolume(t, 128)

			r.NoError(vol.Mkdir("/d"))
			r.NoError(vol.Mknod("/d/f.bin"))

			data := pattern(size, byte(size))
			n, err := vol.Write("/d/f.bin", data, 0)
			r.NoError(err)
			r.Equal(size, n)

			got, err := vol.Read("/d/f.bin", size, 0)
			r.NoError(err)
			r.Equal(data, got)

			blocks := int64((size + payload - 1) / payload)
			r.Equal(1+blocks, usedBlocks(t, vol), "directory block plus chain")
		})
	}
}

func TestRootCapacity(t *testing.T) {
	r := require.New(t)
	vol, _ := newTestVolume(t, 128)

	capacity := layout.RootCapacity(512)
	for i := 0; i < capacity; i++ {
		r.NoError(vol.Mkdir(fmt.Sprintf("/dir%d", i)))
	}

	used := usedBlocks(t, vol)
	cursor := vol.Cursor()

	r.ErrorIs(vol.Mkdir("/onemore"), chainfs.ErrNoSpace)
	r.Equal(used, usedBlocks(t, vol), "no block allocated")
	r.Equal(cursor, vol.Cursor())

	names, err := vol.List("/")
	r.NoError(err)
	r.Len(names, capacity)
}

func TestDirCapacity(t *testing.T) {
	r := require.New(t)
	vol, _ := newTestVolume(t, 128)

	r.NoError(vol.Mkdir("/d"))

	capacity := layout.DirCapacity(512)
	for i := 0; i < capacity; i++ {
		r.NoError(vol.Mknod(fmt.Sprintf("/d/f%d.txt", i)))
	}

	used := usedBlocks(t, vol)
	r.ErrorIs(vol.Mknod("/d/onemore.txt"), chainfs.ErrNoSpace)
	r.Equal(used, usedBlocks(t, vol))

	r.NoError(vol.Mkdir("/e"))
	r.NoError(vol.Mknod("/e/onemore.txt"), "other directories are unaffected")
}

func TestBitmapExhaustion(t *testing.T) {
	r := require.New(t)

	// 16 blocks: root, 14 data blocks, 1 bitmap block
	vol, img := newTestVolume(t, 16)
	r.Equal(int64(14), vol.Geometry().DataBlocks())

	r.NoError(vol.Mkdir("/d"))
	r.NoError(vol.Mknod("/d/f.bin"))
	r.NoError(vol.Mknod("/d/g.bin"))
	r.Equal(int64(3), usedBlocks(t, vol))

	small := pattern(100, 9)
	_, err := vol.Write("/d/f.bin", small, 0)
	r.NoError(err)

	before := append([]byte{}, img.buf...)

	// f.bin may grow to 12 blocks (11 more); ask for 12 more
	_, err = vol.Write("/d/f.bin", pattern(12*504, 1), 100)
	r.ErrorIs(err, chainfs.ErrNoSpace)
	r.Equal(before, img.buf, "failed write leaves the image untouched")

	attr, err := vol.Stat("/d/f.bin")
	r.NoError(err)
	r.Equal(int64(100), attr.Size)

	big := pattern(12*504-100, 2)
	_, err = vol.Write("/d/f.bin", big, 100)
	r.NoError(err)
	r.Equal(int64(14), usedBlocks(t, vol))

	got, err := vol.Read("/d/f.bin", 12*504, 0)
	r.NoError(err)
	r.Equal(append(append([]byte{}, small...), big...), got)

	r.ErrorIs(vol.Mkdir("/e"), chainfs.ErrNoSpace)
	r.ErrorIs(vol.Mknod("/d/h.bin"), chainfs.ErrNoSpace)
	_, err = vol.Write("/d/g.bin", pattern(505, 3), 0)
	r.ErrorIs(err, chainfs.ErrNoSpace)

	// a write that fits in the existing first block still works
	_, err = vol.Write("/d/g.bin", pattern(504, 3), 0)
	r.NoError(err)

	names, err := vol.List("/")
	r.NoError(err)
	r.Equal([]string{"d"}, names)
}

func TestCorruptChain(t *testing.T) {
	r := require.New(t)
	vol, img := newTestVolume(t, 128)

	r.NoError(vol.Mkdir("/d"))
	r.NoError(vol.Mknod("/d/f.bin"))
	data := pattern(1500, 4)
	_, err := vol.Write("/d/f.bin", data, 0)
	r.NoError(err)

	// chain is 2 -> 3 -> 4; cut it after the second block
	r.Equal(uint64(3), img.next(2))
	r.Equal(uint64(4), img.next(3))
	img.setNext(3, 0)

	got, err := vol.Read("/d/f.bin", 100, 0)
	r.NoError(err, "reads inside the intact part still work")
	r.Equal(data[:100], got)

	_, err = vol.Read("/d/f.bin", 1500, 0)
	r.ErrorIs(err, chainfs.ErrCorrupt)

	_, err = vol.Read("/d/f.bin", 10, 1200)
	r.ErrorIs(err, chainfs.ErrCorrupt)

	// writes refuse to patch over the missing block
	before := bytes.Clone(img.buf)
	used := usedBlocks(t, vol)
	for _, off := range []int64{900, 1500} {
		_, err = vol.Write("/d/f.bin", pattern(600, 5), off)
		r.ErrorIs(err, chainfs.ErrCorrupt, "write at %d", off)
		r.Equal(before, img.buf, "write at %d left the image unchanged", off)
		r.Equal(used, usedBlocks(t, vol))
	}

	_, err = vol.Read("/d/f.bin", 1500, 0)
	r.ErrorIs(err, chainfs.ErrCorrupt, "the damage is still reported")

	// pointers outside the data range are corruption too
	img.setNext(3, 1<<20)
	_, err = vol.Read("/d/f.bin", 1500, 0)
	r.ErrorIs(err, chainfs.ErrCorrupt)
}

func TestCursorNeverMovesBack(t *testing.T) {
	r := require.New(t)
	vol, _ := newTestVolume(t, 128)

	last := vol.Cursor()
	r.Equal(chainfs.BlockID(blkfile.FirstDataBlock), last)

	check := func() {
		cur := vol.Cursor()
		r.GreaterOrEqual(int64(cur), int64(last))
		last = cur
	}

	r.NoError(vol.Mkdir("/a"))
	check()
	r.NoError(vol.Mknod("/a/x.y"))
	check()
	_, err := vol.Write("/a/x.y", pattern(3000, 1), 0)
	r.NoError(err)
	check()
	r.ErrorIs(vol.Mkdir("/a"), chainfs.ErrExist)
	check()
	r.NoError(vol.Mkdir("/b"))
	check()

	// a is block 1, the chain of x.y is 2 through 7
	r.Equal(chainfs.BlockID(8), vol.Cursor())
}

func TestOpenPerCall(t *testing.T) {
	r := require.New(t)
	vol, img := newTestVolume(t, 32)

	r.NoError(vol.Mkdir("/d"))
	_, err := vol.Stat("/d")
	r.NoError(err)
	_, err = vol.List("/d")
	r.NoError(err)
	r.ErrorIs(vol.Mknod("/x/y.z"), chainfs.ErrNotFound)

	r.Equal(4, img.opens)
	r.Equal(img.opens, img.closes)

	// the no-ops and the root never touch the image
	r.NoError(vol.Rmdir("/d"))
	r.NoError(vol.Unlink("/d/a.txt"))
	r.NoError(vol.Truncate("/d/a.txt", 0))
	r.NoError(vol.Open("/d/a.txt"))
	r.NoError(vol.Flush("/d/a.txt"))
	_, err = vol.Stat("/")
	r.NoError(err)
	r.Equal(4, img.opens)

	names, err := vol.List("/")
	r.NoError(err)
	r.Equal([]string{"d"}, names, "rmdir is a no-op")
}

func TestOpenerErrors(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	vol, err := New(OpenerFunc(func() (chainfs.Image, error) { return nil, boom }), 64*512, Options{})
	r.NoError(err)

	_, err = vol.Stat("/d")
	r.ErrorIs(err, boom)

	_, err = New(nil, 64*512, Options{})
	r.ErrorIs(err, chainfs.ErrInvalid)

	_, err = New(OpenerFunc(nil), 1000, Options{})
	r.ErrorIs(err, chainfs.ErrInvalid, "size is not a multiple of the block size")
}

func TestFileImage(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	r.NoError(err)
	r.NoError(f.Truncate(256 * 512))

	geo, err := blkfile.NewGeometry(256*512, 512)
	r.NoError(err)
	r.NoError(blkfile.Format(f, geo))
	r.NoError(f.Close())

	vol, err := OpenFile(path, Options{})
	r.NoError(err)

	data := pattern(2000, 5)
	r.NoError(vol.Mkdir("/docs"))
	r.NoError(vol.Mknod("/docs/a.txt"))
	_, err = vol.Write("/docs/a.txt", data, 0)
	r.NoError(err)

	// a second volume starts with a fresh cursor and must skip what the
	// first one allocated
	vol2, err := OpenFile(path, Options{})
	r.NoError(err)
	r.NoError(vol2.Mknod("/docs/b.txt"))
	_, err = vol2.Write("/docs/b.txt", data, 0)
	r.NoError(err)

	for _, name := range []string{"/docs/a.txt", "/docs/b.txt"} {
		got, err := vol.Read(name, len(data), 0)
		r.NoError(err)
		r.Equal(data, got, name)
	}

	usage, err := vol.Usage()
	r.NoError(err)
	r.Equal(int64(1+4+4), usage.UsedBlocks)
	r.Equal(1, usage.Directories)
	r.Equal(geo.DataBlocks()-9, usage.FreeBlocks())

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"), Options{})
	r.ErrorIs(err, os.ErrNotExist)
	_, err = OpenFile(t.TempDir(), Options{})
	r.ErrorIs(err, chainfs.ErrInvalid)
}
