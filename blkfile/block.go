package blkfile

import (
	"io"

	"github.com/keks/chainfs"
)

// region is a fixed window onto the image: a single block, or the whole
// bitmap area. Offsets passed to ReadAt and WriteAt are relative to the
// start of the window.
type region struct {
	off  int64
	size int64

	lower chainfs.ReadWriterAt
}

func (rgn *region) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off >= rgn.size {
		return 0, io.EOF
	}

	max := rgn.size - off
	var retEOF bool
	if max < int64(len(dst)) {
		dst = dst[:max]
		retEOF = true
	}

	n, err := rgn.lower.ReadAt(dst, off+rgn.off)
	if err == io.EOF && n == len(dst) {
		// os.File may report EOF together with a complete read at the
		// very end of the image.
		err = nil
	}
	if err != nil {
		return n, err
	}

	// return EOF if the caller wanted to read beyond the end of the region
	if retEOF {
		return n, io.EOF
	}

	return n, nil
}

func (rgn *region) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off >= rgn.size {
		return 0, io.EOF
	}

	max := rgn.size - off
	var retErr bool
	if max < int64(len(data)) {
		data = data[:max]
		retErr = true
	}

	n, err := rgn.lower.WriteAt(data, off+rgn.off)
	if err != nil {
		// NOTE: this is only expected if the lower layer has failures,
		//       like e.g. running out of disk space.
		return n, err
	}

	if retErr {
		return n, io.EOF
	}

	return n, nil
}
