// Package volume implements the filesystem operations on top of an
// image: path lookup, directory and file creation, and chained reads
// and writes.
//
// Every operation opens the image, does its work and closes it again;
// nothing is cached between calls except the allocator cursor. Calls
// are serialised by the Volume, so it may be shared by the goroutines
// of a FUSE server.
package volume

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
)

// Opener opens the backing image for one operation.
type Opener interface {
	Open() (chainfs.Image, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (chainfs.Image, error)

// Open calls fn.
func (fn OpenerFunc) Open() (chainfs.Image, error) {
	return fn()
}

// FileOpener opens an image file read-write.
type FileOpener string

// Open opens the file.
func (path FileOpener) Open() (chainfs.Image, error) {
	return os.OpenFile(string(path), os.O_RDWR, 0)
}

// Options configures a Volume.
type Options struct {
	// BlockSize is the block size the image was formatted with. Zero
	// uses chainfs.DefaultBlockSize.
	BlockSize int

	// Logger receives diagnostic messages. If nil, only errors are
	// logged, to stderr.
	Logger *slog.Logger
}

// Volume is a formatted image.
type Volume struct {
	l sync.Mutex

	opener Opener
	geo    blkfile.Geometry
	cursor *blkfile.Cursor
	logger *slog.Logger
}

// New returns a volume over an image of imageSize bytes.
func New(opener Opener, imageSize int64, opts Options) (*Volume, error) {
	if opener == nil {
		return nil, fmt.Errorf("opener is required: %w", chainfs.ErrInvalid)
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = chainfs.DefaultBlockSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	geo, err := blkfile.NewGeometry(imageSize, opts.BlockSize)
	if err != nil {
		return nil, err
	}

	return &Volume{
		opener: opener,
		geo:    geo,
		cursor: blkfile.NewCursor(),
		logger: opts.Logger,
	}, nil
}

// OpenFile returns a volume over the image file at path. The file is
// only inspected here; each operation opens it anew.
func OpenFile(path string, opts Options) (*Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("image %s is not a regular file: %w", path, chainfs.ErrInvalid)
	}

	return New(FileOpener(path), info.Size(), opts)
}

// Geometry returns the block layout of the image.
func (vol *Volume) Geometry() blkfile.Geometry {
	return vol.geo
}

// Cursor returns the allocator's scan position.
func (vol *Volume) Cursor() chainfs.BlockID {
	vol.l.Lock()
	defer vol.l.Unlock()

	return vol.cursor.Position()
}

// do runs fn with the image open and closes it afterwards.
func (vol *Volume) do(fn func(*session) error) (err error) {
	vol.l.Lock()
	defer vol.l.Unlock()

	img, err := vol.opener.Open()
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing image: %w", cerr)
		}
	}()

	return fn(&session{
		geo:    vol.geo,
		blocks: blkfile.New(img, vol.geo),
		bitmap: blkfile.NewBitmap(img, vol.geo, vol.cursor),
	})
}

// NopCloser wraps rwa as an Image whose Close does nothing, for
// images that outlive a single operation such as in-memory ones.
func NopCloser(rwa chainfs.ReadWriterAt) chainfs.Image {
	return nopCloser{rwa}
}

type nopCloser struct {
	chainfs.ReadWriterAt
}

func (nopCloser) Close() error { return nil }

// isUserError reports whether err is one of the expected outcomes of a
// request rather than a failure of the image.
func isUserError(err error) bool {
	for _, target := range []error{
		chainfs.ErrNotFound,
		chainfs.ErrExist,
		chainfs.ErrNameTooLong,
		chainfs.ErrNoSpace,
		chainfs.ErrNotDirectoryPath,
		chainfs.ErrIsDirectory,
		chainfs.ErrFileTooLarge,
		chainfs.ErrInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func (vol *Volume) logFailure(op, path string, err error) {
	if err == nil || isUserError(err) {
		return
	}

	vol.logger.Error("operation failed", "op", op, "path", path, "error", err)
}
