package chainfs // import "github.com/keks/chainfs"

import (
	"io"
	"math"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Image is a backing image opened for a single operation.
type Image interface {
	ReadWriterAt
	io.Closer
}

// Block Layer

// BlockID identifies blocks by their index in the image.
type BlockID int64

// NoBlock marks the end of a chain. It is never a valid block index.
const NoBlock BlockID = math.MaxInt64

// RootBlock holds the root directory.
const RootBlock BlockID = 0

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 512

// PointerSize is the on-disk width of a block index.
const PointerSize = 8

// Valid reports whether id can address a block at all. It says nothing
// about whether the block lies inside a particular image.
func (id BlockID) Valid() bool {
	return id >= 0 && id != NoBlock
}

// Directory Layer

const (
	// MaxDirName is the longest directory name in bytes.
	MaxDirName = 8

	// MaxFileName is the longest file base name in bytes.
	MaxFileName = 8

	// MaxExtension is the longest file extension in bytes.
	MaxExtension = 3
)
