package layout

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/keks/chainfs"
)

const (
	fileNameField = chainfs.MaxFileName + 1
	extField      = chainfs.MaxExtension + 1
	sizeField     = 8

	// FileEntrySize is the packed size of one file entry:
	// name[9] ext[4] size[8] start[8].
	FileEntrySize = fileNameField + extField + sizeField + chainfs.PointerSize
)

// DirCapacity is the number of files a subdirectory block of blockSize
// bytes can hold.
func DirCapacity(blockSize int) int {
	return (blockSize - countSize) / FileEntrySize
}

// FileEntry describes one file: its 8.3 name, its length in bytes and
// the first block of its chain.
type FileEntry struct {
	Name  string
	Ext   string
	Size  int64
	Start chainfs.BlockID
}

// FullName is the name as listed to users, "name.ext".
func (f FileEntry) FullName() string {
	return f.Name + "." + f.Ext
}

// DirBlock is the file table of one subdirectory.
type DirBlock struct {
	Files []FileEntry
}

// Find returns the index of the file name.ext, or -1.
func (dir *DirBlock) Find(name, ext string) int {
	for i, f := range dir.Files {
		if f.Name == name && f.Ext == ext {
			return i
		}
	}

	return -1
}

// Names lists "name.ext" for every file in table order.
func (dir *DirBlock) Names() []string {
	names := make([]string, len(dir.Files))
	for i, f := range dir.Files {
		names[i] = f.FullName()
	}

	return names
}

// Encode serialises the table into a block of blockSize bytes.
func (dir *DirBlock) Encode(blockSize int) ([]byte, error) {
	capacity := DirCapacity(blockSize)
	if len(dir.Files) > capacity {
		return nil, fmt.Errorf("%d files exceed directory capacity %d: %w", len(dir.Files), capacity, chainfs.ErrNoSpace)
	}

	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(buf, uint32(len(dir.Files)))

	for i, f := range dir.Files {
		entry := buf[countSize+i*FileEntrySize:]

		if err := putName(entry[:fileNameField], f.Name); err != nil {
			return nil, err
		}
		entry = entry[fileNameField:]

		if err := putName(entry[:extField], f.Ext); err != nil {
			return nil, err
		}
		entry = entry[extField:]

		if f.Size < 0 {
			return nil, fmt.Errorf("file %q has negative size %d: %w", f.FullName(), f.Size, chainfs.ErrInvalid)
		}
		binary.LittleEndian.PutUint64(entry, uint64(f.Size))
		entry = entry[sizeField:]

		if !f.Start.Valid() {
			return nil, fmt.Errorf("file %q has no start block: %w", f.FullName(), chainfs.ErrInvalid)
		}
		putBlockID(entry, f.Start)
	}

	return buf, nil
}

// DecodeDir parses a subdirectory block. A zeroed block is an empty
// directory.
func DecodeDir(buf []byte) (*DirBlock, error) {
	if len(buf) < countSize+FileEntrySize {
		return nil, fmt.Errorf("directory block of %d bytes too short: %w", len(buf), chainfs.ErrInvalid)
	}

	count, err := getCount(buf, DirCapacity(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	dir := &DirBlock{Files: make([]FileEntry, count)}
	for i := range dir.Files {
		entry := buf[countSize+i*FileEntrySize:]

		name, err := getName(entry[:fileNameField])
		if err != nil {
			return nil, fmt.Errorf("file entry %d: %w", i, err)
		}
		entry = entry[fileNameField:]

		ext, err := getName(entry[:extField])
		if err != nil {
			return nil, fmt.Errorf("file entry %d (%q): %w", i, name, err)
		}
		entry = entry[extField:]

		size := binary.LittleEndian.Uint64(entry)
		if size > math.MaxInt64 {
			return nil, fmt.Errorf("file entry %d (%s.%s) size %d: %w", i, name, ext, size, chainfs.ErrCorrupt)
		}
		entry = entry[sizeField:]

		start, err := getBlockID(entry)
		if err != nil {
			return nil, fmt.Errorf("file entry %d (%s.%s): %w", i, name, ext, err)
		}

		dir.Files[i] = FileEntry{Name: name, Ext: ext, Size: int64(size), Start: start}
	}

	return dir, nil
}
