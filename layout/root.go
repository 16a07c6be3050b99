package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/keks/chainfs"
)

const (
	dirNameField = chainfs.MaxDirName + 1

	// DirEntrySize is the packed size of one root directory entry:
	// name[9] start[8].
	DirEntrySize = dirNameField + chainfs.PointerSize
)

// RootCapacity is the number of directories a root block of blockSize
// bytes can hold.
func RootCapacity(blockSize int) int {
	return (blockSize - countSize) / DirEntrySize
}

// DirEntry names a subdirectory and the block holding its file table.
type DirEntry struct {
	Name  string
	Start chainfs.BlockID
}

// RootDir is the table of subdirectories stored in block 0.
type RootDir struct {
	Dirs []DirEntry
}

// Find returns the index of the directory called name, or -1.
func (root *RootDir) Find(name string) int {
	for i, dir := range root.Dirs {
		if dir.Name == name {
			return i
		}
	}

	return -1
}

// Names lists the directory names in table order.
func (root *RootDir) Names() []string {
	names := make([]string, len(root.Dirs))
	for i, dir := range root.Dirs {
		names[i] = dir.Name
	}

	return names
}

// Encode serialises the table into a block of blockSize bytes.
func (root *RootDir) Encode(blockSize int) ([]byte, error) {
	capacity := RootCapacity(blockSize)
	if len(root.Dirs) > capacity {
		return nil, fmt.Errorf("%d directories exceed root capacity %d: %w", len(root.Dirs), capacity, chainfs.ErrNoSpace)
	}

	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(buf, uint32(len(root.Dirs)))

	for i, dir := range root.Dirs {
		entry := buf[countSize+i*DirEntrySize:]
		if err := putName(entry[:dirNameField], dir.Name); err != nil {
			return nil, err
		}
		if !dir.Start.Valid() {
			return nil, fmt.Errorf("directory %q has no start block: %w", dir.Name, chainfs.ErrInvalid)
		}
		putBlockID(entry[dirNameField:], dir.Start)
	}

	return buf, nil
}

// DecodeRoot parses a root block.
func DecodeRoot(buf []byte) (*RootDir, error) {
	if len(buf) < countSize+DirEntrySize {
		return nil, fmt.Errorf("root block of %d bytes too short: %w", len(buf), chainfs.ErrInvalid)
	}

	count, err := getCount(buf, RootCapacity(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}

	root := &RootDir{Dirs: make([]DirEntry, count)}
	for i := range root.Dirs {
		entry := buf[countSize+i*DirEntrySize:]

		name, err := getName(entry[:dirNameField])
		if err != nil {
			return nil, fmt.Errorf("root entry %d: %w", i, err)
		}

		start, err := getBlockID(entry[dirNameField:])
		if err != nil {
			return nil, fmt.Errorf("root entry %d (%q): %w", i, name, err)
		}

		root.Dirs[i] = DirEntry{Name: name, Start: start}
	}

	return root, nil
}
