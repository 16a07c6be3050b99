package volume

import (
	"errors"
	"fmt"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/layout"
)

// Attr is what Stat reports about a path.
type Attr struct {
	IsDir bool
	Size  int64
}

// Stat describes the directory or file at path.
func (vol *Volume) Stat(path string) (Attr, error) {
	p, err := parseLookup(path)
	if err != nil {
		return Attr{}, err
	}

	if p.Kind == KindRoot {
		return Attr{IsDir: true}, nil
	}

	var attr Attr
	err = vol.do(func(s *session) error {
		if p.Kind == KindDir {
			_, _, err := s.findDir(p.Dir)
			attr.IsDir = err == nil
			return err
		}

		ref, err := s.findFile(p)
		if err != nil {
			return err
		}
		attr.Size = ref.entry().Size
		return nil
	})

	vol.logFailure("stat", path, err)
	return attr, err
}

// List returns the directory names in the root, or the "name.ext"
// names of the files in a directory.
func (vol *Volume) List(path string) ([]string, error) {
	p, err := parseLookup(path)
	if err != nil {
		return nil, err
	}
	if p.Kind == KindFile {
		return nil, fmt.Errorf("listing %s: %w", p, chainfs.ErrNotFound)
	}

	var names []string
	err = vol.do(func(s *session) error {
		if p.Kind == KindRoot {
			root, err := s.loadRoot()
			if err != nil {
				return err
			}
			names = root.Names()
			return nil
		}

		root, i, err := s.findDir(p.Dir)
		if err != nil {
			return err
		}

		dir, err := s.loadDir(root.Dirs[i].Start)
		if err != nil {
			return err
		}
		names = dir.Names()
		return nil
	})

	vol.logFailure("list", path, err)
	return names, err
}

// parseCreate parses a path for mkdir or mknod. Over-long names are
// reported as such; anything else unparsable has the wrong shape.
func parseCreate(path string, want Kind) (Path, error) {
	p, err := ParsePath(path)
	if err != nil {
		if errors.Is(err, chainfs.ErrNameTooLong) {
			return Path{}, err
		}
		return Path{}, fmt.Errorf("%v: %w", err, chainfs.ErrNotDirectoryPath)
	}

	if p.Kind != want {
		return Path{}, fmt.Errorf("%s is a %s path, want a %s path: %w", path, p.Kind, want, chainfs.ErrNotDirectoryPath)
	}

	return p, nil
}

// Mkdir creates an empty directory in the root.
func (vol *Volume) Mkdir(path string) error {
	p, err := parseCreate(path, KindDir)
	if err != nil {
		return err
	}

	err = vol.do(func(s *session) error {
		root, err := s.loadRoot()
		if err != nil {
			return err
		}

		if root.Find(p.Dir) >= 0 {
			return fmt.Errorf("directory %q: %w", p.Dir, chainfs.ErrExist)
		}
		if capacity := layout.RootCapacity(s.geo.BlockSize); len(root.Dirs) >= capacity {
			return fmt.Errorf("root holds %d directories: %w", capacity, chainfs.ErrNoSpace)
		}

		bid, err := s.bitmap.FindNextFree()
		if err != nil {
			return err
		}

		if err := s.saveDir(bid, &layout.DirBlock{}); err != nil {
			return err
		}
		if err := s.bitmap.SetAllocated(bid, true); err != nil {
			return err
		}

		root.Dirs = append(root.Dirs, layout.DirEntry{Name: p.Dir, Start: bid})
		if err := s.saveRoot(root); err != nil {
			return err
		}

		vol.logger.Debug("directory created", "path", p.String(), "block", bid)
		return nil
	})

	vol.logFailure("mkdir", path, err)
	return err
}

// Mknod creates an empty file in an existing directory.
func (vol *Volume) Mknod(path string) error {
	p, err := parseCreate(path, KindFile)
	if err != nil {
		return err
	}

	err = vol.do(func(s *session) error {
		root, i, err := s.findDir(p.Dir)
		if err != nil {
			return err
		}

		dirBlock := root.Dirs[i].Start
		dir, err := s.loadDir(dirBlock)
		if err != nil {
			return err
		}

		if dir.Find(p.Name, p.Ext) >= 0 {
			return fmt.Errorf("file %s: %w", p, chainfs.ErrExist)
		}
		if capacity := layout.DirCapacity(s.geo.BlockSize); len(dir.Files) >= capacity {
			return fmt.Errorf("directory %q holds %d files: %w", p.Dir, capacity, chainfs.ErrNoSpace)
		}

		bid, err := s.bitmap.FindNextFree()
		if err != nil {
			return err
		}

		if err := s.saveData(bid, layout.NewDataBlock(s.geo.BlockSize)); err != nil {
			return err
		}
		if err := s.bitmap.SetAllocated(bid, true); err != nil {
			return err
		}

		dir.Files = append(dir.Files, layout.FileEntry{Name: p.Name, Ext: p.Ext, Start: bid})
		if err := s.saveDir(dirBlock, dir); err != nil {
			return err
		}

		vol.logger.Debug("file created", "path", p.String(), "block", bid)
		return nil
	})

	vol.logFailure("mknod", path, err)
	return err
}

// Rmdir is accepted and ignored; directories are never removed.
func (vol *Volume) Rmdir(path string) error { return nil }

// Unlink is accepted and ignored; files are never removed.
func (vol *Volume) Unlink(path string) error { return nil }

// Truncate is accepted and ignored; files never shrink.
func (vol *Volume) Truncate(path string, size int64) error { return nil }

// Open is accepted and ignored; there are no file handles.
func (vol *Volume) Open(path string) error { return nil }

// Flush is accepted and ignored; every write is persisted before it
// returns.
func (vol *Volume) Flush(path string) error { return nil }

// Usage summarises block allocation.
type Usage struct {
	BlockSize   int
	TotalBlocks int64

	// DataBlocks is the number of allocatable blocks.
	DataBlocks int64

	// UsedBlocks counts allocated data blocks.
	UsedBlocks int64

	Directories int
}

// FreeBlocks is the number of data blocks still available.
func (u Usage) FreeBlocks() int64 {
	return u.DataBlocks - u.UsedBlocks
}

// Usage reads the bitmap and root directory.
func (vol *Volume) Usage() (Usage, error) {
	usage := Usage{
		BlockSize:   vol.geo.BlockSize,
		TotalBlocks: vol.geo.TotalBlocks,
		DataBlocks:  vol.geo.DataBlocks(),
	}

	err := vol.do(func(s *session) error {
		allocated, err := s.bitmap.CountAllocated()
		if err != nil {
			return err
		}

		rootUsed, err := s.bitmap.IsAllocated(chainfs.RootBlock)
		if err != nil {
			return err
		}
		if rootUsed {
			allocated--
		}
		usage.UsedBlocks = allocated

		root, err := s.loadRoot()
		if err != nil {
			return err
		}
		usage.Directories = len(root.Dirs)
		return nil
	})

	vol.logFailure("usage", "/", err)
	return usage, err
}
