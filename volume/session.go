package volume

import (
	"fmt"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
	"github.com/keks/chainfs/layout"
)

// session is one operation's view of the open image.
type session struct {
	geo    blkfile.Geometry
	blocks *blkfile.Blocks
	bitmap *blkfile.Bitmap
}

// checkPointer makes sure a pointer read from disk stays inside the
// data range before it is followed.
func (s *session) checkPointer(bid chainfs.BlockID, what string) error {
	if !s.geo.IsData(bid) {
		return fmt.Errorf("%s points at block %d outside data range [%d, %d): %w",
			what, bid, blkfile.FirstDataBlock, s.geo.DataLimit(), chainfs.ErrCorrupt)
	}
	return nil
}

func (s *session) loadRoot() (*layout.RootDir, error) {
	buf, err := s.blocks.ReadBlock(chainfs.RootBlock)
	if err != nil {
		return nil, err
	}

	return layout.DecodeRoot(buf)
}

func (s *session) saveRoot(root *layout.RootDir) error {
	buf, err := root.Encode(s.geo.BlockSize)
	if err != nil {
		return err
	}

	return s.blocks.WriteBlock(chainfs.RootBlock, buf)
}

func (s *session) loadDir(bid chainfs.BlockID) (*layout.DirBlock, error) {
	if err := s.checkPointer(bid, "directory entry"); err != nil {
		return nil, err
	}

	buf, err := s.blocks.ReadBlock(bid)
	if err != nil {
		return nil, err
	}

	dir, err := layout.DecodeDir(buf)
	if err != nil {
		return nil, fmt.Errorf("directory block %d: %w", bid, err)
	}

	return dir, nil
}

func (s *session) saveDir(bid chainfs.BlockID, dir *layout.DirBlock) error {
	buf, err := dir.Encode(s.geo.BlockSize)
	if err != nil {
		return err
	}

	return s.blocks.WriteBlock(bid, buf)
}

func (s *session) loadData(bid chainfs.BlockID) (*layout.DataBlock, error) {
	if err := s.checkPointer(bid, "chain"); err != nil {
		return nil, err
	}

	buf, err := s.blocks.ReadBlock(bid)
	if err != nil {
		return nil, err
	}

	return layout.DecodeData(buf)
}

func (s *session) saveData(bid chainfs.BlockID, blk *layout.DataBlock) error {
	buf, err := blk.Encode(s.geo.BlockSize)
	if err != nil {
		return err
	}

	return s.blocks.WriteBlock(bid, buf)
}

// findDir looks up a subdirectory by name.
func (s *session) findDir(name string) (*layout.RootDir, int, error) {
	root, err := s.loadRoot()
	if err != nil {
		return nil, -1, err
	}

	i := root.Find(name)
	if i < 0 {
		return root, -1, fmt.Errorf("directory %q: %w", name, chainfs.ErrNotFound)
	}

	return root, i, nil
}

// fileRef locates a file entry inside its directory block.
type fileRef struct {
	dirBlock chainfs.BlockID
	dir      *layout.DirBlock
	index    int
}

func (ref fileRef) entry() layout.FileEntry {
	return ref.dir.Files[ref.index]
}

// findFile looks up p, which must be a file path.
func (s *session) findFile(p Path) (fileRef, error) {
	root, i, err := s.findDir(p.Dir)
	if err != nil {
		return fileRef{}, err
	}

	ref := fileRef{dirBlock: root.Dirs[i].Start}
	ref.dir, err = s.loadDir(ref.dirBlock)
	if err != nil {
		return fileRef{}, err
	}

	ref.index = ref.dir.Find(p.Name, p.Ext)
	if ref.index < 0 {
		return fileRef{}, fmt.Errorf("file %s: %w", p, chainfs.ErrNotFound)
	}

	return ref, nil
}
