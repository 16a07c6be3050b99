package volume

import (
	"fmt"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/layout"
)

// Read returns up to size bytes of the file at path starting at off.
// Reads are cut short at the end of the file; a read starting at or
// past the end returns no bytes and no error.
func (vol *Volume) Read(path string, size int, off int64) ([]byte, error) {
	p, err := parseFileIO(path)
	if err != nil {
		return nil, err
	}
	if size < 0 || off < 0 {
		return nil, fmt.Errorf("read %s size %d at %d: %w", p, size, off, chainfs.ErrInvalid)
	}

	var out []byte
	err = vol.do(func(s *session) error {
		ref, err := s.findFile(p)
		if err != nil {
			return err
		}

		out, err = s.readChain(ref.entry(), off, size)
		return err
	})

	vol.logFailure("read", path, err)
	return out, err
}

// Write stores data in the file at path starting at off and returns the
// number of bytes written. off may be at most the current size; the
// file grows as needed but never shrinks.
func (vol *Volume) Write(path string, data []byte, off int64) (int, error) {
	p, err := parseFileIO(path)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("write %s at %d: %w", p, off, chainfs.ErrInvalid)
	}

	err = vol.do(func(s *session) error {
		ref, err := s.findFile(p)
		if err != nil {
			return err
		}

		f := ref.entry()
		if off > f.Size {
			return fmt.Errorf("write %s at %d past size %d: %w", p, off, f.Size, chainfs.ErrFileTooLarge)
		}
		if len(data) == 0 {
			return nil
		}

		if err := s.writeChain(f, off, data); err != nil {
			return err
		}

		if end := off + int64(len(data)); end > f.Size {
			ref.dir.Files[ref.index].Size = end
			return s.saveDir(ref.dirBlock, ref.dir)
		}
		return nil
	})

	vol.logFailure("write", path, err)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func parseFileIO(path string) (Path, error) {
	p, err := parseLookup(path)
	if err != nil {
		return Path{}, err
	}
	if p.Kind != KindFile {
		return Path{}, fmt.Errorf("%s: %w", p, chainfs.ErrIsDirectory)
	}

	return p, nil
}

// chainLength is the number of blocks a file of size bytes occupies.
// Every file owns at least its first block.
func chainLength(size int64, payload int64) int64 {
	if size <= 0 {
		return 1
	}
	return (size + payload - 1) / payload
}

func corruptChain(f layout.FileEntry, at int64) error {
	return fmt.Errorf("chain of %s ends before byte %d of %d: %w", f.FullName(), at, f.Size, chainfs.ErrCorrupt)
}

// seek walks the chain of f to the block holding byte off. It returns
// that block, its index and the offset of its first byte in the file.
//
// If the chain ends exactly where off begins, the last block is
// returned and off-start equals the payload size. Readers treat that as
// corruption, writers as an append.
func (s *session) seek(f layout.FileEntry, off int64) (chainfs.BlockID, *layout.DataBlock, int64, error) {
	payload := int64(s.geo.PayloadSize())

	bid := f.Start
	blk, err := s.loadData(bid)
	if err != nil {
		return chainfs.NoBlock, nil, 0, err
	}

	var start int64
	for off >= start+payload {
		if blk.Last() {
			if off == start+payload {
				break
			}
			return chainfs.NoBlock, nil, 0, corruptChain(f, start+payload)
		}

		bid = blk.Next
		if blk, err = s.loadData(bid); err != nil {
			return chainfs.NoBlock, nil, 0, err
		}
		start += payload
	}

	return bid, blk, start, nil
}

func (s *session) readChain(f layout.FileEntry, off int64, size int) ([]byte, error) {
	if off >= f.Size || size == 0 {
		return []byte{}, nil
	}
	if rem := f.Size - off; int64(size) > rem {
		size = int(rem)
	}

	payload := int64(s.geo.PayloadSize())

	_, blk, start, err := s.seek(f, off)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	within := off - start
	for len(out) < size {
		if within == payload {
			if blk.Last() {
				return nil, corruptChain(f, off+int64(len(out)))
			}
			if blk, err = s.loadData(blk.Next); err != nil {
				return nil, err
			}
			within = 0
		}

		n := payload - within
		if rem := int64(size - len(out)); n > rem {
			n = rem
		}
		out = append(out, blk.Payload[within:within+n]...)
		within += n
	}

	return out, nil
}

// checkChain walks the chain of f and fails if it holds fewer blocks
// than f.Size needs.
func (s *session) checkChain(f layout.FileEntry) error {
	payload := int64(s.geo.PayloadSize())
	need := chainLength(f.Size, payload)

	bid := f.Start
	for n := int64(1); ; n++ {
		blk, err := s.loadData(bid)
		if err != nil {
			return err
		}
		if n >= need {
			return nil
		}
		if blk.Last() {
			return corruptChain(f, n*payload)
		}
		bid = blk.Next
	}
}

// writeChain copies data into the chain of f starting at off. Existing
// blocks are overwritten in place; blocks past the end of the chain are
// taken from a reservation made before anything is written, so a full
// bitmap or a short chain fails the write without touching the image.
func (s *session) writeChain(f layout.FileEntry, off int64, data []byte) error {
	payload := int64(s.geo.PayloadSize())
	end := off + int64(len(data))

	if err := s.checkChain(f); err != nil {
		return err
	}

	var spare []chainfs.BlockID
	if extra := chainLength(end, payload) - chainLength(f.Size, payload); extra > 0 {
		var err error
		if spare, err = s.bitmap.Reserve(int(extra)); err != nil {
			return fmt.Errorf("extending %s to %d bytes: %w", f.FullName(), end, err)
		}
	}

	bid, blk, start, err := s.seek(f, off)
	if err != nil {
		return err
	}

	within := off - start
	for len(data) > 0 {
		if within == payload {
			next := blk.Next
			fresh := blk.Last()
			if fresh {
				if start+payload < f.Size {
					return corruptChain(f, start+payload)
				}
				if next, err = s.extend(f, &spare); err != nil {
					return err
				}
				blk.Next = next
			}

			if err := s.saveData(bid, blk); err != nil {
				return err
			}

			bid = next
			if fresh {
				blk = layout.NewDataBlock(s.geo.BlockSize)
			} else if blk, err = s.loadData(bid); err != nil {
				return err
			}
			start += payload
			within = 0
		}

		n := copy(blk.Payload[within:], data)
		data = data[n:]
		within += int64(n)
	}

	return s.saveData(bid, blk)
}

// extend claims the next reserved block for a growing chain. Running
// out means the chain was shorter than its size when the reservation
// was made.
func (s *session) extend(f layout.FileEntry, spare *[]chainfs.BlockID) (chainfs.BlockID, error) {
	if len(*spare) == 0 {
		return chainfs.NoBlock, fmt.Errorf("extending %s: no reserved block left: %w", f.FullName(), chainfs.ErrCorrupt)
	}

	bid := (*spare)[0]
	if err := s.bitmap.Claim([]chainfs.BlockID{bid}); err != nil {
		return chainfs.NoBlock, err
	}
	*spare = (*spare)[1:]

	return bid, nil
}
