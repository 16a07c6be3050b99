// Package layout encodes and decodes the three record types stored in
// image blocks: the root directory, subdirectories and file data
// blocks.
//
// All records are packed with no alignment padding. Integers are little
// endian. Names are stored NUL terminated in fixed-width fields one
// byte wider than the longest allowed name. Whatever is left of a block
// after the last possible entry is unused and written as zeroes.
package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/keks/chainfs"
)

// countSize is the width of the entry count that starts directory
// blocks.
const countSize = 4

func putName(dst []byte, name string) error {
	if len(name) >= len(dst) {
		return fmt.Errorf("name %q longer than %d bytes: %w", name, len(dst)-1, chainfs.ErrNameTooLong)
	}
	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("name %q contains NUL: %w", name, chainfs.ErrInvalid)
	}

	n := copy(dst, name)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}

	return nil
}

func getName(src []byte) (string, error) {
	i := bytes.IndexByte(src, 0)
	if i < 0 {
		return "", fmt.Errorf("unterminated name field %q: %w", src, chainfs.ErrCorrupt)
	}

	return string(src[:i]), nil
}

func getCount(buf []byte, capacity int) (int, error) {
	count := int32(binary.LittleEndian.Uint32(buf))
	if count < 0 || int(count) > capacity {
		return 0, fmt.Errorf("entry count %d outside [0, %d]: %w", count, capacity, chainfs.ErrCorrupt)
	}

	return int(count), nil
}

func putBlockID(dst []byte, bid chainfs.BlockID) {
	binary.LittleEndian.PutUint64(dst, uint64(bid))
}

func getBlockID(src []byte) (chainfs.BlockID, error) {
	bid := chainfs.BlockID(int64(binary.LittleEndian.Uint64(src)))
	if bid < 0 {
		return chainfs.NoBlock, fmt.Errorf("negative block pointer %d: %w", int64(bid), chainfs.ErrCorrupt)
	}

	return bid, nil
}
