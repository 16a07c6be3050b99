package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/blkfile"
)

// DefaultImageSize is the size mkfs uses when --size is not given.
const DefaultImageSize = "5MiB"

func (a *app) mkfs(args []string) error {
	var (
		size      string
		blockSize int
		force     bool
	)

	fs := pflag.NewFlagSet("mkfs", pflag.ContinueOnError)
	fs.StringVar(&size, "size", DefaultImageSize, "image size, e.g. 5MiB or 1M")
	fs.IntVar(&blockSize, "block-size", chainfs.DefaultBlockSize, "block size in bytes")
	fs.BoolVarP(&force, "force", "f", false, "overwrite an existing image")
	if err := a.parseFlags(fs, "mkfs [--size SIZE] [--block-size N] [--force] IMAGE", args); err != nil {
		return ignoreHelp(err)
	}

	pos, err := wantArgs(fs, 1, 1)
	if err != nil {
		return err
	}
	image := pos[0]

	nbytes, err := humanize.ParseBytes(size)
	if err != nil {
		return fmt.Errorf("mkfs: bad size %q: %w", size, err)
	}

	geo, err := blkfile.NewGeometry(int64(nbytes), blockSize)
	if err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(image, flags, 0o644)
	if err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(geo.ImageSize()); err != nil {
		return fmt.Errorf("mkfs: sizing image: %w", err)
	}
	if err := blkfile.Format(f, geo); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}

	fmt.Fprintf(a.stdout, "%s: %s in %s blocks of %d bytes, %s data blocks\n",
		image,
		humanize.IBytes(uint64(geo.ImageSize())),
		humanize.Comma(geo.TotalBlocks),
		geo.BlockSize,
		humanize.Comma(geo.DataBlocks()),
	)
	return nil
}
