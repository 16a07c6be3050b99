package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/layout"
	"github.com/keks/chainfs/volume"
)

// catChunk is how much cat reads from the image at a time.
const catChunk = 64 << 10

// openArgs parses the flags of a command taking IMAGE plus between
// min and max further arguments, and opens the image.
func (a *app) openArgs(name, usage string, args []string, min, max int) (*volume.Volume, []string, error) {
	var flags imageFlags

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.add(fs)
	if err := a.parseFlags(fs, usage, args); err != nil {
		return nil, nil, err
	}

	pos, err := wantArgs(fs, 1+min, 1+max)
	if err != nil {
		return nil, nil, err
	}

	vol, err := a.openVolume(&flags, pos[0])
	if err != nil {
		return nil, nil, err
	}

	return vol, pos[1:], nil
}

func (a *app) info(args []string) error {
	vol, _, err := a.openArgs("info", "info IMAGE", args, 0, 0)
	if err != nil {
		return ignoreHelp(err)
	}

	usage, err := vol.Usage()
	if err != nil {
		return err
	}
	geo := vol.Geometry()
	payload := uint64(layout.PayloadSize(geo.BlockSize))

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "image size:\t%s\n", humanize.IBytes(uint64(geo.ImageSize())))
	fmt.Fprintf(w, "block size:\t%d\n", geo.BlockSize)
	fmt.Fprintf(w, "blocks:\t%s\n", humanize.Comma(geo.TotalBlocks))
	fmt.Fprintf(w, "bitmap blocks:\t%s\n", humanize.Comma(geo.BitmapBlocks))
	fmt.Fprintf(w, "data blocks:\t%s\n", humanize.Comma(usage.DataBlocks))
	fmt.Fprintf(w, "used blocks:\t%s\n", humanize.Comma(usage.UsedBlocks))
	fmt.Fprintf(w, "free blocks:\t%s (%s of file data)\n",
		humanize.Comma(usage.FreeBlocks()), humanize.IBytes(uint64(usage.FreeBlocks())*payload))
	fmt.Fprintf(w, "directories:\t%d of %d\n", usage.Directories, layout.RootCapacity(geo.BlockSize))
	fmt.Fprintf(w, "files per directory:\t%d\n", layout.DirCapacity(geo.BlockSize))
	return w.Flush()
}

func (a *app) ls(args []string) error {
	vol, pos, err := a.openArgs("ls", "ls IMAGE [PATH]", args, 0, 1)
	if err != nil {
		return ignoreHelp(err)
	}

	path := "/"
	if len(pos) == 1 {
		path = pos[0]
	}

	attr, err := vol.Stat(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	if !attr.IsDir {
		fmt.Fprintf(w, "%s\t  %s\n", humanize.IBytes(uint64(attr.Size)), path)
		return w.Flush()
	}

	names, err := vol.List(path)
	if err != nil {
		return err
	}

	for _, name := range names {
		child := "/" + name
		if path != "/" {
			child = trimSlash(path) + "/" + name
		}

		attr, err := vol.Stat(child)
		if err != nil {
			return err
		}

		if attr.IsDir {
			fmt.Fprintf(w, "-\t  %s/\n", name)
		} else {
			fmt.Fprintf(w, "%s\t  %s\n", humanize.IBytes(uint64(attr.Size)), name)
		}
	}

	return w.Flush()
}

func trimSlash(path string) string {
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path
}

func (a *app) mkdir(args []string) error {
	vol, pos, err := a.openArgs("mkdir", "mkdir IMAGE PATH", args, 1, 1)
	if err != nil {
		return ignoreHelp(err)
	}

	return vol.Mkdir(pos[0])
}

// create makes an empty file at path unless it already exists.
func create(vol *volume.Volume, path string) error {
	if err := vol.Mknod(path); err != nil && !errors.Is(err, chainfs.ErrExist) {
		return err
	}
	return nil
}

func (a *app) touch(args []string) error {
	vol, pos, err := a.openArgs("touch", "touch IMAGE PATH", args, 1, 1)
	if err != nil {
		return ignoreHelp(err)
	}

	return create(vol, pos[0])
}

func (a *app) put(args []string) error {
	vol, pos, err := a.openArgs("put", "put IMAGE PATH [FILE|-]", args, 1, 2)
	if err != nil {
		return ignoreHelp(err)
	}
	path := pos[0]

	var data []byte
	if len(pos) == 1 || pos[1] == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(pos[1])
	}
	if err != nil {
		return fmt.Errorf("put: reading input: %w", err)
	}

	if err := create(vol, path); err != nil {
		return err
	}

	attr, err := vol.Stat(path)
	if err != nil {
		return err
	}

	_, err = vol.Write(path, data, attr.Size)
	return err
}

func (a *app) cat(args []string) error {
	vol, pos, err := a.openArgs("cat", "cat IMAGE PATH", args, 1, 1)
	if err != nil {
		return ignoreHelp(err)
	}
	path := pos[0]

	attr, err := vol.Stat(path)
	if err != nil {
		return err
	}
	if attr.IsDir {
		return fmt.Errorf("cat %s: %w", path, chainfs.ErrIsDirectory)
	}

	for off := int64(0); off < attr.Size; {
		buf, err := vol.Read(path, catChunk, off)
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			break
		}

		if _, err := a.stdout.Write(buf); err != nil {
			return err
		}
		off += int64(len(buf))
	}

	return nil
}
