package fuse

import (
	"context"
	"log/slog"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/keks/chainfs"
	"github.com/keks/chainfs/layout"
	"github.com/keks/chainfs/volume"
)

// filesystem is shared by all nodes of a mount.
type filesystem struct {
	vol    *volume.Volume
	logger *slog.Logger

	// owner of every node
	owner fuse.Owner
}

func (fs *filesystem) errno(op, path string, err error) syscall.Errno {
	errno := Errno(err)
	if errno != 0 {
		fs.logger.Debug("request failed", "op", op, "path", path, "errno", errno, "error", err)
	}
	return errno
}

// fillAttr sets mode, owner, link count and size for a directory or
// file.
func (fs *filesystem) fillAttr(attr volume.Attr, out *fuse.Attr) {
	out.Owner = fs.owner
	if attr.IsDir {
		out.Mode = syscall.S_IFDIR | 0o755
		out.Nlink = 2
		return
	}

	out.Mode = syscall.S_IFREG | 0o666
	out.Nlink = 1
	out.Size = uint64(attr.Size)
	out.Blksize = uint32(fs.vol.Geometry().BlockSize)
	out.Blocks = (out.Size + 511) / 512
}

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// dirNode is the root or one of its directories.
type dirNode struct {
	gofuse.Inode
	fs   *filesystem
	path string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeMkdirer = (*dirNode)(nil)
var _ gofuse.NodeMknoder = (*dirNode)(nil)
var _ gofuse.NodeCreater = (*dirNode)(nil)
var _ gofuse.NodeRmdirer = (*dirNode)(nil)
var _ gofuse.NodeUnlinker = (*dirNode)(nil)
var _ gofuse.NodeStatfser = (*dirNode)(nil)

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := d.fs.vol.Stat(d.path)
	if err != nil {
		return d.fs.errno("getattr", d.path, err)
	}

	d.fs.fillAttr(attr, &out.Attr)
	return 0
}

// newChild returns an inode for the entry at path described by attr.
func (d *dirNode) newChild(ctx context.Context, path string, attr volume.Attr, out *fuse.EntryOut) *gofuse.Inode {
	d.fs.fillAttr(attr, &out.Attr)

	if attr.IsDir {
		return d.NewInode(ctx, &dirNode{fs: d.fs, path: path}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	}
	return d.NewInode(ctx, &fileNode{fs: d.fs, path: path}, gofuse.StableAttr{Mode: syscall.S_IFREG})
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := childPath(d.path, name)

	attr, err := d.fs.vol.Stat(path)
	if err != nil {
		return nil, d.fs.errno("lookup", path, err)
	}

	return d.newChild(ctx, path, attr, out), 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	names, err := d.fs.vol.List(d.path)
	if err != nil {
		return nil, d.fs.errno("readdir", d.path, err)
	}

	mode := uint32(syscall.S_IFREG)
	if d.path == "/" {
		mode = syscall.S_IFDIR
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}

	return gofuse.NewListDirStream(entries), 0
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := childPath(d.path, name)

	if err := d.fs.vol.Mkdir(path); err != nil {
		return nil, d.fs.errno("mkdir", path, err)
	}

	return d.newChild(ctx, path, volume.Attr{IsDir: true}, out), 0
}

func (d *dirNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := childPath(d.path, name)

	if mode&syscall.S_IFMT != 0 && mode&syscall.S_IFMT != syscall.S_IFREG {
		return nil, syscall.EPERM
	}
	if err := d.fs.vol.Mknod(path); err != nil {
		return nil, d.fs.errno("mknod", path, err)
	}

	return d.newChild(ctx, path, volume.Attr{}, out), 0
}

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	path := childPath(d.path, name)

	if err := d.fs.vol.Mknod(path); err != nil {
		return nil, nil, 0, d.fs.errno("create", path, err)
	}

	return d.newChild(ctx, path, volume.Attr{}, out), nil, 0, 0
}

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	path := childPath(d.path, name)
	return d.fs.errno("rmdir", path, d.fs.vol.Rmdir(path))
}

func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	path := childPath(d.path, name)
	return d.fs.errno("unlink", path, d.fs.vol.Unlink(path))
}

func (d *dirNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	usage, err := d.fs.vol.Usage()
	if err != nil {
		return d.fs.errno("statfs", d.path, err)
	}

	dirs := uint64(layout.RootCapacity(usage.BlockSize))
	files := dirs * uint64(layout.DirCapacity(usage.BlockSize))

	out.Bsize = uint32(usage.BlockSize)
	out.Frsize = uint32(usage.BlockSize)
	out.Blocks = uint64(usage.DataBlocks)
	out.Bfree = uint64(usage.FreeBlocks())
	out.Bavail = out.Bfree
	out.Files = dirs + files
	out.Ffree = uint64(usage.FreeBlocks())
	out.NameLen = chainfs.MaxFileName + 1 + chainfs.MaxExtension
	return 0
}

// fileNode is a file inside a directory.
type fileNode struct {
	gofuse.Inode
	fs   *filesystem
	path string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeSetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)
var _ gofuse.NodeWriter = (*fileNode)(nil)
var _ gofuse.NodeFlusher = (*fileNode)(nil)

func (n *fileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fs.vol.Stat(n.path)
	if err != nil {
		return n.fs.errno("getattr", n.path, err)
	}

	n.fs.fillAttr(attr, &out.Attr)
	return 0
}

// Setattr accepts truncation and mode changes without applying them
// and reports the file as it is.
func (n *fileNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.fs.vol.Truncate(n.path, int64(size)); err != nil {
			return n.fs.errno("truncate", n.path, err)
		}
	}

	return n.Getattr(ctx, f, out)
}

func (n *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, 0, n.fs.errno("open", n.path, n.fs.vol.Open(n.path))
}

func (n *fileNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	buf, err := n.fs.vol.Read(n.path, len(dest), off)
	if err != nil {
		return nil, n.fs.errno("read", n.path, err)
	}

	return fuse.ReadResultData(buf), 0
}

func (n *fileNode) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.fs.vol.Write(n.path, data, off)
	if err != nil {
		return 0, n.fs.errno("write", n.path, err)
	}

	return uint32(written), 0
}

func (n *fileNode) Flush(ctx context.Context, f gofuse.FileHandle) syscall.Errno {
	return n.fs.errno("flush", n.path, n.fs.vol.Flush(n.path))
}
