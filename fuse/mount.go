package fuse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/keks/chainfs/volume"
)

// DefaultFsName is reported as the mount source when Options.FsName is
// empty.
const DefaultFsName = "chainfs"

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Volume serves all requests.
	Volume *volume.Volume

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request and response to stderr.
	Debug bool

	// FsName is shown as the source in the mount table. Empty uses
	// DefaultFsName.
	FsName string

	// Logger receives diagnostic messages. If nil, only errors are
	// logged, to stderr.
	Logger *slog.Logger
}

// Mount mounts the volume at the configured mountpoint. The caller
// must call Unmount on the returned Server when done. The mountpoint
// directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Volume == nil {
		return nil, fmt.Errorf("volume is required")
	}

	if options.FsName == "" {
		options.FsName = DefaultFsName
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	fs := &filesystem{
		vol:    options.Volume,
		logger: options.Logger,
		owner:  fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())},
	}
	root := &dirNode{fs: fs, path: "/"}

	// The image may also be changed by other processes, so nothing is
	// cached for long.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     options.FsName,
			Name:       "chainfs",
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("chainfs mounted", "mountpoint", options.Mountpoint)
	return server, nil
}
