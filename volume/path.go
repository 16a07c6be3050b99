package volume

import (
	"fmt"
	"strings"

	"github.com/keks/chainfs"
)

// Kind says what a Path points at.
type Kind int

const (
	// KindRoot is "/".
	KindRoot Kind = iota

	// KindDir is "/dir".
	KindDir

	// KindFile is "/dir/name.ext".
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindDir:
		return "directory"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Path is a parsed filesystem path.
type Path struct {
	Kind Kind
	Dir  string
	Name string
	Ext  string
}

// RootPath is "/".
var RootPath = Path{Kind: KindRoot}

func (p Path) String() string {
	switch p.Kind {
	case KindDir:
		return "/" + p.Dir
	case KindFile:
		return "/" + p.Dir + "/" + p.Name + "." + p.Ext
	default:
		return "/"
	}
}

// ParsePath splits p into its components. Accepted forms are "/",
// "/dir" and "/dir/name.ext"; a single trailing slash is ignored. The
// file part is split at its first dot.
//
// Paths of any other shape fail with chainfs.ErrInvalid, components
// over their bound with chainfs.ErrNameTooLong.
func ParsePath(p string) (Path, error) {
	if !strings.HasPrefix(p, "/") {
		return Path{}, fmt.Errorf("path %q is not absolute: %w", p, chainfs.ErrInvalid)
	}

	rest := strings.TrimSuffix(p[1:], "/")
	if rest == "" {
		return RootPath, nil
	}

	parts := strings.Split(rest, "/")
	for _, part := range parts {
		if part == "" {
			return Path{}, fmt.Errorf("path %q has an empty component: %w", p, chainfs.ErrInvalid)
		}
	}

	switch len(parts) {
	case 1:
		if len(parts[0]) > chainfs.MaxDirName {
			return Path{}, fmt.Errorf("directory name %q: %w", parts[0], chainfs.ErrNameTooLong)
		}
		return Path{Kind: KindDir, Dir: parts[0]}, nil

	case 2:
		dot := strings.IndexByte(parts[1], '.')
		if dot <= 0 || dot == len(parts[1])-1 {
			return Path{}, fmt.Errorf("file name %q is not of the form name.ext: %w", parts[1], chainfs.ErrInvalid)
		}

		out := Path{
			Kind: KindFile,
			Dir:  parts[0],
			Name: parts[1][:dot],
			Ext:  parts[1][dot+1:],
		}

		switch {
		case len(out.Dir) > chainfs.MaxDirName:
			return Path{}, fmt.Errorf("directory name %q: %w", out.Dir, chainfs.ErrNameTooLong)
		case len(out.Name) > chainfs.MaxFileName:
			return Path{}, fmt.Errorf("file name %q: %w", out.Name, chainfs.ErrNameTooLong)
		case len(out.Ext) > chainfs.MaxExtension:
			return Path{}, fmt.Errorf("extension %q: %w", out.Ext, chainfs.ErrNameTooLong)
		}

		return out, nil

	default:
		return Path{}, fmt.Errorf("path %q is nested too deeply: %w", p, chainfs.ErrInvalid)
	}
}

// parseLookup parses a path for a read-only operation. Any path that
// could not have been created simply does not exist.
func parseLookup(p string) (Path, error) {
	path, err := ParsePath(p)
	if err != nil {
		return Path{}, fmt.Errorf("%v: %w", err, chainfs.ErrNotFound)
	}

	return path, nil
}
