package fuse

import (
	"errors"
	"syscall"

	"github.com/keks/chainfs"
)

var errnos = []struct {
	err   error
	errno syscall.Errno
}{
	{chainfs.ErrNotFound, syscall.ENOENT},
	{chainfs.ErrExist, syscall.EEXIST},
	{chainfs.ErrNameTooLong, syscall.ENAMETOOLONG},
	{chainfs.ErrNoSpace, syscall.ENOSPC},
	{chainfs.ErrNotDirectoryPath, syscall.EPERM},
	{chainfs.ErrIsDirectory, syscall.EISDIR},
	{chainfs.ErrFileTooLarge, syscall.EFBIG},
	{chainfs.ErrCorrupt, syscall.EIO},
	{chainfs.ErrInvalid, syscall.EINVAL},
}

// Errno returns the errno reported to the kernel for err. Nil maps to
// 0 and unknown errors to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}

	return syscall.EIO
}
