package chainfs

import "errors"

// Errors returned by the filesystem layers. Callers match them with
// errors.Is; most are wrapped with the path or block they concern.
var (
	// ErrNotFound means a path component does not exist.
	ErrNotFound = errors.New("chainfs: not found")

	// ErrExist means a create collided with an existing name.
	ErrExist = errors.New("chainfs: already exists")

	// ErrNameTooLong means a name or extension exceeds its bound.
	ErrNameTooLong = errors.New("chainfs: name too long")

	// ErrNoSpace means a directory table or the bitmap is full.
	ErrNoSpace = errors.New("chainfs: no space left")

	// ErrNotDirectoryPath means the path does not have the shape the
	// create operation needs (mkdir on a file path, mknod outside a
	// directory).
	ErrNotDirectoryPath = errors.New("chainfs: wrong path shape for operation")

	// ErrIsDirectory means file I/O was attempted on a directory path.
	ErrIsDirectory = errors.New("chainfs: is a directory")

	// ErrFileTooLarge means a write started past the end of the file.
	ErrFileTooLarge = errors.New("chainfs: file too large")

	// ErrCorrupt means on-disk metadata and block chains disagree.
	ErrCorrupt = errors.New("chainfs: corrupt image")

	// ErrInvalid means an argument was out of range.
	ErrInvalid = errors.New("chainfs: invalid argument")
)
