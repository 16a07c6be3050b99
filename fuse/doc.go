// Package fuse mounts a chainfs volume as a FUSE filesystem.
//
// The mount mirrors the volume's two levels: the root holds
// directories, each directory holds files named "name.ext". Every
// callback is forwarded to the matching volume operation by path, so
// nodes carry nothing but their path and no state is cached in the
// filesystem itself.
//
// # Errors
//
// Volume errors are translated to errno values by Errno. Requests the
// volume does not support, such as removing entries or shrinking a
// file, succeed without changing anything.
package fuse
