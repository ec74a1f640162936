// Package tileio provides the durable-rename primitive the tile map's save
// path needs (§4.1, §6.1): fsync the written file, rename it into place, then
// fsync the containing directory so the rename itself survives a crash.
// Plain os.Rename makes the rename atomic but says nothing about when the
// directory entry update reaches disk; on most POSIX filesystems a crash
// between rename and its directory's next fsync can still lose the rename.
package tileio

import (
	"os"

	"golang.org/x/sys/unix"
)

// Rename replaces newpath with oldpath, same semantics as os.Rename.
func Rename(oldpath, newpath string) error {
	return unix.Rename(oldpath, newpath)
}

// Fsync flushes f's contents to stable storage.
func Fsync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}

// FsyncDir flushes the directory entry at dir to stable storage, so a
// rename performed inside it is not lost on crash even though the rename
// itself already landed.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return unix.Fsync(int(d.Fd()))
}
