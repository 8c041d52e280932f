// Package fileutil holds the file operations shared by the updater and the
// dependency installers.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const (
	removeAttempts = 20
	removeInterval = 100 * time.Millisecond
)

// sleep is swapped out in tests.
var sleep = time.Sleep

// CopyFile copies src over dst, removing dst first. A missing or
// non-regular src is a no-op.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if err := RemovePath(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy file %s -> %s: %w", src, dst, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("copy file %s -> %s: %w", src, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy file %s -> %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy file %s -> %s: %w", src, dst, err)
	}
	return nil
}

// MoveFile renames src to dst, removing dst first. A missing or non-regular
// src is a no-op.
func MoveFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if err := RemovePath(dst); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move file %s -> %s: %w", src, dst, err)
	}
	return nil
}

// RemovePath deletes a file or a directory tree. Windows keeps files locked
// briefly after a process exits, so removal is retried. An absent path is
// not an error.
func RemovePath(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	remove := os.Remove
	kind := "file"
	if info.IsDir() {
		remove = os.RemoveAll
		kind = "directory"
	}

	for attempt := 1; ; attempt++ {
		err = remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if attempt == removeAttempts {
			return fmt.Errorf("remove %s %s: %w", kind, path, err)
		}
		sleep(removeInterval)
	}
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
