// Package fileutil writes walletlink state files so that a crash never
// leaves a half-written config, session document or QR image behind.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// DirPerm is the mode of directories created for state files.
const DirPerm os.FileMode = 0o700

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic replaces path with data. The data goes to a temp file in the
// same directory, which is synced and renamed over path. Missing parent
// directories are created with DirPerm.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: callers build paths under the walletlink home
		_ = os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true

	// Best effort; the rename is already visible.
	if d, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir is derived from path
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
