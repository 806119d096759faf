package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// safeJoin resolves an archive entry name under destDir, rejecting absolute
// names and names that climb out of it.
func safeJoin(destDir, name string) (string, error) {
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return filepath.Join(destDir, rel), nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	// owner must be able to read the file back for hashing
	perm := mode.Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, r)
	return err
}

// StripSingleRoot hoists the contents of a lone top-level directory into dir.
// Package tarballs usually wrap everything in one folder (package/, name-1.0.0/).
// It reports whether anything was moved.
func StripSingleRoot(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return false, nil
	}
	hold, err := os.MkdirTemp(dir, ".unwrap-")
	if err != nil {
		return false, err
	}
	wrapper := filepath.Join(hold, entries[0].Name())
	if err := os.Rename(filepath.Join(dir, entries[0].Name()), wrapper); err != nil {
		return false, err
	}
	children, err := os.ReadDir(wrapper)
	if err != nil {
		return false, err
	}
	for _, c := range children {
		if err := os.Rename(filepath.Join(wrapper, c.Name()), filepath.Join(dir, c.Name())); err != nil {
			return false, err
		}
	}
	if err := os.RemoveAll(hold); err != nil {
		return false, err
	}
	return true, nil
}
