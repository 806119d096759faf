package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LockFiles lists slot lock files currently present under root.
func LockFiles(root string) ([]string, error) {
	names, err := Names(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		entries, err := os.ReadDir(PackageRoot(root, name))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), LockExt) {
				out = append(out, filepath.Join(PackageRoot(root, name), e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Workspaces lists entries left in the staging directory.
func Workspaces(root string) ([]string, error) {
	entries, err := os.ReadDir(StagingRoot(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.Join(StagingRoot(root), e.Name()))
	}
	return out, nil
}
