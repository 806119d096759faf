package store

import "os"

func EnsureLayout(root string) error {
	dirs := []string{root, MetaRoot(root), StagingRoot(root)}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
