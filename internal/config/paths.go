package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// StoreRootEnv overrides storage.root without touching config.toml.
const StoreRootEnv = "PKGSTORE_ROOT"

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pkgstore/config.toml"
	}
	return filepath.Join(home, ".pkgstore", "config.toml")
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

// ResolveStorageRoot picks the store root: override, then $PKGSTORE_ROOT, then storage.root.
func ResolveStorageRoot(cfg Config, override string) (string, error) {
	root := override
	if root == "" {
		root = os.Getenv(StoreRootEnv)
	}
	if root == "" {
		root = cfg.Storage.Root
	}
	expanded, err := ExpandPath(root)
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Clean(expanded))
}
