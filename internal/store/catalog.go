package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"pkgstore/internal/checksum"
	"pkgstore/internal/fsutil"
	"pkgstore/internal/pkginfo"
)

// Installed describes one slot found on disk.
type Installed struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Path        string `json:"path"`
	HasManifest bool   `json:"hasManifest"`
}

// Names lists installed package names, scoped names as @scope/name.
func Names(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !strings.HasPrefix(e.Name(), "@") {
			names = append(names, e.Name())
			continue
		}
		scoped, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, s := range scoped {
			if s.IsDir() {
				names = append(names, e.Name()+"/"+s.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Versions lists installed versions of name, semver-ordered where versions
// parse and lexically otherwise; non-semver versions sort first.
func Versions(root, name string) ([]Installed, error) {
	pkgRoot := PackageRoot(root, name)
	entries, err := os.ReadDir(pkgRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Installed
	for _, e := range entries {
		if !e.IsDir() || pkginfo.ReservedVersion(e.Name()) {
			continue
		}
		version := e.Name()
		hasManifest, err := fsutil.Exists(ManifestPath(root, name, version))
		if err != nil {
			return nil, err
		}
		out = append(out, Installed{Name: name, Version: version, Path: filepath.Join(pkgRoot, version), HasManifest: hasManifest})
	}
	sort.Slice(out, func(i, j int) bool { return compareVersions(out[i].Version, out[j].Version) < 0 })
	return out, nil
}

// List returns every installed slot, ordered by name then version.
func List(root string) ([]Installed, error) {
	names, err := Names(root)
	if err != nil {
		return nil, err
	}
	var out []Installed
	for _, name := range names {
		vs, err := Versions(root, name)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func compareVersions(a, b string) int {
	ca, cb := pkginfo.CanonicalVersion(a), pkginfo.CanonicalVersion(b)
	va, vb := semver.IsValid(ca), semver.IsValid(cb)
	switch {
	case va && vb:
		if c := semver.Compare(ca, cb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case va:
		return 1
	case vb:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// WriteManifest persists m as store/<name>/<version>.md5. An existing manifest is never replaced.
func WriteManifest(root, name, version string, m checksum.Manifest) error {
	blob, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := fsutil.WriteOnce(ManifestPath(root, name, version), blob, 0o644); err != nil {
		return fmt.Errorf("STO_MANIFEST_WRITE: %w", err)
	}
	return nil
}

func ReadManifest(root, name, version string) (checksum.Manifest, error) {
	blob, err := os.ReadFile(ManifestPath(root, name, version))
	if err != nil {
		return checksum.Manifest{}, err
	}
	m, err := checksum.Parse(blob)
	if err != nil {
		return checksum.Manifest{}, fmt.Errorf("STO_MANIFEST_PARSE: %w", err)
	}
	return m, nil
}
