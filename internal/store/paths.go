package store

import (
	"path/filepath"

	"pkgstore/internal/pkginfo"
)

// MetaDirName holds store bookkeeping. Package names never start with a dot,
// so it cannot collide with a package root.
const MetaDirName = ".pkgstore"

func MetaRoot(root string) string {
	return filepath.Join(root, MetaDirName)
}

func StagingRoot(root string) string {
	return filepath.Join(MetaRoot(root), "staging")
}

func AuditPath(root string) string {
	return filepath.Join(MetaRoot(root), "audit.log")
}

// PackageRoot is store/<name>. Scoped names (@scope/name) nest one level.
func PackageRoot(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}

// SlotPath is the final directory store/<name>/<version>.
func SlotPath(root, name, version string) string {
	return filepath.Join(PackageRoot(root, name), version)
}

// ManifestPath is store/<name>/<version>.md5, beside the slot. Keeping it
// inside the package root means equal versions of different packages never collide.
func ManifestPath(root, name, version string) string {
	return SlotPath(root, name, version) + ManifestExt
}

// LockPath is the transient install gate for one slot.
func LockPath(root, name, version string) string {
	return SlotPath(root, name, version) + LockExt
}

const (
	ManifestExt = pkginfo.ManifestSuffix
	LockExt     = pkginfo.LockSuffix
)

// NewWorkspaceName derives a workspace directory name from a uniqueness token.
func NewWorkspaceName(token string) string {
	return "import-" + token
}

func WorkspacePath(root, token string) string {
	return filepath.Join(StagingRoot(root), NewWorkspaceName(token))
}
