// Package installer moves an extracted workspace into its permanent store slot.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"pkgstore/internal/audit"
	"pkgstore/internal/checksum"
	"pkgstore/internal/fsutil"
	"pkgstore/internal/logging"
	"pkgstore/internal/pkgerr"
	"pkgstore/internal/pkginfo"
	"pkgstore/internal/store"
)

type Service struct {
	Root  string
	Lock  store.LockOptions
	Log   *log.Logger
	Audit *audit.Logger
}

// Result describes the slot after Install. Installed is true whenever the slot
// holds the package, including when the manifest step failed afterwards.
type Result struct {
	Metadata         pkginfo.Metadata
	Path             string
	ManifestPath     string
	AlreadyInstalled bool
	Installed        bool
	Files            int
	ManifestDigest   string
	// ManifestStale is set when a manifest left by an earlier slot blocked the
	// write and does not describe the installed files.
	ManifestStale bool
}

// Install reads the workspace descriptor and either relocates the workspace
// into store/<name>/<version> or, when that slot already exists, deletes the
// workspace and reports the existing package. On a metadata error the
// workspace is left for the caller to clean up.
//
// Manifest failures after a successful relocation are returned with
// Result.Installed set: the package stays installed without a manifest.
func (s *Service) Install(ctx context.Context, workspace string) (Result, error) {
	logger := logging.OrDiscard(s.Log)
	meta, err := pkginfo.Read(workspace)
	if err != nil {
		return Result{}, err
	}
	if !meta.SemverValid() {
		logger.Warn("version is not semver", "package", meta.Name, "version", meta.Version)
	}
	res := Result{
		Metadata:     meta,
		Path:         store.SlotPath(s.Root, meta.Name, meta.Version),
		ManifestPath: store.ManifestPath(s.Root, meta.Name, meta.Version),
	}

	lock, err := store.AcquireSlotLock(ctx, s.Root, meta.Name, meta.Version, s.Lock)
	if err != nil {
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, err)
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			logger.Warn("release slot lock", "path", lock.Path(), "err", relErr)
		}
	}()

	if info, err := os.Lstat(res.Path); err == nil {
		if !info.IsDir() {
			return Result{}, pkgerr.New(pkgerr.KindFilesystemError, "INS_SLOT_NOT_DIR: %s exists and is not a package directory", res.Path)
		}
		return s.discard(workspace, res)
	} else if !os.IsNotExist(err) {
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("INS_SLOT_STAT: %w", err))
	}

	if err := os.MkdirAll(filepath.Dir(res.Path), 0o755); err != nil {
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("INS_SLOT_PARENT: %w", err))
	}
	if err := os.Rename(workspace, res.Path); err != nil {
		// a writer that bypassed the lock got there first
		if info, statErr := os.Lstat(res.Path); statErr == nil && info.IsDir() {
			return s.discard(workspace, res)
		}
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("INS_COMMIT_ATOMIC: %w", err))
	}
	res.Installed = true
	logger.Debug("relocated workspace", "from", workspace, "to", res.Path)
	s.log(audit.Event{Operation: "import", Phase: "install", Status: audit.StatusOK, Fields: fields(meta, res.Path)})

	manifest, err := checksum.Build(ctx, res.Path)
	if err != nil {
		s.logFailure("manifest", meta, err)
		return res, err
	}
	if err := store.WriteManifest(s.Root, meta.Name, meta.Version, manifest); err != nil {
		if !errors.Is(err, fsutil.ErrExists) || !s.leftoverMatches(meta, manifest, &res) {
			err = pkgerr.Wrap(pkgerr.KindFilesystemError, err)
			s.logFailure("manifest", meta, err)
			return res, err
		}
		logger.Warn("reusing leftover manifest", "path", res.ManifestPath)
	}
	res.Files = manifest.Len()
	if digest, err := manifest.Digest(); err == nil {
		res.ManifestDigest = digest
	} else {
		logger.Warn("manifest digest", "err", err)
	}
	ev := audit.Event{Operation: "import", Phase: "manifest", Status: audit.StatusOK, Fields: fields(meta, res.ManifestPath)}
	ev.Fields["files"] = fmt.Sprintf("%d", res.Files)
	ev.Fields["digest"] = res.ManifestDigest
	s.log(ev)
	return res, nil
}

// leftoverMatches reports whether the manifest already on disk equals built.
// A readable manifest that differs marks res as stale.
func (s *Service) leftoverMatches(meta pkginfo.Metadata, built checksum.Manifest, res *Result) bool {
	existing, err := store.ReadManifest(s.Root, meta.Name, meta.Version)
	if err != nil {
		return false
	}
	want, err := built.Digest()
	if err != nil {
		return false
	}
	got, err := existing.Digest()
	if err != nil {
		return false
	}
	if got != want {
		res.ManifestStale = true
		return false
	}
	return true
}

func (s *Service) discard(workspace string, res Result) (Result, error) {
	if err := os.RemoveAll(workspace); err != nil {
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("INS_WORKSPACE_REMOVE: %w", err))
	}
	res.AlreadyInstalled = true
	res.Installed = true
	logging.OrDiscard(s.Log).Debug("slot exists, discarded workspace", "package", res.Metadata.Name, "version", res.Metadata.Version)
	s.log(audit.Event{Operation: "import", Phase: "install", Status: audit.StatusSkipped, Message: "already installed", Fields: fields(res.Metadata, res.Path)})
	return res, nil
}

func (s *Service) log(ev audit.Event) {
	if err := s.Audit.Log(ev); err != nil {
		logging.OrDiscard(s.Log).Warn("audit log write failed", "err", err)
	}
}

func (s *Service) logFailure(phase string, meta pkginfo.Metadata, err error) {
	s.log(audit.Event{Operation: "import", Phase: phase, Status: audit.StatusFailed, Code: pkgerr.CodeOf(err), Message: err.Error(), Fields: fields(meta, "")})
}

func fields(meta pkginfo.Metadata, path string) map[string]string {
	f := map[string]string{"name": meta.Name, "version": meta.Version}
	if path != "" {
		f["path"] = path
	}
	return f
}
