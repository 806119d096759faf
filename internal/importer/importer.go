// Package importer runs the archive import pipeline:
// select extractor, extract into a private workspace, install into the store.
package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"pkgstore/internal/archive"
	"pkgstore/internal/audit"
	"pkgstore/internal/installer"
	"pkgstore/internal/logging"
	"pkgstore/internal/pkgerr"
	"pkgstore/internal/store"
)

type Pipeline struct {
	Root      string
	Registry  *archive.Registry
	Installer *installer.Service
	// Tokens supplies the uniqueness for workspace names. Defaults to random UUIDs.
	Tokens func() string
	Log    *log.Logger
	Audit  *audit.Logger
}

type Result struct {
	Name             string         `json:"name"`
	Version          string         `json:"version"`
	Archive          string         `json:"archive"`
	Format           archive.Format `json:"format"`
	Path             string         `json:"path"`
	ManifestPath     string         `json:"manifestPath"`
	AlreadyInstalled bool           `json:"alreadyInstalled"`
	Files            int            `json:"files,omitempty"`
	ManifestDigest   string         `json:"manifestDigest,omitempty"`
	// ManifestMissing marks a package that was installed but whose manifest
	// could not be written; it accompanies a non-nil error from Import.
	ManifestMissing bool `json:"manifestMissing,omitempty"`
	// ManifestStale replaces ManifestMissing when the write was blocked by a
	// leftover manifest that does not match the installed files.
	ManifestStale bool `json:"manifestStale,omitempty"`
}

// Installed reports whether the package landed in the store, with or without a manifest.
func (r Result) Installed() bool {
	return r.Name != ""
}

func (r *Result) fill(in installer.Result) {
	r.Name = in.Metadata.Name
	r.Version = in.Metadata.Version
	r.Path = in.Path
	r.ManifestPath = in.ManifestPath
	r.AlreadyInstalled = in.AlreadyInstalled
	r.Files = in.Files
	r.ManifestDigest = in.ManifestDigest
}

// Import installs the package archive at archivePath and returns its identity.
// Stages run strictly in order and the first failure aborts the import.
// Nothing is written before the archive format is accepted.
func (p *Pipeline) Import(ctx context.Context, archivePath string) (Result, error) {
	logger := logging.OrDiscard(p.Log).With("archive", archivePath)

	pa, extractor, err := p.registry().Select(archivePath)
	if err != nil {
		// not audited: a rejected format must leave the store untouched
		logger.Debug("rejected archive", "err", err)
		return Result{}, err
	}
	res := Result{Archive: archivePath, Format: pa.Format}

	if err := store.EnsureLayout(p.Root); err != nil {
		return Result{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("IMP_LAYOUT: %w", err))
	}
	workspace := store.WorkspacePath(p.Root, p.token())
	defer func() {
		// no-op once the workspace has been relocated or discarded
		if rmErr := os.RemoveAll(workspace); rmErr != nil {
			logger.Warn("remove workspace", "path", workspace, "err", rmErr)
		}
	}()

	logger.Debug("extracting", "format", pa.Format, "workspace", workspace)
	if err := p.extract(ctx, extractor, archivePath, workspace); err != nil {
		p.fail("extract", archivePath, err)
		return Result{}, err
	}
	p.log(audit.Event{Operation: "import", Phase: "extract", Status: audit.StatusOK, Fields: map[string]string{"archive": archivePath, "format": string(pa.Format)}})

	installed, err := p.installer().Install(ctx, workspace)
	if installed.Installed {
		res.fill(installed)
	}
	if err != nil {
		p.fail("install", archivePath, err)
		if installed.Installed {
			if installed.ManifestStale {
				res.ManifestStale = true
				logger.Error("package installed beside a stale manifest", "path", installed.Path, "manifest", installed.ManifestPath, "err", err)
			} else {
				res.ManifestMissing = true
				logger.Error("package installed without manifest", "path", installed.Path, "err", err)
			}
			return res, err
		}
		return Result{}, err
	}
	if res.AlreadyInstalled {
		logger.Info("already installed", "package", res.Name, "version", res.Version)
	} else {
		logger.Info("installed", "package", res.Name, "version", res.Version, "files", res.Files)
	}
	return res, nil
}

// ImportAll imports archives in order and stops at the first failure,
// returning the results completed so far. A package installed by the failing
// import is included, flagged ManifestMissing or ManifestStale.
func (p *Pipeline) ImportAll(ctx context.Context, archivePaths []string) ([]Result, error) {
	out := make([]Result, 0, len(archivePaths))
	for _, path := range archivePaths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := p.Import(ctx, path)
		if err != nil {
			if res.Installed() {
				out = append(out, res)
			}
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (p *Pipeline) extract(ctx context.Context, x archive.Extractor, archivePath, workspace string) error {
	if err := x.Extract(ctx, archivePath, workspace); err != nil {
		return pkgerr.Wrap(pkgerr.KindExtractionFailure, fmt.Errorf("%s decompress failed! (%w)", archivePath, err))
	}
	// extractors that silently produce nothing still fail the import
	info, err := os.Stat(workspace)
	if err != nil || !info.IsDir() {
		return pkgerr.New(pkgerr.KindExtractionFailure, "%s decompress failed!", archivePath)
	}
	if _, err := archive.StripSingleRoot(workspace); err != nil {
		return pkgerr.Wrap(pkgerr.KindExtractionFailure, fmt.Errorf("%s unwrap failed: %w", archivePath, err))
	}
	return nil
}

func (p *Pipeline) registry() *archive.Registry {
	if p.Registry == nil {
		return archive.DefaultRegistry()
	}
	return p.Registry
}

func (p *Pipeline) installer() *installer.Service {
	if p.Installer == nil {
		return &installer.Service{Root: p.Root, Log: p.Log, Audit: p.Audit}
	}
	return p.Installer
}

func (p *Pipeline) token() string {
	if p.Tokens == nil {
		return uuid.NewString()
	}
	return p.Tokens()
}

func (p *Pipeline) log(ev audit.Event) {
	if err := p.Audit.Log(ev); err != nil {
		logging.OrDiscard(p.Log).Warn("audit log write failed", "err", err)
	}
}

func (p *Pipeline) fail(phase, archivePath string, err error) {
	p.log(audit.Event{
		Operation: "import",
		Phase:     phase,
		Status:    audit.StatusFailed,
		Code:      pkgerr.CodeOf(err),
		Message:   err.Error(),
		Fields:    map[string]string{"archive": archivePath},
	})
}
