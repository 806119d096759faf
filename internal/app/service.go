package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"pkgstore/internal/archive"
	"pkgstore/internal/audit"
	"pkgstore/internal/checksum"
	"pkgstore/internal/config"
	"pkgstore/internal/doctor"
	"pkgstore/internal/importer"
	"pkgstore/internal/installer"
	"pkgstore/internal/logging"
	"pkgstore/internal/pkgerr"
	"pkgstore/internal/store"
)

type Options struct {
	ConfigPath string
	// StoreRoot overrides storage.root and $PKGSTORE_ROOT.
	StoreRoot string
	// LogOutput receives diagnostic logs. Defaults to stderr.
	LogOutput io.Writer
}

type Service struct {
	ConfigPath string
	Config     config.Config
	Root       string

	Pipeline *importer.Pipeline
	Doctor   *doctor.Service
	Audit    *audit.Logger
	Log      *log.Logger
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, err
	}
	root, err := config.ResolveStorageRoot(cfg, opts.StoreRoot)
	if err != nil {
		return nil, err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := logging.New(out, cfg.Logging)
	if err != nil {
		return nil, err
	}
	registry, err := archive.DefaultRegistry().Restrict(cfg.Import.Extensions)
	if err != nil {
		return nil, fmt.Errorf("DOC_CONFIG_IMPORT: %w", err)
	}
	timeout, staleAfter := config.LockDurations(cfg)
	auditLog := audit.New(store.AuditPath(root))

	installerSvc := &installer.Service{
		Root:  root,
		Lock:  store.LockOptions{Timeout: timeout, StaleAfter: staleAfter},
		Log:   logger,
		Audit: auditLog,
	}
	return &Service{
		ConfigPath: configPath,
		Config:     cfg,
		Root:       root,
		Pipeline: &importer.Pipeline{
			Root:      root,
			Registry:  registry,
			Installer: installerSvc,
			Log:       logger,
			Audit:     auditLog,
		},
		Doctor: &doctor.Service{ConfigPath: configPath, Root: root, StaleAfter: staleAfter},
		Audit:  auditLog,
		Log:    logger,
	}, nil
}

func (s *Service) Import(ctx context.Context, archives []string) ([]importer.Result, error) {
	return s.Pipeline.ImportAll(ctx, archives)
}

// List returns installed slots, optionally limited to one package name.
func (s *Service) List(name string) ([]store.Installed, error) {
	if name == "" {
		return store.List(s.Root)
	}
	return store.Versions(s.Root, name)
}

type VerifyReport struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Path    string        `json:"path"`
	Digest  string        `json:"digest"`
	Clean   bool          `json:"clean"`
	Diff    checksum.Diff `json:"diff"`
}

// Verify rehashes an installed slot and compares it with its persisted manifest.
func (s *Service) Verify(ctx context.Context, name, version string) (VerifyReport, error) {
	slot := store.SlotPath(s.Root, name, version)
	if info, err := os.Stat(slot); err != nil || !info.IsDir() {
		return VerifyReport{}, fmt.Errorf("VFY_NOT_INSTALLED: %s@%s is not installed", name, version)
	}
	m, err := store.ReadManifest(s.Root, name, version)
	if err != nil {
		return VerifyReport{}, pkgerr.Wrap(pkgerr.KindFilesystemError, fmt.Errorf("VFY_MANIFEST: %w", err))
	}
	d, err := checksum.Compare(ctx, m, slot)
	if err != nil {
		return VerifyReport{}, err
	}
	digest, err := m.Digest()
	if err != nil {
		return VerifyReport{}, err
	}
	return VerifyReport{Name: name, Version: version, Path: slot, Digest: digest, Clean: d.Clean(), Diff: d}, nil
}

func (s *Service) DoctorRun(ctx context.Context, verify bool) doctor.Report {
	d := *s.Doctor
	d.Verify = verify
	return d.Run(ctx)
}

// History returns the newest audit events, at most limit (all when limit <= 0).
func (s *Service) History(limit int) ([]audit.Event, error) {
	return audit.Read(s.Audit.Path(), limit)
}
