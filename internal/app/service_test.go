package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkgstore/internal/config"
	"pkgstore/internal/pkgerr"
	"pkgstore/internal/store"
	"pkgstore/internal/testutil"
)

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.StoreRootEnv, "")
	cfgPath := filepath.Join(home, "config.toml")
	cfg := config.DefaultConfig()
	cfg.Storage.Root = filepath.Join(home, "dep")
	if mutate != nil {
		mutate(&cfg)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	var logs bytes.Buffer
	svc, err := New(Options{ConfigPath: cfgPath, LogOutput: &logs})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, &logs
}

func TestNewResolvesStoreRootPrecedence(t *testing.T) {
	home := t.TempDir()
	cfgPath := filepath.Join(home, "config.toml")
	override := filepath.Join(home, "override")
	env := filepath.Join(home, "env")
	t.Setenv(config.StoreRootEnv, env)

	svc, err := New(Options{ConfigPath: cfgPath, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Root != env {
		t.Fatalf("expected env root %s, got %s", env, svc.Root)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	svc, err = New(Options{ConfigPath: cfgPath, StoreRoot: override, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Root != override || svc.Pipeline.Root != override {
		t.Fatalf("expected override root %s, got %s", override, svc.Root)
	}
}

func TestImportListVerifyHistory(t *testing.T) {
	svc, logs := newTestService(t, nil)
	ctx := context.Background()
	src := testutil.WriteTarGz(t, filepath.Join(t.TempDir(), "foo-1.0.0.tgz"), map[string]string{
		"package/package.json": testutil.Descriptor("foo", "1.0.0"),
		"package/index.js":     "module.exports = 1",
	})
	results, err := svc.Import(ctx, []string{src})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(results) != 1 || results[0].Name != "foo" {
		t.Fatalf("unexpected results %+v", results)
	}
	if !strings.Contains(logs.String(), "installed") {
		t.Fatalf("expected installed log line, got %q", logs.String())
	}

	items, err := svc.List("")
	if err != nil || len(items) != 1 || !items[0].HasManifest {
		t.Fatalf("unexpected list %+v err=%v", items, err)
	}
	items, err = svc.List("foo")
	if err != nil || len(items) != 1 || items[0].Version != "1.0.0" {
		t.Fatalf("unexpected versions %+v err=%v", items, err)
	}

	report, err := svc.Verify(ctx, "foo", "1.0.0")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !report.Clean || report.Digest != results[0].ManifestDigest {
		t.Fatalf("unexpected verify report %+v", report)
	}
	if err := os.WriteFile(filepath.Join(store.SlotPath(svc.Root, "foo", "1.0.0"), "index.js"), []byte("edited"), 0o644); err != nil {
		t.Fatalf("edit slot: %v", err)
	}
	report, err = svc.Verify(ctx, "foo", "1.0.0")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if report.Clean || len(report.Diff.Modified) != 1 || report.Diff.Modified[0] != "index.js" {
		t.Fatalf("expected modified index.js, got %+v", report.Diff)
	}

	events, err := svc.History(0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected extract, install and manifest events, got %+v", events)
	}
	last, err := svc.History(1)
	if err != nil || len(last) != 1 || last[0].Phase != "manifest" {
		t.Fatalf("expected newest manifest event, got %+v err=%v", last, err)
	}
}

func TestVerifyUnknownPackage(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Verify(context.Background(), "ghost", "1.0.0")
	if err == nil || !strings.Contains(err.Error(), "VFY_NOT_INSTALLED") {
		t.Fatalf("expected VFY_NOT_INSTALLED, got %v", err)
	}
}

func TestConfiguredExtensionsRestrictImports(t *testing.T) {
	svc, _ := newTestService(t, func(cfg *config.Config) {
		cfg.Import.Extensions = []string{"zip"}
	})
	src := testutil.WriteTarGz(t, filepath.Join(t.TempDir(), "foo.tgz"), map[string]string{
		"package.json": testutil.Descriptor("foo", "1.0.0"),
	})
	_, err := svc.Import(context.Background(), []string{src})
	if !pkgerr.Is(err, pkgerr.KindUnsupportedFormat) {
		t.Fatalf("expected UnsupportedFormat, got %v", err)
	}
}

func TestDoctorRunUsesStoreRoot(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if err := os.MkdirAll(store.SlotPath(svc.Root, "foo", "1.0.0"), 0o755); err != nil {
		t.Fatalf("mkdir slot: %v", err)
	}
	report := svc.DoctorRun(context.Background(), false)
	if report.Healthy || report.Root != svc.Root {
		t.Fatalf("expected unhealthy report for %s, got %+v", svc.Root, report)
	}
	if svc.Doctor.Verify {
		t.Fatalf("DoctorRun must not mutate the shared doctor")
	}
}
