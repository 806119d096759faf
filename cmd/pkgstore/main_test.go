package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkgstore/internal/app"
	"pkgstore/internal/config"
	"pkgstore/internal/doctor"
	"pkgstore/internal/store"
	"pkgstore/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func cliEnv(t *testing.T) (cfgPath, root string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.StoreRootEnv, "")
	return filepath.Join(home, "config.toml"), filepath.Join(home, "dep")
}

func fooArchive(t *testing.T) string {
	t.Helper()
	return testutil.WriteTarGz(t, filepath.Join(t.TempDir(), "foo-1.0.0.tgz"), map[string]string{
		"package/package.json": testutil.Descriptor("foo", "1.0.0"),
		"package/a.js":         "a",
	})
}

func TestNewRootCmdIncludesCoreCommands(t *testing.T) {
	cmd := newRootCmd()
	got := map[string]bool{}
	for _, c := range cmd.Commands() {
		got[c.Name()] = true
	}
	for _, want := range []string{"import", "list", "verify", "doctor", "history", "version"} {
		if !got[want] {
			t.Fatalf("expected command %q", want)
		}
	}
	for _, flag := range []string{"config", "store", "json"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("expected persistent flag --%s", flag)
		}
	}
}

func TestImportThenListAndVerify(t *testing.T) {
	cfgPath, root := cliEnv(t)
	src := fooArchive(t)

	out, err := runCLI(t, "--config", cfgPath, "--store", root, "import", src)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "imported foo@1.0.0") {
		t.Fatalf("unexpected import output %q", out)
	}
	out, err = runCLI(t, "--config", cfgPath, "--store", root, "import", src)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !strings.Contains(out, "foo@1.0.0 already installed") {
		t.Fatalf("unexpected re-import output %q", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "--store", root, "--json", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var items []store.Installed
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].Name != "foo" || !items[0].HasManifest {
		t.Fatalf("unexpected list %+v", items)
	}

	out, err = runCLI(t, "--config", cfgPath, "--store", root, "verify", "foo", "1.0.0")
	if err != nil || !strings.Contains(out, "matches manifest sha256:") {
		t.Fatalf("expected clean verify, got %q err=%v", out, err)
	}
	if err := os.WriteFile(filepath.Join(store.SlotPath(root, "foo", "1.0.0"), "a.js"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("edit slot: %v", err)
	}
	out, err = runCLI(t, "--config", cfgPath, "--store", root, "verify", "foo", "1.0.0")
	var ex ExitCoder
	if !errors.As(err, &ex) || ex.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %v", err)
	}
	if !strings.Contains(out, "modified: a.js") {
		t.Fatalf("unexpected verify output %q", out)
	}
}

func TestImportUnsupportedFormatJSON(t *testing.T) {
	cfgPath, root := cliEnv(t)
	src := filepath.Join(t.TempDir(), "bar.rar")
	if err := os.WriteFile(src, []byte("rar"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	out, err := runCLI(t, "--config", cfgPath, "--store", root, "--json", "import", src)
	var ex ExitCoder
	if !errors.As(err, &ex) || ex.ExitCode() != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	var payload importOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode import output: %v\n%s", err, out)
	}
	if payload.Error == nil || payload.Error.Code != "IMP_FORMAT" || payload.Error.Kind != "UnsupportedFormat" || payload.Error.Archive != src {
		t.Fatalf("unexpected error payload %+v", payload.Error)
	}
	if payload.Error.Message != "UnsupportedFormat: rar file is not supported!" {
		t.Fatalf("unexpected error message %q", payload.Error.Message)
	}
	if len(payload.Imported) != 0 {
		t.Fatalf("expected nothing imported, got %+v", payload.Imported)
	}
}

func TestImportReportsPackageInstalledWithoutManifest(t *testing.T) {
	cfgPath, root := cliEnv(t)
	if err := os.MkdirAll(store.ManifestPath(root, "foo", "1.0.0"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := fooArchive(t)
	out, err := runCLI(t, "--config", cfgPath, "--store", root, "import", src)
	var ex ExitCoder
	if !errors.As(err, &ex) || ex.ExitCode() != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	if !strings.Contains(out, "installed foo@1.0.0 -> "+store.SlotPath(root, "foo", "1.0.0")+" (manifest missing)") {
		t.Fatalf("unexpected import output %q", out)
	}

	barSrc := testutil.WriteTarGz(t, filepath.Join(t.TempDir(), "bar.tgz"), map[string]string{
		"package.json": testutil.Descriptor("bar", "1.0.0"),
	})
	if err := os.MkdirAll(store.ManifestPath(root, "bar", "1.0.0"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, _ = runCLI(t, "--config", cfgPath, "--store", root, "--json", "import", barSrc)
	var payload importOutput
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode import output: %v\n%s", err, out)
	}
	if len(payload.Imported) != 1 || !payload.Imported[0].ManifestMissing || payload.Imported[0].Name != "bar" {
		t.Fatalf("expected bar reported as installed without manifest, got %+v", payload.Imported)
	}
	if payload.Error == nil || payload.Error.Archive != barSrc || payload.Error.Code != "IMP_FS" {
		t.Fatalf("unexpected error payload %+v", payload.Error)
	}
}

func TestDoctorAndHistory(t *testing.T) {
	cfgPath, root := cliEnv(t)
	if _, err := runCLI(t, "--config", cfgPath, "--store", root, "import", fooArchive(t)); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	out, err := runCLI(t, "--config", cfgPath, "--store", root, "--json", "doctor", "--verify")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	var report doctor.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode doctor output: %v\n%s", err, out)
	}
	if !report.Healthy || report.Packages != 1 {
		t.Fatalf("unexpected doctor report %+v", report)
	}

	out, err = runCLI(t, "--config", cfgPath, "--store", root, "history", "--limit", "1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "import/manifest ok foo@1.0.0") {
		t.Fatalf("unexpected history output %q", out)
	}
}

func TestCommandsSurfaceServiceErrors(t *testing.T) {
	failing := func() (*app.Service, error) { return nil, errors.New("DOC_CONFIG_PARSE: boom") }
	flag := false
	for _, cmd := range []interface {
		SetArgs([]string)
		Execute() error
	}{
		newImportCmd(failing, &flag),
		newListCmd(failing, &flag),
		newDoctorCmd(failing, &flag),
		newHistoryCmd(failing, &flag),
	} {
		cmd.SetArgs([]string{"x.tgz"})
		if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "DOC_CONFIG_PARSE") {
			t.Fatalf("expected service error, got %v", err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "--json", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info["version"] != config.Version {
		t.Fatalf("expected version %q, got %q", config.Version, info["version"])
	}
}
