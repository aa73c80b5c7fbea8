package cli

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"verylup/internal/override"
	"verylup/internal/paths"
	"verylup/internal/proxy"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

const fakeVeryl = `#!/bin/sh
case "$1" in
--version) echo "veryl 0.16.1" ;;
fail) exit 7 ;;
*) echo "ran $*" ;;
esac
`

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// isolate points verylup at a fresh home and moves into an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(paths.HomeEnv, home)
	t.Setenv("VERYLUP_LOG", "")
	t.Chdir(t.TempDir())
	return home
}

// writePackage builds an offline package whose tools are shell scripts.
func writePackage(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("packaged tools are shell scripts")
	}
	path := filepath.Join(t.TempDir(), "veryl-x86_64-linux.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, tool := range toolchain.Tools() {
		w, err := zw.Create(tool)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(fakeVeryl)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
	return path
}

func TestInvokedAs(t *testing.T) {
	tests := map[string]string{
		"/usr/local/bin/veryl":   "veryl",
		"veryl-ls":               "veryl-ls",
		"verylup":                "verylup",
		`C:\bin\veryl.exe`:       "veryl",
		"/opt/verylup/VERYL.EXE": "VERYL",
	}
	for argv0, want := range tests {
		if runtime.GOOS != "windows" && strings.Contains(argv0, `\`) {
			continue
		}
		if got := invokedAs(argv0); got != want {
			t.Errorf("invokedAs(%q) = %q, want %q", argv0, got, want)
		}
	}
}

func TestDefaultRequiresInstalledToolchain(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "default", "0.16.1")
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("expected not installed error, got %v", err)
	}
}

func TestInstallPackageAndShow(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)

	stdout, _, err := execute(t, "install", "--pkg", pkg)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !strings.Contains(stdout, "installed toolchain 0.16.1") {
		t.Fatalf("unexpected install output %q", stdout)
	}

	stdout, _, err = execute(t, "install", "--pkg", pkg, "0.16.1")
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !strings.Contains(stdout, "already installed") {
		t.Fatalf("expected idempotent install, got %q", stdout)
	}

	stdout, _, err = execute(t, "show", "--check", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var view showView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, stdout)
	}
	if view.Active != "0.16.1" || view.Source != "default" {
		t.Fatalf("unexpected active toolchain %+v", view)
	}
	if len(view.Toolchains) != 1 {
		t.Fatalf("expected one toolchain, got %+v", view.Toolchains)
	}
	tc := view.Toolchains[0]
	if !tc.Default || !tc.Active || tc.Status != "ok" || tc.Version != "0.16.1" {
		t.Fatalf("unexpected toolchain view %+v", tc)
	}
}

func TestShowReportsBrokenToolchain(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)
	if _, _, err := execute(t, "install", "--pkg", pkg); err != nil {
		t.Fatalf("install: %v", err)
	}
	layout, err := paths.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	reg, err := registry.NewStore(layout.ConfigRoot).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tc, ok := reg.Get(toolchain.MustParse("0.16.1"))
	if !ok {
		t.Fatal("toolchain not recorded")
	}
	if err := os.Remove(tc.BinaryPath("veryl-ls")); err != nil {
		t.Fatalf("remove tool: %v", err)
	}

	stdout, _, err := execute(t, "show", "--check", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var view showView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Toolchains[0].Status != "broken" || !strings.Contains(view.Toolchains[0].Error, "veryl-ls") {
		t.Fatalf("expected broken veryl-ls, got %+v", view.Toolchains[0])
	}
}

func TestUninstallClearsDefault(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)
	if _, _, err := execute(t, "install", "--pkg", pkg); err != nil {
		t.Fatalf("install: %v", err)
	}
	stdout, _, err := execute(t, "uninstall", "0.16.1")
	if err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if !strings.Contains(stdout, "no default toolchain") {
		t.Fatalf("expected default notice, got %q", stdout)
	}
	stdout, _, err = execute(t, "default")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if !strings.Contains(stdout, "no default") {
		t.Fatalf("unexpected default output %q", stdout)
	}
}

func TestOverrideSetListUnset(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	nested := filepath.Join(project, "rtl")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, _, err := execute(t, "override", "set", "0.15.0", "--path", project); err != nil {
		t.Fatalf("override set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(project, override.MarkerFile)); err != nil {
		t.Fatalf("marker not written: %v", err)
	}

	stdout, _, err := execute(t, "override", "list", "--path", nested, "--json")
	if err != nil {
		t.Fatalf("override list: %v", err)
	}
	var markers []markerView
	if err := json.Unmarshal([]byte(stdout), &markers); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if len(markers) != 1 || markers[0].Toolchain != "0.15.0" || !markers[0].Effective {
		t.Fatalf("unexpected markers %+v", markers)
	}

	if _, _, err := execute(t, "override", "unset", "--path", project); err != nil {
		t.Fatalf("override unset: %v", err)
	}
	stdout, _, err = execute(t, "override", "unset", "--path", project)
	if err != nil {
		t.Fatalf("second unset: %v", err)
	}
	if !strings.Contains(stdout, "no override") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestOverrideSetRejectsInvalidToolchain(t *testing.T) {
	isolate(t)
	if _, _, err := execute(t, "override", "set", "banana", "--path", t.TempDir()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestConfigSetAndUnset(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "config", "set", "download.retries", "2")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if strings.TrimSpace(stdout) != "download.retries = 2" {
		t.Fatalf("unexpected output %q", stdout)
	}

	stdout, _, err = execute(t, "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(stdout), &values); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if values["download.retries"] != "2" {
		t.Fatalf("setting not persisted: %v", values)
	}

	if _, _, err := execute(t, "config", "set", "no.such.key", "1"); err == nil {
		t.Fatal("expected unknown key error")
	}
	if _, _, err := execute(t, "config", "unset", "download.retries"); err != nil {
		t.Fatalf("config unset: %v", err)
	}
}

func TestProxyWithoutToolchainFails(t *testing.T) {
	isolate(t)
	var stdout, stderr bytes.Buffer
	code := runProxy("veryl", []string{"build"}, nil, &stdout, &stderr)
	if code != proxy.ExitResolutionFailed {
		t.Fatalf("expected exit %d, got %d", proxy.ExitResolutionFailed, code)
	}
	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "verylup: ") {
		t.Fatalf("expected one diagnostic line, got %q", stderr.String())
	}
	if !strings.Contains(lines[0], "verylup setup") {
		t.Fatalf("expected a setup hint, got %q", lines[0])
	}
}

func TestProxyRunsSelectedToolchain(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)
	if _, _, err := execute(t, "install", "--pkg", pkg); err != nil {
		t.Fatalf("install: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := runProxy("veryl", []string{"+0.16.1", "build", "--quiet"}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "ran build --quiet" {
		t.Fatalf("unexpected tool output %q", stdout.String())
	}

	stdout.Reset()
	code = runProxy("veryl", []string{"fail"}, nil, &stdout, &stderr)
	if code != 7 {
		t.Fatalf("expected the tool's exit code 7, got %d", code)
	}
}

func TestLinkTool(t *testing.T) {
	dir := t.TempDir()
	self := filepath.Join(dir, "verylup")
	if err := os.WriteFile(self, []byte("binary"), 0o755); err != nil {
		t.Fatalf("write self: %v", err)
	}
	link := filepath.Join(dir, "veryl")
	if err := os.WriteFile(link, []byte("stale"), 0o755); err != nil {
		t.Fatalf("write stale link: %v", err)
	}

	created, err := linkTool(self, link)
	if err != nil || !created {
		t.Fatalf("expected link to be replaced, got created=%v err=%v", created, err)
	}
	data, err := os.ReadFile(link)
	if err != nil || string(data) != "binary" {
		t.Fatalf("link does not reach self: %q %v", data, err)
	}

	created, err = linkTool(self, link)
	if err != nil || created {
		t.Fatalf("expected existing link to be kept, got created=%v err=%v", created, err)
	}
}

func TestCompletionForVerylup(t *testing.T) {
	isolate(t)
	stdout, _, err := execute(t, "completion", "bash")
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if !strings.Contains(stdout, "verylup") {
		t.Fatalf("expected a verylup bash script, got %q", stdout)
	}
	if _, _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Fatal("expected unsupported shell error")
	}
}

func TestCompletionDelegatesToActiveVeryl(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)
	if _, _, err := execute(t, "install", "--pkg", pkg); err != nil {
		t.Fatalf("install: %v", err)
	}

	stdout, _, err := execute(t, "completion", "zsh", "veryl")
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if strings.TrimSpace(stdout) != "ran check --completion zsh" {
		t.Fatalf("unexpected delegated output %q", stdout)
	}
}

func TestShowTextTagsDefaultAndActive(t *testing.T) {
	isolate(t)
	pkg := writePackage(t)
	if _, _, err := execute(t, "install", "--pkg", pkg); err != nil {
		t.Fatalf("install: %v", err)
	}
	stdout, _, err := execute(t, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(stdout, "0.16.1 (default, active)") {
		t.Fatalf("expected tagged toolchain line, got %q", stdout)
	}
}
