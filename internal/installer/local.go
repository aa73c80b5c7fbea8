package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"verylup/internal/paths"
	"verylup/internal/toolchain"
	"verylup/internal/tui"
)

// cargoMetadata is the subset of `cargo metadata` output we read.
type cargoMetadata struct {
	Packages []struct {
		Name         string `json:"name"`
		ManifestPath string `json:"manifest_path"`
	} `json:"packages"`
}

// InstallLocal installs the "local" toolchain from dir. A directory holding
// a Cargo.toml is built with cargo first; any other directory must already
// contain the binaries.
func (i *Installer) InstallLocal(ctx context.Context, dir string) (Outcome, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if ok, err := paths.DirExists(abs); err != nil || !ok {
		return Outcome{}, fmt.Errorf("directory %s not found", abs)
	}
	i.progress().Phase(PhaseResolve, tui.StatusDone, toolchain.Local.String())

	staging, cleanup, err := i.stage()
	if err != nil {
		return Outcome{}, err
	}
	defer cleanup()

	source := abs
	workspace, _ := paths.FileExists(filepath.Join(abs, "Cargo.toml"))
	if workspace {
		root := filepath.Join(staging, ".cargo-root")
		err := i.phase(PhaseFetch, func() (string, error) {
			if err := i.cargoInstall(ctx, abs, root); err != nil {
				return "", err
			}
			return "cargo install", nil
		})
		if err != nil {
			return Outcome{}, err
		}
		source = filepath.Join(root, "bin")
	} else {
		i.skip("prebuilt binaries", PhaseFetch)
	}

	err = i.phase(PhaseUnpack, func() (string, error) {
		copied, err := copyTools(source, staging)
		if err != nil {
			return "", err
		}
		if workspace {
			_ = os.RemoveAll(filepath.Join(staging, ".cargo-root"))
		}
		return strings.Join(copied, ", "), nil
	})
	if err != nil {
		return Outcome{}, err
	}

	version, err := i.verify(ctx, staging, []string{toolchain.Primary}, false)
	if err != nil {
		return Outcome{}, err
	}
	tc, err := i.activate(ctx, toolchain.Local, staging)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Toolchain: tc, Version: version}, nil
}

// copyTools copies every managed tool present in src into dest. The primary
// tool is required.
func copyTools(src, dest string) ([]string, error) {
	var copied []string
	for _, tool := range toolchain.Tools() {
		name := toolchain.ExecutableName(tool)
		from := filepath.Join(src, name)
		ok, err := paths.FileExists(from)
		if err != nil {
			return nil, err
		}
		if !ok {
			if tool == toolchain.Primary {
				return nil, fmt.Errorf("%s not found in %s", name, src)
			}
			continue
		}
		if err := copyFile(from, filepath.Join(dest, name), 0o755); err != nil {
			return nil, fmt.Errorf("copy %s: %w", name, err)
		}
		copied = append(copied, tool)
	}
	return copied, nil
}

// cargoInstall builds each managed tool's package from the workspace at dir
// into root.
func (i *Installer) cargoInstall(ctx context.Context, dir, root string) error {
	out, err := i.command(ctx, dir, "cargo", "metadata", "--no-deps", "--format-version", "1")
	if err != nil {
		return err
	}
	var meta cargoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return fmt.Errorf("parse cargo metadata: %w", err)
	}

	manifests := map[string]string{}
	for _, pkg := range meta.Packages {
		manifests[pkg.Name] = pkg.ManifestPath
	}
	for _, tool := range toolchain.Tools() {
		manifest, ok := manifests[tool]
		if !ok {
			if tool == toolchain.Primary {
				return fmt.Errorf("workspace %s has no %s package", dir, tool)
			}
			continue
		}
		i.logger().Info("building", "package", tool)
		if _, err := i.command(ctx, dir, "cargo", "install", "--path", filepath.Dir(manifest), "--root", root); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) command(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if i.Command != nil {
		return i.Command(ctx, dir, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, lastLines(stderr.String(), 5))
	}
	return out, nil
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
