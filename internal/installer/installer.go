// Package installer places toolchains on disk and records them in the
// registry. Every install is staged next to its final location and swapped in
// only after the primary binary has been verified.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"verylup/internal/config"
	"verylup/internal/locator"
	"verylup/internal/paths"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
	"verylup/internal/tui"
)

// Install phases, in order.
const (
	PhaseResolve  = "resolve"
	PhaseFetch    = "fetch"
	PhaseUnpack   = "unpack"
	PhaseVerify   = "verify"
	PhaseActivate = "activate"
)

// ErrOffline is returned when a download is needed but the network is
// disabled in the settings.
var ErrOffline = errors.New("offline mode is enabled; pass a package with --pkg")

// Phases lists the phase names reported during an install.
func Phases() []string {
	return []string{PhaseResolve, PhaseFetch, PhaseUnpack, PhaseVerify, PhaseActivate}
}

// Request describes one install. Package and From are mutually exclusive;
// with neither set the release for ID is downloaded.
type Request struct {
	ID      toolchain.ID
	Package string
	From    string
	Force   bool
}

// Outcome reports what an install did.
type Outcome struct {
	Toolchain registry.Toolchain
	Version   *semver.Version
	// Skipped is set when the toolchain was already installed and Force was
	// not requested.
	Skipped bool
}

// Installer owns the toolchains directory.
type Installer struct {
	Layout   paths.Layout
	Store    *registry.Store
	Settings config.Config
	Client   *Client
	Logger   *slog.Logger
	Progress tui.Reporter

	// Probe reads the version of an unpacked primary binary.
	Probe func(ctx context.Context, binary string) (*semver.Version, error)
	// Command runs an external build tool and returns its stdout.
	Command func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

	cache *releaseCache
}

// New wires an installer from the resolved layout and settings.
func New(layout paths.Layout, settings config.Config, logger *slog.Logger) *Installer {
	return &Installer{
		Layout:   layout,
		Store:    registry.NewStore(layout.ConfigRoot),
		Settings: settings,
		Client:   NewClient(settings, logger),
		Logger:   logger,
	}
}

// Install dispatches req to the matching source.
func (i *Installer) Install(ctx context.Context, req Request) (Outcome, error) {
	switch {
	case req.Package != "" && req.From != "":
		return Outcome{}, errors.New("--pkg and --from cannot be combined")
	case req.From != "":
		if !req.ID.IsZero() && req.ID.Kind() != toolchain.KindLocal {
			return Outcome{}, fmt.Errorf("--from installs the %q toolchain, not %q", toolchain.Local, req.ID)
		}
		return i.InstallLocal(ctx, req.From)
	case req.Package != "":
		return i.InstallPackage(ctx, req.ID, req.Package, req.Force)
	default:
		return i.InstallRelease(ctx, req.ID, req.Force)
	}
}

// InstallRelease downloads and installs the published release for id. A
// "latest" id is first resolved against the mirror.
func (i *Installer) InstallRelease(ctx context.Context, id toolchain.ID, force bool) (Outcome, error) {
	if id.Kind() == toolchain.KindLocal {
		return Outcome{}, fmt.Errorf("the %q toolchain is built from a directory; use --from", toolchain.Local)
	}
	if i.Settings.Offline {
		return Outcome{}, ErrOffline
	}

	var version *semver.Version
	err := i.phase(PhaseResolve, func() (string, error) {
		v, err := i.resolveVersion(ctx, id)
		if err != nil {
			return "", err
		}
		version = v
		return "v" + v.String(), nil
	})
	if err != nil {
		return Outcome{}, err
	}
	target := toolchain.FromVersion(version)

	if out, ok, err := i.existing(target, force); err != nil {
		return Outcome{}, err
	} else if ok {
		i.skip("already installed", PhaseFetch, PhaseUnpack, PhaseVerify, PhaseActivate)
		return out, nil
	}

	var archive string
	err = i.phase(PhaseFetch, func() (string, error) {
		url, err := i.client().ArchiveURL(version)
		if err != nil {
			return "", err
		}
		archive = filepath.Join(i.Layout.DownloadsDir, "v"+version.String(), filepath.Base(url))
		if !force {
			if ok, _ := paths.FileExists(archive); ok {
				return "cached " + filepath.Base(archive), nil
			}
		}
		n, err := i.client().Download(ctx, url, archive)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%s)", filepath.Base(archive), humanBytes(n)), nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out, err := i.installArchive(ctx, target, archive, force)
	if err != nil && errors.Is(err, errUnpack) {
		// A truncated cached archive would fail the same way next time.
		_ = os.Remove(archive)
	}
	return out, err
}

// InstallPackage installs an offline package. A "latest" or zero id takes the
// version the packaged binary reports.
func (i *Installer) InstallPackage(ctx context.Context, id toolchain.ID, pkg string, force bool) (Outcome, error) {
	if id.Kind() == toolchain.KindLocal {
		return Outcome{}, fmt.Errorf("the %q toolchain is built from a directory; use --from", toolchain.Local)
	}
	abs, err := filepath.Abs(pkg)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve package path: %w", err)
	}
	if ok, err := paths.FileExists(abs); err != nil || !ok {
		return Outcome{}, fmt.Errorf("package %s not found", abs)
	}

	if id.IsVersion() {
		i.progress().Phase(PhaseResolve, tui.StatusDone, id.String())
		if out, ok, err := i.existing(id, force); err != nil {
			return Outcome{}, err
		} else if ok {
			i.skip("already installed", PhaseFetch, PhaseUnpack, PhaseVerify, PhaseActivate)
			return out, nil
		}
	} else {
		i.progress().Phase(PhaseResolve, tui.StatusSkipped, "from package")
		id = toolchain.Latest
	}
	i.progress().Phase(PhaseFetch, tui.StatusSkipped, filepath.Base(abs))

	return i.installArchive(ctx, id, abs, force)
}

var errUnpack = errors.New("unpack failed")

// installArchive unpacks archive into a staging directory, verifies it and
// activates it as id. When id is "latest" the probed version names it.
func (i *Installer) installArchive(ctx context.Context, id toolchain.ID, archive string, force bool) (Outcome, error) {
	staging, cleanup, err := i.stage()
	if err != nil {
		return Outcome{}, err
	}
	defer cleanup()

	err = i.phase(PhaseUnpack, func() (string, error) {
		if err := extractArchive(archive, staging); err != nil {
			return "", fmt.Errorf("%w: %w", errUnpack, err)
		}
		if err := flatten(staging, toolchain.Tools()); err != nil {
			return "", err
		}
		return filepath.Base(archive), nil
	})
	if err != nil {
		return Outcome{}, err
	}

	version, err := i.verify(ctx, staging, toolchain.Tools(), true)
	if err != nil {
		return Outcome{}, err
	}
	switch {
	case id.Kind() == toolchain.KindLatest:
		id = toolchain.FromVersion(version)
		if out, ok, err := i.existing(id, force); err != nil {
			return Outcome{}, err
		} else if ok {
			i.skip("already installed", PhaseActivate)
			return out, nil
		}
	case !version.Equal(id.Version()):
		err := fmt.Errorf("package contains veryl %s, not %s", version, id)
		i.progress().Phase(PhaseVerify, tui.StatusFailed, err.Error())
		return Outcome{}, err
	}

	tc, err := i.activate(ctx, id, staging)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Toolchain: tc, Version: version}, nil
}

// existing reports an already-installed, intact toolchain so the caller can
// skip the work.
func (i *Installer) existing(id toolchain.ID, force bool) (Outcome, bool, error) {
	if force {
		return Outcome{}, false, nil
	}
	reg, err := i.Store.Load()
	if err != nil {
		return Outcome{}, false, err
	}
	tc, ok := reg.Get(id)
	if !ok {
		return Outcome{}, false, nil
	}
	if err := locator.Verify(tc); err != nil {
		i.logger().Warn("reinstalling damaged toolchain", "toolchain", id.String(), "error", err)
		return Outcome{}, false, nil
	}
	return Outcome{Toolchain: tc, Version: tc.ID.Version(), Skipped: true}, true, nil
}

func (i *Installer) resolveVersion(ctx context.Context, id toolchain.ID) (*semver.Version, error) {
	if id.IsVersion() {
		return id.Version(), nil
	}
	if id.Kind() != toolchain.KindLatest && !id.IsZero() {
		return nil, fmt.Errorf("cannot download toolchain %q", id)
	}
	mirror := i.client().base()
	if cached, ok := i.releaseCache().latest(mirror); ok {
		if v, err := semver.StrictNewVersion(cached); err == nil {
			i.logger().Debug("latest release from cache", "version", cached)
			return v, nil
		}
	}
	v, err := i.client().LatestVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve latest release: %w", err)
	}
	i.releaseCache().store(mirror, v.String())
	return v, nil
}

// verify checks the staged tools exist and probes the primary binary. With
// strict unset a failed probe is logged and a nil version returned.
func (i *Installer) verify(ctx context.Context, staging string, tools []string, strict bool) (*semver.Version, error) {
	var version *semver.Version
	err := i.phase(PhaseVerify, func() (string, error) {
		for _, tool := range tools {
			if err := locator.Check(toolchain.BinaryPath(staging, tool)); err != nil {
				return "", &toolchain.Error{Kind: toolchain.ErrCorruptInstallation, Step: "verify " + tool, Path: staging, Err: err}
			}
		}
		v, err := i.probe(ctx, toolchain.BinaryPath(staging, toolchain.Primary))
		if err != nil {
			if strict {
				return "", &toolchain.Error{Kind: toolchain.ErrCorruptInstallation, Step: "verify", Path: staging, Err: err}
			}
			i.logger().Warn("could not read toolchain version", "error", err)
			return "version unknown", nil
		}
		version = v
		return "veryl " + v.String(), nil
	})
	return version, err
}

// activate moves staging to a fresh root for id and points the registry at
// it. The previous root stays in place until the registry no longer refers to
// it, so a concurrent lookup always finds a complete toolchain.
func (i *Installer) activate(ctx context.Context, id toolchain.ID, staging string) (registry.Toolchain, error) {
	var tc registry.Toolchain
	err := i.phase(PhaseActivate, func() (string, error) {
		unlock, err := acquireInstallLock(ctx, i.Layout.ToolchainsDir, id.String())
		if err != nil {
			return "", err
		}
		defer unlock()

		final := i.Layout.ToolchainDir(id.String() + "-" + uuid.NewString()[:8])
		if err := os.Rename(staging, final); err != nil {
			return "", fmt.Errorf("activate toolchain: %w", err)
		}

		previous := ""
		tc = registry.Toolchain{ID: id, Root: final, InstalledAt: time.Now().UTC()}
		err = i.Store.Update(ctx, func(reg *registry.Registry) error {
			if old, ok := reg.Get(id); ok {
				previous = old.Root
			}
			return reg.Install(tc)
		})
		if err != nil {
			_ = os.RemoveAll(final)
			return "", fmt.Errorf("record toolchain: %w", err)
		}
		if previous != "" && previous != final {
			i.discard(previous)
		}
		return final, nil
	})
	if err != nil {
		return registry.Toolchain{}, err
	}
	i.logger().Info("installed toolchain", "toolchain", id.String(), "root", tc.Root)
	return tc, nil
}

// discard removes a toolchain root the registry no longer points at.
func (i *Installer) discard(root string) {
	trash := filepath.Join(filepath.Dir(root), ".trash-"+uuid.NewString())
	if err := os.Rename(root, trash); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			i.logger().Warn("could not remove previous install", "path", root, "error", err)
		}
		return
	}
	if err := os.RemoveAll(trash); err != nil {
		i.logger().Warn("could not remove previous install", "path", trash, "error", err)
	}
}

// Uninstall removes id from the registry and then deletes its directory, so
// a proxy never resolves to a half-deleted toolchain.
func (i *Installer) Uninstall(ctx context.Context, id toolchain.ID) (registry.Toolchain, error) {
	var removed registry.Toolchain
	err := i.Store.Update(ctx, func(reg *registry.Registry) error {
		target := id
		if id.Kind() == toolchain.KindLatest {
			latest, err := reg.Latest()
			if err != nil {
				return err
			}
			target = latest.ID
		}
		tc, err := reg.Remove(target)
		if err != nil {
			return err
		}
		removed = tc
		return nil
	})
	if err != nil {
		return registry.Toolchain{}, err
	}

	trash := filepath.Join(filepath.Dir(removed.Root), ".trash-"+uuid.NewString())
	if err := os.Rename(removed.Root, trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return removed, nil
		}
		return removed, fmt.Errorf("remove toolchain directory: %w", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return removed, fmt.Errorf("remove toolchain directory: %w", err)
	}
	i.logger().Info("uninstalled toolchain", "toolchain", removed.ID.String(), "root", removed.Root)
	return removed, nil
}

// stage creates a fresh staging directory beside the final install location
// so the swap is a rename on one filesystem.
func (i *Installer) stage() (string, func(), error) {
	if err := os.MkdirAll(i.Layout.ToolchainsDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("prepare toolchains dir: %w", err)
	}
	dir := filepath.Join(i.Layout.ToolchainsDir, ".staging-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// flatten moves each tool found anywhere under root to root itself and makes
// it executable.
func flatten(root string, tools []string) error {
	for _, tool := range tools {
		name := toolchain.ExecutableName(tool)
		found, err := findExecutable(root, name)
		if err != nil {
			return fmt.Errorf("search for %s: %w", name, err)
		}
		if found == "" {
			continue
		}
		want := filepath.Join(root, name)
		if found != want {
			if err := os.Rename(found, want); err != nil {
				return fmt.Errorf("move %s: %w", name, err)
			}
		}
		if err := os.Chmod(want, 0o755); err != nil {
			return fmt.Errorf("chmod %s: %w", name, err)
		}
	}
	return nil
}

func (i *Installer) phase(name string, fn func() (string, error)) error {
	p := i.progress()
	p.Phase(name, tui.StatusActive, "")
	detail, err := fn()
	if err != nil {
		p.Phase(name, tui.StatusFailed, err.Error())
		return err
	}
	p.Phase(name, tui.StatusDone, detail)
	return nil
}

func (i *Installer) skip(detail string, names ...string) {
	for _, name := range names {
		i.progress().Phase(name, tui.StatusSkipped, detail)
	}
}

func (i *Installer) probe(ctx context.Context, binary string) (*semver.Version, error) {
	if i.Probe != nil {
		return i.Probe(ctx, binary)
	}
	return ProbeVersion(ctx, binary)
}

func (i *Installer) client() *Client {
	if i.Client == nil {
		i.Client = NewClient(i.Settings, i.Logger)
	}
	return i.Client
}

func (i *Installer) releaseCache() *releaseCache {
	if i.cache == nil {
		i.cache = newReleaseCache(i.Layout.DataRoot)
	}
	return i.cache
}

func (i *Installer) progress() tui.Reporter {
	if i.Progress == nil {
		return tui.Discard
	}
	return i.Progress
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return i.Logger
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
