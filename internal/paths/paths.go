package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// HomeEnv overrides both the configuration and the data root.
const HomeEnv = "VERYLUP_HOME"

const appName = "verylup"

// SettingsFileName is the user settings file inside the configuration root.
const SettingsFileName = "config.yaml"

// Layout captures the canonical per-user locations.
type Layout struct {
	ConfigRoot    string
	DataRoot      string
	SettingsFile  string
	ToolchainsDir string
	DownloadsDir  string
	LogsDir       string
}

// Resolve determines the roots from VERYLUP_HOME, falling back to the XDG
// base directories.
func Resolve() (Layout, error) {
	if home := strings.TrimSpace(os.Getenv(HomeEnv)); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return Layout{}, fmt.Errorf("resolve %s: %w", HomeEnv, err)
		}
		return New(abs, abs), nil
	}
	if xdg.ConfigHome == "" || xdg.DataHome == "" {
		return Layout{}, fmt.Errorf("detect user directories: no home directory")
	}
	return New(filepath.Join(xdg.ConfigHome, appName), filepath.Join(xdg.DataHome, appName)), nil
}

// New builds a layout from explicit roots.
func New(configRoot, dataRoot string) Layout {
	return Layout{
		ConfigRoot:    configRoot,
		DataRoot:      dataRoot,
		SettingsFile:  filepath.Join(configRoot, SettingsFileName),
		ToolchainsDir: filepath.Join(dataRoot, "toolchains"),
		DownloadsDir:  filepath.Join(dataRoot, "downloads"),
		LogsDir:       filepath.Join(dataRoot, "logs"),
	}
}

// WithToolchainsDir relocates toolchain installs, e.g. from user settings.
// An empty dir keeps the default.
func (l Layout) WithToolchainsDir(dir string) Layout {
	if dir = strings.TrimSpace(dir); dir != "" {
		l.ToolchainsDir = filepath.Clean(dir)
	}
	return l
}

// ToolchainDir joins name onto the toolchains directory. Installs name their
// root after the toolchain id plus a unique suffix.
func (l Layout) ToolchainDir(name string) string {
	return filepath.Join(l.ToolchainsDir, name)
}

// EnsureDirs creates the roots and their standard subdirectories.
func (l Layout) EnsureDirs() error {
	for _, dir := range []string{l.ConfigRoot, l.DataRoot, l.ToolchainsDir, l.DownloadsDir, l.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// BinDir returns the directory holding the running executable, with
// symlinks resolved. Managed tool links are created there.
func BinDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
