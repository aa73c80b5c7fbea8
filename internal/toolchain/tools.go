package toolchain

import (
	"path/filepath"
	"runtime"
	"slices"
)

// Primary is the compiler binary every toolchain must provide.
const Primary = "veryl"

var tools = []string{Primary, "veryl-ls"}

// Tools returns the names of the binaries a toolchain ships, primary first.
func Tools() []string {
	return slices.Clone(tools)
}

// IsTool reports whether name is a managed tool.
func IsTool(name string) bool {
	return slices.Contains(tools, name)
}

// ExecutableName appends the platform executable suffix.
func ExecutableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

// BinaryPath is the fixed location of tool inside a toolchain root.
func BinaryPath(root, tool string) string {
	return filepath.Join(root, ExecutableName(tool))
}
