// Package locator maps a resolved toolchain id to the binary that runs it.
package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

// Locate returns the path of tool inside the installed toolchain id. A
// "latest" id is desugared the same way the resolver does it. Nothing is
// repaired: a missing binary is reported, not reinstalled.
func Locate(id toolchain.ID, reg *registry.Registry, tool string) (string, error) {
	if id.Kind() == toolchain.KindLatest {
		latest, err := reg.Latest()
		if err != nil {
			return "", err
		}
		id = latest.ID
	}

	tc, ok := reg.Get(id)
	if !ok {
		return "", &toolchain.Error{Kind: toolchain.ErrNotInstalled, Step: "locate", ID: id.String()}
	}
	path := tc.BinaryPath(tool)
	if err := Check(path); err != nil {
		return "", &toolchain.Error{Kind: toolchain.ErrCorruptInstallation, Step: "locate " + tool, ID: id.String(), Path: path, Err: err}
	}
	return path, nil
}

// Check reports why path is not a runnable file, or nil when it is.
func Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.New("binary is missing")
		}
		return err
	}
	if info.IsDir() {
		return errors.New("expected a file, found a directory")
	}
	return nil
}

// Verify checks every managed tool of t and joins the failures.
func Verify(t registry.Toolchain) error {
	var errs []error
	for _, tool := range toolchain.Tools() {
		path := t.BinaryPath(tool)
		if err := Check(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tool, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &toolchain.Error{
		Kind: toolchain.ErrCorruptInstallation,
		Step: "verify",
		ID:   t.ID.String(),
		Path: t.Root,
		Err:  errors.Join(errs...),
	}
}
